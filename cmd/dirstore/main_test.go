package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/dirstore/internal/config"
	"github.com/KilimcininKorOglu/dirstore/internal/storage/store"
	"github.com/KilimcininKorOglu/dirstore/internal/storage/txlog"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// seedStore writes a config file for a fresh pebble store holding two
// entries and returns its path.
func seedStore(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = filepath.Join(dir, "data")
	cfg.Storage.Suffix = "dc=example,dc=com"
	cfg.Storage.SyncWrites = false
	cfg.Logging.Output = "stderr"
	cfg.Logging.Level = "error"
	cfg.Indexes = []config.IndexConfig{{Attribute: "cn", OID: "2.5.4.3", KeyType: config.KeyTypeString}}

	data, err := config.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(dir, "dirstore.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	s, err := store.Open(cfg, store.Options{})
	require.NoError(t, err)

	root := store.NewEntry("dc=example,dc=com")
	root.SetAttribute("objectClass", "domain")
	_, err = s.Add(root)
	require.NoError(t, err)

	alice := store.NewEntry("cn=alice,dc=example,dc=com")
	alice.SetAttribute("objectClass", "person")
	alice.SetAttribute("cn", "alice")
	_, err = s.Add(alice)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	return path
}

func TestRun_Help(t *testing.T) {
	for _, args := range [][]string{{"--help"}, {"help"}, {}} {
		code, stdout, _ := runCLI(t, args...)
		assert.Equal(t, 0, code)
		assert.Contains(t, stdout, "dirstore")
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	code, _, stderr := runCLI(t, "unknown")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unknown command")
}

func TestRun_Version(t *testing.T) {
	code, stdout, _ := runCLI(t, "version")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "dirstore version "+version)

	code, stdout, _ = runCLI(t, "version", "--short")
	assert.Equal(t, 0, code)
	assert.Equal(t, version+"\n", stdout)
}

func TestRun_MissingConfigFile(t *testing.T) {
	code, _, stderr := runCLI(t, "stats", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "load config")
}

func TestRun_InvalidOverride(t *testing.T) {
	path := seedStore(t)
	code, _, stderr := runCLI(t, "stats", "--config", path, "--backend", "bolt")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "storage.indexBackend")
}

func TestRun_StoreCommands(t *testing.T) {
	path := seedStore(t)

	t.Run("recover", func(t *testing.T) {
		code, stdout, stderr := runCLI(t, "recover", "--config", path)
		require.Equal(t, 0, code, stderr)
		assert.Contains(t, stdout, "Recovery completed")
		assert.Contains(t, stdout, "Committed:      0")
	})

	t.Run("verify", func(t *testing.T) {
		code, stdout, stderr := runCLI(t, "verify", "--config", path)
		require.Equal(t, 0, code, stderr)
		assert.Contains(t, stdout, "9 indexes verified, no violations")
	})

	t.Run("stats", func(t *testing.T) {
		code, stdout, stderr := runCLI(t, "stats", "--config", path)
		require.Equal(t, 0, code, stderr)
		assert.Contains(t, stdout, "Entries:     2")
		assert.Contains(t, stdout, "apacheRdn")
	})

	t.Run("checkpoint", func(t *testing.T) {
		code, stdout, stderr := runCLI(t, "checkpoint", "--config", path)
		require.Equal(t, 0, code, stderr)
		assert.Contains(t, stdout, "Checkpoint at LSN")
	})

	t.Run("export import", func(t *testing.T) {
		ldif := filepath.Join(t.TempDir(), "tree.ldif")
		code, _, stderr := runCLI(t, "export", "--config", path, "-o", ldif)
		require.Equal(t, 0, code, stderr)
		assert.Contains(t, stderr, "Exported 2 entries")

		data, err := os.ReadFile(ldif)
		require.NoError(t, err)
		assert.Contains(t, string(data), "dn: cn=alice,dc=example,dc=com")

		target := filepath.Join(t.TempDir(), "target")
		code, stdout, stderr := runCLI(t, "import", "--config", path, "--data-dir", target, "-i", ldif)
		require.Equal(t, 0, code, stderr)
		assert.Contains(t, stdout, "Imported 2 entries")
	})

	t.Run("log dump", func(t *testing.T) {
		code, stdout, stderr := runCLI(t, "log", "dump", "--config", path)
		require.Equal(t, 0, code, stderr)
		assert.Contains(t, stdout, "Checkpoint")
		assert.Contains(t, stdout, "1 records")
	})
}

func TestRun_LogDumpLeavesLogUntouched(t *testing.T) {
	path := seedStore(t)
	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	logFile := filepath.Join(cfg.Storage.LogPath(), txlog.LogFileName)
	f, err := os.OpenFile(logFile, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0x40, 0, 0, 0, 1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	before, err := os.ReadFile(logFile)
	require.NoError(t, err)

	code, stdout, stderr := runCLI(t, "log", "dump", "--config", path)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "1 records")

	after, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRun_IndexRebuild(t *testing.T) {
	path := seedStore(t)

	code, stdout, stderr := runCLI(t, "index", "rebuild", "cn", "--config", path)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Rebuilt index cn")
	assert.Contains(t, stdout, "Entries: 2")
	assert.Contains(t, stdout, "Added:   0")

	code, _, stderr = runCLI(t, "index", "rebuild", "objectClass", "--config", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "system index")

	code, _, _ = runCLI(t, "index", "rebuild", "--config", path)
	assert.NotEqual(t, 0, code)
}

func TestDumpLogDecodesEdits(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = dir
	cfg.Storage.IndexBackend = config.BackendMemory
	cfg.Storage.SyncWrites = false

	s, err := store.Open(cfg, store.Options{})
	require.NoError(t, err)
	e := store.NewEntry("dc=com")
	e.SetAttribute("objectClass", "domain")
	_, err = s.Add(e)
	require.NoError(t, err)

	var out bytes.Buffer
	n, err := dumpLog(&out, s.Log(), 0, true)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Begin, entry put, rdn, one level, sub level, object class, commit.
	assert.Equal(t, 7, n)
	assert.Contains(t, out.String(), "Begin")
	assert.Contains(t, out.String(), "EntryChange")
	assert.Contains(t, out.String(), "ADD 2.5.4.0[domain]")
	assert.Contains(t, out.String(), "Commit")
}
