package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	t.Run("storage defaults", func(t *testing.T) {
		assert.Equal(t, "/var/lib/dirstore", config.Storage.DataDir)
		assert.Equal(t, BackendPebble, config.Storage.IndexBackend)
		assert.True(t, config.Storage.SyncWrites)
		assert.Equal(t, 5*time.Minute, config.Storage.CheckpointInterval)
		assert.Equal(t, 10000, config.Storage.CacheSize)
		assert.Equal(t, "/var/lib/dirstore/txlog", config.Storage.LogPath())
	})

	t.Run("logging defaults", func(t *testing.T) {
		assert.Equal(t, "info", config.Logging.Level)
		assert.Equal(t, "json", config.Logging.Format)
		assert.Equal(t, "stdout", config.Logging.Output)
	})

	t.Run("default config is valid", func(t *testing.T) {
		assert.Empty(t, ValidateConfig(config))
	})
}

func TestParseConfig(t *testing.T) {
	data := []byte(`
storage:
  dataDir: /srv/dir
  logDir: /srv/log
  indexBackend: memory
  suffix: dc=example,dc=com
  checkpointInterval: 30s
logging:
  level: debug
indexes:
  - attribute: UID
  - attribute: uidNumber
    keyType: long
`)

	config, err := ParseConfig(data)
	require.NoError(t, err)

	assert.Equal(t, "/srv/dir", config.Storage.DataDir)
	assert.Equal(t, "/srv/log", config.Storage.LogPath())
	assert.Equal(t, BackendMemory, config.Storage.IndexBackend)
	assert.Equal(t, "dc=example,dc=com", config.Storage.Suffix)
	assert.Equal(t, 30*time.Second, config.Storage.CheckpointInterval)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "json", config.Logging.Format, "unset values keep defaults")

	require.Len(t, config.Indexes, 2)
	assert.Equal(t, IndexConfig{Attribute: "uid", KeyType: KeyTypeString}, config.Indexes[0])
	assert.Equal(t, "uidnumber", config.Indexes[1].Attribute)
	assert.Equal(t, KeyTypeLong, config.Indexes[1].KeyType)
}

func TestParseConfigInvalidYAML(t *testing.T) {
	_, err := ParseConfig([]byte("storage: [unterminated"))
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("DIRSTORE_TEST_DIR", "/from/env")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"set variable", "dataDir: ${DIRSTORE_TEST_DIR}", "dataDir: /from/env"},
		{"default unused", "dataDir: ${DIRSTORE_TEST_DIR:-/fallback}", "dataDir: /from/env"},
		{"default used", "dataDir: ${DIRSTORE_TEST_UNSET:-/fallback}", "dataDir: /fallback"},
		{"unset no default", "dataDir: ${DIRSTORE_TEST_UNSET}", "dataDir: "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(substituteEnvVars([]byte(tt.input))))
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("missing path", func(t *testing.T) {
		_, err := LoadConfig("")
		assert.ErrorIs(t, err, ErrMissingConfigFile)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorIs(t, err, ErrFileNotFound)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "dirstore.yaml")
		require.NoError(t, os.WriteFile(path, []byte("storage:\n  dataDir: /data\n"), 0644))

		config, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "/data", config.Storage.DataDir)
	})
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"relative data dir", func(c *Config) { c.Storage.DataDir = "data" }, "storage.dataDir"},
		{"empty data dir", func(c *Config) { c.Storage.DataDir = "" }, "storage.dataDir"},
		{"relative log dir", func(c *Config) { c.Storage.LogDir = "log" }, "storage.logDir"},
		{"unknown backend", func(c *Config) { c.Storage.IndexBackend = "bolt" }, "storage.indexBackend"},
		{"bad suffix", func(c *Config) { c.Storage.Suffix = "example" }, "storage.suffix"},
		{"negative interval", func(c *Config) { c.Storage.CheckpointInterval = -time.Second }, "storage.checkpointInterval"},
		{"negative cache", func(c *Config) { c.Storage.CacheSize = -1 }, "storage.cacheSize"},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"missing attribute", func(c *Config) { c.Indexes = []IndexConfig{{}} }, "indexes[0].attribute"},
		{"duplicate attribute", func(c *Config) {
			c.Indexes = []IndexConfig{{Attribute: "uid"}, {Attribute: "uid"}}
		}, "indexes[1].attribute"},
		{"bad key type", func(c *Config) {
			c.Indexes = []IndexConfig{{Attribute: "uid", KeyType: "float"}}
		}, "indexes[0].keyType"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)

			errs := ValidateConfig(config)
			require.NotEmpty(t, errs)

			var fields []string
			for _, err := range errs {
				var verr ValidationError
				require.ErrorAs(t, err, &verr)
				fields = append(fields, verr.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	config := DefaultConfig()
	config.Indexes = []IndexConfig{{Attribute: "mail", KeyType: KeyTypeString}}

	data, err := Marshal(config)
	require.NoError(t, err)

	parsed, err := ParseConfig(data)
	require.NoError(t, err)
	assert.Equal(t, config, parsed)
}
