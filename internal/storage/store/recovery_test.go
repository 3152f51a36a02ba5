package store

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/dirstore/internal/config"
	"github.com/KilimcininKorOglu/dirstore/internal/storage/index"
	"github.com/KilimcininKorOglu/dirstore/internal/storage/search"
	"github.com/KilimcininKorOglu/dirstore/internal/storage/txlog"
)

// crash closes the components of s without a final checkpoint.
func crash(t *testing.T, s *Store) {
	t.Helper()

	s.setState(stateClosed)
	close(s.stop)
	s.wg.Wait()
	require.NoError(t, s.closeComponents())
}

// rawEdit logs an index change with arbitrary payload bytes.
type rawEdit []byte

func (e rawEdit) RecordType() txlog.RecordType { return txlog.RecordIndexChange }
func (e rawEdit) Encode() ([]byte, error)      { return []byte(e), nil }

// logOnly logs the addition of e below ancestors without applying it.
func logOnly(t *testing.T, s *Store, e *Entry, ancestors []node) {
	t.Helper()

	pairs, err := s.entryPairs(e, ancestors)
	require.NoError(t, err)
	payload, err := encodeEntry(e)
	require.NoError(t, err)

	edits := []txlog.Edit{&txlog.EntryEdit{ID: e.ID, Op: txlog.EntryPut, Payload: payload}}
	edits = append(edits, pairEdits(pairs, e.ID, txlog.OpAdd)...)
	_, err = s.log.AppendTxn(s.log.NextTxID(), edits)
	require.NoError(t, err)
}

func TestVolatileStoreReplaysWholeLog(t *testing.T) {
	cfg := testConfig(t, config.BackendMemory)

	s, err := Open(cfg, Options{})
	require.NoError(t, err)
	tr := buildTree(t, s)
	require.NoError(t, s.Delete(tr.bob))
	require.NoError(t, s.Close())

	s = openTestStore(t, cfg)
	assert.Equal(t, 5, s.ReplayStats().Committed)

	alice, err := s.LookupDN("cn=alice,ou=people," + suffix)
	require.NoError(t, err)
	assert.Equal(t, tr.alice, alice.ID)

	_, err = s.Lookup(tr.bob)
	assert.ErrorIs(t, err, ErrEntryNotFound)

	ids, err := s.SearchIDs(suffix, search.ScopeSubtree, search.DerefNever)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{tr.root, tr.people, tr.alice}, ids)
	requireConsistent(t, s)
}

func TestRecoveryRedoesUnappliedTransaction(t *testing.T) {
	cfg := testConfig(t, config.BackendPebble)

	s, err := Open(cfg, Options{})
	require.NoError(t, err)
	root := addEntry(t, s, suffix, map[string][]string{"objectClass": {"domain"}})

	people := NewEntry("ou=people," + suffix)
	people.ID = uuid.New()
	people.ParentID = root
	people.SetAttribute(AttrObjectClass, "organizationalUnit")
	people.SetAttribute("cn", "People")
	logOnly(t, s, people, []node{{id: root, dn: suffix}})

	crash(t, s)

	s = openTestStore(t, cfg)
	assert.Equal(t, 2, s.ReplayStats().Committed)

	got, err := s.LookupDN("ou=people," + suffix)
	require.NoError(t, err)
	assert.Equal(t, people.ID, got.ID)
	assert.True(t, hasPair(t, s.OneLevelIndex(), index.IDKey(root), people.ID))
	assert.True(t, hasPair(t, s.SubLevelIndex(), index.IDKey(root), people.ID))

	cn, err := s.Index(cnOID)
	require.NoError(t, err)
	assert.True(t, hasPair(t, cn, index.StringKey("people"), people.ID))
	requireConsistent(t, s)

	// Replaying twice leaves the same state.
	crash(t, s)
	s = openTestStore(t, cfg)
	_, err = s.Lookup(people.ID)
	require.NoError(t, err)
	requireConsistent(t, s)
}

func TestApplyFailureKeepsTransactionForRecovery(t *testing.T) {
	cfg := testConfig(t, config.BackendPebble)

	s, err := Open(cfg, Options{})
	require.NoError(t, err)
	root := addEntry(t, s, suffix, map[string][]string{"objectClass": {"domain"}})

	// A closed index fails every write, like a backend I/O error.
	require.NoError(t, s.OneLevelIndex().Close())

	people := NewEntry("ou=people," + suffix)
	people.SetAttribute(AttrObjectClass, "organizationalUnit")
	_, err = s.Add(people)
	require.ErrorIs(t, err, index.ErrIndexClosed)
	assert.True(t, s.NeedsRecovery())

	groups := NewEntry("ou=groups," + suffix)
	groups.SetAttribute(AttrObjectClass, "organizationalUnit")
	_, err = s.Add(groups)
	assert.ErrorIs(t, err, ErrNeedsRecovery)
	assert.ErrorIs(t, s.Delete(root), ErrNeedsRecovery)
	_, err = s.Checkpoint()
	assert.ErrorIs(t, err, ErrNeedsRecovery)

	require.NoError(t, s.Close())

	s = openTestStore(t, cfg)
	assert.Equal(t, 2, s.ReplayStats().Committed)
	assert.False(t, s.NeedsRecovery())

	got, err := s.LookupDN("ou=people," + suffix)
	require.NoError(t, err)
	assert.True(t, hasPair(t, s.OneLevelIndex(), index.IDKey(root), got.ID))
	assert.True(t, hasPair(t, s.SubLevelIndex(), index.IDKey(root), got.ID))

	_, err = s.LookupDN("ou=groups," + suffix)
	assert.ErrorIs(t, err, ErrEntryNotFound)
	requireConsistent(t, s)
}

func TestRecoveryAfterCleanClose(t *testing.T) {
	cfg := testConfig(t, config.BackendPebble)

	s, err := Open(cfg, Options{})
	require.NoError(t, err)
	tr := buildTree(t, s)
	require.NoError(t, s.Close())

	s = openTestStore(t, cfg)
	assert.Zero(t, s.ReplayStats().Committed)

	count, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	alice, err := s.Lookup(tr.alice)
	require.NoError(t, err)
	assert.Equal(t, "cn=alice,ou=people,"+suffix, alice.DN)
	requireConsistent(t, s)
}

func TestRecoveryAbortsIncompleteTransaction(t *testing.T) {
	cfg := testConfig(t, config.BackendMemory)

	s, err := Open(cfg, Options{})
	require.NoError(t, err)
	root := addEntry(t, s, suffix, map[string][]string{"objectClass": {"domain"}})

	orphan := uuid.New()
	edit := txlog.NewIndexEdit(cnOID, index.StringKey("orphan"), orphan, txlog.OpAdd)
	data, err := edit.Encode()
	require.NoError(t, err)

	txID := s.log.NextTxID()
	_, err = s.log.Append(txlog.NewRecord(txID, txlog.RecordBegin, nil))
	require.NoError(t, err)
	_, err = s.log.Append(txlog.NewRecord(txID, txlog.RecordIndexChange, data))
	require.NoError(t, err)

	crash(t, s)

	s = openTestStore(t, cfg)
	stats := s.ReplayStats()
	assert.Equal(t, 1, stats.Committed)
	assert.Equal(t, 1, stats.Incomplete)

	cn, err := s.Index(cnOID)
	require.NoError(t, err)
	assert.False(t, hasPair(t, cn, index.StringKey("orphan"), orphan))

	_, err = s.Lookup(root)
	require.NoError(t, err)
}

func TestRecoveryFailsOnUndecodableEdit(t *testing.T) {
	cfg := testConfig(t, config.BackendMemory)

	s, err := Open(cfg, Options{})
	require.NoError(t, err)
	addEntry(t, s, suffix, map[string][]string{"objectClass": {"domain"}})

	_, err = s.log.AppendTxn(s.log.NextTxID(), []txlog.Edit{rawEdit{0x00, 0x01, 'x', 0x7f}})
	require.NoError(t, err)
	crash(t, s)

	_, err = Open(cfg, Options{})
	require.ErrorIs(t, err, ErrRecoveryFailed)

	var decodeErr *txlog.DecodeError
	require.True(t, errors.As(err, &decodeErr), "got %v", err)
	assert.ErrorIs(t, err, txlog.ErrUnknownKeyType)
}

func TestRecoveryFailsOnCorruptLog(t *testing.T) {
	cfg := testConfig(t, config.BackendMemory)

	s, err := Open(cfg, Options{})
	require.NoError(t, err)
	addEntry(t, s, suffix, map[string][]string{"objectClass": {"domain"}})
	addEntry(t, s, "ou=a,"+suffix, nil)
	addEntry(t, s, "ou=b,"+suffix, nil)
	path := s.Log().Path()
	crash(t, s)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)/3] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0644))

	_, err = Open(cfg, Options{})
	require.ErrorIs(t, err, ErrRecoveryFailed)
	assert.ErrorIs(t, err, txlog.ErrLogCorrupt)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, after)
}

func TestCheckpoint(t *testing.T) {
	t.Run("persistent", func(t *testing.T) {
		s := openTestStore(t, testConfig(t, config.BackendPebble))
		buildTree(t, s)

		lsn, err := s.Checkpoint()
		require.NoError(t, err)
		assert.NotZero(t, lsn)

		st, err := s.Stats()
		require.NoError(t, err)
		assert.Equal(t, 4, st.Entries)
		assert.Equal(t, 1, st.LogRecords)
		assert.Equal(t, lsn, st.LastCheckpointLSN)
		assert.Equal(t, lsn+1, st.NextLSN)
		assert.Equal(t, 4, st.IndexPairs[s.RDNIndex().Name()])
	})

	t.Run("volatile", func(t *testing.T) {
		s := newTestStore(t)
		buildTree(t, s)
		before := s.Log().RecordCount()

		lsn, err := s.Checkpoint()
		require.NoError(t, err)
		assert.Zero(t, lsn)
		assert.Equal(t, before, s.Log().RecordCount())
	})
}

func TestPeriodicCheckpointSkipsRecentCheckpoint(t *testing.T) {
	s := openTestStore(t, testConfig(t, config.BackendPebble))
	buildTree(t, s)

	ran, err := s.periodicCheckpoint(time.Hour)
	require.NoError(t, err)
	assert.True(t, ran, "no checkpoint taken yet")
	first := s.checkpoints.LastCheckpointLSN()

	addEntry(t, s, "ou=groups,"+suffix, nil)

	ran, err = s.periodicCheckpoint(time.Hour)
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Equal(t, first, s.checkpoints.LastCheckpointLSN())

	ran, err = s.periodicCheckpoint(0)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Greater(t, s.checkpoints.LastCheckpointLSN(), first)
}

func TestCheckpointLoop(t *testing.T) {
	cfg := testConfig(t, config.BackendPebble)
	cfg.Storage.CheckpointInterval = 10 * time.Millisecond
	s := openTestStore(t, cfg)
	buildTree(t, s)

	require.Eventually(t, func() bool {
		st, err := s.Stats()
		return err == nil && st.LastCheckpointLSN != 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRegisterMetrics(t *testing.T) {
	s := openTestStore(t, testConfig(t, config.BackendPebble))
	buildTree(t, s)

	reg := prometheus.NewRegistry()
	require.NoError(t, s.RegisterMetrics(reg))
	require.NoError(t, s.RegisterMetrics(reg))

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["dirstore_store_operations_total"])
	assert.True(t, names["dirstore_txlog_records_appended_total"])
}
