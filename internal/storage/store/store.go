package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/pebble/vfs"

	"github.com/KilimcininKorOglu/dirstore/internal/config"
	"github.com/KilimcininKorOglu/dirstore/internal/logging"
	"github.com/KilimcininKorOglu/dirstore/internal/storage/dn"
	"github.com/KilimcininKorOglu/dirstore/internal/storage/index"
	"github.com/KilimcininKorOglu/dirstore/internal/storage/master"
	"github.com/KilimcininKorOglu/dirstore/internal/storage/txlog"
)

// Store errors.
var (
	ErrStoreClosed        = errors.New("store is closed")
	ErrStoreNotOpen       = errors.New("store is not open")
	ErrEntryNotFound      = errors.New("entry not found")
	ErrEntryExists        = errors.New("entry already exists")
	ErrNoSuchParent       = errors.New("parent entry does not exist")
	ErrNotLeaf            = errors.New("operation not allowed on non-leaf entry")
	ErrAliasTargetMissing = errors.New("alias target does not exist")
	ErrAliasReferenced    = errors.New("entry is the target of an alias")
	ErrInvalidEntry       = errors.New("invalid entry")
	ErrRecoveryFailed     = errors.New("recovery failed")
	ErrNeedsRecovery      = errors.New("store needs recovery")
)

// Directory names below the data directory.
const (
	indexDirName  = "index"
	masterDirName = "master"
)

type state int

const (
	stateNotOpen state = iota
	stateOpen
	stateClosed
)

// Options carries dependencies that do not belong in the configuration file.
type Options struct {
	// Logger receives store events. Nil disables logging.
	Logger logging.Logger

	// FS overrides the filesystem of the pebble index backend.
	FS vfs.FS
}

// Store owns the index manager, the master table and the transaction log.
// Structural operations are serialized; reads run concurrently.
type Store struct {
	cfg    config.StorageConfig
	logger logging.Logger

	indexes     *index.Manager
	master      *master.Table
	log         *txlog.Log
	checkpoints *txlog.CheckpointManager

	// volatile is set for the memory backend, where only the log survives
	// a restart.
	volatile bool

	// suffix holds the components of the context entry DN, leaf first.
	suffix []string

	oneLevel    index.Index
	oneAlias    index.Index
	subLevel    index.Index
	subAlias    index.Index
	alias       index.Index
	rdn         index.Index
	presence    index.Index
	objectClass index.Index

	replay txlog.ReplayStats

	// mu serializes Add, Delete, Modify and Checkpoint.
	mu sync.Mutex

	// failed holds the error of a logged transaction that could not be
	// applied. Guarded by mu.
	failed error

	stateMu sync.RWMutex
	state   state

	stop chan struct{}
	wg   sync.WaitGroup
}

// Open opens the store described by cfg and replays the transaction log.
// The store is returned only after recovery completed; on failure every
// component is closed and the error wraps ErrRecoveryFailed.
func Open(cfg *config.Config, opts Options) (*Store, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("store")

	s := &Store{
		cfg:      cfg.Storage,
		logger:   logger,
		volatile: cfg.Storage.IndexBackend == config.BackendMemory,
		stop:     make(chan struct{}),
	}

	if cfg.Storage.Suffix != "" {
		suffix, err := dn.Parse(cfg.Storage.Suffix)
		if err != nil {
			return nil, fmt.Errorf("suffix %q: %w", cfg.Storage.Suffix, err)
		}
		s.suffix = suffix
	}

	defs, err := indexDefinitions(cfg.Indexes)
	if err != nil {
		return nil, err
	}

	if err := s.openComponents(defs, opts); err != nil {
		s.closeComponents()
		if errors.Is(err, txlog.ErrLogCorrupt) {
			logger.Error("recovery failed", "error", err)
			return nil, fmt.Errorf("%w: %w", ErrRecoveryFailed, err)
		}
		return nil, err
	}

	start := time.Now()
	stats, err := txlog.NewReplayer(s.log, s.indexes, s.master, logger.Named("replay")).Recover()
	if err != nil {
		s.closeComponents()
		logger.Error("recovery failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrRecoveryFailed, err)
	}
	s.replay = stats
	recoveryDuration.Observe(time.Since(start).Seconds())

	s.setState(stateOpen)

	if cfg.Storage.CheckpointInterval > 0 && !s.volatile {
		s.wg.Add(1)
		go s.checkpointLoop(cfg.Storage.CheckpointInterval)
	}

	logger.Info("store opened",
		"backend", cfg.Storage.IndexBackend,
		"data_dir", cfg.Storage.DataDir,
		"suffix", dn.Join(s.suffix),
		"replayed_transactions", stats.Committed,
	)
	return s, nil
}

func indexDefinitions(indexes []config.IndexConfig) ([]index.Definition, error) {
	defs := make([]index.Definition, 0, len(indexes))
	for _, ic := range indexes {
		keyType := index.KeyString
		if ic.KeyType != "" {
			kt, ok := index.ParseKeyType(ic.KeyType)
			if !ok {
				return nil, fmt.Errorf("index %q: unknown key type %q", ic.Attribute, ic.KeyType)
			}
			keyType = kt
		}
		defs = append(defs, index.Definition{
			Attribute: ic.Attribute,
			OID:       ic.OID,
			KeyType:   keyType,
		})
	}
	return defs, nil
}

func (s *Store) openComponents(defs []index.Definition, opts Options) error {
	var backend index.Backend
	if s.volatile {
		backend = index.NewMemoryBackend()
	} else {
		b, err := index.OpenPebbleBackend(filepath.Join(s.cfg.DataDir, indexDirName), index.PebbleOptions{
			FS:         opts.FS,
			SyncWrites: s.cfg.SyncWrites,
		})
		if err != nil {
			return err
		}
		backend = b
	}

	indexes, err := index.NewManager(backend, defs)
	if err != nil {
		backend.Close()
		return err
	}
	s.indexes = indexes

	for _, sys := range []struct {
		oid string
		dst *index.Index
	}{
		{index.OIDOneLevel, &s.oneLevel},
		{index.OIDOneAlias, &s.oneAlias},
		{index.OIDSubLevel, &s.subLevel},
		{index.OIDSubAlias, &s.subAlias},
		{index.OIDAlias, &s.alias},
		{index.OIDRDN, &s.rdn},
		{index.OIDPresence, &s.presence},
		{index.OIDObjectClass, &s.objectClass},
	} {
		idx, err := indexes.Index(sys.oid)
		if err != nil {
			return err
		}
		*sys.dst = idx
	}

	masterCfg := master.DefaultConfig(filepath.Join(s.cfg.DataDir, masterDirName))
	if s.volatile {
		masterCfg = master.InMemoryConfig()
	}
	masterCfg.SyncWrites = s.cfg.SyncWrites
	if s.cfg.CacheSize > 0 {
		masterCfg.CacheSize = s.cfg.CacheSize
	}
	masterCfg.Logger = s.logger
	if s.master, err = master.Open(masterCfg); err != nil {
		return err
	}

	if s.log, err = txlog.OpenLog(s.cfg.LogPath(), txlog.Options{
		SyncWrites: s.cfg.SyncWrites,
		Logger:     s.logger.Named("txlog"),
	}); err != nil {
		return err
	}

	s.checkpoints = txlog.NewCheckpointManager(s.log, s.indexes, s.master)
	return nil
}

// closeComponents closes whatever was opened and returns the first error.
func (s *Store) closeComponents() error {
	var errs []error
	if s.log != nil {
		errs = append(errs, s.log.Close())
	}
	if s.master != nil {
		errs = append(errs, s.master.Close())
	}
	if s.indexes != nil {
		errs = append(errs, s.indexes.Close())
	}
	return errors.Join(errs...)
}

func (s *Store) setState(st state) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

// checkOpen returns ErrStoreNotOpen or ErrStoreClosed unless the store
// accepts operations.
func (s *Store) checkOpen() error {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()

	switch s.state {
	case stateOpen:
		return nil
	case stateClosed:
		return ErrStoreClosed
	default:
		return ErrStoreNotOpen
	}
}

// checkWritable is checkOpen for callers holding mu that are about to
// mutate the store or truncate the log.
func (s *Store) checkWritable() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.failed != nil {
		return fmt.Errorf("%w: %w", ErrNeedsRecovery, s.failed)
	}
	return nil
}

// NeedsRecovery reports whether a logged transaction failed to apply. Such
// a store refuses writes and checkpoints until it is reopened.
func (s *Store) NeedsRecovery() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed != nil
}

// Close stops the checkpointer, takes a final checkpoint and closes every
// component. A store that needs recovery skips the checkpoint so the next
// open replays the unapplied transaction.
func (s *Store) Close() error {
	s.stateMu.Lock()
	if s.state != stateOpen {
		s.stateMu.Unlock()
		return nil
	}
	s.state = stateClosed
	s.stateMu.Unlock()

	close(s.stop)
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.failed != nil {
		s.logger.Warn("skipping final checkpoint, store needs recovery", "error", s.failed)
	} else if !s.volatile {
		if _, err := s.checkpoints.Checkpoint(); err != nil {
			errs = append(errs, fmt.Errorf("final checkpoint: %w", err))
		}
	}
	errs = append(errs, s.closeComponents())

	s.logger.Info("store closed")
	return errors.Join(errs...)
}

// ReplayStats returns what the replay at open found in the log.
func (s *Store) ReplayStats() txlog.ReplayStats {
	return s.replay
}

// Index returns the index of oid.
func (s *Store) Index(oid string) (index.Index, error) {
	return s.indexes.Index(oid)
}

// IndexByName returns the index of an attribute name or OID.
func (s *Store) IndexByName(attr string) (index.Index, error) {
	return s.indexes.IndexByName(attr)
}

// Indexes returns every index ordered by OID.
func (s *Store) Indexes() []index.Index {
	return s.indexes.ListIndexes()
}

func (s *Store) OneLevelIndex() index.Index    { return s.oneLevel }
func (s *Store) OneAliasIndex() index.Index    { return s.oneAlias }
func (s *Store) SubLevelIndex() index.Index    { return s.subLevel }
func (s *Store) SubAliasIndex() index.Index    { return s.subAlias }
func (s *Store) AliasIndex() index.Index       { return s.alias }
func (s *Store) RDNIndex() index.Index         { return s.rdn }
func (s *Store) PresenceIndex() index.Index    { return s.presence }
func (s *Store) ObjectClassIndex() index.Index { return s.objectClass }

// Log returns the transaction log.
func (s *Store) Log() *txlog.Log {
	return s.log
}

// Suffix returns the normalized DN of the context entry, or "" when any
// single-component DN may be a context entry.
func (s *Store) Suffix() string {
	return strings.Join(s.suffix, ",")
}
