// Package master implements the master table of the directory store: entry
// id to opaque entry payload, on BadgerDB with an LRU read cache.
package master

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/KilimcininKorOglu/dirstore/internal/logging"
)

// Master table errors.
var (
	ErrNotFound    = errors.New("entry not found in master table")
	ErrTableClosed = errors.New("master table is closed")
)

var keyPrefix = []byte{'E'}

// Config holds configuration for the master table.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory keeps the table in memory only. Useful for testing.
	InMemory bool

	// SyncWrites makes every write durable before it returns.
	SyncWrites bool

	// CacheSize is the number of payloads kept in the read cache.
	// Zero disables the cache.
	CacheSize int

	// GCDiscardRatio is the minimum ratio of discardable data before value
	// log garbage collection rewrites a file.
	GCDiscardRatio float64

	// Logger receives BadgerDB's own log output. Nil disables it.
	Logger logging.Logger
}

// DefaultConfig returns production defaults for path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		CacheSize:      10000,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{
		InMemory:       true,
		CacheSize:      128,
		GCDiscardRatio: 0.5,
	}
}

// badgerLogger adapts logging.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger logging.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Table stores entry payloads keyed by entry id. Payloads are copied on the
// way in and out, so callers own what they pass and receive.
type Table struct {
	db       *badger.DB
	cache    *lru.Cache[uuid.UUID, []byte]
	inMemory bool
	gcRatio  float64
	logger   logging.Logger
}

// Open opens the master table with the given configuration.
func Open(cfg Config) (*Table, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent master table")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create master table directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	logger := cfg.Logger
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger.Named("badger")})
	} else {
		opts = opts.WithLogger(nil)
		logger = logging.NewNop()
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open master table: %w", err)
	}

	t := &Table{
		db:       db,
		inMemory: cfg.InMemory,
		gcRatio:  cfg.GCDiscardRatio,
		logger:   logger,
	}

	if cfg.CacheSize > 0 {
		cache, err := lru.New[uuid.UUID, []byte](cfg.CacheSize)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("create master table cache: %w", err)
		}
		t.cache = cache
	}

	return t, nil
}

func entryKey(id uuid.UUID) []byte {
	key := make([]byte, 0, len(keyPrefix)+16)
	key = append(key, keyPrefix...)
	return append(key, id[:]...)
}

// Put stores payload under id, replacing any previous payload.
func (t *Table) Put(id uuid.UUID, payload []byte) error {
	value := bytes.Clone(payload)
	if value == nil {
		value = []byte{}
	}

	err := t.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(id), value)
	})
	if err != nil {
		return t.wrap("put", err)
	}

	if t.cache != nil {
		t.cache.Add(id, value)
	}
	masterOperations.WithLabelValues("put").Inc()
	return nil
}

// Get returns a copy of the payload stored under id.
// Returns ErrNotFound if id has no payload.
func (t *Table) Get(id uuid.UUID) ([]byte, error) {
	if t.cache != nil {
		if value, ok := t.cache.Get(id); ok {
			cacheLookups.WithLabelValues("hit").Inc()
			return bytes.Clone(value), nil
		}
		cacheLookups.WithLabelValues("miss").Inc()
	}

	var value []byte
	err := t.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(id))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, t.wrap("get", err)
	}

	if t.cache != nil {
		t.cache.Add(id, value)
	}
	masterOperations.WithLabelValues("get").Inc()
	return bytes.Clone(value), nil
}

// Has reports whether id has a payload.
func (t *Table) Has(id uuid.UUID) (bool, error) {
	_, err := t.Get(id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Delete removes the payload of id. Deleting a missing id is not an error.
func (t *Table) Delete(id uuid.UUID) error {
	err := t.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(entryKey(id))
	})
	if err != nil {
		return t.wrap("delete", err)
	}

	if t.cache != nil {
		t.cache.Remove(id)
	}
	masterOperations.WithLabelValues("delete").Inc()
	return nil
}

// ForEach calls fn for every stored entry in id order. Iteration stops at
// the first error returned by fn.
func (t *Table) ForEach(fn func(id uuid.UUID, payload []byte) error) error {
	return t.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			item := it.Item()
			id, err := uuid.FromBytes(item.Key()[len(keyPrefix):])
			if err != nil {
				return fmt.Errorf("master table key: %w", err)
			}
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(id, value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of stored entries.
func (t *Table) Count() (int, error) {
	count := 0
	err := t.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Sync flushes pending writes to disk.
func (t *Table) Sync() error {
	if t.inMemory {
		return nil
	}
	return t.wrap("sync", t.db.Sync())
}

// RunGC runs one round of value log garbage collection.
func (t *Table) RunGC() error {
	if t.inMemory {
		return nil
	}

	err := t.db.RunValueLogGC(t.gcRatio)
	if err == nil {
		t.logger.Debug("master table value log GC completed")
		return nil
	}
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return t.wrap("gc", err)
}

// Close closes the table.
func (t *Table) Close() error {
	if t.cache != nil {
		t.cache.Purge()
	}
	return t.db.Close()
}

func (t *Table) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrTableClosed
	}
	return fmt.Errorf("master table %s: %w", op, err)
}
