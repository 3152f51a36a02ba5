package index

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// PebbleOptions configures the pebble table backend.
type PebbleOptions struct {
	// FS overrides the filesystem, vfs.NewMem() in tests.
	FS vfs.FS

	// SyncWrites makes every table write durable before it returns.
	SyncWrites bool
}

// pebbleBackend stores every table as a key prefix in one pebble database.
type pebbleBackend struct {
	db        *pebble.DB
	writeOpts *pebble.WriteOptions
}

// OpenPebbleBackend opens or creates a pebble table backend in dir.
func OpenPebbleBackend(dir string, opts PebbleOptions) (Backend, error) {
	popts := &pebble.Options{}
	if opts.FS != nil {
		popts.FS = opts.FS
	}

	db, err := pebble.Open(dir, popts)
	if err != nil {
		return nil, fmt.Errorf("open index database: %w", err)
	}

	writeOpts := pebble.NoSync
	if opts.SyncWrites {
		writeOpts = pebble.Sync
	}

	return &pebbleBackend{db: db, writeOpts: writeOpts}, nil
}

func (b *pebbleBackend) Name() string { return "pebble" }

func (b *pebbleBackend) Sync() error {
	return b.db.Flush()
}

func (b *pebbleBackend) Close() error {
	return b.db.Close()
}

func (b *pebbleBackend) table(name []byte) table {
	return &pebbleTable{backend: b, prefix: bytes.Clone(name)}
}

type pebbleTable struct {
	backend *pebbleBackend
	prefix  []byte
}

func (t *pebbleTable) dbKey(key []byte) []byte {
	out := make([]byte, 0, len(t.prefix)+len(key))
	out = append(out, t.prefix...)
	return append(out, key...)
}

func (t *pebbleTable) get(key []byte) ([][]byte, error) {
	data, closer, err := t.backend.db.Get(t.dbKey(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	return decodePostings(data)
}

func (t *pebbleTable) put(key []byte, values [][]byte) error {
	if len(values) == 0 {
		return t.backend.db.Delete(t.dbKey(key), t.backend.writeOpts)
	}
	return t.backend.db.Set(t.dbKey(key), encodePostings(values), t.backend.writeOpts)
}

func (t *pebbleTable) iter(lower, upper []byte) (tableIter, error) {
	opts := &pebble.IterOptions{
		LowerBound: t.dbKey(lower),
		UpperBound: upperBound(t.prefix),
	}
	if upper != nil {
		opts.UpperBound = t.dbKey(upper)
	}

	it, err := t.backend.db.NewIter(opts)
	if err != nil {
		return nil, err
	}
	return &pebbleIter{it: it, table: t}, nil
}

type pebbleIter struct {
	it    *pebble.Iterator
	table *pebbleTable
}

func (p *pebbleIter) first() bool { return p.it.First() }
func (p *pebbleIter) last() bool  { return p.it.Last() }
func (p *pebbleIter) next() bool  { return p.it.Next() }
func (p *pebbleIter) prev() bool  { return p.it.Prev() }

func (p *pebbleIter) seekGE(key []byte) bool {
	return p.it.SeekGE(p.table.dbKey(key))
}

func (p *pebbleIter) key() []byte {
	return p.it.Key()[len(p.table.prefix):]
}

func (p *pebbleIter) values() ([][]byte, error) {
	if err := p.it.Error(); err != nil {
		return nil, err
	}
	return decodePostings(p.it.Value())
}

func (p *pebbleIter) error() error {
	return p.it.Error()
}

func (p *pebbleIter) close() error {
	return p.it.Close()
}
