package index

import (
	"bytes"
	"sync"

	"github.com/google/btree"
)

const memDegree = 32

type memItem struct {
	key    []byte
	values [][]byte
}

func memLess(a, b memItem) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// memoryBackend keeps every table in a google/btree. Items are replaced,
// never mutated, so a cloned tree is a stable snapshot.
type memoryBackend struct {
	mu     sync.Mutex
	tables map[string]*memTable
}

// NewMemoryBackend creates an in-memory table backend.
func NewMemoryBackend() Backend {
	return &memoryBackend{tables: make(map[string]*memTable)}
}

func (b *memoryBackend) Name() string { return "memory" }
func (b *memoryBackend) Sync() error  { return nil }

func (b *memoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tables = make(map[string]*memTable)
	return nil
}

func (b *memoryBackend) table(name []byte) table {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.tables[string(name)]
	if !ok {
		t = &memTable{tree: btree.NewG(memDegree, memLess)}
		b.tables[string(name)] = t
	}
	return t
}

type memTable struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[memItem]
}

func (t *memTable) get(key []byte) ([][]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	item, ok := t.tree.Get(memItem{key: key})
	if !ok {
		return nil, nil
	}
	return item.values, nil
}

func (t *memTable) put(key []byte, values [][]byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(values) == 0 {
		t.tree.Delete(memItem{key: key})
		return nil
	}
	t.tree.ReplaceOrInsert(memItem{key: bytes.Clone(key), values: values})
	return nil
}

func (t *memTable) iter(lower, upper []byte) (tableIter, error) {
	t.mu.Lock()
	snapshot := t.tree.Clone()
	t.mu.Unlock()

	return &memIter{tree: snapshot, lower: lower, upper: upper}, nil
}

// memIter steps through a snapshot by re-seeking from the current key.
type memIter struct {
	tree         *btree.BTreeG[memItem]
	lower, upper []byte
	cur          memItem
	valid        bool
}

func (it *memIter) inBounds(key []byte) bool {
	if it.lower != nil && bytes.Compare(key, it.lower) < 0 {
		return false
	}
	return it.upper == nil || bytes.Compare(key, it.upper) < 0
}

func (it *memIter) set(item memItem, found bool) bool {
	it.valid = found && it.inBounds(item.key)
	if it.valid {
		it.cur = item
	}
	return it.valid
}

func (it *memIter) first() bool {
	if it.lower != nil {
		return it.seekGE(it.lower)
	}
	item, ok := it.tree.Min()
	return it.set(item, ok)
}

func (it *memIter) last() bool {
	if it.upper == nil {
		item, ok := it.tree.Max()
		return it.set(item, ok)
	}

	var found memItem
	var ok bool
	it.tree.DescendLessOrEqual(memItem{key: it.upper}, func(item memItem) bool {
		if bytes.Equal(item.key, it.upper) {
			return true
		}
		found, ok = item, true
		return false
	})
	return it.set(found, ok)
}

func (it *memIter) seekGE(key []byte) bool {
	if it.lower != nil && bytes.Compare(key, it.lower) < 0 {
		key = it.lower
	}

	var found memItem
	var ok bool
	it.tree.AscendGreaterOrEqual(memItem{key: key}, func(item memItem) bool {
		found, ok = item, true
		return false
	})
	return it.set(found, ok)
}

func (it *memIter) next() bool {
	if !it.valid {
		return false
	}

	var found memItem
	var ok bool
	it.tree.AscendGreaterOrEqual(it.cur, func(item memItem) bool {
		if bytes.Equal(item.key, it.cur.key) {
			return true
		}
		found, ok = item, true
		return false
	})
	return it.set(found, ok)
}

func (it *memIter) prev() bool {
	if !it.valid {
		return false
	}

	var found memItem
	var ok bool
	it.tree.DescendLessOrEqual(it.cur, func(item memItem) bool {
		if bytes.Equal(item.key, it.cur.key) {
			return true
		}
		found, ok = item, true
		return false
	})
	return it.set(found, ok)
}

func (it *memIter) key() []byte {
	return it.cur.key
}

func (it *memIter) values() ([][]byte, error) {
	return it.cur.values, nil
}

func (it *memIter) error() error {
	return nil
}

func (it *memIter) close() error {
	it.tree = nil
	it.valid = false
	return nil
}
