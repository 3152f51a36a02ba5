package index

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/KilimcininKorOglu/dirstore/internal/storage/cursor"
)

// Index errors.
var (
	ErrIndexExists    = errors.New("index already exists")
	ErrIndexNotFound  = errors.New("index not found")
	ErrUnsupportedKey = errors.New("unsupported index key")
	ErrCorruptKey     = errors.New("corrupt index key")
	ErrIndexClosed    = errors.New("index is closed")
)

// Index maps attribute values to entry ids through two coupled tables:
// forward (key -> ids) and reverse (id -> keys). Every (key, id) pair is
// present in both tables or in neither, except after an interrupted write.
type Index interface {
	// AttributeID returns the OID of the indexed attribute.
	AttributeID() string

	// Name returns the attribute name.
	Name() string

	// IsSystem reports whether the index is maintained by the store itself.
	IsSystem() bool

	// KeyType returns the key type of user attribute values.
	KeyType() KeyType

	// Add inserts (key, id) into the forward then the reverse table.
	Add(key Key, id uuid.UUID) error

	// Drop removes (key, id) from the forward then the reverse table.
	Drop(key Key, id uuid.UUID) error

	// DropID removes every key of id.
	DropID(id uuid.UUID) error

	// Forward reports whether the forward table holds (key, id).
	Forward(key Key, id uuid.UUID) (bool, error)

	// Reverse reports whether the reverse table holds (id, key).
	Reverse(id uuid.UUID, key Key) (bool, error)

	// ForwardLookup returns the first id stored under key.
	ForwardLookup(key Key) (uuid.UUID, bool, error)

	// ReverseLookup returns the first key stored for id.
	ReverseLookup(id uuid.UUID) (Key, bool, error)

	// ForwardCount returns the number of ids stored under key.
	ForwardCount(key Key) (int, error)

	// Count returns the number of pairs in the forward table.
	Count() (int, error)

	// ForwardCursor returns a cursor over the ids of key, or over the whole
	// forward table when key is nil.
	ForwardCursor(key Key) (cursor.Cursor[Entry], error)

	// ForwardCursorFrom returns a cursor over the forward table starting at
	// the first key not less than key.
	ForwardCursorFrom(key Key) (cursor.Cursor[Entry], error)

	// ReverseCursor returns a cursor over the keys of id, or over the whole
	// reverse table when id is nil.
	ReverseCursor(id *uuid.UUID) (cursor.Cursor[Entry], error)

	Sync() error
	Close() error
}

// tableIndex implements Index over a pair of backend tables.
type tableIndex struct {
	oid     string
	name    string
	system  bool
	keyType KeyType
	backend Backend
	forward table
	reverse table
	mu      sync.RWMutex
	closed  bool
}

// newTableIndex creates an index whose tables live in backend.
func newTableIndex(backend Backend, oid, name string, system bool, keyType KeyType) *tableIndex {
	return &tableIndex{
		oid:     oid,
		name:    name,
		system:  system,
		keyType: keyType,
		backend: backend,
		forward: backend.table(tableName(oid, forwardSide)),
		reverse: backend.table(tableName(oid, reverseSide)),
	}
}

func (x *tableIndex) AttributeID() string { return x.oid }
func (x *tableIndex) Name() string        { return x.name }
func (x *tableIndex) IsSystem() bool      { return x.system }
func (x *tableIndex) KeyType() KeyType    { return x.keyType }

func (x *tableIndex) Add(key Key, id uuid.UUID) error {
	enc, err := encodeKey(key)
	if err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return ErrIndexClosed
	}

	if err := addPosting(x.forward, enc, id[:]); err != nil {
		return fmt.Errorf("index %s: forward add: %w", x.name, err)
	}
	if err := addPosting(x.reverse, id[:], enc); err != nil {
		return fmt.Errorf("index %s: reverse add: %w", x.name, err)
	}

	indexOperations.WithLabelValues(x.name, "add").Inc()
	return nil
}

func (x *tableIndex) Drop(key Key, id uuid.UUID) error {
	enc, err := encodeKey(key)
	if err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return ErrIndexClosed
	}

	if err := dropPosting(x.forward, enc, id[:]); err != nil {
		return fmt.Errorf("index %s: forward drop: %w", x.name, err)
	}
	if err := dropPosting(x.reverse, id[:], enc); err != nil {
		return fmt.Errorf("index %s: reverse drop: %w", x.name, err)
	}

	indexOperations.WithLabelValues(x.name, "drop").Inc()
	return nil
}

func (x *tableIndex) DropID(id uuid.UUID) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return ErrIndexClosed
	}

	keys, err := x.reverse.get(id[:])
	if err != nil {
		return err
	}

	for _, enc := range keys {
		if err := dropPosting(x.forward, enc, id[:]); err != nil {
			return fmt.Errorf("index %s: forward drop: %w", x.name, err)
		}
	}
	if err := x.reverse.put(id[:], nil); err != nil {
		return fmt.Errorf("index %s: reverse drop: %w", x.name, err)
	}

	indexOperations.WithLabelValues(x.name, "drop").Add(float64(len(keys)))
	return nil
}

// addPosting appends value to the posting list of key unless present.
func addPosting(t table, key, value []byte) error {
	values, err := t.get(key)
	if err != nil {
		return err
	}
	if containsValue(values, value) {
		return nil
	}

	updated := make([][]byte, len(values), len(values)+1)
	copy(updated, values)
	return t.put(key, append(updated, bytes.Clone(value)))
}

// dropPosting removes value from the posting list of key if present.
func dropPosting(t table, key, value []byte) error {
	values, err := t.get(key)
	if err != nil {
		return err
	}

	i := slices.IndexFunc(values, func(v []byte) bool { return bytes.Equal(v, value) })
	if i < 0 {
		return nil
	}

	updated := make([][]byte, 0, len(values)-1)
	updated = append(updated, values[:i]...)
	updated = append(updated, values[i+1:]...)
	return t.put(key, updated)
}

func containsValue(values [][]byte, value []byte) bool {
	for _, v := range values {
		if bytes.Equal(v, value) {
			return true
		}
	}
	return false
}

func (x *tableIndex) Forward(key Key, id uuid.UUID) (bool, error) {
	enc, err := encodeKey(key)
	if err != nil {
		return false, err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	ids, err := x.forward.get(enc)
	if err != nil {
		return false, err
	}
	return containsValue(ids, id[:]), nil
}

func (x *tableIndex) Reverse(id uuid.UUID, key Key) (bool, error) {
	enc, err := encodeKey(key)
	if err != nil {
		return false, err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	keys, err := x.reverse.get(id[:])
	if err != nil {
		return false, err
	}
	return containsValue(keys, enc), nil
}

func (x *tableIndex) ForwardLookup(key Key) (uuid.UUID, bool, error) {
	enc, err := encodeKey(key)
	if err != nil {
		return uuid.Nil, false, err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	ids, err := x.forward.get(enc)
	if err != nil || len(ids) == 0 {
		return uuid.Nil, false, err
	}

	id, err := uuid.FromBytes(ids[0])
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("%w: %v", ErrCorruptKey, err)
	}
	return id, true, nil
}

func (x *tableIndex) ReverseLookup(id uuid.UUID) (Key, bool, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	keys, err := x.reverse.get(id[:])
	if err != nil || len(keys) == 0 {
		return nil, false, err
	}

	key, err := decodeKey(keys[0])
	if err != nil {
		return nil, false, err
	}
	return key, true, nil
}

func (x *tableIndex) ForwardCount(key Key) (int, error) {
	enc, err := encodeKey(key)
	if err != nil {
		return 0, err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return 0, ErrIndexClosed
	}

	ids, err := x.forward.get(enc)
	return len(ids), err
}

func (x *tableIndex) Count() (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return 0, ErrIndexClosed
	}

	it, err := x.forward.iter(nil, nil)
	if err != nil {
		return 0, err
	}
	defer it.close()

	count := 0
	for ok := it.first(); ok; ok = it.next() {
		values, err := it.values()
		if err != nil {
			return 0, err
		}
		count += len(values)
	}
	return count, nil
}

func (x *tableIndex) ForwardCursor(key Key) (cursor.Cursor[Entry], error) {
	if key == nil {
		return x.openCursor(x.forward, nil, nil, forwardCodec)
	}

	enc, err := encodeKey(key)
	if err != nil {
		return nil, err
	}
	return x.openCursor(x.forward, enc, exactBound(enc), forwardCodec)
}

func (x *tableIndex) ForwardCursorFrom(key Key) (cursor.Cursor[Entry], error) {
	enc, err := encodeKey(key)
	if err != nil {
		return nil, err
	}
	return x.openCursor(x.forward, enc, nil, forwardCodec)
}

func (x *tableIndex) ReverseCursor(id *uuid.UUID) (cursor.Cursor[Entry], error) {
	if id == nil {
		return x.openCursor(x.reverse, nil, nil, reverseCodec)
	}
	lower := bytes.Clone(id[:])
	return x.openCursor(x.reverse, lower, exactBound(lower), reverseCodec)
}

func (x *tableIndex) openCursor(t table, lower, upper []byte, codec entryCodec) (cursor.Cursor[Entry], error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return nil, ErrIndexClosed
	}

	it, err := t.iter(lower, upper)
	if err != nil {
		return nil, fmt.Errorf("index %s: open cursor: %w", x.name, err)
	}
	return newTableCursor(it, codec), nil
}

func (x *tableIndex) Sync() error {
	return x.backend.Sync()
}

// Close marks the index closed. The backend is closed by its owner.
func (x *tableIndex) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.closed = true
	return nil
}
