package index

// table is an ordered map from byte keys to posting lists. Writing an empty
// posting list removes the key.
type table interface {
	get(key []byte) ([][]byte, error)
	put(key []byte, values [][]byte) error

	// iter opens an iterator bounded by [lower, upper). A nil bound is open.
	iter(lower, upper []byte) (tableIter, error)
}

// tableIter walks a consistent view of a table.
type tableIter interface {
	first() bool
	last() bool
	seekGE(key []byte) bool
	next() bool
	prev() bool
	key() []byte
	values() ([][]byte, error)
	error() error
	close() error
}

// Backend creates the tables of every index and owns their storage.
type Backend interface {
	// Name returns the backend kind, "memory" or "pebble".
	Name() string

	// Sync makes every table write durable.
	Sync() error

	// Close releases the backend.
	Close() error

	table(name []byte) table
}

// tableName returns the storage name of one side of an index.
func tableName(oid string, side byte) []byte {
	name := make([]byte, 0, len(oid)+3)
	name = append(name, 'I')
	name = append(name, oid...)
	return append(name, 0x00, side)
}

const (
	forwardSide = 'F'
	reverseSide = 'R'
)
