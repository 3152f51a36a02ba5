package index

import (
	"bytes"
	"cmp"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// KeyType identifies the concrete type of an index key. The numeric values
// are the tags used by the transaction log codec and must not change.
type KeyType byte

// Key types.
const (
	KeyString    KeyType = 0
	KeyLong      KeyType = 1
	KeyBytes     KeyType = 2
	KeyComposite KeyType = 3
	KeyID        KeyType = 4
	KeyOpaque    KeyType = 5
)

// String returns the string representation of the key type.
func (t KeyType) String() string {
	switch t {
	case KeyString:
		return "string"
	case KeyLong:
		return "long"
	case KeyBytes:
		return "bytes"
	case KeyComposite:
		return "composite"
	case KeyID:
		return "id"
	case KeyOpaque:
		return "opaque"
	default:
		return "unknown"
	}
}

// ParseKeyType parses a configured key type name.
func ParseKeyType(s string) (KeyType, bool) {
	switch strings.ToLower(s) {
	case "", "string":
		return KeyString, true
	case "long":
		return KeyLong, true
	case "bytes":
		return KeyBytes, true
	default:
		return 0, false
	}
}

// Key is a typed index key.
type Key interface {
	Kind() KeyType
	String() string
}

// StringKey is a normalized attribute value.
type StringKey string

// LongKey is an integer attribute value.
type LongKey int64

// BytesKey is a binary attribute value.
type BytesKey []byte

// ParentIDAndRDN keys the RDN index: the parent entry and the normalized RDN
// of the child.
type ParentIDAndRDN struct {
	ParentID uuid.UUID
	RDNs     []string
}

// IDKey uses an entry id as the key value, as in the alias and scope indexes.
type IDKey uuid.UUID

// OpaqueKey carries a value of a type the index does not interpret.
type OpaqueKey struct {
	TypeName string
	Data     []byte
}

func (StringKey) Kind() KeyType      { return KeyString }
func (LongKey) Kind() KeyType        { return KeyLong }
func (BytesKey) Kind() KeyType       { return KeyBytes }
func (ParentIDAndRDN) Kind() KeyType { return KeyComposite }
func (IDKey) Kind() KeyType          { return KeyID }
func (OpaqueKey) Kind() KeyType      { return KeyOpaque }

func (k StringKey) String() string { return string(k) }
func (k LongKey) String() string   { return strconv.FormatInt(int64(k), 10) }
func (k BytesKey) String() string  { return hex.EncodeToString(k) }
func (k IDKey) String() string     { return uuid.UUID(k).String() }

func (k ParentIDAndRDN) String() string {
	return k.ParentID.String() + "/" + strings.Join(k.RDNs, ",")
}

func (k OpaqueKey) String() string {
	return k.TypeName + ":" + hex.EncodeToString(k.Data)
}

// Compare orders two keys. Keys of different types order by type tag.
func Compare(a, b Key) int {
	if c := cmp.Compare(a.Kind(), b.Kind()); c != 0 {
		return c
	}

	switch ka := a.(type) {
	case StringKey:
		return strings.Compare(string(ka), string(b.(StringKey)))
	case LongKey:
		return cmp.Compare(ka, b.(LongKey))
	case BytesKey:
		return bytes.Compare(ka, b.(BytesKey))
	case IDKey:
		kb := b.(IDKey)
		return bytes.Compare(ka[:], kb[:])
	case ParentIDAndRDN:
		kb := b.(ParentIDAndRDN)
		if c := bytes.Compare(ka.ParentID[:], kb.ParentID[:]); c != 0 {
			return c
		}
		for i := 0; i < len(ka.RDNs) && i < len(kb.RDNs); i++ {
			if c := strings.Compare(ka.RDNs[i], kb.RDNs[i]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(ka.RDNs), len(kb.RDNs))
	case OpaqueKey:
		kb := b.(OpaqueKey)
		if c := strings.Compare(ka.TypeName, kb.TypeName); c != 0 {
			return c
		}
		return bytes.Compare(ka.Data, kb.Data)
	}
	return 0
}

// Equal reports whether two keys are equal.
func Equal(a, b Key) bool {
	return Compare(a, b) == 0
}

// CompareEntries orders cursor entries by key, then by id.
func CompareEntries(a, b Entry) int {
	if c := Compare(a.Key, b.Key); c != 0 {
		return c
	}
	return bytes.Compare(a.ID[:], b.ID[:])
}

// Entry is a (key, id) pair returned by index cursors.
type Entry struct {
	Key Key
	ID  uuid.UUID
}
