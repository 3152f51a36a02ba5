package txlog

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/KilimcininKorOglu/dirstore/internal/storage/index"
)

// Op is the operation carried by an IndexEdit.
type Op int32

const (
	// OpAdd inserts the (key, id) pair.
	OpAdd Op = iota
	// OpDelete removes the (key, id) pair.
	OpDelete
)

// String returns the string representation of an Op.
func (o Op) String() string {
	switch o {
	case OpAdd:
		return "ADD"
	case OpDelete:
		return "DELETE"
	default:
		return fmt.Sprintf("Op(%d)", int32(o))
	}
}

// IndexSource resolves an index by attribute OID.
type IndexSource interface {
	Index(oid string) (index.Index, error)
}

// IndexEdit is one logged change to a single (key, id) pair of an index.
// IsSystemIndex is not serialized; it is derived from the attribute OID.
type IndexEdit struct {
	AttributeID   string
	Key           index.Key
	ID            uuid.UUID
	Op            Op
	IsSystemIndex bool
}

// NewIndexEdit creates an edit for the index of oid.
func NewIndexEdit(oid string, key index.Key, id uuid.UUID, op Op) *IndexEdit {
	return &IndexEdit{
		AttributeID:   oid,
		Key:           key,
		ID:            id,
		Op:            op,
		IsSystemIndex: index.IsSystemOID(oid),
	}
}

// RecordType implements Edit.
func (e *IndexEdit) RecordType() RecordType {
	return RecordIndexChange
}

// Encode serializes the edit:
//
//	UTF(oid) | tag | key payload | UTF(entry id) | int32 op
//
// All integers are big-endian and UTF strings carry a uint16 length prefix.
func (e *IndexEdit) Encode() ([]byte, error) {
	if e.Key == nil {
		return nil, fmt.Errorf("%w: nil key", index.ErrUnsupportedKey)
	}
	if e.Op != OpAdd && e.Op != OpDelete {
		return nil, fmt.Errorf("%w: %d", ErrUnknownOp, int32(e.Op))
	}

	w := &writer{buf: make([]byte, 0, 64)}
	w.utf(e.AttributeID)
	w.byte(byte(e.Key.Kind()))

	switch k := e.Key.(type) {
	case index.StringKey:
		w.utf(string(k))
	case index.LongKey:
		w.int64(int64(k))
	case index.BytesKey:
		w.bytes(k)
	case index.ParentIDAndRDN:
		w.id(k.ParentID)
		w.int32(int32(len(k.RDNs)))
		for _, rdn := range k.RDNs {
			w.utf(rdn)
		}
	case index.IDKey:
		w.id(uuid.UUID(k))
	case index.OpaqueKey:
		w.utf(k.TypeName)
		w.bytes(k.Data)
	default:
		return nil, fmt.Errorf("%w: %T", index.ErrUnsupportedKey, e.Key)
	}

	w.utf(e.ID.String())
	w.int32(int32(e.Op))

	if w.err != nil {
		return nil, w.err
	}
	return w.buf, nil
}

// DecodeIndexEdit decodes an IndexChange payload. Decoding dispatches on
// the key type tag; an unknown tag, an unknown op, a truncated payload or a
// malformed entry id yields a *DecodeError.
func DecodeIndexEdit(data []byte) (*IndexEdit, error) {
	r := &reader{buf: data}

	oid := r.utf("attribute oid")
	tagOffset := r.off
	tag := index.KeyType(r.byte("key type"))
	if r.err != nil {
		return nil, r.err
	}

	var key index.Key
	switch tag {
	case index.KeyString:
		key = index.StringKey(r.utf("string key"))
	case index.KeyLong:
		key = index.LongKey(r.int64("long key"))
	case index.KeyBytes:
		key = index.BytesKey(r.bytes("bytes key"))
	case index.KeyComposite:
		parent := r.id("parent id")
		count := r.int32("rdn count")
		if r.err == nil && (count < 0 || int(count) > len(r.buf)-r.off) {
			r.fail(fmt.Sprintf("rdn count %d", count), ErrTruncated)
		}
		var rdns []string
		for i := 0; r.err == nil && i < int(count); i++ {
			rdns = append(rdns, r.utf("rdn"))
		}
		key = index.ParentIDAndRDN{ParentID: parent, RDNs: rdns}
	case index.KeyID:
		key = index.IDKey(r.id("id key"))
	case index.KeyOpaque:
		typeName := r.utf("opaque type")
		key = index.OpaqueKey{TypeName: typeName, Data: r.bytes("opaque data")}
	default:
		return nil, &DecodeError{
			Offset: tagOffset,
			Reason: fmt.Sprintf("key type tag %d", byte(tag)),
			Err:    ErrUnknownKeyType,
		}
	}

	idOffset := r.off
	idText := r.utf("entry id")
	if r.err != nil {
		return nil, r.err
	}
	id, err := uuid.Parse(idText)
	if err != nil {
		return nil, &DecodeError{Offset: idOffset, Reason: fmt.Sprintf("entry id %q", idText), Err: ErrMalformedID}
	}

	opOffset := r.off
	op := Op(r.int32("op"))
	if r.err != nil {
		return nil, r.err
	}
	if op != OpAdd && op != OpDelete {
		return nil, &DecodeError{Offset: opOffset, Reason: fmt.Sprintf("op ordinal %d", int32(op)), Err: ErrUnknownOp}
	}

	if err := r.done(); err != nil {
		return nil, err
	}

	return NewIndexEdit(oid, key, id, op), nil
}

// Apply applies the edit to the index it names. In normal operation ADD
// adds and DELETE drops. During recovery a DELETE first inspects both
// tables: a torn pair is re-added so that the following drop clears both
// sides, an intact pair is dropped, and an absent pair is left alone.
func (e *IndexEdit) Apply(src IndexSource, recovery bool) error {
	idx, err := src.Index(e.AttributeID)
	if err != nil {
		return fmt.Errorf("apply %s on %s: %w", e.Op, e.AttributeID, err)
	}

	switch e.Op {
	case OpAdd:
		return idx.Add(e.Key, e.ID)
	case OpDelete:
		if !recovery {
			return idx.Drop(e.Key, e.ID)
		}
		return healAndDrop(idx, e.Key, e.ID)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownOp, int32(e.Op))
	}
}

func healAndDrop(idx index.Index, key index.Key, id uuid.UUID) error {
	forwardExists, err := idx.Forward(key, id)
	if err != nil {
		return err
	}
	reverseExists, err := idx.Reverse(id, key)
	if err != nil {
		return err
	}

	switch {
	case forwardExists != reverseExists:
		healedPairs.WithLabelValues(idx.Name()).Inc()
		if err := idx.Add(key, id); err != nil {
			return err
		}
		return idx.Drop(key, id)
	case forwardExists:
		return idx.Drop(key, id)
	default:
		return nil
	}
}

// String returns a short description of the edit.
func (e *IndexEdit) String() string {
	return fmt.Sprintf("%s %s[%s] %s", e.Op, e.AttributeID, e.Key, e.ID)
}
