package txlog

import (
	"fmt"

	"github.com/google/uuid"
)

// EntryOp is the operation carried by an EntryEdit.
type EntryOp int32

const (
	// EntryPut stores the payload under the id.
	EntryPut EntryOp = iota
	// EntryDelete removes the id.
	EntryDelete
)

// String returns the string representation of an EntryOp.
func (o EntryOp) String() string {
	switch o {
	case EntryPut:
		return "PUT"
	case EntryDelete:
		return "DELETE"
	default:
		return fmt.Sprintf("EntryOp(%d)", int32(o))
	}
}

// EntryTarget receives replayed master table changes.
type EntryTarget interface {
	Put(id uuid.UUID, payload []byte) error
	Delete(id uuid.UUID) error
}

// EntryEdit records the master table change of a transaction.
type EntryEdit struct {
	ID      uuid.UUID
	Op      EntryOp
	Payload []byte
}

// RecordType implements Edit.
func (e *EntryEdit) RecordType() RecordType {
	return RecordEntryChange
}

// Encode serializes the edit as 16-byte id | int32 op | int32 len | payload.
func (e *EntryEdit) Encode() ([]byte, error) {
	if e.Op != EntryPut && e.Op != EntryDelete {
		return nil, fmt.Errorf("%w: %d", ErrUnknownOp, int32(e.Op))
	}

	w := &writer{buf: make([]byte, 0, 24+len(e.Payload))}
	w.id(e.ID)
	w.int32(int32(e.Op))
	w.bytes(e.Payload)
	return w.buf, nil
}

// DecodeEntryEdit decodes an EntryChange payload.
func DecodeEntryEdit(data []byte) (*EntryEdit, error) {
	r := &reader{buf: data}

	id := r.id("entry id")
	opOffset := r.off
	op := EntryOp(r.int32("op"))
	if r.err == nil && op != EntryPut && op != EntryDelete {
		return nil, &DecodeError{Offset: opOffset, Reason: fmt.Sprintf("entry op ordinal %d", int32(op)), Err: ErrUnknownOp}
	}
	payload := r.bytes("payload")

	if err := r.done(); err != nil {
		return nil, err
	}

	return &EntryEdit{ID: id, Op: op, Payload: payload}, nil
}

// Apply applies the edit to the master table. Both operations are
// idempotent, so replaying an already applied edit is harmless.
func (e *EntryEdit) Apply(target EntryTarget) error {
	switch e.Op {
	case EntryPut:
		return target.Put(e.ID, e.Payload)
	case EntryDelete:
		return target.Delete(e.ID)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownOp, int32(e.Op))
	}
}

// String returns a short description of the edit.
func (e *EntryEdit) String() string {
	return fmt.Sprintf("%s %s (%d bytes)", e.Op, e.ID, len(e.Payload))
}
