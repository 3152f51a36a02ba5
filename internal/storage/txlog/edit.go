package txlog

import (
	"errors"
	"fmt"
)

// Decode errors.
var (
	ErrUnknownKeyType = errors.New("unknown key type tag")
	ErrUnknownOp      = errors.New("unknown edit operation")
	ErrTruncated      = errors.New("truncated edit payload")
	ErrMalformedID    = errors.New("malformed entry id")
	ErrTrailingBytes  = errors.New("trailing bytes after edit")
)

// Edit is a logged mutation carried by an IndexChange or EntryChange record.
type Edit interface {
	// RecordType returns the record type the edit is logged under.
	RecordType() RecordType

	// Encode serializes the edit into a record payload.
	Encode() ([]byte, error)
}

// DecodeError reports a payload that passed the frame checksum but could
// not be decoded.
type DecodeError struct {
	Offset int
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode edit at offset %d: %s: %v", e.Offset, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode edit at offset %d: %s", e.Offset, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DecodeEdit decodes the payload of an edit record.
func DecodeEdit(record *Record) (Edit, error) {
	switch record.Type {
	case RecordIndexChange:
		return DecodeIndexEdit(record.Data)
	case RecordEntryChange:
		return DecodeEntryEdit(record.Data)
	default:
		return nil, fmt.Errorf("%w: %s is not an edit record", ErrInvalidRecordType, record.Type)
	}
}
