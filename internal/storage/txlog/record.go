package txlog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// Record constants.
const (
	// RecordHeaderSize is the fixed size of the record header.
	// Layout:
	//   - Bytes 0-7:   LSN (uint64)
	//   - Bytes 8-15:  TxID (uint64)
	//   - Byte 16:     Type (uint8)
	//   - Bytes 17-20: DataLen (uint32)
	//   - Bytes 21-24: Checksum (uint32)
	RecordHeaderSize = 25

	// MaxRecordDataSize is the maximum payload size of a single record.
	MaxRecordDataSize = 16 << 20
)

// RecordType represents the type of a log record.
type RecordType uint8

const (
	// RecordBegin marks the beginning of a transaction.
	RecordBegin RecordType = iota
	// RecordCommit marks the successful completion of a transaction.
	RecordCommit
	// RecordAbort marks a transaction that will never be applied.
	RecordAbort
	// RecordIndexChange carries an encoded IndexEdit.
	RecordIndexChange
	// RecordEntryChange carries an encoded EntryEdit.
	RecordEntryChange
	// RecordCheckpoint marks a checkpoint in the log.
	RecordCheckpoint

	recordTypeCount
)

// String returns the string representation of a RecordType.
func (t RecordType) String() string {
	switch t {
	case RecordBegin:
		return "Begin"
	case RecordCommit:
		return "Commit"
	case RecordAbort:
		return "Abort"
	case RecordIndexChange:
		return "IndexChange"
	case RecordEntryChange:
		return "EntryChange"
	case RecordCheckpoint:
		return "Checkpoint"
	default:
		return "Unknown"
	}
}

// Record is a single framed entry of the transaction log.
type Record struct {
	LSN      uint64     // Log Sequence Number (monotonically increasing)
	TxID     uint64     // Transaction ID, zero for checkpoints
	Type     RecordType // Begin, Commit, Abort, IndexChange, EntryChange, Checkpoint
	Data     []byte     // Encoded edit or checkpoint data
	Checksum uint32     // CRC32 of the serialized record
}

// Errors for record operations.
var (
	ErrRecordTooSmall     = errors.New("log record buffer too small")
	ErrRecordChecksum     = errors.New("log record checksum mismatch")
	ErrRecordDataTooLarge = errors.New("log record data exceeds maximum size")
	ErrInvalidRecordType  = errors.New("invalid log record type")
)

// NewRecord creates a record of the given type. The LSN is assigned on append.
func NewRecord(txID uint64, recordType RecordType, data []byte) *Record {
	return &Record{
		TxID: txID,
		Type: recordType,
		Data: data,
	}
}

// Size returns the total serialized size of the record.
func (r *Record) Size() int {
	return RecordHeaderSize + len(r.Data)
}

// Serialize writes the record to a new byte slice.
func (r *Record) Serialize() ([]byte, error) {
	if len(r.Data) > MaxRecordDataSize {
		return nil, ErrRecordDataTooLarge
	}
	if r.Type >= recordTypeCount {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRecordType, r.Type)
	}

	buf := make([]byte, r.Size())
	binary.LittleEndian.PutUint64(buf[0:8], r.LSN)
	binary.LittleEndian.PutUint64(buf[8:16], r.TxID)
	buf[16] = byte(r.Type)
	binary.LittleEndian.PutUint32(buf[17:21], uint32(len(r.Data)))
	copy(buf[RecordHeaderSize:], r.Data)

	r.Checksum = checksum(buf)
	binary.LittleEndian.PutUint32(buf[21:25], r.Checksum)

	return buf, nil
}

// Deserialize reads the record from buf without validating the checksum.
func (r *Record) Deserialize(buf []byte) error {
	if len(buf) < RecordHeaderSize {
		return ErrRecordTooSmall
	}

	r.LSN = binary.LittleEndian.Uint64(buf[0:8])
	r.TxID = binary.LittleEndian.Uint64(buf[8:16])
	r.Type = RecordType(buf[16])
	dataLen := binary.LittleEndian.Uint32(buf[17:21])
	r.Checksum = binary.LittleEndian.Uint32(buf[21:25])

	if dataLen > MaxRecordDataSize {
		return ErrRecordDataTooLarge
	}
	if len(buf) < RecordHeaderSize+int(dataLen) {
		return ErrRecordTooSmall
	}

	r.Data = nil
	if dataLen > 0 {
		r.Data = make([]byte, dataLen)
		copy(r.Data, buf[RecordHeaderSize:])
	}

	return nil
}

// DeserializeAndValidate reads the record, validates its checksum and
// rejects out-of-range record types.
func (r *Record) DeserializeAndValidate(buf []byte) error {
	if err := r.Deserialize(buf); err != nil {
		return err
	}

	if r.Checksum != checksum(buf[:r.Size()]) {
		return ErrRecordChecksum
	}

	if r.Type >= recordTypeCount {
		return fmt.Errorf("%w: %d", ErrInvalidRecordType, r.Type)
	}

	return nil
}

// checksum computes the CRC32 of a serialized record with the checksum
// field treated as zero.
func checksum(buf []byte) uint32 {
	h := crc32.NewIEEE()
	h.Write(buf[:21])
	h.Write([]byte{0, 0, 0, 0})
	h.Write(buf[RecordHeaderSize:])
	return h.Sum32()
}

// IsTransactionControl returns true if this is a transaction control record.
func (r *Record) IsTransactionControl() bool {
	return r.Type == RecordBegin || r.Type == RecordCommit || r.Type == RecordAbort
}

// IsEdit returns true if this record carries an index or entry edit.
func (r *Record) IsEdit() bool {
	return r.Type == RecordIndexChange || r.Type == RecordEntryChange
}

// Clone creates a deep copy of the record.
func (r *Record) Clone() *Record {
	clone := *r
	if r.Data != nil {
		clone.Data = make([]byte, len(r.Data))
		copy(clone.Data, r.Data)
	}
	return &clone
}
