package txlog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/KilimcininKorOglu/dirstore/internal/logging"
)

// Log constants.
const (
	// LogFileName is the name of the log file inside the log directory.
	LogFileName = "txlog.dat"

	// BufferSize is the default size of the log write buffer.
	BufferSize = 64 * 1024

	// RecordLengthSize is the size of the length prefix for each record.
	RecordLengthSize = 4
)

// Log errors.
var (
	ErrLogClosed    = errors.New("transaction log is closed")
	ErrInvalidLSN   = errors.New("invalid LSN")
	ErrRecordLength = errors.New("invalid log record length")
	ErrLogCorrupt   = errors.New("transaction log is corrupt")
	ErrLogReadOnly  = errors.New("transaction log is read-only")
)

// Options configures a Log.
type Options struct {
	// SyncWrites makes AppendTxn fsync the file before returning.
	SyncWrites bool

	// Logger receives open and truncation events.
	Logger logging.Logger

	// ReadOnly opens an existing log for inspection. A torn tail is
	// ignored instead of truncated and every write fails with
	// ErrLogReadOnly.
	ReadOnly bool
}

// recordPos locates a record in the file.
type recordPos struct {
	lsn    uint64
	offset int64
}

// Log is the durable, append-only transaction log. Records are framed with
// a length prefix and protected by a CRC32 checksum.
type Log struct {
	file       *os.File
	path       string
	opts       Options
	logger     logging.Logger
	currentLSN uint64
	lastTxID   uint64
	buffer     []byte
	bufferPos  int
	fileSize   int64
	mu         sync.Mutex
	closed     bool

	// positions lists every record in LSN order.
	positions []recordPos
}

// OpenLog opens or creates the log in dir. A torn tail left by a crash is
// truncated. A damaged record followed by valid ones fails with
// ErrLogCorrupt and leaves the file untouched.
func OpenLog(dir string, opts Options) (*Log, error) {
	path := filepath.Join(dir, LogFileName)

	var file *os.File
	var err error
	if opts.ReadOnly {
		file, err = os.Open(path)
	} else {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create log directory %s: %w", dir, err)
		}
		file, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	}
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	l := &Log{
		file:   file,
		path:   path,
		opts:   opts,
		logger: logger,
		buffer: make([]byte, BufferSize),
	}

	if err := l.scan(); err != nil {
		file.Close()
		return nil, err
	}

	return l, nil
}

// OpenLogReadOnly opens the existing log in dir without modifying it.
func OpenLogReadOnly(dir string, logger logging.Logger) (*Log, error) {
	return OpenLog(dir, Options{ReadOnly: true, Logger: logger})
}

// scan reads existing records, rebuilds the position index and truncates
// the file after the last valid record.
func (l *Log) scan() error {
	info, err := l.file.Stat()
	if err != nil {
		return err
	}

	fileSize := info.Size()
	var offset int64
	var maxLSN uint64

	for offset < fileSize {
		record, n, err := readRecordAt(l.file, offset)
		if err != nil {
			if !isFrameError(err) {
				return err
			}
			if next, found := l.nextValidFrame(offset+1, fileSize, maxLSN); found {
				corruptRecords.Inc()
				return fmt.Errorf("%w: bad record at offset %d (%w), valid record follows at offset %d",
					ErrLogCorrupt, offset, err, next)
			}
			break
		}

		l.positions = append(l.positions, recordPos{lsn: record.LSN, offset: offset})
		if record.LSN > maxLSN {
			maxLSN = record.LSN
		}
		if record.TxID > l.lastTxID {
			l.lastTxID = record.TxID
		}

		offset += n
	}

	if offset < fileSize && l.opts.ReadOnly {
		l.logger.Warn("ignoring torn log tail",
			"path", l.path,
			"valid_bytes", offset,
			"torn_bytes", fileSize-offset,
		)
	} else if offset < fileSize {
		l.logger.Warn("truncating torn log tail",
			"path", l.path,
			"valid_bytes", offset,
			"dropped_bytes", fileSize-offset,
		)
		tornTailTruncations.Inc()
	}

	l.currentLSN = maxLSN + 1
	l.fileSize = offset

	if l.opts.ReadOnly {
		return nil
	}

	if err := l.file.Truncate(offset); err != nil {
		return err
	}
	if _, err := l.file.Seek(offset, io.SeekStart); err != nil {
		return err
	}

	l.logger.Debug("transaction log opened",
		"path", l.path,
		"records", len(l.positions),
		"next_lsn", l.currentLSN,
	)
	return nil
}

// isFrameError reports whether err describes a damaged frame rather than
// a failed read.
func isFrameError(err error) bool {
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, ErrRecordChecksum) ||
		errors.Is(err, ErrRecordLength) || errors.Is(err, ErrRecordTooSmall) ||
		errors.Is(err, ErrInvalidRecordType) || errors.Is(err, ErrRecordDataTooLarge)
}

// nextValidFrame looks for a checksummed record with an LSN above maxLSN
// at any offset in [from, fileSize). A crash only tears the last frame, so
// finding one means the damage is inside the log.
func (l *Log) nextValidFrame(from, fileSize int64, maxLSN uint64) (int64, bool) {
	lengthBuf := make([]byte, RecordLengthSize)
	for offset := from; offset+RecordLengthSize+RecordHeaderSize <= fileSize; offset++ {
		if _, err := l.file.ReadAt(lengthBuf, offset); err != nil {
			return 0, false
		}
		recordLen := int64(binary.LittleEndian.Uint32(lengthBuf))
		if recordLen < RecordHeaderSize || offset+RecordLengthSize+recordLen > fileSize {
			continue
		}
		record, _, err := readRecordAt(l.file, offset)
		if err == nil && record.LSN > maxLSN {
			return offset, true
		}
	}
	return 0, false
}

// readRecordAt reads and validates the framed record at offset and returns
// it with the number of bytes it occupies.
func readRecordAt(r io.ReaderAt, offset int64) (*Record, int64, error) {
	lengthBuf := make([]byte, RecordLengthSize)
	if _, err := r.ReadAt(lengthBuf, offset); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, io.ErrUnexpectedEOF
		}
		return nil, 0, err
	}

	recordLen := binary.LittleEndian.Uint32(lengthBuf)
	if recordLen < RecordHeaderSize || recordLen > RecordHeaderSize+MaxRecordDataSize {
		return nil, 0, ErrRecordLength
	}

	recordBuf := make([]byte, recordLen)
	if _, err := r.ReadAt(recordBuf, offset+RecordLengthSize); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, io.ErrUnexpectedEOF
		}
		return nil, 0, err
	}

	record := &Record{}
	if err := record.DeserializeAndValidate(recordBuf); err != nil {
		return nil, 0, err
	}

	return record, RecordLengthSize + int64(recordLen), nil
}

// Append writes a record and returns its LSN.
// The record's LSN field will be set to the assigned LSN.
func (l *Log) Append(record *Record) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.appendLocked(record)
}

func (l *Log) appendLocked(record *Record) (uint64, error) {
	if l.closed {
		return 0, ErrLogClosed
	}
	if l.opts.ReadOnly {
		return 0, ErrLogReadOnly
	}

	record.LSN = l.currentLSN

	recordBuf, err := record.Serialize()
	if err != nil {
		return 0, err
	}

	totalSize := RecordLengthSize + len(recordBuf)
	if l.bufferPos+totalSize > len(l.buffer) {
		if err := l.flushBuffer(); err != nil {
			return 0, err
		}
	}

	offset := l.fileSize + int64(l.bufferPos)

	if totalSize > len(l.buffer) {
		frame := make([]byte, totalSize)
		binary.LittleEndian.PutUint32(frame, uint32(len(recordBuf)))
		copy(frame[RecordLengthSize:], recordBuf)
		if _, err := l.file.Write(frame); err != nil {
			return 0, err
		}
		l.fileSize += int64(totalSize)
	} else {
		binary.LittleEndian.PutUint32(l.buffer[l.bufferPos:], uint32(len(recordBuf)))
		l.bufferPos += RecordLengthSize
		copy(l.buffer[l.bufferPos:], recordBuf)
		l.bufferPos += len(recordBuf)
	}

	l.positions = append(l.positions, recordPos{lsn: record.LSN, offset: offset})
	if record.TxID > l.lastTxID {
		l.lastTxID = record.TxID
	}

	recordsAppended.WithLabelValues(record.Type.String()).Inc()
	bytesAppended.Add(float64(totalSize))

	lsn := l.currentLSN
	l.currentLSN++
	return lsn, nil
}

// AppendTxn writes one transaction: a Begin record, one record per edit and
// a Commit record. With SyncWrites the log is synced before returning.
// It returns the LSN of the Commit record.
func (l *Log) AppendTxn(txID uint64, edits []Edit) (uint64, error) {
	records := make([]*Record, 0, len(edits)+2)
	records = append(records, NewRecord(txID, RecordBegin, nil))
	for _, edit := range edits {
		data, err := edit.Encode()
		if err != nil {
			return 0, fmt.Errorf("encode %s: %w", edit.RecordType(), err)
		}
		records = append(records, NewRecord(txID, edit.RecordType(), data))
	}
	records = append(records, NewRecord(txID, RecordCommit, nil))

	l.mu.Lock()
	defer l.mu.Unlock()

	var lsn uint64
	for _, record := range records {
		var err error
		if lsn, err = l.appendLocked(record); err != nil {
			return 0, err
		}
	}

	if l.opts.SyncWrites {
		if err := l.syncLocked(); err != nil {
			return 0, err
		}
	} else if err := l.flushBuffer(); err != nil {
		return 0, err
	}

	return lsn, nil
}

// NextTxID returns a transaction id greater than any id in the log.
func (l *Log) NextTxID() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastTxID++
	return l.lastTxID
}

// flushBuffer writes the buffer contents to the file.
func (l *Log) flushBuffer() error {
	if l.bufferPos == 0 {
		return nil
	}

	if _, err := l.file.Write(l.buffer[:l.bufferPos]); err != nil {
		return err
	}

	l.fileSize += int64(l.bufferPos)
	l.bufferPos = 0
	return nil
}

// Sync ensures all records are durably written to disk.
func (l *Log) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLogClosed
	}
	return l.syncLocked()
}

func (l *Log) syncLocked() error {
	if l.opts.ReadOnly {
		return nil
	}
	if err := l.flushBuffer(); err != nil {
		return err
	}

	start := time.Now()
	err := l.file.Sync()
	syncDuration.Observe(time.Since(start).Seconds())
	return err
}

// Truncate removes all records with LSN less than or equal to lsn. The
// remaining records are copied into a new file that replaces the old one.
func (l *Log) Truncate(lsn uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLogClosed
	}
	if l.opts.ReadOnly {
		return ErrLogReadOnly
	}
	if lsn >= l.currentLSN {
		return fmt.Errorf("%w: truncate to %d beyond next LSN %d", ErrInvalidLSN, lsn, l.currentLSN)
	}

	if err := l.flushBuffer(); err != nil {
		return err
	}

	keep := sort.Search(len(l.positions), func(i int) bool {
		return l.positions[i].lsn > lsn
	})
	if keep == 0 {
		return nil
	}

	cut := l.fileSize
	if keep < len(l.positions) {
		cut = l.positions[keep].offset
	}

	remaining := make([]byte, l.fileSize-cut)
	if len(remaining) > 0 {
		if _, err := l.file.ReadAt(remaining, cut); err != nil {
			return err
		}
	}

	tmpPath := l.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := tmp.Write(remaining); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		tmp.Close()
		return err
	}

	l.file.Close()
	l.file = tmp
	if _, err := l.file.Seek(0, io.SeekEnd); err != nil {
		return err
	}

	positions := make([]recordPos, 0, len(l.positions)-keep)
	for _, pos := range l.positions[keep:] {
		positions = append(positions, recordPos{lsn: pos.lsn, offset: pos.offset - cut})
	}
	l.positions = positions
	l.fileSize = int64(len(remaining))

	l.logger.Debug("transaction log truncated", "through_lsn", lsn, "remaining_records", len(positions))
	return nil
}

// Iterator returns an iterator over records with LSN >= startLSN.
func (l *Log) Iterator(startLSN uint64) *Iterator {
	return &Iterator{log: l, nextLSN: startLSN}
}

// CurrentLSN returns the next LSN that will be assigned.
func (l *Log) CurrentLSN() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentLSN
}

// RecordCount returns the number of records in the log.
func (l *Log) RecordCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.positions)
}

// Size returns the size of the log in bytes, including buffered records.
func (l *Log) Size() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fileSize + int64(l.bufferPos)
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

// Close flushes, syncs and closes the log file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	if err := l.syncLocked(); err != nil {
		return err
	}

	l.closed = true
	return l.file.Close()
}

// Iterator iterates over log records in LSN order.
type Iterator struct {
	log     *Log
	nextLSN uint64
	record  *Record
	err     error
}

// Next advances to the next record and returns true if successful.
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}

	l := it.log
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		it.err = ErrLogClosed
		return false
	}

	i := sort.Search(len(l.positions), func(i int) bool {
		return l.positions[i].lsn >= it.nextLSN
	})
	if i >= len(l.positions) {
		it.record = nil
		return false
	}

	if err := l.flushBuffer(); err != nil {
		it.err = err
		return false
	}

	record, _, err := readRecordAt(l.file, l.positions[i].offset)
	if err != nil {
		it.err = fmt.Errorf("read record %d: %w", l.positions[i].lsn, err)
		return false
	}

	it.record = record
	it.nextLSN = record.LSN + 1
	return true
}

// Record returns the current record.
func (it *Iterator) Record() *Record {
	return it.record
}

// Error returns any error encountered during iteration.
func (it *Iterator) Error() error {
	return it.err
}
