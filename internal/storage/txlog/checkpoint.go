package txlog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Checkpoint errors.
var (
	ErrCheckpointInProgress = errors.New("checkpoint is already in progress")
	ErrInvalidCheckpoint    = errors.New("invalid checkpoint record")
)

// checkpointDataSize is the serialized size of CheckpointData.
const checkpointDataSize = 16

// CheckpointData is the payload of a checkpoint record.
type CheckpointData struct {
	// Timestamp is when the checkpoint was created.
	Timestamp time.Time

	// LastLSN is the last LSN made durable by the checkpoint.
	LastLSN uint64
}

// Serialize converts the checkpoint data to bytes for storage in the log.
func (cd *CheckpointData) Serialize() []byte {
	buf := make([]byte, checkpointDataSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(cd.Timestamp.UnixNano()))
	binary.LittleEndian.PutUint64(buf[8:16], cd.LastLSN)
	return buf
}

// Deserialize reads checkpoint data from bytes.
func (cd *CheckpointData) Deserialize(buf []byte) error {
	if len(buf) != checkpointDataSize {
		return ErrInvalidCheckpoint
	}

	cd.Timestamp = time.Unix(0, int64(binary.LittleEndian.Uint64(buf[0:8])))
	cd.LastLSN = binary.LittleEndian.Uint64(buf[8:16])
	return nil
}

// ParseCheckpointRecord extracts checkpoint data from a log record.
func ParseCheckpointRecord(record *Record) (*CheckpointData, error) {
	if record.Type != RecordCheckpoint {
		return nil, ErrInvalidCheckpoint
	}

	data := &CheckpointData{}
	if err := data.Deserialize(record.Data); err != nil {
		return nil, err
	}
	return data, nil
}

// Syncer is a table that can be made durable.
type Syncer interface {
	Sync() error
}

// CheckpointManager makes the index and master tables durable and then
// drops the log records they cover. Records from the checkpoint record on
// are kept, so recovery always starts from a checkpoint.
type CheckpointManager struct {
	log     *Log
	targets []Syncer

	// lastCheckpointLSN is the LSN of the last successful checkpoint.
	lastCheckpointLSN uint64

	// lastCheckpointTime is when the last checkpoint was taken.
	lastCheckpointTime time.Time

	mu         sync.Mutex
	inProgress bool
}

// NewCheckpointManager creates a CheckpointManager that syncs targets
// before each checkpoint record is written.
func NewCheckpointManager(log *Log, targets ...Syncer) *CheckpointManager {
	return &CheckpointManager{
		log:     log,
		targets: targets,
	}
}

// Checkpoint syncs every target, appends a checkpoint record, syncs the
// log and truncates the records before the checkpoint. It returns the LSN
// of the checkpoint record.
func (cm *CheckpointManager) Checkpoint() (uint64, error) {
	cm.mu.Lock()
	if cm.inProgress {
		cm.mu.Unlock()
		return 0, ErrCheckpointInProgress
	}
	cm.inProgress = true
	cm.mu.Unlock()

	defer func() {
		cm.mu.Lock()
		cm.inProgress = false
		cm.mu.Unlock()
	}()

	for _, target := range cm.targets {
		if err := target.Sync(); err != nil {
			return 0, fmt.Errorf("checkpoint sync: %w", err)
		}
	}

	data := &CheckpointData{
		Timestamp: time.Now(),
		LastLSN:   cm.log.CurrentLSN() - 1,
	}

	lsn, err := cm.log.Append(NewRecord(0, RecordCheckpoint, data.Serialize()))
	if err != nil {
		return 0, err
	}
	if err := cm.log.Sync(); err != nil {
		return 0, err
	}

	if lsn > 1 {
		if err := cm.log.Truncate(lsn - 1); err != nil {
			return 0, fmt.Errorf("checkpoint truncate: %w", err)
		}
	}

	cm.mu.Lock()
	cm.lastCheckpointLSN = lsn
	cm.lastCheckpointTime = data.Timestamp
	cm.mu.Unlock()

	checkpoints.Inc()
	return lsn, nil
}

// LastCheckpointLSN returns the LSN of the last checkpoint.
func (cm *CheckpointManager) LastCheckpointLSN() uint64 {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.lastCheckpointLSN
}

// LastCheckpointTime returns the time of the last checkpoint.
func (cm *CheckpointManager) LastCheckpointTime() time.Time {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.lastCheckpointTime
}

// ShouldCheckpoint returns true if interval has elapsed since the last
// checkpoint.
func (cm *CheckpointManager) ShouldCheckpoint(interval time.Duration) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.lastCheckpointTime.IsZero() {
		return true
	}
	return time.Since(cm.lastCheckpointTime) >= interval
}
