package txlog

import (
	"errors"
	"fmt"
	"sync"

	"github.com/KilimcininKorOglu/dirstore/internal/logging"
)

// Replay errors.
var (
	ErrReplayInProgress = errors.New("replay is already in progress")
	ErrNoLog            = errors.New("transaction log is required for replay")
)

// TxState represents the state of a transaction during replay.
type TxState int

const (
	// TxStateActive indicates the transaction has no Commit or Abort record.
	TxStateActive TxState = iota
	// TxStateCommitted indicates the transaction has been committed.
	TxStateCommitted
	// TxStateAborted indicates the transaction has been aborted.
	TxStateAborted
)

// String returns the string representation of a TxState.
func (s TxState) String() string {
	switch s {
	case TxStateActive:
		return "Active"
	case TxStateCommitted:
		return "Committed"
	case TxStateAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// txInfo tracks one transaction found during analysis.
type txInfo struct {
	txID     uint64
	state    TxState
	firstLSN uint64
	lastLSN  uint64
	edits    []*Record
}

// ReplayStats summarizes a replay.
type ReplayStats struct {
	CheckpointLSN uint64
	Records       int
	Committed     int
	Aborted       int
	Incomplete    int
	IndexEdits    int
	EntryEdits    int
}

// Replayer re-applies the committed transactions found after the last
// checkpoint. It runs in two passes: analysis builds the transaction table,
// redo applies committed edits in LSN order. Transactions without a Commit
// or Abort record are closed with an Abort record.
type Replayer struct {
	log     *Log
	indexes IndexSource
	entries EntryTarget
	logger  logging.Logger

	txns          map[uint64]*txInfo
	order         []*txInfo
	checkpointLSN uint64

	mu         sync.Mutex
	inProgress bool
}

// NewReplayer creates a Replayer that applies index edits through indexes
// and entry edits to entries.
func NewReplayer(log *Log, indexes IndexSource, entries EntryTarget, logger logging.Logger) *Replayer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Replayer{
		log:     log,
		indexes: indexes,
		entries: entries,
		logger:  logger,
	}
}

// Recover runs analysis and redo. Any decode, lookup or I/O failure stops
// the replay and is returned.
func (r *Replayer) Recover() (ReplayStats, error) {
	r.mu.Lock()
	if r.inProgress {
		r.mu.Unlock()
		return ReplayStats{}, ErrReplayInProgress
	}
	r.inProgress = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.inProgress = false
		r.mu.Unlock()
	}()

	if r.log == nil {
		return ReplayStats{}, ErrNoLog
	}

	r.txns = make(map[uint64]*txInfo)
	r.order = nil
	r.checkpointLSN = 0

	var stats ReplayStats

	// Phase 1: Analysis
	n, err := r.analysis()
	if err != nil {
		return stats, err
	}
	stats.Records = n
	stats.CheckpointLSN = r.checkpointLSN

	// Phase 2: Redo
	if err := r.redo(&stats); err != nil {
		return stats, err
	}

	// Close transactions that never committed.
	if err := r.abortIncomplete(&stats); err != nil {
		return stats, err
	}

	r.logger.Info("log replay complete",
		"checkpoint_lsn", stats.CheckpointLSN,
		"records", stats.Records,
		"committed", stats.Committed,
		"incomplete", stats.Incomplete,
		"index_edits", stats.IndexEdits,
		"entry_edits", stats.EntryEdits,
	)
	return stats, nil
}

// analysis scans the log and builds the transaction table from the records
// after the last checkpoint.
func (r *Replayer) analysis() (int, error) {
	var records []*Record

	iter := r.log.Iterator(0)
	for iter.Next() {
		record := iter.Record()
		if record.Type == RecordCheckpoint {
			if _, err := ParseCheckpointRecord(record); err != nil {
				return 0, fmt.Errorf("checkpoint at LSN %d: %w", record.LSN, err)
			}
			r.checkpointLSN = record.LSN
			records = records[:0]
			continue
		}
		records = append(records, record)
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}

	for _, record := range records {
		info, exists := r.txns[record.TxID]

		switch record.Type {
		case RecordBegin:
			if exists {
				return 0, fmt.Errorf("duplicate begin for transaction %d at LSN %d", record.TxID, record.LSN)
			}
			info = &txInfo{
				txID:     record.TxID,
				state:    TxStateActive,
				firstLSN: record.LSN,
				lastLSN:  record.LSN,
			}
			r.txns[record.TxID] = info
			r.order = append(r.order, info)

		case RecordCommit, RecordAbort:
			if !exists {
				r.logger.Warn("transaction end without begin", "tx_id", record.TxID, "lsn", record.LSN)
				continue
			}
			info.lastLSN = record.LSN
			if record.Type == RecordCommit {
				info.state = TxStateCommitted
			} else {
				info.state = TxStateAborted
			}

		case RecordIndexChange, RecordEntryChange:
			if !exists {
				r.logger.Warn("edit without begin", "tx_id", record.TxID, "lsn", record.LSN)
				continue
			}
			info.lastLSN = record.LSN
			info.edits = append(info.edits, record)
		}
	}

	return len(records), nil
}

// redo applies the edits of committed transactions. Transactions are
// visited in Begin order, which is LSN order since the log writes each
// transaction contiguously.
func (r *Replayer) redo(stats *ReplayStats) error {
	for _, info := range r.order {
		switch info.state {
		case TxStateAborted:
			stats.Aborted++
			continue
		case TxStateActive:
			continue
		}

		for _, record := range info.edits {
			edit, err := DecodeEdit(record)
			if err != nil {
				return fmt.Errorf("transaction %d LSN %d: %w", info.txID, record.LSN, err)
			}

			switch e := edit.(type) {
			case *IndexEdit:
				err = e.Apply(r.indexes, true)
				stats.IndexEdits++
			case *EntryEdit:
				err = e.Apply(r.entries)
				stats.EntryEdits++
			}
			if err != nil {
				return fmt.Errorf("transaction %d LSN %d: %w", info.txID, record.LSN, err)
			}
			replayedRecords.WithLabelValues(record.Type.String()).Inc()
		}
		stats.Committed++
	}
	return nil
}

// abortIncomplete appends an Abort record for every active transaction.
func (r *Replayer) abortIncomplete(stats *ReplayStats) error {
	for _, info := range r.order {
		if info.state != TxStateActive {
			continue
		}

		if _, err := r.log.Append(NewRecord(info.txID, RecordAbort, nil)); err != nil {
			return err
		}
		info.state = TxStateAborted
		stats.Incomplete++

		r.logger.Warn("aborted incomplete transaction",
			"tx_id", info.txID,
			"first_lsn", info.firstLSN,
			"last_lsn", info.lastLSN,
			"edits", len(info.edits),
		)
	}

	if stats.Incomplete == 0 {
		return nil
	}
	return r.log.Sync()
}
