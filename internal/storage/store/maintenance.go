package store

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/KilimcininKorOglu/dirstore/internal/storage/index"
)

// Checkpoint makes every applied edit durable and truncates the log up to
// the new checkpoint. It returns the checkpoint LSN. With the memory backend
// the log is the only durable state, so only the log is synced and 0 is
// returned.
func (s *Store) Checkpoint() (uint64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkWritable(); err != nil {
		return 0, err
	}

	if s.volatile {
		return 0, s.log.Sync()
	}

	lsn, err := s.checkpoints.Checkpoint()
	if err != nil {
		s.logger.Error("checkpoint failed", "error", err)
		return 0, err
	}

	s.logger.Debug("checkpoint taken", "lsn", lsn, "log_size", s.log.Size())
	return lsn, nil
}

func (s *Store) checkpointLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if _, err := s.periodicCheckpoint(interval); err != nil {
				s.logger.Warn("periodic checkpoint failed", "error", err)
			}
		}
	}
}

// periodicCheckpoint checkpoints and collects master table garbage unless a
// checkpoint ran within the last interval. It reports whether it ran.
func (s *Store) periodicCheckpoint(interval time.Duration) (bool, error) {
	if !s.checkpoints.ShouldCheckpoint(interval) {
		return false, nil
	}
	if _, err := s.Checkpoint(); err != nil {
		return false, err
	}
	if err := s.master.RunGC(); err != nil {
		s.logger.Warn("master table garbage collection failed", "error", err)
	}
	return true, nil
}

// Verify checks that the forward and reverse tables of every index agree.
// Indexes are scanned in parallel; writers are blocked meanwhile.
func (s *Store) Verify(ctx context.Context) ([]index.Violation, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		mu         sync.Mutex
		violations []index.Violation
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for _, idx := range s.indexes.ListIndexes() {
		idx := idx
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			found, err := index.Verify(idx)
			if err != nil {
				return err
			}
			if len(found) > 0 {
				s.logger.Warn("index tables disagree", "index", idx.Name(), "violations", len(found))
			}
			mu.Lock()
			violations = append(violations, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(violations, func(i, j int) bool {
		return violations[i].Index < violations[j].Index
	})
	return violations, nil
}

// Stats is a snapshot of store sizes.
type Stats struct {
	Entries           int
	IndexPairs        map[string]int
	LogRecords        int
	LogSize           int64
	NextLSN           uint64
	LastCheckpointLSN uint64
	LastCheckpoint    time.Time
}

// Stats returns the current store sizes.
func (s *Store) Stats() (Stats, error) {
	if err := s.checkOpen(); err != nil {
		return Stats{}, err
	}

	entries, err := s.master.Count()
	if err != nil {
		return Stats{}, err
	}

	st := Stats{
		Entries:           entries,
		IndexPairs:        make(map[string]int),
		LogRecords:        s.log.RecordCount(),
		LogSize:           s.log.Size(),
		NextLSN:           s.log.CurrentLSN(),
		LastCheckpointLSN: s.checkpoints.LastCheckpointLSN(),
		LastCheckpoint:    s.checkpoints.LastCheckpointTime(),
	}
	for _, idx := range s.indexes.ListIndexes() {
		n, err := idx.Count()
		if err != nil {
			return Stats{}, err
		}
		st.IndexPairs[idx.Name()] = n
	}
	return st, nil
}
