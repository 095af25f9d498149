package system

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	coresys "github.com/jiecolao/pyquest-game/internal/core/system"
	"github.com/jiecolao/pyquest-game/internal/persist"
	"github.com/jiecolao/pyquest-game/internal/scripting"
	"go.uber.org/zap"
)

// RunWriter persists a batch of run records.
type RunWriter interface {
	WriteRuns(ctx context.Context, runs []persist.RunRecord) error
}

// maxPendingRuns bounds the buffer while the database is unreachable.
const maxPendingRuns = 1024

// JournalSystem batches run records and writes them every interval ticks
// on a background goroutine. Phase 4 (Persist).
type JournalSystem struct {
	writer   RunWriter
	interval int
	log      *zap.Logger

	mu      sync.Mutex // Record is called from HTTP handlers too
	pending []persist.RunRecord

	tickCount int
	busy      atomic.Bool
	wg        sync.WaitGroup
}

// NewJournalSystem returns a journal writing through w. A nil w keeps
// nothing.
func NewJournalSystem(w RunWriter, intervalTicks int, log *zap.Logger) *JournalSystem {
	if intervalTicks < 1 {
		intervalTicks = 1
	}
	return &JournalSystem{writer: w, interval: intervalTicks, log: log}
}

func (s *JournalSystem) Phase() coresys.Phase { return coresys.PhasePersist }

// Record queues a result for the next flush.
func (s *JournalSystem) Record(sessionID uint64, res scripting.Result) {
	if s.writer == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) >= maxPendingRuns {
		s.pending = s.pending[1:]
		s.log.Warn("journal backlog full, dropping oldest run")
	}
	s.pending = append(s.pending, toRecord(sessionID, res))
}

func (s *JournalSystem) Update(_ time.Duration) {
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0

	// One write in flight at a time; the batch waits for the next interval.
	if !s.busy.CompareAndSwap(false, true) {
		return
	}
	batch := s.take()
	if len(batch) == 0 {
		s.busy.Store(false)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.busy.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.write(ctx, batch)
	}()
}

// Flush waits for an in-flight write and then writes everything pending.
// Called on shutdown.
func (s *JournalSystem) Flush(ctx context.Context) {
	s.wg.Wait()
	if batch := s.take(); len(batch) > 0 {
		s.write(ctx, batch)
	}
}

// Pending returns the number of records waiting for a flush.
func (s *JournalSystem) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *JournalSystem) take() []persist.RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.pending
	s.pending = nil
	return batch
}

func (s *JournalSystem) write(ctx context.Context, batch []persist.RunRecord) {
	if err := s.writer.WriteRuns(ctx, batch); err != nil {
		s.log.Error("journal write failed", zap.Int("runs", len(batch)), zap.Error(err))
		return
	}
	s.log.Debug("journal written", zap.Int("runs", len(batch)))
}

func toRecord(sessionID uint64, res scripting.Result) persist.RunRecord {
	return persist.RunRecord{
		RunID:     res.ID,
		Dialect:   res.Dialect,
		Source:    res.Source,
		Accepted:  res.Accepted,
		Reason:    res.Reason,
		Output:    res.Output,
		Failed:    res.Failed(),
		SessionID: sessionID,
		StartedAt: res.Started,
		Duration:  res.Duration,
	}
}
