package lobby

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/albapepper/matchstats/internal/stats"
	"github.com/albapepper/matchstats/internal/store"
)

// saveTimeout bounds one Save call.
const saveTimeout = 10 * time.Second

// Queue persists records in the background with a fixed worker pool so the
// message handler never waits on the database. A full queue drops the record.
type Queue struct {
	sink   store.Sink
	jobs   chan stats.StatRecord
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewQueue creates a queue with room for size pending records.
func NewQueue(sink store.Sink, size int, logger *slog.Logger) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{
		sink:   sink,
		jobs:   make(chan stats.StatRecord, size),
		logger: logger,
	}
}

// Start launches workers. Saves already begun when ctx is cancelled still
// finish; Close drains whatever is queued.
func (q *Queue) Start(ctx context.Context, workers int) {
	if workers < 1 {
		workers = 1
	}
	base := context.WithoutCancel(ctx)
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for rec := range q.jobs {
				q.save(base, rec)
			}
		}()
	}
}

func (q *Queue) save(ctx context.Context, rec stats.StatRecord) {
	ctx, cancel := context.WithTimeout(ctx, saveTimeout)
	defer cancel()

	start := time.Now()
	if err := q.sink.Save(ctx, rec); err != nil {
		q.logger.Error("Statistics save failed", "match_id", rec.MatchID, "game", rec.GameName, "error", err)
		return
	}
	q.logger.Info("Statistics saved", "match_id", rec.MatchID, "players", len(rec.Players),
		"duration", time.Since(start).Round(time.Millisecond))
}

// Submit enqueues rec without blocking and reports whether it was accepted.
func (q *Queue) Submit(rec stats.StatRecord) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Error("Statistics dropped: persistence stopped", "match_id", rec.MatchID)
		return false
	}
	select {
	case q.jobs <- rec:
		return true
	default:
		q.logger.Error("Statistics dropped: persistence queue full",
			"match_id", rec.MatchID, "capacity", cap(q.jobs))
		return false
	}
}

// Pending returns the number of queued records.
func (q *Queue) Pending() int { return len(q.jobs) }

// Close stops accepting records and waits for the workers to drain the
// queue.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	q.wg.Wait()
}
