package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"eeg-backend/internal/database"
	"eeg-backend/internal/models"
)

// persistJob is one epoch waiting to be written
type persistJob struct {
	cycle      int
	engagement models.EngagementRecord
	raw        models.RawRecord
}

// PersistStats counts the outcome of queued writes
type PersistStats struct {
	Persisted int
	Failed    int
}

// PersistWorker writes epochs to a Sink from a bounded queue so a slow store
// does not hold up the next acquisition window. Submit blocks when the queue
// is full.
type PersistWorker struct {
	sink    database.Sink
	timeout time.Duration

	jobs chan persistJob
	done chan struct{}

	mu    sync.Mutex
	stats PersistStats
}

// NewPersistWorker creates a worker with room for queueSize pending epochs.
// Each write gets at most timeout.
func NewPersistWorker(sink database.Sink, queueSize int, timeout time.Duration) *PersistWorker {
	if queueSize < 0 {
		queueSize = 0
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PersistWorker{
		sink:    sink,
		timeout: timeout,
		jobs:    make(chan persistJob, queueSize),
		done:    make(chan struct{}),
	}
}

// Start processes queued epochs until Close is called and the queue is empty.
// Writes use ctx values but outlive its cancellation so queued epochs still
// reach the store during shutdown.
func (w *PersistWorker) Start(ctx context.Context) {
	defer close(w.done)

	base := context.WithoutCancel(ctx)
	for job := range w.jobs {
		w.persist(base, job)
	}
}

func (w *PersistWorker) persist(ctx context.Context, job persistJob) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	res, err := w.sink.Persist(ctx, job.engagement, job.raw)

	w.mu.Lock()
	defer w.mu.Unlock()

	if err != nil {
		w.stats.Failed++
		slog.Error("PersistWorker: epoch not persisted",
			"cycle", job.cycle,
			"timestamp", job.engagement.Timestamp,
			"err", err)
		return
	}

	w.stats.Persisted++
	slog.Info("PersistWorker: epoch persisted",
		"cycle", job.cycle,
		"engagement_id", res.EngagementID,
		"raw_id", res.RawID)
}

// Submit queues one epoch. A free slot always takes the epoch, even after ctx
// is done; ctx.Err() is returned only if ctx ends while the queue is full.
func (w *PersistWorker) Submit(ctx context.Context, cycle int, eng models.EngagementRecord, raw models.RawRecord) error {
	job := persistJob{cycle: cycle, engagement: eng, raw: raw}

	select {
	case w.jobs <- job:
		return nil
	default:
	}

	select {
	case w.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting epochs, waits for the queue to drain and returns the
// final counts. Start must be running.
func (w *PersistWorker) Close() PersistStats {
	close(w.jobs)
	<-w.done
	return w.Stats()
}

// Stats returns the counts so far
func (w *PersistWorker) Stats() PersistStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}
