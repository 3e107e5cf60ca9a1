package syncer

import (
	"context"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/smartsubstation/fieldsync/internal/store"
)

// CountBroadcaster receives pending-count updates. Must be non-blocking.
type CountBroadcaster interface {
	PendingCount(requests, records, files, total int)
}

// Reporter owns the pending-item count shown to the operator. The count is
// only ever produced by a full recompute against the store; nothing
// increments it in place, so it cannot drift from the queue tables.
type Reporter struct {
	store    *store.Store
	events   CountBroadcaster
	logger   *log.Logger
	interval time.Duration

	requests atomic.Int64
	records  atomic.Int64
	files    atomic.Int64
}

// NewReporter creates a Reporter. interval is the periodic recompute cadence
// (default 30s). events may be nil.
func NewReporter(st *store.Store, interval time.Duration, events CountBroadcaster, logger *log.Logger) *Reporter {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[reporter] ", log.LstdFlags)
	}
	return &Reporter{
		store:    st,
		events:   events,
		logger:   logger,
		interval: interval,
	}
}

// Run recomputes immediately and then on every tick until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	if _, err := r.Recompute(ctx); err != nil {
		r.logger.Printf("Initial pending count recompute failed: %v", err)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Recompute(ctx); err != nil {
				r.logger.Printf("Pending count recompute failed: %v", err)
			}
		}
	}
}

// Recompute queries the queue tables and replaces the published count.
// On store error the previous count stays published; a stale count beats a
// wrong zero.
func (r *Reporter) Recompute(ctx context.Context) (int, error) {
	requests, records, files, err := r.store.PendingCounts(ctx)
	if err != nil {
		return r.Count(), err
	}

	r.requests.Store(int64(requests))
	r.records.Store(int64(records))
	r.files.Store(int64(files))

	total := requests + records + files
	if r.events != nil {
		r.events.PendingCount(requests, records, files, total)
	}
	return total, nil
}

// Count returns the last published total.
func (r *Reporter) Count() int {
	return int(r.requests.Load() + r.records.Load() + r.files.Load())
}

// Breakdown returns the last published per-queue counts.
func (r *Reporter) Breakdown() (requests, records, files int) {
	return int(r.requests.Load()), int(r.records.Load()), int(r.files.Load())
}
