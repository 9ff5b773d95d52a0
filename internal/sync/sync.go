// Package sync periodically snapshots the budget store as JSONL to
// external destinations.
package sync

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/budgets/internal/metrics"
	"github.com/alfredjeanlab/budgets/internal/store"
)

// Destination is the interface for a sync target (S3, git, etc.).
type Destination interface {
	// Name labels the destination in logs and metrics.
	Name() string
	// Write sends the JSONL payload to the destination.
	Write(ctx context.Context, data []byte) error
}

// Scheduler runs periodic syncs to one or more destinations.
type Scheduler struct {
	store        store.Store
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger
	now          func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that exports from the store to the given
// destinations at the specified interval.
func NewScheduler(s store.Store, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:        s,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
		now:          time.Now,
	}
}

// Start begins periodic sync. It runs an initial sync immediately, then
// on each tick.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current sync (if any) to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	s.SyncOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SyncOnce(ctx)
		}
	}
}

// SyncOnce exports one snapshot and writes it to every destination. A
// failing destination is logged and does not stop the others.
func (s *Scheduler) SyncOnce(ctx context.Context) {
	var buf bytes.Buffer
	if err := ExportJSONL(ctx, s.store, &buf, s.now()); err != nil {
		s.logger.Error("sync export failed", "err", err)
		return
	}
	data := buf.Bytes()

	for _, dest := range s.destinations {
		if err := dest.Write(ctx, data); err != nil {
			metrics.SnapshotsTotal.WithLabelValues(dest.Name(), metrics.OutcomeError).Inc()
			s.logger.Error("sync destination write failed", "destination", dest.Name(), "err", err)
			continue
		}
		metrics.SnapshotsTotal.WithLabelValues(dest.Name(), metrics.OutcomeOK).Inc()
	}

	s.logger.Info("sync completed", "destinations", len(s.destinations), "bytes", len(data))
}
