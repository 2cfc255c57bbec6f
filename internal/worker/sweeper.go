package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vins-anity/trailpack/common/logger"
	"github.com/vins-anity/trailpack/internal/service"
)

// Sweeper drives the veto-window policy. It runs entirely off the
// worker's own clock and never goes through the queue, so a stuck or
// drained stream cannot delay finalization.
type Sweeper struct {
	closure  service.ClosureService
	interval time.Duration

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewSweeper(closure service.ClosureService, interval time.Duration) *Sweeper {
	return &Sweeper{
		closure:   closure,
		interval:  interval,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run starts the sweep loop. Blocks until Stop() is called.
func (s *Sweeper) Run(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "trailpack.worker.sweeper",
	})

	defer close(s.stoppedCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "closure sweeper started", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			slog.InfoContext(ctx, "closure sweeper stopping")
			return
		case <-ticker.C:
			sc := logger.StartSpan(ctx, "worker.closure_sweep")
			if _, err := s.closure.SweepExpired(sc.Context()); err != nil {
				sc.RecordError(err)
				slog.ErrorContext(sc.Context(), "closure sweep error", "error", err)
			}
			sc.End()
		}
	}
}

// Stop signals the sweeper to stop gracefully.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	<-s.stoppedCh
}
