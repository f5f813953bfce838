package app

import (
	"context"
	"log/slog"
	"time"
)

type Cycler interface {
	RunCycle(ctx context.Context) CycleReport
}

// Runner repeats cycles until its context ends. The wait starts when a
// cycle finishes, so cycles never overlap.
type Runner struct {
	cycler   Cycler
	interval time.Duration
	logger   *slog.Logger
}

func NewRunner(c Cycler, interval time.Duration, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cycler: c, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled. It returns nil on a clean shutdown.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("runner started", "interval", r.interval)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("runner stopped")
			return nil
		case <-timer.C:
		}

		report := r.cycler.RunCycle(ctx)
		if ctx.Err() != nil {
			r.logger.Info("runner stopped", "last_cycle", report.ID)
			return nil
		}
		timer.Reset(r.interval)
	}
}
