// Package sweeper periodically resumes workflow instances whose delay expired.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweepable resumes the instances due at now and reports how many advanced.
type Sweepable interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

type Sweeper struct {
	target   Sweepable
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
	cron     *cron.Cron
}

func New(target Sweepable, interval time.Duration, logger *slog.Logger) (*Sweeper, error) {
	if interval <= 0 {
		return nil, errors.New("sweep interval must be positive")
	}

	return &Sweeper{
		target:   target,
		interval: interval,
		now:      time.Now,
		logger:   logger.With("module", "sweeper"),
	}, nil
}

// Start schedules the sweep. Overlapping runs are skipped and panics in a run
// are recovered. The schedule stops when ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	spec := "@every " + s.interval.String()

	id, err := s.cron.AddFunc(spec, func() { s.Run(ctx) })
	if err != nil {
		return fmt.Errorf("failed to schedule sweep %q: %w", spec, err)
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Sweeper started", "interval", s.interval.String(), "entry_id", id)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}

	<-s.cron.Stop().Done()
}

// Run performs a single sweep.
func (s *Sweeper) Run(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}

	resumed, err := s.target.Sweep(ctx, s.now().UTC())
	if err != nil {
		s.logger.ErrorContext(ctx, "Sweep failed", "resumed", resumed, "error", err)

		return resumed
	}

	if resumed > 0 {
		s.logger.InfoContext(ctx, "Resumed delayed instances", "count", resumed)
	}

	return resumed
}
