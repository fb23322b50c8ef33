// Package scheduler drives periodic background work such as the reminder sweep.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"reserveit/backend/internal/service/reservations"
)

const DefaultInterval = time.Minute

type Sweeper interface {
	ReminderSweep(ctx context.Context) (reservations.SweepResult, error)
}

type Scheduler struct {
	Sweeper  Sweeper
	Interval time.Duration
	// Timeout bounds one sweep. Zero means the interval.
	Timeout time.Duration
	Log     *slog.Logger
}

// Run sweeps once immediately and then on every tick until ctx is done.
// Ticks never overlap: a slow sweep delays the next one.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "scheduler"))

	t := time.NewTicker(interval)
	defer t.Stop()

	s.tick(ctx, log, interval)
	for {
		select {
		case <-ctx.Done():
			log.Info("scheduler stopped")
			return ctx.Err()
		case <-t.C:
			s.tick(ctx, log, interval)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, log *slog.Logger, interval time.Duration) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = interval
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	res, err := s.Sweeper.ReminderSweep(ctx)
	if err != nil {
		log.Error("reminder sweep failed", slog.Any("err", err), slog.Duration("elapsed", time.Since(start)))
		return
	}
	log.Debug("reminder sweep",
		slog.Int("due", res.Due),
		slog.Int("reminded", res.Reminded),
		slog.Int("failed", res.Failed),
		slog.Int("purged", res.Purged),
		slog.Duration("elapsed", time.Since(start)),
	)
}
