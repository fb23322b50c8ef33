package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"reserveit/backend/internal/service/reservations"
)

type fakeSweeper struct {
	sweepFn func(ctx context.Context) (reservations.SweepResult, error)
}

func (f *fakeSweeper) ReminderSweep(ctx context.Context) (reservations.SweepResult, error) {
	if f.sweepFn == nil {
		panic("ReminderSweep not configured")
	}
	return f.sweepFn(ctx)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRun_SweepsImmediatelyAndOnTicks(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Scheduler{
		Sweeper: &fakeSweeper{sweepFn: func(ctx context.Context) (reservations.SweepResult, error) {
			if calls.Add(1) == 3 {
				cancel()
			}
			return reservations.SweepResult{}, nil
		}},
		Interval: 5 * time.Millisecond,
		Log:      quietLogger(),
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run err = %v, want %v", err, context.Canceled)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop")
	}
	if got := calls.Load(); got < 3 {
		t.Fatalf("sweeps = %d, want at least 3", got)
	}
}

func TestRun_SweepErrorDoesNotStopLoop(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Scheduler{
		Sweeper: &fakeSweeper{sweepFn: func(ctx context.Context) (reservations.SweepResult, error) {
			if calls.Add(1) >= 2 {
				cancel()
			}
			return reservations.SweepResult{}, errors.New("db down")
		}},
		Interval: 5 * time.Millisecond,
		Log:      quietLogger(),
	}

	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run err = %v, want %v", err, context.Canceled)
	}
	if got := calls.Load(); got < 2 {
		t.Fatalf("sweeps = %d, want at least 2", got)
	}
}

func TestTick_AppliesTimeout(t *testing.T) {
	s := &Scheduler{
		Sweeper: &fakeSweeper{sweepFn: func(ctx context.Context) (reservations.SweepResult, error) {
			if _, ok := ctx.Deadline(); !ok {
				t.Errorf("sweep context has no deadline")
			}
			return reservations.SweepResult{}, nil
		}},
		Timeout: time.Second,
	}
	s.tick(context.Background(), quietLogger(), time.Minute)
}
