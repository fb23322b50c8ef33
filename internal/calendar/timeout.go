package calendar

import (
	"context"
	"log/slog"
	"time"

	"reserveit/backend/internal/domain"
)

const DefaultTimeout = 10 * time.Second

// Bounded applies a per-call deadline to every gateway call and normalizes
// failures to ErrExternalService. It never retries.
type Bounded struct {
	next    Gateway
	timeout time.Duration
	log     *slog.Logger
}

func NewBounded(next Gateway, timeout time.Duration, log *slog.Logger) *Bounded {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Bounded{
		next:    next,
		timeout: timeout,
		log:     log.With(slog.String("component", "calendar")),
	}
}

func (b *Bounded) ListEvents(ctx context.Context, calendarID string, iv domain.Interval) ([]Event, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	start := time.Now()
	events, err := b.next.ListEvents(ctx, calendarID, iv)
	if err != nil {
		b.log.Warn("list events failed", slog.String("calendar_id", calendarID), slog.Any("err", err))
		return nil, External("list events", err)
	}
	b.log.Debug(
		"events listed",
		slog.String("calendar_id", calendarID),
		slog.Int("count", len(events)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return events, nil
}

func (b *Bounded) CreateEvent(ctx context.Context, calendarID string, spec EventSpec) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	id, err := b.next.CreateEvent(ctx, calendarID, spec)
	if err != nil {
		b.log.Warn("create event failed", slog.String("calendar_id", calendarID), slog.String("event_id", spec.ID), slog.Any("err", err))
		return "", External("create event", err)
	}
	return id, nil
}

func (b *Bounded) UpdateEventTitle(ctx context.Context, calendarID, eventID, title string) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := b.next.UpdateEventTitle(ctx, calendarID, eventID, title); err != nil {
		b.log.Warn("update event failed", slog.String("calendar_id", calendarID), slog.String("event_id", eventID), slog.Any("err", err))
		return External("update event", err)
	}
	return nil
}

func (b *Bounded) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := b.next.DeleteEvent(ctx, calendarID, eventID); err != nil {
		b.log.Warn("delete event failed", slog.String("calendar_id", calendarID), slog.String("event_id", eventID), slog.Any("err", err))
		return External("delete event", err)
	}
	return nil
}
