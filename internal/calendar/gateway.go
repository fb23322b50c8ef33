// Package calendar defines the gateway to the external calendar provider that
// is the authority on scheduling conflicts.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reserveit/backend/internal/domain"
)

// ErrExternalService marks every failure talking to the calendar provider,
// including timeouts. Callers may retry the whole operation.
var ErrExternalService = errors.New("external calendar service error")

// ShareableProperty is the event metadata key recording the shareable flag.
const ShareableProperty = "reserveit-shareable"

type Event struct {
	ID        string
	Title     string
	Start     time.Time
	End       time.Time
	Shareable bool
}

func (e Event) Interval() domain.Interval {
	return domain.Interval{Start: e.Start, End: e.End}
}

// EventSpec describes an event to create. ID is chosen by the caller so a
// create that times out can still be cleaned up.
type EventSpec struct {
	ID           string
	Title        string
	Description  string
	Interval     domain.Interval
	Invitee      string
	Shareable    bool
	ReminderLead time.Duration
}

type Gateway interface {
	// ListEvents returns events overlapping iv.
	ListEvents(ctx context.Context, calendarID string, iv domain.Interval) ([]Event, error)
	CreateEvent(ctx context.Context, calendarID string, spec EventSpec) (string, error)
	UpdateEventTitle(ctx context.Context, calendarID, eventID, title string) error
	// DeleteEvent succeeds when the event is already gone.
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}

// External wraps err as an ErrExternalService failure for op.
func External(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrExternalService) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrExternalService, op, err)
}
