// Package availability decides which backing calendar of a resource can take a request.
package availability

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"reserveit/backend/internal/calendar"
	"reserveit/backend/internal/domain"
	"reserveit/backend/internal/resource"
)

var ErrNoCalendarAvailable = errors.New("no calendar available")

const defaultConcurrency = 4

type Resolver struct {
	gw          calendar.Gateway
	concurrency int
}

func NewResolver(gw calendar.Gateway, concurrency int) *Resolver {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Resolver{gw: gw, concurrency: concurrency}
}

type Request struct {
	Interval  domain.Interval
	Shareable bool

	// IgnoreEventID excludes one existing event, e.g. the caller's own
	// reservation when rescheduling.
	IgnoreEventID string
}

type outcome struct {
	events []calendar.Event
	err    error
}

// FindAssignableCalendar returns the first calendar, in definition order, that can
// accommodate req. All calendars are queried concurrently; a query failure only
// matters if it precedes the first acceptable calendar.
func (r *Resolver) FindAssignableCalendar(ctx context.Context, def *resource.Definition, req Request) (string, error) {
	ids := def.CalendarIDs()
	results := make([]outcome, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			events, err := r.gw.ListEvents(gctx, id, req.Interval)
			results[i] = outcome{events: events, err: err}
			// Never fail the group: one bad calendar must not cancel the others.
			return nil
		})
	}
	_ = g.Wait()

	for i, id := range ids {
		if err := results[i].err; err != nil {
			return "", calendar.External(fmt.Sprintf("check calendar %s", id), err)
		}
		if Accepts(results[i].events, req) {
			return id, nil
		}
	}
	return "", ErrNoCalendarAvailable
}

// Accepts reports whether a calendar holding events can take req. Overlapping
// events are allowed only when every one of them and the request are shareable.
func Accepts(events []calendar.Event, req Request) bool {
	for _, ev := range events {
		if req.IgnoreEventID != "" && ev.ID == req.IgnoreEventID {
			continue
		}
		if !ev.Interval().Overlaps(req.Interval) {
			continue
		}
		if !req.Shareable || !ev.Shareable {
			return false
		}
	}
	return true
}
