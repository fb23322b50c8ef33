package resource

import (
	"fmt"
	"time"

	"reserveit/backend/internal/domain"
)

// IntervalError explains why a requested interval does not fit the resource's grid or window.
type IntervalError struct {
	Reason string
}

func (e *IntervalError) Error() string {
	return e.Reason
}

func intervalError(format string, args ...any) error {
	return &IntervalError{Reason: fmt.Sprintf(format, args...)}
}

// CheckInterval validates iv against the booking grid and the advance-booking window.
// Grid arithmetic happens in the resource's location.
func (d *Definition) CheckInterval(iv domain.Interval, now time.Time) error {
	loc := d.location()
	start := iv.Start.In(loc)
	end := iv.End.In(loc)

	if !end.After(start) {
		return intervalError("end time must be after start time")
	}

	dayStart := d.DayStart.On(start, loc)
	dayEnd := d.DayEnd.On(start, loc)
	if start.Before(dayStart) || !start.Before(dayEnd) {
		return intervalError("start time must be between %s and %s", d.DayStart, d.DayEnd)
	}

	// The grid is wall-clock, so DST days keep the same slots.
	offset := start.Hour()*60 + start.Minute() - int(d.DayStart)
	if start.Second() != 0 || start.Nanosecond() != 0 || offset%d.IncrementMinutes != 0 {
		return intervalError("start time must fall on the %d-minute grid starting at %s", d.IncrementMinutes, d.DayStart)
	}

	inc := d.Increment()
	dur := end.Sub(start)
	if dur%inc != 0 {
		return intervalError("duration must be a multiple of %d minutes", d.IncrementMinutes)
	}
	if dur > d.MaxDuration() {
		return intervalError("reservations are limited to %d minutes", d.MaxDurationMinutes)
	}
	if !d.AllowEndNextDay && end.After(dayEnd) {
		return intervalError("reservation must end by %s", d.DayEnd)
	}

	if start.Before(now) {
		return intervalError("start time is in the past")
	}
	if d.MaxDaysAhead > 0 {
		today := dateOf(now.In(loc))
		last := today.AddDate(0, 0, d.MaxDaysAhead)
		if dateOf(start).After(last) {
			return intervalError("reservations can be made at most %d days ahead", d.MaxDaysAhead)
		}
	}
	return nil
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
