package resource

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	DefaultIncrementMinutes    = 30
	DefaultMaxDurationMinutes  = 120
	DefaultMaxDaysAhead        = 14
	DefaultReminderLeadMinutes = 60

	// MaxCalendarsShown caps how many backing calendars a booking page renders side by side.
	MaxCalendarsShown = 4
)

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

type Calendar struct {
	ID    string
	Label string
	Color string
}

// Definition describes one reservable resource. It is immutable after loading.
type Definition struct {
	ID          string
	Name        string
	Description string
	Emoji       string

	// Calendars are in priority order: the first free calendar is assigned.
	Calendars []Calendar

	DayStart            ClockTime
	DayEnd              ClockTime
	IncrementMinutes    int
	MaxDurationMinutes  int
	MaxDaysAhead        int
	ReminderLeadMinutes int
	AllowShareable      bool
	AllowEndNextDay     bool
	CalendarsShown      int

	Fields   []Field
	Location *time.Location

	hooks []Hook
}

func (d *Definition) Increment() time.Duration {
	return time.Duration(d.IncrementMinutes) * time.Minute
}

func (d *Definition) MaxDuration() time.Duration {
	return time.Duration(d.MaxDurationMinutes) * time.Minute
}

// ReminderLead is zero when the resource sends no reminders.
func (d *Definition) ReminderLead() time.Duration {
	return time.Duration(d.ReminderLeadMinutes) * time.Minute
}

func (d *Definition) EventTitle() string {
	return d.Name + " reservation"
}

func (d *Definition) CalendarIDs() []string {
	out := make([]string, 0, len(d.Calendars))
	for _, c := range d.Calendars {
		out = append(out, c.ID)
	}
	return out
}

func (d *Definition) HasCalendar(id string) bool {
	for _, c := range d.Calendars {
		if c.ID == id {
			return true
		}
	}
	return false
}

// Hooks returns the validation hooks compiled from the resource's custom fields.
func (d *Definition) Hooks() []Hook {
	return d.hooks
}

func (d *Definition) location() *time.Location {
	if d.Location == nil {
		return time.UTC
	}
	return d.Location
}

// Validate checks the definition's internal invariants.
func (d *Definition) Validate() error {
	var errs []error
	if strings.TrimSpace(d.ID) == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if strings.TrimSpace(d.Name) == "" {
		errs = append(errs, errors.New("resource_name is required"))
	}
	if len(d.Calendars) == 0 {
		errs = append(errs, errors.New("at least one calendar is required"))
	}
	seen := make(map[string]struct{}, len(d.Calendars))
	for _, c := range d.Calendars {
		if strings.TrimSpace(c.ID) == "" {
			errs = append(errs, fmt.Errorf("calendar %q: id is required", c.Label))
			continue
		}
		if _, ok := seen[c.ID]; ok {
			errs = append(errs, fmt.Errorf("calendar %q listed twice", c.ID))
		}
		seen[c.ID] = struct{}{}
		if c.Color != "" && !hexColor.MatchString(c.Color) {
			errs = append(errs, fmt.Errorf("calendar %q: color %q is not #RRGGBB", c.ID, c.Color))
		}
	}
	if !d.DayStart.Before(d.DayEnd) {
		errs = append(errs, fmt.Errorf("day_start_time %s must be before day_end_time %s", d.DayStart, d.DayEnd))
	}
	if d.IncrementMinutes <= 0 {
		errs = append(errs, errors.New("minutes_increment must be positive"))
	} else if d.MaxDurationMinutes <= 0 || d.MaxDurationMinutes%d.IncrementMinutes != 0 {
		errs = append(errs, fmt.Errorf("maximum_minutes %d must be a positive multiple of minutes_increment %d", d.MaxDurationMinutes, d.IncrementMinutes))
	}
	if d.MaxDaysAhead < 0 {
		errs = append(errs, errors.New("maximum_days_ahead must not be negative"))
	}
	if d.ReminderLeadMinutes < 0 {
		errs = append(errs, errors.New("minutes_before_reminder must not be negative"))
	}
	if d.CalendarsShown < 0 || d.CalendarsShown > MaxCalendarsShown {
		errs = append(errs, fmt.Errorf("calendars_shown must be between 0 and %d", MaxCalendarsShown))
	}
	names := make(map[string]struct{}, len(d.Fields))
	for _, f := range d.Fields {
		if _, ok := names[f.Name]; ok {
			errs = append(errs, fmt.Errorf("custom field %q declared twice", f.Name))
		}
		names[f.Name] = struct{}{}
	}
	return errors.Join(errs...)
}
