package resource

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ClockTime is a time of day with minute precision, stored as minutes after midnight.
type ClockTime int

const (
	ampmLayout  = "03:04 PM"
	clockLayout = "15:04"
)

func NewClockTime(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

// ParseClockTime accepts "08:00 AM" style times and 24-hour "08:00".
func ParseClockTime(s string) (ClockTime, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, layout := range []string{ampmLayout, "3:04 PM", "03:04PM", "3:04PM", clockLayout} {
		t, err := time.Parse(layout, s)
		if err == nil {
			return NewClockTime(t.Hour(), t.Minute()), nil
		}
	}
	return 0, fmt.Errorf("invalid clock time %q, want e.g. %q", s, "08:00 AM")
}

func (c ClockTime) Hour() int   { return int(c) / 60 }
func (c ClockTime) Minute() int { return int(c) % 60 }

func (c ClockTime) Before(o ClockTime) bool {
	return c < o
}

// On returns the instant at this clock time on the date of day, in loc.
func (c ClockTime) On(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, c.Hour(), c.Minute(), 0, 0, loc)
}

func (c ClockTime) String() string {
	return time.Date(2000, 1, 1, c.Hour(), c.Minute(), 0, 0, time.UTC).Format(ampmLayout)
}

func (c *ClockTime) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParseClockTime(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*c = parsed
	return nil
}

func (c ClockTime) MarshalYAML() (any, error) {
	return c.String(), nil
}
