package resource

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type LoadOptions struct {
	Location *time.Location
	Getenv   func(string) string
}

func (o LoadOptions) getenv() func(string) string {
	if o.Getenv != nil {
		return o.Getenv
	}
	return os.Getenv
}

// file is the on-disk shape of a resource definition.
type file struct {
	ID                  string       `yaml:"file_prefix"`
	Name                string       `yaml:"resource_name"`
	Description         string       `yaml:"description"`
	Emoji               string       `yaml:"emoji"`
	Calendars           calendarList `yaml:"calendars"`
	DayStart            ClockTime    `yaml:"day_start_time"`
	DayEnd              ClockTime    `yaml:"day_end_time"`
	IncrementMinutes    int          `yaml:"minutes_increment"`
	MaxDurationMinutes  int          `yaml:"maximum_minutes"`
	MaxDaysAhead        *int         `yaml:"maximum_days_ahead"`
	ReminderLeadMinutes int          `yaml:"minutes_before_reminder"`
	AllowShareable      bool         `yaml:"allow_shareable"`
	AllowEndNextDay     bool         `yaml:"allow_end_next_day"`
	CalendarsShown      int          `yaml:"calendars_shown"`
	Fields              []Field      `yaml:"custom_form_fields"`
}

// calendarList accepts either an ordered mapping of label to {id, color}
// or a sequence of {id, label, color}. Mapping order is kept.
type calendarList []Calendar

type calendarEntry struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
	Color string `yaml:"color"`
}

func (l *calendarList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.MappingNode:
		out := make(calendarList, 0, len(value.Content)/2)
		for i := 0; i+1 < len(value.Content); i += 2 {
			var e calendarEntry
			if err := value.Content[i+1].Decode(&e); err != nil {
				return err
			}
			out = append(out, Calendar{ID: e.ID, Label: value.Content[i].Value, Color: e.Color})
		}
		*l = out
	case yaml.SequenceNode:
		var entries []calendarEntry
		if err := value.Decode(&entries); err != nil {
			return err
		}
		out := make(calendarList, 0, len(entries))
		for _, e := range entries {
			label := e.Label
			if label == "" {
				label = e.ID
			}
			out = append(out, Calendar{ID: e.ID, Label: label, Color: e.Color})
		}
		*l = out
	default:
		return fmt.Errorf("line %d: calendars must be a mapping or a list", value.Line)
	}
	return nil
}

// Parse decodes one resource definition. fallbackID is used when the file has no file_prefix.
func Parse(data []byte, fallbackID string, opts LoadOptions) (*Definition, error) {
	maxDays := DefaultMaxDaysAhead
	f := file{
		DayStart:            NewClockTime(0, 0),
		DayEnd:              NewClockTime(23, 59),
		IncrementMinutes:    DefaultIncrementMinutes,
		MaxDurationMinutes:  DefaultMaxDurationMinutes,
		MaxDaysAhead:        &maxDays,
		ReminderLeadMinutes: DefaultReminderLeadMinutes,
		CalendarsShown:      MaxCalendarsShown,
	}

	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&f); err != nil {
		return nil, err
	}

	d := &Definition{
		ID:                  strings.TrimSpace(f.ID),
		Name:                strings.TrimSpace(f.Name),
		Description:         f.Description,
		Emoji:               f.Emoji,
		Calendars:           []Calendar(f.Calendars),
		DayStart:            f.DayStart,
		DayEnd:              f.DayEnd,
		IncrementMinutes:    f.IncrementMinutes,
		MaxDurationMinutes:  f.MaxDurationMinutes,
		ReminderLeadMinutes: f.ReminderLeadMinutes,
		AllowShareable:      f.AllowShareable,
		AllowEndNextDay:     f.AllowEndNextDay,
		CalendarsShown:      f.CalendarsShown,
		Fields:              f.Fields,
		Location:            opts.Location,
	}
	if d.ID == "" {
		d.ID = fallbackID
	}
	// maximum_days_ahead: null leaves the pointer nil, meaning no limit.
	if f.MaxDaysAhead != nil {
		if *f.MaxDaysAhead <= 0 {
			return nil, fmt.Errorf("maximum_days_ahead must be positive or null, got %d", *f.MaxDaysAhead)
		}
		d.MaxDaysAhead = *f.MaxDaysAhead
	}
	if d.Location == nil {
		d.Location = time.UTC
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}

	getenv := opts.getenv()
	for _, field := range d.Fields {
		h, err := field.compile(getenv)
		if err != nil {
			return nil, err
		}
		d.hooks = append(d.hooks, h)
	}
	return d, nil
}

func LoadFile(path string, opts LoadOptions) (*Definition, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	d, err := Parse(b, id, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Catalog is the immutable set of resources the service was started with.
type Catalog struct {
	ordered []*Definition
	byID    map[string]*Definition
}

func NewCatalog(defs ...*Definition) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]*Definition, len(defs))}
	for _, d := range defs {
		if _, ok := c.byID[d.ID]; ok {
			return nil, fmt.Errorf("resource %q defined twice", d.ID)
		}
		c.byID[d.ID] = d
		c.ordered = append(c.ordered, d)
	}
	return c, nil
}

// LoadDir reads every .yaml/.yml file in dir, sorted by name.
func LoadDir(dir string, opts LoadOptions) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var (
		defs []*Definition
		errs []error
	)
	for _, name := range names {
		d, err := LoadFile(filepath.Join(dir, name), opts)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		defs = append(defs, d)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("no resource definitions found in %s", dir)
	}
	return NewCatalog(defs...)
}

func (c *Catalog) Get(id string) (*Definition, bool) {
	d, ok := c.byID[id]
	return d, ok
}

func (c *Catalog) All() []*Definition {
	return append([]*Definition(nil), c.ordered...)
}

func (c *Catalog) Len() int {
	return len(c.ordered)
}
