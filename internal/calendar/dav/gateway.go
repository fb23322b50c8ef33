// Package dav implements the calendar gateway on a CalDAV server.
package dav

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"

	"reserveit/backend/internal/calendar"
	"reserveit/backend/internal/domain"
)

// ShareableProp carries the shareable flag on VEVENTs.
const ShareableProp = "X-RESERVEIT-SHAREABLE"

const productID = "-//reserveit//reservations//EN"

type Gateway struct {
	client *caldav.Client
	loc    *time.Location
	now    func() time.Time
}

type Config struct {
	URL      string
	Username string
	Password string
	Location *time.Location
	HTTP     *http.Client
}

func New(cfg Config) (*Gateway, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid caldav url %q", cfg.URL)
	}

	var httpClient webdav.HTTPClient = http.DefaultClient
	if cfg.HTTP != nil {
		httpClient = cfg.HTTP
	}
	if cfg.Username != "" {
		httpClient = webdav.HTTPClientWithBasicAuth(httpClient, cfg.Username, cfg.Password)
	}

	c, err := caldav.NewClient(httpClient, u.String())
	if err != nil {
		return nil, fmt.Errorf("create caldav client: %w", err)
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Gateway{client: c, loc: loc, now: time.Now}, nil
}

func objectPath(calendarID, eventID string) string {
	return strings.TrimRight(calendarID, "/") + "/" + eventID + ".ics"
}

func (g *Gateway) ListEvents(ctx context.Context, calendarID string, iv domain.Interval) ([]calendar.Event, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     ical.CompCalendar,
			AllProps: true,
			AllComps: true,
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: iv.Start.UTC(),
				End:   iv.End.UTC(),
			}},
		},
	}
	objects, err := g.client.QueryCalendar(ctx, calendarID, query)
	if err != nil {
		return nil, fmt.Errorf("query calendar: %w", err)
	}
	return eventsFromObjects(objects, iv, g.loc)
}

func eventsFromObjects(objects []caldav.CalendarObject, iv domain.Interval, loc *time.Location) ([]calendar.Event, error) {
	var out []calendar.Event
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		for _, ev := range obj.Data.Events() {
			if !blocksTime(ev) {
				continue
			}
			start, err := ev.DateTimeStart(loc)
			if err != nil {
				return nil, fmt.Errorf("%s: DTSTART: %w", obj.Path, err)
			}
			end, err := ev.DateTimeEnd(loc)
			if err != nil {
				return nil, fmt.Errorf("%s: DTEND: %w", obj.Path, err)
			}
			if end.IsZero() {
				end = start
			}
			e := calendar.Event{
				ID:        textProp(ev.Props, ical.PropUID),
				Title:     textProp(ev.Props, ical.PropSummary),
				Start:     start,
				End:       end,
				Shareable: strings.EqualFold(textProp(ev.Props, ShareableProp), "TRUE"),
			}
			if !e.Interval().Overlaps(iv) {
				continue
			}
			out = append(out, e)
		}
	}
	return out, nil
}

func blocksTime(ev ical.Event) bool {
	if strings.EqualFold(textProp(ev.Props, ical.PropTransparency), "TRANSPARENT") {
		return false
	}
	return !strings.EqualFold(textProp(ev.Props, ical.PropStatus), "CANCELLED")
}

func textProp(props ical.Props, name string) string {
	p := props.Get(name)
	if p == nil {
		return ""
	}
	v, err := p.Text()
	if err != nil {
		return p.Value
	}
	return v
}

func (g *Gateway) CreateEvent(ctx context.Context, calendarID string, spec calendar.EventSpec) (string, error) {
	cal := buildCalendar(spec, g.now())
	if _, err := g.client.PutCalendarObject(ctx, objectPath(calendarID, spec.ID), cal); err != nil {
		return "", fmt.Errorf("put event: %w", err)
	}
	return spec.ID, nil
}

func buildCalendar(spec calendar.EventSpec, now time.Time) *ical.Calendar {
	ev := ical.NewEvent()
	ev.Props.SetText(ical.PropUID, spec.ID)
	ev.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	ev.Props.SetText(ical.PropSummary, spec.Title)
	if spec.Description != "" {
		ev.Props.SetText(ical.PropDescription, spec.Description)
	}
	ev.Props.SetDateTime(ical.PropDateTimeStart, spec.Interval.Start.UTC())
	ev.Props.SetDateTime(ical.PropDateTimeEnd, spec.Interval.End.UTC())
	ev.Props.SetText(ical.PropStatus, "CONFIRMED")
	ev.Props.SetText(ShareableProp, strings.ToUpper(fmt.Sprint(spec.Shareable)))

	if spec.Invitee != "" {
		attendee := ical.NewProp(ical.PropAttendee)
		attendee.Value = "mailto:" + spec.Invitee
		ev.Props.Set(attendee)
	}
	if spec.ReminderLead > 0 {
		alarm := ical.NewComponent(ical.CompAlarm)
		alarm.Props.SetText(ical.PropAction, "DISPLAY")
		alarm.Props.SetText(ical.PropDescription, spec.Title)
		trigger := ical.NewProp(ical.PropTrigger)
		trigger.Value = fmt.Sprintf("-PT%dM", int(spec.ReminderLead/time.Minute))
		alarm.Props.Set(trigger)
		ev.Children = append(ev.Children, alarm)
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Children = append(cal.Children, ev.Component)
	return cal
}

func (g *Gateway) UpdateEventTitle(ctx context.Context, calendarID, eventID, title string) error {
	path := objectPath(calendarID, eventID)
	obj, err := g.client.GetCalendarObject(ctx, path)
	if err != nil {
		return fmt.Errorf("get event: %w", err)
	}
	if err := retitle(obj.Data, g.now(), title); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if _, err := g.client.PutCalendarObject(ctx, path, obj.Data); err != nil {
		return fmt.Errorf("put event: %w", err)
	}
	return nil
}

func retitle(cal *ical.Calendar, now time.Time, title string) error {
	if cal == nil {
		return errors.New("empty calendar object")
	}
	found := false
	for _, child := range cal.Children {
		if child.Name != ical.CompEvent {
			continue
		}
		child.Props.SetText(ical.PropSummary, title)
		child.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
		found = true
	}
	if !found {
		return errors.New("no VEVENT in calendar object")
	}
	return nil
}

func (g *Gateway) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	if err := g.client.RemoveAll(ctx, objectPath(calendarID, eventID)); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

// isNotFound matches the client's HTTP error text; its error type is internal to go-webdav.
func isNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "404 Not Found") || strings.Contains(msg, "410 Gone")
}
