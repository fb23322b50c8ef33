// Package gcal implements the calendar gateway on the Google Calendar API.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gcalendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"reserveit/backend/internal/calendar"
	"reserveit/backend/internal/domain"
)

const listPageSize = 250

type Gateway struct {
	svc *gcalendar.Service
	loc *time.Location

	// sendUpdates controls invitation emails: "all" or "none".
	sendUpdates string
}

type Option func(*Gateway)

// WithLocation sets the zone used to interpret all-day events.
func WithLocation(loc *time.Location) Option {
	return func(g *Gateway) {
		if loc != nil {
			g.loc = loc
		}
	}
}

func WithoutInvitations() Option {
	return func(g *Gateway) {
		g.sendUpdates = "none"
	}
}

func New(ctx context.Context, client *http.Client, opts []Option, clientOpts ...option.ClientOption) (*Gateway, error) {
	if client != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(client))
	}
	svc, err := gcalendar.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	g := &Gateway{svc: svc, loc: time.UTC, sendUpdates: "all"}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

func (g *Gateway) ListEvents(ctx context.Context, calendarID string, iv domain.Interval) ([]calendar.Event, error) {
	var out []calendar.Event
	pageToken := ""
	for {
		call := g.svc.Events.List(calendarID).
			TimeMin(iv.Start.UTC().Format(time.RFC3339)).
			TimeMax(iv.End.UTC().Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			MaxResults(listPageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		res, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		for _, item := range res.Items {
			ev, ok, err := g.toEvent(item)
			if err != nil {
				return nil, err
			}
			if !ok || !ev.Interval().Overlaps(iv) {
				continue
			}
			out = append(out, ev)
		}
		if res.NextPageToken == "" {
			return out, nil
		}
		pageToken = res.NextPageToken
	}
}

// toEvent converts an API event. ok is false for events that do not block time.
func (g *Gateway) toEvent(item *gcalendar.Event) (calendar.Event, bool, error) {
	if item == nil || item.Status == "cancelled" || item.Transparency == "transparent" {
		return calendar.Event{}, false, nil
	}
	start, err := g.parseEventTime(item.Start)
	if err != nil {
		return calendar.Event{}, false, fmt.Errorf("event %s start: %w", item.Id, err)
	}
	end, err := g.parseEventTime(item.End)
	if err != nil {
		return calendar.Event{}, false, fmt.Errorf("event %s end: %w", item.Id, err)
	}
	return calendar.Event{
		ID:        item.Id,
		Title:     item.Summary,
		Start:     start,
		End:       end,
		Shareable: isShareable(item),
	}, true, nil
}

func (g *Gateway) parseEventTime(dt *gcalendar.EventDateTime) (time.Time, error) {
	if dt == nil {
		return time.Time{}, errors.New("missing time")
	}
	if dt.DateTime != "" {
		return time.Parse(time.RFC3339, dt.DateTime)
	}
	loc := g.loc
	if dt.TimeZone != "" {
		if l, err := time.LoadLocation(dt.TimeZone); err == nil {
			loc = l
		}
	}
	return time.ParseInLocation("2006-01-02", dt.Date, loc)
}

func isShareable(item *gcalendar.Event) bool {
	if item.ExtendedProperties == nil {
		return false
	}
	return item.ExtendedProperties.Private[calendar.ShareableProperty] == "true" ||
		item.ExtendedProperties.Shared[calendar.ShareableProperty] == "true"
}

func (g *Gateway) CreateEvent(ctx context.Context, calendarID string, spec calendar.EventSpec) (string, error) {
	ev := &gcalendar.Event{
		Id:          spec.ID,
		Summary:     spec.Title,
		Description: spec.Description,
		Start:       &gcalendar.EventDateTime{DateTime: spec.Interval.Start.Format(time.RFC3339)},
		End:         &gcalendar.EventDateTime{DateTime: spec.Interval.End.Format(time.RFC3339)},
		ExtendedProperties: &gcalendar.EventExtendedProperties{
			Private: map[string]string{calendar.ShareableProperty: fmt.Sprint(spec.Shareable)},
		},
	}
	if spec.Invitee != "" {
		ev.Attendees = []*gcalendar.EventAttendee{{Email: spec.Invitee}}
	}
	if spec.ReminderLead > 0 {
		ev.Reminders = &gcalendar.EventReminders{
			UseDefault: false,
			Overrides: []*gcalendar.EventReminder{
				{Method: "email", Minutes: int64(spec.ReminderLead / time.Minute)},
			},
			ForceSendFields: []string{"UseDefault"},
		}
	}

	created, err := g.svc.Events.Insert(calendarID, ev).
		SendUpdates(g.sendUpdates).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("insert event: %w", err)
	}
	return created.Id, nil
}

func (g *Gateway) UpdateEventTitle(ctx context.Context, calendarID, eventID, title string) error {
	_, err := g.svc.Events.Patch(calendarID, eventID, &gcalendar.Event{Summary: title}).
		SendUpdates(g.sendUpdates).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("patch event: %w", err)
	}
	return nil
}

func (g *Gateway) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	err := g.svc.Events.Delete(calendarID, eventID).
		SendUpdates(g.sendUpdates).
		Context(ctx).
		Do()
	if err != nil {
		if isGone(err) {
			return nil
		}
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

func isGone(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone
}
