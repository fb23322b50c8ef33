package reservations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"reserveit/backend/internal/availability"
	"reserveit/backend/internal/calendar"
	"reserveit/backend/internal/domain"
	"reserveit/backend/internal/resource"
	"reserveit/backend/internal/store"
)

const compensationTimeout = 15 * time.Second

type Service struct {
	catalog  *resource.Catalog
	gw       calendar.Gateway
	resolver *availability.Resolver
	repo     store.ReservationRepository
	orphans  store.OrphanRepository

	hooks       map[string][]resource.Hook
	concurrency int
	now         func() time.Time
	newEventID  func() (string, error)
	log         *slog.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		s.log = log
	}
}

// WithOrphans records events that could not be cleaned up.
func WithOrphans(repo store.OrphanRepository) Option {
	return func(s *Service) {
		s.orphans = repo
	}
}

// WithValidationHook adds a hook for resourceID, or for every resource when
// resourceID is empty. Hooks run after the resource's own field checks.
func WithValidationHook(resourceID string, hook resource.Hook) Option {
	return func(s *Service) {
		s.hooks[resourceID] = append(s.hooks[resourceID], hook)
	}
}

func WithResolverConcurrency(n int) Option {
	return func(s *Service) {
		s.concurrency = n
	}
}

func WithEventIDs(next func() (string, error)) Option {
	return func(s *Service) {
		s.newEventID = next
	}
}

func NewService(catalog *resource.Catalog, gw calendar.Gateway, repo store.ReservationRepository, opts ...Option) *Service {
	s := &Service{
		catalog:    catalog,
		gw:         gw,
		repo:       repo,
		hooks:      map[string][]resource.Hook{},
		now:        time.Now,
		newEventID: newEventID,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.resolver = availability.NewResolver(gw, s.concurrency)
	s.log = s.log.With(slog.String("component", "reservations"))
	return s
}

// newEventID returns a v7 UUID in the base32hex alphabet Google accepts for
// client-chosen event ids.
func newEventID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}

func (s *Service) Catalog() *resource.Catalog {
	return s.catalog
}

type SubmitInput struct {
	Identity   string
	ResourceID string
	Start      time.Time
	End        time.Time
	Shareable  bool
	// Extensions feed validation hooks only and are never stored.
	Extensions map[string]string
}

func (s *Service) Submit(ctx context.Context, in SubmitInput) (domain.Reservation, error) {
	now := s.now()

	def, ok := s.catalog.Get(strings.TrimSpace(in.ResourceID))
	if !ok {
		return domain.Reservation{}, rejected(fmt.Sprintf("Unknown resource %q", in.ResourceID))
	}
	identity, err := domain.NormalizeIdentity(in.Identity)
	if err != nil {
		return domain.Reservation{}, rejected("A valid email address is required")
	}
	iv := domain.Interval{Start: in.Start, End: in.End}.UTC()
	if err := s.validate(def, iv, in.Shareable, in.Extensions, now); err != nil {
		return domain.Reservation{}, err
	}

	if _, err := s.repo.GetActive(ctx, identity, now); err == nil {
		return domain.Reservation{}, ErrAlreadyReserved
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.Reservation{}, err
	}

	calendarID, err := s.resolve(ctx, def, availability.Request{Interval: iv, Shareable: in.Shareable})
	if err != nil {
		return domain.Reservation{}, err
	}

	eventID, err := s.createEvent(ctx, def, calendarID, identity, iv, in.Shareable)
	if err != nil {
		return domain.Reservation{}, err
	}

	row := newRow(def, identity, calendarID, eventID, iv, in.Shareable)
	saved, err := s.repo.InsertActive(ctx, row, now)
	if err != nil {
		s.compensate(ctx, identity, calendarID, eventID, "store insert failed")
		if errors.Is(err, store.ErrRowExists) {
			return domain.Reservation{}, ErrAlreadyReserved
		}
		return domain.Reservation{}, fmt.Errorf("%w: save reservation: %w", ErrExternalService, err)
	}

	s.log.Info("reservation created",
		slog.String("identity", identity),
		slog.String("resource_id", def.ID),
		slog.String("calendar_id", calendarID),
		slog.String("event_id", eventID),
		slog.Time("start", iv.Start),
		slog.Time("end", iv.End),
	)
	return saved, nil
}

func (s *Service) Get(ctx context.Context, rawIdentity string) (domain.Reservation, error) {
	identity, err := domain.NormalizeIdentity(rawIdentity)
	if err != nil {
		return domain.Reservation{}, rejected("A valid email address is required")
	}
	row, err := s.repo.GetActive(ctx, identity, s.now())
	if errors.Is(err, store.ErrNotFound) {
		return domain.Reservation{}, ErrNotReserved
	}
	return row, err
}

// Cancel removes the calendar event first and the row second, so a failed
// delete leaves the reservation intact.
func (s *Service) Cancel(ctx context.Context, rawIdentity string) (domain.Reservation, error) {
	row, err := s.Get(ctx, rawIdentity)
	if err != nil {
		return domain.Reservation{}, err
	}

	if err := s.gw.DeleteEvent(ctx, row.CalendarID, row.EventID); err != nil {
		s.log.Warn("cancel: delete event failed", slog.String("identity", row.Identity), slog.String("event_id", row.EventID), slog.Any("err", err))
		return domain.Reservation{}, calendar.External("delete event", err)
	}

	if err := s.repo.DeleteActive(ctx, row.Identity, row.EventID); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return domain.Reservation{}, err
		}
		// The row moved on underneath us. Fine if it is gone, not if it was replaced.
		if _, gerr := s.repo.GetActive(ctx, row.Identity, s.now()); !errors.Is(gerr, store.ErrNotFound) {
			return domain.Reservation{}, ErrConcurrentUpdate
		}
	}

	s.log.Info("reservation cancelled", slog.String("identity", row.Identity), slog.String("event_id", row.EventID))
	return row, nil
}

type RescheduleInput struct {
	Identity   string
	Start      time.Time
	End        time.Time
	Shareable  bool
	Extensions map[string]string
}

// Reschedule moves an active reservation to a new interval on the same resource.
// The old event is removed only after the row points at the new one.
func (s *Service) Reschedule(ctx context.Context, in RescheduleInput) (domain.Reservation, error) {
	now := s.now()

	current, err := s.Get(ctx, in.Identity)
	if err != nil {
		return domain.Reservation{}, err
	}
	def, ok := s.catalog.Get(current.ResourceID)
	if !ok {
		return domain.Reservation{}, rejected(fmt.Sprintf("Resource %q is no longer offered", current.ResourceID))
	}
	iv := domain.Interval{Start: in.Start, End: in.End}.UTC()
	if err := s.validate(def, iv, in.Shareable, in.Extensions, now); err != nil {
		return domain.Reservation{}, err
	}

	calendarID, err := s.resolve(ctx, def, availability.Request{
		Interval:      iv,
		Shareable:     in.Shareable,
		IgnoreEventID: current.EventID,
	})
	if err != nil {
		return domain.Reservation{}, err
	}

	eventID, err := s.createEvent(ctx, def, calendarID, current.Identity, iv, in.Shareable)
	if err != nil {
		return domain.Reservation{}, err
	}

	row := newRow(def, current.Identity, calendarID, eventID, iv, in.Shareable)
	row.CreatedAt = current.CreatedAt
	saved, err := s.repo.ReplaceActive(ctx, current.EventID, row)
	if err != nil {
		s.compensate(ctx, current.Identity, calendarID, eventID, "store replace failed")
		if errors.Is(err, store.ErrNotFound) {
			return domain.Reservation{}, ErrConcurrentUpdate
		}
		return domain.Reservation{}, fmt.Errorf("%w: save reservation: %w", ErrExternalService, err)
	}

	if err := s.gw.DeleteEvent(ctx, current.CalendarID, current.EventID); err != nil {
		s.orphan(ctx, current.Identity, current.CalendarID, current.EventID, "superseded event delete failed", err)
	}

	s.log.Info("reservation rescheduled",
		slog.String("identity", current.Identity),
		slog.String("old_event_id", current.EventID),
		slog.String("event_id", eventID),
		slog.String("calendar_id", calendarID),
		slog.Time("start", iv.Start),
		slog.Time("end", iv.End),
	)
	return saved, nil
}

func (s *Service) validate(def *resource.Definition, iv domain.Interval, shareable bool, extensions map[string]string, now time.Time) error {
	if err := def.CheckInterval(iv, now); err != nil {
		var ivErr *resource.IntervalError
		if errors.As(err, &ivErr) {
			return invalidInterval(ivErr.Reason)
		}
		return invalidInterval(err.Error())
	}
	if shareable && !def.AllowShareable {
		return rejected(fmt.Sprintf("%s can't be shared", def.Name))
	}

	if extensions == nil {
		extensions = map[string]string{}
	}
	hooks := append([]resource.Hook{}, def.Hooks()...)
	hooks = append(hooks, s.hooks[def.ID]...)
	hooks = append(hooks, s.hooks[""]...)
	for _, hook := range hooks {
		if err := hook(extensions); err != nil {
			var rej *resource.Rejection
			if errors.As(err, &rej) {
				return rejected(rej.Message)
			}
			return rejected(err.Error())
		}
	}
	return nil
}

func (s *Service) resolve(ctx context.Context, def *resource.Definition, req availability.Request) (string, error) {
	calendarID, err := s.resolver.FindAssignableCalendar(ctx, def, req)
	if errors.Is(err, availability.ErrNoCalendarAvailable) {
		return "", ErrNoAvailability
	}
	return calendarID, err
}

// createEvent never retries. A failed create may still have landed at the
// provider, so the pre-generated id is deleted on the way out.
func (s *Service) createEvent(ctx context.Context, def *resource.Definition, calendarID, identity string, iv domain.Interval, shareable bool) (string, error) {
	eventID, err := s.newEventID()
	if err != nil {
		return "", fmt.Errorf("generate event id: %w", err)
	}

	spec := calendar.EventSpec{
		ID:           eventID,
		Title:        def.EventTitle(),
		Description:  eventDescription(def, identity, shareable),
		Interval:     iv,
		Invitee:      identity,
		Shareable:    shareable,
		ReminderLead: def.ReminderLead(),
	}
	created, err := s.gw.CreateEvent(ctx, calendarID, spec)
	if err != nil {
		s.log.Warn("create event failed", slog.String("identity", identity), slog.String("calendar_id", calendarID), slog.String("event_id", eventID), slog.Any("err", err))
		s.compensate(ctx, identity, calendarID, eventID, "create event failed")
		return "", calendar.External("create event", err)
	}
	if created != "" {
		eventID = created
	}
	return eventID, nil
}

func eventDescription(def *resource.Definition, identity string, shareable bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Reserved by %s.", identity)
	if def.AllowShareable {
		if shareable {
			b.WriteString(" Open to sharing.")
		} else {
			b.WriteString(" Not shared.")
		}
	}
	if def.Location != nil {
		fmt.Fprintf(&b, " Times are %s.", def.Location.String())
	}
	return b.String()
}

func newRow(def *resource.Definition, identity, calendarID, eventID string, iv domain.Interval, shareable bool) domain.Reservation {
	row := domain.Reservation{
		Identity:   identity,
		ResourceID: def.ID,
		CalendarID: calendarID,
		EventID:    eventID,
		Title:      def.EventTitle(),
		StartTime:  iv.Start,
		EndTime:    iv.End,
		Shareable:  shareable,
	}
	if lead := def.ReminderLead(); lead > 0 {
		at := iv.Start.Add(-lead)
		row.RemindAt = &at
	}
	return row
}

// compensate deletes an event the store does not know about. It outlives the
// request context so a cancelled caller still gets cleaned up after.
func (s *Service) compensate(ctx context.Context, identity, calendarID, eventID, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	if err := s.gw.DeleteEvent(ctx, calendarID, eventID); err != nil {
		s.orphan(ctx, identity, calendarID, eventID, reason, err)
		return
	}
	s.log.Info("compensating delete done", slog.String("identity", identity), slog.String("calendar_id", calendarID), slog.String("event_id", eventID), slog.String("reason", reason))
}

func (s *Service) orphan(ctx context.Context, identity, calendarID, eventID, reason string, cause error) {
	s.log.Error("calendar event orphaned",
		slog.String("identity", identity),
		slog.String("calendar_id", calendarID),
		slog.String("event_id", eventID),
		slog.String("reason", reason),
		slog.Any("err", cause),
	)
	if s.orphans == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()
	_, err := s.orphans.RecordOrphan(ctx, domain.OrphanedEvent{
		CalendarID: calendarID,
		EventID:    eventID,
		Identity:   identity,
		Reason:     reason + ": " + cause.Error(),
	})
	if err != nil {
		s.log.Error("record orphan failed", slog.String("event_id", eventID), slog.Any("err", err))
	}
}
