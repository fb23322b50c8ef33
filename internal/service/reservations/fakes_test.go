package reservations

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"reserveit/backend/internal/calendar"
	"reserveit/backend/internal/domain"
	"reserveit/backend/internal/resource"
	"reserveit/backend/internal/store"
)

const courtsYAML = `
file_prefix: courts
resource_name: Courts
calendars:
  Court 1:
    id: c1
  Court 2:
    id: c2
day_start_time: 08:00 AM
day_end_time: 08:00 PM
minutes_increment: 60
maximum_minutes: 180
minutes_before_reminder: 60
allow_shareable: true
`

const studioYAML = `
file_prefix: studio
resource_name: Studio
calendars:
  - id: s1
day_start_time: 09:00 AM
day_end_time: 05:00 PM
minutes_increment: 30
maximum_minutes: 120
minutes_before_reminder: 0
custom_form_fields:
  - name: phone
    label: Phone number
    required: true
`

// testNow is a Monday morning, an hour before the courts open.
var testNow = time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func testCatalog(t *testing.T) *resource.Catalog {
	t.Helper()
	var defs []*resource.Definition
	for _, src := range []string{courtsYAML, studioYAML} {
		d, err := resource.Parse([]byte(src), "", resource.LoadOptions{})
		if err != nil {
			t.Fatalf("Parse error: %v", err)
		}
		defs = append(defs, d)
	}
	c, err := resource.NewCatalog(defs...)
	if err != nil {
		t.Fatalf("NewCatalog error: %v", err)
	}
	return c
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	svc     *Service
	cal     *memCalendar
	repo    *memRepo
	orphans *fakeOrphans
	clock   *fakeClock
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		cal:     newMemCalendar(),
		repo:    newMemRepo(),
		orphans: &fakeOrphans{},
		clock:   &fakeClock{t: testNow},
	}
	base := []Option{
		WithClock(h.clock.Now),
		WithLogger(discardLogger()),
		WithOrphans(h.orphans),
	}
	h.svc = NewService(testCatalog(t), h.cal, h.repo, append(base, opts...)...)
	return h
}

// memCalendar is an in-memory calendar provider. The *Err fields make the
// matching call fail; createFn replaces the default create.
type memCalendar struct {
	mu     sync.Mutex
	events map[string][]calendar.Event

	listErr    map[string]error
	deleteErr  error
	retitleErr error
	createFn   func(ctx context.Context, calendarID string, spec calendar.EventSpec) error
	retitleFn  func(ctx context.Context) error

	lists, creates, deletes, retitles int
}

func newMemCalendar() *memCalendar {
	return &memCalendar{events: map[string][]calendar.Event{}, listErr: map[string]error{}}
}

func (m *memCalendar) add(calendarID string, ev calendar.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[calendarID] = append(m.events[calendarID], ev)
}

func (m *memCalendar) eventsOn(calendarID string) []calendar.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]calendar.Event(nil), m.events[calendarID]...)
}

func (m *memCalendar) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, evs := range m.events {
		n += len(evs)
	}
	return n
}

func (m *memCalendar) ListEvents(ctx context.Context, calendarID string, iv domain.Interval) ([]calendar.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	if err := m.listErr[calendarID]; err != nil {
		return nil, err
	}
	var out []calendar.Event
	for _, ev := range m.events[calendarID] {
		if ev.Interval().Overlaps(iv) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *memCalendar) CreateEvent(ctx context.Context, calendarID string, spec calendar.EventSpec) (string, error) {
	m.mu.Lock()
	m.creates++
	fn := m.createFn
	m.mu.Unlock()

	if fn != nil {
		if err := fn(ctx, calendarID, spec); err != nil {
			return "", err
		}
	}
	m.add(calendarID, calendar.Event{
		ID:        spec.ID,
		Title:     spec.Title,
		Start:     spec.Interval.Start,
		End:       spec.Interval.End,
		Shareable: spec.Shareable,
	})
	return spec.ID, nil
}

func (m *memCalendar) UpdateEventTitle(ctx context.Context, calendarID, eventID, title string) error {
	m.mu.Lock()
	fn := m.retitleFn
	m.mu.Unlock()
	if fn != nil {
		if err := fn(ctx); err != nil {
			m.mu.Lock()
			m.retitles++
			m.mu.Unlock()
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.retitles++
	if m.retitleErr != nil {
		return m.retitleErr
	}
	for i, ev := range m.events[calendarID] {
		if ev.ID == eventID {
			m.events[calendarID][i].Title = title
		}
	}
	return nil
}

func (m *memCalendar) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	if m.deleteErr != nil {
		return m.deleteErr
	}
	kept := m.events[calendarID][:0]
	for _, ev := range m.events[calendarID] {
		if ev.ID != eventID {
			kept = append(kept, ev)
		}
	}
	m.events[calendarID] = kept
	return nil
}

// memRepo mirrors the SQL repository: one row per identity, ended rows are inactive.
type memRepo struct {
	mu   sync.Mutex
	rows map[string]domain.Reservation

	insertErr  error
	replaceErr error
}

func newMemRepo() *memRepo {
	return &memRepo{rows: map[string]domain.Reservation{}}
}

func (r *memRepo) GetActive(ctx context.Context, identity string, now time.Time) (domain.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[identity]
	if !ok || !row.Active(now) {
		return domain.Reservation{}, store.ErrNotFound
	}
	return row, nil
}

func (r *memRepo) InsertActive(ctx context.Context, row domain.Reservation, now time.Time) (domain.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return domain.Reservation{}, r.insertErr
	}
	if existing, ok := r.rows[row.Identity]; ok && existing.Active(now) {
		return domain.Reservation{}, store.ErrRowExists
	}
	row.CreatedAt = now
	row.UpdatedAt = now
	r.rows[row.Identity] = row
	return row, nil
}

func (r *memRepo) ReplaceActive(ctx context.Context, oldEventID string, row domain.Reservation) (domain.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replaceErr != nil {
		return domain.Reservation{}, r.replaceErr
	}
	existing, ok := r.rows[row.Identity]
	if !ok || existing.EventID != oldEventID {
		return domain.Reservation{}, store.ErrNotFound
	}
	row.ReminderSent = false
	r.rows[row.Identity] = row
	return row, nil
}

func (r *memRepo) DeleteActive(ctx context.Context, identity, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.rows[identity]
	if !ok || existing.EventID != eventID {
		return store.ErrNotFound
	}
	delete(r.rows, identity)
	return nil
}

func (r *memRepo) ClaimReminder(ctx context.Context, identity, eventID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[identity]
	if !ok || row.EventID != eventID || row.ReminderSent {
		return false, nil
	}
	row.ReminderSent = true
	r.rows[identity] = row
	return true, nil
}

func (r *memRepo) ReleaseReminder(ctx context.Context, identity, eventID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[identity]
	if !ok || row.EventID != eventID || !row.ReminderSent {
		return store.ErrNotFound
	}
	row.ReminderSent = false
	r.rows[identity] = row
	return nil
}

func (r *memRepo) ListDueForReminder(ctx context.Context, now time.Time) ([]domain.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Reservation
	for _, row := range r.rows {
		if row.ReminderSent || row.RemindAt == nil {
			continue
		}
		if !row.RemindAt.After(now) && now.Before(row.StartTime) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (r *memRepo) ListActive(ctx context.Context, now time.Time) ([]domain.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Reservation
	for _, row := range r.rows {
		if row.Active(now) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *memRepo) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, row := range r.rows {
		if !row.Active(now) {
			delete(r.rows, id)
			n++
		}
	}
	return n, nil
}

type fakeOrphans struct {
	mu       sync.Mutex
	recorded []domain.OrphanedEvent
}

func (f *fakeOrphans) RecordOrphan(ctx context.Context, o domain.OrphanedEvent) (domain.OrphanedEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o.ID = uuid.New()
	f.recorded = append(f.recorded, o)
	return o, nil
}

func (f *fakeOrphans) ListOrphans(ctx context.Context, includeResolved bool) ([]domain.OrphanedEvent, error) {
	panic("ListOrphans not configured")
}

func (f *fakeOrphans) ResolveOrphan(ctx context.Context, id uuid.UUID, at time.Time) error {
	panic("ResolveOrphan not configured")
}

func (f *fakeOrphans) all() []domain.OrphanedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.OrphanedEvent(nil), f.recorded...)
}
