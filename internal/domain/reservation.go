package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Reservation is the single active booking held by an identity.
type Reservation struct {
	bun.BaseModel `bun:"table:reservations"`

	Identity     string     `bun:"identity,pk"`
	ResourceID   string     `bun:"resource_id,notnull"`
	CalendarID   string     `bun:"calendar_id,notnull"`
	EventID      string     `bun:"event_id,notnull"`
	Title        string     `bun:"title,notnull"`
	StartTime    time.Time  `bun:"start_time,notnull"`
	EndTime      time.Time  `bun:"end_time,notnull"`
	Shareable    bool       `bun:"shareable,notnull"`
	ReminderSent bool       `bun:"reminder_sent,notnull"`
	RemindAt     *time.Time `bun:"remind_at"`
	CreatedAt    time.Time  `bun:"created_at,notnull"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull"`
}

func (r *Reservation) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		r.UpdatedAt = now
	}
	return nil
}

func (r Reservation) Interval() Interval {
	return Interval{Start: r.StartTime, End: r.EndTime}
}

// Active reports whether the reservation still holds its identity at now.
func (r Reservation) Active(now time.Time) bool {
	return r.EndTime.After(now)
}

// OrphanedEvent is an external event left behind by a failed compensating delete.
type OrphanedEvent struct {
	bun.BaseModel `bun:"table:orphaned_events"`

	ID         uuid.UUID  `bun:"id,pk,type:uuid"`
	CalendarID string     `bun:"calendar_id,notnull"`
	EventID    string     `bun:"event_id,notnull"`
	Identity   string     `bun:"identity,notnull"`
	Reason     string     `bun:"reason,notnull"`
	CreatedAt  time.Time  `bun:"created_at,notnull"`
	ResolvedAt *time.Time `bun:"resolved_at"`
}

func (o *OrphanedEvent) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); !ok {
		return nil
	}
	if o.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		o.ID = id
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	return nil
}

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Valid() bool {
	return i.End.After(i.Start)
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && i.End.After(o.Start)
}

func (i Interval) UTC() Interval {
	return Interval{Start: i.Start.UTC(), End: i.End.UTC()}
}

var ErrInvalidIdentity = errors.New("identity must be an email address")

// NormalizeIdentity trims and lower-cases an email address so it can act as a key.
func NormalizeIdentity(raw string) (string, error) {
	id := strings.ToLower(strings.TrimSpace(raw))
	at := strings.LastIndex(id, "@")
	if at <= 0 || at == len(id)-1 {
		return "", ErrInvalidIdentity
	}
	if strings.ContainsAny(id, " \t\r\n<>,;") {
		return "", ErrInvalidIdentity
	}
	if !strings.Contains(id[at+1:], ".") {
		return "", ErrInvalidIdentity
	}
	return id, nil
}
