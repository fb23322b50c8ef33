package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"reserveit/backend/internal/domain"
)

// ReservationRepository persists at most one active reservation per identity.
// Rows whose end time has passed no longer count as active.
type ReservationRepository interface {
	GetActive(ctx context.Context, identity string, now time.Time) (domain.Reservation, error)
	// InsertActive fails with ErrRowExists if identity already has an active row.
	InsertActive(ctx context.Context, r domain.Reservation, now time.Time) (domain.Reservation, error)
	// ReplaceActive swaps the row held by identity, provided it still points at oldEventID.
	ReplaceActive(ctx context.Context, oldEventID string, r domain.Reservation) (domain.Reservation, error)
	DeleteActive(ctx context.Context, identity, eventID string) error

	// ClaimReminder flips reminder_sent from false to true. It reports false
	// when another sweep got there first or the row is gone.
	ClaimReminder(ctx context.Context, identity, eventID string) (bool, error)
	ReleaseReminder(ctx context.Context, identity, eventID string) error
	ListDueForReminder(ctx context.Context, now time.Time) ([]domain.Reservation, error)

	ListActive(ctx context.Context, now time.Time) ([]domain.Reservation, error)
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

type OrphanRepository interface {
	RecordOrphan(ctx context.Context, o domain.OrphanedEvent) (domain.OrphanedEvent, error)
	ListOrphans(ctx context.Context, includeResolved bool) ([]domain.OrphanedEvent, error)
	ResolveOrphan(ctx context.Context, id uuid.UUID, at time.Time) error
}
