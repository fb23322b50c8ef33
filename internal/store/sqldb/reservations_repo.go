package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"reserveit/backend/internal/domain"
	"reserveit/backend/internal/store"
)

type ReservationRepo struct {
	db *bun.DB
}

func NewReservationRepo(db *bun.DB) *ReservationRepo {
	return &ReservationRepo{db: db}
}

func normalized(r domain.Reservation) domain.Reservation {
	m := r
	m.StartTime = r.StartTime.UTC()
	m.EndTime = r.EndTime.UTC()
	if r.RemindAt != nil {
		at := r.RemindAt.UTC()
		m.RemindAt = &at
	}
	return m
}

func (r *ReservationRepo) GetActive(ctx context.Context, identity string, now time.Time) (domain.Reservation, error) {
	var row domain.Reservation
	err := r.db.NewSelect().
		Model(&row).
		Where("identity = ?", identity).
		Where("end_time > ?", now.UTC()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Reservation{}, store.ErrNotFound
		}
		return domain.Reservation{}, err
	}
	return row, nil
}

// InsertActive clears an expired row for the identity and inserts the new one in
// the same transaction. The primary key on identity decides concurrent inserts.
func (r *ReservationRepo) InsertActive(ctx context.Context, res domain.Reservation, now time.Time) (domain.Reservation, error) {
	m := normalized(res)
	err := r.inIdentityTransaction(ctx, m.Identity, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().
			Model((*domain.Reservation)(nil)).
			Where("identity = ?", m.Identity).
			Where("end_time <= ?", now.UTC()).
			Exec(ctx)
		if err != nil {
			return err
		}

		if _, err := tx.NewInsert().Model(&m).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return store.ErrRowExists
			}
			return err
		}
		return nil
	})
	if err != nil {
		return domain.Reservation{}, err
	}
	return m, nil
}

func (r *ReservationRepo) ReplaceActive(ctx context.Context, oldEventID string, res domain.Reservation) (domain.Reservation, error) {
	m := normalized(res)
	m.ReminderSent = false
	err := r.inIdentityTransaction(ctx, m.Identity, func(ctx context.Context, tx bun.Tx) error {
		result, err := tx.NewUpdate().
			Model(&m).
			Column("resource_id", "calendar_id", "event_id", "title", "start_time", "end_time",
				"shareable", "reminder_sent", "remind_at", "updated_at").
			Where("identity = ?", m.Identity).
			Where("event_id = ?", oldEventID).
			Exec(ctx)
		if err != nil {
			return err
		}
		return expectOne(result)
	})
	if err != nil {
		return domain.Reservation{}, err
	}
	return m, nil
}

func (r *ReservationRepo) DeleteActive(ctx context.Context, identity, eventID string) error {
	res, err := r.db.NewDelete().
		Model((*domain.Reservation)(nil)).
		Where("identity = ?", identity).
		Where("event_id = ?", eventID).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (r *ReservationRepo) ClaimReminder(ctx context.Context, identity, eventID string) (bool, error) {
	res, err := r.setReminderSent(ctx, identity, eventID, false, true)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *ReservationRepo) ReleaseReminder(ctx context.Context, identity, eventID string) error {
	res, err := r.setReminderSent(ctx, identity, eventID, true, false)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (r *ReservationRepo) setReminderSent(ctx context.Context, identity, eventID string, from, to bool) (sql.Result, error) {
	return r.db.NewUpdate().
		Model((*domain.Reservation)(nil)).
		Set("reminder_sent = ?", to).
		Set("updated_at = ?", time.Now().UTC()).
		Where("identity = ?", identity).
		Where("event_id = ?", eventID).
		Where("reminder_sent = ?", from).
		Exec(ctx)
}

func (r *ReservationRepo) ListDueForReminder(ctx context.Context, now time.Time) ([]domain.Reservation, error) {
	var rows []domain.Reservation
	err := r.db.NewSelect().
		Model(&rows).
		Where("reminder_sent = ?", false).
		Where("remind_at IS NOT NULL").
		Where("remind_at <= ?", now.UTC()).
		Where("start_time > ?", now.UTC()).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ReservationRepo) ListActive(ctx context.Context, now time.Time) ([]domain.Reservation, error) {
	var rows []domain.Reservation
	err := r.db.NewSelect().
		Model(&rows).
		Where("end_time > ?", now.UTC()).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ReservationRepo) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.NewDelete().
		Model((*domain.Reservation)(nil)).
		Where("end_time <= ?", now.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (r *ReservationRepo) inIdentityTransaction(ctx context.Context, identity string, fn func(ctx context.Context, tx bun.Tx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if isPostgres(r.db) {
			if err := lockIdentity(ctx, tx, identity); err != nil {
				return err
			}
		}
		return fn(ctx, tx)
	})
}

func lockIdentity(ctx context.Context, tx bun.Tx, identity string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", identity).Exec(ctx)
	return err
}

func expectOne(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
