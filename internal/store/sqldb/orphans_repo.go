package sqldb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"reserveit/backend/internal/domain"
)

type OrphanRepo struct {
	db *bun.DB
}

func NewOrphanRepo(db *bun.DB) *OrphanRepo {
	return &OrphanRepo{db: db}
}

func (r *OrphanRepo) RecordOrphan(ctx context.Context, o domain.OrphanedEvent) (domain.OrphanedEvent, error) {
	m := o
	m.CreatedAt = o.CreatedAt.UTC()
	if _, err := r.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.OrphanedEvent{}, err
	}
	return m, nil
}

func (r *OrphanRepo) ListOrphans(ctx context.Context, includeResolved bool) ([]domain.OrphanedEvent, error) {
	var rows []domain.OrphanedEvent
	q := r.db.NewSelect().Model(&rows).OrderExpr("created_at ASC")
	if !includeResolved {
		q = q.Where("resolved_at IS NULL")
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *OrphanRepo) ResolveOrphan(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.db.NewUpdate().
		Model((*domain.OrphanedEvent)(nil)).
		Set("resolved_at = ?", at.UTC()).
		Where("id = ?", id).
		Where("resolved_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectOne(res)
}
