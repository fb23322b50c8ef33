package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
)

type queryLogger struct {
	log *slog.Logger
}

func (h queryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h queryLogger) AfterQuery(ctx context.Context, e *bun.QueryEvent) {
	args := []any{
		slog.String("op", e.Operation()),
		slog.String("query", e.Query),
		slog.Duration("elapsed", time.Since(e.StartTime)),
	}
	if e.Err != nil && !errors.Is(e.Err, sql.ErrNoRows) {
		args = append(args, slog.Any("err", e.Err))
	}
	h.log.DebugContext(ctx, "sql", args...)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
