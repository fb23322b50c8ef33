// Package sqldb stores reservations in Postgres (pgx) or SQLite (go-sqlite3) through bun.
package sqldb

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type Options struct {
	// Driver is "postgres" or "sqlite"; empty infers it from the URL.
	Driver string
	Pool   PoolConfig

	// Echo logs every statement at debug level.
	Echo bool
	Log  *slog.Logger
}

// DriverFor infers the driver from a database URL.
func DriverFor(databaseURL string) string {
	u := strings.ToLower(strings.TrimSpace(databaseURL))
	if strings.HasPrefix(u, "postgres://") || strings.HasPrefix(u, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

func Open(databaseURL string, opts Options) (*bun.DB, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverFor(databaseURL)
	}

	var sqlDriver string
	switch driver {
	case DriverPostgres:
		sqlDriver = "pgx"
	case DriverSQLite:
		sqlDriver = "sqlite3"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	sqlDB, err := sql.Open(sqlDriver, databaseURL)
	if err != nil {
		return nil, err
	}

	pool := opts.Pool
	if driver == DriverSQLite {
		// SQLite has a single writer, and an in-memory database lives only as long as its connection.
		pool = PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}
	}
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if pool.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	var db *bun.DB
	if driver == DriverPostgres {
		db = bun.NewDB(sqlDB, pgdialect.New())
	} else {
		db = bun.NewDB(sqlDB, sqlitedialect.New())
	}

	if opts.Echo {
		log := opts.Log
		if log == nil {
			log = slog.Default()
		}
		db.AddQueryHook(queryLogger{log: log.With(slog.String("component", "sqldb"))})
	}
	return db, nil
}

func Close(db *bun.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}

func isPostgres(db bun.IDB) bool {
	return db.Dialect().Name() == dialect.PG
}
