package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/uptrace/bun"

	"reserveit/backend/internal/calendar"
	"reserveit/backend/internal/calendar/dav"
	"reserveit/backend/internal/calendar/gcal"
	"reserveit/backend/internal/config"
	"reserveit/backend/internal/resource"
	"reserveit/backend/internal/service/reservations"
	"reserveit/backend/internal/store/sqldb"
)

// app holds what every command needs: configuration and a logger.
type app struct {
	cfg config.Config
	log *slog.Logger
}

type appLoader func() (*app, error)

func loadApp(configPath string) (*app, error) {
	log := newLogger(slog.LevelInfo)
	slog.SetDefault(log)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		return nil, err
	}

	log = newLogger(parseLogLevel(cfg.LogLevel))
	slog.SetDefault(log)
	return &app{cfg: cfg, log: log}, nil
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})).With(
		slog.String("service", "reserveit"),
	)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (a *app) openDB() (*bun.DB, error) {
	a.log.Info("connecting to database", databaseLogArgs(a.cfg.DatabaseURL)...)
	db, err := sqldb.Open(a.cfg.DatabaseURL, sqldb.Options{
		Driver: a.cfg.DatabaseDriver,
		Pool: sqldb.PoolConfig{
			MaxOpenConns:    a.cfg.DBMaxOpenConns,
			MaxIdleConns:    a.cfg.DBMaxIdleConns,
			ConnMaxLifetime: a.cfg.DBConnMaxLifetime,
			ConnMaxIdleTime: a.cfg.DBConnMaxIdleTime,
		},
		Echo: a.cfg.DatabaseEcho,
		Log:  a.log,
	})
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(a.cfg.DatabaseURL)...)
		a.log.Error("database connection failed", args...)
		return nil, err
	}
	return db, nil
}

func (a *app) closeDB(db *bun.DB) {
	if err := sqldb.Close(db); err != nil {
		a.log.Warn("database close failed", slog.Any("err", err))
	}
}

func (a *app) loadCatalog() (*resource.Catalog, error) {
	catalog, err := resource.LoadDir(a.cfg.ResourcesDir, resource.LoadOptions{Location: a.cfg.AppTimezone})
	if err != nil {
		return nil, fmt.Errorf("load resources from %s: %w", a.cfg.ResourcesDir, err)
	}
	a.log.Info("resources loaded", slog.String("dir", a.cfg.ResourcesDir), slog.Int("count", catalog.Len()))
	return catalog, nil
}

// gateway builds the configured calendar provider behind a per-call timeout.
func (a *app) gateway(ctx context.Context) (calendar.Gateway, error) {
	var gw calendar.Gateway
	switch a.cfg.CalendarProvider {
	case config.ProviderCalDAV:
		g, err := dav.New(dav.Config{
			URL:      a.cfg.CalDAVURL,
			Username: a.cfg.CalDAVUsername,
			Password: a.cfg.CalDAVPassword,
			Location: a.cfg.AppTimezone,
		})
		if err != nil {
			return nil, err
		}
		gw = g
	default:
		client, err := gcal.HTTPClient(ctx, a.cfg.GoogleCredentialsFile, a.cfg.GoogleTokenFile, a.cfg.AppEmail)
		if err != nil {
			return nil, err
		}
		opts := []gcal.Option{gcal.WithLocation(a.cfg.AppTimezone)}
		if !a.cfg.GoogleSendUpdates {
			opts = append(opts, gcal.WithoutInvitations())
		}
		g, err := gcal.New(ctx, client, opts)
		if err != nil {
			return nil, err
		}
		gw = g
	}
	a.log.Info("calendar provider ready", slog.String("provider", a.cfg.CalendarProvider), slog.Duration("timeout", a.cfg.CalendarTimeout))
	return calendar.NewBounded(gw, a.cfg.CalendarTimeout, a.log), nil
}

func (a *app) service(ctx context.Context, db *bun.DB) (*reservations.Service, error) {
	catalog, err := a.loadCatalog()
	if err != nil {
		return nil, err
	}
	gw, err := a.gateway(ctx)
	if err != nil {
		return nil, err
	}
	return reservations.NewService(catalog, gw, sqldb.NewReservationRepo(db),
		reservations.WithOrphans(sqldb.NewOrphanRepo(db)),
		reservations.WithLogger(a.log),
	), nil
}

func databaseLogArgs(databaseURL string) []any {
	if sqldb.DriverFor(databaseURL) == sqldb.DriverSQLite {
		path := strings.TrimPrefix(databaseURL, "file:")
		if i := strings.IndexByte(path, '?'); i >= 0 {
			path = path[:i]
		}
		return []any{slog.String("db_driver", sqldb.DriverSQLite), slog.String("db_path", path)}
	}

	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_driver", sqldb.DriverPostgres),
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
