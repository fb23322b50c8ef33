package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.GRPCAddr != "0.0.0.0:50051" {
		t.Fatalf("grpc addr = %q", cfg.GRPCAddr)
	}
	if cfg.CalendarProvider != ProviderGoogle || cfg.CalendarTimeout != 10*time.Second {
		t.Fatalf("calendar = %q/%s", cfg.CalendarProvider, cfg.CalendarTimeout)
	}
	if cfg.ReminderInterval != time.Minute {
		t.Fatalf("reminder interval = %s, want 1m", cfg.ReminderInterval)
	}
	if cfg.AppTimezone != time.UTC {
		t.Fatalf("timezone = %s, want UTC", cfg.AppTimezone)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RESERVEIT_GRPC_ADDR", "127.0.0.1:6000")
	t.Setenv("RESERVEIT_DATABASE_URL", "file:test.db")
	t.Setenv("RESERVEIT_CALENDAR_PROVIDER", "CalDAV")
	t.Setenv("RESERVEIT_CALDAV_URL", "https://dav.example.com/")
	t.Setenv("RESERVEIT_REMINDERS_INTERVAL", "30s")
	t.Setenv("RESERVEIT_APP_TIMEZONE", "America/New_York")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.GRPCHost != "127.0.0.1" || cfg.GRPCPort != 6000 || cfg.GRPCAddr != "127.0.0.1:6000" {
		t.Fatalf("grpc = %s %d %s", cfg.GRPCHost, cfg.GRPCPort, cfg.GRPCAddr)
	}
	if cfg.DatabaseURL != "file:test.db" {
		t.Fatalf("database url = %q", cfg.DatabaseURL)
	}
	if cfg.CalendarProvider != ProviderCalDAV || cfg.CalDAVURL != "https://dav.example.com/" {
		t.Fatalf("calendar = %q %q", cfg.CalendarProvider, cfg.CalDAVURL)
	}
	if cfg.ReminderInterval != 30*time.Second {
		t.Fatalf("reminder interval = %s", cfg.ReminderInterval)
	}
	if cfg.AppTimezone.String() != "America/New_York" {
		t.Fatalf("timezone = %s", cfg.AppTimezone)
	}
}

func TestLoad_ReadsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reserveit.yaml")
	body := "grpc:\n  port: 7000\nresources:\n  dir: /etc/reserveit/resources\nlog:\n  level: debug\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.GRPCPort != 7000 || cfg.ResourcesDir != "/etc/reserveit/resources" || cfg.LogLevel != "debug" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"bad duration":    {"RESERVEIT_CALENDAR_TIMEOUT": "soon"},
		"unknown backend": {"RESERVEIT_CALENDAR_PROVIDER": "outlook"},
		"caldav no url":   {"RESERVEIT_CALENDAR_PROVIDER": "caldav"},
		"bad timezone":    {"RESERVEIT_APP_TIMEZONE": "Mars/Olympus"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			if err == nil {
				t.Fatalf("expected error")
			}
			if strings.TrimSpace(err.Error()) == "" {
				t.Fatalf("empty error message")
			}
		})
	}
}
