package reservations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"reserveit/backend/internal/store"
)

const reminderPrefix = "Reminder: "

func ReminderTitle(title string) string {
	if strings.HasPrefix(title, reminderPrefix) {
		return title
	}
	return reminderPrefix + title
}

type SweepResult struct {
	Due      int
	Reminded int
	Skipped  int
	Failed   int
	Purged   int
}

// ReminderSweep retitles events whose reminder time has come. Each row is
// claimed before the provider call so overlapping sweeps retitle once.
func (s *Service) ReminderSweep(ctx context.Context) (SweepResult, error) {
	now := s.now()
	var res SweepResult

	due, err := s.repo.ListDueForReminder(ctx, now)
	if err != nil {
		return res, fmt.Errorf("list due reminders: %w", err)
	}
	res.Due = len(due)

	for _, row := range due {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		claimed, err := s.repo.ClaimReminder(ctx, row.Identity, row.EventID)
		if err != nil {
			res.Failed++
			s.log.Warn("claim reminder failed", slog.String("identity", row.Identity), slog.String("event_id", row.EventID), slog.Any("err", err))
			continue
		}
		if !claimed {
			res.Skipped++
			continue
		}

		if err := s.gw.UpdateEventTitle(ctx, row.CalendarID, row.EventID, ReminderTitle(row.Title)); err != nil {
			res.Failed++
			s.log.Warn("reminder retitle failed", slog.String("identity", row.Identity), slog.String("event_id", row.EventID), slog.Any("err", err))
			s.releaseReminder(ctx, row.Identity, row.EventID)
			continue
		}
		res.Reminded++
	}

	purged, err := s.repo.PurgeExpired(ctx, now)
	if err != nil {
		return res, fmt.Errorf("purge expired reservations: %w", err)
	}
	res.Purged = purged

	if res.Due > 0 || res.Purged > 0 {
		s.log.Info("reminder sweep done",
			slog.Int("due", res.Due),
			slog.Int("reminded", res.Reminded),
			slog.Int("skipped", res.Skipped),
			slog.Int("failed", res.Failed),
			slog.Int("purged", res.Purged),
		)
	}
	return res, nil
}

// releaseReminder hands a claim back so a later sweep retries. The sweep's ctx
// may be the reason the retitle failed, so the release runs detached from it.
func (s *Service) releaseReminder(ctx context.Context, identity, eventID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	if err := s.repo.ReleaseReminder(ctx, identity, eventID); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.log.Error("release reminder claim failed", slog.String("identity", identity), slog.String("event_id", eventID), slog.Any("err", err))
	}
}
