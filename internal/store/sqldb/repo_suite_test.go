package sqldb

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/uptrace/bun"

	"reserveit/backend/internal/domain"
	"reserveit/backend/internal/store"
)

func randomHex(t *testing.T, bytesLen int) string {
	t.Helper()
	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read error: %v", err)
	}
	return hex.EncodeToString(b)
}

var suiteNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func reservationFor(identity, eventID string, start time.Time, lead time.Duration) domain.Reservation {
	r := domain.Reservation{
		Identity:   identity,
		ResourceID: "courts",
		CalendarID: "c1",
		EventID:    eventID,
		Title:      "Courts reservation",
		StartTime:  start,
		EndTime:    start.Add(time.Hour),
	}
	if lead > 0 {
		at := start.Add(-lead)
		r.RemindAt = &at
	}
	return r
}

// runRepoSuite exercises a migrated database through both repositories.
func runRepoSuite(t *testing.T, db *bun.DB) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo := NewReservationRepo(db)

	t.Run("insert enforces one active row per identity", func(t *testing.T) {
		start := suiteNow.Add(2 * time.Hour)
		if _, err := repo.InsertActive(ctx, reservationFor("one@x.com", "e1", start, 0), suiteNow); err != nil {
			t.Fatalf("InsertActive error: %v", err)
		}
		got, err := repo.GetActive(ctx, "one@x.com", suiteNow)
		if err != nil {
			t.Fatalf("GetActive error: %v", err)
		}
		if got.EventID != "e1" || !got.StartTime.Equal(start) {
			t.Fatalf("row = %+v", got)
		}
		_, err = repo.InsertActive(ctx, reservationFor("one@x.com", "e2", start.Add(time.Hour), 0), suiteNow)
		if !errors.Is(err, store.ErrRowExists) {
			t.Fatalf("second insert err = %v, want %v", err, store.ErrRowExists)
		}
	})

	t.Run("expired row frees the identity", func(t *testing.T) {
		start := suiteNow.Add(time.Hour)
		if _, err := repo.InsertActive(ctx, reservationFor("old@x.com", "e1", start, 0), suiteNow); err != nil {
			t.Fatalf("InsertActive error: %v", err)
		}
		later := start.Add(2 * time.Hour)
		if _, err := repo.GetActive(ctx, "old@x.com", later); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("GetActive after end err = %v, want %v", err, store.ErrNotFound)
		}
		if _, err := repo.InsertActive(ctx, reservationFor("old@x.com", "e2", later.Add(time.Hour), 0), later); err != nil {
			t.Fatalf("InsertActive after expiry error: %v", err)
		}
	})

	t.Run("delete matches event id", func(t *testing.T) {
		start := suiteNow.Add(3 * time.Hour)
		if _, err := repo.InsertActive(ctx, reservationFor("del@x.com", "e1", start, 0), suiteNow); err != nil {
			t.Fatalf("InsertActive error: %v", err)
		}
		if err := repo.DeleteActive(ctx, "del@x.com", "other"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("DeleteActive wrong event err = %v, want %v", err, store.ErrNotFound)
		}
		if err := repo.DeleteActive(ctx, "del@x.com", "e1"); err != nil {
			t.Fatalf("DeleteActive error: %v", err)
		}
		if _, err := repo.GetActive(ctx, "del@x.com", suiteNow); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("GetActive err = %v, want %v", err, store.ErrNotFound)
		}
	})

	t.Run("reminder claim is compare and set", func(t *testing.T) {
		start := suiteNow.Add(30 * time.Minute)
		if _, err := repo.InsertActive(ctx, reservationFor("rem@x.com", "e1", start, time.Hour), suiteNow); err != nil {
			t.Fatalf("InsertActive error: %v", err)
		}
		due, err := repo.ListDueForReminder(ctx, suiteNow)
		if err != nil {
			t.Fatalf("ListDueForReminder error: %v", err)
		}
		if !containsIdentity(due, "rem@x.com") {
			t.Fatalf("due = %+v, want rem@x.com", due)
		}

		ok, err := repo.ClaimReminder(ctx, "rem@x.com", "e1")
		if err != nil || !ok {
			t.Fatalf("first claim = %v, %v; want true", ok, err)
		}
		ok, err = repo.ClaimReminder(ctx, "rem@x.com", "e1")
		if err != nil || ok {
			t.Fatalf("second claim = %v, %v; want false", ok, err)
		}
		due, err = repo.ListDueForReminder(ctx, suiteNow)
		if err != nil {
			t.Fatalf("ListDueForReminder error: %v", err)
		}
		if containsIdentity(due, "rem@x.com") {
			t.Fatalf("claimed row still due")
		}

		if err := repo.ReleaseReminder(ctx, "rem@x.com", "e1"); err != nil {
			t.Fatalf("ReleaseReminder error: %v", err)
		}
		ok, err = repo.ClaimReminder(ctx, "rem@x.com", "e1")
		if err != nil || !ok {
			t.Fatalf("claim after release = %v, %v; want true", ok, err)
		}
		ok, err = repo.ClaimReminder(ctx, "rem@x.com", "stale-event")
		if err != nil || ok {
			t.Fatalf("claim with stale event = %v, %v; want false", ok, err)
		}
	})

	t.Run("replace swaps only the expected event", func(t *testing.T) {
		start := suiteNow.Add(4 * time.Hour)
		if _, err := repo.InsertActive(ctx, reservationFor("move@x.com", "e1", start, time.Hour), suiteNow); err != nil {
			t.Fatalf("InsertActive error: %v", err)
		}
		if _, err := repo.ClaimReminder(ctx, "move@x.com", "e1"); err != nil {
			t.Fatalf("ClaimReminder error: %v", err)
		}

		next := reservationFor("move@x.com", "e2", start.Add(2*time.Hour), time.Hour)
		next.CalendarID = "c2"
		if _, err := repo.ReplaceActive(ctx, "wrong", next); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("ReplaceActive stale err = %v, want %v", err, store.ErrNotFound)
		}
		if _, err := repo.ReplaceActive(ctx, "e1", next); err != nil {
			t.Fatalf("ReplaceActive error: %v", err)
		}
		got, err := repo.GetActive(ctx, "move@x.com", suiteNow)
		if err != nil {
			t.Fatalf("GetActive error: %v", err)
		}
		if got.EventID != "e2" || got.CalendarID != "c2" || got.ReminderSent {
			t.Fatalf("row = %+v, want e2 on c2 with reminder reset", got)
		}
	})

	t.Run("concurrent inserts for one identity", func(t *testing.T) {
		const n = 8
		start := suiteNow.Add(5 * time.Hour)
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			okCount  int
			rowCount int
			other    []error
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := repo.InsertActive(ctx, reservationFor("race@x.com", "e"+string(rune('a'+i)), start, 0), suiteNow)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					okCount++
				case errors.Is(err, store.ErrRowExists):
					rowCount++
				default:
					other = append(other, err)
				}
			}(i)
		}
		wg.Wait()
		if len(other) > 0 {
			t.Fatalf("unexpected errors: %v", other)
		}
		if okCount != 1 || rowCount != n-1 {
			t.Fatalf("ok=%d row_exists=%d, want 1 and %d", okCount, rowCount, n-1)
		}
	})

	t.Run("purge removes ended rows", func(t *testing.T) {
		far := suiteNow.Add(30 * 24 * time.Hour)
		before, err := repo.ListActive(ctx, suiteNow)
		if err != nil {
			t.Fatalf("ListActive error: %v", err)
		}
		if len(before) == 0 {
			t.Fatalf("expected active rows before purge")
		}
		n, err := repo.PurgeExpired(ctx, far)
		if err != nil {
			t.Fatalf("PurgeExpired error: %v", err)
		}
		if n < len(before) {
			t.Fatalf("purged = %d, want at least %d", n, len(before))
		}
		after, err := repo.ListActive(ctx, suiteNow)
		if err != nil {
			t.Fatalf("ListActive error: %v", err)
		}
		if len(after) != 0 {
			t.Fatalf("active after purge = %d, want 0", len(after))
		}
	})

	t.Run("orphans", func(t *testing.T) {
		orphans := NewOrphanRepo(db)
		o, err := orphans.RecordOrphan(ctx, domain.OrphanedEvent{
			CalendarID: "c1",
			EventID:    "lost",
			Identity:   "a@x.com",
			Reason:     "compensating delete failed",
		})
		if err != nil {
			t.Fatalf("RecordOrphan error: %v", err)
		}
		open, err := orphans.ListOrphans(ctx, false)
		if err != nil {
			t.Fatalf("ListOrphans error: %v", err)
		}
		if len(open) != 1 || open[0].ID != o.ID || open[0].EventID != "lost" {
			t.Fatalf("open orphans = %+v", open)
		}
		if err := orphans.ResolveOrphan(ctx, o.ID, suiteNow); err != nil {
			t.Fatalf("ResolveOrphan error: %v", err)
		}
		if err := orphans.ResolveOrphan(ctx, o.ID, suiteNow); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("second ResolveOrphan err = %v, want %v", err, store.ErrNotFound)
		}
		open, err = orphans.ListOrphans(ctx, false)
		if err != nil {
			t.Fatalf("ListOrphans error: %v", err)
		}
		if len(open) != 0 {
			t.Fatalf("open orphans after resolve = %d, want 0", len(open))
		}
		all, err := orphans.ListOrphans(ctx, true)
		if err != nil {
			t.Fatalf("ListOrphans error: %v", err)
		}
		if len(all) != 1 || all[0].ResolvedAt == nil {
			t.Fatalf("all orphans = %+v", all)
		}
	})
}

func containsIdentity(rows []domain.Reservation, identity string) bool {
	for _, r := range rows {
		if r.Identity == identity {
			return true
		}
	}
	return false
}
