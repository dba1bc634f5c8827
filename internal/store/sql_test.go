package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "attendance.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEnsureUserIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.EnsureUser(ctx, User{Name: "alice", DisplayName: "Alice", Department: "eng"})
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if first.ID == "" {
		t.Fatal("user was stored without an id")
	}

	again, err := s.EnsureUser(ctx, User{Name: "alice", DisplayName: "Someone Else"})
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if again.ID != first.ID {
		t.Errorf("second ensure created a new row: %s vs %s", again.ID, first.ID)
	}
	if again.DisplayName != "Alice" {
		t.Errorf("existing row was overwritten: display name %q", again.DisplayName)
	}
}

func TestGetUserNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetUser(context.Background(), "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("got %v, want ErrUserNotFound", err)
	}
}

func TestListUsersOrdered(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, name := range []string{"carol", "alice", "bob"} {
		if _, err := s.EnsureUser(ctx, User{Name: name, DisplayName: name}); err != nil {
			t.Fatal(err)
		}
	}

	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 3 {
		t.Fatalf("got %d users, want 3", len(users))
	}
	for i, want := range []string{"alice", "bob", "carol"} {
		if users[i].Name != want {
			t.Errorf("users[%d] = %s, want %s", i, users[i].Name, want)
		}
	}
}

func TestAttendanceRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	when := time.Date(2026, 8, 30, 8, 15, 0, 0, time.UTC)

	err := s.InsertAttendance(ctx, Row{UserName: "alice", Day: "2026-08-30", At: when, Late: false})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	err = s.InsertAttendance(ctx, Row{UserName: "bob", Day: "2026-08-30", At: when.Add(3 * time.Hour), Late: true})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	has, err := s.HasAttendance(ctx, "alice", "2026-08-30")
	if err != nil || !has {
		t.Errorf("HasAttendance(alice) = %v, %v, want true", has, err)
	}
	has, err = s.HasAttendance(ctx, "alice", "2026-08-31")
	if err != nil || has {
		t.Errorf("HasAttendance on the wrong day = %v, %v, want false", has, err)
	}

	rows, err := s.ListAttendance(ctx, "2026-08-30")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].UserName != "alice" || rows[1].UserName != "bob" {
		t.Errorf("rows out of time order: %s, %s", rows[0].UserName, rows[1].UserName)
	}
	if rows[0].Late || !rows[1].Late {
		t.Error("late flags did not survive the round trip")
	}
}

func TestListAttendanceAllDays(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 30, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		day := base.AddDate(0, 0, i)
		err := s.InsertAttendance(ctx, Row{
			UserName: "alice", Day: day.Format("2006-01-02"), At: day,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	rows, err := s.ListAttendance(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Errorf("got %d rows across all days, want 3", len(rows))
	}
}

func TestStatsAggregatesPerDay(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 30, 8, 0, 0, 0, time.UTC)

	rows := []Row{
		{UserName: "alice", Day: "2026-08-30", At: base, Late: false},
		{UserName: "bob", Day: "2026-08-30", At: base.Add(time.Hour), Late: true},
		{UserName: "carol", Day: "2026-08-30", At: base.Add(2 * time.Hour), Late: true},
		{UserName: "alice", Day: "2026-08-31", At: base.AddDate(0, 0, 1), Late: false},
	}
	for _, r := range rows {
		if err := s.InsertAttendance(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 2 {
		t.Fatalf("got %d days, want 2", len(stats))
	}
	// Newest day first.
	if stats[0].Day != "2026-08-31" || stats[0].Total != 1 || stats[0].Late != 0 {
		t.Errorf("stats[0] = %+v", stats[0])
	}
	if stats[1].Day != "2026-08-30" || stats[1].Total != 3 || stats[1].Late != 2 || stats[1].OnTime != 1 {
		t.Errorf("stats[1] = %+v", stats[1])
	}
}

func TestBackupCopiesDatabaseFile(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.EnsureUser(ctx, User{Name: "alice", DisplayName: "Alice"}); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	path, err := s.Backup(ctx, dir)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("backup file missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("backup file is empty")
	}
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Error("empty DSN accepted")
	}
}
