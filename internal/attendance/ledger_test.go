package attendance

import (
	"testing"
	"time"
)

func at(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02 15:04:05", value)
	if err != nil {
		t.Fatal(err)
	}
	return ts
}

func newTestLedger(t *testing.T, allowMultiple bool) *Ledger {
	t.Helper()
	l, err := NewLedger(Cutoff{Hour: 10, Minute: 0}, allowMultiple)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestRecordOncePerDay(t *testing.T) {
	l := newTestLedger(t, false)

	first, recorded := l.Record("alice", at(t, "2026-08-30 08:15:00"))
	if !recorded {
		t.Fatal("first sighting was not recorded")
	}
	second, recorded := l.Record("alice", at(t, "2026-08-30 09:40:00"))
	if recorded {
		t.Error("second sighting on the same day created a new mark")
	}
	if !second.At.Equal(first.At) {
		t.Errorf("repeat sighting returned %v, want the original mark at %v", second.At, first.At)
	}
	if !l.Marked("alice", at(t, "2026-08-30 23:59:00")) {
		t.Error("alice should be marked for the day")
	}
}

func TestRecordDayRollover(t *testing.T) {
	l := newTestLedger(t, false)

	if _, recorded := l.Record("alice", at(t, "2026-08-30 08:15:00")); !recorded {
		t.Fatal("day one not recorded")
	}
	if _, recorded := l.Record("alice", at(t, "2026-08-31 08:15:00")); !recorded {
		t.Error("new day should record a fresh mark")
	}
	if len(l.All()) != 2 {
		t.Errorf("ledger holds %d marks, want 2", len(l.All()))
	}
}

func TestRecordAllowMultiple(t *testing.T) {
	l := newTestLedger(t, true)

	l.Record("alice", at(t, "2026-08-30 08:15:00"))
	mark, recorded := l.Record("alice", at(t, "2026-08-30 12:30:00"))
	if !recorded {
		t.Fatal("repeat check-in dropped even though repeats are allowed")
	}
	if mark.Late {
		t.Error("repeat check-in should keep the on-time 08:15 lateness")
	}
	if got := len(l.Day("2026-08-30")); got != 2 {
		t.Errorf("day holds %d marks, want 2", got)
	}
}

func TestRecordRepeatKeepsFirstLateness(t *testing.T) {
	l := newTestLedger(t, true)

	first, _ := l.Record("bob", at(t, "2026-08-30 11:00:00"))
	if !first.Late {
		t.Fatal("11:00 first sighting should be late")
	}
	repeat, recorded := l.Record("bob", at(t, "2026-08-30 11:30:00"))
	if !recorded {
		t.Fatal("repeat check-in dropped")
	}
	if !repeat.Late {
		t.Error("repeat of a late first sighting should stay late")
	}

	l.Record("carol", at(t, "2026-08-30 09:00:00"))
	repeat, _ = l.Record("carol", at(t, "2026-08-30 16:45:00"))
	if repeat.Late {
		t.Error("afternoon repeat of an on-time arrival should not be late")
	}
}

func TestLatenessBoundary(t *testing.T) {
	tests := []struct {
		name string
		at   string
		late bool
	}{
		{"well before", "2026-08-30 08:00:00", false},
		{"one minute before", "2026-08-30 09:59:59", false},
		{"exactly at cutoff", "2026-08-30 10:00:00", false},
		{"cutoff minute but later seconds", "2026-08-30 10:00:59", false},
		{"one minute after", "2026-08-30 10:01:00", true},
		{"afternoon", "2026-08-30 15:30:00", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLedger(t, false)
			mark, _ := l.Record("alice", at(t, tt.at))
			if mark.Late != tt.late {
				t.Errorf("arrival at %s: late = %v, want %v", tt.at, mark.Late, tt.late)
			}
		})
	}
}

func TestCutoffValidate(t *testing.T) {
	for _, c := range []Cutoff{{Hour: -1}, {Hour: 24}, {Hour: 10, Minute: 60}, {Hour: 10, Minute: -1}} {
		if err := c.Validate(); err == nil {
			t.Errorf("cutoff %+v accepted, want error", c)
		}
	}
	if err := (Cutoff{Hour: 10, Minute: 0}).Validate(); err != nil {
		t.Errorf("valid cutoff rejected: %v", err)
	}
}

func TestPrimeSeedsDeduplication(t *testing.T) {
	l := newTestLedger(t, false)
	l.Prime([]Mark{{
		Identity: "alice",
		Day:      "2026-08-30",
		At:       at(t, "2026-08-30 08:15:00"),
	}})

	if _, recorded := l.Record("alice", at(t, "2026-08-30 09:00:00")); recorded {
		t.Error("primed identity was recorded again on the same day")
	}
	if _, recorded := l.Record("bob", at(t, "2026-08-30 09:00:00")); !recorded {
		t.Error("unrelated identity blocked by priming")
	}
}

func TestDayFiltersAndOrders(t *testing.T) {
	l := newTestLedger(t, false)
	l.Record("carol", at(t, "2026-08-30 09:10:00"))
	l.Record("alice", at(t, "2026-08-30 08:05:00"))
	l.Record("bob", at(t, "2026-08-31 08:00:00"))

	day := l.Day("2026-08-30")
	if len(day) != 2 {
		t.Fatalf("got %d marks, want 2", len(day))
	}
	if day[0].Identity != "alice" || day[1].Identity != "carol" {
		t.Errorf("order = [%s %s], want [alice carol]", day[0].Identity, day[1].Identity)
	}
}
