// Package attendance keeps the daily check-in ledger. Each identity is
// marked at most once per calendar day unless repeated check-ins are
// explicitly allowed, and every mark records whether it arrived after
// the lateness cutoff.
package attendance

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Mark is one recorded check-in.
type Mark struct {
	Identity string    `json:"identity"`
	Day      string    `json:"day"` // YYYY-MM-DD
	At       time.Time `json:"at"`
	Late     bool      `json:"late"`
}

// Cutoff is the daily lateness boundary. Arrivals strictly after
// hour:minute count as late; an arrival at exactly the cutoff does not.
type Cutoff struct {
	Hour   int
	Minute int
}

// Validate checks the cutoff denotes a time of day.
func (c Cutoff) Validate() error {
	if c.Hour < 0 || c.Hour > 23 || c.Minute < 0 || c.Minute > 59 {
		return fmt.Errorf("lateness cutoff %02d:%02d is not a time of day", c.Hour, c.Minute)
	}
	return nil
}

// After reports whether t falls strictly after the cutoff on its day.
func (c Cutoff) After(t time.Time) bool {
	return t.Hour() > c.Hour || (t.Hour() == c.Hour && t.Minute() > c.Minute)
}

// Ledger deduplicates check-ins per identity and day. It is safe for
// concurrent use; the continuous recognition loop records from its worker
// while the web surface reads.
type Ledger struct {
	cutoff        Cutoff
	allowMultiple bool

	mu    sync.Mutex
	seen  map[string]Mark // identity + "\x00" + day
	marks []Mark
}

// NewLedger builds an empty ledger.
func NewLedger(cutoff Cutoff, allowMultiple bool) (*Ledger, error) {
	if err := cutoff.Validate(); err != nil {
		return nil, err
	}
	return &Ledger{
		cutoff:        cutoff,
		allowMultiple: allowMultiple,
		seen:          make(map[string]Mark),
	}, nil
}

// Prime seeds the ledger with marks already persisted, so a restart does
// not re-record identities that checked in earlier today.
func (l *Ledger) Prime(marks []Mark) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, m := range marks {
		key := ledgerKey(m.Identity, m.Day)
		if _, ok := l.seen[key]; !ok {
			l.seen[key] = m
		}
		l.marks = append(l.marks, m)
	}
}

// Record registers a sighting of the identity at the given time. The
// returned Mark is the one on file for that identity and day; recorded
// reports whether this call created a new mark. Once marked, further
// sightings the same day are no-ops unless repeats are allowed; repeat
// marks keep the lateness of the day's first sighting.
func (l *Ledger) Record(identity string, at time.Time) (Mark, bool) {
	day := at.Format("2006-01-02")
	key := ledgerKey(identity, day)

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.seen[key]; ok && !l.allowMultiple {
		return existing, false
	}

	mark := Mark{
		Identity: identity,
		Day:      day,
		At:       at,
		Late:     l.cutoff.After(at),
	}
	if existing, ok := l.seen[key]; ok {
		// Lateness is a property of the first sighting of the day, not
		// of each repeat check-in.
		mark.Late = existing.Late
	} else {
		l.seen[key] = mark
	}
	l.marks = append(l.marks, mark)
	return mark, true
}

// Marked reports whether the identity already checked in on the day of t.
func (l *Ledger) Marked(identity string, t time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.seen[ledgerKey(identity, t.Format("2006-01-02"))]
	return ok
}

// Day returns all marks recorded for one day, ordered by time then
// identity.
func (l *Ledger) Day(day string) []Mark {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Mark
	for _, m := range l.marks {
		if m.Day == day {
			out = append(out, m)
		}
	}
	sortMarks(out)
	return out
}

// All returns every mark in the ledger, ordered by time then identity.
func (l *Ledger) All() []Mark {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Mark, len(l.marks))
	copy(out, l.marks)
	sortMarks(out)
	return out
}

func sortMarks(marks []Mark) {
	sort.Slice(marks, func(i, j int) bool {
		if !marks[i].At.Equal(marks[j].At) {
			return marks[i].At.Before(marks[j].At)
		}
		return marks[i].Identity < marks[j].Identity
	})
}

func ledgerKey(identity, day string) string {
	return identity + "\x00" + day
}
