// Package store persists users and attendance rows. The default backend
// is an embedded SQLite file under the data directory; PostgreSQL and
// MySQL are selected through the DATABASE_URL scheme.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrUserNotFound is returned when a user key has no row.
var ErrUserNotFound = errors.New("user not found")

// User is an enrolled person.
type User struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"` // normalized identity key
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email,omitempty"`
	Department  string    `json:"department,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Row is one persisted attendance mark.
type Row struct {
	ID       string    `json:"id"`
	UserName string    `json:"user_name"`
	Day      string    `json:"day"` // YYYY-MM-DD
	At       time.Time `json:"at"`
	Late     bool      `json:"late"`
}

// DayStats aggregates one day's attendance.
type DayStats struct {
	Day    string `json:"day"`
	Total  int    `json:"total"`
	Late   int    `json:"late"`
	OnTime int    `json:"on_time"`
}

// Store is the persistence boundary. The recognizer writes marks through
// it, the web surface reads, and the nightly job calls Backup.
type Store interface {
	// EnsureUser inserts the user if the name is new and returns the
	// stored row either way.
	EnsureUser(ctx context.Context, user User) (User, error)
	// GetUser fetches a user by normalized name.
	GetUser(ctx context.Context, name string) (User, error)
	// ListUsers returns all users ordered by name.
	ListUsers(ctx context.Context) ([]User, error)

	// InsertAttendance appends one mark.
	InsertAttendance(ctx context.Context, row Row) error
	// HasAttendance reports whether the user already has a mark that day.
	HasAttendance(ctx context.Context, userName, day string) (bool, error)
	// ListAttendance returns marks for one day, or every mark when day
	// is empty, ordered by time.
	ListAttendance(ctx context.Context, day string) ([]Row, error)
	// Stats aggregates per-day totals, newest day first.
	Stats(ctx context.Context) ([]DayStats, error)

	// Backup writes a copy of the database to the given directory and
	// returns the created file path.
	Backup(ctx context.Context, dir string) (string, error)
	Close() error
}
