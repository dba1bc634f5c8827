// Package mock provides an in-memory Store for testing.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/amosdev/attendance/internal/store"
	"github.com/google/uuid"
)

// MockStore is an in-memory implementation of store.Store.
type MockStore struct {
	mu    sync.RWMutex
	users map[string]store.User
	rows  []store.Row

	// Error injection
	EnsureUserError       error
	GetUserError          error
	ListUsersError        error
	InsertAttendanceError error
	HasAttendanceError    error
	ListAttendanceError   error
	StatsError            error
	BackupError           error
}

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{users: make(map[string]store.User)}
}

func (m *MockStore) EnsureUser(_ context.Context, user store.User) (store.User, error) {
	if m.EnsureUserError != nil {
		return store.User{}, m.EnsureUserError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.users[user.Name]; ok {
		return existing, nil
	}
	user.ID = uuid.NewString()
	m.users[user.Name] = user
	return user, nil
}

func (m *MockStore) GetUser(_ context.Context, name string) (store.User, error) {
	if m.GetUserError != nil {
		return store.User{}, m.GetUserError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[name]
	if !ok {
		return store.User{}, fmt.Errorf("%w: %s", store.ErrUserNotFound, name)
	}
	return u, nil
}

func (m *MockStore) ListUsers(_ context.Context) ([]store.User, error) {
	if m.ListUsersError != nil {
		return nil, m.ListUsersError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]store.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MockStore) InsertAttendance(_ context.Context, row store.Row) error {
	if m.InsertAttendanceError != nil {
		return m.InsertAttendanceError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	m.rows = append(m.rows, row)
	return nil
}

func (m *MockStore) HasAttendance(_ context.Context, userName, day string) (bool, error) {
	if m.HasAttendanceError != nil {
		return false, m.HasAttendanceError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rows {
		if r.UserName == userName && r.Day == day {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockStore) ListAttendance(_ context.Context, day string) ([]store.Row, error) {
	if m.ListAttendanceError != nil {
		return nil, m.ListAttendanceError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []store.Row
	for _, r := range m.rows {
		if day == "" || r.Day == day {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

func (m *MockStore) Stats(_ context.Context) ([]store.DayStats, error) {
	if m.StatsError != nil {
		return nil, m.StatsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	byDay := make(map[string]*store.DayStats)
	for _, r := range m.rows {
		d, ok := byDay[r.Day]
		if !ok {
			d = &store.DayStats{Day: r.Day}
			byDay[r.Day] = d
		}
		d.Total++
		if r.Late {
			d.Late++
		}
	}
	out := make([]store.DayStats, 0, len(byDay))
	for _, d := range byDay {
		d.OnTime = d.Total - d.Late
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day > out[j].Day })
	return out, nil
}

func (m *MockStore) Backup(_ context.Context, dir string) (string, error) {
	if m.BackupError != nil {
		return "", m.BackupError
	}
	return dir + "/mock-backup.db", nil
}

func (m *MockStore) Close() error { return nil }

// RowCount returns the number of inserted attendance rows.
func (m *MockStore) RowCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}
