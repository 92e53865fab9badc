// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// MockBackend is an in-memory implementation of database.Backend
type MockBackend struct {
	mu     sync.RWMutex
	rows   []database.StoredEmbedding
	closed bool

	// Error injection
	LoadError    error
	AppendError  error
	DeleteError  error
	ReplaceError error
	CloseError   error

	// Call counters
	AppendCalls  int
	DeleteCalls  int
	ReplaceCalls int
}

// NewMockBackend creates a new mock backend pre-populated with rows
func NewMockBackend(rows ...database.StoredEmbedding) *MockBackend {
	return &MockBackend{rows: append([]database.StoredEmbedding(nil), rows...)}
}

// Rows returns a copy of the persisted rows
func (m *MockBackend) Rows() []database.StoredEmbedding {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]database.StoredEmbedding(nil), m.rows...)
}

// Closed reports whether Close was called
func (m *MockBackend) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Load returns all rows
func (m *MockBackend) Load(ctx context.Context) ([]database.StoredEmbedding, error) {
	if m.LoadError != nil {
		return nil, m.LoadError
	}
	return m.Rows(), nil
}

// Append stores rows
func (m *MockBackend) Append(ctx context.Context, rows []database.StoredEmbedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AppendCalls++
	if m.AppendError != nil {
		return m.AppendError
	}
	m.rows = append(m.rows, rows...)
	return nil
}

// DeleteName removes every row of name
func (m *MockBackend) DeleteName(ctx context.Context, name string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls++
	if m.DeleteError != nil {
		return 0, m.DeleteError
	}
	kept := m.rows[:0:0]
	for _, r := range m.rows {
		if r.Name != name {
			kept = append(kept, r)
		}
	}
	removed := len(m.rows) - len(kept)
	m.rows = kept
	return removed, nil
}

// ReplaceName swaps the rows of name for rows
func (m *MockBackend) ReplaceName(ctx context.Context, name string, rows []database.StoredEmbedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReplaceCalls++
	if m.ReplaceError != nil {
		return m.ReplaceError
	}
	kept := m.rows[:0:0]
	for _, r := range m.rows {
		if r.Name != name {
			kept = append(kept, r)
		}
	}
	m.rows = append(kept, rows...)
	return nil
}

// Close marks the backend closed
func (m *MockBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.CloseError
}

var _ database.Backend = (*MockBackend)(nil)
