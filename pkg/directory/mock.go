package directory

import (
	"context"
	"sync"
)

// Mock is an in-memory Directory for tests and local development.
type Mock struct {
	mu sync.Mutex

	// Users maps session token to the user record it resolves to.
	Users map[string]*UserRecord

	// Persisted maps user ID to the last persisted cumulative seconds.
	Persisted map[string]int64

	// PersistCalls counts PersistUsageSeconds invocations.
	PersistCalls int

	// PersistErr, when set, is returned from PersistUsageSeconds.
	PersistErr error
}

// NewMock creates an empty mock directory.
func NewMock() *Mock {
	return &Mock{
		Users:     make(map[string]*UserRecord),
		Persisted: make(map[string]int64),
	}
}

// ResolveUser looks the token up in Users.
func (m *Mock) ResolveUser(_ context.Context, token string) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.Users[token]
	if !ok {
		return nil, ErrUnauthorized
	}
	clone := *user
	return &clone, nil
}

// PersistUsageSeconds records the cumulative seconds in Persisted.
func (m *Mock) PersistUsageSeconds(_ context.Context, userID string, seconds int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PersistCalls++
	if m.PersistErr != nil {
		return m.PersistErr
	}
	m.Persisted[userID] = seconds
	return nil
}

// LastPersisted returns the last persisted value for a user.
func (m *Mock) LastPersisted(userID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Persisted[userID]
}

// Ensure Mock implements Directory at compile time.
var _ Directory = (*Mock)(nil)
