package refresh

import (
	"context"
	"sync"
)

// Memory is an in-process Store. It is used by tests and single-instance
// setups without Redis or Postgres.
type Memory struct {
	mu      sync.Mutex
	byUser  map[string]Record
	byValue map[string]string
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		byUser:  make(map[string]Record),
		byValue: make(map[string]string),
	}
}

func (m *Memory) Rotate(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.byUser[rec.UserID]; ok {
		delete(m.byValue, prev.Value)
	}
	m.byUser[rec.UserID] = rec
	m.byValue[rec.Value] = rec.UserID
	return nil
}

func (m *Memory) FindByValue(_ context.Context, value string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	userID, ok := m.byValue[value]
	if !ok {
		return Record{}, ErrNotFound
	}
	rec, ok := m.byUser[userID]
	if !ok || rec.Value != value {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) DeleteIfMatch(_ context.Context, userID, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byUser[userID]
	if !ok || rec.Value != value {
		return false, nil
	}
	delete(m.byUser, userID)
	delete(m.byValue, value)
	return true, nil
}

func (m *Memory) DeleteByUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.byUser[userID]; ok {
		delete(m.byValue, rec.Value)
		delete(m.byUser, userID)
	}
	return nil
}

// Count returns the number of stored records.
func (m *Memory) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byUser)
}
