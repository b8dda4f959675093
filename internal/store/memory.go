package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store. It does not survive restarts and is
// meant for tests and dry runs.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	failOn map[string]error
	writes map[string]int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:   make(map[string][]byte),
		failOn: make(map[string]error),
		writes: make(map[string]int),
	}
}

// Get returns a copy of the value stored under key.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Set stores a copy of value under key, or returns the error injected with FailWrites.
func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.failOn[key]; ok {
		return err
	}
	m.data[key] = append([]byte(nil), value...)
	m.writes[key]++
	return nil
}

// FailWrites makes every Set on key return err. A nil err clears the failure.
func (m *MemoryStore) FailWrites(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err == nil {
		delete(m.failOn, key)
		return
	}
	m.failOn[key] = err
}

// Writes returns how many successful Set calls key has received.
func (m *MemoryStore) Writes(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes[key]
}
