package jobstore

import (
	"context"
	"sync"
)

// MemoryStore keeps job state in process. Jobs survive for the process
// lifetime; restart loses them, which is acceptable for a single replica.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]Status
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]Status)}
}

func (m *MemoryStore) Init(_ context.Context, s Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[s.JobID] = s
	return nil
}

func (m *MemoryStore) Update(_ context.Context, id string, mutate func(*Status)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.jobs[id]
	if !ok {
		return &ErrNotFound{ID: id}
	}
	mutate(&s)
	m.jobs[id] = s
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.jobs[id]
	if !ok {
		return nil, &ErrNotFound{ID: id}
	}
	return &s, nil
}
