package checkpoint

import "sync"

// MemoryStore is a non-durable checkpoint used by dry runs.
type MemoryStore struct {
	mu    sync.Mutex
	value int64
}

// NewMemoryStore creates a store starting at index.
func NewMemoryStore(index int64) *MemoryStore {
	return &MemoryStore{value: index}
}

// Load returns the current index.
func (m *MemoryStore) Load() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value, nil
}

// Save records index unless it is lower than the current value.
func (m *MemoryStore) Save(index int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index > m.value {
		m.value = index
	}
	return nil
}
