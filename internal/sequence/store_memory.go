package sequence

import (
	"context"
	"sync"
)

// MemoryStore serialises counters behind an in-process mutex. Suitable for
// tests and single-instance deployments without PostgreSQL.
type MemoryStore struct {
	mu   sync.Mutex
	last map[counterKey]int64
}

type counterKey struct {
	kind Kind
	year int
}

// NewMemoryStore constructs an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{last: make(map[counterKey]int64)}
}

// NextSequence increments and returns the counter for (kind, year).
func (s *MemoryStore) NextSequence(_ context.Context, kind Kind, year int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := counterKey{kind: kind, year: year}
	s.last[key]++
	return s.last[key], nil
}
