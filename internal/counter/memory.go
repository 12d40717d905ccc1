package counter

import (
	"context"
	"fmt"
	"sync"

	"github.com/gavelworks/gavel/internal/common"
)

// MemoryStore is a mutex-serialized in-memory Store with the same semantics
// as RedisStore. Used in tests.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]int64)}
}

func (s *MemoryStore) CompareAndIncrement(_ context.Context, key string, expected, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.values[key]
	if !ok {
		return 0, fmt.Errorf("counter %q: %w", key, common.ErrNotFound)
	}
	if cur != expected {
		return 0, fmt.Errorf("counter %q: %w", key, common.ErrConflict)
	}
	s.values[key] = cur + delta
	return cur, nil
}

func (s *MemoryStore) Provision(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.values[key]; ok {
		return fmt.Errorf("counter %q already exists: %w", key, common.ErrConflict)
	}
	s.values[key] = 0
	return nil
}

// Value reports the current counter value. Test helper.
func (s *MemoryStore) Value(key string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}
