package dedup

import (
	"context"
	"sync"
)

// MemoryStore is a process-local Store used for dry runs and tests.
type MemoryStore struct {
	mu        sync.Mutex
	order     []string
	seen      map[string]struct{}
	retention int
}

// NewMemoryStore creates an empty store keeping at most retention keys.
func NewMemoryStore(retention int) *MemoryStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryStore{seen: make(map[string]struct{}), retention: retention}
}

func (s *MemoryStore) HasBeenProcessed(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[key]
	return ok, nil
}

func (s *MemoryStore) MarkProcessed(ctx context.Context, key string) error {
	_, err := s.TryMark(ctx, key)
	return err
}

func (s *MemoryStore) TryMark(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return false, nil
	}
	s.seen[key] = struct{}{}
	s.order = append(s.order, key)
	if len(s.order) > s.retention {
		for _, old := range s.order[:len(s.order)-s.retention] {
			delete(s.seen, old)
		}
		s.order = trimOldest(s.order, s.retention)
	}
	return true, nil
}

func (s *MemoryStore) Close() error { return nil }
