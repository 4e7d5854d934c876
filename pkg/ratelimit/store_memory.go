package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps usage counters in process memory. Counters reset when
// the process restarts, which is acceptable for message throttling.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*windowCount
}

type windowCount struct {
	start time.Time
	count int64
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*windowCount)}
}

func (s *MemoryStore) Increment(_ context.Context, key string, windowStart time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[key]
	if !ok || !w.start.Equal(windowStart) {
		w = &windowCount{start: windowStart}
		s.windows[key] = w
	}
	w.count++
	return w.count, nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, cutoff time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, w := range s.windows {
		if w.start.Before(cutoff) {
			delete(s.windows, key)
		}
	}
	return nil
}
