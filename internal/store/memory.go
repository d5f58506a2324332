package store

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is the in-process backend. It is safe for concurrent use and
// suitable for tests and single-instance deployments; multi-instance
// deployments must use the Redis backend to keep the exactly-once guarantees.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     Clock
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(clock Clock) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     clock,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.entries, key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{value: value, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[key]; ok && s.now().Before(entry.expiresAt) {
		return false, nil
	}
	s.entries[key] = memoryEntry{value: value, expiresAt: s.now().Add(ttl)}
	return true, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries), nil
}

// PruneExpired removes entries whose TTL has elapsed and returns how many were
// dropped.
func (s *MemoryStore) PruneExpired(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}
