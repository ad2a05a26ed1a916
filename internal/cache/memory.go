package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	payload    []byte
	insertedAt time.Time
	expiresAt  time.Time
}

// MemoryStore is the concurrency-safe in-process fallback store, used
// when the primary is unreachable. Expiry is lazy: expired entries are
// reported as misses on Get and swept on Set when the store is over its
// entry cap.
type MemoryStore struct {
	mu sync.RWMutex

	data map[string]memoryEntry

	// retention configuration
	maxEntries int // max number of entries (0 = unlimited)

	now func() time.Time
}

// NewMemoryStore creates a MemoryStore with an optional entry cap.
// If maxEntries is <= 0, it is treated as unlimited.
func NewMemoryStore(maxEntries int) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]memoryEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the payload for key, or a miss when absent or expired.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	entry, ok := s.data[key]
	s.mu.RUnlock()

	if !ok || s.now().After(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.payload, true, nil
}

// Set stores payload under key with the given TTL, overwriting any
// previous (possibly expired) entry.
func (s *MemoryStore) Set(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = memoryEntry{
		payload:    payload,
		insertedAt: now,
		expiresAt:  now.Add(ttl),
	}

	// Enforce retention: drop expired entries first, then oldest.
	if s.maxEntries > 0 && len(s.data) > s.maxEntries {
		for k, e := range s.data {
			if now.After(e.expiresAt) {
				delete(s.data, k)
			}
		}
		for len(s.data) > s.maxEntries {
			oldestKey := ""
			var oldest time.Time
			for k, e := range s.data {
				if oldestKey == "" || e.insertedAt.Before(oldest) {
					oldestKey, oldest = k, e.insertedAt
				}
			}
			delete(s.data, oldestKey)
		}
	}
	return nil
}

// Len returns the number of live-or-expired entries held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// SetClock overrides the time source, for tests.
func (s *MemoryStore) SetClock(now func() time.Time) { s.now = now }
