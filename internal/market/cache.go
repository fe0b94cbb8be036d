package market

import (
	"context"
	"sync"
	"time"
)

// Store is the cache seam shared by the in-memory and Redis lanes. Values are
// opaque marshaled records; entry construction happens outside any lock and a
// write publishes the whole entry atomically.
type Store interface {
	// Get returns the cached value for key if it is younger than ttl.
	Get(ctx context.Context, key string, ttl time.Duration) ([]byte, bool)
	// Set stores value under key with the given ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type memoryEntry struct {
	value      []byte
	insertedAt time.Time
}

// MemoryStore is a process-local TTL cache. Reads take the shared lock only
// long enough to copy the entry pointer; writes serialize through the write
// lock so readers never observe a torn entry.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory cache
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get implements Store
func (s *MemoryStore) Get(_ context.Context, key string, ttl time.Duration) ([]byte, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok || s.now().Sub(entry.insertedAt) >= ttl {
		return nil, false
	}
	return entry.value, true
}

// Set implements Store
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	entry := memoryEntry{value: value, insertedAt: s.now()}
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

// Purge drops entries older than the given horizon and returns the count
// removed. Called periodically by the guardian loop to bound memory.
func (s *MemoryStore) Purge(horizon time.Duration) int {
	cutoff := s.now().Add(-horizon)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, entry := range s.entries {
		if entry.insertedAt.Before(cutoff) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}
