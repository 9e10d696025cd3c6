package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonesrussell/airflow-health/internal/logger"
	"github.com/jonesrussell/airflow-health/internal/metrics"
)

// DefaultMaxEntries is the entry ceiling that triggers an eviction sweep.
const DefaultMaxEntries = 1000

type memoryEntry struct {
	value    []byte
	storedAt time.Time
	ttl      time.Duration
}

func (e memoryEntry) expiredAt(now time.Time) bool {
	return now.Sub(e.storedAt) >= e.ttl
}

// MemoryStore is an in-process Store guarded by a mutex. When the entry
// count exceeds maxEntries after a write, a sweep removes expired entries
// first and then the oldest live entries until the ceiling holds.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	maxEntries int
	now        func() time.Time
	metrics    *metrics.Metrics
	log        logger.Logger
}

// NewMemoryStore creates an in-memory store. maxEntries <= 0 uses
// DefaultMaxEntries; a nil metrics is allowed.
func NewMemoryStore(maxEntries int, m *metrics.Metrics, log logger.Logger) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryStore{
		entries:    make(map[string]memoryEntry),
		maxEntries: maxEntries,
		now:        time.Now,
		metrics:    m,
		log:        log,
	}
}

// SetNowFunc overrides the clock, for tests.
func (s *MemoryStore) SetNowFunc(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Get returns the stored value, treating an entry past its TTL as a miss
// and dropping it.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if entry.expiredAt(s.now()) {
		delete(s.entries, key)
		s.updateGauge()
		return nil, false
	}
	return entry.value, true
}

// Put overwrites key under the lock, so readers see either the old value
// or the new one, never a partial write.
func (s *MemoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{value: value, storedAt: s.now(), ttl: ttl}
	if len(s.entries) > s.maxEntries {
		s.evictLocked()
	}
	s.updateGauge()
}

// ClearAll drops every entry.
func (s *MemoryStore) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]memoryEntry)
	s.updateGauge()
	return nil
}

// Len reports the current entry count, including not-yet-swept expired
// entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// evictLocked removes expired entries, then the oldest live entries until
// the count is back at the ceiling. Callers must hold s.mu.
func (s *MemoryStore) evictLocked() {
	now := s.now()
	evicted := 0

	for key, entry := range s.entries {
		if entry.expiredAt(now) {
			delete(s.entries, key)
			evicted++
		}
	}

	for len(s.entries) > s.maxEntries {
		oldestKey := ""
		var oldestAt time.Time
		for key, entry := range s.entries {
			if oldestKey == "" || entry.storedAt.Before(oldestAt) {
				oldestKey = key
				oldestAt = entry.storedAt
			}
		}
		delete(s.entries, oldestKey)
		evicted++
	}

	if evicted > 0 {
		if s.metrics != nil {
			s.metrics.CacheEvictions.Add(float64(evicted))
		}
		s.log.Debug("Evicted cache entries",
			logger.Int("evicted", evicted),
			logger.Int("remaining", len(s.entries)),
		)
	}
}

func (s *MemoryStore) updateGauge() {
	if s.metrics != nil {
		s.metrics.CacheEntries.Set(float64(len(s.entries)))
	}
}
