package cache

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Store is an in-process key/value cache with hit/miss accounting and
// explicit invalidation. All operations are in-memory and never block on
// I/O; Invalidate and InvalidatePrefix are synchronous, so an entry
// removed here is gone for the very next Get from any goroutine.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry

	hits   atomic.Uint64
	misses atomic.Uint64

	// Running mean latency, folded one sample at a time:
	//   avg' = (avg*(n-1) + sample) / n
	// Guarded by latMu; counters above stay lock-free.
	latMu      sync.Mutex
	latSamples uint64
	latAvg     float64 // nanoseconds
}

type entry struct {
	value      any
	insertedAt time.Time
	expiresAt  time.Time // zero means no TTL
}

// Counters is a point-in-time copy of the store's accounting state.
type Counters struct {
	Hits          uint64
	Misses        uint64
	TotalRequests uint64
	AvgLatency    time.Duration
}

func New() *Store {
	return &Store{
		entries: make(map[string]entry),
	}
}

// Get returns the cached value for key, or false when absent or expired.
// Every call counts as exactly one hit or one miss.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if ok && !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		s.mu.Lock()
		// Re-check under the write lock; a Set may have raced the expiry.
		if cur, still := s.entries[key]; still && cur.insertedAt.Equal(e.insertedAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		ok = false
	}

	if !ok {
		s.misses.Add(1)
		return nil, false
	}

	s.hits.Add(1)
	return e.value, true
}

// Set stores value under key, replacing any existing entry. A ttl <= 0
// means the entry only leaves via explicit invalidation.
func (s *Store) Set(key string, value any, ttl time.Duration) {
	e := entry{
		value:      value,
		insertedAt: time.Now(),
	}
	if ttl > 0 {
		e.expiresAt = e.insertedAt.Add(ttl)
	}

	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
}

// Invalidate removes the entry for key. Visible to the next Get as soon
// as this call returns.
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// InvalidatePrefix removes every entry whose key starts with prefix.
func (s *Store) InvalidatePrefix(prefix string) {
	s.mu.Lock()
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			delete(s.entries, k)
		}
	}
	s.mu.Unlock()
}

// Len reports the number of live entries, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// ObserveLatency folds one latency sample into the running mean.
func (s *Store) ObserveLatency(d time.Duration) {
	s.latMu.Lock()
	s.latSamples++
	n := float64(s.latSamples)
	s.latAvg = (s.latAvg*(n-1) + float64(d.Nanoseconds())) / n
	s.latMu.Unlock()
}

// Counters returns the current accounting state. Purely observational;
// callers must not use it to drive cache decisions.
func (s *Store) Counters() Counters {
	hits := s.hits.Load()
	misses := s.misses.Load()

	s.latMu.Lock()
	avg := time.Duration(s.latAvg)
	s.latMu.Unlock()

	return Counters{
		Hits:          hits,
		Misses:        misses,
		TotalRequests: hits + misses,
		AvgLatency:    avg,
	}
}

// ResetStats zeroes the counters and the running mean. Entries stay put.
func (s *Store) ResetStats() {
	s.hits.Store(0)
	s.misses.Store(0)

	s.latMu.Lock()
	s.latSamples = 0
	s.latAvg = 0
	s.latMu.Unlock()
}
