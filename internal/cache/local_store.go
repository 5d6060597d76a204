package cache

import (
	"strings"
	"sync"
	"time"
)

type localEntry struct {
	value     []byte
	expiresAt time.Time
}

// LocalStore is the in-process cache tier. It serves reads when the shared
// tier is down and expires entries on its own, so a partitioned instance can
// only ever serve bounded-stale data.
type LocalStore struct {
	mu       sync.RWMutex
	entries  map[string]localEntry
	stop     chan struct{}
	stopOnce sync.Once
}

// NewLocalStore creates a store and starts its cleanup goroutine. Call Close
// to stop it.
func NewLocalStore(cleanupInterval time.Duration) *LocalStore {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &LocalStore{
		entries: make(map[string]localEntry),
		stop:    make(chan struct{}),
	}
	go s.cleanupLoop(cleanupInterval)
	return s
}

func (s *LocalStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.removeExpired()
		case <-s.stop:
			return
		}
	}
}

func (s *LocalStore) removeExpired() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.entries {
		if entry.expiresAt.Before(now) {
			delete(s.entries, key)
		}
	}
}

// Get returns the value for key if present and not expired.
func (s *LocalStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.value, true
}

// Set stores value under key for ttl.
func (s *LocalStore) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	s.mu.Lock()
	s.entries[key] = localEntry{value: value, expiresAt: time.Now().Add(ttl)}
	s.mu.Unlock()
}

// DeleteByPrefix removes every entry whose key starts with prefix and
// returns how many were removed.
func (s *LocalStore) DeleteByPrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored entries, including not yet collected
// expired ones.
func (s *LocalStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the cleanup goroutine.
func (s *LocalStore) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}
