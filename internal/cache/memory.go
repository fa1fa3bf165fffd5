package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value    map[string]string
	storedAt time.Time
	ttl      time.Duration
}

func (e *memoryEntry) expiredAt(now time.Time) bool {
	return now.After(e.storedAt.Add(e.ttl))
}

// MemoryStore is a mutex-guarded in-process cache with a janitor sweep.
type MemoryStore struct {
	counters

	mu      sync.RWMutex
	entries map[string]*memoryEntry
	done    chan struct{}
	once    sync.Once
}

// NewMemoryStore creates an in-memory cache and starts its janitor.
func NewMemoryStore(sweepEvery time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		done:    make(chan struct{}),
	}
	if sweepEvery > 0 {
		go s.janitor(sweepEvery)
	}
	return s
}

func (s *MemoryStore) Get(ctx context.Context, key string) (map[string]string, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || entry.expiredAt(time.Now()) {
		s.miss()
		return nil, false, nil
	}

	s.hit()
	cp := make(map[string]string, len(entry.value))
	for k, v := range entry.value {
		cp[k] = v
	}
	return cp, true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value map[string]string, ttl time.Duration) error {
	cp := make(map[string]string, len(value))
	for k, v := range value {
		cp[k] = v
	}

	s.mu.Lock()
	s.entries[key] = &memoryEntry{value: cp, storedAt: time.Now(), ttl: ttl}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) janitor(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for key, entry := range s.entries {
				if entry.expiredAt(now) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}
