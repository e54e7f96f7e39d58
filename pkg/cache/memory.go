package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/breakwater-ai/breakwater/pkg/models"
)

// Memory is an in-process Store for development and tests. Entries expire
// lazily: an expired entry is dropped on the read that finds it.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	hits   atomic.Int64
	misses atomic.Int64
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		m.misses.Add(1)
		return nil, false, nil
	}
	if e.expired(time.Now()) {
		m.mu.Lock()
		// Re-check under the write lock; a concurrent Put may have renewed it.
		if cur, ok := m.entries[key]; ok && cur.expired(time.Now()) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		m.misses.Add(1)
		return nil, false, nil
	}

	m.hits.Add(1)
	cp := make([]byte, len(e.value))
	copy(cp, e.value)
	return cp, true, nil
}

func (m *Memory) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	cp := make([]byte, len(value))
	copy(cp, value)

	e := memoryEntry{value: cp}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}

	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Clear(_ context.Context, expiredOnly bool) (int64, error) {
	now := time.Now()
	var removed int64

	m.mu.Lock()
	defer m.mu.Unlock()

	for k, e := range m.entries {
		if expiredOnly && !e.expired(now) {
			continue
		}
		delete(m.entries, k)
		removed++
	}
	return removed, nil
}

func (m *Memory) Stats(_ context.Context) (models.CacheStats, error) {
	m.mu.RLock()
	entries := int64(len(m.entries))
	m.mu.RUnlock()

	return models.CacheStats{
		Backend: "memory",
		Entries: entries,
		Hits:    m.hits.Load(),
		Misses:  m.misses.Load(),
	}, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
