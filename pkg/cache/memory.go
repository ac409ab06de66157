package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process cache for tests and single-instance
// deployments without Redis. Expired entries are dropped lazily on Get.
type Memory[V any] struct {
	mu         sync.RWMutex
	entries    map[string]memoryEntry[V]
	defaultTTL time.Duration
}

type memoryEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// NewMemory creates a new in-memory cache.
func NewMemory[V any](defaultTTL time.Duration) *Memory[V] {
	if defaultTTL <= 0 {
		defaultTTL = time.Minute
	}
	return &Memory[V]{
		entries:    make(map[string]memoryEntry[V]),
		defaultTTL: defaultTTL,
	}
}

func (m *Memory[V]) Get(_ context.Context, key string) (V, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	var zero V
	if !ok {
		return zero, ErrNotFound
	}
	if time.Now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return zero, ErrNotFound
	}
	return e.value, nil
}

func (m *Memory[V]) Set(_ context.Context, key string, value V, ttl time.Duration) error {
	if ttl == 0 {
		ttl = m.defaultTTL
	}
	m.mu.Lock()
	m.entries[key] = memoryEntry[V]{value: value, expiresAt: time.Now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *Memory[V]) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}
