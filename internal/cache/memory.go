package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryProvider is an in-process Provider used when no Redis is configured.
type MemoryProvider struct {
	mu    sync.RWMutex
	items map[string]memItem
}

type memItem struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryProvider creates an empty in-memory cache.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{items: make(map[string]memItem)}
}

// Get retrieves a cached value if present and not expired.
func (m *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	it, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrCacheMiss
	}
	if !it.expiresAt.IsZero() && time.Now().After(it.expiresAt) {
		m.mu.Lock()
		delete(m.items, key)
		m.mu.Unlock()
		return nil, ErrCacheMiss
	}
	return it.value, nil
}

// Set stores a value with an optional TTL; ttl <= 0 means no expiry.
func (m *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	m.mu.Lock()
	m.items[key] = memItem{value: append([]byte(nil), value...), expiresAt: exp}
	m.mu.Unlock()
	return nil
}

// Del removes a key.
func (m *MemoryProvider) Del(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

// Close is a no-op for the in-memory cache.
func (m *MemoryProvider) Close() error { return nil }
