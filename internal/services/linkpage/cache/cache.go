// Package cache holds the process-wide store of last successful responses,
// keyed by resource locator.
package cache

import "sync"

// Cache stores at most one value per key. Entries are never expired; the
// last write for a key wins.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Has(key string) bool
}

// Memory is a thread-safe in-memory Cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]any
}

// NewMemory creates an empty cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]any)}
}

// Get returns the cached value for key.
func (m *Memory) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	m.mu.RLock()
	value, ok := m.entries[key]
	m.mu.RUnlock()
	return value, ok
}

// Set stores value under key, replacing any previous entry.
func (m *Memory) Set(key string, value any) {
	if m == nil {
		return
	}
	m.mu.Lock()
	if m.entries == nil {
		m.entries = make(map[string]any)
	}
	m.entries[key] = value
	m.mu.Unlock()
}

// Has reports whether key has an entry.
func (m *Memory) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Len returns the number of entries.
func (m *Memory) Len() int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Lookup returns the entry for key when it holds a T. Entries of another
// type count as a miss.
func Lookup[T any](c Cache, key string) (T, bool) {
	var zero T
	if c == nil {
		return zero, false
	}
	raw, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	value, ok := raw.(T)
	if !ok {
		return zero, false
	}
	return value, true
}
