// Package cache memoizes response payloads for a fixed freshness window.
//
// Expiry is time-to-live only. Reads expire stale entries lazily, so
// EvictExpired is never required for correctness; it only bounds memory.
package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/octofetch/octofetch/internal/core"
)

// DefaultTTL applies when a cache is built without an explicit freshness window.
const DefaultTTL = 5 * time.Minute

// Cache stores response payloads keyed by resource identity.
//
// A miss only means no fresh entry exists; it says nothing about whether the
// resource exists upstream.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	EvictExpired(ctx context.Context, now time.Time) (int, error)
}

// Memory is an in-process Cache. Values are copied on the way in and out so
// callers never share storage with the cache.
type Memory struct {
	TTL   time.Duration
	Clock func() time.Time

	mu      sync.RWMutex
	entries map[string]core.CacheEntry
}

// NewMemory returns an empty in-memory cache with the given TTL.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{TTL: ttl}
}

// Get returns a copy of the value for key when an unexpired entry exists.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if m == nil {
		return nil, false, nil
	}

	now := m.now()

	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	if !entry.Fresh(now, m.ttl()) {
		m.mu.Lock()
		// Only drop the entry we judged stale; a concurrent Put may have replaced it.
		if current, ok := m.entries[key]; ok && current.StoredAt.Equal(entry.StoredAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false, nil
	}

	return clone(entry.Value), true, nil
}

// Put stores or replaces the entry for key, stamped with the current time.
func (m *Memory) Put(ctx context.Context, key string, value []byte) error {
	if m == nil {
		return errors.New("cache is not initialized")
	}
	if strings.TrimSpace(key) == "" {
		return errors.New("cache key is required")
	}

	entry := core.CacheEntry{Key: key, Value: clone(value), StoredAt: m.now()}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = make(map[string]core.CacheEntry)
	}
	m.entries[key] = entry
	return nil
}

// EvictExpired removes every entry whose freshness window has elapsed at now.
func (m *Memory) EvictExpired(ctx context.Context, now time.Time) (int, error) {
	if m == nil {
		return 0, nil
	}

	ttl := m.ttl()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, entry := range m.entries {
		if !entry.Fresh(now, ttl) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of stored entries, fresh or not.
func (m *Memory) Len() int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Clear drops every entry.
func (m *Memory) Clear() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.entries = nil
	m.mu.Unlock()
}

func (m *Memory) ttl() time.Duration {
	if m.TTL > 0 {
		return m.TTL
	}
	return DefaultTTL
}

func (m *Memory) now() time.Time {
	if m != nil && m.Clock != nil {
		return m.Clock()
	}
	return time.Now().UTC()
}

func clone(value []byte) []byte {
	if value == nil {
		return nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out
}
