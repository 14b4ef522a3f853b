package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/octofetch/octofetch/internal/core"
	"github.com/octofetch/octofetch/internal/core/cache"
)

// ResponseCache persists fetched bodies in the response_cache table so they
// survive between CLI invocations. Freshness follows the same TTL rule as the
// in-memory cache.
type ResponseCache struct {
	Store *Store
	TTL   time.Duration
	Clock func() time.Time
}

var _ cache.Cache = (*ResponseCache)(nil)

// NewResponseCache returns a persistent cache over s.
func NewResponseCache(s *Store, ttl time.Duration) *ResponseCache {
	return &ResponseCache{Store: s, TTL: ttl}
}

// Get returns a copy of the cached body for key while it is fresh. Expired
// rows are removed on the way out unless a newer write replaced them.
func (c *ResponseCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	db, err := c.db()
	if err != nil {
		return nil, false, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		value    []byte
		storedAt int64
	)
	row := db.QueryRowContext(ctx, `
		SELECT value, stored_at
		FROM response_cache
		WHERE key = ?
	`, key)
	if err := row.Scan(&value, &storedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("fetch cached response: %w", err)
	}

	entry := core.CacheEntry{Key: key, Value: value, StoredAt: time.UnixMilli(storedAt).UTC()}
	if !entry.Fresh(c.now(), c.ttl()) {
		if _, err := db.ExecContext(ctx, `DELETE FROM response_cache WHERE key = ? AND stored_at = ?`, key, storedAt); err != nil {
			return nil, false, fmt.Errorf("expire cached response: %w", err)
		}
		return nil, false, nil
	}

	return entry.Value, true, nil
}

// Put stores value under key, superseding any previous entry.
func (c *ResponseCache) Put(ctx context.Context, key string, value []byte) error {
	db, err := c.db()
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(key) == "" {
		return errors.New("cache key is required")
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO response_cache (key, value, size_bytes, stored_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			size_bytes = excluded.size_bytes,
			stored_at = excluded.stored_at
	`, key, value, len(value), c.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store cached response: %w", err)
	}
	return nil
}

// EvictExpired deletes every entry that is no longer fresh at now.
func (c *ResponseCache) EvictExpired(ctx context.Context, now time.Time) (int, error) {
	db, err := c.db()
	if err != nil {
		return 0, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cutoff := now.Add(-c.ttl()).UnixMilli()
	result, err := db.ExecContext(ctx, `DELETE FROM response_cache WHERE stored_at <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("evict cached responses: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("evict cached responses: %w", err)
	}
	return int(affected), nil
}

func (c *ResponseCache) db() (*sql.DB, error) {
	if c == nil || c.Store == nil || c.Store.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	return c.Store.DB, nil
}

func (c *ResponseCache) ttl() time.Duration {
	if c.TTL > 0 {
		return c.TTL
	}
	return cache.DefaultTTL
}

func (c *ResponseCache) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now().UTC()
}
