package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CacheQuery selects cached responses by request URL prefix, or all of them.
type CacheQuery struct {
	All    bool
	Prefix string
}

func (q CacheQuery) Validate() error {
	if q.All || strings.TrimSpace(q.Prefix) != "" {
		return nil
	}
	return errors.New("must specify --all or --prefix")
}

func (q CacheQuery) whereClause() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	if q.All {
		return "", nil, nil
	}
	return "WHERE key LIKE ?", []any{"GET " + strings.TrimSpace(q.Prefix) + "%"}, nil
}

// CacheStats summarises the persistent response cache.
type CacheStats struct {
	Entries int
	Bytes   int64
	Oldest  *time.Time
	Newest  *time.Time
}

// CacheStats reports entry count, total payload size and the stored_at range.
func (s *Store) CacheStats(ctx context.Context) (CacheStats, error) {
	if s == nil || s.DB == nil {
		return CacheStats{}, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		stats  CacheStats
		oldest sql.NullInt64
		newest sql.NullInt64
	)
	row := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(size_bytes), 0), MIN(stored_at), MAX(stored_at)
		FROM response_cache
	`)
	if err := row.Scan(&stats.Entries, &stats.Bytes, &oldest, &newest); err != nil {
		return CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	if oldest.Valid {
		value := time.UnixMilli(oldest.Int64).UTC()
		stats.Oldest = &value
	}
	if newest.Valid {
		value := time.UnixMilli(newest.Int64).UTC()
		stats.Newest = &value
	}
	return stats, nil
}

// ClearCache deletes cached responses matching q.
func (s *Store) ClearCache(ctx context.Context, q CacheQuery) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM response_cache
		%s
	`, where), args...)
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	return affected, nil
}
