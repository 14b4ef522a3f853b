package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/octofetch/octofetch/internal/core"
)

// GetRateLimit returns the stored quota snapshot for an endpoint.
func (s *Store) GetRateLimit(ctx context.Context, endpoint string) (*core.RateLimitState, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("endpoint is required")
	}

	row := s.DB.QueryRowContext(ctx, `
		SELECT request_limit, remaining, reset_at, observed_at, backoff_until
		FROM rate_limits
		WHERE endpoint = ?
	`, endpoint)

	state, err := scanRateLimit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch rate limit: %w", err)
	}
	return state, nil
}

// UpdateRateLimit persists the quota snapshot for an endpoint.
func (s *Store) UpdateRateLimit(ctx context.Context, endpoint string, state *core.RateLimitState) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return errors.New("endpoint is required")
	}
	if state == nil {
		return errors.New("rate limit state is required")
	}

	var backoffUntil sql.NullInt64
	if state.BackoffUntil != nil {
		backoffUntil = sql.NullInt64{Int64: state.BackoffUntil.UTC().Unix(), Valid: true}
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO rate_limits (endpoint, request_limit, remaining, reset_at, observed_at, backoff_until)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(endpoint) DO UPDATE SET
			request_limit = excluded.request_limit,
			remaining = excluded.remaining,
			reset_at = excluded.reset_at,
			observed_at = excluded.observed_at,
			backoff_until = excluded.backoff_until
	`, endpoint, state.Limit, state.Remaining, unixOrZero(state.ResetAt), unixOrZero(state.ObservedAt), backoffUntil)
	if err != nil {
		return fmt.Errorf("store rate limit: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRateLimit(row rowScanner, prefix ...any) (*core.RateLimitState, error) {
	var (
		limit        int
		remaining    int
		resetAt      int64
		observedAt   int64
		backoffUntil sql.NullInt64
	)
	dest := append(prefix, &limit, &remaining, &resetAt, &observedAt, &backoffUntil)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	state := &core.RateLimitState{
		Limit:      limit,
		Remaining:  remaining,
		ResetAt:    fromUnix(resetAt),
		ObservedAt: fromUnix(observedAt),
	}
	if backoffUntil.Valid {
		value := time.Unix(backoffUntil.Int64, 0).UTC()
		state.BackoffUntil = &value
	}
	return state, nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().Unix()
}

func fromUnix(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(v, 0).UTC()
}
