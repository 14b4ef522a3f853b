package engine

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/octofetch/octofetch/internal/core"
)

// Rate-limit response headers used by GitHub-style APIs.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// Tracker keeps the latest observed quota for one endpoint family.
//
// A Tracker performs no locking. It belongs to a single client session; callers
// sharing one across goroutines must serialise Observe, Backoff and ShouldWait.
type Tracker struct {
	Clock func() time.Time

	state core.RateLimitState
	known bool
}

// RateLimitStore persists tracker snapshots between processes.
type RateLimitStore interface {
	GetRateLimit(ctx context.Context, endpoint string) (*core.RateLimitState, error)
	UpdateRateLimit(ctx context.Context, endpoint string, state *core.RateLimitState) error
}

// NewTracker returns a tracker seeded with a prior snapshot (which may be nil).
func NewTracker(seed *core.RateLimitState) *Tracker {
	t := &Tracker{}
	if seed != nil {
		t.state = *seed
		t.known = true
	}
	return t
}

// Observe records the quota headers of a response. Absent or malformed headers
// leave the previous snapshot untouched. It reports whether anything changed.
func (t *Tracker) Observe(header http.Header) bool {
	if t == nil || header == nil {
		return false
	}

	now := t.now()
	next := t.state
	changed := false

	if limit, ok := headerInt(header, HeaderLimit); ok && limit >= 0 {
		next.Limit = limit
		changed = true
	}
	if remaining, ok := headerInt(header, HeaderRemaining); ok && remaining >= 0 {
		next.Remaining = remaining
		changed = true
	}
	if reset, ok := headerInt(header, HeaderReset); ok && reset > 0 {
		resetAt := time.Unix(int64(reset), 0).UTC()
		// Reset never moves backwards; a stale reply from the same window keeps
		// the later deadline.
		if !t.known || !resetAt.Before(next.ResetAt) {
			next.ResetAt = resetAt
		}
		changed = true
	}
	if wait, ok := RetryAfter(header, now); ok {
		until := now.Add(wait)
		next.BackoffUntil = &until
		changed = true
	}

	if !changed {
		return false
	}

	if next.Limit > 0 && next.Remaining > next.Limit {
		next.Remaining = next.Limit
	}
	next.ObservedAt = now
	t.state = next
	t.known = true
	return true
}

// Backoff forces a cooldown of at least d from now. It is used when a server
// throttles a request without saying for how long.
func (t *Tracker) Backoff(d time.Duration) {
	if t == nil || d <= 0 {
		return
	}
	until := t.now().Add(d)
	if t.state.BackoffUntil != nil && t.state.BackoffUntil.After(until) {
		return
	}
	t.state.BackoffUntil = &until
	t.known = true
}

// ShouldWait returns how long a caller must hold off before the next request.
// It never sleeps.
func (t *Tracker) ShouldWait(now time.Time) time.Duration {
	if t == nil || !t.known {
		return 0
	}

	var wait time.Duration
	if t.state.BackoffUntil != nil && now.Before(*t.state.BackoffUntil) {
		wait = t.state.BackoffUntil.Sub(now)
	}
	if t.state.Exhausted(now) {
		if untilReset := t.state.ResetAt.Sub(now); untilReset > wait {
			wait = untilReset
		}
	}
	return wait
}

// State returns a copy of the current snapshot and whether one exists.
func (t *Tracker) State() (core.RateLimitState, bool) {
	if t == nil || !t.known {
		return core.RateLimitState{}, false
	}
	state := t.state
	if state.BackoffUntil != nil {
		until := *state.BackoffUntil
		state.BackoffUntil = &until
	}
	return state, true
}

// Restore seeds a tracker from persisted state for endpoint.
func Restore(ctx context.Context, store RateLimitStore, endpoint string) (*Tracker, error) {
	if store == nil || strings.TrimSpace(endpoint) == "" {
		return NewTracker(nil), nil
	}
	state, err := store.GetRateLimit(ctx, endpoint)
	if err != nil {
		return NewTracker(nil), err
	}
	return NewTracker(state), nil
}

// Persist saves the current snapshot for endpoint. A tracker that has never
// observed a response has nothing to save.
func (t *Tracker) Persist(ctx context.Context, store RateLimitStore, endpoint string) error {
	if store == nil {
		return nil
	}
	if strings.TrimSpace(endpoint) == "" {
		return errors.New("endpoint is required")
	}
	state, ok := t.State()
	if !ok {
		return nil
	}
	return store.UpdateRateLimit(ctx, endpoint, &state)
}

func (t *Tracker) now() time.Time {
	if t != nil && t.Clock != nil {
		return t.Clock()
	}
	return time.Now().UTC()
}

func headerInt(header http.Header, key string) (int, bool) {
	raw := strings.TrimSpace(header.Get(key))
	if raw == "" {
		return 0, false
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return value, true
}
