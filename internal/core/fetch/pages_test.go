package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/octofetch/octofetch/internal/core/cache"
)

func TestFetchAllReturnsEveryItemInOrder(t *testing.T) {
	cases := []struct {
		total   int
		perPage int
	}{
		{total: 0, perPage: 30},
		{total: 1, perPage: 1},
		{total: 7, perPage: 3},
		{total: 29, perPage: 30},
		{total: 31, perPage: 30},
		{total: 250, perPage: 100},
		{total: 5, perPage: 500},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("n=%d/p=%d", tc.total, tc.perPage), func(t *testing.T) {
			_, server := newCollection(t, tc.total)
			session := newTestSession(server, nil, nil)

			coll, err := session.FetchAll(context.Background(), "repos/o/r/issues", PageOptions{PerPage: tc.perPage})
			require.NoError(t, err)
			require.Equal(t, sequence(tc.total), itemIDs(t, coll.Items))
		})
	}
}

func TestFetchAllIsIdempotent(t *testing.T) {
	_, server := newCollection(t, 42)
	session := newTestSession(server, nil, nil)

	first, err := session.FetchAll(context.Background(), "repos/o/r/issues", PageOptions{PerPage: 10})
	require.NoError(t, err)
	second, err := session.FetchAll(context.Background(), "repos/o/r/issues", PageOptions{PerPage: 10})
	require.NoError(t, err)

	require.Equal(t, itemIDs(t, first.Items), itemIDs(t, second.Items))
	require.Equal(t, first.Pages, second.Pages)
}

func TestFetchAllExactPageSizeNeedsTrailingEmptyPage(t *testing.T) {
	handler, server := newCollection(t, 100)
	session := newTestSession(server, nil, nil)

	coll, err := session.FetchAll(context.Background(), "repos/o/r/stargazers", PageOptions{PerPage: 100})
	require.NoError(t, err)
	require.Len(t, coll.Items, 100)
	require.Equal(t, 2, handler.Requests())
	require.Equal(t, 2, coll.Pages)
}

func TestFetchAllRespectsMaxPages(t *testing.T) {
	handler, server := newCollection(t, 100)
	session := newTestSession(server, nil, nil)

	coll, err := session.FetchAll(context.Background(), "repos/o/r/issues", PageOptions{PerPage: 10, MaxPages: 2})
	require.NoError(t, err)
	require.Equal(t, sequence(20), itemIDs(t, coll.Items))
	require.Equal(t, 2, handler.Requests())
}

func TestFetchAllTreats404AfterFirstPageAsEnd(t *testing.T) {
	handler, server := newCollection(t, 1000)
	handler.override = func(w http.ResponseWriter, r *http.Request, attempt int) bool {
		if r.URL.Query().Get("page") == "2" {
			w.WriteHeader(http.StatusNotFound)
			return true
		}
		return false
	}
	session := newTestSession(server, nil, nil)

	coll, err := session.FetchAll(context.Background(), "repos/o/r/issues", PageOptions{PerPage: 10})
	require.NoError(t, err)
	require.Equal(t, sequence(10), itemIDs(t, coll.Items))
	require.Equal(t, 2, handler.Requests())
}

func TestFetchAllNotFoundOnFirstPage(t *testing.T) {
	handler, server := newCollection(t, 10)
	handler.override = func(w http.ResponseWriter, r *http.Request, attempt int) bool {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
		return true
	}
	session := newTestSession(server, nil, nil)

	coll, err := session.FetchAll(context.Background(), "repos/o/missing/issues", PageOptions{})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrNotFound)
	require.Empty(t, coll.Items)
	require.Equal(t, 1, handler.Requests())
}

func TestFetchAllTwoServerErrorsFailWithPartialItems(t *testing.T) {
	handler, server := newCollection(t, 1000)
	handler.override = func(w http.ResponseWriter, r *http.Request, attempt int) bool {
		if r.URL.Query().Get("page") == "2" {
			w.WriteHeader(http.StatusBadGateway)
			return true
		}
		return false
	}
	session := newTestSession(server, nil, nil)

	coll, err := session.FetchAll(context.Background(), "repos/o/r/issues", PageOptions{PerPage: 10})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrFetchFailed)
	require.Equal(t, sequence(10), itemIDs(t, coll.Items))
	require.Equal(t, 3, handler.Requests())

	fe, ok := AsFetchError(err)
	require.True(t, ok)
	require.Equal(t, KindFetchFailed, fe.Kind)
	require.Equal(t, 2, fe.Page)
	require.Equal(t, 1, fe.LastPage)
	require.Equal(t, http.StatusBadGateway, fe.StatusCode)
	require.Equal(t, sequence(10), itemIDs(t, fe.Partial()))
}

func TestFetchAllRetriesTransientFailureOnce(t *testing.T) {
	handler, server := newCollection(t, 15)
	handler.override = func(w http.ResponseWriter, r *http.Request, attempt int) bool {
		if attempt == 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return true
		}
		return false
	}
	session := newTestSession(server, nil, nil)

	coll, err := session.FetchAll(context.Background(), "repos/o/r/issues", PageOptions{PerPage: 10})
	require.NoError(t, err)
	require.Equal(t, sequence(15), itemIDs(t, coll.Items))
	require.Equal(t, 3, handler.Requests())
}

func TestFetchAllThrottleBreaksTransientRun(t *testing.T) {
	clock := newTestClock()
	sleeper := &sleepRecorder{clock: clock}

	handler, server := newCollection(t, 5)
	handler.override = func(w http.ResponseWriter, r *http.Request, attempt int) bool {
		switch attempt {
		case 1, 3:
			w.WriteHeader(http.StatusBadGateway)
			return true
		case 2:
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return true
		}
		return false
	}
	session := newTestSession(server, clock, sleeper)

	coll, err := session.FetchAll(context.Background(), "repos/o/r/issues", PageOptions{PerPage: 10})
	require.NoError(t, err)
	require.Equal(t, sequence(5), itemIDs(t, coll.Items))
	require.Equal(t, 4, handler.Requests())
	require.Equal(t, []time.Duration{time.Second}, sleeper.Waits())
}

func TestFetchAllCancelledAtPageBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler, server := newCollection(t, 1000)
	handler.override = func(w http.ResponseWriter, r *http.Request, attempt int) bool {
		if attempt == 2 {
			cancel()
		}
		return false
	}
	session := newTestSession(server, nil, nil)

	coll, err := session.FetchAll(ctx, "repos/o/r/issues", PageOptions{PerPage: 10})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrCancelled)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, sequence(20), itemIDs(t, coll.Items))
	require.Equal(t, 2, handler.Requests())

	fe, ok := AsFetchError(err)
	require.True(t, ok)
	require.Equal(t, 3, fe.Page)
	require.Equal(t, 2, fe.LastPage)
	require.Len(t, fe.Items, 20)
}

func TestFetchAllWaitsForQuotaReset(t *testing.T) {
	clock := newTestClock()
	sleeper := &sleepRecorder{clock: clock}

	handler, server := newCollection(t, 5)
	handler.override = func(w http.ResponseWriter, r *http.Request, attempt int) bool {
		if attempt == 1 {
			w.Header().Set("X-RateLimit-Limit", "60")
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(clock.Now().Add(5*time.Second).Unix(), 10))
			w.WriteHeader(http.StatusForbidden)
			return true
		}
		w.Header().Set("X-RateLimit-Limit", "60")
		w.Header().Set("X-RateLimit-Remaining", "59")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(clock.Now().Add(time.Hour).Unix(), 10))
		return false
	}
	session := newTestSession(server, clock, sleeper)

	coll, err := session.FetchAll(context.Background(), "repos/o/r/issues", PageOptions{PerPage: 10})
	require.NoError(t, err)
	require.Equal(t, sequence(5), itemIDs(t, coll.Items))
	require.Equal(t, []time.Duration{5 * time.Second}, sleeper.Waits())
	require.Equal(t, 2, handler.Requests())

	state, ok := session.RateLimit()
	require.True(t, ok)
	require.Equal(t, 59, state.Remaining)
}

func TestFetchAllRetryAfterZeroRetriesImmediately(t *testing.T) {
	for name, hint := range map[string]string{
		"zero seconds": "0",
		"past date":    epoch.Add(-time.Minute).Format(http.TimeFormat),
	} {
		t.Run(name, func(t *testing.T) {
			clock := newTestClock()
			sleeper := &sleepRecorder{clock: clock}

			handler, server := newCollection(t, 5)
			handler.override = func(w http.ResponseWriter, r *http.Request, attempt int) bool {
				if attempt == 1 {
					w.Header().Set("Retry-After", hint)
					w.WriteHeader(http.StatusTooManyRequests)
					return true
				}
				return false
			}
			session := newTestSession(server, clock, sleeper)

			coll, err := session.FetchAll(context.Background(), "repos/o/r/issues", PageOptions{PerPage: 10})
			require.NoError(t, err)
			require.Len(t, coll.Items, 5)
			require.Equal(t, 2, handler.Requests())
			require.Empty(t, sleeper.Waits())
		})
	}
}

func TestFetchAllThrottleWithoutHintUsesFallbackBackoff(t *testing.T) {
	clock := newTestClock()
	sleeper := &sleepRecorder{clock: clock}

	handler, server := newCollection(t, 5)
	handler.override = func(w http.ResponseWriter, r *http.Request, attempt int) bool {
		if attempt == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return true
		}
		return false
	}
	session := newTestSession(server, clock, sleeper)
	session.RateLimitBackoff = 30 * time.Second

	_, err := session.FetchAll(context.Background(), "repos/o/r/issues", PageOptions{PerPage: 10})
	require.NoError(t, err)
	require.Equal(t, []time.Duration{30 * time.Second}, sleeper.Waits())
}

func TestPagesRejectsParentSegments(t *testing.T) {
	handler, server := newCollection(t, 5)
	session := newTestSession(server, nil, nil)

	var errs []error
	for _, err := range session.Pages(context.Background(), "repos/o/../../x/issues", PageOptions{}) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], ErrInvalidPath)
	require.Zero(t, handler.Requests())

	_, err := session.FetchAll(context.Background(), "repos/../issues", PageOptions{})
	require.ErrorIs(t, err, ErrInvalidPath)
	require.Zero(t, handler.Requests())
}

func TestFetchAllGivesUpAfterRepeatedThrottling(t *testing.T) {
	clock := newTestClock()
	sleeper := &sleepRecorder{clock: clock}

	handler, server := newCollection(t, 5)
	handler.override = func(w http.ResponseWriter, r *http.Request, attempt int) bool {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
		return true
	}
	session := newTestSession(server, clock, sleeper)
	session.MaxRateLimitWaits = 2

	_, err := session.FetchAll(context.Background(), "repos/o/r/issues", PageOptions{})
	require.ErrorIs(t, err, ErrRateLimited)
	require.Equal(t, 3, handler.Requests())
	require.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, sleeper.Waits())
}

func TestFetchAllCancelledWhileWaitingForQuota(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := newTestClock()
	sleeper := &sleepRecorder{clock: clock, before: func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	}}

	handler, server := newCollection(t, 5)
	handler.override = func(w http.ResponseWriter, r *http.Request, attempt int) bool {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(clock.Now().Add(time.Minute).Unix(), 10))
		w.WriteHeader(http.StatusForbidden)
		return true
	}
	session := newTestSession(server, clock, sleeper)

	_, err := session.FetchAll(ctx, "repos/o/r/issues", PageOptions{})
	require.ErrorIs(t, err, ErrCancelled)
	require.ErrorIs(t, err, ErrRateLimited)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, handler.Requests())
}

func TestFetchAllUsesCacheOnRepeat(t *testing.T) {
	handler, server := newCollection(t, 25)
	session := newTestSession(server, nil, nil)
	session.Cache = cache.NewMemory(time.Minute)

	first, err := session.FetchAll(context.Background(), "repos/o/r/issues", PageOptions{PerPage: 10})
	require.NoError(t, err)
	require.Equal(t, 3, handler.Requests())
	require.False(t, first.Provenance.FromCache)

	second, err := session.FetchAll(context.Background(), "repos/o/r/issues", PageOptions{PerPage: 10})
	require.NoError(t, err)
	require.Equal(t, 3, handler.Requests())
	require.Equal(t, 3, second.CacheHits)
	require.True(t, second.Provenance.FromCache)
	require.Equal(t, itemIDs(t, first.Items), itemIDs(t, second.Items))
}

func TestPagesStopsWhenConsumerBreaks(t *testing.T) {
	handler, server := newCollection(t, 100)
	session := newTestSession(server, nil, nil)

	var seen []json.RawMessage
	for item, err := range session.Pages(context.Background(), "repos/o/r/issues", PageOptions{PerPage: 10}) {
		require.NoError(t, err)
		seen = append(seen, item)
		if len(seen) == 3 {
			break
		}
	}

	require.Equal(t, sequence(3), itemIDs(t, seen))
	require.Equal(t, 1, handler.Requests())
}

func TestPagesYieldsTerminalError(t *testing.T) {
	handler, server := newCollection(t, 100)
	handler.override = func(w http.ResponseWriter, r *http.Request, attempt int) bool {
		if r.URL.Query().Get("page") == "2" {
			w.WriteHeader(http.StatusUnauthorized)
			return true
		}
		return false
	}
	session := newTestSession(server, nil, nil)

	var (
		items  int
		errs   []error
		cursor = session.Pages(context.Background(), "repos/o/r/issues", PageOptions{PerPage: 10})
	)
	for _, err := range cursor {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		items++
	}

	require.Equal(t, 10, items)
	require.Len(t, errs, 1)
	require.True(t, errors.Is(errs[0], ErrUnauthorized))
}

func TestPagesMergesQueryAndUnwrapsSearchResults(t *testing.T) {
	var seen url.Values
	handler, server := newCollection(t, 0)
	handler.override = func(w http.ResponseWriter, r *http.Request, attempt int) bool {
		seen = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"total_count":2,"incomplete_results":false,"items":[{"id":0},{"id":1}]}`))
		return true
	}
	session := newTestSession(server, nil, nil)

	coll, err := session.FetchAll(context.Background(), "search/repositories?q=octofetch", PageOptions{
		PerPage: 50,
		Query:   url.Values{"sort": []string{"stars"}},
	})
	require.NoError(t, err)
	require.Equal(t, sequence(2), itemIDs(t, coll.Items))
	require.Equal(t, "octofetch", seen.Get("q"))
	require.Equal(t, "stars", seen.Get("sort"))
	require.Equal(t, "1", seen.Get("page"))
	require.Equal(t, "50", seen.Get("per_page"))
	require.Equal(t, "search/repositories", coll.Path)
}

func TestFetchAllRejectsNonArrayPayload(t *testing.T) {
	handler, server := newCollection(t, 0)
	handler.override = func(w http.ResponseWriter, r *http.Request, attempt int) bool {
		_, _ = w.Write([]byte(`{"login":"octocat"}`))
		return true
	}
	session := newTestSession(server, nil, nil)

	_, err := session.FetchAll(context.Background(), "users/octocat", PageOptions{})
	require.ErrorIs(t, err, ErrFetchFailed)
	require.Equal(t, 1, handler.Requests())
}

func TestDecodeItems(t *testing.T) {
	items, err := decodeItems([]byte("  "))
	require.NoError(t, err)
	require.Empty(t, items)

	items, err = decodeItems([]byte(`[{"id":1},{"id":2}]`))
	require.NoError(t, err)
	require.Len(t, items, 2)

	items, err = decodeItems([]byte(`{"items":[]}`))
	require.NoError(t, err)
	require.Empty(t, items)

	_, err = decodeItems([]byte(`"nope"`))
	require.Error(t, err)

	_, err = decodeItems([]byte(`[{"id":1}`))
	require.Error(t, err)
}
