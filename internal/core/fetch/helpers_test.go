package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/octofetch/octofetch/internal/core"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: epoch}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// sleepRecorder stands in for time.Sleep and moves the clock instead.
type sleepRecorder struct {
	mu     sync.Mutex
	clock  *testClock
	waits  []time.Duration
	before func(ctx context.Context) error
}

func (r *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	if r.before != nil {
		if err := r.before(ctx); err != nil {
			return err
		}
	}
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	if r.clock != nil {
		r.clock.Advance(d)
	}
	return nil
}

func (r *sleepRecorder) Waits() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}

// collectionServer serves total items as {"id":N} objects using page and
// per_page query parameters, the way GitHub list endpoints do.
type collectionServer struct {
	total    int
	requests atomic.Int32
	// override, when set, may answer a request instead of the default handler.
	override func(w http.ResponseWriter, r *http.Request, attempt int) bool
}

func (c *collectionServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	attempt := int(c.requests.Add(1))
	if c.override != nil && c.override(w, r, attempt) {
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 30
	}

	start := (page - 1) * perPage
	items := make([]string, 0, perPage)
	for i := start; i < start+perPage && i < c.total; i++ {
		items = append(items, fmt.Sprintf(`{"id":%d}`, i))
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte("[" + strings.Join(items, ",") + "]"))
}

func (c *collectionServer) Requests() int {
	return int(c.requests.Load())
}

func newCollection(t *testing.T, total int) (*collectionServer, *httptest.Server) {
	t.Helper()
	handler := &collectionServer{total: total}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return handler, server
}

func newTestSession(server *httptest.Server, clock *testClock, sleeper *sleepRecorder) *Session {
	session := &Session{
		BaseURL: server.URL,
		Client:  server.Client(),
	}
	if clock != nil {
		session.Clock = clock.Now
	}
	if sleeper != nil {
		session.Sleep = sleeper.Sleep
	} else {
		session.Sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	}
	return session
}

func itemIDs(t *testing.T, items []json.RawMessage) []int {
	t.Helper()
	ids := make([]int, 0, len(items))
	for _, raw := range items {
		var item struct {
			ID int `json:"id"`
		}
		require.NoError(t, json.Unmarshal(raw, &item))
		ids = append(ids, item.ID)
	}
	return ids
}

func sequence(n int) []int {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i
	}
	return ids
}

type recordingRateStore struct {
	endpoint string
	state    core.RateLimitState
}

func (r *recordingRateStore) GetRateLimit(ctx context.Context, endpoint string) (*core.RateLimitState, error) {
	if r.endpoint != endpoint {
		return nil, nil
	}
	state := r.state
	return &state, nil
}

func (r *recordingRateStore) UpdateRateLimit(ctx context.Context, endpoint string, state *core.RateLimitState) error {
	r.endpoint = endpoint
	r.state = *state
	return nil
}
