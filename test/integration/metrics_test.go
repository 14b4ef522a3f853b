package integration

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/octofetch/octofetch/internal/core/cache"
	"github.com/octofetch/octofetch/internal/core/engine"
	"github.com/octofetch/octofetch/internal/core/fetch"
	"github.com/octofetch/octofetch/internal/metrics"
	"github.com/octofetch/octofetch/internal/observability"
	"github.com/octofetch/octofetch/internal/server"
	"github.com/octofetch/octofetch/internal/server/handlers"
)

// cleanupMetrics tears down global telemetry state so each test starts clean.
// This matters in sandboxes where lingering exporters can block future binds.
func cleanupMetrics(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		if observability.PrometheusExporter != nil {
			_ = observability.PrometheusExporter.Stop()
			observability.PrometheusExporter = nil
		}
		observability.TelemetrySystem = nil
	})
}

// isPermissionError normalizes OS-specific permission errors (macOS/Linux/BSD)
// so we can gracefully skip when loopback sockets are blocked.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"permission denied", "operation not permitted", "not permitted"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}

	return false
}

// initMetricsOrSkip attempts to start the metrics exporter; if the environment
// forbids network binds we skip instead of failing the entire suite.
func initMetricsOrSkip(t *testing.T) {
	t.Helper()

	if err := observability.InitMetrics("test", 0); err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping metrics tests due to sandbox permissions: %v", err)
		}
		require.NoError(t, err)
	}

	cleanupMetrics(t)
}

// listenLoopback binds to IPv4 loopback explicitly (avoiding IPv6-only
// defaults) and skips when the sandbox refuses to open sockets.
func listenLoopback(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping server setup: %v", err)
		}
		require.NoError(t, err)
	}

	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: handler},
	}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts
}

// fakeUpstream serves /repos/acme/widgets/issues with total items and GitHub
// style rate-limit headers; any other path is a 404.
func fakeUpstream(t *testing.T, total int) *httptest.Server {
	t.Helper()
	reset := time.Now().Add(time.Hour).Unix()

	return listenLoopback(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(engine.HeaderLimit, "5000")
		w.Header().Set(engine.HeaderRemaining, "4999")
		w.Header().Set(engine.HeaderReset, strconv.FormatInt(reset, 10))

		if r.URL.Path != "/repos/acme/widgets/issues" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Not Found"}`))
			return
		}

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
		items := []map[string]int{}
		for i := (page - 1) * perPage; i < page*perPage && i < total; i++ {
			items = append(items, map[string]int{"number": i + 1})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(items)
	}))
}

func newFacade(t *testing.T, upstreamURL string) (*httptest.Server, *http.Client) {
	t.Helper()

	session := &fetch.Session{
		BaseURL:  upstreamURL,
		Tracker:  engine.NewTracker(nil),
		Cache:    cache.NewMemory(time.Minute),
		Recorder: metrics.FetchRecorder{},
		Logger:   observability.ServerLogger,
	}

	hm := handlers.NewHealthManager("test")
	hm.RegisterChecker("upstream_quota", handlers.QuotaChecker{Fetcher: session})

	srv := server.New(server.Options{
		Host:    "127.0.0.1",
		Port:    0,
		Fetcher: session,
		PerPage: 10,
		Health:  hm,
	})

	ts := listenLoopback(t, srv.Handler())
	return ts, ts.Client()
}

func scrape(t *testing.T, client *http.Client, baseURL string) (string, *http.Response) {
	t.Helper()
	resp, err := client.Get(baseURL + "/metrics")
	require.NoError(t, err)
	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, readErr)
	return string(body), resp
}

func TestMetricsEndpoint_Integration(t *testing.T) {
	observability.InitCLILogger("test", false)
	observability.InitServerLogger("test", "info", "")

	initMetricsOrSkip(t)

	upstream := fakeUpstream(t, 25)
	ts, client := newFacade(t, upstream.URL)

	const numRequests = 40
	const numWorkers = 8

	requestChan := make(chan int, numRequests)
	for i := 0; i < numRequests; i++ {
		requestChan <- i
	}
	close(requestChan)

	start := time.Now()

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for reqNum := range requestChan {
				var path string
				switch reqNum % 4 {
				case 0:
					path = "/v1/collections/repos/acme/widgets/issues"
				case 1:
					path = "/v1/resources/repos/acme/missing"
				case 2:
					path = "/v1/rate-limit"
				default:
					path = "/health"
				}

				resp, err := client.Get(ts.URL + path)
				if err == nil {
					_ = resp.Body.Close()
				}
			}
		}()
	}
	wg.Wait()

	elapsed := time.Since(start)

	metricsContent, resp := scrape(t, client, ts.URL)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, metricsContent, "test_http_requests_total", "Should have HTTP request metrics")
	assert.Contains(t, metricsContent, "test_http_request_duration_ms", "Should have duration metrics")
	assert.Contains(t, metricsContent, "test_fetch_requests_total", "Should have upstream request metrics")
	assert.Contains(t, metricsContent, "test_fetch_cache_total", "Should have cache lookup metrics")
	assert.True(t, elapsed < 5*time.Second, "Load test should complete in reasonable time")
	t.Logf("Load test completed: %d requests in %v (%.2f req/s)", numRequests, elapsed, float64(numRequests)/elapsed.Seconds())
}

func TestCollectionThroughFacade_Integration(t *testing.T) {
	observability.InitCLILogger("test", false)
	observability.InitServerLogger("test", "info", "")

	upstream := fakeUpstream(t, 25)
	ts, client := newFacade(t, upstream.URL)

	resp, err := client.Get(ts.URL + "/v1/collections/repos/acme/widgets/issues?per_page=10")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var coll struct {
		Pages int               `json:"pages"`
		Items []json.RawMessage `json:"items"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&coll))
	assert.Len(t, coll.Items, 25)
	assert.Equal(t, 3, coll.Pages)

	for i, item := range coll.Items {
		assert.JSONEq(t, fmt.Sprintf(`{"number":%d}`, i+1), string(item))
	}

	rl, err := client.Get(ts.URL + "/v1/rate-limit")
	require.NoError(t, err)
	defer func() { _ = rl.Body.Close() }()
	var quota handlers.RateLimitResponse
	require.NoError(t, json.NewDecoder(rl.Body).Decode(&quota))
	assert.True(t, quota.Observed)
	assert.Equal(t, 5000, quota.Limit)
	assert.Equal(t, 4999, quota.Remaining)
}

func TestMetricsEndpoint_PrometheusFormat(t *testing.T) {
	observability.InitCLILogger("test", false)
	observability.InitServerLogger("test", "info", "")

	initMetricsOrSkip(t)

	upstream := fakeUpstream(t, 3)
	ts, client := newFacade(t, upstream.URL)

	resp, err := client.Get(ts.URL + "/v1/collections/repos/acme/widgets/issues")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	metricsContent, resp := scrape(t, client, ts.URL)
	contentType := resp.Header.Get("Content-Type")
	assert.True(t,
		strings.HasPrefix(contentType, "text/plain; version=0.0.4"),
		"Expected Prometheus content type, got: %s", contentType)

	lines := strings.Split(strings.TrimSpace(metricsContent), "\n")
	hasValidMetrics := false
	metricLines := 0
	for _, line := range lines {
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}
		metricLines++
		if strings.Contains(line, "{") && len(strings.Fields(line)) >= 2 {
			hasValidMetrics = true
		}
	}
	assert.True(t, hasValidMetrics, "Should have valid Prometheus metric lines")
	assert.Greater(t, metricLines, 0, "Should have actual metric values")
}

func TestMetricsEndpoint_WithTelemetryDisabled(t *testing.T) {
	observability.InitCLILogger("test", false)
	observability.InitServerLogger("test", "info", "")

	originalExporter := observability.PrometheusExporter
	originalTelemetry := observability.TelemetrySystem
	observability.PrometheusExporter = nil
	observability.TelemetrySystem = nil
	t.Cleanup(func() {
		observability.PrometheusExporter = originalExporter
		observability.TelemetrySystem = originalTelemetry
	})

	upstream := fakeUpstream(t, 1)
	ts, client := newFacade(t, upstream.URL)

	resp, err := client.Get(ts.URL + "/v1/collections/repos/acme/widgets/issues")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, resp = scrape(t, client, ts.URL)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
