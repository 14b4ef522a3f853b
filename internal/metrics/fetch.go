package metrics

import (
	"strconv"
	"time"

	"github.com/octofetch/octofetch/internal/core/fetch"
	"github.com/octofetch/octofetch/internal/observability"
)

// Fetch metric names
const (
	FetchRequestsTotal       = "fetch_requests_total"
	FetchRetriesTotal        = "fetch_retries_total"
	FetchCacheTotal          = "fetch_cache_total"
	FetchRateLimitWaitsTotal = "fetch_rate_limit_waits_total"
	FetchRateLimitWaitMs     = "fetch_rate_limit_wait_ms"
)

// FetchRecorder emits fetch session events through the global telemetry
// system. The zero value is ready to use.
type FetchRecorder struct{}

var _ fetch.Recorder = FetchRecorder{}

// RequestCompleted counts one upstream response, or transport failure when status is 0.
func (FetchRecorder) RequestCompleted(outcome fetch.Outcome, status int) {
	if observability.TelemetrySystem == nil {
		return
	}
	code := "none"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	_ = observability.TelemetrySystem.Counter(FetchRequestsTotal, 1, map[string]string{
		"outcome": outcome.String(),
		"status":  code,
	})
}

func (FetchRecorder) Retried(outcome fetch.Outcome) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(FetchRetriesTotal, 1, map[string]string{
		"reason": outcome.String(),
	})
}

func (FetchRecorder) CacheLookup(hit bool) {
	if observability.TelemetrySystem == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	_ = observability.TelemetrySystem.Counter(FetchCacheTotal, 1, map[string]string{
		"result": result,
	})
}

func (FetchRecorder) RateLimitWait(wait time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(FetchRateLimitWaitsTotal, 1, nil)
	_ = observability.TelemetrySystem.Histogram(FetchRateLimitWaitMs, wait, nil)
}
