package metrics

import (
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/telemetry"
	telemetrytesting "github.com/fulmenhq/gofulmen/telemetry/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/octofetch/octofetch/internal/core/fetch"
	"github.com/octofetch/octofetch/internal/observability"
)

func setupTelemetry(t *testing.T) *telemetrytesting.FakeCollector {
	t.Helper()

	collector := telemetrytesting.NewFakeCollector()
	sys, err := telemetry.NewSystem(&telemetry.Config{
		Enabled: true,
		Emitter: collector,
	})
	require.NoError(t, err)

	original := observability.TelemetrySystem
	observability.TelemetrySystem = sys
	t.Cleanup(func() {
		observability.TelemetrySystem = original
	})

	return collector
}

func TestFetchRecorderEmits(t *testing.T) {
	collector := setupTelemetry(t)

	var rec fetch.Recorder = FetchRecorder{}
	rec.RequestCompleted(fetch.OutcomeOK, 200)
	rec.RequestCompleted(fetch.OutcomeTransient, 0)
	rec.Retried(fetch.OutcomeTransient)
	rec.CacheLookup(true)
	rec.CacheLookup(false)
	rec.RateLimitWait(5 * time.Second)

	assert.Equal(t, 2, collector.CountMetricsByName(FetchRequestsTotal))
	assert.Equal(t, 1, collector.CountMetricsByName(FetchRetriesTotal))
	assert.Equal(t, 2, collector.CountMetricsByName(FetchCacheTotal))
	assert.Equal(t, 1, collector.CountMetricsByName(FetchRateLimitWaitsTotal))
	assert.Greater(t, collector.CountMetricsByName(FetchRateLimitWaitMs), 0)
}

func TestAppAndErrorMetrics(t *testing.T) {
	collector := setupTelemetry(t)

	RecordLookup("collection", true)
	RecordHealthCheck("store", false, 3*time.Millisecond)
	SetServerStartTime(time.Now().Unix())
	RecordError("RATE_LIMITED", 429)
	RecordErrorByEndpoint("/v1/collections/*", "RATE_LIMITED")
	RecordPanic()

	assert.Equal(t, 1, collector.CountMetricsByName(LookupsTotal))
	assert.Equal(t, 1, collector.CountMetricsByName(HealthCheckTotal))
	assert.Greater(t, collector.CountMetricsByName(HealthCheckDuration), 0)
	assert.Equal(t, 1, collector.CountMetricsByName(ServerStartTime))
	assert.Equal(t, 1, collector.CountMetricsByName(ErrorsTotalName))
	assert.Equal(t, 1, collector.CountMetricsByName(ErrorsByEndpointName))
	assert.Equal(t, 1, collector.CountMetricsByName(PanicsTotalName))
}

func TestMetricsWithTelemetryDisabled(t *testing.T) {
	original := observability.TelemetrySystem
	observability.TelemetrySystem = nil
	t.Cleanup(func() { observability.TelemetrySystem = original })

	rec := FetchRecorder{}
	rec.RequestCompleted(fetch.OutcomeNotFound, 404)
	rec.RateLimitWait(time.Second)
	RecordLookup("resource", false)
	RecordPanic()
}
