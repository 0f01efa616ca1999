package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp, 50*time.Millisecond)
	require.NoError(t, err)
	return m, reader
}

func sumOf(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != name {
				continue
			}
			sum, ok := md.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestMetrics_ObserveScan(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ObserveScan(ctx, OutcomeRedirect, 10*time.Millisecond)
	m.ObserveScan(ctx, OutcomeRedirect, 90*time.Millisecond)
	m.ObserveScan(ctx, OutcomeNotFound, 2*time.Millisecond)
	m.ObserveScan(ctx, OutcomeError, 2*time.Millisecond)

	assert.Equal(t, int64(4), sumOf(t, reader, "scan_requests_total"))

	snap := m.Snapshot()
	assert.Equal(t, int64(4), snap.TotalRequests)
	assert.Equal(t, int64(2), snap.Redirects)
	assert.Equal(t, int64(1), snap.NotFound)
	assert.Equal(t, int64(1), snap.ErrorCount)
	assert.Equal(t, "75.00%", snap.SuccessRate)
	assert.Equal(t, "26ms", snap.AverageResponseTime)
	assert.Equal(t, "25.00%", snap.SlowRequestRate)
}

func TestMetrics_AnalyticsFailure(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.AnalyticsFailure(context.Background(), "increment")
	m.AnalyticsFailure(context.Background(), "sink")

	assert.Equal(t, int64(2), sumOf(t, reader, "analytics_failures_total"))
	assert.Equal(t, int64(2), m.Snapshot().AnalyticsFailures)
}

func TestMetrics_EmptySnapshot(t *testing.T) {
	m, _ := newTestMetrics(t)

	snap := m.Snapshot()
	assert.Equal(t, int64(0), snap.TotalRequests)
	assert.Equal(t, "100.00%", snap.SuccessRate)
}

func TestSetup_NoEndpoint(t *testing.T) {
	p, err := Setup(context.Background(), "nfc-links", "")
	require.NoError(t, err)
	assert.NotNil(t, p.MeterProvider)
	assert.NoError(t, p.Shutdown(context.Background()))
}
