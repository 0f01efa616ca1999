package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/wadjakorntonsri/nfc-links"

// Outcome classifies a scan request for the request counter
type Outcome string

const (
	OutcomeRedirect Outcome = "redirect"
	OutcomeNotFound Outcome = "not_found"
	OutcomeError    Outcome = "error"
)

// Metrics is the observability handle shared by the redirect endpoint and the
// click recorder. Every counter is mirrored into atomics so /performance can
// report without a metrics backend.
type Metrics struct {
	requests          metric.Int64Counter
	analyticsFailures metric.Int64Counter
	duration          metric.Float64Histogram

	slowThreshold time.Duration
	startedAt     time.Time

	total          atomic.Int64
	redirects      atomic.Int64
	notFound       atomic.Int64
	errors         atomic.Int64
	slow           atomic.Int64
	durationMicros atomic.Int64
	failures       atomic.Int64
}

func NewMetrics(mp metric.MeterProvider, slowThreshold time.Duration) (*Metrics, error) {
	meter := mp.Meter(meterName)

	requests, err := meter.Int64Counter("scan_requests_total",
		metric.WithDescription("Scan requests by outcome"))
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("analytics_failures_total",
		metric.WithDescription("Dropped click-recording effects by effect"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("scan_duration_ms",
		metric.WithDescription("Time from scan receipt to redirect decision"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		requests:          requests,
		analyticsFailures: failures,
		duration:          duration,
		slowThreshold:     slowThreshold,
		startedAt:         time.Now(),
	}, nil
}

// ObserveScan records one handled scan.
func (m *Metrics) ObserveScan(ctx context.Context, outcome Outcome, elapsed time.Duration) {
	m.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))
	m.duration.Record(ctx, float64(elapsed.Microseconds())/1000)

	m.total.Add(1)
	m.durationMicros.Add(elapsed.Microseconds())
	if m.slowThreshold > 0 && elapsed > m.slowThreshold {
		m.slow.Add(1)
	}
	switch outcome {
	case OutcomeRedirect:
		m.redirects.Add(1)
	case OutcomeNotFound:
		m.notFound.Add(1)
	default:
		m.errors.Add(1)
	}
}

// AnalyticsFailure counts one abandoned recorder effect.
func (m *Metrics) AnalyticsFailure(ctx context.Context, effect string) {
	m.analyticsFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("effect", effect)))
	m.failures.Add(1)
}

// Snapshot is the /performance payload.
type Snapshot struct {
	TotalRequests       int64  `json:"totalRequests"`
	Redirects           int64  `json:"redirects"`
	NotFound            int64  `json:"notFound"`
	ErrorCount          int64  `json:"errorCount"`
	AnalyticsFailures   int64  `json:"analyticsFailures"`
	SuccessRate         string `json:"successRate"`
	AverageResponseTime string `json:"averageResponseTime"`
	SlowRequestRate     string `json:"slowRequestRate"`
	Uptime              string `json:"uptime"`
}

// Snapshot reads the counters. Not-found responses count as successes: they
// are a normal, deterministic outcome.
func (m *Metrics) Snapshot() Snapshot {
	total := m.total.Load()
	errs := m.errors.Load()

	s := Snapshot{
		TotalRequests:       total,
		Redirects:           m.redirects.Load(),
		NotFound:            m.notFound.Load(),
		ErrorCount:          errs,
		AnalyticsFailures:   m.failures.Load(),
		SuccessRate:         "100.00%",
		AverageResponseTime: "0ms",
		SlowRequestRate:     "0.00%",
		Uptime:              time.Since(m.startedAt).Round(time.Second).String(),
	}
	if total > 0 {
		s.SuccessRate = fmt.Sprintf("%.2f%%", float64(total-errs)*100/float64(total))
		s.AverageResponseTime = fmt.Sprintf("%dms", m.durationMicros.Load()/total/1000)
		s.SlowRequestRate = fmt.Sprintf("%.2f%%", float64(m.slow.Load())*100/float64(total))
	}
	return s
}
