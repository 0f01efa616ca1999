package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/wadjakorntonsri/nfc-links/pkg/core/domain"
	"github.com/wadjakorntonsri/nfc-links/pkg/ports"
	"github.com/wadjakorntonsri/nfc-links/pkg/telemetry"
	"go.uber.org/zap"
)

// Effect names used for the analytics_failures_total counter.
const (
	EffectIncrement = "increment"
	EffectScanEvent = "scan_event"
	EffectPublish   = "publish"
	EffectDropped   = "dropped"
)

type RecorderConfig struct {
	Timeout        time.Duration
	MaxAttempts    uint
	MaxInFlight    int
	InitialBackoff time.Duration
}

// Recorder runs the click side effects of a scan off the request path.
// Record never blocks and never reports failure to the caller.
type Recorder struct {
	store   ports.ClickStore
	sink    ports.AnalyticsSink
	metrics *telemetry.Metrics
	logger  *zap.Logger
	cfg     RecorderConfig

	slots chan struct{}
	wg    sync.WaitGroup
	now   func() time.Time
}

// NewRecorder builds a recorder. sink may be nil when no analytics ingestion
// is configured.
func NewRecorder(store ports.ClickStore, sink ports.AnalyticsSink, metrics *telemetry.Metrics, logger *zap.Logger, cfg RecorderConfig) *Recorder {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 50 * time.Millisecond
	}
	return &Recorder{
		store:   store,
		sink:    sink,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		slots:   make(chan struct{}, cfg.MaxInFlight),
		now:     time.Now,
	}
}

func (r *Recorder) Record(tag *domain.Tag, resolved *domain.ResolvedRedirect, clientAddr, userAgent string) {
	select {
	case r.slots <- struct{}{}:
	default:
		r.metrics.AnalyticsFailure(context.Background(), EffectDropped)
		r.logger.Warn("click recorder saturated, dropping record", zap.String("uid", tag.UID))
		return
	}

	at := r.now().UTC()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() { <-r.slots }()
		r.run(tag, resolved, clientIP(clientAddr), userAgent, at)
	}()
}

// Wait blocks until every dispatched record has finished or ctx is done.
func (r *Recorder) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type effect struct {
	name string
	fn   func(context.Context) error
}

func (r *Recorder) run(tag *domain.Tag, resolved *domain.ResolvedRedirect, ip, userAgent string, at time.Time) {
	// Detached from the request: the redirect has usually been written already.
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
	defer cancel()

	event := &domain.ScanEvent{
		ID:          uuid.New(),
		TagID:       tag.ID,
		ResolvedURL: resolved.URL,
		Kind:        resolved.Kind,
		ClientIP:    ip,
		UserAgent:   userAgent,
		CreatedAt:   at,
	}

	effects := []effect{
		{EffectIncrement, func(ctx context.Context) error { return r.store.IncrementClicks(ctx, tag.ID, at) }},
		{EffectScanEvent, func(ctx context.Context) error { return r.store.RecordScan(ctx, event) }},
	}
	if r.sink != nil {
		payload := domain.AnalyticsEvent{
			EventType: domain.EventTypeNFCRedirect,
			EventData: domain.AnalyticsEventData{
				UID:          tag.UID,
				Bizcode:      tag.Bizcode,
				TargetURL:    resolved.URL,
				BaseURL:      resolved.BaseURL,
				RedirectType: resolved.Kind,
				UserAgent:    userAgent,
				IP:           ip,
				Title:        tag.Title,
				ScannedAt:    at,
			},
		}
		effects = append(effects, effect{EffectPublish, func(ctx context.Context) error { return r.sink.Publish(ctx, payload) }})
	}

	var wg sync.WaitGroup
	for _, e := range effects {
		wg.Add(1)
		go func(e effect) {
			defer wg.Done()
			if err := r.attempt(ctx, e.fn); err != nil {
				r.metrics.AnalyticsFailure(context.Background(), e.name)
				r.logger.Warn("click effect dropped",
					zap.String("effect", e.name),
					zap.String("uid", tag.UID),
					zap.Error(err),
				)
			}
		}(e)
	}
	wg.Wait()
}

func (r *Recorder) attempt(ctx context.Context, fn func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialBackoff
	b.MaxInterval = r.cfg.Timeout

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := fn(ctx)
		if errors.Is(err, domain.ErrTagNotFound) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(r.cfg.MaxAttempts))
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrAnalyticsUnavailable, err)
	}
	return nil
}

// clientIP strips the port from a RemoteAddr-style value.
func clientIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
