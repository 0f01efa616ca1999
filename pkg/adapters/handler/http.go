package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/wadjakorntonsri/nfc-links/pkg/core/domain"
	"github.com/wadjakorntonsri/nfc-links/pkg/ports"
	"github.com/wadjakorntonsri/nfc-links/pkg/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/wadjakorntonsri/nfc-links/pkg/adapters/handler")

// ScanHandler serves the public redirect endpoint.
type ScanHandler struct {
	resolver ports.Resolver
	finder   ports.TagFinder
	recorder ports.ClickRecorder
	metrics  *telemetry.Metrics
	logger   *zap.Logger
}

func NewScanHandler(resolver ports.Resolver, finder ports.TagFinder, recorder ports.ClickRecorder, metrics *telemetry.Metrics, logger *zap.Logger) *ScanHandler {
	return &ScanHandler{
		resolver: resolver,
		finder:   finder,
		recorder: recorder,
		metrics:  metrics,
		logger:   logger,
	}
}

// Scan resolves the identifier and answers 302, 404 or 500. The click is
// dispatched before the redirect is written but never waited on.
func (h *ScanHandler) Scan(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	uid := chi.URLParam(r, "identifier")

	ctx, span := tracer.Start(r.Context(), "scan",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("nfc.uid", uid)))
	defer span.End()

	resolved, err := h.resolver.Resolve(ctx, h.finder, uid, r.URL.RawQuery)
	if err != nil {
		if errors.Is(err, domain.ErrTagNotFound) {
			h.metrics.ObserveScan(ctx, telemetry.OutcomeNotFound, time.Since(start))
			h.logger.Debug("scan of unknown tag", zap.String("uid", uid))
			renderPage(w, http.StatusNotFound, notFoundPage)
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolution failed")
		h.metrics.ObserveScan(ctx, telemetry.OutcomeError, time.Since(start))
		h.logger.Error("scan resolution failed", zap.String("uid", uid), zap.Error(err))
		renderPage(w, http.StatusInternalServerError, serverErrorPage)
		return
	}

	span.SetAttributes(attribute.String("nfc.redirect_type", string(resolved.Kind)))
	h.recorder.Record(resolved.Tag, resolved, r.RemoteAddr, r.UserAgent())
	h.metrics.ObserveScan(ctx, telemetry.OutcomeRedirect, time.Since(start))

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, resolved.URL, http.StatusFound)
}

// ShortAlias permanently moves /t/{identifier} to /scan/{identifier}.
func (h *ScanHandler) ShortAlias(w http.ResponseWriter, r *http.Request) {
	movePermanently(w, r, "/scan/")
}

// RootAlias permanently moves /{identifier} to /q/{identifier}, the path
// printed on older tags. Anything that is not an identifier is a 404.
func (h *ScanHandler) RootAlias(w http.ResponseWriter, r *http.Request) {
	if !domain.ValidIdentifier(chi.URLParam(r, "identifier")) {
		renderPage(w, http.StatusNotFound, notFoundPage)
		return
	}
	movePermanently(w, r, "/q/")
}

func movePermanently(w http.ResponseWriter, r *http.Request, prefix string) {
	target := prefix + chi.URLParam(r, "identifier")
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, target, http.StatusMovedPermanently)
}

// StatusHandler serves /health and /performance.
type StatusHandler struct {
	ping    func(ctx context.Context) error
	metrics *telemetry.Metrics
	logger  *zap.Logger
}

func NewStatusHandler(ping func(ctx context.Context) error, metrics *telemetry.Metrics, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{ping: ping, metrics: metrics, logger: logger}
}

func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.ping(ctx); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": "down"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "up"})
}

func (h *StatusHandler) Performance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.metrics.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
