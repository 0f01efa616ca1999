package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/wadjakorntonsri/nfc-links/pkg/config"
	"github.com/wadjakorntonsri/nfc-links/pkg/ports"
	"github.com/wadjakorntonsri/nfc-links/pkg/telemetry"
	"go.uber.org/zap"
)

type RouterDeps struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *telemetry.Metrics
	Resolver  ports.Resolver
	Finder    ports.TagFinder // public, tenant-agnostic
	Recorder  ports.ClickRecorder
	TagConfig ports.TagConfigService
	Ping      func(ctx context.Context) error
}

// NewRouter creates and configures the main application router
func NewRouter(d RouterDeps) http.Handler {
	scan := NewScanHandler(d.Resolver, d.Finder, d.Recorder, d.Metrics, d.Logger)
	tags := NewTagHandler(d.TagConfig, d.Logger)
	status := NewStatusHandler(d.Ping, d.Metrics, d.Logger)
	mw := NewMiddleware(d.Config, d.Logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if d.Config.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(mw.RequestLogger)
	r.Use(mw.Recoverer)

	r.Get("/health", status.Health)
	r.Get("/performance", status.Performance)

	r.Group(func(r chi.Router) {
		r.Use(rateLimit(d.Config.RateLimitPerMinute))
		r.Get("/scan/{identifier}", scan.Scan)
		r.Get("/q/{identifier}", scan.Scan)
		r.Get("/t/{identifier}", scan.ShortAlias)
		r.Get("/{identifier}", scan.RootAlias)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rateLimit(d.Config.RateLimitPerMinute))
		r.Use(mw.AuthMiddleware)
		r.Get("/tags/{bizcode}", tags.Get)
		r.Put("/tags/{bizcode}/redirect", tags.SetRedirect)
		r.Delete("/tags/{bizcode}/redirect", tags.ResetRedirect)
		r.Get("/tenants/{tenantID}/tags/{identifier}/resolve", tags.Preview)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		renderPage(w, http.StatusNotFound, notFoundPage)
	})

	return r
}

// rateLimit is per client IP; a non-positive limit disables it.
func rateLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.LimitByIP(perMinute, time.Minute)
}
