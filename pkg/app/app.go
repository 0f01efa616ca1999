// Package app wires configuration into a ready-to-serve HTTP handler. Both
// the long-running server and the serverless entrypoint build through it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/wadjakorntonsri/nfc-links/pkg/adapters/analytics"
	"github.com/wadjakorntonsri/nfc-links/pkg/adapters/cache"
	"github.com/wadjakorntonsri/nfc-links/pkg/adapters/handler"
	"github.com/wadjakorntonsri/nfc-links/pkg/adapters/repository"
	"github.com/wadjakorntonsri/nfc-links/pkg/config"
	"github.com/wadjakorntonsri/nfc-links/pkg/core/services"
	"github.com/wadjakorntonsri/nfc-links/pkg/core/tenancy"
	"github.com/wadjakorntonsri/nfc-links/pkg/ports"
	"github.com/wadjakorntonsri/nfc-links/pkg/telemetry"
	"go.uber.org/zap"
)

const (
	serviceName     = "nfc-links"
	streamMaxLength = 100000
)

type App struct {
	Handler  http.Handler
	Store    repository.Store
	Recorder *services.Recorder
	Metrics  *telemetry.Metrics

	redis     *redis.Client
	providers *telemetry.Providers
	logger    *zap.Logger
}

// New opens every backing service named by cfg. The caller owns Close.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{logger: logger}

	providers, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	a.providers = providers

	a.Metrics, err = telemetry.NewMetrics(providers.MeterProvider, cfg.SlowRequestThreshold)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("metrics: %w", err)
	}

	a.Store, err = repository.Open(cfg)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("database: %w", err)
	}

	if cfg.RedisURL != "" {
		a.redis, err = cache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
	}

	var (
		publicFinder ports.TagFinder = tenancy.Public().Finder(a.Store)
		tagCache     ports.TagCache
	)
	if a.redis != nil && cfg.CacheTTL > 0 {
		tagCache = cache.NewRedisTagCache(a.redis, cfg.CacheTTL)
		publicFinder = tenancy.Public().Finder(services.NewCachedFinder(a.Store, tagCache, logger))
	}

	var sink ports.AnalyticsSink
	switch cfg.AnalyticsSink {
	case "http":
		sink = analytics.NewHTTPSink(ctx, analytics.HTTPSinkConfig{
			BaseURL:      cfg.APIBaseURL,
			Timeout:      cfg.RecordTimeout,
			ClientID:     cfg.AnalyticsClientID,
			ClientSecret: cfg.AnalyticsClientSecret,
			TokenURL:     cfg.AnalyticsTokenURL,
		})
	case "redis":
		sink = analytics.NewStreamSink(a.redis, cfg.AnalyticsStream, streamMaxLength)
	}

	resolver := services.NewResolver(services.ResolverConfig{
		DefaultURL:     cfg.DefaultRedirectURL,
		TrackingParams: cfg.TrackingParams,
		LookupTimeout:  cfg.LookupTimeout,
		IsSelfRedirect: cfg.IsSelfRedirect,
	}, logger)

	a.Recorder = services.NewRecorder(a.Store, sink, a.Metrics, logger, services.RecorderConfig{
		Timeout:     cfg.RecordTimeout,
		MaxAttempts: cfg.RecordMaxAttempts,
		MaxInFlight: cfg.RecordMaxInFlight,
	})

	guard := tenancy.NewGuard(a.Store, logger)
	tagConfig := services.NewTagConfigService(a.Store, guard, resolver, tagCache, cfg.IsSelfRedirect, logger)

	a.Handler = handler.NewRouter(handler.RouterDeps{
		Config:    cfg,
		Logger:    logger,
		Metrics:   a.Metrics,
		Resolver:  resolver,
		Finder:    publicFinder,
		Recorder:  a.Recorder,
		TagConfig: tagConfig,
		Ping:      a.Store.Ping,
	})

	logger.Info("application wired",
		zap.String("database_driver", cfg.DatabaseDriver),
		zap.Bool("cache", tagCache != nil),
		zap.String("analytics_sink", cfg.AnalyticsSink),
		zap.Bool("otel", cfg.OTelEndpoint != ""),
	)
	return a, nil
}

// Close drains in-flight click records, then releases connections.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Recorder != nil {
		if err := a.Recorder.Wait(ctx); err != nil {
			a.logger.Warn("click recorder did not drain", zap.Error(err))
			errs = append(errs, err)
		}
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.providers != nil {
		errs = append(errs, a.providers.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
