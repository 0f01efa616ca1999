// Package analytics publishes scan events to the ingestion pipeline.
package analytics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/wadjakorntonsri/nfc-links/pkg/core/domain"
	"golang.org/x/oauth2/clientcredentials"
)

const eventsPath = "/api/analytics/events"

// HTTPSink POSTs events to the analytics API. Retries belong to the click
// recorder, so the client itself never retries.
type HTTPSink struct {
	client *resty.Client
}

type HTTPSinkConfig struct {
	BaseURL      string
	Timeout      time.Duration
	ClientID     string
	ClientSecret string
	TokenURL     string
}

func NewHTTPSink(ctx context.Context, cfg HTTPSinkConfig) *HTTPSink {
	client := resty.NewWithClient(httpClient(ctx, cfg)).
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "nfc-links/1.0")
	return &HTTPSink{client: client}
}

// httpClient returns a client that attaches OAuth2 client-credentials tokens
// when the analytics API requires them.
func httpClient(ctx context.Context, cfg HTTPSinkConfig) *http.Client {
	if cfg.ClientID == "" || cfg.TokenURL == "" {
		return &http.Client{}
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	return cc.Client(ctx)
}

func (s *HTTPSink) Publish(ctx context.Context, event domain.AnalyticsEvent) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(event).
		Post(eventsPath)
	if err != nil {
		return fmt.Errorf("post analytics event: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("analytics API returned %d", resp.StatusCode())
	}
	return nil
}
