package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wadjakorntonsri/nfc-links/pkg/core/domain"
)

func sampleEvent() domain.AnalyticsEvent {
	return domain.AnalyticsEvent{
		EventType: domain.EventTypeNFCRedirect,
		EventData: domain.AnalyticsEventData{
			UID:          "ABCD1234",
			Bizcode:      "BZXXXX",
			TargetURL:    "https://example.com/offer?bizcode=BZXXXX&nfc_uid=ABCD1234",
			BaseURL:      "https://example.com/offer",
			RedirectType: domain.RedirectCustom,
			UserAgent:    "Mozilla/5.0",
			IP:           "203.0.113.7",
			Title:        "Front desk",
			ScannedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

func TestHTTPSink_Publish(t *testing.T) {
	var got domain.AnalyticsEvent
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/analytics/events", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	sink := NewHTTPSink(context.Background(), HTTPSinkConfig{BaseURL: server.URL, Timeout: time.Second})
	require.NoError(t, sink.Publish(context.Background(), sampleEvent()))

	assert.Equal(t, "nfc_redirect", got.EventType)
	assert.Equal(t, "BZXXXX", got.EventData.Bizcode)
	assert.Equal(t, domain.RedirectCustom, got.EventData.RedirectType)
}

func TestHTTPSink_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	sink := NewHTTPSink(context.Background(), HTTPSinkConfig{BaseURL: server.URL, Timeout: time.Second})
	err := sink.Publish(context.Background(), sampleEvent())
	assert.ErrorContains(t, err, "503")
}

func TestHTTPSink_ClientCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"svc-token","token_type":"Bearer","expires_in":3600}`))
	})
	var auth string
	mux.HandleFunc("/api/analytics/events", func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusAccepted)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	sink := NewHTTPSink(context.Background(), HTTPSinkConfig{
		BaseURL:      server.URL,
		Timeout:      time.Second,
		ClientID:     "nfc-links",
		ClientSecret: "s3cret",
		TokenURL:     server.URL + "/oauth/token",
	})
	require.NoError(t, sink.Publish(context.Background(), sampleEvent()))
	assert.Equal(t, "Bearer svc-token", auth)
}

func TestStreamSink_Publish(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sink := NewStreamSink(client, "nfc:redirects", 0)
	require.NoError(t, sink.Publish(context.Background(), sampleEvent()))

	msgs, err := client.XRange(context.Background(), "nfc:redirects", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "nfc_redirect", msgs[0].Values["event_type"])

	var decoded domain.AnalyticsEvent
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &decoded))
	assert.Equal(t, "ABCD1234", decoded.EventData.UID)
}

func TestStreamSink_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	err := NewStreamSink(client, "nfc:redirects", 0).Publish(context.Background(), sampleEvent())
	assert.Error(t, err)
}
