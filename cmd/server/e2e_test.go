package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wadjakorntonsri/nfc-links/pkg/app"
	"github.com/wadjakorntonsri/nfc-links/pkg/config"
	"github.com/wadjakorntonsri/nfc-links/pkg/core/domain"
	"go.uber.org/zap"
)

const jwtSecret = "e2e-secret"

func signToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &jwt.RegisteredClaims{
		Subject:   userID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	s, err := token.SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return s
}

func TestIntegration(t *testing.T) {
	ctx := context.Background()

	// 1. Setup the whole application on a throwaway sqlite file
	cfg := &config.Config{
		DatabaseURL:          "file:" + filepath.Join(t.TempDir(), "e2e.sqlite"),
		DatabaseDriver:       "sqlite",
		AutoMigrate:          true,
		PublicBaseURL:        "https://get.biz365.ai",
		DefaultRedirectURL:   "https://app.biz365.ai/signup",
		TrackingParams:       []string{"ref", "utm_source", "utm_medium", "utm_campaign"},
		LookupTimeout:        2 * time.Second,
		RecordTimeout:        time.Second,
		RecordMaxAttempts:    3,
		RecordMaxInFlight:    64,
		SlowRequestThreshold: 100 * time.Millisecond,
		AnalyticsSink:        "none",
		JWTSecret:            jwtSecret,
	}
	a, err := app.New(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close(ctx)

	// 2. Provision a tenant, a member and two tags
	tenant := &domain.Tenant{Name: "Acme"}
	require.NoError(t, a.Store.CreateTenant(ctx, tenant))
	member := uuid.New()
	require.NoError(t, a.Store.AddMember(ctx, tenant.ID, member, "owner"))

	offer := "https://example.com/offer?utm_source=nfc"
	owned := uuid.NullUUID{UUID: tenant.ID, Valid: true}
	require.NoError(t, a.Store.CreateTag(ctx, &domain.Tag{UID: "ABCD1234", Bizcode: "BZXXXX", TenantID: owned, CustomTarget: &offer, IsActive: true}))
	require.NoError(t, a.Store.CreateTag(ctx, &domain.Tag{UID: "EFGH5678", Bizcode: "BZXXXX2", TenantID: owned, IsActive: true}))

	server := httptest.NewServer(a.Handler)
	defer server.Close()

	client := server.Client()
	// Don't follow redirects automatically to check status code
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	get := func(t *testing.T, path string) *http.Response {
		t.Helper()
		resp, err := client.Get(server.URL + path)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	// TEST 1: Custom target keeps its own query and gets the fixed params
	t.Run("custom target", func(t *testing.T) {
		resp := get(t, "/scan/ABCD1234")
		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "https://example.com/offer?utm_source=nfc&bizcode=BZXXXX&nfc_uid=ABCD1234", resp.Header.Get("Location"))
	})

	// TEST 2: Legacy path, default destination, tracking params forwarded
	t.Run("default target", func(t *testing.T) {
		resp := get(t, "/q/EFGH5678?utm_campaign=spring&session=abc")
		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "https://app.biz365.ai/signup?utm_campaign=spring&bizcode=BZXXXX2&nfc_uid=EFGH5678", resp.Header.Get("Location"))
	})

	// TEST 3: Unknown identifier renders the not-found page
	t.Run("unknown", func(t *testing.T) {
		resp := get(t, "/scan/NOPE0000")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	})

	// TEST 4: Concurrent scans each advance the counter exactly once
	t.Run("concurrent scans", func(t *testing.T) {
		before, err := a.Store.FindByBizcode(ctx, "BZXXXX2")
		require.NoError(t, err)

		const n = 20
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				resp, err := client.Get(fmt.Sprintf("%s/scan/EFGH5678?ref=%d", server.URL, i))
				if assert.NoError(t, err) {
					resp.Body.Close()
					assert.Equal(t, http.StatusFound, resp.StatusCode)
				}
			}(i)
		}
		wg.Wait()

		waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		require.NoError(t, a.Recorder.Wait(waitCtx))

		after, err := a.Store.FindByBizcode(ctx, "BZXXXX2")
		require.NoError(t, err)
		assert.Equal(t, before.ClickCount+n, after.ClickCount)
		assert.NotNil(t, after.LastClicked)

		scans, err := a.Store.ListScans(ctx, after.ID, time.Time{})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(scans), n)
	})

	// TEST 5: Tenant member retargets a tag through the config API
	t.Run("config api", func(t *testing.T) {
		token := signToken(t, member)
		body, _ := json.Marshal(map[string]string{"target_url": "https://example.com/spring"})
		req, err := http.NewRequest(http.MethodPut, server.URL+"/api/v1/tags/BZXXXX2/redirect", bytes.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var tag struct {
			TargetURL    *string `json:"target_url"`
			RedirectType string  `json:"redirect_type"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&tag))
		require.NotNil(t, tag.TargetURL)
		assert.Equal(t, "https://example.com/spring", *tag.TargetURL)

		scan := get(t, "/scan/EFGH5678")
		assert.Equal(t, "https://example.com/spring?bizcode=BZXXXX2&nfc_uid=EFGH5678", scan.Header.Get("Location"))

		// A stranger is refused and the target is untouched
		req, err = http.NewRequest(http.MethodPut, server.URL+"/api/v1/tags/BZXXXX2/redirect", bytes.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+signToken(t, uuid.New()))
		denied, err := client.Do(req)
		require.NoError(t, err)
		denied.Body.Close()
		assert.Equal(t, http.StatusForbidden, denied.StatusCode)

		// No token at all
		anon := get(t, "/api/v1/tags/BZXXXX2")
		assert.Equal(t, http.StatusUnauthorized, anon.StatusCode)
	})

	// TEST 6: Health and performance
	t.Run("status", func(t *testing.T) {
		resp := get(t, "/health")
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		resp = get(t, "/performance")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var perf struct {
			TotalRequests int64 `json:"totalRequests"`
			NotFound      int64 `json:"notFound"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&perf))
		assert.GreaterOrEqual(t, perf.TotalRequests, int64(23))
		assert.Equal(t, int64(1), perf.NotFound)
	})

	// TEST 7: Export (Dump)
	tags, err := a.Store.Dump(ctx)
	require.NoError(t, err)
	assert.Len(t, tags, 2)
}
