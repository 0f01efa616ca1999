package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/wadjakorntonsri/nfc-links/pkg/config"
	"go.uber.org/zap"
)

func TestAuthMiddleware(t *testing.T) {
	cfg := &config.Config{
		JWTSecret: "testservlet",
	}
	mw := NewMiddleware(cfg, zap.NewNop())
	userID := uuid.New()

	tests := []struct {
		name           string
		header         string
		cookieValue    string
		expectedStatus int
	}{
		{
			name:           "No Credentials",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Invalid Cookie",
			cookieValue:    "invalid",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Valid Cookie",
			cookieValue:    generateTestToken(t, cfg.JWTSecret, userID.String(), time.Now().Add(5*time.Minute)),
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Valid Bearer Header",
			header:         "Bearer " + generateTestToken(t, cfg.JWTSecret, userID.String(), time.Now().Add(5*time.Minute)),
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Wrong Secret",
			header:         "Bearer " + generateTestToken(t, "other", userID.String(), time.Now().Add(5*time.Minute)),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Expired Token",
			header:         "Bearer " + generateTestToken(t, cfg.JWTSecret, userID.String(), time.Now().Add(-time.Minute)),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Subject Not A User ID",
			header:         "Bearer " + generateTestToken(t, cfg.JWTSecret, "test@example.com", time.Now().Add(5*time.Minute)),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Non Bearer Scheme",
			header:         "Basic dXNlcjpwYXNz",
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/tags/BZXXXX", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookieValue != "" {
				req.AddCookie(&http.Cookie{Name: "auth_token", Value: tt.cookieValue})
			}

			var seen *uuid.UUID
			rr := httptest.NewRecorder()
			handler := mw.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if identity := IdentityFromContext(r.Context()); identity != nil {
					seen = &identity.UserID
				}
				w.WriteHeader(http.StatusOK)
			}))

			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			if tt.expectedStatus == http.StatusOK {
				if assert.NotNil(t, seen) {
					assert.Equal(t, userID, *seen)
				}
			}
		})
	}
}

func TestRecoverer(t *testing.T) {
	mw := NewMiddleware(&config.Config{}, zap.NewNop())
	handler := mw.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/scan/ABCD1234", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "Something went wrong")
	assert.NotContains(t, rr.Body.String(), "boom")
}

func generateTestToken(t *testing.T, secret, subject string, expiresAt time.Time) string {
	claims := &jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return tokenString
}
