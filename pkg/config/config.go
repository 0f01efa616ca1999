package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Scan path prefixes served by the redirect endpoint. A redirect target under
// one of these on PublicBaseURL would loop back into the service.
var ScanPathPrefixes = []string{"/scan/", "/q/", "/t/"}

type Config struct {
	Port   string `env:"PORT" envDefault:"3000"`
	AppEnv string `env:"APP_ENV" envDefault:"local"`

	DatabaseURL    string `env:"DATABASE_URL" envDefault:"file:nfc.sqlite"`
	DatabaseDriver string `env:"DATABASE_DRIVER"`
	AutoMigrate    bool   `env:"AUTO_MIGRATE" envDefault:"true"`

	RedisURL string        `env:"REDIS_URL"`
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"30s"`

	PublicBaseURL      string   `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:3000"`
	DefaultRedirectURL string   `env:"DEFAULT_REDIRECT_URL" envDefault:"https://app.biz365.ai/signup"`
	TrackingParams     []string `env:"TRACKING_PARAMS" envSeparator:"," envDefault:"ref,utm_source,utm_medium,utm_campaign"`

	LookupTimeout        time.Duration `env:"LOOKUP_TIMEOUT" envDefault:"2s"`
	RecordTimeout        time.Duration `env:"RECORD_TIMEOUT" envDefault:"1s"`
	RecordMaxAttempts    uint          `env:"RECORD_MAX_ATTEMPTS" envDefault:"3"`
	RecordMaxInFlight    int           `env:"RECORD_MAX_IN_FLIGHT" envDefault:"1024"`
	SlowRequestThreshold time.Duration `env:"SLOW_REQUEST_THRESHOLD" envDefault:"100ms"`

	AnalyticsSink         string `env:"ANALYTICS_SINK" envDefault:"none"`
	APIBaseURL            string `env:"API_BASE_URL" envDefault:"https://api.biz365.ai"`
	AnalyticsStream       string `env:"ANALYTICS_STREAM" envDefault:"nfc:redirects"`
	AnalyticsClientID     string `env:"ANALYTICS_CLIENT_ID"`
	AnalyticsClientSecret string `env:"ANALYTICS_CLIENT_SECRET"`
	AnalyticsTokenURL     string `env:"ANALYTICS_TOKEN_URL"`

	JWTSecret          string `env:"JWT_SECRET" envDefault:"secret"`
	RateLimitPerMinute int    `env:"RATE_LIMIT_PER_MINUTE" envDefault:"600"`
	// TrustProxyHeaders takes the client address from X-Forwarded-For /
	// X-Real-IP. Only enable behind a proxy that overwrites them.
	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS" envDefault:"false"`

	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat    string `env:"LOG_FORMAT" envDefault:"json"`
	OTelEndpoint string `env:"OTEL_ENDPOINT"`
}

func Load() (*Config, error) {
	_ = godotenv.Load() // Ignore error if .env not found (e.g. prod)

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DatabaseDriver == "" {
		cfg.DatabaseDriver = DetectDriver(cfg.DatabaseURL)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the redirect path cannot run with.
func (c *Config) Validate() error {
	def, err := url.Parse(c.DefaultRedirectURL)
	if err != nil || def.Host == "" || (def.Scheme != "http" && def.Scheme != "https") {
		return fmt.Errorf("DEFAULT_REDIRECT_URL must be an absolute http(s) URL, got %q", c.DefaultRedirectURL)
	}
	if c.IsSelfRedirect(c.DefaultRedirectURL) {
		return errors.New("DEFAULT_REDIRECT_URL points back at the scan endpoint")
	}
	if c.LookupTimeout <= 0 || c.RecordTimeout <= 0 {
		return errors.New("LOOKUP_TIMEOUT and RECORD_TIMEOUT must be positive")
	}
	if c.RecordTimeout >= c.LookupTimeout {
		return fmt.Errorf("RECORD_TIMEOUT (%s) must be shorter than LOOKUP_TIMEOUT (%s)", c.RecordTimeout, c.LookupTimeout)
	}
	if c.RecordMaxAttempts == 0 {
		return errors.New("RECORD_MAX_ATTEMPTS must be at least 1")
	}
	switch c.AnalyticsSink {
	case "none", "http", "redis":
	default:
		return fmt.Errorf("unknown ANALYTICS_SINK %q", c.AnalyticsSink)
	}
	if c.AnalyticsSink == "redis" && c.RedisURL == "" {
		return errors.New("ANALYTICS_SINK=redis requires REDIS_URL")
	}
	return nil
}

// IsSelfRedirect reports whether target points at one of this service's scan
// endpoints on PublicBaseURL.
func (c *Config) IsSelfRedirect(target string) bool {
	base, err := url.Parse(c.PublicBaseURL)
	if err != nil || base.Host == "" {
		return false
	}
	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return false
	}
	if u.Host == "" && !strings.HasPrefix(u.Path, "/") {
		return false
	}
	if u.Host != "" && !sameHost(u, base) {
		return false
	}
	p := strings.ToLower(u.Path)
	for _, prefix := range ScanPathPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// sameHost compares hostnames case-insensitively, ignoring a trailing dot.
// The scan endpoint is reachable over http and https, so an empty port and
// the two default ports are the same endpoint.
func sameHost(a, b *url.URL) bool {
	if !strings.EqualFold(strings.TrimSuffix(a.Hostname(), "."), strings.TrimSuffix(b.Hostname(), ".")) {
		return false
	}
	return servingPort(a) == servingPort(b)
}

func servingPort(u *url.URL) string {
	switch p := u.Port(); p {
	case "", "80", "443":
		return ""
	default:
		return p
	}
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// DetectDriver picks a database/sql driver name from the connection URL.
func DetectDriver(dbURL string) string {
	switch {
	case strings.HasPrefix(dbURL, "libsql://"), strings.HasPrefix(dbURL, "wss://"):
		return "libsql"
	case strings.HasPrefix(dbURL, "postgres://"), strings.HasPrefix(dbURL, "postgresql://"):
		return "pgx"
	default:
		return "sqlite"
	}
}
