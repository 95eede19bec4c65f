// Package config loads storefront settings from the environment.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv      string
	ServiceName string
	Port        string
	DatabaseURL string
	RedisURL    string

	SessionSecret  string
	SessionTTL     time.Duration
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite

	CurrencyCode   string
	DefaultCountry string
	CatalogFile    string
	CartTTL        time.Duration
	CartLockTTL    time.Duration
	LockMaxWait    time.Duration
	IdempotencyTTL time.Duration

	// CheckoutClaimTTL bounds how long one submission blocks another for the
	// same session; it must outlast a slow payment provider.
	CheckoutClaimTTL time.Duration

	FXAPIURL   string
	FXAPIKey   string
	FXCacheTTL time.Duration

	PaymentProvider      string
	PaymentAPIURL        string
	PaymentSecretKey     string
	PaymentWebhookSecret string
	PaymentSuccessURL    string
	PaymentCancelURL     string
	WebhookReplayTTL     time.Duration

	EmailProvider    string
	EmailAPIURL      string
	EmailAPIKey      string
	EmailFrom        string
	SalesNotifyEmail string
	TaskConcurrency  int

	RateLimitVAT      string
	RateLimitCheckout string

	CORSAllowedOrigins     []string
	SecurityHeadersEnabled bool
	HSTSEnabled            bool
	BodyLimitBytes         int64

	OutboundTimeout       time.Duration
	RetryMaxAttempts      int
	RetryBase             time.Duration
	RetryJitter           float64
	BreakerMinRequests    int
	BreakerFailureRatio   float64
	BreakerOpenFor        time.Duration
	DBAutoMigrate         bool
	DBMaxConns            int32
	LogFormat             string
	LogLevel              string
	MetricsNamespace      string
	HTTPBuckets           string
	TracingExporter       string
	TracingEndpoint       string
	TracingSampleRatio    float64
	ShutdownGrace         time.Duration
	ReadinessDrainTimeout time.Duration
}

// Load reads configuration from environment variables and an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:      valueOrDefault(k.String("APP_ENV"), "development"),
		ServiceName: valueOrDefault(k.String("SERVICE_NAME"), "storefront"),
		Port:        valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL: strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:    strings.TrimSpace(k.String("REDIS_URL")),

		SessionSecret:  k.String("SESSION_SECRET"),
		SessionTTL:     parseDuration(k.String("SESSION_TTL"), "720h"),
		CookieDomain:   strings.TrimSpace(k.String("COOKIE_DOMAIN")),
		CookieSecure:   parseBool(k.String("COOKIE_SECURE"), false),
		CookieSameSite: parseSameSite(k.String("COOKIE_SAMESITE")),

		CurrencyCode:   strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "GBP")),
		DefaultCountry: strings.ToUpper(valueOrDefault(k.String("DEFAULT_COUNTRY"), "GB")),
		CatalogFile:    valueOrDefault(k.String("CATALOG_FILE"), "configs/catalog.json"),
		CartTTL:        parseDuration(k.String("CART_TTL"), "720h"),
		CartLockTTL:    parseDuration(k.String("CART_LOCK_TTL"), "5s"),
		LockMaxWait:    parseDuration(k.String("LOCK_MAX_WAIT"), "3s"),
		IdempotencyTTL: parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		CheckoutClaimTTL: parseDuration(k.String("CHECKOUT_CLAIM_TTL"), "2m"),

		FXAPIURL:   strings.TrimSpace(k.String("FX_API_URL")),
		FXAPIKey:   k.String("FX_API_KEY"),
		FXCacheTTL: parseDuration(k.String("FX_CACHE_TTL"), "24h"),

		PaymentProvider:      strings.ToLower(valueOrDefault(k.String("PAYMENT_PROVIDER"), "sandbox")),
		PaymentAPIURL:        strings.TrimSpace(k.String("PAYMENT_API_URL")),
		PaymentSecretKey:     k.String("PAYMENT_SECRET_KEY"),
		PaymentWebhookSecret: k.String("PAYMENT_WEBHOOK_SECRET"),
		PaymentSuccessURL:    strings.TrimSpace(k.String("PAYMENT_SUCCESS_URL")),
		PaymentCancelURL:     strings.TrimSpace(k.String("PAYMENT_CANCEL_URL")),
		WebhookReplayTTL:     parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "72h"),

		EmailProvider:    strings.ToLower(valueOrDefault(k.String("EMAIL_PROVIDER"), "log")),
		EmailAPIURL:      strings.TrimSpace(k.String("EMAIL_API_URL")),
		EmailAPIKey:      k.String("EMAIL_API_KEY"),
		EmailFrom:        valueOrDefault(k.String("EMAIL_FROM"), "orders@localhost"),
		SalesNotifyEmail: strings.TrimSpace(k.String("SALES_NOTIFY_EMAIL")),
		TaskConcurrency:  parseInt(k.String("TASK_CONCURRENCY"), 5),

		RateLimitVAT:      valueOrDefault(k.String("RATE_LIMIT_VAT"), "30-M"),
		RateLimitCheckout: valueOrDefault(k.String("RATE_LIMIT_CHECKOUT"), "10-M"),

		CORSAllowedOrigins:     splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		SecurityHeadersEnabled: parseBool(k.String("SECURITY_HEADERS_ENABLED"), true),
		HSTSEnabled:            parseBool(k.String("HSTS_ENABLED"), false),
		BodyLimitBytes:         int64(parseInt(k.String("BODY_LIMIT_BYTES"), 64<<10)),

		OutboundTimeout:       parseDuration(k.String("OUTBOUND_TIMEOUT"), "5s"),
		RetryMaxAttempts:      parseInt(k.String("RETRY_MAX_ATTEMPTS"), 3),
		RetryBase:             parseDuration(k.String("RETRY_BASE"), "200ms"),
		RetryJitter:           parseFloat(k.String("RETRY_JITTER"), 0.2),
		BreakerMinRequests:    parseInt(k.String("BREAKER_MIN_REQUESTS"), 5),
		BreakerFailureRatio:   parseFloat(k.String("BREAKER_FAILURE_RATIO"), 0.5),
		BreakerOpenFor:        parseDuration(k.String("BREAKER_OPEN_FOR"), "30s"),
		DBAutoMigrate:         parseBool(k.String("DB_AUTO_MIGRATE"), false),
		DBMaxConns:            int32(parseInt(k.String("DB_MAX_CONNS"), 10)),
		LogFormat:             valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:              valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsNamespace:      valueOrDefault(k.String("METRICS_NAMESPACE"), "storefront"),
		HTTPBuckets:           k.String("OBS_HTTP_BUCKETS"),
		TracingExporter:       strings.ToLower(valueOrDefault(k.String("OTEL_EXPORTER"), "none")),
		TracingEndpoint:       strings.TrimSpace(k.String("OTEL_EXPORTER_OTLP_ENDPOINT")),
		TracingSampleRatio:    parseFloat(k.String("OTEL_SAMPLE_RATIO"), 1),
		ShutdownGrace:         parseDuration(k.String("SHUTDOWN_GRACE"), "15s"),
		ReadinessDrainTimeout: parseDuration(k.String("READINESS_DRAIN"), "5s"),
	}
	if cfg.CookieSameSite == http.SameSiteDefaultMode {
		cfg.CookieSameSite = http.SameSiteLaxMode
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required"))
	}
	if c.SessionSecret == "" {
		errs = append(errs, errors.New("SESSION_SECRET is required"))
	} else if len(c.SessionSecret) < 32 && c.IsProduction() {
		errs = append(errs, errors.New("SESSION_SECRET must be at least 32 bytes in production"))
	}
	if len(c.CurrencyCode) != 3 {
		errs = append(errs, errors.New("CURRENCY_CODE must be an ISO 4217 code"))
	}
	if len(c.DefaultCountry) != 2 {
		errs = append(errs, errors.New("DEFAULT_COUNTRY must be an ISO 3166 alpha-2 code"))
	}
	switch c.PaymentProvider {
	case "sandbox":
	case "hosted":
		if c.PaymentAPIURL == "" || c.PaymentSecretKey == "" {
			errs = append(errs, errors.New("PAYMENT_API_URL and PAYMENT_SECRET_KEY are required for the hosted provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown PAYMENT_PROVIDER %q", c.PaymentProvider))
	}
	switch c.EmailProvider {
	case "log":
	case "http":
		if c.EmailAPIURL == "" {
			errs = append(errs, errors.New("EMAIL_API_URL is required for the http email provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EMAIL_PROVIDER %q", c.EmailProvider))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// PaymentWebhookKey returns the webhook signing secret, falling back to the API
// secret when no dedicated one is configured.
func (c *Config) PaymentWebhookKey() string {
	if c.PaymentWebhookSecret != "" {
		return c.PaymentWebhookSecret
	}
	return c.PaymentSecretKey
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseSameSite(value string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "lax":
		return http.SameSiteLaxMode
	default:
		return http.SameSiteDefaultMode
	}
}

// MustLoad behaves like Load but panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
