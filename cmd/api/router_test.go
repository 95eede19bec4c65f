package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/foodsafe/storefront/internal/app"
	"github.com/foodsafe/storefront/internal/config"
)

type okChecker struct{}

func (okChecker) PingDB(context.Context, time.Duration) error    { return nil }
func (okChecker) PingRedis(context.Context, time.Duration) error { return nil }

func newTestRouter(t *testing.T, extra map[string]string) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	env := map[string]string{
		"DATABASE_URL":   "postgres://localhost:5432/storefront?sslmode=disable",
		"REDIS_URL":      "redis://" + mr.Addr(),
		"SESSION_SECRET": "0123456789abcdef0123456789abcdef",
		"CATALOG_FILE":   "../../configs/catalog.json",
	}
	for k, v := range extra {
		env[k] = v
	}
	cfg, err := config.LoadForTests(env)
	require.NoError(t, err)

	deps := &app.Dependencies{Config: cfg, Logger: zerolog.Nop(), Redis: rdb}
	sf, err := app.Build(deps)
	require.NoError(t, err)

	h, err := newRouter(routerDeps{
		Config:       cfg,
		Logger:       zerolog.Nop(),
		Storefront:   sf,
		Redis:        rdb,
		Checker:      okChecker{},
		LimiterStore: memory.NewStore(),
	})
	require.NoError(t, err)
	return h
}

func TestRouterHealthAndProducts(t *testing.T) {
	h := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"data"`)
	require.NotEmpty(t, rec.Result().Cookies(), "a session cookie is issued on first visit")
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestRouterVATValidateIsRateLimited(t *testing.T) {
	h := newTestRouter(t, map[string]string{"RATE_LIMIT_VAT": "2-M"})

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/vat/validate", strings.NewReader(`{"vatNumber":"DE123456789"}`))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "203.0.113.7:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := send()
	require.Equal(t, http.StatusOK, first.Code)
	require.Contains(t, first.Body.String(), `"isValid":true`)
	require.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))

	require.Equal(t, http.StatusOK, send().Code)
	require.Equal(t, http.StatusTooManyRequests, send().Code)
}

func TestRouterRejectsCrossSiteWrites(t *testing.T) {
	h := newTestRouter(t, map[string]string{"CORS_ALLOWED_ORIGINS": "https://shop.example.com"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(`{"variantId":"x","quantity":1}`))
	req.Header.Set("Origin", "https://evil.example.net")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "CSRF_REJECTED")
}

func TestRouterWebhookUnknownProvider(t *testing.T) {
	h := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payment/paypal", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "PROVIDER_NOT_SUPPORTED")
}
