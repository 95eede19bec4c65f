package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/foodsafe/storefront/internal/app"
	"github.com/foodsafe/storefront/internal/cart"
	"github.com/foodsafe/storefront/internal/catalog"
	"github.com/foodsafe/storefront/internal/checkout"
	"github.com/foodsafe/storefront/internal/common"
	"github.com/foodsafe/storefront/internal/config"
	"github.com/foodsafe/storefront/internal/currency"
	"github.com/foodsafe/storefront/internal/health"
	"github.com/foodsafe/storefront/internal/obs"
	"github.com/foodsafe/storefront/internal/ratelimit"
	"github.com/foodsafe/storefront/internal/security"
	"github.com/foodsafe/storefront/internal/session"
	"github.com/foodsafe/storefront/internal/vat"
)

type routerDeps struct {
	Config       *config.Config
	Logger       zerolog.Logger
	Storefront   *app.Storefront
	Redis        *redis.Client
	Checker      health.Checker
	LimiterStore limiter.Store
	Metrics      *obs.HTTPMetrics
}

func newRouter(d routerDeps) (http.Handler, error) {
	cfg := d.Config
	sf := d.Storefront

	vatLimit, err := ratelimit.New(d.LimiterStore, cfg.RateLimitVAT)
	if err != nil {
		return nil, fmt.Errorf("vat rate limit: %w", err)
	}
	checkoutLimit, err := ratelimit.New(d.LimiterStore, cfg.RateLimitCheckout)
	if err != nil {
		return nil, fmt.Errorf("checkout rate limit: %w", err)
	}
	onLimitError := func(err error) {
		d.Logger.Warn().Err(err).Msg("rate limiter unavailable, allowing request")
	}

	sessions := session.Middleware{
		Issuer: session.Issuer{
			Secret: []byte(cfg.SessionSecret),
			Issuer: cfg.ServiceName,
			TTL:    cfg.SessionTTL,
		},
		Domain:   cfg.CookieDomain,
		Secure:   cfg.CookieSecure,
		SameSite: cfg.CookieSameSite,
		Logger:   d.Logger,
	}
	idem := common.Idem{R: d.Redis, TTL: cfg.IdempotencyTTL}

	catalogHandler := &catalog.Handler{Catalog: sf.Catalog}
	cartHandler := &cart.Handler{Svc: sf.Carts, Rates: sf.Rates, Converter: sf.Converter}
	fxHandler := &currency.Handler{Cache: sf.Rates, Converter: sf.Converter}
	checkoutHandler := &checkout.Handler{Svc: sf.Checkout}
	healthHandler := health.Handler{
		Checker:      d.Checker,
		DBTimeout:    500 * time.Millisecond,
		RedisTimeout: 300 * time.Millisecond,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(obs.TracingMiddleware)
	if d.Metrics != nil {
		r.Use(obs.HTTPObs{Metrics: d.Metrics}.Middleware)
	}
	r.Use(middleware.Recoverer)
	r.Use(security.Headers{Enable: cfg.SecurityHeadersEnabled, EnableHSTS: cfg.HSTSEnabled}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if d.Metrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(obs.RequestLogger{Logger: d.Logger}.Middleware)
		v.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

		// gateway callbacks are server to server and carry no session
		v.Post("/webhooks/payment/{provider}", sf.Webhook.Handle)

		v.Group(func(s chi.Router) {
			s.Use(sessions.Handler)
			s.Use(security.CSRF{AllowedOrigins: cfg.CORSAllowedOrigins}.Middleware)

			s.Route("/products", catalogHandler.Routes)
			s.Route("/cart", func(c chi.Router) {
				c.Use(idem.Middleware)
				cartHandler.Routes(c)
			})
			s.Get("/currency/rates", fxHandler.Rates)
			s.Get("/currency/convert", fxHandler.Convert)

			s.With(ratelimit.Handler{
				Limiter: vatLimit,
				Name:    "vat",
				Key:     ratelimit.ByIP,
				OnError: onLimitError,
			}.Middleware).Post("/vat/validate", vat.ValidateHandler)

			s.With(ratelimit.Handler{
				Limiter: checkoutLimit,
				Name:    "checkout",
				Key:     ratelimit.BySessionOrIP,
				OnError: onLimitError,
			}.Middleware, idem.Middleware).Post("/checkout", checkoutHandler.Checkout)
		})
	})

	return r, nil
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}
