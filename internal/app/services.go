package app

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/foodsafe/storefront/internal/cart"
	"github.com/foodsafe/storefront/internal/catalog"
	"github.com/foodsafe/storefront/internal/checkout"
	"github.com/foodsafe/storefront/internal/common"
	"github.com/foodsafe/storefront/internal/config"
	"github.com/foodsafe/storefront/internal/currency"
	"github.com/foodsafe/storefront/internal/events"
	"github.com/foodsafe/storefront/internal/lock"
	"github.com/foodsafe/storefront/internal/notify"
	"github.com/foodsafe/storefront/internal/order"
	"github.com/foodsafe/storefront/internal/payment"
	"github.com/foodsafe/storefront/internal/pricing"
	"github.com/foodsafe/storefront/internal/resilience"
)

// Storefront bundles the domain services the HTTP layer and the worker consume.
type Storefront struct {
	Rules     pricing.Rules
	Catalog   *catalog.Static
	Orders    order.Store
	Carts     *cart.Service
	Events    *events.Bus
	Payments  *payment.Service
	Webhook   payment.Webhook
	Checkout  *checkout.Service
	Rates     *currency.Cache
	Refresher *currency.Refresher
	Converter currency.Converter
	Mail      common.EmailSender
}

// Rules derives the pricing constants for the configured market.
func Rules(cfg *config.Config) pricing.Rules {
	rules := pricing.DefaultRules()
	if cfg.CurrencyCode != "" {
		rules.Currency = cfg.CurrencyCode
	}
	if cfg.DefaultCountry != "" {
		rules.DefaultCountry = cfg.DefaultCountry
	}
	return rules
}

// HTTPClient builds a retrying, circuit-broken client for one downstream target.
func HTTPClient(cfg *config.Config, target string, logger zerolog.Logger) resilience.HTTPClient {
	l := logger.With().Str("target", target).Logger()
	return resilience.HTTPClient{
		Client: resilience.NewTracedClient(cfg.OutboundTimeout),
		Breaker: resilience.NewBreaker(resilience.BreakerConfig{
			Target:       target,
			MinRequests:  cfg.BreakerMinRequests,
			FailureRatio: cfg.BreakerFailureRatio,
			OpenFor:      cfg.BreakerOpenFor,
			Logger:       &l,
		}),
		BaseBackoff: cfg.RetryBase,
		MaxAttempts: cfg.RetryMaxAttempts,
		Jitter:      cfg.RetryJitter,
		Timeout:     cfg.OutboundTimeout,
	}
}

// PaymentProvider selects the configured payment gateway.
func PaymentProvider(cfg *config.Config, logger zerolog.Logger) (payment.Provider, error) {
	switch cfg.PaymentProvider {
	case "sandbox", "":
		return payment.Sandbox{
			Secret:  cfg.PaymentWebhookKey(),
			BaseURL: cfg.PaymentAPIURL,
		}, nil
	case "hosted":
		return payment.Hosted{
			HTTP:          HTTPClient(cfg, "payment", logger),
			BaseURL:       cfg.PaymentAPIURL,
			SecretKey:     cfg.PaymentSecretKey,
			WebhookSecret: cfg.PaymentWebhookKey(),
			Tolerance:     5 * time.Minute,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported payment provider %q", cfg.PaymentProvider)
	}
}

// EmailSender selects the configured mail transport.
func EmailSender(cfg *config.Config, logger zerolog.Logger) common.EmailSender {
	if cfg.EmailProvider == "http" {
		return notify.HTTPSender{
			HTTP:   HTTPClient(cfg, "email", logger),
			URL:    cfg.EmailAPIURL,
			APIKey: cfg.EmailAPIKey,
			From:   cfg.EmailFrom,
		}
	}
	return notify.LogSender{Logger: logger.With().Str("component", "mail").Logger(), From: cfg.EmailFrom}
}

// FX builds the shared rate cache and the refresher that fills it.
func FX(cfg *config.Config, rdb *redis.Client, logger zerolog.Logger) (*currency.Cache, *currency.Refresher) {
	client := HTTPClient(cfg, "fx", logger)
	cache := currency.NewCache(rdb, cfg.CurrencyCode, cfg.FXCacheTTL, logger)
	fetcher := currency.Fetcher{HTTP: &client, BaseURL: cfg.FXAPIURL, APIKey: cfg.FXAPIKey}
	return cache, currency.NewRefresher(fetcher, cache, cfg.CurrencyCode, logger)
}

// EventBus persists domain events and fans them out as e-mail tasks. A nil
// pool skips persistence and a nil enqueuer skips fan-out.
func EventBus(pool *pgxpool.Pool, tasks notify.Enqueuer) *events.Bus {
	bus := &events.Bus{}
	if pool != nil {
		bus.Store = events.PgStore{Pool: pool}
	}
	if tasks != nil {
		bus.Notifiers = []events.Notifier{notify.TaskNotifier{Client: tasks, Queue: notify.DefaultQueue}}
	}
	return bus
}

// Build assembles the storefront from open dependencies.
func Build(d *Dependencies) (*Storefront, error) {
	cfg := d.Config
	logger := d.Logger
	rules := Rules(cfg)

	products, err := catalog.LoadFile(cfg.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	provider, err := PaymentProvider(cfg, logger)
	if err != nil {
		return nil, err
	}

	var orders order.Store = order.PgStore{Pool: d.DB}
	var tasks notify.Enqueuer
	if d.TaskClient != nil {
		tasks = d.TaskClient
	}
	bus := EventBus(d.DB, tasks)

	locker := lock.Locker{R: d.Redis, Prefix: "lock:", MaxWait: cfg.LockMaxWait}
	carts := &cart.Service{
		Repo:    cart.RedisRepository{Client: d.Redis, TTL: cfg.CartTTL},
		Lock:    locker,
		Catalog: products,
		Rules:   rules,
		LockTTL: cfg.CartLockTTL,
		Logger:  logger,
	}
	payments := &payment.Service{
		Provider:   provider,
		SuccessURL: cfg.PaymentSuccessURL,
		CancelURL:  cfg.PaymentCancelURL,
	}
	rates, refresher := FX(cfg, d.Redis, logger)

	return &Storefront{
		Rules:    rules,
		Catalog:  products,
		Orders:   orders,
		Carts:    carts,
		Events:   bus,
		Payments: payments,
		Webhook: payment.Webhook{
			Orders:    orders,
			Providers: map[string]payment.Provider{provider.Name(): provider},
			Replay:    d.Redis,
			ReplayTTL: cfg.WebhookReplayTTL,
			Events:    bus,
			Logger:    logger,
		},
		Checkout: &checkout.Service{
			Carts:     carts,
			Orders:    orders,
			Payments:  payments,
			Events:    bus,
			Rules:     rules,
			Validator: d.Validator,
			Logger:    logger,
			InFlight:  locker,
			ClaimTTL:  cfg.CheckoutClaimTTL,
		},
		Rates:     rates,
		Refresher: refresher,
		Converter: currency.Converter{Canonical: rules.Currency, Logger: logger},
		Mail:      EmailSender(cfg, logger),
	}, nil
}
