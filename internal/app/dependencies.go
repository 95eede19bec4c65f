// Package app wires the shared infrastructure and domain services used by the
// API, the worker and the operator CLI.
package app

import (
	"context"
	"errors"
	"fmt"

	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/foodsafe/storefront/internal/checkout"
	"github.com/foodsafe/storefront/internal/config"
	"github.com/foodsafe/storefront/internal/obs"
	"github.com/foodsafe/storefront/internal/order"
	"github.com/foodsafe/storefront/internal/ratelimit"
)

// Dependencies holds the connections shared across modules.
type Dependencies struct {
	Config       *config.Config
	Logger       zerolog.Logger
	DB           *pgxpool.Pool
	Redis        *redis.Client
	LimiterStore limiter.Store
	TaskClient   *asynq.Client
	Validator    *validator.Validate
}

// Open connects Postgres and Redis, applies migrations when DB_AUTO_MIGRATE is
// set and prepares the task client. Close releases everything Open acquired.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Dependencies, error) {
	if cfg.DBAutoMigrate {
		if err := order.Migrate(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Msg("database migrations applied")
	}

	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rdb, err := NewRedis(ctx, cfg.RedisURL, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	store, err := ratelimit.NewRedisStore(rdb, "ratelimit")
	if err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("limiter store: %w", err)
	}
	taskOpt, err := TaskRedisOpt(cfg.RedisURL)
	if err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, err
	}

	return &Dependencies{
		Config:       cfg,
		Logger:       logger,
		DB:           pool,
		Redis:        rdb,
		LimiterStore: store,
		TaskClient:   asynq.NewClient(taskOpt),
		Validator:    checkout.NewValidator(),
	}, nil
}

// Close releases pools and clients.
func (d *Dependencies) Close() {
	if d == nil {
		return
	}
	if d.TaskClient != nil {
		if err := d.TaskClient.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close task client")
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close redis")
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
}

// NewPool opens a traced pgx pool and verifies it with a ping.
func NewPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = cfg.ServiceName
	if cfg.DBMaxConns > 0 {
		poolConfig.MaxConns = cfg.DBMaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// NewRedis opens a Redis client with OpenTelemetry tracing and metrics hooks.
func NewRedis(ctx context.Context, url string, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis metrics")
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// TaskRedisOpt converts REDIS_URL into asynq connection options.
func TaskRedisOpt(url string) (asynq.RedisConnOpt, error) {
	if url == "" {
		return nil, errors.New("redis url is empty")
	}
	opt, err := asynq.ParseRedisURI(url)
	if err != nil {
		return nil, fmt.Errorf("parse task redis url: %w", err)
	}
	return opt, nil
}
