package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/foodsafe/storefront/internal/app"
	"github.com/foodsafe/storefront/internal/config"
	"github.com/foodsafe/storefront/internal/currency"
	"github.com/foodsafe/storefront/internal/notify"
	"github.com/foodsafe/storefront/internal/obs"
)

const fxRefreshSpec = "@every 24h"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.ServiceName, cfg.LogFormat, cfg.LogLevel).With().Str("component", "worker").Logger()
	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)

	shutdownTracer, err := obs.InitTracer(context.Background(), obs.TracingConfig{
		ServiceName:   cfg.ServiceName + "-worker",
		Endpoint:      cfg.TracingEndpoint,
		Exporter:      cfg.TracingExporter,
		SamplingRatio: cfg.TracingSampleRatio,
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
		shutdownTracer = func(context.Context) error { return nil }
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error().Err(err).Msg("shutdown tracer")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	deps, err := app.Open(startCtx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("open dependencies")
	}
	defer deps.Close()

	sf, err := app.Build(deps)
	if err != nil {
		logger.Fatal().Err(err).Msg("build storefront")
	}

	redisOpt, err := app.TaskRedisOpt(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("task redis options")
	}

	mux := asynq.NewServeMux()
	mail := &notify.Handler{
		Orders:  sf.Orders,
		Mail:    sf.Mail,
		SalesTo: cfg.SalesNotifyEmail,
		Logger:  logger,
	}
	mail.Register(mux)
	mux.Handle(currency.TypeRefresh, sf.Refresher)

	server := newServer(redisOpt, cfg.TaskConcurrency, logger)
	if err := server.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start task server")
	}

	var scheduler *asynq.Scheduler
	if cfg.FXAPIURL != "" {
		if _, err := sf.Refresher.Refresh(ctx); err != nil {
			logger.Warn().Err(err).Msg("initial exchange rate refresh failed, serving previous rates")
		}
		scheduler = asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
			Location: time.UTC,
			Logger:   obs.TaskLogger{Logger: logger},
		})
		if _, err := scheduler.Register(fxRefreshSpec, currency.NewRefreshTask(),
			asynq.Queue(currency.TaskQueue),
			asynq.MaxRetry(5),
			asynq.Unique(time.Hour),
		); err != nil {
			logger.Fatal().Err(err).Msg("schedule exchange rate refresh")
		}
		if err := scheduler.Start(); err != nil {
			logger.Fatal().Err(err).Msg("start scheduler")
		}
	} else {
		logger.Warn().Msg("FX_API_URL not set, exchange rates stay on defaults")
	}

	logger.Info().Int("concurrency", cfg.TaskConcurrency).Msg("worker started")
	<-ctx.Done()

	logger.Info().Msg("worker shutting down")
	if scheduler != nil {
		scheduler.Shutdown()
	}
	server.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

func newServer(opt asynq.RedisConnOpt, concurrency int, logger zerolog.Logger) *asynq.Server {
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			notify.DefaultQueue: 6,
			currency.TaskQueue:  1,
		},
		Logger:          obs.TaskLogger{Logger: logger},
		ShutdownTimeout: 20 * time.Second,
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Warn().Err(err).Str("task", task.Type()).Msg("task failed")
		}),
	})
}
