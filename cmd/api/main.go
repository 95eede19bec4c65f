package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/foodsafe/storefront/internal/app"
	"github.com/foodsafe/storefront/internal/config"
	"github.com/foodsafe/storefront/internal/health"
	"github.com/foodsafe/storefront/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.ServiceName, cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()
	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)

	shutdownTracer, err := obs.InitTracer(context.Background(), obs.TracingConfig{
		ServiceName:   cfg.ServiceName,
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

	handler, err := newRouter(routerDeps{
		Config:       cfg,
		Logger:       logger,
		Storefront:   sf,
		Redis:        deps.Redis,
		Checker:      health.Deps{Pool: deps.DB, Redis: deps.Redis},
		LimiterStore: deps.LimiterStore,
		Metrics:      obs.NewHTTPMetrics(cfg.MetricsNamespace, obs.ParseBucketsCSV(cfg.HTTPBuckets), nil),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("build router")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
		return
	case <-ctx.Done():
	}

	// fail readiness first so the load balancer drains us before we stop accepting
	health.SetReady(false)
	logger.Info().Dur("drain", cfg.ReadinessDrainTimeout).Msg("shutdown requested")
	time.Sleep(cfg.ReadinessDrainTimeout)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
	logger.Info().Msg("server stopped")
}
