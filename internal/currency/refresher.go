package currency

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/foodsafe/storefront/internal/obs"
)

// Refresher pulls fresh rates and publishes them to the cache. On failure the
// previous snapshot stays in place.
type Refresher struct {
	Fetcher RateFetcher
	Cache   *Cache
	Base    string
	Logger  zerolog.Logger

	duration metric.Float64Histogram
}

// NewRefresher wires a refresher and its refresh-duration instrument.
func NewRefresher(fetcher RateFetcher, cache *Cache, base string, logger zerolog.Logger) *Refresher {
	hist, err := otel.Meter("storefront/currency").Float64Histogram(
		"fx.refresh.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of exchange rate refreshes."),
	)
	if err != nil {
		logger.Warn().Err(err).Msg("create fx refresh histogram")
	}
	return &Refresher{Fetcher: fetcher, Cache: cache, Base: base, Logger: logger, duration: hist}
}

// Refresh fetches and stores one snapshot.
func (r *Refresher) Refresh(ctx context.Context) (Snapshot, error) {
	start := time.Now()
	snap, err := r.Fetcher.Fetch(ctx, r.Base)
	if err == nil {
		err = r.Cache.Store(ctx, snap)
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	if r.duration != nil {
		r.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("result", result)))
	}
	if obs.FXRefreshTotal != nil {
		obs.FXRefreshTotal.WithLabelValues(result).Inc()
	}
	if err != nil {
		r.Logger.Error().Err(err).Str("base", r.Base).Msg("exchange rate refresh failed")
		return Snapshot{}, err
	}
	r.Logger.Info().Str("base", snap.Base).Str("date", snap.Date).Int("rates", len(snap.Rates)).Msg("exchange rates refreshed")
	return snap, nil
}
