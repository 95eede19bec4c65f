// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"

	"github.com/foodsafe/storefront/internal/common"
)

var draining atomic.Bool

// SetReady flips the readiness flag; the API clears it before shutdown so the
// load balancer stops routing new shoppers to this instance.
func SetReady(v bool) { draining.Store(!v) }

// Checker probes the backing stores.
type Checker interface {
	PingDB(ctx context.Context, timeout time.Duration) error
	PingRedis(ctx context.Context, timeout time.Duration) error
}

// Deps probes the order database pool and the cart/session Redis.
type Deps struct {
	Pool  *pgxpool.Pool
	Redis *redis.Client
}

var (
	errNoDatabase = errors.New("database not configured")
	errNoRedis    = errors.New("redis not configured")
)

func (d Deps) PingDB(ctx context.Context, timeout time.Duration) error {
	if d.Pool == nil {
		return errNoDatabase
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.Pool.Ping(ctx)
}

func (d Deps) PingRedis(ctx context.Context, timeout time.Duration) error {
	if d.Redis == nil {
		return errNoRedis
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.Redis.Ping(ctx).Err()
}

// Handler serves /health/live and /health/ready.
type Handler struct {
	Checker      Checker
	DBTimeout    time.Duration
	RedisTimeout time.Duration
}

type readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	common.JSON(w, http.StatusOK, readiness{Status: "ok"})
}

func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if draining.Load() {
		common.JSON(w, http.StatusServiceUnavailable, readiness{Status: "draining"})
		return
	}
	if h.Checker == nil {
		common.JSON(w, http.StatusServiceUnavailable, readiness{Status: "unconfigured"})
		return
	}

	probes := []struct {
		name string
		run  func(context.Context, time.Duration) error
		wait time.Duration
	}{
		{"postgres", h.Checker.PingDB, orDefault(h.DBTimeout, 500*time.Millisecond)},
		{"redis", h.Checker.PingRedis, orDefault(h.RedisTimeout, 300*time.Millisecond)},
	}
	res := readiness{Status: "ready", Checks: make(map[string]string, len(probes))}
	code := http.StatusOK
	for _, p := range probes {
		if err := p.run(r.Context(), p.wait); err != nil {
			res.Checks[p.name] = err.Error()
			res.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		res.Checks[p.name] = "ok"
	}
	common.JSON(w, code, res)
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
