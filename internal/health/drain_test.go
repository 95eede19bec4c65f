package health_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/foodsafe/storefront/internal/health"
)

type countingChecker struct{ calls atomic.Int32 }

func (c *countingChecker) PingDB(context.Context, time.Duration) error {
	c.calls.Add(1)
	return nil
}

func (c *countingChecker) PingRedis(context.Context, time.Duration) error {
	c.calls.Add(1)
	return nil
}

func TestReadyWhileDrainingSkipsProbes(t *testing.T) {
	checker := &countingChecker{}
	handler := health.Handler{Checker: checker}
	t.Cleanup(func() { health.SetReady(true) })

	health.SetReady(false)
	rec := httptest.NewRecorder()
	handler.Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.JSONEq(t, `{"status":"draining"}`, rec.Body.String())
	require.Zero(t, checker.calls.Load())

	// liveness is unaffected by draining
	rec = httptest.NewRecorder()
	handler.Live(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	health.SetReady(true)
	rec = httptest.NewRecorder()
	handler.Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 2, checker.calls.Load())
}

func TestReadyWithoutChecker(t *testing.T) {
	rec := httptest.NewRecorder()
	health.Handler{}.Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDepsWithoutPool(t *testing.T) {
	err := health.Deps{}.PingDB(context.Background(), time.Millisecond)
	require.EqualError(t, err, "database not configured")
}
