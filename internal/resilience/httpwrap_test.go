package resilience_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/foodsafe/storefront/internal/resilience"
)

func TestHTTPClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.JSONEq(t, `{"amount":"61.19"}`, string(body))
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok_1"})
	}))
	defer srv.Close()

	client := resilience.HTTPClient{
		Client:      srv.Client(),
		Breaker:     resilience.NewBreaker(resilience.BreakerConfig{Target: "retry-test", MinRequests: 10}),
		BaseBackoff: time.Millisecond,
		MaxAttempts: 3,
	}
	var out struct {
		Token string `json:"token"`
	}
	err := client.DoJSON(context.Background(), http.MethodPost, srv.URL, nil, map[string]string{"amount": "61.19"}, &out)
	require.NoError(t, err)
	require.Equal(t, "tok_1", out.Token)
	require.EqualValues(t, 3, calls.Load())
}

func TestHTTPClientReturnsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"bad"}`))
	}))
	defer srv.Close()

	client := resilience.HTTPClient{Client: srv.Client(), MaxAttempts: 3, BaseBackoff: time.Millisecond}
	err := client.DoJSON(context.Background(), http.MethodGet, srv.URL, nil, nil, nil)
	var statusErr *resilience.StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusUnprocessableEntity, statusErr.StatusCode)
	require.Contains(t, statusErr.Body, "bad")
}

func TestHTTPClientOpenCircuitShortCircuits(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	breaker := resilience.NewBreaker(resilience.BreakerConfig{Target: "open-test", MinRequests: 1, FailureRatio: 1, OpenFor: time.Minute})
	client := resilience.HTTPClient{Client: srv.Client(), Breaker: breaker, MaxAttempts: 1}

	err := client.DoJSON(context.Background(), http.MethodGet, srv.URL, nil, nil, nil)
	require.Error(t, err)
	err = client.DoJSON(context.Background(), http.MethodGet, srv.URL, nil, nil, nil)
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.EqualValues(t, 1, calls.Load())
}

func TestHTTPClientGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := resilience.HTTPClient{
		Client:      srv.Client(),
		Breaker:     resilience.NewBreaker(resilience.BreakerConfig{Target: "exhaust-test", MinRequests: 10}),
		BaseBackoff: time.Millisecond,
		Jitter:      0.2,
		MaxAttempts: 2,
	}
	err := client.DoJSON(context.Background(), http.MethodGet, srv.URL, nil, nil, nil)
	var statusErr *resilience.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	require.EqualValues(t, 2, calls.Load())
}
