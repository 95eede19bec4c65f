// Package ratelimit throttles abuse-prone endpoints (VAT validation, checkout)
// with a fixed-window limiter shared through Redis.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/foodsafe/storefront/internal/common"
)

// KeyFunc derives the bucket a request counts against.
type KeyFunc func(*http.Request) string

// BySessionOrIP keys on the storefront session when present and on the client
// address otherwise.
func BySessionOrIP(r *http.Request) string {
	if sid, ok := common.SessionID(r.Context()); ok {
		return "sid:" + sid
	}
	return "ip:" + common.ClientIP(r)
}

// ByIP keys on the client address only.
func ByIP(r *http.Request) string {
	return "ip:" + common.ClientIP(r)
}

// NewRedisStore returns a limiter store shared by every API replica.
func NewRedisStore(client *redis.Client, prefix string) (limiter.Store, error) {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix})
}

// New builds a limiter from a formatted rate such as "30-M" or "5-S".
func New(store limiter.Store, formatted string) (*limiter.Limiter, error) {
	rate, err := limiter.NewRateFromFormatted(strings.TrimSpace(formatted))
	if err != nil {
		return nil, err
	}
	return limiter.New(store, rate), nil
}

// Handler enforces a limit before delegating to the next handler. Store
// failures let the request through.
type Handler struct {
	Limiter *limiter.Limiter
	// Name separates buckets of different endpoints sharing one store.
	Name    string
	Key     KeyFunc
	OnError func(error)
}

// Middleware implements the chi middleware signature.
func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		keyFn := h.Key
		if keyFn == nil {
			keyFn = BySessionOrIP
		}
		key := keyFn(r)
		if h.Name != "" {
			key = h.Name + ":" + key
		}
		lctx, err := h.Limiter.Get(r.Context(), key)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		headers.Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			retryAfter := int64(time.Until(time.Unix(lctx.Reset, 0)).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}
			headers.Set("Retry-After", strconv.FormatInt(retryAfter, 10))
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
