// Package lock serialises work on a shared key across API replicas.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrTimeout is returned when the lock could not be acquired within MaxWait.
	ErrTimeout = errors.New("lock: timed out waiting for lock")
	// ErrHeld is returned by Claim when the key already has a holder.
	ErrHeld = errors.New("lock: already held")
)

var releaseScript = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`)

// Locker is a Redis SET NX lock. Only the holder's token can release a key, so
// a lock that expired and was taken by someone else is never deleted.
type Locker struct {
	R            *redis.Client
	Prefix       string
	RetryBackoff time.Duration
	MaxWait      time.Duration
}

// WithLock runs fn while holding key for at most ttl. It waits for a held lock
// until MaxWait (if set) or ctx expires.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 25 * time.Millisecond
	}
	waitCtx := ctx
	if l.MaxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.MaxWait)
		defer cancel()
	}

	full := l.Prefix + key
	token := uuid.NewString()
	for {
		ok, err := l.R.SetNX(waitCtx, full, token, ttl).Result()
		if err != nil {
			if waitCtx.Err() != nil && ctx.Err() == nil {
				return ErrTimeout
			}
			return fmt.Errorf("lock %s: %w", full, err)
		}
		if ok {
			break
		}
		timer := time.NewTimer(retry)
		select {
		case <-waitCtx.Done():
			timer.Stop()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrTimeout
		case <-timer.C:
		}
	}
	defer l.release(ctx, full, token)
	return fn(ctx)
}

// Claim takes key for ttl without waiting and returns its release func. It
// marks long-running work, such as a checkout, that must not run twice at
// once but is too slow to hold a wait lock for.
func (l Locker) Claim(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if l.R == nil {
		return nil, errors.New("lock: redis client not configured")
	}
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	full := l.Prefix + key
	token := uuid.NewString()
	ok, err := l.R.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", full, err)
	}
	if !ok {
		return nil, ErrHeld
	}
	return func() { l.release(ctx, full, token) }, nil
}

func (l Locker) release(ctx context.Context, key, token string) {
	_ = releaseScript.Run(context.WithoutCancel(ctx), l.R, []string{key}, token).Err()
}
