package lock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/foodsafe/storefront/internal/lock"
)

func newLocker(t *testing.T) (*miniredis.Miniredis, lock.Locker) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, lock.Locker{R: client, Prefix: "lock:cart:", RetryBackoff: 2 * time.Millisecond}
}

func TestWithLockSerialisesSameKey(t *testing.T) {
	_, locker := newLocker(t)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(ctx, "session-1", time.Second, func(context.Context) error {
				mu.Lock()
				active++
				if active > maxSeen {
					maxSeen = active
				}
				mu.Unlock()
				time.Sleep(2 * time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.Equal(t, 1, maxSeen)
}

func TestWithLockReleasesKey(t *testing.T) {
	mr, locker := newLocker(t)
	err := locker.WithLock(context.Background(), "s", time.Second, func(context.Context) error {
		require.True(t, mr.Exists("lock:cart:s"))
		return nil
	})
	require.NoError(t, err)
	require.False(t, mr.Exists("lock:cart:s"))
}

func TestWithLockDoesNotReleaseForeignToken(t *testing.T) {
	mr, locker := newLocker(t)
	err := locker.WithLock(context.Background(), "s", time.Second, func(context.Context) error {
		// simulate expiry and takeover by another holder
		require.NoError(t, mr.Set("lock:cart:s", "other"))
		return nil
	})
	require.NoError(t, err)
	got, err := mr.Get("lock:cart:s")
	require.NoError(t, err)
	require.Equal(t, "other", got)
}

func TestWithLockTimesOut(t *testing.T) {
	mr, locker := newLocker(t)
	require.NoError(t, mr.Set("lock:cart:busy", "holder"))
	locker.MaxWait = 20 * time.Millisecond

	called := false
	err := locker.WithLock(context.Background(), "busy", time.Second, func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, lock.ErrTimeout)
	require.False(t, called)
}

func TestClaimIsExclusiveUntilReleased(t *testing.T) {
	mr, locker := newLocker(t)
	ctx := context.Background()

	release, err := locker.Claim(ctx, "checkout:s1", time.Minute)
	require.NoError(t, err)
	require.True(t, mr.Exists("lock:cart:checkout:s1"))

	_, err = locker.Claim(ctx, "checkout:s1", time.Minute)
	require.ErrorIs(t, err, lock.ErrHeld)

	other, err := locker.Claim(ctx, "checkout:s2", time.Minute)
	require.NoError(t, err)
	other()

	release()
	require.False(t, mr.Exists("lock:cart:checkout:s1"))
	again, err := locker.Claim(ctx, "checkout:s1", time.Minute)
	require.NoError(t, err)
	again()
}

func TestClaimReleaseKeepsNewerHolder(t *testing.T) {
	mr, locker := newLocker(t)
	ctx := context.Background()

	stale, err := locker.Claim(ctx, "checkout:s1", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	_, err = locker.Claim(ctx, "checkout:s1", time.Minute)
	require.NoError(t, err)
	stale()
	require.True(t, mr.Exists("lock:cart:checkout:s1"))
}
