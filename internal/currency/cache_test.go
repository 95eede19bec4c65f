package currency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func liveSnapshot(at time.Time) Snapshot {
	return Snapshot{
		Base:      "GBP",
		Date:      at.Format("2006-01-02"),
		Rates:     map[string]decimal.Decimal{"EUR": decimal.RequireFromString("1.15")},
		FetchedAt: at,
		Source:    SourceLive,
	}
}

func TestCacheFallsBackToDefaults(t *testing.T) {
	_, client := newTestRedis(t)
	cache := NewCache(client, "GBP", time.Hour, zerolog.Nop())

	snap := cache.Current(context.Background())
	require.Equal(t, SourceDefault, snap.Source)
	require.Equal(t, "1.17", snap.Rates["EUR"].String())
}

func TestCacheStoreSharesSnapshotThroughRedis(t *testing.T) {
	mr, client := newTestRedis(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	writer := NewCache(client, "GBP", time.Hour, zerolog.Nop())
	writer.now = func() time.Time { return now }
	require.NoError(t, writer.Store(context.Background(), liveSnapshot(now)))
	require.True(t, mr.Exists("fx:rates:GBP"))
	require.Equal(t, SourceLive, writer.Current(context.Background()).Source)

	reader := NewCache(client, "GBP", time.Hour, zerolog.Nop())
	reader.now = func() time.Time { return now.Add(10 * time.Minute) }
	snap := reader.Current(context.Background())
	require.Equal(t, SourceCache, snap.Source)
	require.Equal(t, "1.15", snap.Rates["EUR"].String())
}

func TestCacheServesLastLiveSnapshotPastTTL(t *testing.T) {
	mr, client := newTestRedis(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cache := NewCache(client, "GBP", 24*time.Hour, zerolog.Nop())
	require.NoError(t, cache.Store(context.Background(), liveSnapshot(now)))
	require.Zero(t, mr.TTL("fx:rates:GBP"), "shared copy must outlive the refresh cycle")

	cache.now = func() time.Time { return now.Add(24*time.Hour + time.Second) }
	snap := cache.Current(context.Background())
	require.Equal(t, "1.15", snap.Rates["EUR"].String())
	require.NotEqual(t, SourceDefault, snap.Source)
	require.True(t, snap.Stale)

	// a replica starting after the refresh window still gets the live rates
	fresh := NewCache(client, "GBP", 24*time.Hour, zerolog.Nop())
	fresh.now = cache.now
	snap = fresh.Current(context.Background())
	require.Equal(t, SourceCache, snap.Source)
	require.Equal(t, "1.15", snap.Rates["EUR"].String())
	require.True(t, snap.Stale)
}

func TestCachePrefersNewerSharedSnapshot(t *testing.T) {
	_, client := newTestRedis(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	api := NewCache(client, "GBP", time.Hour, zerolog.Nop())
	api.now = func() time.Time { return now }
	require.NoError(t, api.Store(context.Background(), liveSnapshot(now)))

	worker := NewCache(client, "GBP", time.Hour, zerolog.Nop())
	next := liveSnapshot(now.Add(2 * time.Hour))
	next.Rates["EUR"] = decimal.RequireFromString("1.30")
	require.NoError(t, worker.Store(context.Background(), next))

	api.now = func() time.Time { return now.Add(2*time.Hour + time.Minute) }
	snap := api.Current(context.Background())
	require.Equal(t, "1.3", snap.Rates["EUR"].String())
	require.False(t, snap.Stale)
}

func TestCacheWithoutRedisKeepsMemoryCopy(t *testing.T) {
	now := time.Now().UTC()
	cache := NewCache(nil, "GBP", time.Hour, zerolog.Nop())
	require.NoError(t, cache.Store(context.Background(), liveSnapshot(now)))

	snap := cache.Current(context.Background())
	snap.Rates["EUR"] = decimal.NewFromInt(99)
	require.Equal(t, "1.15", cache.Current(context.Background()).Rates["EUR"].String())
}
