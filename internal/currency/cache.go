package currency

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Cache serves the latest rate snapshot. Reads come from memory first, then the
// shared Redis copy, then the built-in defaults; it never calls the rate API.
//
// A live snapshot is kept until a newer one replaces it. Past ttl it is still
// served, flagged Stale, because yesterday's rates are closer to the market
// than the built-in table. Defaults apply only when no live snapshot was ever
// stored.
type Cache struct {
	client      *redis.Client
	base        string
	ttl         time.Duration
	readTimeout time.Duration
	current     atomic.Pointer[Snapshot]
	logger      zerolog.Logger
	now         func() time.Time
}

// NewCache constructs a rates cache. A nil client keeps snapshots in memory
// only. ttl is the age after which a snapshot is reported stale.
func NewCache(client *redis.Client, base string, ttl time.Duration, logger zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{
		client:      client,
		base:        normalizeCode(base),
		ttl:         ttl,
		readTimeout: 200 * time.Millisecond,
		logger:      logger,
		now:         time.Now,
	}
}

func (c *Cache) key() string {
	return "fx:rates:" + c.base
}

// Current returns a copy of the freshest snapshot available.
func (c *Cache) Current(ctx context.Context) Snapshot {
	now := c.now()
	best := c.current.Load()
	if best != nil && !best.Expired(now, c.ttl) {
		return c.view(*best, now)
	}
	// another replica may have refreshed since our copy was loaded
	if shared, ok := c.loadShared(ctx); ok && (best == nil || !shared.FetchedAt.Before(best.FetchedAt)) {
		c.current.Store(&shared)
		best = &shared
	}
	if best == nil {
		return DefaultSnapshot(c.base)
	}
	return c.view(*best, now)
}

func (c *Cache) view(snap Snapshot, now time.Time) Snapshot {
	out := snap.Clone()
	out.Stale = out.Expired(now, c.ttl)
	return out
}

// Store publishes a freshly fetched snapshot to memory and Redis. The Redis
// copy has no expiry; the next successful refresh overwrites it.
func (c *Cache) Store(ctx context.Context, snap Snapshot) error {
	snap = snap.Clone()
	snap.Stale = false
	c.current.Store(&snap)
	if c.client == nil {
		return nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(), data, 0).Err()
}

func (c *Cache) loadShared(ctx context.Context) (Snapshot, bool) {
	if c.client == nil {
		return Snapshot{}, false
	}
	readCtx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()
	data, err := c.client.Get(readCtx, c.key()).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Msg("read cached exchange rates")
		}
		return Snapshot{}, false
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		c.logger.Warn().Err(err).Msg("decode cached exchange rates")
		return Snapshot{}, false
	}
	snap.Source = SourceCache
	snap.Stale = false
	return snap, true
}
