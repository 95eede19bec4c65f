package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Repository persists cart state per session between requests.
type Repository interface {
	Load(ctx context.Context, sessionID string) (State, bool, error)
	Save(ctx context.Context, sessionID string, state State) error
	Delete(ctx context.Context, sessionID string) error
}

// RedisRepository keeps each cart as a JSON document under cart:{session} and
// refreshes the expiry on every save.
type RedisRepository struct {
	Client *redis.Client
	TTL    time.Duration
}

func cartKey(sessionID string) string {
	return "cart:" + sessionID
}

func (r RedisRepository) ttl() time.Duration {
	if r.TTL <= 0 {
		return 30 * 24 * time.Hour
	}
	return r.TTL
}

// Load implements Repository.
func (r RedisRepository) Load(ctx context.Context, sessionID string) (State, bool, error) {
	raw, err := r.Client.Get(ctx, cartKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("load cart: %w", err)
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, false, fmt.Errorf("decode cart: %w", err)
	}
	return st, true, nil
}

// Save implements Repository.
func (r RedisRepository) Save(ctx context.Context, sessionID string, state State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := r.Client.Set(ctx, cartKey(sessionID), raw, r.ttl()).Err(); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

// Delete implements Repository.
func (r RedisRepository) Delete(ctx context.Context, sessionID string) error {
	if err := r.Client.Del(ctx, cartKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}
