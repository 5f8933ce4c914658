package payment

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const intentKeyPrefix = "payment:intent:"

// IntentCache remembers the intent created for an idempotency key so a
// retried request returns the same intent without a processor round trip.
type IntentCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIntentCache(rdb *redis.Client, ttl time.Duration) *IntentCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IntentCache{rdb: rdb, ttl: ttl}
}

// Get returns the cached intent, or nil when the key is unknown.
func (c *IntentCache) Get(ctx context.Context, key string) (*Intent, error) {
	raw, err := c.rdb.Get(ctx, intentKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var in Intent
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}
	return &in, nil
}

func (c *IntentCache) Put(ctx context.Context, key string, in *Intent) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, intentKeyPrefix+key, raw, c.ttl).Err()
}
