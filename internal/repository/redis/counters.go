package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CounterStore backs the fixed-window rate limiter. INCR plus a conditional
// EXPIRE on the first hit; the window resets only when the TTL lapses.
type CounterStore struct {
	kv *KV
}

func NewCounterStore(kv *KV) *CounterStore { return &CounterStore{kv: kv} }

// Peek returns the current count and remaining window without incrementing.
// A missing key reads as zero.
func (c *CounterStore) Peek(ctx context.Context, key string) (int64, time.Duration, error) {
	count, err := c.kv.Client.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("peek counter: %w", err)
	}
	ttl, err := c.kv.Client.TTL(ctx, key).Result()
	if err != nil {
		return count, 0, fmt.Errorf("counter ttl: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}
	return count, ttl, nil
}

// Incr bumps the counter and arms the window TTL whenever the key has none.
// That covers both the first hit and a key whose earlier EXPIRE was lost; a
// counter without a TTL would otherwise throttle forever.
func (c *CounterStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := c.kv.Client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	ttl := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("incr counter: %w", err)
	}
	if ttl.Val() < 0 {
		if err := c.kv.Client.Expire(ctx, key, window).Err(); err != nil {
			return incr.Val(), fmt.Errorf("arm counter window: %w", err)
		}
	}
	return incr.Val(), nil
}
