package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const counterKeyPrefix = "ratelimit:"

// RedisCounter is a Redis-backed fixed-window counter.
// This is the production-recommended implementation for distributed
// deployments where multiple instances must share attempt counts.
type RedisCounter struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed counter.
func NewRedis(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	fullKey := counterKeyPrefix + key

	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, fullKey)
	// NX keeps the window anchored at the first attempt.
	pipe.ExpireNX(ctx, fullKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("increment rate limit counter: %w", err)
	}
	return incr.Val(), nil
}

func (c *RedisCounter) Reset(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, counterKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("reset rate limit counter: %w", err)
	}
	return nil
}

var _ Counter = (*RedisCounter)(nil)
