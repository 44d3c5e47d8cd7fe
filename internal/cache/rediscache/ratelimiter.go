package rediscache

import (
	"context"
	"time"

	"github.com/BearBump/DispatchBox/internal/cache"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var _ cache.RateLimiter = (*RateLimiter)(nil)

// RateLimiter is a fixed-window counter; callers put the window into the key.
type RateLimiter struct {
	c *redis.Client
}

func NewRateLimiter(addr string) *RateLimiter {
	return &RateLimiter{
		c: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

func NewRateLimiterWithClient(c *redis.Client) *RateLimiter {
	return &RateLimiter{c: c}
}

// Allow increments key and refreshes its TTL. It returns whether the new
// count is within limit, and the count itself.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	pipe := rl.c.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, 0, errors.Wrap(err, "redis ratelimit")
	}
	n := incr.Val()
	return n <= limit, n, nil
}
