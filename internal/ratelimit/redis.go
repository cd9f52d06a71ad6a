package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWindowLimiter shares a fixed window counter between all processes through
// Redis. Each window has its own key, INCR'd per request and expired after two windows.
type RedisWindowLimiter struct {
	client    redis.Cmdable
	keyPrefix string
	limit     int64
	window    time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRedisWindowLimiter creates a cluster-wide limiter allowing limit requests per window
func NewRedisWindowLimiter(client redis.Cmdable, keyPrefix string, limit int, window time.Duration) *RedisWindowLimiter {
	if keyPrefix == "" {
		keyPrefix = "easyorders:ratelimit:"
	}
	if limit < 1 {
		limit = 1
	}
	return &RedisWindowLimiter{
		client:    client,
		keyPrefix: keyPrefix,
		limit:     int64(limit),
		window:    window,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

func (l *RedisWindowLimiter) Wait(ctx context.Context) error {
	for {
		now := l.now()
		windowStart := now.Truncate(l.window)
		key := fmt.Sprintf("%s%d", l.keyPrefix, windowStart.Unix())

		var incr *redis.IntCmd
		_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(ctx, key)
			pipe.Expire(ctx, key, 2*l.window)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to increment rate limit window: %w", err)
		}

		if incr.Val() <= l.limit {
			return nil
		}

		// budget spent: wait for the next window and try again
		if err := l.sleep(ctx, windowStart.Add(l.window).Sub(now)); err != nil {
			return err
		}
	}
}
