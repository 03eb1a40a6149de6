package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter shares windows across server processes. The first action of a
// window creates the counter with a TTL equal to the window, so the window
// resets when the key expires.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

// NewRedisLimiter creates a limiter whose counters live under prefix.
func NewRedisLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *RedisLimiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

// Allow counts the action and reports whether it is within the limit.
// Unlike MemoryLimiter, rejected actions are counted too. A counter found
// without a TTL gets one, so a failed expire is repaired by the next call
// instead of locking the key out for good.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := fmt.Sprintf("ratelimit:%s:%s", l.prefix, key)

	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		ttl = pipe.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return false, err
	}

	// PTTL reports a key without expiry as -1.
	if ttl.Val() < 0 {
		if err := l.client.PExpire(ctx, k, l.window).Err(); err != nil {
			return false, err
		}
	}
	return incr.Val() <= int64(l.limit), nil
}

// RedisFactory returns a Factory producing Redis limiters. Each limiter gets
// its own key prefix derived from its limit and window plus a counter, so two
// routes never share a window.
func RedisFactory(client *redis.Client, prefix string) Factory {
	n := 0
	return func(limit int, window time.Duration) Limiter {
		n++
		return NewRedisLimiter(client, fmt.Sprintf("%s:%d", prefix, n), limit, window)
	}
}
