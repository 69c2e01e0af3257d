package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter shares fixed windows between instances through Redis.
// Each window is a counter key that expires with the window.
type RedisLimiter struct {
	rdb      redis.UniversalClient
	prefix   string
	limit    int
	duration time.Duration
}

// NewRedis creates a Redis-backed limiter. Keys are namespaced by prefix.
func NewRedis(rdb redis.UniversalClient, prefix string, limit int, duration time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, prefix: prefix, limit: limit, duration: duration}
}

// Allow increments key's counter, starting the window on the first hit.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	k := l.prefix + ":" + key

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, l.duration)
		ttl = pipe.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("rate limit %s: %w", k, err)
	}

	count := int(incr.Val())
	reset := ttl.Val()
	if reset <= 0 {
		reset = l.duration
	}
	res := Result{
		Allowed:    count <= l.limit,
		Limit:      l.limit,
		ResetAt:    time.Now().Add(reset),
		RetryAfter: reset,
	}
	if res.Allowed {
		res.Remaining = l.limit - count
	}
	return res, nil
}
