package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/cohorthub/internal/app/system/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in -short mode")
	}
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)

	rdb := redis.NewClient(opts)
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(ctx).Err())
	return rdb
}

func TestRedisLimiter(t *testing.T) {
	rdb := setupRedis(t)
	ctx := context.Background()

	a := ratelimit.NewRedis(rdb, "rl:test", 2, time.Minute)
	b := ratelimit.NewRedis(rdb, "rl:test", 2, time.Minute) // second instance, same keyspace

	res, err := a.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)

	res, err = b.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)

	res, err = a.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed, "limit is shared across instances")
	assert.WithinDuration(t, time.Now().Add(time.Minute), res.ResetAt, 5*time.Second)

	ttl, err := rdb.PTTL(ctx, "rl:test:10.0.0.1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0), "window key must expire")

	res, err = a.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRedisLimiter_WindowExpires(t *testing.T) {
	rdb := setupRedis(t)
	ctx := context.Background()

	l := ratelimit.NewRedis(rdb, "rl:short", 1, 1500*time.Millisecond)
	res, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = l.Allow(ctx, "k")
	require.NoError(t, err)
	require.False(t, res.Allowed)

	require.Eventually(t, func() bool {
		res, err := l.Allow(ctx, "k")
		return err == nil && res.Allowed
	}, 5*time.Second, 250*time.Millisecond)
}
