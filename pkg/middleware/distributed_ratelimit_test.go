package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestDistributedRateLimiter_Take(t *testing.T) {
	mr, client := newTestRedis(t)
	limiter := NewDistributedRateLimiter(client, &RateLimitConfig{RequestsPerWindow: 3, WindowDuration: time.Minute}, "test")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := limiter.Take(ctx, "user:u1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 2-i, d.Remaining)
	}

	d, err := limiter.Take(ctx, "user:u1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, time.Minute)

	assert.True(t, mr.Exists("test:user:u1"))

	// the window expires, the count starts over
	mr.FastForward(time.Minute + time.Second)
	d, err = limiter.Take(ctx, "user:u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestDistributedRateLimiter_ExpirySetOnce(t *testing.T) {
	mr, client := newTestRedis(t)
	limiter := NewDistributedRateLimiter(client, &RateLimitConfig{RequestsPerWindow: 100, WindowDuration: time.Minute}, "test")
	ctx := context.Background()

	_, err := limiter.Take(ctx, "ip:10.0.0.1")
	require.NoError(t, err)

	mr.FastForward(30 * time.Second)
	_, err = limiter.Take(ctx, "ip:10.0.0.1")
	require.NoError(t, err)

	ttl := mr.TTL("test:ip:10.0.0.1")
	assert.LessOrEqual(t, ttl, 30*time.Second)
}

func TestDistributedRateLimiter_RedisDown(t *testing.T) {
	mr, client := newTestRedis(t)
	limiter := NewDistributedRateLimiter(client, nil, "")
	mr.Close()

	d, err := limiter.Take(context.Background(), "k")
	assert.Error(t, err)
	assert.True(t, d.Allowed)
}
