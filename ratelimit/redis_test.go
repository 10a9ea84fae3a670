package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLimiter(t *testing.T, limit int, window time.Duration) (*Redis, *redis.Client) {
	t.Helper()

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedis(client, limit, window), client
}

func TestRedis_AdmitsUnderLimit(t *testing.T) {
	limiter, _ := newRedisLimiter(t, 5, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := limiter.Admit(ctx, "client", base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		assert.True(t, ok, "request %d should admit", i)
	}
}

func TestRedis_DeniesAtLimit(t *testing.T) {
	limiter, _ := newRedisLimiter(t, 2, time.Minute)
	ctx := context.Background()

	ok, err := limiter.Admit(ctx, "client", base)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = limiter.Admit(ctx, "client", base)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = limiter.Admit(ctx, "client", base.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_DenialDoesNotRecord(t *testing.T) {
	limiter, client := newRedisLimiter(t, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := limiter.Admit(ctx, "client", base)
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := limiter.Admit(ctx, "client", base.Add(30*time.Second))
	require.NoError(t, err)
	require.False(t, ok)

	// The sorted set holds only the two admissions.
	n, err := client.ZCard(ctx, "ratelimit:client").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Full budget returns one window after the admissions, untouched by
	// the denied attempt in between.
	ok, err = limiter.Admit(ctx, "client", base.Add(time.Minute+time.Millisecond))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedis_WindowSlides(t *testing.T) {
	limiter, _ := newRedisLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Admit(ctx, "client", base)
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := limiter.Admit(ctx, "client", base.Add(59*time.Second))
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = limiter.Admit(ctx, "client", base.Add(61*time.Second))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedis_ClientsAreIndependent(t *testing.T) {
	limiter, _ := newRedisLimiter(t, 1, time.Minute)
	ctx := context.Background()

	ok, err := limiter.Admit(ctx, "alpha", base)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = limiter.Admit(ctx, "alpha", base)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = limiter.Admit(ctx, "beta", base)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedis_SetsKeyExpiry(t *testing.T) {
	limiter, _ := newRedisLimiter(t, 5, time.Minute)
	ctx := context.Background()

	ok, err := limiter.Admit(ctx, "client", base)
	require.NoError(t, err)
	require.True(t, ok)

	ttl, err := limiter.client.TTL(ctx, "ratelimit:client").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0), "admission should arm the key TTL")
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestRedis_BackendErrorSurfaces(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := NewRedis(client, 5, time.Minute)
	server.Close()

	_, err = limiter.Admit(context.Background(), "client", base)
	assert.Error(t, err)
}
