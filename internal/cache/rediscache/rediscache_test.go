package rediscache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_GetSet(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	b, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), b)
}

func TestRateLimiter_Allow(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(mr.Addr())

	ctx := context.Background()
	ok, n, err := rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), n)

	ok, n, _ = rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(2), n)

	ok, n, _ = rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.False(t, ok)
	require.Equal(t, int64(3), n)
}



func TestRedisCache_MissAndExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	require.NoError(t, c.Ping(ctx))

	_, ok, err := c.Get(ctx, "geocode:missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "geocode:x", []byte(`{"name":"x"}`), time.Second))
	mr.FastForward(2 * time.Second)

	_, ok, err = c.Get(ctx, "geocode:x")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRateLimiter_WindowResets(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(mr.Addr())

	ctx := context.Background()
	ok, _, err := rl.Allow(ctx, "rl:geoapi:router", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	ok, _, _ = rl.Allow(ctx, "rl:geoapi:router", 1, time.Minute)
	require.False(t, ok)

	mr.FastForward(time.Minute + time.Second)
	ok, n, _ := rl.Allow(ctx, "rl:geoapi:router", 1, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(1), n)
}
