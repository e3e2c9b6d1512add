package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewRedis(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestRedisCache_SetGet(t *testing.T) {
	c, mr := newTestRedis(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "openai|gpt-4o|abc", "Acme is great", time.Hour))
	got, ok, err := c.Get(ctx, "openai|gpt-4o|abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Acme is great", got)

	assert.True(t, mr.Exists(redisPrefix+"openai|gpt-4o|abc"), "keys are namespaced")
	assert.Equal(t, time.Hour, mr.TTL(redisPrefix+"openai|gpt-4o|abc"))
}

func TestRedisCache_Expiry(t *testing.T) {
	c, mr := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	mr.FastForward(2 * time.Minute)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_Purge(t *testing.T) {
	c, mr := newTestRedis(t)
	ctx := context.Background()

	for i := range 1203 {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("k%d", i), "v", time.Hour))
	}
	require.NoError(t, mr.Set("unrelated", "keep"))

	n, err := c.Purge(ctx, false)
	require.NoError(t, err)
	assert.Zero(t, n, "redis expires entries itself")

	n, err = c.Purge(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1203, n)

	_, ok, err := c.Get(ctx, "k7")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, mr.Exists("unrelated"))
}

func TestRedisCache_ServerError(t *testing.T) {
	c, mr := newTestRedis(t)
	mr.SetError("ERR backend unavailable")

	_, _, err := c.Get(context.Background(), "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: get cached answer")

	err = c.Set(context.Background(), "k", "v", time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: set cached answer")
}
