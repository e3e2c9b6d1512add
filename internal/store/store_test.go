package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/visibility-cli/internal/config"
	"github.com/sells-group/visibility-cli/internal/provider"
)

func TestOpen_None(t *testing.T) {
	for _, driver := range []string{"", "none"} {
		c, err := Open(context.Background(), config.CacheConfig{Driver: driver})
		require.NoError(t, err)
		assert.Nil(t, c)
	}
}

func TestOpen_Unknown(t *testing.T) {
	_, err := Open(context.Background(), config.CacheConfig{Driver: "memcached"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown cache driver")
}

func TestOpen_SQLiteMigrates(t *testing.T) {
	c, err := Open(context.Background(), config.CacheConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "answers.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	require.NoError(t, c.Set(context.Background(), "k", "v", time.Hour))
	got, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestOpen_RedisBadURL(t *testing.T) {
	_, err := Open(context.Background(), config.CacheConfig{Driver: "redis", DSN: "not a url"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: parse url")
}

func TestOpen_RedisUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Open(ctx, config.CacheConfig{Driver: "redis", DSN: "redis://127.0.0.1:1/0?dial_timeout=200ms"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: ping")
}

func TestCachesSatisfyAnswerCache(t *testing.T) {
	var _ provider.AnswerCache = (*SQLiteCache)(nil)
	var _ provider.AnswerCache = (*PostgresCache)(nil)
	var _ provider.AnswerCache = (*RedisCache)(nil)
}
