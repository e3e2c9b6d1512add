package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteCache {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteCache_SetGet(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "openai|gpt|abc")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "openai|gpt|abc", "Acme is great", time.Hour))
	got, ok, err := s.Get(ctx, "openai|gpt|abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Acme is great", got)

	require.NoError(t, s.Set(ctx, "openai|gpt|abc", "Globex is better", time.Hour))
	got, _, err = s.Get(ctx, "openai|gpt|abc")
	require.NoError(t, err)
	assert.Equal(t, "Globex is better", got, "set overwrites")
}

func TestSQLiteCache_Expiry(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "short", "a", time.Minute))
	require.NoError(t, s.Set(ctx, "long", "b", time.Hour))

	now = now.Add(2 * time.Minute)
	_, ok, err := s.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = s.Get(ctx, "long")
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := s.Purge(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.Purge(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, ok, err = s.Get(ctx, "long")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteCache_ConcurrentWrites(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Set(ctx, "shared", string(rune('a'+i)), time.Hour))
		}()
	}
	wg.Wait()

	_, ok, err := s.Get(ctx, "shared")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLiteCache_ClosedDB(t *testing.T) {
	s := newTestSQLite(t)
	require.NoError(t, s.Close())

	_, _, err := s.Get(context.Background(), "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite: get cached answer")
}
