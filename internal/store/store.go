// Package store persists raw provider answers between runs so a repeated
// (provider, model, prompt) call can skip the network.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/visibility-cli/internal/config"
)

// Cache is a TTL cache of answer text. Implementations must be safe for
// concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, answer string, ttl time.Duration) error
	// Purge deletes expired entries, or every entry when all is set, and
	// reports how many were removed.
	Purge(ctx context.Context, all bool) (int, error)
	Close() error
}

// Open builds the cache selected by cfg.Driver and runs its migration.
// Driver "none" or "" returns a nil Cache.
func Open(ctx context.Context, cfg config.CacheConfig) (Cache, error) {
	var (
		c   Cache
		err error
	)
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "sqlite":
		c, err = NewSQLite(cfg.DSN)
	case "postgres":
		c, err = NewPostgres(ctx, cfg.DSN)
	case "redis":
		c, err = NewRedis(ctx, cfg.DSN)
	default:
		return nil, eris.Errorf("store: unknown cache driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if m, ok := c.(interface{ Migrate(context.Context) error }); ok {
		if err := m.Migrate(ctx); err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	zap.L().Info("store: answer cache opened", zap.String("driver", cfg.Driver))
	return c, nil
}
