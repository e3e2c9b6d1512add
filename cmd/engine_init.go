package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/visibility-cli/internal/analysis"
	"github.com/sells-group/visibility-cli/internal/config"
	"github.com/sells-group/visibility-cli/internal/dispatch"
	"github.com/sells-group/visibility-cli/internal/provider"
	"github.com/sells-group/visibility-cli/internal/store"
)

// engineEnv holds the provider clients and answer cache shared by every
// controller the analyze and serve commands create.
type engineEnv struct {
	Cache   store.Cache // may be nil
	Clients []provider.Client
	Options dispatch.Options
}

// Close releases resources held by the environment.
func (e *engineEnv) Close() {
	if e.Cache != nil {
		_ = e.Cache.Close()
	}
}

// NewController builds a controller with its own dispatcher and scorer.
func (e *engineEnv) NewController(collab analysis.Collaborators) *analysis.Controller {
	return analysis.NewController(collab, analysis.NewEngine(dispatch.New(e.Clients, e.Options)))
}

// initEngine validates config for command, opens the cache and builds one
// client per active provider. Callers should defer env.Close().
func initEngine(ctx context.Context, command string) (*engineEnv, error) {
	if err := cfg.Validate(command); err != nil {
		return nil, err
	}

	cache, err := store.Open(ctx, cfg.Cache)
	if err != nil {
		return nil, eris.Wrap(err, "open answer cache")
	}

	var answers provider.AnswerCache
	if cache != nil {
		answers = cache
	}
	clients, err := provider.FromConfig(cfg, answers)
	if err != nil {
		if cache != nil {
			_ = cache.Close()
		}
		return nil, err
	}

	opts := dispatchOptions(cfg)
	zap.L().Info("providers ready",
		zap.Strings("providers", cfg.ActiveProviders()),
		zap.String("cache", cfg.Cache.Driver),
	)
	return &engineEnv{Cache: cache, Clients: clients, Options: opts}, nil
}

// dispatchOptions maps per-provider concurrency and timeouts from config.
func dispatchOptions(c *config.Config) dispatch.Options {
	opts := dispatch.Options{
		Concurrency:        make(map[string]int),
		DefaultConcurrency: c.Dispatch.DefaultConcurrency,
		Timeouts:           make(map[string]time.Duration),
		DefaultTimeout:     time.Duration(c.Dispatch.TimeoutSecs) * time.Second,
	}
	for _, name := range c.ActiveProviders() {
		pc := c.Providers[name]
		if pc.Concurrency > 0 {
			opts.Concurrency[name] = pc.Concurrency
		}
		if pc.TimeoutSecs > 0 {
			opts.Timeouts[name] = time.Duration(pc.TimeoutSecs) * time.Second
		}
	}
	return opts
}
