package provider

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/visibility-cli/internal/config"
	"github.com/sells-group/visibility-cli/internal/resilience"
	"github.com/sells-group/visibility-cli/pkg/anthropic"
	"github.com/sells-group/visibility-cli/pkg/openai"
	"github.com/sells-group/visibility-cli/pkg/perplexity"
)

// NewCompleter builds the vendor adapter for a provider kind.
func NewCompleter(pc config.ProviderConfig) (Completer, error) {
	switch pc.Kind {
	case "anthropic":
		return AnthropicCompleter{Client: anthropic.NewClient(pc.Key, anthropic.WithBaseURL(pc.BaseURL))}, nil
	case "openai":
		return OpenAICompleter{Client: openai.NewClient(pc.Key, openai.WithBaseURL(pc.BaseURL))}, nil
	case "perplexity":
		return PerplexityCompleter{Client: perplexity.NewClient(pc.Key,
			perplexity.WithBaseURL(pc.BaseURL),
			perplexity.WithModel(pc.Model),
		)}, nil
	default:
		return nil, eris.Errorf("provider: unknown kind %q", pc.Kind)
	}
}

// FromConfig builds one client per active provider, sorted by name.
func FromConfig(cfg *config.Config, cache AnswerCache) ([]Client, error) {
	var clients []Client
	for _, name := range cfg.ActiveProviders() {
		pc := cfg.Providers[name]
		completer, err := NewCompleter(pc)
		if err != nil {
			return nil, eris.Wrapf(err, "provider: build %s", name)
		}
		clients = append(clients, NewLLM(name, completer, Options{
			Model:      pc.Model,
			MaxTokens:  pc.MaxTokens,
			RatePerSec: pc.RatePerSec,
			Burst:      pc.Burst,
			Retry:      resilience.FromRetrySettings(cfg.Resilience.RetryMaxAttempts, cfg.Resilience.RetryInitialBackoffMs),
			Breaker:    resilience.FromBreakerSettings(cfg.Resilience.CircuitFailureThreshold, cfg.Resilience.CircuitResetSecs),
			Cache:      cache,
			CacheTTL:   time.Duration(cfg.Cache.TTLHours) * time.Hour,
		}))
	}
	if len(clients) == 0 {
		return nil, eris.New("provider: no active providers")
	}
	return clients, nil
}
