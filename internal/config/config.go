package config

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Providers  map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
	Dispatch   DispatchConfig            `yaml:"dispatch" mapstructure:"dispatch"`
	Resilience ResilienceConfig          `yaml:"resilience" mapstructure:"resilience"`
	Cache      CacheConfig               `yaml:"cache" mapstructure:"cache"`
	Server     ServerConfig              `yaml:"server" mapstructure:"server"`
	Log        LogConfig                 `yaml:"log" mapstructure:"log"`
}

// ProviderConfig configures one AI answer provider. Every provider is
// handled identically; only these values differ.
type ProviderConfig struct {
	Kind        string  `yaml:"kind" mapstructure:"kind"` // anthropic | openai | perplexity
	Key         string  `yaml:"key" mapstructure:"key"`
	Model       string  `yaml:"model" mapstructure:"model"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Enabled     *bool   `yaml:"enabled" mapstructure:"enabled"`
	Concurrency int     `yaml:"concurrency" mapstructure:"concurrency"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst       int     `yaml:"burst" mapstructure:"burst"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// Active reports whether the provider should be queried. A provider is
// active when it has a key and is not explicitly disabled.
func (p ProviderConfig) Active() bool {
	if p.Enabled != nil && !*p.Enabled {
		return false
	}
	return p.Key != ""
}

// DispatchConfig configures the prompt dispatcher.
type DispatchConfig struct {
	DefaultConcurrency int `yaml:"default_concurrency" mapstructure:"default_concurrency"`
	TimeoutSecs        int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ResilienceConfig configures transport retry and circuit breaking.
type ResilienceConfig struct {
	RetryMaxAttempts        int `yaml:"retry_max_attempts" mapstructure:"retry_max_attempts"`
	RetryInitialBackoffMs   int `yaml:"retry_initial_backoff_ms" mapstructure:"retry_initial_backoff_ms"`
	CircuitFailureThreshold int `yaml:"circuit_failure_threshold" mapstructure:"circuit_failure_threshold"`
	CircuitResetSecs        int `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// CacheConfig configures the provider answer cache.
type CacheConfig struct {
	Driver   string `yaml:"driver" mapstructure:"driver"` // none | sqlite | postgres | redis
	DSN      string `yaml:"dsn" mapstructure:"dsn"`
	TTLHours int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	// Finished analyses are dropped after SessionTTLMins or once more than
	// MaxSessions have finished, oldest first.
	SessionTTLMins int `yaml:"session_ttl_mins" mapstructure:"session_ttl_mins"`
	MaxSessions    int `yaml:"max_sessions" mapstructure:"max_sessions"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// defaultProviders seeds the provider table so env overrides like
// VISIBILITY_PROVIDERS_OPENAI_KEY resolve.
var defaultProviders = map[string]map[string]any{
	"openai": {
		"kind":         "openai",
		"model":        "gpt-4o-mini",
		"concurrency":  4,
		"rate_per_sec": 5.0,
		"burst":        5,
	},
	"anthropic": {
		"kind":         "anthropic",
		"model":        "claude-haiku-4-5-20251001",
		"concurrency":  3,
		"rate_per_sec": 3.0,
		"burst":        3,
	},
	"perplexity": {
		"kind":         "perplexity",
		"model":        "sonar",
		"base_url":     "https://api.perplexity.ai",
		"concurrency":  2,
		"rate_per_sec": 1.0,
		"burst":        2,
	},
	"gemini": {
		"kind":         "openai",
		"model":        "gemini-2.0-flash",
		"base_url":     "https://generativelanguage.googleapis.com/v1beta/openai/",
		"concurrency":  2,
		"rate_per_sec": 2.0,
		"burst":        2,
	},
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("VISIBILITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, fields := range defaultProviders {
		v.SetDefault("providers."+name+".key", "")
		v.SetDefault("providers."+name+".timeout_secs", 60)
		v.SetDefault("providers."+name+".max_tokens", 1024)
		for k, val := range fields {
			v.SetDefault("providers."+name+"."+k, val)
		}
	}
	v.SetDefault("dispatch.default_concurrency", 2)
	v.SetDefault("dispatch.timeout_secs", 90)
	v.SetDefault("resilience.retry_max_attempts", 2)
	v.SetDefault("resilience.retry_initial_backoff_ms", 250)
	v.SetDefault("resilience.circuit_failure_threshold", 5)
	v.SetDefault("resilience.circuit_reset_secs", 30)
	v.SetDefault("cache.driver", "none")
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.session_ttl_mins", 60)
	v.SetDefault("server.max_sessions", 200)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// ActiveProviders returns the names of active providers in stable order.
func (c *Config) ActiveProviders() []string {
	var names []string
	for name, p := range c.Providers {
		if p.Active() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Validate checks the settings a command needs before it starts.
func (c *Config) Validate(command string) error {
	var problems []string

	switch command {
	case "analyze", "serve":
		if len(c.ActiveProviders()) == 0 {
			problems = append(problems, "at least one provider key is required (VISIBILITY_PROVIDERS_<NAME>_KEY)")
		}
		for name, p := range c.Providers {
			if !p.Active() {
				continue
			}
			switch p.Kind {
			case "anthropic", "openai", "perplexity":
			default:
				problems = append(problems, "providers."+name+".kind must be anthropic, openai or perplexity")
			}
		}
	}

	if command == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		problems = append(problems, "server.port must be between 1 and 65535")
	}

	switch c.Cache.Driver {
	case "", "none", "sqlite", "postgres", "redis":
	default:
		problems = append(problems, "cache.driver must be none, sqlite, postgres or redis")
	}
	if c.Cache.Driver == "postgres" || c.Cache.Driver == "redis" {
		if c.Cache.DSN == "" {
			problems = append(problems, "cache.dsn is required for "+c.Cache.Driver)
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
