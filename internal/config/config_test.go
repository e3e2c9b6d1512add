package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 60, cfg.Server.SessionTTLMins)
	assert.Equal(t, 200, cfg.Server.MaxSessions)
	assert.Equal(t, "none", cfg.Cache.Driver)
	assert.Equal(t, 24, cfg.Cache.TTLHours)
	assert.Equal(t, 2, cfg.Dispatch.DefaultConcurrency)
	assert.Equal(t, 90, cfg.Dispatch.TimeoutSecs)
	assert.Equal(t, 2, cfg.Resilience.RetryMaxAttempts)

	require.Contains(t, cfg.Providers, "openai")
	assert.Equal(t, "gpt-4o-mini", cfg.Providers["openai"].Model)
	assert.Equal(t, 4, cfg.Providers["openai"].Concurrency)
	assert.Equal(t, "perplexity", cfg.Providers["perplexity"].Kind)
	assert.Equal(t, "openai", cfg.Providers["gemini"].Kind)
	assert.InDelta(t, 1.0, cfg.Providers["perplexity"].RatePerSec, 0.001)

	// No keys means nothing is active.
	assert.Empty(t, cfg.ActiveProviders())
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
providers:
  anthropic:
    key: sk-ant
    concurrency: 1
cache:
  driver: sqlite
  dsn: cache.db
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Cache.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 1, cfg.Providers["anthropic"].Concurrency)
	// Defaults still apply for unset values.
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Providers["anthropic"].Model)
	assert.Equal(t, []string{"anthropic"}, cfg.ActiveProviders())
}

func TestLoadEnvOverrides(t *testing.T) {
	chdirTemp(t)

	t.Setenv("VISIBILITY_PROVIDERS_OPENAI_KEY", "sk-openai")
	t.Setenv("VISIBILITY_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "sk-openai", cfg.Providers["openai"].Key)
	assert.Equal(t, []string{"openai"}, cfg.ActiveProviders())
}

func TestProviderActive(t *testing.T) {
	off := false
	assert.False(t, ProviderConfig{}.Active())
	assert.True(t, ProviderConfig{Key: "k"}.Active())
	assert.False(t, ProviderConfig{Key: "k", Enabled: &off}.Active())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Providers: map[string]ProviderConfig{"openai": {Kind: "openai", Key: "k"}},
			Server:    ServerConfig{Port: 8080},
			Cache:     CacheConfig{Driver: "none"},
		}
	}

	assert.NoError(t, valid().Validate("analyze"))
	assert.NoError(t, valid().Validate("serve"))

	noKeys := valid()
	noKeys.Providers = map[string]ProviderConfig{"openai": {Kind: "openai"}}
	err := noKeys.Validate("analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider key is required")

	badKind := valid()
	badKind.Providers["x"] = ProviderConfig{Kind: "bard", Key: "k"}
	assert.ErrorContains(t, badKind.Validate("analyze"), "providers.x.kind")

	badPort := valid()
	badPort.Server.Port = 0
	assert.ErrorContains(t, badPort.Validate("serve"), "server.port")
	assert.NoError(t, badPort.Validate("analyze"))

	redis := valid()
	redis.Cache.Driver = "redis"
	assert.ErrorContains(t, redis.Validate("cache"), "cache.dsn is required for redis")
}

func TestInitLoggerConsole(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	assert.Error(t, InitLogger(LogConfig{Level: "invalid", Format: "json"}))
}
