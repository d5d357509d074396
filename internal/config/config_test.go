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

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "uwb.db", cfg.Store.SQLitePath)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "enhanced", cfg.Rules.Scorer)
	assert.False(t, cfg.Rules.NormalizePriorityScore)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "uwb:events", cfg.Redis.Channel)
	assert.Equal(t, 86400, cfg.Redis.DedupeTTLSecs)
	assert.Equal(t, "#underwriting", cfg.Slack.Channel)
	assert.InDelta(t, 5.0, cfg.Guidewire.RateLimit, 0.001)
	assert.Equal(t, 3, cfg.Guidewire.MaxRetries)
	assert.False(t, cfg.Guidewire.Enabled())
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, int64(2048), cfg.Anthropic.MaxTokens)
	assert.Equal(t, "0 9 * * 1-5", cfg.Scheduler.ReminderSchedule)
	assert.Equal(t, 48, cfg.Scheduler.ReminderAfterHours)
	assert.Equal(t, "*/5 * * * *", cfg.Scheduler.SyncRetrySchedule)
	assert.Equal(t, 5, cfg.Batch.MaxConcurrent)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/uwb
rules:
  scorer: baseline
  normalize_priority_score: true
log:
  level: debug
  format: console
server:
  port: 9090
guidewire:
  base_url: https://pc.example.com
  token: abc
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/uwb", cfg.Store.DatabaseURL)
	assert.Equal(t, "baseline", cfg.Rules.Scorer)
	assert.True(t, cfg.Rules.NormalizePriorityScore)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Guidewire.Enabled())
	// Defaults still apply for unset values
	assert.Equal(t, 30, cfg.Guidewire.TimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("UWB_STORE_DRIVER", "sqlite")
	t.Setenv("UWB_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("UWB_SERVER_PORT", "3000")
	t.Setenv("UWB_SERVER_API_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "secret", cfg.Server.APIKey)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unterminated"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with the defaults a command needs.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.SQLitePath = "uwb.db"
	cfg.Server.Port = 8080
	cfg.Batch.MaxConcurrent = 5
	return cfg
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mode    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "serve defaults", mode: "serve"},
		{name: "score needs no store", mode: "score", mutate: func(c *Config) { c.Store.Driver = "" }},
		{name: "migrate postgres", mode: "migrate", mutate: func(c *Config) {
			c.Store.Driver = "postgres"
			c.Store.DatabaseURL = "postgres://localhost/uwb"
		}},
		{name: "postgres without url", mode: "serve", mutate: func(c *Config) { c.Store.Driver = "postgres" },
			wantErr: "store.database_url is required"},
		{name: "sqlite without path", mode: "batch", mutate: func(c *Config) { c.Store.SQLitePath = "" },
			wantErr: "store.sqlite_path is required"},
		{name: "unknown driver", mode: "serve", mutate: func(c *Config) { c.Store.Driver = "mysql" },
			wantErr: `unknown store driver "mysql"`},
		{name: "invalid port", mode: "serve", mutate: func(c *Config) { c.Server.Port = 0 },
			wantErr: "server.port must be > 0"},
		{name: "batch concurrency", mode: "batch", mutate: func(c *Config) { c.Batch.MaxConcurrent = 51 },
			wantErr: "batch.max_concurrent must be between 1 and 50"},
		{name: "guidewire without credentials", mode: "serve", mutate: func(c *Config) { c.Guidewire.BaseURL = "https://pc" },
			wantErr: "guidewire.token or guidewire.username is required"},
		{name: "notion without token", mode: "batch", mutate: func(c *Config) { c.Notion.SubmissionDB = "db" },
			wantErr: "notion.token is required"},
		{name: "unknown mode", mode: "fly", wantErr: "unknown mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validDefaults()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := cfg.Validate(tt.mode)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()

	cfg := validDefaults()
	cfg.Store.Driver = "postgres"
	cfg.Server.Port = -1
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "server.port must be > 0")
}
