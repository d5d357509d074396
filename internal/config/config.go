package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Rules     RulesConfig     `yaml:"rules" mapstructure:"rules"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Redis     RedisConfig     `yaml:"redis" mapstructure:"redis"`
	Slack     SlackConfig     `yaml:"slack" mapstructure:"slack"`
	Guidewire GuidewireConfig `yaml:"guidewire" mapstructure:"guidewire"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Notion    NotionConfig    `yaml:"notion" mapstructure:"notion"`
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// RulesConfig selects the rule tables and scorer.
type RulesConfig struct {
	// Path is an optional YAML override file for the rule tables.
	Path   string `yaml:"path" mapstructure:"path"`
	Scorer string `yaml:"scorer" mapstructure:"scorer"`
	// NormalizePriorityScore divides the overall score by 100 before the
	// priority lookup.
	NormalizePriorityScore bool `yaml:"normalize_priority_score" mapstructure:"normalize_priority_score"`
}

// ServerConfig configures the REST API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	APIKey         string   `yaml:"api_key" mapstructure:"api_key"`
	TimeoutSecs    int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// RedisConfig configures event publishing and intake de-duplication. An
// empty address disables both.
type RedisConfig struct {
	Addr          string `yaml:"addr" mapstructure:"addr"`
	Password      string `yaml:"password" mapstructure:"password"`
	DB            int    `yaml:"db" mapstructure:"db"`
	Channel       string `yaml:"channel" mapstructure:"channel"`
	DedupeTTLSecs int    `yaml:"dedupe_ttl_secs" mapstructure:"dedupe_ttl_secs"`
}

// SlackConfig configures notification delivery. An empty token logs
// notifications instead.
type SlackConfig struct {
	Token   string `yaml:"token" mapstructure:"token"`
	Channel string `yaml:"channel" mapstructure:"channel"`
}

// GuidewireConfig holds PolicyCenter connection settings.
type GuidewireConfig struct {
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	Token            string  `yaml:"token" mapstructure:"token"`
	Username         string  `yaml:"username" mapstructure:"username"`
	Password         string  `yaml:"password" mapstructure:"password"`
	ProducerCode     string  `yaml:"producer_code" mapstructure:"producer_code"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit        float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	MaxRetries       int     `yaml:"max_retries" mapstructure:"max_retries"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	BreakerThreshold int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldown  int     `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// Enabled reports whether a PolicyCenter endpoint is configured.
func (g GuidewireConfig) Enabled() bool { return g.BaseURL != "" }

// AnthropicConfig holds Anthropic API settings for field extraction.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// NotionConfig holds the broker submission queue database.
type NotionConfig struct {
	Token        string `yaml:"token" mapstructure:"token"`
	SubmissionDB string `yaml:"submission_db" mapstructure:"submission_db"`
}

// SchedulerConfig configures background jobs. An empty schedule disables
// the job.
type SchedulerConfig struct {
	ReminderSchedule   string `yaml:"reminder_schedule" mapstructure:"reminder_schedule"`
	ReminderAfterHours int    `yaml:"reminder_after_hours" mapstructure:"reminder_after_hours"`
	SyncRetrySchedule  string `yaml:"sync_retry_schedule" mapstructure:"sync_retry_schedule"`
	SyncRetryBatch     int    `yaml:"sync_retry_batch" mapstructure:"sync_retry_batch"`
	SyncMaxRetries     int    `yaml:"sync_max_retries" mapstructure:"sync_max_retries"`
}

// BatchConfig configures batch intake.
type BatchConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("UWB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "uwb.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("rules.scorer", "enhanced")
	v.SetDefault("rules.normalize_priority_score", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_secs", 30)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("redis.channel", "uwb:events")
	v.SetDefault("redis.dedupe_ttl_secs", 86400)
	v.SetDefault("slack.channel", "#underwriting")
	v.SetDefault("guidewire.timeout_secs", 30)
	v.SetDefault("guidewire.rate_limit", 5)
	v.SetDefault("guidewire.max_retries", 3)
	v.SetDefault("guidewire.initial_backoff_ms", 500)
	v.SetDefault("guidewire.max_backoff_ms", 10000)
	v.SetDefault("guidewire.breaker_threshold", 5)
	v.SetDefault("guidewire.breaker_cooldown_secs", 30)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("scheduler.reminder_schedule", "0 9 * * 1-5")
	v.SetDefault("scheduler.reminder_after_hours", 48)
	v.SetDefault("scheduler.sync_retry_schedule", "*/5 * * * *")
	v.SetDefault("scheduler.sync_retry_batch", 25)
	v.SetDefault("scheduler.sync_max_retries", 5)
	v.SetDefault("batch.max_concurrent", 5)

	// Read config file (optional)
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

// Validate checks the settings a command mode needs. Modes: serve, batch,
// migrate, score.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "score":
		// Scoring is stateless; nothing beyond the shared checks.
	case "serve", "batch", "migrate":
		switch c.Store.Driver {
		case "sqlite":
			if c.Store.SQLitePath == "" {
				errs = append(errs, "store.sqlite_path is required for the sqlite driver")
			}
		case "postgres":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required for the postgres driver")
			}
		default:
			errs = append(errs, fmt.Sprintf("unknown store driver %q", c.Store.Driver))
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode == "serve" && c.Server.Port <= 0 {
		errs = append(errs, "server.port must be > 0")
	}
	if mode == "batch" && (c.Batch.MaxConcurrent < 1 || c.Batch.MaxConcurrent > 50) {
		errs = append(errs, "batch.max_concurrent must be between 1 and 50")
	}
	if c.Guidewire.Enabled() && c.Guidewire.Token == "" && c.Guidewire.Username == "" {
		errs = append(errs, "guidewire.token or guidewire.username is required when guidewire.base_url is set")
	}
	if c.Notion.SubmissionDB != "" && c.Notion.Token == "" {
		errs = append(errs, "notion.token is required when notion.submission_db is set")
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
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
