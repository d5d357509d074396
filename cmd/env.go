package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/uw-workbench/internal/db"
	"github.com/sells-group/uw-workbench/internal/events"
	"github.com/sells-group/uw-workbench/internal/intake"
	"github.com/sells-group/uw-workbench/internal/notify"
	"github.com/sells-group/uw-workbench/internal/resilience"
	"github.com/sells-group/uw-workbench/internal/risk"
	"github.com/sells-group/uw-workbench/internal/rules"
	"github.com/sells-group/uw-workbench/internal/store"
	"github.com/sells-group/uw-workbench/pkg/anthropic"
	"github.com/sells-group/uw-workbench/pkg/guidewire"
	"github.com/sells-group/uw-workbench/pkg/notion"
)

// appEnv holds the store, rule tables, service and optional clients used by
// the serve, batch and migrate commands.
type appEnv struct {
	Store     store.Store
	Tables    *rules.Tables
	Service   *intake.Service
	Redis     *redis.Client        // may be nil
	Extractor *anthropic.Extractor // may be nil
	Queue     *notion.Queue        // may be nil
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Redis != nil {
		_ = e.Redis.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates config for mode, opens and migrates the store, and
// wires the intake service to every configured integration. Callers should
// defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	tables, err := rules.Load(cfg.Rules.Path)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &appEnv{Store: st, Tables: tables}

	if err := st.Migrate(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	opts, err := serviceOptions(ctx, env)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Service = intake.New(st, tables, opts...)

	if cfg.Notion.SubmissionDB != "" {
		env.Queue = notion.NewQueue(notion.NewClient(cfg.Notion.Token), cfg.Notion.SubmissionDB)
	}

	return env, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, db.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// serviceOptions builds the intake options from config. It records the
// Redis client and extractor on env.
func serviceOptions(ctx context.Context, env *appEnv) ([]intake.Option, error) {
	scorer, err := risk.New(cfg.Rules.Scorer)
	if err != nil {
		return nil, err
	}
	opts := []intake.Option{
		intake.WithScorer(scorer),
		intake.WithNormalizedPriority(cfg.Rules.NormalizePriorityScore),
	}

	ttl := time.Duration(cfg.Redis.DedupeTTLSecs) * time.Second
	if cfg.Redis.Addr != "" {
		client, err := events.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		env.Redis = client
		opts = append(opts,
			intake.WithPublisher(events.NewRedisPublisher(client, cfg.Redis.Channel)),
			intake.WithDeduper(events.NewRedisDeduper(client, "", ttl)),
		)
	} else {
		opts = append(opts, intake.WithDeduper(events.NewMemoryDeduper(ttl)))
	}

	if cfg.Slack.Token != "" {
		opts = append(opts, intake.WithNotifier(notify.Multi{
			notify.LogNotifier{},
			notify.NewSlack(cfg.Slack.Token, cfg.Slack.Channel),
		}))
	}

	if cfg.Anthropic.Key != "" {
		env.Extractor = anthropic.NewExtractor(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model, cfg.Anthropic.MaxTokens)
		opts = append(opts, intake.WithExtractor(env.Extractor))
	}

	if cfg.Guidewire.Enabled() {
		gw := cfg.Guidewire
		retry := resilience.RetryFromSettings(gw.MaxRetries, gw.InitialBackoffMs, gw.MaxBackoffMs)
		retry.OnRetry = resilience.RetryLogger("guidewire", "composite")
		client, err := guidewire.New(guidewire.Config{
			BaseURL:          gw.BaseURL,
			Token:            gw.Token,
			Username:         gw.Username,
			Password:         gw.Password,
			ProducerCode:     gw.ProducerCode,
			Timeout:          time.Duration(gw.TimeoutSecs) * time.Second,
			RateLimit:        gw.RateLimit,
			Retry:            retry,
			BreakerThreshold: gw.BreakerThreshold,
			BreakerCooldown:  time.Duration(gw.BreakerCooldown) * time.Second,
		})
		if err != nil {
			return nil, eris.Wrap(err, "init guidewire")
		}
		opts = append(opts,
			intake.WithPolicySyncer(client),
			intake.WithSyncRetry(resilience.RetryConfig{
				InitialBackoff: time.Minute,
				MaxBackoff:     time.Hour,
				Multiplier:     2,
			}, cfg.Scheduler.SyncMaxRetries),
		)
	}

	zap.L().Debug("intake service configured",
		zap.String("scorer", scorer.Name()),
		zap.Bool("redis", env.Redis != nil),
		zap.Bool("slack", cfg.Slack.Token != ""),
		zap.Bool("extractor", env.Extractor != nil),
		zap.Bool("guidewire", cfg.Guidewire.Enabled()),
	)

	return opts, nil
}
