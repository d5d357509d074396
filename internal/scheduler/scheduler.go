// Package scheduler runs the periodic workbench jobs: broker reminders for
// items waiting on information and retries of failed policy syncs.
package scheduler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/uw-workbench/internal/intake"
	"github.com/sells-group/uw-workbench/internal/model"
	"github.com/sells-group/uw-workbench/internal/normalize"
	"github.com/sells-group/uw-workbench/internal/store"
)

// Config selects which jobs run and when. An empty schedule disables its
// job. Schedules are standard 5-field cron expressions.
type Config struct {
	ReminderSchedule  string
	ReminderAfter     time.Duration
	SyncRetrySchedule string
	SyncRetryBatch    int
}

// Scheduler owns the cron runner and the job bodies.
type Scheduler struct {
	cron  *cron.Cron
	svc   *intake.Service
	store store.Store
	cfg   Config
	now   func() time.Time
	jobs  []string
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides time.Now for staleness checks.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// New parses the configured schedules and registers their jobs. It does
// not start the runner.
func New(svc *intake.Service, st store.Store, cfg Config, opts ...Option) (*Scheduler, error) {
	if cfg.ReminderAfter <= 0 {
		cfg.ReminderAfter = 48 * time.Hour
	}
	if cfg.SyncRetryBatch <= 0 {
		cfg.SyncRetryBatch = 25
	}

	logger := zapLogger{}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		svc:   svc,
		store: st,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.register("reminders", cfg.ReminderSchedule, func(ctx context.Context) (int, error) {
		return s.RunReminders(ctx)
	}); err != nil {
		return nil, err
	}
	if err := s.register("sync_retries", cfg.SyncRetrySchedule, func(ctx context.Context) (int, error) {
		return s.RunSyncRetries(ctx)
	}); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) register(name, spec string, run func(ctx context.Context) (int, error)) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		zap.L().Info("scheduler: job disabled", zap.String("job", name))
		return nil
	}
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		n, err := run(context.Background())
		if err != nil {
			zap.L().Error("scheduler: job failed", zap.String("job", name), zap.Int("processed", n), zap.Error(err))
			return
		}
		zap.L().Info("scheduler: job complete",
			zap.String("job", name),
			zap.Int("processed", n),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
	if err != nil {
		return eris.Wrapf(err, "scheduler: parse %s schedule %q", name, spec)
	}
	s.jobs = append(s.jobs, name)
	zap.L().Info("scheduler: job registered", zap.String("job", name), zap.String("schedule", spec))
	return nil
}

// Jobs lists the registered job names.
func (s *Scheduler) Jobs() []string { return append([]string(nil), s.jobs...) }

// Start runs the cron loop in its own goroutine.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling and waits for running jobs or ctx, whichever comes
// first.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "scheduler: stop")
	}
}

// RunReminders re-sends info requests for items that have waited in
// pending_info longer than ReminderAfter. Each reminder refreshes the
// item's updated_at, so an item is reminded at most once per window.
func (s *Scheduler) RunReminders(ctx context.Context) (int, error) {
	items, err := s.store.StaleWorkItems(ctx, model.StatusPendingInfo, s.now().Add(-s.cfg.ReminderAfter))
	if err != nil {
		return 0, eris.Wrap(err, "scheduler: list stale items")
	}

	sent := 0
	var errs []error
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		missing, err := s.requestedFields(ctx, item)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := s.svc.RequestInfo(ctx, item.ID, "", missing); err != nil {
			zap.L().Warn("scheduler: reminder failed", zap.String("work_item_id", item.ID), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// requestedFields returns the fields to chase: validation gaps first, then
// the most recent info request on record.
func (s *Scheduler) requestedFields(ctx context.Context, item model.WorkItem) ([]string, error) {
	if len(item.Validation.MissingFields) > 0 {
		return item.Validation.MissingFields, nil
	}
	entries, err := s.store.ListHistory(ctx, item.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "scheduler: history for %s", item.ID)
	}
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.Action != model.HistoryCommented {
			continue
		}
		raw, ok := e.Details["missing_fields"].([]any)
		if !ok {
			continue
		}
		out := make([]string, 0, len(raw))
		for _, v := range raw {
			if f := normalize.Stringify(v); f != "" {
				out = append(out, f)
			}
		}
		if len(out) > 0 {
			return out, nil
		}
	}
	return nil, eris.Wrapf(intake.ErrInvalidRequest, "work item %s has no outstanding fields", item.ID)
}

// RunSyncRetries replays due policy-sync dead letters.
func (s *Scheduler) RunSyncRetries(ctx context.Context) (int, error) {
	due, err := s.store.DueSyncFailures(ctx, s.now(), s.cfg.SyncRetryBatch)
	if err != nil {
		return 0, eris.Wrap(err, "scheduler: list due sync failures")
	}

	resolved := 0
	for _, entry := range due {
		if err := ctx.Err(); err != nil {
			return resolved, err
		}
		if err := s.svc.RetrySync(ctx, entry); err != nil {
			if errors.Is(err, intake.ErrPolicySyncDisabled) {
				return resolved, err
			}
			zap.L().Warn("scheduler: sync retry failed",
				zap.String("work_item_id", entry.WorkItemID),
				zap.Int("retry_count", entry.RetryCount+1),
				zap.Error(err),
			)
			continue
		}
		resolved++
	}
	return resolved, nil
}

// zapLogger adapts zap to cron.Logger.
type zapLogger struct{}

func (zapLogger) Info(msg string, keysAndValues ...any) {
	zap.L().Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (zapLogger) Error(err error, msg string, keysAndValues ...any) {
	zap.L().Sugar().Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
