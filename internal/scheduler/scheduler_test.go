package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/uw-workbench/internal/intake"
	"github.com/sells-group/uw-workbench/internal/model"
	"github.com/sells-group/uw-workbench/internal/notify"
	"github.com/sells-group/uw-workbench/internal/resilience"
	"github.com/sells-group/uw-workbench/internal/rules"
	"github.com/sells-group/uw-workbench/internal/store"
)

type captureNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (c *captureNotifier) Notify(_ context.Context, msg notify.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

type okSyncer struct{ calls int }

func (o *okSyncer) Sync(context.Context, model.WorkItem) (model.PolicyRef, error) {
	o.calls++
	return model.PolicyRef{AccountNumber: "A-9", JobNumber: "J-9"}, nil
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "sched.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func waitingItem(id string, updated time.Time, missing []string) model.WorkItem {
	return model.WorkItem{
		ID:            id,
		SubmissionRef: id,
		Title:         "Waiting on broker",
		BrokerEmail:   "broker@example.com",
		Status:        model.StatusPendingInfo,
		Priority:      model.PriorityMedium,
		AssignedTo:    "Ashley Davis",
		Validation:    model.ValidationResult{Status: model.ValidationIncomplete, MissingFields: missing},
		Fields:        model.Fields{"insured_name": "Acme"},
		CreatedAt:     updated,
		UpdatedAt:     updated,
	}
}

func TestNew_Schedules(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	svc := intake.New(st, rules.Default())

	tests := []struct {
		name    string
		cfg     Config
		jobs    []string
		wantErr bool
	}{
		{"none", Config{}, nil, false},
		{"both", Config{ReminderSchedule: "0 9 * * 1-5", SyncRetrySchedule: "*/5 * * * *"}, []string{"reminders", "sync_retries"}, false},
		{"reminders only", Config{ReminderSchedule: "@hourly"}, []string{"reminders"}, false},
		{"invalid", Config{SyncRetrySchedule: "every five minutes"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, err := New(svc, st, tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "sync_retries")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.jobs, s.Jobs())
		})
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	s, err := New(intake.New(st, rules.Default()), st, Config{ReminderSchedule: "@daily"})
	require.NoError(t, err)

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}

func TestRunReminders(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)
	notifier := &captureNotifier{}
	svc := intake.New(st, rules.Default(), intake.WithNotifier(notifier))

	now := time.Now().UTC()
	stale := waitingItem("stale", now.Add(-72*time.Hour), []string{"effective_date"})
	fresh := waitingItem("fresh", now.Add(-time.Hour), []string{"effective_date"})
	require.NoError(t, st.CreateWorkItem(ctx, &stale))
	require.NoError(t, st.CreateWorkItem(ctx, &fresh))

	s, err := New(svc, st, Config{ReminderAfter: 48 * time.Hour})
	require.NoError(t, err)

	n, err := s.RunReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, notifier.msgs, 1)
	assert.Equal(t, "stale", notifier.msgs[0].WorkItemID)
	assert.Equal(t, rules.TemplateInfoRequest, notifier.msgs[0].Template)
	assert.Contains(t, notifier.msgs[0].Body, "effective_date")
	assert.Contains(t, notifier.msgs[0].Body, "Ashley Davis")

	got, err := st.GetWorkItem(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingInfo, got.Status)

	n, err = s.RunReminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunReminders_UsesLastRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)
	notifier := &captureNotifier{}
	svc := intake.New(st, rules.Default(), intake.WithNotifier(notifier))

	then := time.Now().UTC().Add(-96 * time.Hour)
	item := waitingItem("asked", then, nil)
	item.Validation = model.ValidationResult{Status: model.ValidationComplete, MissingFields: []string{}}
	require.NoError(t, st.CreateWorkItem(ctx, &item))
	require.NoError(t, st.AddHistory(ctx, model.HistoryEntry{
		WorkItemID:  item.ID,
		Action:      model.HistoryCommented,
		PerformedBy: "Ashley Davis",
		Description: "Requested information",
		Details:     map[string]any{"missing_fields": []string{"annual_revenue", "data_types"}},
		CreatedAt:   then,
	}))

	s, err := New(svc, st, Config{})
	require.NoError(t, err)

	n, err := s.RunReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, notifier.msgs, 1)
	assert.Contains(t, notifier.msgs[0].Body, "annual_revenue")
	assert.Contains(t, notifier.msgs[0].Body, "data_types")
}

func TestRunReminders_NothingToChase(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)
	svc := intake.New(st, rules.Default(), intake.WithNotifier(&captureNotifier{}))

	item := waitingItem("bare", time.Now().UTC().Add(-96*time.Hour), nil)
	require.NoError(t, st.CreateWorkItem(ctx, &item))

	s, err := New(svc, st, Config{})
	require.NoError(t, err)

	n, err := s.RunReminders(ctx)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, intake.ErrInvalidRequest)
}

func TestRunSyncRetries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)
	syncer := &okSyncer{}
	svc := intake.New(st, rules.Default(), intake.WithPolicySyncer(syncer))

	now := time.Now().UTC()
	item := waitingItem("wi-sync", now, nil)
	item.Status = model.StatusApproved
	require.NoError(t, st.CreateWorkItem(ctx, &item))

	entry := resilience.NewDLQEntry(item.ID, intake.OperationSyncPolicy,
		resilience.HTTPError("guidewire", 503, "unavailable"), 3, resilience.RetryConfig{}, now.Add(-time.Hour))
	require.NoError(t, st.EnqueueSyncFailure(ctx, entry))

	s, err := New(svc, st, Config{SyncRetryBatch: 10})
	require.NoError(t, err)

	n, err := s.RunSyncRetries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, syncer.calls)

	got, err := st.GetWorkItem(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Policy)
	assert.Equal(t, "J-9", got.Policy.JobNumber)

	n, err = s.RunSyncRetries(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunSyncRetries_Disabled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)
	svc := intake.New(st, rules.Default())

	entry := resilience.NewDLQEntry("x", intake.OperationSyncPolicy,
		resilience.HTTPError("guidewire", 503, ""), 3, resilience.RetryConfig{}, time.Now().Add(-time.Hour))
	require.NoError(t, st.EnqueueSyncFailure(ctx, entry))

	s, err := New(svc, st, Config{})
	require.NoError(t, err)

	_, err = s.RunSyncRetries(ctx)
	assert.ErrorIs(t, err, intake.ErrPolicySyncDisabled)
}
