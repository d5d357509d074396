package intake

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/uw-workbench/internal/assign"
	"github.com/sells-group/uw-workbench/internal/events"
	"github.com/sells-group/uw-workbench/internal/model"
	"github.com/sells-group/uw-workbench/internal/notify"
	"github.com/sells-group/uw-workbench/internal/resilience"
	"github.com/sells-group/uw-workbench/internal/rules"
	"github.com/sells-group/uw-workbench/internal/store"
)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

func (r *recordingNotifier) templates() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.Template
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type fakeExtractor struct {
	fields model.Fields
	err    error
	text   string
}

func (f *fakeExtractor) Extract(_ context.Context, text string) (model.Fields, error) {
	f.text = text
	return f.fields, f.err
}

type fakeSyncer struct {
	ref   model.PolicyRef
	err   error
	calls int
}

func (f *fakeSyncer) Sync(_ context.Context, _ model.WorkItem) (model.PolicyRef, error) {
	f.calls++
	return f.ref, f.err
}

type fixture struct {
	svc       *Service
	store     *store.SQLiteStore
	notifier  *recordingNotifier
	publisher *recordingPublisher
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "intake.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	tables := rules.Default()
	f := &fixture{store: st, notifier: &recordingNotifier{}, publisher: &recordingPublisher{}}
	base := []Option{
		WithAssigner(assign.New(tables, assign.WithPicker(assign.FirstPicker))),
		WithNotifier(f.notifier),
		WithPublisher(f.publisher),
	}
	f.svc = New(st, tables, append(base, opts...)...)
	return f
}

func retailFields() model.Fields {
	return model.Fields{
		"insured_name":      "Acme Retail",
		"policy_type":       "Cyber Liability",
		"effective_date":    "2026-01-01",
		"industry":          "retail",
		"coverage_amount":   "$500,000",
		"security_measures": "mfa, encryption, firewall",
		"contact_email":     "risk@acme.com",
	}
}

func historyActions(t *testing.T, st store.Store, id string) []model.HistoryAction {
	t.Helper()
	entries, err := st.ListHistory(context.Background(), id)
	require.NoError(t, err)
	out := make([]model.HistoryAction, len(entries))
	for i, e := range entries {
		out[i] = e.Action
	}
	return out
}

func TestIntake_CompleteSubmissionIsAssigned(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Intake(ctx, Request{
		MessageID: "msg-1",
		From:      "broker@example.com",
		Subject:   "New cyber submission - Acme",
		Fields:    retailFields(),
	})
	require.NoError(t, err)

	item := res.WorkItem
	assert.Equal(t, model.StatusAssigned, item.Status)
	assert.Equal(t, "Michael Brown", item.AssignedTo)
	assert.Equal(t, "msg-1", item.SubmissionRef)
	assert.Equal(t, "New cyber submission - Acme", item.Title)
	assert.Equal(t, "broker@example.com", item.BrokerEmail)
	assert.Equal(t, "retail", item.Industry)
	assert.Equal(t, model.ValidationComplete, item.Validation.Status)
	require.NotNil(t, item.CoverageAmount)
	assert.InDelta(t, 500000.0, *item.CoverageAmount, 0.001)
	assert.Equal(t, model.ActionApprove, res.Recommendation.Action)

	stored, err := f.store.GetWorkItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAssigned, stored.Status)
	assert.Equal(t, "Michael Brown", stored.AssignedTo)

	ra, err := f.store.GetAssessment(ctx, item.ID)
	require.NoError(t, err)
	assert.InDelta(t, res.Assessment.OverallScore, ra.OverallScore, 0.001)

	assert.Equal(t, []model.HistoryAction{
		model.HistoryCreated, model.HistoryRiskAssessed, model.HistoryUpdated, model.HistoryAssigned,
	}, historyActions(t, f.store, item.ID))

	assert.Equal(t, []string{rules.TemplateAssignment}, f.notifier.templates())
	assert.Equal(t, "Michael Brown", f.notifier.msgs[0].Recipient)
	assert.Equal(t, []string{events.TypeWorkItemAssigned, events.TypeWorkItemCreated}, f.publisher.types())
}

func TestIntake_Duplicate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Intake(ctx, Request{MessageID: "dup", Fields: retailFields()})
	require.NoError(t, err)

	_, err = f.svc.Intake(ctx, Request{MessageID: "dup", Fields: retailFields()})
	assert.True(t, errors.Is(err, ErrDuplicate))

	items, err := f.store.ListWorkItems(ctx, store.WorkItemFilter{})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestIntake_IncompleteStaysPending(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	fields := retailFields()
	delete(fields, "effective_date")
	res, err := f.svc.Intake(context.Background(), Request{MessageID: "m", From: "broker@example.com", Fields: fields})
	require.NoError(t, err)

	assert.Equal(t, model.StatusPending, res.WorkItem.Status)
	assert.Empty(t, res.WorkItem.AssignedTo)
	assert.Equal(t, model.ValidationIncomplete, res.WorkItem.Validation.Status)
	assert.Equal(t, []string{"effective_date"}, res.WorkItem.Validation.MissingFields)
	assert.Equal(t, model.ActionRequestInfo, res.Recommendation.Action)
	assert.Empty(t, f.notifier.templates())
	assert.Equal(t, []string{events.TypeWorkItemCreated}, f.publisher.types())
}

func TestIntake_AutoRejectNotifiesBroker(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	fields := retailFields()
	fields["coverage_amount"] = 99_999
	res, err := f.svc.Intake(context.Background(), Request{MessageID: "low", From: "broker@example.com", Fields: fields})
	require.NoError(t, err)

	assert.Equal(t, model.StatusRejected, res.WorkItem.Status)
	assert.Equal(t, model.ValidationRejected, res.WorkItem.Validation.Status)
	assert.Equal(t, "Coverage amount too low (minimum $100,000)", res.WorkItem.Validation.Reason)
	assert.Empty(t, res.WorkItem.AssignedTo)
	assert.Equal(t, model.ActionDecline, res.Recommendation.Action)

	require.Equal(t, []string{rules.TemplateRejection}, f.notifier.templates())
	assert.Equal(t, "broker@example.com", f.notifier.msgs[0].Recipient)
	assert.Contains(t, f.notifier.msgs[0].Body, "Coverage amount too low")
}

func TestIntake_AutoRejectBoundary(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	fields := retailFields()
	fields["coverage_amount"] = "100,000"
	res, err := f.svc.Intake(context.Background(), Request{Fields: fields})
	require.NoError(t, err)
	assert.Equal(t, model.StatusAssigned, res.WorkItem.Status)
}

func TestIntake_UnknownCoverageSkipsAutoReject(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	fields := retailFields()
	delete(fields, "coverage_amount")
	res, err := f.svc.Intake(context.Background(), Request{Fields: fields})
	require.NoError(t, err)

	assert.Equal(t, model.ValidationComplete, res.WorkItem.Validation.Status)
	assert.Equal(t, model.StatusAssigned, res.WorkItem.Status)
	assert.Nil(t, res.WorkItem.CoverageAmount)
	assert.Equal(t, "Acme Retail", res.WorkItem.Title)
}

func TestIntake_UsesExtractor(t *testing.T) {
	t.Parallel()
	ext := &fakeExtractor{fields: retailFields()}
	f := newFixture(t, WithExtractor(ext))

	res, err := f.svc.Intake(context.Background(), Request{
		MessageID: "e1",
		From:      "broker@example.com",
		Subject:   "Cyber quote",
		Body:      "Please quote Acme Retail for $500k.",
	})
	require.NoError(t, err)
	assert.Contains(t, ext.text, "Email Subject: Cyber quote")
	assert.Contains(t, ext.text, "Please quote Acme Retail")
	assert.Equal(t, model.StatusAssigned, res.WorkItem.Status)

	ext.err = errors.New("llm down")
	_, err = f.svc.Intake(context.Background(), Request{MessageID: "e2", Subject: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "intake: extract fields")
}

func TestIntake_FailedMessageCanRetry(t *testing.T) {
	t.Parallel()
	ext := &fakeExtractor{err: errors.New("llm down")}
	f := newFixture(t, WithExtractor(ext))
	ctx := context.Background()
	req := Request{MessageID: "retry-1", From: "broker@example.com", Subject: "Cyber quote"}

	_, err := f.svc.Intake(ctx, req)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrDuplicate))

	ext.err = nil
	ext.fields = retailFields()
	res, err := f.svc.Intake(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "retry-1", res.WorkItem.SubmissionRef)

	_, err = f.svc.Intake(ctx, req)
	assert.True(t, errors.Is(err, ErrDuplicate))
}

func TestIntake_StoreFailureReleasesMessage(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Close())

	_, err := f.svc.Intake(ctx, Request{MessageID: "closed", Fields: retailFields()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "intake: create work item")

	first, err := f.svc.deduper.FirstSeen(ctx, "closed")
	require.NoError(t, err)
	assert.True(t, first)
}

func TestIntake_NormalizedPriority(t *testing.T) {
	t.Parallel()

	raw := newFixture(t)
	res, err := raw.svc.Intake(context.Background(), Request{Fields: retailFields()})
	require.NoError(t, err)
	assert.Equal(t, model.PriorityHigh, res.WorkItem.Priority)

	scaled := newFixture(t, WithNormalizedPriority(true))
	res, err = scaled.svc.Intake(context.Background(), Request{Fields: retailFields()})
	require.NoError(t, err)
	assert.Equal(t, scaled.svc.tables.PriorityForRiskScore(res.Assessment.OverallScore/100), res.WorkItem.Priority)
}

func TestEvaluate_Stateless(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	ev := f.svc.Evaluate(retailFields(), nil)
	assert.Equal(t, model.ValidationComplete, ev.Validation.Status)
	assert.Equal(t, rules.TierJunior, ev.Routing.Tier)
	assert.NotEmpty(t, ev.Assessment.Scorer)

	items, err := f.store.ListWorkItems(context.Background(), store.WorkItemFilter{})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestEvaluate_IncompleteNotAutoRejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	fields := retailFields()
	delete(fields, "effective_date")
	fields["coverage_amount"] = "$50,000"

	ev := f.svc.Evaluate(fields, nil)
	assert.Equal(t, model.ValidationIncomplete, ev.Validation.Status)
	assert.Equal(t, []string{"effective_date"}, ev.Validation.MissingFields)
	assert.Empty(t, ev.Validation.Reason)
	assert.Equal(t, model.ActionRequestInfo, ev.Recommendation.Action)

	fields["effective_date"] = "2026-01-01"
	ev = f.svc.Evaluate(fields, nil)
	assert.Equal(t, model.ValidationRejected, ev.Validation.Status)
	assert.Equal(t, "Coverage amount too low (minimum $100,000)", ev.Validation.Reason)
}

func TestEmailText(t *testing.T) {
	t.Parallel()

	got := emailText(Request{})
	assert.Equal(t, "Email Subject: No subject\nFrom: Unknown sender\nEmail Body:\nNo body content\n", got)
	assert.True(t, strings.HasPrefix(emailText(Request{Subject: "S", From: "a@b.com", Body: "B"}), "Email Subject: S\nFrom: a@b.com\n"))
}

func TestSyncPolicy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.svc.SyncPolicy(ctx, "any")
		assert.True(t, errors.Is(err, ErrPolicySyncDisabled))
	})

	t.Run("success stores refs", func(t *testing.T) {
		t.Parallel()
		syncer := &fakeSyncer{ref: model.PolicyRef{AccountID: "pc:1", AccountNumber: "A-100", JobID: "pc:j1", JobNumber: "J-200"}}
		f := newFixture(t, WithPolicySyncer(syncer))
		res, err := f.svc.Intake(ctx, Request{Fields: retailFields()})
		require.NoError(t, err)

		ref, err := f.svc.SyncPolicy(ctx, res.WorkItem.ID)
		require.NoError(t, err)
		assert.Equal(t, "J-200", ref.JobNumber)
		assert.False(t, ref.SyncedAt.IsZero())

		stored, err := f.store.GetWorkItem(ctx, res.WorkItem.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.Policy)
		assert.Equal(t, "A-100", stored.Policy.AccountNumber)
	})

	t.Run("transient failure is queued", func(t *testing.T) {
		t.Parallel()
		syncer := &fakeSyncer{err: resilience.HTTPError("guidewire", 503, "unavailable")}
		f := newFixture(t, WithPolicySyncer(syncer))
		res, err := f.svc.Intake(ctx, Request{Fields: retailFields()})
		require.NoError(t, err)

		_, err = f.svc.SyncPolicy(ctx, res.WorkItem.ID)
		require.Error(t, err)

		due, err := f.store.DueSyncFailures(ctx, time.Now().Add(time.Hour), 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, res.WorkItem.ID, due[0].WorkItemID)
		assert.Equal(t, OperationSyncPolicy, due[0].Operation)
		assert.Equal(t, resilience.ErrorTransient, due[0].ErrorType)
	})

	t.Run("permanent failure is not queued", func(t *testing.T) {
		t.Parallel()
		syncer := &fakeSyncer{err: errors.New("invalid producer code")}
		f := newFixture(t, WithPolicySyncer(syncer))
		res, err := f.svc.Intake(ctx, Request{Fields: retailFields()})
		require.NoError(t, err)

		_, err = f.svc.SyncPolicy(ctx, res.WorkItem.ID)
		require.Error(t, err)

		due, err := f.store.DueSyncFailures(ctx, time.Now().Add(time.Hour), 10)
		require.NoError(t, err)
		assert.Empty(t, due)
	})
}

func TestRetrySync(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	syncer := &fakeSyncer{err: resilience.HTTPError("guidewire", 502, "bad gateway")}
	f := newFixture(t, WithPolicySyncer(syncer), WithSyncRetry(resilience.RetryConfig{InitialBackoff: time.Minute, Multiplier: 2}, 3))
	res, err := f.svc.Intake(ctx, Request{Fields: retailFields()})
	require.NoError(t, err)
	_, err = f.svc.SyncPolicy(ctx, res.WorkItem.ID)
	require.Error(t, err)

	due, err := f.store.DueSyncFailures(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 3, due[0].MaxRetries)

	require.Error(t, f.svc.RetrySync(ctx, due[0]))
	due, err = f.store.DueSyncFailures(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].RetryCount)

	syncer.err = nil
	syncer.ref = model.PolicyRef{JobNumber: "J-1"}
	require.NoError(t, f.svc.RetrySync(ctx, due[0]))
	due, err = f.store.DueSyncFailures(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestRetrySync_OrphanedEntryResolved(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, WithPolicySyncer(&fakeSyncer{}))

	entry := resilience.NewDLQEntry("gone", OperationSyncPolicy, resilience.HTTPError("guidewire", 503, ""), 3, resilience.RetryConfig{}, time.Now().Add(-time.Hour))
	require.NoError(t, f.store.EnqueueSyncFailure(ctx, entry))
	require.NoError(t, f.svc.RetrySync(ctx, entry))

	due, err := f.store.DueSyncFailures(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}
