package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/uw-workbench/internal/model"
	"github.com/sells-group/uw-workbench/internal/resilience"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ptr(v float64) *float64 { return &v }

func sampleWorkItem(ref string, score float64) *model.WorkItem {
	return &model.WorkItem{
		SubmissionRef:  ref,
		Title:          "Cyber Insurance - " + ref,
		BrokerEmail:    "broker@example.com",
		Status:         model.StatusPending,
		Priority:       model.PriorityMedium,
		RiskScore:      ptr(score),
		RiskCategories: &model.RiskCategories{Technical: 40, Operational: 45, Financial: 30, Compliance: 35},
		Industry:       "retail",
		CompanySize:    "medium",
		PolicyType:     "cyber",
		CoverageAmount: ptr(1_000_000),
		Validation:     model.ValidationResult{Status: model.ValidationComplete, MissingFields: []string{}},
		Fields:         model.Fields{"company_name": ref, "employee_count": float64(120)},
	}
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("work item round trip", func(t *testing.T) {
		s := newStore(t)
		item := sampleWorkItem("Acme", 52.5)
		require.NoError(t, s.CreateWorkItem(ctx, item))
		require.NotEmpty(t, item.ID)
		assert.False(t, item.CreatedAt.IsZero())

		got, err := s.GetWorkItem(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, item.Title, got.Title)
		assert.Equal(t, model.StatusPending, got.Status)
		require.NotNil(t, got.RiskScore)
		assert.InDelta(t, 52.5, *got.RiskScore, 0.001)
		require.NotNil(t, got.RiskCategories)
		assert.InDelta(t, 45.0, got.RiskCategories.Operational, 0.001)
		assert.Equal(t, "Acme", got.Fields["company_name"])
		assert.Equal(t, model.ValidationComplete, got.Validation.Status)
		assert.Nil(t, got.Policy)
		assert.Empty(t, got.AssignedTo)
	})

	t.Run("get missing work item", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetWorkItem(ctx, "nope")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("update work item", func(t *testing.T) {
		s := newStore(t)
		item := sampleWorkItem("Beta", 30)
		require.NoError(t, s.CreateWorkItem(ctx, item))

		item.Status = model.StatusAssigned
		item.AssignedTo = "Sarah Mitchell"
		item.Policy = &model.PolicyRef{AccountID: "pc:1", JobNumber: "J-100"}
		require.NoError(t, s.UpdateWorkItem(ctx, item))

		got, err := s.GetWorkItem(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusAssigned, got.Status)
		assert.Equal(t, "Sarah Mitchell", got.AssignedTo)
		require.NotNil(t, got.Policy)
		assert.Equal(t, "J-100", got.Policy.JobNumber)

		touched := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
		item.UpdatedAt = touched
		require.NoError(t, s.UpdateWorkItem(ctx, item))
		assert.True(t, touched.Equal(item.UpdatedAt))
		got, err = s.GetWorkItem(ctx, item.ID)
		require.NoError(t, err)
		assert.True(t, touched.Equal(got.UpdatedAt), got.UpdatedAt)

		stale, err := s.StaleWorkItems(ctx, model.StatusAssigned, touched.Add(time.Hour))
		require.NoError(t, err)
		require.Len(t, stale, 1)
		assert.Equal(t, item.ID, stale[0].ID)

		item.UpdatedAt = time.Time{}
		require.NoError(t, s.UpdateWorkItem(ctx, item))
		assert.False(t, item.UpdatedAt.IsZero())

		missing := sampleWorkItem("Ghost", 10)
		missing.ID = "ghost"
		assert.True(t, errors.Is(s.UpdateWorkItem(ctx, missing), ErrNotFound))
	})

	t.Run("list work items with filters", func(t *testing.T) {
		s := newStore(t)
		a := sampleWorkItem("A", 20)
		b := sampleWorkItem("B", 60)
		b.Status = model.StatusAssigned
		b.AssignedTo = "Lisa Chen"
		b.Priority = model.PriorityHigh
		c := sampleWorkItem("C", 80)
		for _, it := range []*model.WorkItem{a, b, c} {
			require.NoError(t, s.CreateWorkItem(ctx, it))
		}

		all, err := s.ListWorkItems(ctx, WorkItemFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		pending, err := s.ListWorkItems(ctx, WorkItemFilter{Status: model.StatusPending})
		require.NoError(t, err)
		assert.Len(t, pending, 2)

		mine, err := s.ListWorkItems(ctx, WorkItemFilter{AssignedTo: "Lisa Chen", Priority: model.PriorityHigh})
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, b.ID, mine[0].ID)

		page, err := s.ListWorkItems(ctx, WorkItemFilter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		assert.Len(t, page, 1)

		none, err := s.ListWorkItems(ctx, WorkItemFilter{Status: model.StatusPolicyIssued})
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	})

	t.Run("history oldest first", func(t *testing.T) {
		s := newStore(t)
		item := sampleWorkItem("Hist", 40)
		require.NoError(t, s.CreateWorkItem(ctx, item))

		base := time.Now().UTC().Truncate(time.Second)
		require.NoError(t, s.AddHistory(ctx, model.HistoryEntry{
			WorkItemID: item.ID, Action: model.HistoryCreated, PerformedBy: "system",
			Description: "Work item created", CreatedAt: base,
		}))
		require.NoError(t, s.AddHistory(ctx, model.HistoryEntry{
			WorkItemID: item.ID, Action: model.HistoryUpdated, PerformedBy: "system",
			Description: "Status changed from pending to assigned",
			Details:     map[string]any{"field": "status", "old_value": "pending", "new_value": "assigned"},
			CreatedAt:   base.Add(time.Minute),
		}))

		entries, err := s.ListHistory(ctx, item.ID)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, model.HistoryCreated, entries[0].Action)
		assert.Nil(t, entries[0].Details)
		assert.Equal(t, "assigned", entries[1].Details["new_value"])

		empty, err := s.ListHistory(ctx, "other")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("assessment upsert", func(t *testing.T) {
		s := newStore(t)
		item := sampleWorkItem("Assess", 40)
		require.NoError(t, s.CreateWorkItem(ctx, item))

		_, err := s.GetAssessment(ctx, item.ID)
		assert.True(t, errors.Is(err, ErrNotFound))

		ra := model.RiskAssessment{OverallScore: 41, RiskLevel: model.RiskMedium, Scorer: "basic"}
		require.NoError(t, s.SaveAssessment(ctx, item.ID, ra))
		ra.OverallScore = 77
		ra.RiskLevel = model.RiskHigh
		ra.RiskFactors = []model.RiskFactor{{Category: model.CategoryTechnical, Factor: "No MFA", ScoreImpact: 25}}
		require.NoError(t, s.SaveAssessment(ctx, item.ID, ra))

		got, err := s.GetAssessment(ctx, item.ID)
		require.NoError(t, err)
		assert.InDelta(t, 77.0, got.OverallScore, 0.001)
		assert.Equal(t, model.RiskHigh, got.RiskLevel)
		require.Len(t, got.RiskFactors, 1)
		assert.Equal(t, "No MFA", got.RiskFactors[0].Factor)
	})

	t.Run("underwriters roster", func(t *testing.T) {
		s := newStore(t)
		_, err := s.UpsertUnderwriters(ctx, []model.Underwriter{
			{Name: "Sarah Mitchell", Tier: "senior", Active: true},
			{Name: "Lisa Chen", Tier: "standard", Active: true},
		})
		require.NoError(t, err)
		_, err = s.UpsertUnderwriters(ctx, []model.Underwriter{
			{Name: "Lisa Chen", Tier: "standard", Active: false},
		})
		require.NoError(t, err)

		roster, err := s.ListUnderwriters(ctx)
		require.NoError(t, err)
		require.Len(t, roster, 2)
		assert.Equal(t, "Sarah Mitchell", roster[0].Name)
		assert.Equal(t, "Lisa Chen", roster[1].Name)
		assert.False(t, roster[1].Active)
	})

	t.Run("sync failures", func(t *testing.T) {
		s := newStore(t)
		now := time.Now().UTC().Truncate(time.Second)
		due := resilience.DLQEntry{
			ID: "d1", WorkItemID: "w1", Operation: "sync_policy", Error: "503",
			ErrorType: resilience.ErrorTransient, MaxRetries: 3,
			NextRetryAt: now.Add(-time.Minute), CreatedAt: now, LastFailedAt: now,
		}
		later := due
		later.ID = "d2"
		later.NextRetryAt = now.Add(time.Hour)
		spent := due
		spent.ID = "d3"
		spent.RetryCount = 3
		for _, e := range []resilience.DLQEntry{due, later, spent} {
			require.NoError(t, s.EnqueueSyncFailure(ctx, e))
		}

		got, err := s.DueSyncFailures(ctx, now, 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "d1", got[0].ID)

		require.NoError(t, s.BumpSyncFailure(ctx, "d1", now.Add(2*time.Minute), "still 503"))
		got, err = s.DueSyncFailures(ctx, now.Add(3*time.Minute), 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, 1, got[0].RetryCount)
		assert.Equal(t, "still 503", got[0].Error)

		require.NoError(t, s.ResolveSyncFailure(ctx, "d1"))
		got, err = s.DueSyncFailures(ctx, now.Add(3*time.Minute), 10)
		require.NoError(t, err)
		assert.Empty(t, got)

		assert.True(t, errors.Is(s.BumpSyncFailure(ctx, "missing", now, "x"), ErrNotFound))
	})

	t.Run("risk distribution", func(t *testing.T) {
		s := newStore(t)
		for i, score := range []float64{10, 40, 55, 70, 71, 95} {
			require.NoError(t, s.CreateWorkItem(ctx, sampleWorkItem(string(rune('a'+i)), score)))
		}
		unscored := sampleWorkItem("u", 0)
		unscored.RiskScore = nil
		require.NoError(t, s.CreateWorkItem(ctx, unscored))

		d, err := s.RiskDistribution(ctx)
		require.NoError(t, err)
		assert.Equal(t, model.RiskDistribution{LowRisk: 2, MediumRisk: 2, HighRisk: 2, Total: 7}, d)
	})

	t.Run("stale work items", func(t *testing.T) {
		s := newStore(t)
		old := sampleWorkItem("Old", 50)
		old.Status = model.StatusPendingInfo
		old.CreatedAt = time.Now().UTC().Add(-72 * time.Hour)
		old.UpdatedAt = old.CreatedAt
		fresh := sampleWorkItem("Fresh", 50)
		fresh.Status = model.StatusPendingInfo
		require.NoError(t, s.CreateWorkItem(ctx, old))
		require.NoError(t, s.CreateWorkItem(ctx, fresh))

		stale, err := s.StaleWorkItems(ctx, model.StatusPendingInfo, time.Now().UTC().Add(-48*time.Hour))
		require.NoError(t, err)
		require.Len(t, stale, 1)
		assert.Equal(t, old.ID, stale[0].ID)
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(ctx))
	})
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()
	storeTestSuite(t, func(t *testing.T) Store { return newTestSQLiteStore(t) })
}

func TestSQLiteStore_MigrateIdempotent(t *testing.T) {
	t.Parallel()
	s := newTestSQLiteStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestWorkItemFilter_Limit(t *testing.T) {
	t.Parallel()
	assert.Equal(t, DefaultListLimit, WorkItemFilter{}.limit())
	assert.Equal(t, DefaultListLimit, WorkItemFilter{Limit: -5}.limit())
	assert.Equal(t, 25, WorkItemFilter{Limit: 25}.limit())
}
