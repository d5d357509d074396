// Package store persists work items, their audit history, risk assessments,
// the underwriter roster, and failed policy-system syncs.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/uw-workbench/internal/model"
	"github.com/sells-group/uw-workbench/internal/resilience"
)

// ErrNotFound is returned when a lookup or update matches no row.
var ErrNotFound = eris.New("not found")

// WorkItemFilter narrows ListWorkItems. Empty fields match everything.
type WorkItemFilter struct {
	Status     model.Status   `json:"status,omitempty"`
	Priority   model.Priority `json:"priority,omitempty"`
	AssignedTo string         `json:"assigned_to,omitempty"`
	Limit      int            `json:"limit,omitempty"`
	Offset     int            `json:"offset,omitempty"`
}

// DefaultListLimit caps list queries without an explicit limit.
const DefaultListLimit = 100

func (f WorkItemFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// Store is the persistence interface for the workbench.
type Store interface {
	// Work items
	CreateWorkItem(ctx context.Context, item *model.WorkItem) error
	GetWorkItem(ctx context.Context, id string) (*model.WorkItem, error)
	ListWorkItems(ctx context.Context, filter WorkItemFilter) ([]model.WorkItem, error)
	UpdateWorkItem(ctx context.Context, item *model.WorkItem) error

	// History
	AddHistory(ctx context.Context, entry model.HistoryEntry) error
	ListHistory(ctx context.Context, workItemID string) ([]model.HistoryEntry, error)

	// Risk assessments, one current row per work item
	SaveAssessment(ctx context.Context, workItemID string, ra model.RiskAssessment) error
	GetAssessment(ctx context.Context, workItemID string) (*model.RiskAssessment, error)

	// Underwriters
	ListUnderwriters(ctx context.Context) ([]model.Underwriter, error)
	UpsertUnderwriters(ctx context.Context, roster []model.Underwriter) (int64, error)

	// Failed policy-system syncs
	EnqueueSyncFailure(ctx context.Context, entry resilience.DLQEntry) error
	DueSyncFailures(ctx context.Context, now time.Time, limit int) ([]resilience.DLQEntry, error)
	ResolveSyncFailure(ctx context.Context, id string) error
	BumpSyncFailure(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error

	// Analytics
	RiskDistribution(ctx context.Context) (model.RiskDistribution, error)
	StaleWorkItems(ctx context.Context, status model.Status, olderThan time.Time) ([]model.WorkItem, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// workItemJSON holds the JSON-encoded columns of a work item row.
type workItemJSON struct {
	categories []byte
	validation []byte
	fields     []byte
	policy     []byte
}

func encodeWorkItem(item *model.WorkItem) (workItemJSON, error) {
	var out workItemJSON
	var err error
	if item.RiskCategories != nil {
		if out.categories, err = json.Marshal(item.RiskCategories); err != nil {
			return out, eris.Wrap(err, "store: marshal risk categories")
		}
	}
	if out.validation, err = json.Marshal(item.Validation); err != nil {
		return out, eris.Wrap(err, "store: marshal validation")
	}
	fields := item.Fields
	if fields == nil {
		fields = model.Fields{}
	}
	if out.fields, err = json.Marshal(fields); err != nil {
		return out, eris.Wrap(err, "store: marshal fields")
	}
	if item.Policy != nil {
		if out.policy, err = json.Marshal(item.Policy); err != nil {
			return out, eris.Wrap(err, "store: marshal policy")
		}
	}
	return out, nil
}

func (j workItemJSON) decodeInto(item *model.WorkItem) error {
	if len(j.categories) > 0 {
		item.RiskCategories = &model.RiskCategories{}
		if err := json.Unmarshal(j.categories, item.RiskCategories); err != nil {
			return eris.Wrap(err, "store: unmarshal risk categories")
		}
	}
	if len(j.validation) > 0 {
		if err := json.Unmarshal(j.validation, &item.Validation); err != nil {
			return eris.Wrap(err, "store: unmarshal validation")
		}
	}
	if len(j.fields) > 0 {
		if err := json.Unmarshal(j.fields, &item.Fields); err != nil {
			return eris.Wrap(err, "store: unmarshal fields")
		}
	}
	if len(j.policy) > 0 {
		item.Policy = &model.PolicyRef{}
		if err := json.Unmarshal(j.policy, item.Policy); err != nil {
			return eris.Wrap(err, "store: unmarshal policy")
		}
	}
	return nil
}

// nullable returns nil for an empty slice so the column is stored as NULL.
func nullable(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// riskDistributionSQL buckets scored work items at 40 and 70. Both stores
// share the query.
const riskDistributionSQL = `SELECT
	COUNT(*),
	COALESCE(SUM(CASE WHEN risk_score IS NOT NULL AND risk_score <= 40 THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN risk_score > 40 AND risk_score <= 70 THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN risk_score > 70 THEN 1 ELSE 0 END), 0)
FROM work_items`
