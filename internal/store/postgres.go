package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/uw-workbench/internal/db"
	"github.com/sells-group/uw-workbench/internal/model"
	"github.com/sells-group/uw-workbench/internal/resilience"
)

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres connects a pool and wraps it.
func NewPostgres(ctx context.Context, connString string, cfg db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS work_items (
	id              TEXT PRIMARY KEY,
	submission_ref  TEXT NOT NULL DEFAULT '',
	title           TEXT NOT NULL DEFAULT '',
	broker_email    TEXT,
	status          TEXT NOT NULL DEFAULT 'pending',
	priority        TEXT NOT NULL DEFAULT 'medium',
	assigned_to     TEXT,
	risk_score      DOUBLE PRECISION,
	risk_categories JSONB,
	industry        TEXT,
	company_size    TEXT,
	policy_type     TEXT,
	coverage_amount DOUBLE PRECISION,
	validation      JSONB NOT NULL DEFAULT '{}',
	fields          JSONB NOT NULL DEFAULT '{}',
	policy          JSONB,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_work_items_status ON work_items(status);
CREATE INDEX IF NOT EXISTS idx_work_items_assigned_to ON work_items(assigned_to);
CREATE INDEX IF NOT EXISTS idx_work_items_status_updated ON work_items(status, updated_at);

CREATE TABLE IF NOT EXISTS work_item_history (
	id           TEXT PRIMARY KEY,
	work_item_id TEXT NOT NULL REFERENCES work_items(id) ON DELETE CASCADE,
	action       TEXT NOT NULL,
	performed_by TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL DEFAULT '',
	details      JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_history_work_item ON work_item_history(work_item_id, created_at);

CREATE TABLE IF NOT EXISTS risk_assessments (
	work_item_id  TEXT PRIMARY KEY REFERENCES work_items(id) ON DELETE CASCADE,
	overall_score DOUBLE PRECISION NOT NULL,
	risk_level    TEXT NOT NULL,
	scorer        TEXT NOT NULL DEFAULT '',
	assessment    JSONB NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS underwriters (
	name   TEXT PRIMARY KEY,
	tier   TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS sync_failures (
	id             TEXT PRIMARY KEY,
	work_item_id   TEXT NOT NULL,
	operation      TEXT NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sync_failures_next_retry ON sync_failures(next_retry_at);
`

// Migrate creates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const workItemColumns = `id, submission_ref, title, broker_email, status, priority, assigned_to,
	risk_score, risk_categories, industry, company_size, policy_type, coverage_amount,
	validation, fields, policy, created_at, updated_at`

// CreateWorkItem inserts item, assigning an ID and timestamps when unset.
func (s *PostgresStore) CreateWorkItem(ctx context.Context, item *model.WorkItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = item.CreatedAt
	}
	j, err := encodeWorkItem(item)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO work_items (`+workItemColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		item.ID, item.SubmissionRef, item.Title, nullString(item.BrokerEmail),
		string(item.Status), string(item.Priority), nullString(item.AssignedTo),
		item.RiskScore, nullable(j.categories), nullString(item.Industry),
		nullString(item.CompanySize), nullString(item.PolicyType), item.CoverageAmount,
		j.validation, j.fields, nullable(j.policy), item.CreatedAt, item.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert work item %s", item.ID)
}

// GetWorkItem loads one work item.
func (s *PostgresStore) GetWorkItem(ctx context.Context, id string) (*model.WorkItem, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+workItemColumns+` FROM work_items WHERE id = $1`, id)
	item, err := scanPostgresWorkItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: work item %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get work item %s", id)
	}
	return item, nil
}

// ListWorkItems returns work items newest first.
func (s *PostgresStore) ListWorkItems(ctx context.Context, filter WorkItemFilter) ([]model.WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items WHERE true`
	var args []any
	add := func(clause string, v any) {
		args = append(args, v)
		query += fmt.Sprintf(clause, len(args))
	}
	if filter.Status != "" {
		add(` AND status = $%d`, string(filter.Status))
	}
	if filter.Priority != "" {
		add(` AND priority = $%d`, string(filter.Priority))
	}
	if filter.AssignedTo != "" {
		add(` AND assigned_to = $%d`, filter.AssignedTo)
	}
	query += ` ORDER BY created_at DESC`
	add(` LIMIT $%d`, filter.limit())
	if filter.Offset > 0 {
		add(` OFFSET $%d`, filter.Offset)
	}
	return s.queryWorkItems(ctx, "list work items", query, args...)
}

// StaleWorkItems returns items in status not updated since olderThan.
func (s *PostgresStore) StaleWorkItems(ctx context.Context, status model.Status, olderThan time.Time) ([]model.WorkItem, error) {
	return s.queryWorkItems(ctx, "stale work items",
		`SELECT `+workItemColumns+` FROM work_items WHERE status = $1 AND updated_at < $2 ORDER BY updated_at ASC`,
		string(status), olderThan)
}

func (s *PostgresStore) queryWorkItems(ctx context.Context, op, query string, args ...any) ([]model.WorkItem, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: %s", op)
	}
	defer rows.Close()

	items := []model.WorkItem{}
	for rows.Next() {
		item, err := scanPostgresWorkItem(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s", op)
		}
		items = append(items, *item)
	}
	return items, eris.Wrapf(rows.Err(), "postgres: iterate %s", op)
}

// UpdateWorkItem overwrites the mutable columns and bumps updated_at.
func (s *PostgresStore) UpdateWorkItem(ctx context.Context, item *model.WorkItem) error {
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = time.Now().UTC()
	}
	j, err := encodeWorkItem(item)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE work_items SET title = $1, broker_email = $2, status = $3, priority = $4,
		 assigned_to = $5, risk_score = $6, risk_categories = $7, industry = $8,
		 company_size = $9, policy_type = $10, coverage_amount = $11, validation = $12,
		 fields = $13, policy = $14, updated_at = $15
		 WHERE id = $16`,
		item.Title, nullString(item.BrokerEmail), string(item.Status), string(item.Priority),
		nullString(item.AssignedTo), item.RiskScore, nullable(j.categories), nullString(item.Industry),
		nullString(item.CompanySize), nullString(item.PolicyType), item.CoverageAmount, j.validation,
		j.fields, nullable(j.policy), item.UpdatedAt, item.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update work item %s", item.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: work item %s", item.ID)
	}
	return nil
}

func scanPostgresWorkItem(row pgx.Row) (*model.WorkItem, error) {
	var item model.WorkItem
	var j workItemJSON
	var broker, assigned, industry, size, policyType *string
	if err := row.Scan(&item.ID, &item.SubmissionRef, &item.Title, &broker, &item.Status,
		&item.Priority, &assigned, &item.RiskScore, &j.categories, &industry, &size,
		&policyType, &item.CoverageAmount, &j.validation, &j.fields, &j.policy,
		&item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}
	item.BrokerEmail = derefString(broker)
	item.AssignedTo = derefString(assigned)
	item.Industry = derefString(industry)
	item.CompanySize = derefString(size)
	item.PolicyType = derefString(policyType)
	if err := j.decodeInto(&item); err != nil {
		return nil, err
	}
	return &item, nil
}

// AddHistory appends an audit entry.
func (s *PostgresStore) AddHistory(ctx context.Context, entry model.HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	var details []byte
	if entry.Details != nil {
		var err error
		if details, err = json.Marshal(entry.Details); err != nil {
			return eris.Wrap(err, "postgres: marshal history details")
		}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO work_item_history (id, work_item_id, action, performed_by, description, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.WorkItemID, string(entry.Action), entry.PerformedBy,
		entry.Description, nullable(details), entry.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: add history for %s", entry.WorkItemID)
}

// ListHistory returns a work item's entries oldest first.
func (s *PostgresStore) ListHistory(ctx context.Context, workItemID string) ([]model.HistoryEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, work_item_id, action, performed_by, description, details, created_at
		 FROM work_item_history WHERE work_item_id = $1 ORDER BY created_at ASC`,
		workItemID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list history %s", workItemID)
	}
	defer rows.Close()

	entries := []model.HistoryEntry{}
	for rows.Next() {
		var e model.HistoryEntry
		var details []byte
		if err := rows.Scan(&e.ID, &e.WorkItemID, &e.Action, &e.PerformedBy,
			&e.Description, &details, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan history")
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal history details")
			}
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: iterate history")
}

// SaveAssessment replaces the current assessment for a work item.
func (s *PostgresStore) SaveAssessment(ctx context.Context, workItemID string, ra model.RiskAssessment) error {
	data, err := json.Marshal(ra)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal assessment")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO risk_assessments (work_item_id, overall_score, risk_level, scorer, assessment, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (work_item_id) DO UPDATE SET
		   overall_score = EXCLUDED.overall_score, risk_level = EXCLUDED.risk_level,
		   scorer = EXCLUDED.scorer, assessment = EXCLUDED.assessment, updated_at = EXCLUDED.updated_at`,
		workItemID, ra.OverallScore, string(ra.RiskLevel), ra.Scorer, data, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save assessment %s", workItemID)
}

// GetAssessment loads the current assessment.
func (s *PostgresStore) GetAssessment(ctx context.Context, workItemID string) (*model.RiskAssessment, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT assessment FROM risk_assessments WHERE work_item_id = $1`, workItemID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: assessment %s", workItemID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get assessment %s", workItemID)
	}
	var ra model.RiskAssessment
	if err := json.Unmarshal(data, &ra); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal assessment")
	}
	return &ra, nil
}

// ListUnderwriters returns the roster ordered by tier then name.
func (s *PostgresStore) ListUnderwriters(ctx context.Context) ([]model.Underwriter, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, tier, active FROM underwriters ORDER BY tier, name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list underwriters")
	}
	defer rows.Close()

	out := []model.Underwriter{}
	for rows.Next() {
		var u model.Underwriter
		if err := rows.Scan(&u.Name, &u.Tier, &u.Active); err != nil {
			return nil, eris.Wrap(err, "postgres: scan underwriter")
		}
		out = append(out, u)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate underwriters")
}

// UpsertUnderwriters bulk-merges the roster keyed by name.
func (s *PostgresStore) UpsertUnderwriters(ctx context.Context, roster []model.Underwriter) (int64, error) {
	rows := make([][]any, len(roster))
	for i, u := range roster {
		rows[i] = []any{u.Name, u.Tier, u.Active}
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "underwriters",
		Columns:      []string{"name", "tier", "active"},
		ConflictKeys: []string{"name"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert underwriters")
}

// EnqueueSyncFailure stores or replaces a dead letter.
func (s *PostgresStore) EnqueueSyncFailure(ctx context.Context, e resilience.DLQEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sync_failures
		 (id, work_item_id, operation, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
		   error = EXCLUDED.error, error_type = EXCLUDED.error_type, retry_count = EXCLUDED.retry_count,
		   next_retry_at = EXCLUDED.next_retry_at, last_failed_at = EXCLUDED.last_failed_at`,
		e.ID, e.WorkItemID, e.Operation, e.Error, e.ErrorType, e.RetryCount,
		e.MaxRetries, e.NextRetryAt, e.CreatedAt, e.LastFailedAt,
	)
	return eris.Wrap(err, "postgres: enqueue sync failure")
}

// DueSyncFailures returns retryable dead letters due at or before now.
func (s *PostgresStore) DueSyncFailures(ctx context.Context, now time.Time, limit int) ([]resilience.DLQEntry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, work_item_id, operation, error, error_type, retry_count, max_retries,
		        next_retry_at, created_at, last_failed_at
		 FROM sync_failures
		 WHERE next_retry_at <= $1 AND retry_count < max_retries
		 ORDER BY next_retry_at ASC LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: due sync failures")
	}
	defer rows.Close()

	out := []resilience.DLQEntry{}
	for rows.Next() {
		var e resilience.DLQEntry
		if err := rows.Scan(&e.ID, &e.WorkItemID, &e.Operation, &e.Error, &e.ErrorType,
			&e.RetryCount, &e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan sync failure")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate sync failures")
}

// ResolveSyncFailure deletes a dead letter after a successful retry.
func (s *PostgresStore) ResolveSyncFailure(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sync_failures WHERE id = $1`, id)
	return eris.Wrapf(err, "postgres: resolve sync failure %s", id)
}

// BumpSyncFailure records another failed retry.
func (s *PostgresStore) BumpSyncFailure(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sync_failures
		 SET retry_count = retry_count + 1, next_retry_at = $1, error = $2, last_failed_at = $3
		 WHERE id = $4`,
		nextRetryAt, lastErr, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: bump sync failure %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: sync failure %s", id)
	}
	return nil
}

// RiskDistribution buckets scored work items.
func (s *PostgresStore) RiskDistribution(ctx context.Context) (model.RiskDistribution, error) {
	var d model.RiskDistribution
	err := s.pool.QueryRow(ctx, riskDistributionSQL).Scan(&d.Total, &d.LowRisk, &d.MediumRisk, &d.HighRisk)
	return d, eris.Wrap(err, "postgres: risk distribution")
}
