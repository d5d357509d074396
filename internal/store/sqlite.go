package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/uw-workbench/internal/model"
	"github.com/sells-group/uw-workbench/internal/resilience"
)

// SQLiteStore implements Store on modernc.org/sqlite. It is the default for
// local runs and the CLI.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens the database at dsn in WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS work_items (
	id              TEXT PRIMARY KEY,
	submission_ref  TEXT NOT NULL DEFAULT '',
	title           TEXT NOT NULL DEFAULT '',
	broker_email    TEXT,
	status          TEXT NOT NULL DEFAULT 'pending',
	priority        TEXT NOT NULL DEFAULT 'medium',
	assigned_to     TEXT,
	risk_score      REAL,
	risk_categories TEXT,
	industry        TEXT,
	company_size    TEXT,
	policy_type     TEXT,
	coverage_amount REAL,
	validation      TEXT NOT NULL DEFAULT '{}',
	fields          TEXT NOT NULL DEFAULT '{}',
	policy          TEXT,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_work_items_status ON work_items(status);
CREATE INDEX IF NOT EXISTS idx_work_items_assigned_to ON work_items(assigned_to);

CREATE TABLE IF NOT EXISTS work_item_history (
	id           TEXT PRIMARY KEY,
	work_item_id TEXT NOT NULL REFERENCES work_items(id) ON DELETE CASCADE,
	action       TEXT NOT NULL,
	performed_by TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL DEFAULT '',
	details      TEXT,
	created_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_work_item ON work_item_history(work_item_id, created_at);

CREATE TABLE IF NOT EXISTS risk_assessments (
	work_item_id  TEXT PRIMARY KEY REFERENCES work_items(id) ON DELETE CASCADE,
	overall_score REAL NOT NULL,
	risk_level    TEXT NOT NULL,
	scorer        TEXT NOT NULL DEFAULT '',
	assessment    TEXT NOT NULL,
	updated_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS underwriters (
	name   TEXT PRIMARY KEY,
	tier   TEXT NOT NULL,
	active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS sync_failures (
	id             TEXT PRIMARY KEY,
	work_item_id   TEXT NOT NULL,
	operation      TEXT NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  DATETIME NOT NULL,
	created_at     DATETIME NOT NULL,
	last_failed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sync_failures_next_retry ON sync_failures(next_retry_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateWorkItem(ctx context.Context, item *model.WorkItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = item.CreatedAt
	}
	j, err := encodeWorkItem(item)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO work_items (`+workItemColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.SubmissionRef, item.Title, nullString(item.BrokerEmail),
		string(item.Status), string(item.Priority), nullString(item.AssignedTo),
		item.RiskScore, nullText(j.categories), nullString(item.Industry),
		nullString(item.CompanySize), nullString(item.PolicyType), item.CoverageAmount,
		string(j.validation), string(j.fields), nullText(j.policy), item.CreatedAt, item.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert work item %s", item.ID)
}

func (s *SQLiteStore) GetWorkItem(ctx context.Context, id string) (*model.WorkItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+workItemColumns+` FROM work_items WHERE id = ?`, id)
	item, err := scanSQLiteWorkItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: work item %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get work item %s", id)
	}
	return item, nil
}

func (s *SQLiteStore) ListWorkItems(ctx context.Context, filter WorkItemFilter) ([]model.WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Priority != "" {
		query += ` AND priority = ?`
		args = append(args, string(filter.Priority))
	}
	if filter.AssignedTo != "" {
		query += ` AND assigned_to = ?`
		args = append(args, filter.AssignedTo)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, filter.limit())
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}
	return s.queryWorkItems(ctx, "list work items", query, args...)
}

func (s *SQLiteStore) StaleWorkItems(ctx context.Context, status model.Status, olderThan time.Time) ([]model.WorkItem, error) {
	return s.queryWorkItems(ctx, "stale work items",
		`SELECT `+workItemColumns+` FROM work_items WHERE status = ? AND updated_at < ? ORDER BY updated_at ASC`,
		string(status), olderThan.UTC())
}

func (s *SQLiteStore) queryWorkItems(ctx context.Context, op, query string, args ...any) ([]model.WorkItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s", op)
	}
	defer rows.Close()

	items := []model.WorkItem{}
	for rows.Next() {
		item, err := scanSQLiteWorkItem(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s", op)
		}
		items = append(items, *item)
	}
	return items, eris.Wrapf(rows.Err(), "sqlite: iterate %s", op)
}

func (s *SQLiteStore) UpdateWorkItem(ctx context.Context, item *model.WorkItem) error {
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = time.Now().UTC()
	}
	j, err := encodeWorkItem(item)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE work_items SET title = ?, broker_email = ?, status = ?, priority = ?,
		 assigned_to = ?, risk_score = ?, risk_categories = ?, industry = ?,
		 company_size = ?, policy_type = ?, coverage_amount = ?, validation = ?,
		 fields = ?, policy = ?, updated_at = ?
		 WHERE id = ?`,
		item.Title, nullString(item.BrokerEmail), string(item.Status), string(item.Priority),
		nullString(item.AssignedTo), item.RiskScore, nullText(j.categories), nullString(item.Industry),
		nullString(item.CompanySize), nullString(item.PolicyType), item.CoverageAmount, string(j.validation),
		string(j.fields), nullText(j.policy), item.UpdatedAt, item.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update work item %s", item.ID)
	}
	return checkRowsAffected(res, "work item", item.ID)
}

func (s *SQLiteStore) AddHistory(ctx context.Context, entry model.HistoryEntry) error {
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
			return eris.Wrap(err, "sqlite: marshal history details")
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO work_item_history (id, work_item_id, action, performed_by, description, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.WorkItemID, string(entry.Action), entry.PerformedBy,
		entry.Description, nullText(details), entry.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: add history for %s", entry.WorkItemID)
}

func (s *SQLiteStore) ListHistory(ctx context.Context, workItemID string) ([]model.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, work_item_id, action, performed_by, description, details, created_at
		 FROM work_item_history WHERE work_item_id = ? ORDER BY created_at ASC, rowid ASC`,
		workItemID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list history %s", workItemID)
	}
	defer rows.Close()

	entries := []model.HistoryEntry{}
	for rows.Next() {
		var e model.HistoryEntry
		var details sql.NullString
		if err := rows.Scan(&e.ID, &e.WorkItemID, &e.Action, &e.PerformedBy,
			&e.Description, &details, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan history")
		}
		if details.Valid {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal history details")
			}
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: iterate history")
}

func (s *SQLiteStore) SaveAssessment(ctx context.Context, workItemID string, ra model.RiskAssessment) error {
	data, err := json.Marshal(ra)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal assessment")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO risk_assessments (work_item_id, overall_score, risk_level, scorer, assessment, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (work_item_id) DO UPDATE SET
		   overall_score = excluded.overall_score, risk_level = excluded.risk_level,
		   scorer = excluded.scorer, assessment = excluded.assessment, updated_at = excluded.updated_at`,
		workItemID, ra.OverallScore, string(ra.RiskLevel), ra.Scorer, string(data), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save assessment %s", workItemID)
}

func (s *SQLiteStore) GetAssessment(ctx context.Context, workItemID string) (*model.RiskAssessment, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT assessment FROM risk_assessments WHERE work_item_id = ?`, workItemID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: assessment %s", workItemID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get assessment %s", workItemID)
	}
	var ra model.RiskAssessment
	if err := json.Unmarshal([]byte(data), &ra); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal assessment")
	}
	return &ra, nil
}

func (s *SQLiteStore) ListUnderwriters(ctx context.Context) ([]model.Underwriter, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, tier, active FROM underwriters ORDER BY tier, name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list underwriters")
	}
	defer rows.Close()

	out := []model.Underwriter{}
	for rows.Next() {
		var u model.Underwriter
		if err := rows.Scan(&u.Name, &u.Tier, &u.Active); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan underwriter")
		}
		out = append(out, u)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate underwriters")
}

func (s *SQLiteStore) UpsertUnderwriters(ctx context.Context, roster []model.Underwriter) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var n int64
	for _, u := range roster {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO underwriters (name, tier, active) VALUES (?, ?, ?)
			 ON CONFLICT (name) DO UPDATE SET tier = excluded.tier, active = excluded.active`,
			u.Name, u.Tier, u.Active,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert underwriter %s", u.Name)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit underwriters")
	}
	return n, nil
}

func (s *SQLiteStore) EnqueueSyncFailure(ctx context.Context, e resilience.DLQEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_failures
		 (id, work_item_id, operation, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   error = excluded.error, error_type = excluded.error_type, retry_count = excluded.retry_count,
		   next_retry_at = excluded.next_retry_at, last_failed_at = excluded.last_failed_at`,
		e.ID, e.WorkItemID, e.Operation, e.Error, e.ErrorType, e.RetryCount,
		e.MaxRetries, e.NextRetryAt.UTC(), e.CreatedAt.UTC(), e.LastFailedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: enqueue sync failure")
}

func (s *SQLiteStore) DueSyncFailures(ctx context.Context, now time.Time, limit int) ([]resilience.DLQEntry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, work_item_id, operation, error, error_type, retry_count, max_retries,
		        next_retry_at, created_at, last_failed_at
		 FROM sync_failures
		 WHERE next_retry_at <= ? AND retry_count < max_retries
		 ORDER BY next_retry_at ASC LIMIT ?`,
		now.UTC(), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: due sync failures")
	}
	defer rows.Close()

	out := []resilience.DLQEntry{}
	for rows.Next() {
		var e resilience.DLQEntry
		if err := rows.Scan(&e.ID, &e.WorkItemID, &e.Operation, &e.Error, &e.ErrorType,
			&e.RetryCount, &e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sync failure")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate sync failures")
}

func (s *SQLiteStore) ResolveSyncFailure(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_failures WHERE id = ?`, id)
	return eris.Wrapf(err, "sqlite: resolve sync failure %s", id)
}

func (s *SQLiteStore) BumpSyncFailure(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_failures
		 SET retry_count = retry_count + 1, next_retry_at = ?, error = ?, last_failed_at = ?
		 WHERE id = ?`,
		nextRetryAt.UTC(), lastErr, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: bump sync failure %s", id)
	}
	return checkRowsAffected(res, "sync failure", id)
}

func (s *SQLiteStore) RiskDistribution(ctx context.Context) (model.RiskDistribution, error) {
	var d model.RiskDistribution
	err := s.db.QueryRowContext(ctx, riskDistributionSQL).Scan(&d.Total, &d.LowRisk, &d.MediumRisk, &d.HighRisk)
	return d, eris.Wrap(err, "sqlite: risk distribution")
}

func scanSQLiteWorkItem(row interface{ Scan(dest ...any) error }) (*model.WorkItem, error) {
	var item model.WorkItem
	var broker, assigned, industry, size, policyType, categories, policy sql.NullString
	var validation, fields string
	if err := row.Scan(&item.ID, &item.SubmissionRef, &item.Title, &broker, &item.Status,
		&item.Priority, &assigned, &item.RiskScore, &categories, &industry, &size,
		&policyType, &item.CoverageAmount, &validation, &fields, &policy,
		&item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}
	item.BrokerEmail = broker.String
	item.AssignedTo = assigned.String
	item.Industry = industry.String
	item.CompanySize = size.String
	item.PolicyType = policyType.String

	j := workItemJSON{validation: []byte(validation), fields: []byte(fields)}
	if categories.Valid {
		j.categories = []byte(categories.String)
	}
	if policy.Valid {
		j.policy = []byte(policy.String)
	}
	if err := j.decodeInto(&item); err != nil {
		return nil, err
	}
	return &item, nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: %s %s", entity, id)
	}
	return nil
}

// nullText stores JSON as TEXT so SQLite's json functions can read it.
func nullText(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
