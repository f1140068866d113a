package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/teoat/nexus378-sub000/pkg/model"

	_ "modernc.org/sqlite"
)

// ArchivedJob is a terminal job's permanent record.
type ArchivedJob struct {
	Job        model.Job `json:"job"`
	ArchivedAt time.Time `json:"archived_at"`
}

// Store persists terminal jobs, retry attempts, and SLA violations in SQLite
// so they survive in-memory retention pruning.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore opens (or creates) a SQLite database at dbPath.
// Use ":memory:" for an in-memory database (useful in tests).
func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}

	return &Store{
		db:     db,
		logger: logger.With("component", "archive"),
	}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Archived jobs ---

// ArchiveJob writes a terminal job's record. Re-archiving the same job ID
// replaces the earlier row.
func (s *Store) ArchiveJob(ctx context.Context, job *model.Job) error {
	s.logger.Debug("sql", "op", "insert", "table", "archived_jobs", "id", job.ID)

	if !job.Status.IsTerminal() {
		return fmt.Errorf("job %s is %s, only terminal jobs are archived", job.ID, job.Status)
	}

	depsJSON, err := json.Marshal(job.Dependencies)
	if err != nil {
		return fmt.Errorf("marshal dependencies: %w", err)
	}
	metaJSON, err := json.Marshal(job.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO archived_jobs
		 (id, type, priority, final_status, retry_count, estimated_cost,
		  dependencies, metadata, deadline, created_at, started_at, completed_at, archived_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Type, string(job.Priority), string(job.Status),
		job.RetryCount, job.EstimatedCost,
		string(depsJSON), string(metaJSON),
		optTime(job.Deadline), job.CreatedAt.Format(time.RFC3339Nano),
		optTime(job.StartedAt), optTime(job.CompletedAt),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// GetJob returns one archived job, or nil if not found.
func (s *Store) GetJob(ctx context.Context, id string) (*ArchivedJob, error) {
	s.logger.Debug("sql", "op", "select", "table", "archived_jobs", "id", id)

	var aj ArchivedJob
	var depsJSON, metaJSON string
	var createdAt, archivedAt string
	var deadline, startedAt, completedAt *string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, type, priority, final_status, retry_count, estimated_cost,
		 dependencies, metadata, deadline, created_at, started_at, completed_at, archived_at
		 FROM archived_jobs WHERE id = ?`, id,
	).Scan(&aj.Job.ID, &aj.Job.Type, &aj.Job.Priority, &aj.Job.Status,
		&aj.Job.RetryCount, &aj.Job.EstimatedCost,
		&depsJSON, &metaJSON, &deadline, &createdAt, &startedAt, &completedAt, &archivedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(depsJSON), &aj.Job.Dependencies); err != nil {
		return nil, fmt.Errorf("unmarshal dependencies: %w", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &aj.Job.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	aj.Job.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	aj.ArchivedAt, _ = time.Parse(time.RFC3339Nano, archivedAt)
	aj.Job.Deadline = parseOptTime(deadline)
	aj.Job.StartedAt = parseOptTime(startedAt)
	aj.Job.CompletedAt = parseOptTime(completedAt)

	return &aj, nil
}

// ListJobs returns archived jobs, newest first. A non-empty status filters by
// final status.
func (s *Store) ListJobs(ctx context.Context, status model.JobStatus, limit, offset int) ([]*ArchivedJob, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "archived_jobs", "status", status, "limit", limit)
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	where := ""
	var args []any
	if status != "" {
		where = " WHERE final_status = ?"
		args = append(args, string(status))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archived_jobs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, priority, final_status, retry_count, estimated_cost,
		 dependencies, metadata, deadline, created_at, started_at, completed_at, archived_at
		 FROM archived_jobs`+where+` ORDER BY archived_at DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var jobs []*ArchivedJob
	for rows.Next() {
		var aj ArchivedJob
		var depsJSON, metaJSON string
		var createdAt, archivedAt string
		var deadline, startedAt, completedAt *string

		if err := rows.Scan(&aj.Job.ID, &aj.Job.Type, &aj.Job.Priority, &aj.Job.Status,
			&aj.Job.RetryCount, &aj.Job.EstimatedCost,
			&depsJSON, &metaJSON, &deadline, &createdAt, &startedAt, &completedAt, &archivedAt); err != nil {
			return nil, 0, err
		}
		json.Unmarshal([]byte(depsJSON), &aj.Job.Dependencies)
		json.Unmarshal([]byte(metaJSON), &aj.Job.Metadata)
		aj.Job.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		aj.ArchivedAt, _ = time.Parse(time.RFC3339Nano, archivedAt)
		aj.Job.Deadline = parseOptTime(deadline)
		aj.Job.StartedAt = parseOptTime(startedAt)
		aj.Job.CompletedAt = parseOptTime(completedAt)

		jobs = append(jobs, &aj)
	}
	return jobs, total, rows.Err()
}

// --- Retry attempts ---

// RecordAttempt appends one retry-decision audit row.
func (s *Store) RecordAttempt(ctx context.Context, a model.RetryAttempt) error {
	s.logger.Debug("sql", "op", "insert", "table", "retry_attempts", "job_id", a.JobID, "attempt", a.Attempt)

	var succeeded *int
	if a.Succeeded != nil {
		v := 0
		if *a.Succeeded {
			v = 1
		}
		succeeded = &v
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO retry_attempts (job_id, attempt, strategy, delay_ms, category, error_type, decision, succeeded, decided_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.JobID, a.Attempt, string(a.Strategy), a.Delay.Milliseconds(),
		string(a.Category), a.ErrorType, string(a.Decision),
		succeeded, a.DecidedAt.Format(time.RFC3339Nano),
	)
	return err
}

// ListAttempts returns a job's retry attempts in decision order.
func (s *Store) ListAttempts(ctx context.Context, jobID string) ([]model.RetryAttempt, error) {
	s.logger.Debug("sql", "op", "list", "table", "retry_attempts", "job_id", jobID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, attempt, strategy, delay_ms, category, error_type, decision, succeeded, decided_at
		 FROM retry_attempts WHERE job_id = ? ORDER BY attempt, decided_at`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.RetryAttempt
	for rows.Next() {
		var a model.RetryAttempt
		var delayMS int64
		var succeeded *int
		var decidedAt string

		if err := rows.Scan(&a.JobID, &a.Attempt, &a.Strategy, &delayMS,
			&a.Category, &a.ErrorType, &a.Decision, &succeeded, &decidedAt); err != nil {
			return nil, err
		}
		a.Delay = time.Duration(delayMS) * time.Millisecond
		if succeeded != nil {
			v := *succeeded == 1
			a.Succeeded = &v
		}
		a.DecidedAt, _ = time.Parse(time.RFC3339Nano, decidedAt)

		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// --- SLA violations ---

// RecordViolation writes one violation row.
func (s *Store) RecordViolation(ctx context.Context, v model.SLAViolation) error {
	s.logger.Debug("sql", "op", "insert", "table", "sla_violations", "id", v.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sla_violations (id, sla_id, metric, value, target, status, severity, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.SLAID, string(v.Metric), v.Value, v.Target,
		string(v.Status), string(v.Severity), v.OccurredAt.Format(time.RFC3339Nano),
	)
	return err
}

// ListViolations returns violations for one SLA since the given instant,
// oldest first. An empty slaID returns all.
func (s *Store) ListViolations(ctx context.Context, slaID string, since time.Time) ([]model.SLAViolation, error) {
	s.logger.Debug("sql", "op", "list", "table", "sla_violations", "sla_id", slaID)

	query := `SELECT id, sla_id, metric, value, target, status, severity, occurred_at
		 FROM sla_violations WHERE occurred_at >= ?`
	args := []any{since.UTC().Format(time.RFC3339Nano)}
	if slaID != "" {
		query += ` AND sla_id = ?`
		args = append(args, slaID)
	}
	query += ` ORDER BY occurred_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var violations []model.SLAViolation
	for rows.Next() {
		var v model.SLAViolation
		var occurredAt string
		if err := rows.Scan(&v.ID, &v.SLAID, &v.Metric, &v.Value, &v.Target,
			&v.Status, &v.Severity, &occurredAt); err != nil {
			return nil, err
		}
		v.OccurredAt, _ = time.Parse(time.RFC3339Nano, occurredAt)
		violations = append(violations, v)
	}
	return violations, rows.Err()
}

// --- helpers ---

func optTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339Nano)
	return &s
}

func parseOptTime(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, *s)
	if err != nil {
		return nil
	}
	return &t
}
