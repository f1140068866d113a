package archive

import (
	"context"
	"database/sql"
)

// schema contains the DDL for all archive tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS archived_jobs (
		id             TEXT PRIMARY KEY,
		type           TEXT NOT NULL,
		priority       TEXT NOT NULL,
		final_status   TEXT NOT NULL,
		retry_count    INTEGER NOT NULL DEFAULT 0,
		estimated_cost REAL NOT NULL DEFAULT 0,
		dependencies   TEXT NOT NULL DEFAULT '[]',
		metadata       TEXT NOT NULL DEFAULT '{}',
		deadline       TEXT,
		created_at     TEXT NOT NULL,
		started_at     TEXT,
		completed_at   TEXT,
		archived_at    TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS retry_attempts (
		job_id     TEXT NOT NULL,
		attempt    INTEGER NOT NULL,
		strategy   TEXT NOT NULL DEFAULT '',
		delay_ms   INTEGER NOT NULL DEFAULT 0,
		category   TEXT NOT NULL DEFAULT 'unknown',
		error_type TEXT NOT NULL DEFAULT '',
		decision   TEXT NOT NULL DEFAULT '',
		succeeded  INTEGER,
		decided_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS sla_violations (
		id          TEXT PRIMARY KEY,
		sla_id      TEXT NOT NULL,
		metric      TEXT NOT NULL,
		value       REAL NOT NULL,
		target      REAL NOT NULL,
		status      TEXT NOT NULL,
		severity    TEXT NOT NULL,
		occurred_at TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_archived_jobs_type ON archived_jobs(type)`,
	`CREATE INDEX IF NOT EXISTS idx_archived_jobs_status ON archived_jobs(final_status)`,
	`CREATE INDEX IF NOT EXISTS idx_archived_jobs_archived_at ON archived_jobs(archived_at)`,
	`CREATE INDEX IF NOT EXISTS idx_retry_attempts_job_id ON retry_attempts(job_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sla_violations_sla_id ON sla_violations(sla_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sla_violations_occurred_at ON sla_violations(occurred_at)`,
}

// migrate executes all schema DDL statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
