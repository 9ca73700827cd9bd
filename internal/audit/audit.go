// Package audit implements a write-only execution log: one row per
// completed job, kept strictly for operator forensics. It is never queried
// to repopulate a queue or resume work, so it does not reintroduce job
// persistence across restarts.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS job_executions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	hook_name TEXT NOT NULL,
	job_id TEXT NOT NULL,
	success INTEGER NOT NULL,
	exit_status INTEGER NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL
);
`

// Trail is a SQLite-backed append-only log of completed job executions.
type Trail struct {
	db  *sql.DB
	log *slog.Logger
}

// Open creates (or reuses) the SQLite file at path and ensures the schema
// exists. An empty path disables the trail: Open returns (nil, nil) and
// callers should treat a nil *Trail as "no audit configured".
func Open(path string, log *slog.Logger) (*Trail, error) {
	if path == "" {
		return nil, nil
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: migrate %s: %w", path, err)
	}
	return &Trail{db: db, log: log}, nil
}

// Close releases the underlying database handle.
func (t *Trail) Close() error {
	if t == nil || t.db == nil {
		return nil
	}
	return t.db.Close()
}

// Record appends one completed-execution row. It is fire-and-forget from
// the scheduler's perspective: a failure here is logged, not propagated,
// because the audit trail is observability, not correctness-critical state.
func (t *Trail) Record(hookName, jobID string, success bool, exitStatus int, started, finished time.Time) {
	if t == nil || t.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := t.db.ExecContext(ctx,
		`INSERT INTO job_executions (hook_name, job_id, success, exit_status, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		hookName, jobID, boolToInt(success), exitStatus,
		started.UTC().Format(time.RFC3339Nano), finished.UTC().Format(time.RFC3339Nano))
	if err != nil && t.log != nil {
		t.log.Error("audit: failed to record job execution", "hook", hookName, "job_id", jobID, "error", err)
	}
}

// Recent returns the most recent n execution records, newest first. Used by
// operator tooling/tests; never consulted by the scheduler itself.
func (t *Trail) Recent(ctx context.Context, n int) ([]Record, error) {
	if t == nil || t.db == nil {
		return nil, nil
	}
	rows, err := t.db.QueryContext(ctx,
		`SELECT hook_name, job_id, success, exit_status, started_at, finished_at
		 FROM job_executions ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("audit: query recent: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var success int
		var started, finished string
		if err := rows.Scan(&r.HookName, &r.JobID, &success, &r.ExitStatus, &started, &finished); err != nil {
			return nil, fmt.Errorf("audit: scan recent: %w", err)
		}
		r.Success = success != 0
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Record is one completed-execution row as read back by Recent.
type Record struct {
	HookName   string
	JobID      string
	Success    bool
	ExitStatus int
	StartedAt  time.Time
	FinishedAt time.Time
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
