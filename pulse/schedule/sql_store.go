package schedule

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/teranos/pulse/db"
	"github.com/teranos/pulse/errors"
)

const jobColumns = `id, name, schedule, command, enabled, on_failure, retries,
	timeout_seconds, start_at, end_at, max_runs, run_count, consecutive_failures,
	last_run_at, last_status, next_run_at, created_at, updated_at`

const logColumns = `id, job_id, job_name, status, started_at, finished_at,
	duration_ms, output, error, created_at`

// connection is the subset of *sqlx.DB the store uses
type connection interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Close() error
}

// SQLStore is the SQLite-backed JobStore
type SQLStore struct {
	db  connection
	now func() time.Time
}

// NewSQLStore wraps a migrated database handle
func NewSQLStore(conn *sql.DB) *SQLStore {
	// Both sqlite drivers use '?' bindvars
	return &SQLStore{db: sqlx.NewDb(conn, "sqlite3"), now: time.Now}
}

// Create persists a new job
func (s *SQLStore) Create(ctx context.Context, spec JobSpec) (*Job, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	job := newJob(uuid.NewString(), spec, s.now())

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Name, job.Schedule, job.Command, job.Enabled, job.OnFailure, job.Retries,
		job.TimeoutSeconds, job.StartAt, job.EndAt, job.MaxRuns, job.RunCount, job.ConsecutiveFailures,
		job.LastRunAt, job.LastStatus, job.NextRunAt, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, conflict(spec.Name)
		}
		return nil, errors.Wrapf(err, "failed to create job %q", spec.Name)
	}

	return job, nil
}

// Get retrieves a job by name
func (s *SQLStore) Get(ctx context.Context, name string) (*Job, error) {
	var job Job
	err := s.db.GetContext(ctx, &job, `SELECT `+jobColumns+` FROM jobs WHERE name = ?`, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(name)
		}
		return nil, errors.Wrapf(err, "failed to get job %q", name)
	}
	return &job, nil
}

// List returns all jobs, newest first
func (s *SQLStore) List(ctx context.Context) ([]*Job, error) {
	var jobs []*Job
	err := s.db.SelectContext(ctx, &jobs,
		`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	return jobs, nil
}

// ListEnabled returns enabled jobs, newest first
func (s *SQLStore) ListEnabled(ctx context.Context) ([]*Job, error) {
	var jobs []*Job
	err := s.db.SelectContext(ctx, &jobs,
		`SELECT `+jobColumns+` FROM jobs WHERE enabled = 1 ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list enabled jobs")
	}
	return jobs, nil
}

// Remove deletes a job; its logs go with it through the foreign key cascade
func (s *SQLStore) Remove(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE name = ?`, name)
	if err != nil {
		return false, errors.Wrapf(err, "failed to remove job %q", name)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read rows affected")
	}
	return n > 0, nil
}

// SetEnabled enables or disables a job
func (s *SQLStore) SetEnabled(ctx context.Context, name string, enabled bool) error {
	_, err := s.Update(ctx, name, JobPatch{Enabled: &enabled})
	return err
}

// Update merges patch into the stored job
func (s *SQLStore) Update(ctx context.Context, name string, patch JobPatch) (*Job, error) {
	current, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return current, nil
	}

	job, err := applyPatch(current, patch, s.now())
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE jobs SET schedule = ?, command = ?, enabled = ?, on_failure = ?, retries = ?,
			timeout_seconds = ?, start_at = ?, end_at = ?, max_runs = ?, next_run_at = ?, updated_at = ?
		WHERE id = ?`,
		job.Schedule, job.Command, job.Enabled, job.OnFailure, job.Retries,
		job.TimeoutSeconds, job.StartAt, job.EndAt, job.MaxRuns, job.NextRunAt, job.UpdatedAt,
		job.ID,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to update job %q", name)
	}
	return job, nil
}

// SetNextRun stores the next due instant
func (s *SQLStore) SetNextRun(ctx context.Context, name string, next time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET next_run_at = ?, updated_at = ? WHERE name = ?`,
		formatTime(next), formatTime(s.now()), name)
	if err != nil {
		return errors.Wrapf(err, "failed to set next run for %q", name)
	}
	return requireRow(res, name)
}

// RecordRun stores the scheduling state after an execution
func (s *SQLStore) RecordRun(ctx context.Context, name string, state RunState) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET last_run_at = ?, last_status = ?, next_run_at = ?, run_count = ?,
			consecutive_failures = ?, enabled = CASE WHEN ? THEN 0 ELSE enabled END, updated_at = ?
		WHERE name = ?`,
		formatTime(state.LastRunAt), state.LastStatus, formatTime(state.NextRunAt), state.RunCount,
		state.ConsecutiveFailures, state.Disable, formatTime(s.now()),
		name,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to record run for %q", name)
	}
	return requireRow(res, name)
}

// AppendLog writes an execution log entry for the job with the given id
func (s *SQLStore) AppendLog(ctx context.Context, jobID string, entry LogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt == "" {
		entry.CreatedAt = formatTime(s.now())
	}
	entry.JobID = jobID

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_logs (`+logColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.JobID, entry.JobName, entry.Status, entry.StartedAt, entry.FinishedAt,
		entry.DurationMs, entry.Output, entry.Error, entry.CreatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to append log for job %s", jobID)
	}
	return nil
}

// ListLogs returns a job's logs newest first
func (s *SQLStore) ListLogs(ctx context.Context, jobName string, limit int, since *time.Time) ([]*LogEntry, error) {
	query := `SELECT ` + logColumns + ` FROM job_logs WHERE job_name = ?`
	args := []interface{}{jobName}

	if since != nil {
		query += ` AND started_at >= ?`
		args = append(args, formatTime(*since))
	}
	query += ` ORDER BY started_at DESC, rowid DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var logs []*LogEntry
	if err := s.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, errors.Wrapf(err, "failed to list logs for %q", jobName)
	}
	return logs, nil
}

// Close closes the underlying database
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func requireRow(res sql.Result, name string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read rows affected")
	}
	if n == 0 {
		return notFound(name)
	}
	return nil
}
