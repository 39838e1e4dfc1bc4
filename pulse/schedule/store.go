package schedule

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/pulse/am"
	"github.com/teranos/pulse/db"
	"github.com/teranos/pulse/errors"
)

// JobStore is durable CRUD for job specs and their execution logs.
// It has no knowledge of scheduling or execution; all lookups are by name
// except AppendLog, which is keyed by the owning job's id.
type JobStore interface {
	// Create persists a new job. Fails with a conflict error if the name exists.
	Create(ctx context.Context, spec JobSpec) (*Job, error)
	// Get returns the job or a not-found error.
	Get(ctx context.Context, name string) (*Job, error)
	// List returns every job, newest first.
	List(ctx context.Context) ([]*Job, error)
	// ListEnabled returns enabled jobs in List order.
	ListEnabled(ctx context.Context) ([]*Job, error)
	// Remove deletes the job and its logs. Reports whether a job was removed.
	Remove(ctx context.Context, name string) (bool, error)
	SetEnabled(ctx context.Context, name string, enabled bool) error
	// Update merges patch into the job; nil fields are left unchanged.
	Update(ctx context.Context, name string, patch JobPatch) (*Job, error)
	SetNextRun(ctx context.Context, name string, next time.Time) error
	RecordRun(ctx context.Context, name string, state RunState) error
	AppendLog(ctx context.Context, jobID string, entry LogEntry) error
	// ListLogs returns up to limit entries newest first, optionally only those
	// started at or after since. limit <= 0 means no limit.
	ListLogs(ctx context.Context, jobName string, limit int, since *time.Time) ([]*LogEntry, error)
	Close() error
}

// OpenStore constructs the backend selected by database.backend
func OpenStore(ctx context.Context, cfg *am.Config, log *zap.SugaredLogger) (JobStore, error) {
	switch cfg.Database.Backend {
	case am.BackendJSON:
		return NewFileStore(cfg.JSONStorePath())
	case am.BackendSQLite, "":
		conn, err := db.OpenWithMigrations(ctx, cfg.Database.Driver, cfg.DatabasePath(), log)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open job store")
		}
		return NewSQLStore(conn), nil
	default:
		return nil, errors.NewInvalidInputError("unknown store backend %q", cfg.Database.Backend)
	}
}

// notFound is the shared error for operations on unknown names
func notFound(name string) error {
	return errors.NewNotFoundError("job %q not found", name)
}

// conflict is the shared error for duplicate names on create
func conflict(name string) error {
	return errors.WithHint(
		errors.NewConflictError("job %q already exists", name),
		"use 'pulse edit' to change it or 'pulse remove --force' first")
}
