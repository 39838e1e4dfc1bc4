package logger

import (
	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across pulse.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity
	FieldJobID   = "job_id"
	FieldJobName = "job_name"
	FieldLogID   = "log_id"
	FieldPID     = "pid"

	// Components
	FieldComponent = "component"

	// Scheduling
	FieldSchedule  = "schedule"
	FieldCommand   = "command"
	FieldNextRunAt = "next_run_at"
	FieldLastRunAt = "last_run_at"
	FieldTick      = "tick"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldInterval   = "interval"

	// Errors
	FieldError     = "error"
	FieldErrorType = "error_type"

	// Counts
	FieldCount = "count"

	// Status
	FieldStatus = "status"

	// Files and paths
	FieldPath = "path"
	FieldFile = "file"

	// Segment symbol (꩜, ✿, ❀, ⊔)
	FieldSymbol = "symbol"
)

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	d := schedule.NewDaemon(store, exec, cfg, logger.ComponentLogger("pulse.daemon"))
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// JobLogger creates a child logger carrying the job identity fields
func JobLogger(parent *zap.SugaredLogger, jobID, jobName string) *zap.SugaredLogger {
	return parent.With(FieldJobID, jobID, FieldJobName, jobName)
}
