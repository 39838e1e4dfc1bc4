// Package errors provides error handling for pulse.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - User-facing hints and details
//
// It also defines the error taxonomy shared by the job store, the CLI and
// the daemon:
//
//	invalid_input      - a required field is missing or malformed
//	not_found          - an operation named a job that does not exist
//	conflict           - a job with the same name already exists
//	runtime_error      - the store (or the OS) failed unexpectedly
//	execution_failure  - a job ran and failed; recorded, never raised
//
// Usage:
//
//	if name == "" {
//	    return errors.NewInvalidInputError("job name is required")
//	}
//
//	if errors.Is(err, errors.ErrNotFound) {
//	    // handle unknown job
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark

	// WithSecondaryError attaches an error that happened while handling err,
	// such as a failed rollback, without changing err's identity
	WithSecondaryError = crdb.WithSecondaryError
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// GetStack returns the reportable stack trace attached to err, if any.
var GetStack = crdb.GetReportableStackTrace

// Taxonomy sentinels. Use these with errors.Is(); errors built by the
// New*Error helpers below are marked with them while keeping their own message.
var (
	// ErrInvalidInput indicates a missing or malformed field
	ErrInvalidInput = New("invalid input")

	// ErrNotFound indicates the named job does not exist
	ErrNotFound = New("not found")

	// ErrConflict indicates a job with the same name already exists
	ErrConflict = New("conflict")

	// ErrRuntime indicates an unexpected store or OS failure
	ErrRuntime = New("runtime error")

	// ErrExecutionFailure indicates a job command failed
	ErrExecutionFailure = New("execution failure")
)

// Kind names as they appear in CLI output and logs.
const (
	KindInvalidInput     = "invalid_input"
	KindNotFound         = "not_found"
	KindConflict         = "conflict"
	KindRuntime          = "runtime_error"
	KindExecutionFailure = "execution_failure"
)

// Process exit codes for each kind.
const (
	ExitOK           = 0
	ExitRuntime      = 1
	ExitInvalidInput = 2
	ExitNotFound     = 3
	ExitConflict     = 4
)

// NewInvalidInputError creates an invalid-input error with a formatted message
func NewInvalidInputError(format string, args ...interface{}) error {
	return Mark(crdb.NewWithDepthf(1, format, args...), ErrInvalidInput)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Mark(crdb.NewWithDepthf(1, format, args...), ErrNotFound)
}

// NewConflictError creates a conflict error with a formatted message
func NewConflictError(format string, args ...interface{}) error {
	return Mark(crdb.NewWithDepthf(1, format, args...), ErrConflict)
}

// WrapRuntime wraps an unexpected failure so it classifies as runtime_error
func WrapRuntime(err error, msg string) error {
	if err == nil {
		return nil
	}
	return Mark(Wrap(err, msg), ErrRuntime)
}

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidInputError checks if an error is or wraps ErrInvalidInput
func IsInvalidInputError(err error) bool {
	return err != nil && Is(err, ErrInvalidInput)
}

// IsConflictError checks if an error is or wraps ErrConflict
func IsConflictError(err error) bool {
	return err != nil && Is(err, ErrConflict)
}

// Kind classifies err into the taxonomy. Unclassified errors are runtime errors.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case Is(err, ErrInvalidInput):
		return KindInvalidInput
	case Is(err, ErrNotFound):
		return KindNotFound
	case Is(err, ErrConflict):
		return KindConflict
	case Is(err, ErrExecutionFailure):
		return KindExecutionFailure
	default:
		return KindRuntime
	}
}

// ExitCode maps err to the CLI process exit code
func ExitCode(err error) int {
	switch Kind(err) {
	case "":
		return ExitOK
	case KindInvalidInput:
		return ExitInvalidInput
	case KindNotFound:
		return ExitNotFound
	case KindConflict:
		return ExitConflict
	default:
		return ExitRuntime
	}
}
