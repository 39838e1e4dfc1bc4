// Package schedule provides recurring job scheduling with pulse control.
package schedule

import (
	"strings"
	"time"

	"github.com/teranos/pulse/errors"
)

// Job is a persisted job record: the spec a user created plus the
// scheduling state the daemon writes after each tick.
type Job struct {
	ID        string `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	Schedule  string `db:"schedule" json:"schedule"`
	Command   string `db:"command" json:"command"`
	Enabled   bool   `db:"enabled" json:"enabled"`
	OnFailure string `db:"on_failure" json:"on_failure"`
	Retries   int    `db:"retries" json:"retries"`

	// Optional constraints
	TimeoutSeconds int     `db:"timeout_seconds" json:"timeout_seconds,omitempty"` // 0 = executor default
	StartAt        *string `db:"start_at" json:"start_at,omitempty"`               // RFC3339
	EndAt          *string `db:"end_at" json:"end_at,omitempty"`                   // RFC3339
	MaxRuns        int     `db:"max_runs" json:"max_runs,omitempty"`               // 0 = unlimited

	// Scheduling state, written by the daemon
	RunCount            int     `db:"run_count" json:"run_count"`
	ConsecutiveFailures int     `db:"consecutive_failures" json:"consecutive_failures"`
	LastRunAt           *string `db:"last_run_at" json:"last_run_at,omitempty"`
	LastStatus          *string `db:"last_status" json:"last_status,omitempty"`
	NextRunAt           *string `db:"next_run_at" json:"next_run_at,omitempty"`

	CreatedAt string `db:"created_at" json:"created_at"`
	UpdatedAt string `db:"updated_at" json:"updated_at"`
}

// IsOneShot reports whether the job fires once at a fixed instant
func (j *Job) IsOneShot() bool {
	s, err := ParseSchedule(j.Schedule)
	return err == nil && s.Kind == KindAt
}

// JobSpec is the input to JobStore.Create
type JobSpec struct {
	Name           string     `json:"name" yaml:"name"`
	Schedule       string     `json:"schedule" yaml:"schedule"`
	Command        string     `json:"command" yaml:"command"`
	Disabled       bool       `json:"disabled,omitempty" yaml:"disabled,omitempty"` // jobs are enabled by default
	OnFailure      string     `json:"on_failure,omitempty" yaml:"on_failure,omitempty"`
	Retries        int        `json:"retries,omitempty" yaml:"retries,omitempty"`
	TimeoutSeconds int        `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	StartAt        *time.Time `json:"start_at,omitempty" yaml:"start_at,omitempty"`
	EndAt          *time.Time `json:"end_at,omitempty" yaml:"end_at,omitempty"`
	MaxRuns        int        `json:"max_runs,omitempty" yaml:"max_runs,omitempty"`
}

// JobPatch carries a partial update. Nil fields are left unchanged.
// For StartAt and EndAt, a pointer to the zero time clears the constraint.
type JobPatch struct {
	Schedule       *string
	Command        *string
	Enabled        *bool
	OnFailure      *string
	Retries        *int
	TimeoutSeconds *int
	StartAt        *time.Time
	EndAt          *time.Time
	MaxRuns        *int
}

// IsEmpty reports whether the patch changes nothing
func (p JobPatch) IsEmpty() bool {
	return p.Schedule == nil && p.Command == nil && p.Enabled == nil &&
		p.OnFailure == nil && p.Retries == nil && p.TimeoutSeconds == nil &&
		p.StartAt == nil && p.EndAt == nil && p.MaxRuns == nil
}

// RunState is the scheduling state the daemon records after executing a job.
// The enabled flag belongs to the user; RecordRun only clears it when
// Disable is set, so a disable issued mid-run survives the write.
type RunState struct {
	LastRunAt           time.Time
	LastStatus          string
	NextRunAt           time.Time
	RunCount            int
	ConsecutiveFailures int
	Disable             bool
}

// LogEntry is an append-only record of one run
type LogEntry struct {
	ID         string `db:"id" json:"id"`
	JobID      string `db:"job_id" json:"job_id"`
	JobName    string `db:"job_name" json:"job_name"`
	Status     string `db:"status" json:"status"`
	StartedAt  string `db:"started_at" json:"started_at"`
	FinishedAt string `db:"finished_at" json:"finished_at"`
	DurationMs int64  `db:"duration_ms" json:"duration_ms"`
	Output     string `db:"output" json:"output"`
	Error      string `db:"error" json:"error"`
	CreatedAt  string `db:"created_at" json:"created_at"`
}

// Run outcome statuses
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Failure policies
const (
	OnFailureNotify = "notify"
	OnFailureRetry  = "retry"
	OnFailureIgnore = "ignore"
)

// Reserved heartbeat job
const (
	HeartbeatJobName = "heartbeat"
	HeartbeatCommand = "@heartbeat"
	HeartbeatOK      = "HEARTBEAT_OK"
)

// TimeLayout is the stored text form of every timestamp
const TimeLayout = time.RFC3339

// formatTime renders t in the stored layout, always in UTC
func formatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// parseTime parses a stored timestamp
func parseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}

// optTime converts an optional instant to its stored form
func optTime(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := formatTime(*t)
	return &s
}

// Validate checks a spec before it is persisted and fills in defaults
func (s *JobSpec) Validate() error {
	s.Name = strings.TrimSpace(s.Name)
	s.Schedule = strings.TrimSpace(s.Schedule)

	if s.Name == "" {
		return errors.NewInvalidInputError("job name is required")
	}
	if strings.ContainsAny(s.Name, " \t\n/") {
		return errors.NewInvalidInputError("job name %q must not contain whitespace or '/'", s.Name)
	}
	if s.Schedule == "" {
		return errors.NewInvalidInputError("schedule is required for job %q", s.Name)
	}
	if _, err := ParseSchedule(s.Schedule); err != nil {
		return err
	}
	if strings.TrimSpace(s.Command) == "" {
		return errors.NewInvalidInputError("command is required for job %q", s.Name)
	}
	if s.OnFailure == "" {
		s.OnFailure = OnFailureNotify
	}
	return validateConstraints(s.OnFailure, s.Retries, s.TimeoutSeconds, s.MaxRuns, s.StartAt, s.EndAt)
}

func validateConstraints(onFailure string, retries, timeout, maxRuns int, startAt, endAt *time.Time) error {
	switch onFailure {
	case OnFailureNotify, OnFailureRetry, OnFailureIgnore:
	default:
		return errors.NewInvalidInputError("on-failure must be notify, retry or ignore, got %q", onFailure)
	}
	if retries < 0 {
		return errors.NewInvalidInputError("retries must be >= 0, got %d", retries)
	}
	if timeout < 0 {
		return errors.NewInvalidInputError("timeout must be >= 0, got %d", timeout)
	}
	if maxRuns < 0 {
		return errors.NewInvalidInputError("max-runs must be >= 0, got %d", maxRuns)
	}
	if startAt != nil && endAt != nil && !startAt.IsZero() && !endAt.IsZero() && !endAt.After(*startAt) {
		return errors.NewInvalidInputError("end-at %s must be after start-at %s", formatTime(*endAt), formatTime(*startAt))
	}
	return nil
}

// newJob builds the record for a validated spec
func newJob(id string, spec JobSpec, now time.Time) *Job {
	ts := formatTime(now)
	return &Job{
		ID:             id,
		Name:           spec.Name,
		Schedule:       spec.Schedule,
		Command:        spec.Command,
		Enabled:        !spec.Disabled,
		OnFailure:      spec.OnFailure,
		Retries:        spec.Retries,
		TimeoutSeconds: spec.TimeoutSeconds,
		StartAt:        optTime(spec.StartAt),
		EndAt:          optTime(spec.EndAt),
		MaxRuns:        spec.MaxRuns,
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}
}

// applyPatch merges p into a copy of j and validates the result.
// A schedule change clears nextRunAt so the next tick recomputes it.
func applyPatch(j *Job, p JobPatch, now time.Time) (*Job, error) {
	out := *j
	if p.Schedule != nil {
		sched := strings.TrimSpace(*p.Schedule)
		if _, err := ParseSchedule(sched); err != nil {
			return nil, err
		}
		if sched != out.Schedule {
			out.Schedule = sched
			out.NextRunAt = nil
		}
	}
	if p.Command != nil {
		if strings.TrimSpace(*p.Command) == "" {
			return nil, errors.NewInvalidInputError("command cannot be empty")
		}
		out.Command = *p.Command
	}
	if p.Enabled != nil {
		if *p.Enabled && !out.Enabled {
			// Re-enabled jobs start a fresh cycle instead of firing on stale state
			out.NextRunAt = nil
		}
		out.Enabled = *p.Enabled
	}
	if p.OnFailure != nil {
		out.OnFailure = *p.OnFailure
	}
	if p.Retries != nil {
		out.Retries = *p.Retries
	}
	if p.TimeoutSeconds != nil {
		out.TimeoutSeconds = *p.TimeoutSeconds
	}
	if p.StartAt != nil {
		out.StartAt = optTime(p.StartAt)
		out.NextRunAt = nil
	}
	if p.EndAt != nil {
		out.EndAt = optTime(p.EndAt)
	}
	if p.MaxRuns != nil {
		out.MaxRuns = *p.MaxRuns
	}

	var startAt, endAt *time.Time
	if out.StartAt != nil {
		if t, err := parseTime(*out.StartAt); err == nil {
			startAt = &t
		}
	}
	if out.EndAt != nil {
		if t, err := parseTime(*out.EndAt); err == nil {
			endAt = &t
		}
	}
	if err := validateConstraints(out.OnFailure, out.Retries, out.TimeoutSeconds, out.MaxRuns, startAt, endAt); err != nil {
		return nil, err
	}

	out.UpdatedAt = formatTime(now)
	return &out, nil
}
