package am

import (
	"regexp"
	"strconv"

	"github.com/teranos/pulse/errors"
)

// intervalPattern is the interval schedule grammar shared with pulse/schedule
var intervalPattern = regexp.MustCompile(`(?i)^(\d+)([smhd])$`)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch c.Database.Backend {
	case BackendSQLite, BackendJSON:
	default:
		return errors.NewInvalidInputError("database.backend must be %q or %q, got %q", BackendSQLite, BackendJSON, c.Database.Backend)
	}

	switch c.Database.Driver {
	case "sqlite3", "sqlite":
	default:
		return errors.NewInvalidInputError("database.driver must be \"sqlite3\" or \"sqlite\", got %q", c.Database.Driver)
	}

	if c.Database.Backend == BackendSQLite && c.Database.Path == "" {
		return errors.NewInvalidInputError("database.path cannot be empty with the sqlite backend")
	}
	if c.Database.Backend == BackendJSON && c.Database.JSONPath == "" {
		return errors.NewInvalidInputError("database.json_path cannot be empty with the json backend")
	}

	// Poll interval: a zero interval would spin the loop
	if c.Pulse.PollIntervalMS <= 0 {
		return errors.NewInvalidInputError("pulse.poll_interval_ms must be > 0, got %d", c.Pulse.PollIntervalMS)
	}
	if c.Pulse.PIDFile == "" {
		return errors.NewInvalidInputError("pulse.pid_file cannot be empty")
	}
	if c.Pulse.RetryDelaySeconds < 0 {
		return errors.NewInvalidInputError("pulse.retry_delay_seconds must be >= 0, got %d", c.Pulse.RetryDelaySeconds)
	}

	if c.Pulse.Heartbeat.Enabled {
		if err := validateInterval(c.Pulse.Heartbeat.Interval); err != nil {
			return errors.Wrap(err, "pulse.heartbeat.interval")
		}
		if c.Pulse.Heartbeat.File == "" {
			return errors.NewInvalidInputError("pulse.heartbeat.file cannot be empty when heartbeat is enabled")
		}
	}

	switch c.Pulse.Exec.Mode {
	case ExecModeShell:
		if c.Pulse.Exec.Shell == "" {
			return errors.NewInvalidInputError("pulse.exec.shell cannot be empty in shell mode")
		}
	case ExecModeDirect:
	default:
		return errors.NewInvalidInputError("pulse.exec.mode must be %q or %q, got %q", ExecModeShell, ExecModeDirect, c.Pulse.Exec.Mode)
	}
	if c.Pulse.Exec.DefaultTimeoutSeconds < 0 {
		return errors.NewInvalidInputError("pulse.exec.default_timeout_seconds must be >= 0, got %d", c.Pulse.Exec.DefaultTimeoutSeconds)
	}

	return nil
}

// validateInterval accepts <N><s|m|h|d> with N > 0, or the @hourly/@daily presets
func validateInterval(s string) error {
	if s == "@hourly" || s == "@daily" {
		return nil
	}
	m := intervalPattern.FindStringSubmatch(s)
	if m == nil {
		return errors.NewInvalidInputError("invalid interval %q (want <N><s|m|h|d>, @hourly or @daily)", s)
	}
	if n, err := strconv.Atoi(m[1]); err != nil || n <= 0 {
		return errors.NewInvalidInputError("interval %q must be positive", s)
	}
	return nil
}
