package am

import (
	"path/filepath"
	"time"
)

// Config represents the pulse configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database" toml:"database" json:"database" yaml:"database"`
	Pulse    PulseConfig    `mapstructure:"pulse" toml:"pulse" json:"pulse" yaml:"pulse"`
}

// DatabaseConfig selects and locates the job store
type DatabaseConfig struct {
	Backend  string `mapstructure:"backend" toml:"backend" json:"backend" yaml:"backend"`         // sqlite or json
	Driver   string `mapstructure:"driver" toml:"driver" json:"driver" yaml:"driver"`             // sqlite3 (mattn, cgo) or sqlite (modernc)
	Path     string `mapstructure:"path" toml:"path" json:"path" yaml:"path"`                     // SQLite file, workspace-relative
	JSONPath string `mapstructure:"json_path" toml:"json_path" json:"json_path" yaml:"json_path"` // JSON document, workspace-relative
}

// PulseConfig configures the scheduler daemon
type PulseConfig struct {
	Workspace         string          `mapstructure:"workspace" toml:"workspace" json:"workspace" yaml:"workspace"`
	PollIntervalMS    int             `mapstructure:"poll_interval_ms" toml:"poll_interval_ms" json:"poll_interval_ms" yaml:"poll_interval_ms"`
	PIDFile           string          `mapstructure:"pid_file" toml:"pid_file" json:"pid_file" yaml:"pid_file"`
	LogFile           string          `mapstructure:"log_file" toml:"log_file" json:"log_file" yaml:"log_file"`
	RetryDelaySeconds int             `mapstructure:"retry_delay_seconds" toml:"retry_delay_seconds" json:"retry_delay_seconds" yaml:"retry_delay_seconds"`
	Heartbeat         HeartbeatConfig `mapstructure:"heartbeat" toml:"heartbeat" json:"heartbeat" yaml:"heartbeat"`
	Exec              ExecConfig      `mapstructure:"exec" toml:"exec" json:"exec" yaml:"exec"`
}

// HeartbeatConfig configures the daemon-managed heartbeat job
type HeartbeatConfig struct {
	Enabled  bool   `mapstructure:"enabled" toml:"enabled" json:"enabled" yaml:"enabled"`
	Interval string `mapstructure:"interval" toml:"interval" json:"interval" yaml:"interval"` // interval schedule, e.g. 30m
	File     string `mapstructure:"file" toml:"file" json:"file" yaml:"file"`                 // instructions file, workspace-relative
}

// ExecConfig configures how job commands are spawned
type ExecConfig struct {
	Mode                  string `mapstructure:"mode" toml:"mode" json:"mode" yaml:"mode"` // shell or direct
	Shell                 string `mapstructure:"shell" toml:"shell" json:"shell" yaml:"shell"`
	DefaultTimeoutSeconds int    `mapstructure:"default_timeout_seconds" toml:"default_timeout_seconds" json:"default_timeout_seconds" yaml:"default_timeout_seconds"` // 0 = no limit
}

// Store backends
const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
)

// Exec modes
const (
	ExecModeShell  = "shell"
	ExecModeDirect = "direct"
)

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)

// WorkspaceDir returns the absolute workspace directory.
// Relative workspace values are resolved against the current directory.
func (c *Config) WorkspaceDir() string {
	ws := c.Pulse.Workspace
	if ws == "" {
		ws = "."
	}
	abs, err := filepath.Abs(ws)
	if err != nil {
		return ws
	}
	return abs
}

// ResolvePath makes a configured path absolute under the workspace
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.WorkspaceDir(), p)
}

// DatabasePath returns the absolute SQLite path
func (c *Config) DatabasePath() string { return c.ResolvePath(c.Database.Path) }

// JSONStorePath returns the absolute JSON store path
func (c *Config) JSONStorePath() string { return c.ResolvePath(c.Database.JSONPath) }

// PIDFilePath returns the absolute PID file path
func (c *Config) PIDFilePath() string { return c.ResolvePath(c.Pulse.PIDFile) }

// LogFilePath returns the absolute daemon log path
func (c *Config) LogFilePath() string { return c.ResolvePath(c.Pulse.LogFile) }

// HeartbeatFilePath returns the absolute heartbeat instructions path
func (c *Config) HeartbeatFilePath() string { return c.ResolvePath(c.Pulse.Heartbeat.File) }

// PollInterval returns the daemon's sleep between ticks
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Pulse.PollIntervalMS) * time.Millisecond
}

// RetryDelay returns the reduced delay used for retry-policy jobs after a failure
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Pulse.RetryDelaySeconds) * time.Second
}

// DefaultTimeout returns the execution timeout for jobs without their own
func (c *Config) DefaultTimeout() time.Duration {
	return time.Duration(c.Pulse.Exec.DefaultTimeoutSeconds) * time.Second
}
