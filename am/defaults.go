package am

import (
	"fmt"

	"github.com/spf13/viper"
)

// Default values referenced outside this package
const (
	DefaultPollIntervalMS    = 30000
	DefaultHeartbeatInterval = "30m"
	DefaultHeartbeatFile     = "HEARTBEAT.md"
	DefaultPIDFile           = ".pulse/daemon.pid"
	DefaultLogFile           = ".pulse/daemon.log"
	DefaultDatabasePath      = ".pulse/pulse.db"
	DefaultJSONStorePath     = ".pulse/jobs.json"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Store defaults
	v.SetDefault("database.backend", BackendSQLite)
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("database.json_path", DefaultJSONStorePath)

	// Daemon defaults
	v.SetDefault("pulse.workspace", ".")
	v.SetDefault("pulse.poll_interval_ms", DefaultPollIntervalMS)
	v.SetDefault("pulse.pid_file", DefaultPIDFile)
	v.SetDefault("pulse.log_file", DefaultLogFile)
	v.SetDefault("pulse.retry_delay_seconds", 60)

	// Heartbeat defaults
	v.SetDefault("pulse.heartbeat.enabled", true)
	v.SetDefault("pulse.heartbeat.interval", DefaultHeartbeatInterval)
	v.SetDefault("pulse.heartbeat.file", DefaultHeartbeatFile)

	// Execution defaults
	v.SetDefault("pulse.exec.mode", ExecModeShell)
	v.SetDefault("pulse.exec.shell", "/bin/sh")
	v.SetDefault("pulse.exec.default_timeout_seconds", 0)
}

// envBindings maps config keys to their documented short environment names.
// Everything else is still reachable through AutomaticEnv as PULSE_<SECTION>_<KEY>.
var envBindings = map[string]string{
	"pulse.poll_interval_ms":   "PULSE_POLL_INTERVAL_MS",
	"pulse.heartbeat.enabled":  "PULSE_HEARTBEAT_ENABLED",
	"pulse.heartbeat.interval": "PULSE_HEARTBEAT_INTERVAL",
	"pulse.pid_file":           "PULSE_PID_FILE",
	"pulse.workspace":          "PULSE_WORKSPACE",
	"database.path":            "PULSE_DATABASE_PATH",
	"database.backend":         "PULSE_STORE_BACKEND",
}

// BindEnvVars explicitly binds the documented environment overrides
func BindEnvVars(v *viper.Viper) {
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Backend: %s, Workspace: %s, Poll: %dms, Heartbeat: %t/%s}",
		c.Database.Backend, c.Pulse.Workspace, c.Pulse.PollIntervalMS,
		c.Pulse.Heartbeat.Enabled, c.Pulse.Heartbeat.Interval)
}
