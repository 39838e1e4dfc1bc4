package am

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/teranos/pulse/errors"
	"github.com/teranos/pulse/logger"
)

// Default returns the built-in configuration with no files or env applied
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Backend:  BackendSQLite,
			Driver:   "sqlite3",
			Path:     DefaultDatabasePath,
			JSONPath: DefaultJSONStorePath,
		},
		Pulse: PulseConfig{
			Workspace:         ".",
			PollIntervalMS:    DefaultPollIntervalMS,
			PIDFile:           DefaultPIDFile,
			LogFile:           DefaultLogFile,
			RetryDelaySeconds: 60,
			Heartbeat: HeartbeatConfig{
				Enabled:  true,
				Interval: DefaultHeartbeatInterval,
				File:     DefaultHeartbeatFile,
			},
			Exec: ExecConfig{
				Mode:  ExecModeShell,
				Shell: "/bin/sh",
			},
		},
	}
}

// Marshal renders a config as toml, json or yaml
func Marshal(cfg *Config, format string) ([]byte, error) {
	switch format {
	case "", "toml":
		return toml.Marshal(cfg)
	case "json":
		return json.MarshalIndent(cfg, "", "  ")
	case "yaml", "yml":
		return yaml.Marshal(cfg)
	default:
		return nil, errors.NewInvalidInputError("unknown format %q (want toml, json or yaml)", format)
	}
}

// Save writes cfg as TOML to configPath, rotating backups of the previous file
func Save(cfg *Config, configPath string) error {
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "refusing to save invalid config")
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := os.MkdirAll(filepath.Dir(configPath), DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "failed to create config directory for %s", configPath)
	}

	if err := createBackup(configPath); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	// Mark this as our own write to prevent reload loops
	if w := GetGlobalWatcher(); w != nil {
		w.MarkOwnWrite()
	}

	if err := os.WriteFile(configPath, data, DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write config %s", configPath)
	}
	return nil
}

// WriteDefault writes the default config to configPath.
// An existing file is left alone unless force is set.
func WriteDefault(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.WithHint(
			errors.NewConflictError("config file %s already exists", configPath),
			"pass --force to overwrite it (the old file is kept as .back1)")
	}
	return Save(Default(), configPath)
}

// createBackup creates rotating backups (.back1, .back2, .back3) before modifying config
func createBackup(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil
	}

	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		logger.Warnw("Failed to delete old config backup",
			logger.FieldPath, back3,
			logger.FieldError, err)
	}

	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}

	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}

	if err := os.WriteFile(back1, content, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}

	return nil
}
