package am

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/teranos/pulse/errors"
)

// ProjectConfigName is the file searched for upward from the working directory
const ProjectConfigName = "pulse.toml"

var (
	mu             sync.Mutex
	globalConfig   *Config
	viperInstance  *viper.Viper
	explicitConfig string

	// ConfigSources records which file each merged key came from during the last load
	ConfigSources = map[string]SourceInfo{}
)

// SetConfigPath pins an explicit config file (the --config flag). It is merged
// last, above the system, user and project files. Empty restores discovery.
func SetConfigPath(path string) {
	mu.Lock()
	defer mu.Unlock()
	explicitConfig = path
	globalConfig = nil
	viperInstance = nil
}

// Load reads the pulse configuration using Viper and validates it
func Load() (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	if globalConfig != nil {
		return globalConfig, nil
	}

	v, err := initViper()
	if err != nil {
		return nil, err
	}

	config, err := LoadWithViper(v)
	if err != nil {
		return nil, err
	}

	globalConfig = config
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() (*viper.Viper, error) {
	mu.Lock()
	defer mu.Unlock()
	return initViper()
}

// LoadWithViper loads and validates configuration from a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path on top of the defaults.
// Environment variables are not consulted.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	config, err := LoadWithViper(v)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid config in %s", configPath)
	}
	return config, nil
}

// Reset clears the cached configuration (used by the watcher and tests)
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	viperInstance = nil
}

// ActiveConfigPath returns the highest-precedence config file that exists:
// the explicit --config path, else the project pulse.toml, else "".
func ActiveConfigPath() string {
	mu.Lock()
	p := explicitConfig
	mu.Unlock()
	if p != "" {
		return p
	}
	return findProjectConfig()
}

// initViper initializes Viper with configuration sources and defaults.
// Callers hold mu.
func initViper() (*viper.Viper, error) {
	if viperInstance != nil {
		return viperInstance, nil
	}

	v := viper.New()

	v.SetEnvPrefix("PULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindEnvVars(v)

	SetDefaults(v)

	if err := mergeConfigFiles(v); err != nil {
		return nil, err
	}

	viperInstance = v
	return v, nil
}

// findProjectConfig searches for pulse.toml by walking up the directory tree
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		path := filepath.Join(dir, ProjectConfigName)
		if _, err := os.Stat(path); err == nil {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// configCandidates lists config files in precedence order, lowest first
func configCandidates() []SourceInfo {
	candidates := []SourceInfo{
		{Source: SourceSystem, Path: "/etc/pulse/pulse.toml"},
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, SourceInfo{Source: SourceUser, Path: filepath.Join(home, ".pulse", "pulse.toml")})
	}
	if project := findProjectConfig(); project != "" {
		candidates = append(candidates, SourceInfo{Source: SourceProject, Path: project})
	}
	if explicitConfig != "" {
		candidates = append(candidates, SourceInfo{Source: SourceExplicit, Path: explicitConfig})
	}
	return candidates
}

// mergeConfigFiles merges configuration files in precedence order.
// Precedence (lowest to highest): system < user < project < --config < env vars.
// Files go into viper's config layer so env bindings still win over them.
func mergeConfigFiles(v *viper.Viper) error {
	sources := map[string]SourceInfo{}

	for _, candidate := range configCandidates() {
		if _, err := os.Stat(candidate.Path); err != nil {
			if candidate.Source == SourceExplicit {
				return errors.Wrapf(err, "config file %s", candidate.Path)
			}
			continue
		}

		tempViper := viper.New()
		tempViper.SetConfigFile(candidate.Path)
		tempViper.SetConfigType("toml")

		if err := tempViper.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "failed to parse %s", candidate.Path)
		}

		if err := v.MergeConfigMap(tempViper.AllSettings()); err != nil {
			return errors.Wrapf(err, "failed to merge %s", candidate.Path)
		}

		for _, key := range tempViper.AllKeys() {
			sources[key] = candidate
		}
	}

	ConfigSources = sources
	return nil
}
