package am

import (
	"os"
	"sort"
	"strings"

	"github.com/teranos/pulse/errors"
)

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"      // /etc/pulse/pulse.toml
	SourceUser        ConfigSource = "user"        // ~/.pulse/pulse.toml
	SourceProject     ConfigSource = "project"     // pulse.toml found upward from cwd
	SourceExplicit    ConfigSource = "explicit"    // --config
	SourceEnvironment ConfigSource = "environment" // PULSE_* env vars
)

// SourceInfo tracks where a configuration value originated
type SourceInfo struct {
	Source ConfigSource
	Path   string // File path or environment variable name
}

// SettingInfo contains metadata about a configuration setting
type SettingInfo struct {
	Key        string       `json:"key" yaml:"key"`
	Value      interface{}  `json:"value" yaml:"value"`
	Source     ConfigSource `json:"source" yaml:"source"`
	SourcePath string       `json:"source_path,omitempty" yaml:"source_path,omitempty"`
}

// Introspect returns every effective setting with the source that won
func Introspect() ([]SettingInfo, error) {
	v, err := GetViper()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config for introspection")
	}

	mu.Lock()
	sources := ConfigSources
	mu.Unlock()

	keys := v.AllKeys()
	sort.Strings(keys)

	settings := make([]SettingInfo, 0, len(keys))
	for _, key := range keys {
		info := SourceInfo{Source: SourceDefault, Path: "built-in default"}
		if si, ok := sources[key]; ok {
			info = si
		}
		if env := envNameFor(key); env != "" {
			if _, set := os.LookupEnv(env); set {
				info = SourceInfo{Source: SourceEnvironment, Path: env}
			}
		}

		settings = append(settings, SettingInfo{
			Key:        key,
			Value:      v.Get(key),
			Source:     info.Source,
			SourcePath: info.Path,
		})
	}
	return settings, nil
}

// envNameFor returns the environment variable that overrides key, preferring
// an explicit binding over the automatic PULSE_<KEY> form when both are set.
func envNameFor(key string) string {
	if env, ok := envBindings[key]; ok {
		if _, set := os.LookupEnv(env); set {
			return env
		}
	}
	return "PULSE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
