package am

import (
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/teranos/pulse/errors"
)

// UnknownKeys lists keys in a TOML config file that match no setting,
// e.g. a misspelled pulse.poll_interval_ms. Keys come back sorted and dotted.
func UnknownKeys(path string) ([]string, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}

	var keys []string
	for _, k := range md.Undecoded() {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)
	return keys, nil
}
