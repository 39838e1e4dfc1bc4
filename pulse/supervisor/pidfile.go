package supervisor

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/teranos/pulse/errors"
)

// ReadPIDFile returns the PID recorded at path. Malformed content is an
// invalid-input error.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read PID file %s", path)
	}

	text := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(text)
	if err != nil || pid <= 0 {
		return 0, errors.NewInvalidInputError("PID file %s holds %q, not a process id", path, text)
	}
	return pid, nil
}

// WritePIDFile atomically records pid at path
func WritePIDFile(path string, pid int) error {
	if err := os.MkdirAll(dirOf(path), 0755); err != nil {
		return errors.Wrapf(err, "failed to create PID file directory for %s", path)
	}

	tmp, err := os.CreateTemp(dirOf(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "failed to write PID file %s", path)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(strconv.Itoa(pid) + "\n"); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to write PID file %s", path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to write PID file %s", path)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return errors.Wrapf(err, "failed to write PID file %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "failed to write PID file %s", path)
	}
	return nil
}

func removePIDFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to remove PID file %s", path)
	}
	return nil
}

func dirOf(path string) string {
	return filepath.Dir(path)
}

// isNotExist reports whether err wraps a missing-file error
func isNotExist(err error) bool {
	return os.IsNotExist(errors.UnwrapAll(err))
}
