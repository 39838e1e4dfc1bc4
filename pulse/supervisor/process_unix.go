//go:build !windows

package supervisor

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/teranos/pulse/errors"
)

// detach starts the child in its own session so it survives the parent's
// exit and receives no terminal signals
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// processAlive sends the zero signal. EPERM means the process exists but
// belongs to someone else, which still counts as alive.
func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// terminate asks the process to shut down gracefully
func terminate(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Signal(syscall.SIGTERM)
}
