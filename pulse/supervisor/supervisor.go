// Package supervisor manages the daemon's OS-level lifecycle: detached start,
// PID-file bookkeeping, liveness probing and graceful stop.
package supervisor

import (
	"os"
	"os/exec"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/teranos/pulse/errors"
	"github.com/teranos/pulse/logger"
)

// Defaults for Config timings
const (
	DefaultStartGrace  = 300 * time.Millisecond
	DefaultStopTimeout = 10 * time.Second
)

// Config describes how to spawn and track the daemon process
type Config struct {
	PIDFile    string   // absolute path of the PID file
	Executable string   // binary to re-invoke; defaults to the running executable
	Args       []string // arguments selecting the foreground run loop, e.g. ["daemon", "run"]
	Env        []string // extra environment for the child
	Dir        string   // working directory for the child
	LogFile    string   // receives the child's stdout/stderr; empty discards them

	// StartGrace is how long Start watches the child for an immediate exit
	StartGrace time.Duration
	// StopTimeout bounds how long Stop waits for the process to go away
	StopTimeout time.Duration
}

// Status is the observed daemon state
type Status struct {
	Running   bool      `json:"running"`
	PID       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero"`
	RSSBytes  uint64    `json:"rss_bytes,omitempty"`
}

// Supervisor controls one daemon identified by its PID file
type Supervisor struct {
	cfg    Config
	logger *zap.SugaredLogger
}

// New creates a supervisor. A nil logger discards output.
func New(cfg Config, log *zap.SugaredLogger) *Supervisor {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.StartGrace <= 0 {
		cfg.StartGrace = DefaultStartGrace
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	return &Supervisor{cfg: cfg, logger: log}
}

// Status reads the PID file and probes the process. A file that is
// unreadable or points at a dead process is stale and gets removed.
func (s *Supervisor) Status() (Status, error) {
	pid, err := ReadPIDFile(s.cfg.PIDFile)
	if err != nil {
		if isNotExist(err) {
			return Status{}, nil
		}
		if errors.IsInvalidInputError(err) {
			s.logger.Warnw("Removing malformed PID file", logger.FieldPath, s.cfg.PIDFile, logger.FieldError, err)
			return Status{}, removePIDFile(s.cfg.PIDFile)
		}
		return Status{}, err
	}

	if !processAlive(pid) {
		s.logger.Debugw("Removing stale PID file", logger.FieldPath, s.cfg.PIDFile, logger.FieldPID, pid)
		return Status{}, removePIDFile(s.cfg.PIDFile)
	}

	st := Status{Running: true, PID: pid}
	describe(&st)
	return st, nil
}

// describe fills in process details; they are informational, so failures are ignored
func describe(st *Status) {
	p, err := process.NewProcess(int32(st.PID))
	if err != nil {
		return
	}
	if ms, err := p.CreateTime(); err == nil {
		st.StartedAt = time.UnixMilli(ms)
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		st.RSSBytes = mem.RSS
	}
}

// Start spawns the daemon detached from this process and records its PID.
// If a daemon is already running its status is returned unchanged.
func (s *Supervisor) Start() (Status, error) {
	st, err := s.Status()
	if err != nil {
		return Status{}, err
	}
	if st.Running {
		return st, nil
	}

	exe := s.cfg.Executable
	if exe == "" {
		if exe, err = os.Executable(); err != nil {
			return Status{}, errors.Wrap(err, "failed to resolve executable")
		}
	}

	cmd := exec.Command(exe, s.cfg.Args...)
	cmd.Env = append(os.Environ(), s.cfg.Env...)
	cmd.Dir = s.cfg.Dir
	detach(cmd)

	if s.cfg.LogFile != "" {
		out, err := openLogFile(s.cfg.LogFile)
		if err != nil {
			return Status{}, err
		}
		defer out.Close()
		cmd.Stdout = out
		cmd.Stderr = out
	}

	if err := cmd.Start(); err != nil {
		return Status{}, errors.Wrapf(err, "failed to start daemon (binary=%s, args=%v)", exe, s.cfg.Args)
	}
	pid := cmd.Process.Pid

	// Reap the child if it exits while we are still around
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	if err := WritePIDFile(s.cfg.PIDFile, pid); err != nil {
		_ = terminate(pid)
		return Status{}, err
	}

	select {
	case waitErr := <-exited:
		_ = removePIDFile(s.cfg.PIDFile)
		err := errors.Newf("daemon exited immediately (pid %d): %v", pid, waitErr)
		if s.cfg.LogFile != "" {
			err = errors.WithHint(err, "see "+s.cfg.LogFile)
		}
		return Status{}, err
	case <-time.After(s.cfg.StartGrace):
	}

	logger.AddPulseOpenSymbol(s.logger).Infow("Daemon started",
		logger.FieldPID, pid,
		logger.FieldPath, s.cfg.PIDFile)

	st = Status{Running: true, PID: pid}
	describe(&st)
	return st, nil
}

// Stop signals a running daemon to terminate, waits up to StopTimeout for it
// to exit and then removes the PID file. The process finishing on its own
// between the probe and the signal is not an error.
//
// A daemon still busy with a long command after StopTimeout keeps its PID
// file, so status keeps reporting it and start does not launch a second one.
// Its run loop removes the file when it finally exits.
func (s *Supervisor) Stop() (Status, error) {
	st, err := s.Status()
	if err != nil {
		return Status{}, err
	}
	if !st.Running {
		return Status{}, nil
	}

	if err := terminate(st.PID); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Warnw("Failed to signal daemon", logger.FieldPID, st.PID, logger.FieldError, err)
	}

	if !waitForExit(st.PID, s.cfg.StopTimeout) {
		s.logger.Warnw("Daemon still running after stop timeout",
			logger.FieldPID, st.PID,
			"timeout", s.cfg.StopTimeout)
		return st, errors.WithHint(
			errors.Newf("daemon (pid %d) is still finishing its current job", st.PID),
			"it exits once the job completes; check with 'pulse daemon status'")
	}

	if err := removePIDFile(s.cfg.PIDFile); err != nil {
		return Status{}, err
	}

	logger.AddPulseCloseSymbol(s.logger).Infow("Daemon stopped", logger.FieldPID, st.PID)
	return Status{}, nil
}

// waitForExit polls liveness until the process is gone or timeout passes
func waitForExit(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return !processAlive(pid)
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(dirOf(path), 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create log directory for %s", path)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open daemon log %s", path)
	}
	return f, nil
}
