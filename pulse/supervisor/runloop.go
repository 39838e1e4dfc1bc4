package supervisor

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/teranos/pulse/errors"
	"github.com/teranos/pulse/logger"
)

// Runner is the blocking loop hosted by RunLoop, normally *schedule.Daemon
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner
type RunnerFunc func(ctx context.Context) error

// Run calls f(ctx)
func (f RunnerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// RunLoop is the foreground entrypoint of a daemon process. It claims the
// PID file, runs r until SIGINT or SIGTERM (or ctx) stops it, then releases
// the file if it still owns it. It refuses to start when a different live
// process owns the PID file. An empty pidFile skips the bookkeeping.
func RunLoop(ctx context.Context, r Runner, pidFile string, log *zap.SugaredLogger) error {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if pidFile != "" {
		if err := claimPIDFile(pidFile); err != nil {
			return err
		}
		defer releasePIDFile(pidFile, log)
	}

	log.Infow("Daemon run loop started", logger.FieldPID, os.Getpid(), logger.FieldPath, pidFile)
	err := r.Run(ctx)
	log.Infow("Daemon run loop finished", logger.FieldPID, os.Getpid())
	return err
}

func claimPIDFile(path string) error {
	self := os.Getpid()
	if pid, err := ReadPIDFile(path); err == nil && pid != self && processAlive(pid) {
		return errors.WithHint(
			errors.NewConflictError("daemon already running (pid %d)", pid),
			"stop it with 'pulse daemon stop' first")
	}
	return WritePIDFile(path, self)
}

// releasePIDFile removes the file unless a supervisor already removed it or
// another daemon has taken it over
func releasePIDFile(path string, log *zap.SugaredLogger) {
	pid, err := ReadPIDFile(path)
	if err != nil || pid != os.Getpid() {
		return
	}
	if err := removePIDFile(path); err != nil {
		log.Warnw("Failed to remove PID file", logger.FieldPath, path, logger.FieldError, err)
	}
}
