package schedule

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/teranos/pulse/am"
	"github.com/teranos/pulse/errors"
)

// Result is the outcome of one execution
type Result struct {
	Status string
	Output string
	Error  string
}

// Succeeded reports whether the run counts as a success
func (r Result) Succeeded() bool {
	return r.Status == StatusSuccess
}

// Executor turns a job into an outcome. Implementations report command
// failures in the Result; they never return them as Go errors.
type Executor interface {
	Execute(ctx context.Context, job *Job) Result
}

// ExecutorFunc adapts a function to the Executor interface
type ExecutorFunc func(ctx context.Context, job *Job) Result

// Execute calls f(ctx, job)
func (f ExecutorFunc) Execute(ctx context.Context, job *Job) Result {
	return f(ctx, job)
}

// ShellExecutor runs job commands as OS processes and answers heartbeat jobs
// from the instructions file.
type ShellExecutor struct {
	Mode           string        // am.ExecModeShell or am.ExecModeDirect
	Shell          string        // used in shell mode, invoked as <shell> -c <command>
	Dir            string        // working directory for commands
	HeartbeatFile  string        // absolute path, or relative to Dir
	DefaultTimeout time.Duration // applies when the job has no timeout; 0 = none
	Env            []string      // extra environment, appended to os.Environ()
}

// NewShellExecutor builds the default executor from configuration
func NewShellExecutor(cfg *am.Config) *ShellExecutor {
	return &ShellExecutor{
		Mode:           cfg.Pulse.Exec.Mode,
		Shell:          cfg.Pulse.Exec.Shell,
		Dir:            cfg.WorkspaceDir(),
		HeartbeatFile:  cfg.HeartbeatFilePath(),
		DefaultTimeout: cfg.DefaultTimeout(),
	}
}

// Execute runs the job
func (e *ShellExecutor) Execute(ctx context.Context, job *Job) Result {
	if job.Command == HeartbeatCommand {
		return e.heartbeat()
	}

	timeout := e.DefaultTimeout
	if job.TimeoutSeconds > 0 {
		timeout = time.Duration(job.TimeoutSeconds) * time.Second
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd, err := e.command(ctx, job.Command)
	if err != nil {
		return Result{Status: StatusFailure, Error: err.Error()}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Dir = e.Dir
	cmd.Env = append(os.Environ(), e.Env...)
	cmd.Env = append(cmd.Env, "PULSE_JOB_NAME="+job.Name, "PULSE_JOB_ID="+job.ID)
	// Grandchildren holding the pipes open must not stall the tick
	cmd.WaitDelay = 5 * time.Second

	runErr := cmd.Run()
	out := strings.TrimSpace(stdout.String())
	errOut := strings.TrimSpace(stderr.String())

	if runErr == nil {
		return Result{Status: StatusSuccess, Output: out}
	}

	if ctx.Err() == context.DeadlineExceeded {
		msg := fmt.Sprintf("timed out after %s", timeout)
		if errOut != "" {
			msg += ": " + errOut
		}
		return Result{Status: StatusFailure, Output: out, Error: msg}
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		if errOut == "" {
			errOut = fmt.Sprintf("exited with code %d", exitErr.ExitCode())
		}
		return Result{Status: StatusFailure, Output: out, Error: errOut}
	}

	// The process never started: missing binary, bad working directory
	return Result{Status: StatusFailure, Output: out, Error: runErr.Error()}
}

// command builds the process for the configured mode
func (e *ShellExecutor) command(ctx context.Context, command string) (*exec.Cmd, error) {
	if e.Mode == am.ExecModeDirect {
		args, err := shellquote.Split(command)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot split command %q", command)
		}
		if len(args) == 0 {
			return nil, errors.New("empty command")
		}
		return exec.CommandContext(ctx, args[0], args[1:]...), nil
	}

	shell := e.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	return exec.CommandContext(ctx, shell, "-c", command), nil
}

// heartbeat returns the trimmed instructions file, or HeartbeatOK when it is
// missing or empty. Only an unexpected read error counts as a failure.
func (e *ShellExecutor) heartbeat() Result {
	path := e.HeartbeatFile
	if path == "" {
		path = am.DefaultHeartbeatFile
	}
	if !filepath.IsAbs(path) && e.Dir != "" {
		path = filepath.Join(e.Dir, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Status: StatusSuccess, Output: HeartbeatOK}
		}
		return Result{Status: StatusFailure, Error: fmt.Sprintf("heartbeat: %v", err)}
	}

	content := strings.TrimSpace(string(data))
	if content == "" {
		content = HeartbeatOK
	}
	return Result{Status: StatusSuccess, Output: content}
}
