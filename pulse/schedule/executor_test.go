package schedule

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/pulse/am"
)

func shellJob(command string) *Job {
	return &Job{ID: "job-1", Name: "probe", Schedule: "1m", Command: command}
}

func newTestExecutor(t *testing.T) *ShellExecutor {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell executor tests need /bin/sh")
	}
	return &ShellExecutor{Mode: am.ExecModeShell, Shell: "/bin/sh", Dir: t.TempDir()}
}

func TestShellExecutor_Success(t *testing.T) {
	e := newTestExecutor(t)

	res := e.Execute(context.Background(), shellJob("echo hello; echo ignored >&2"))
	assert.True(t, res.Succeeded())
	assert.Equal(t, "hello", res.Output)
	assert.Empty(t, res.Error)
}

func TestShellExecutor_Failure(t *testing.T) {
	e := newTestExecutor(t)

	tests := []struct {
		name    string
		command string
		output  string
		errMsg  string
	}{
		{"stderr becomes the error", "echo partial; echo oops >&2; exit 9", "partial", "oops"},
		{"silent failure reports the exit code", "exit 3", "", "exited with code 3"},
		{"unknown command", "definitely-not-a-command-pulse", "", "not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.Execute(context.Background(), shellJob(tt.command))
			assert.Equal(t, StatusFailure, res.Status)
			assert.Equal(t, tt.output, res.Output)
			assert.Contains(t, res.Error, tt.errMsg)
		})
	}
}

func TestShellExecutor_Timeout(t *testing.T) {
	e := newTestExecutor(t)
	job := shellJob("exec sleep 5")
	job.TimeoutSeconds = 1

	res := e.Execute(context.Background(), job)
	assert.Equal(t, StatusFailure, res.Status)
	assert.Contains(t, res.Error, "timed out after 1s")
}

func TestShellExecutor_Environment(t *testing.T) {
	e := newTestExecutor(t)
	e.Env = []string{"PULSE_TEST_EXTRA=yes"}

	res := e.Execute(context.Background(), shellJob(`echo "$PULSE_JOB_NAME $PULSE_JOB_ID $PULSE_TEST_EXTRA"`))
	require.True(t, res.Succeeded(), res.Error)
	assert.Equal(t, "probe job-1 yes", res.Output)
}

func TestShellExecutor_WorkingDirectory(t *testing.T) {
	e := newTestExecutor(t)

	res := e.Execute(context.Background(), shellJob("pwd"))
	require.True(t, res.Succeeded(), res.Error)

	want, err := filepath.EvalSymlinks(e.Dir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(res.Output)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestShellExecutor_DirectMode(t *testing.T) {
	e := newTestExecutor(t)
	e.Mode = am.ExecModeDirect

	res := e.Execute(context.Background(), shellJob(`printf "%s|%s" "a b" c`))
	require.True(t, res.Succeeded(), res.Error)
	assert.Equal(t, "a b|c", res.Output)

	// No shell in direct mode, so redirections are plain arguments
	res = e.Execute(context.Background(), shellJob(`echo hi >&2`))
	require.True(t, res.Succeeded(), res.Error)
	assert.Equal(t, "hi >&2", res.Output)

	res = e.Execute(context.Background(), shellJob(`echo "unterminated`))
	assert.Equal(t, StatusFailure, res.Status)
	assert.Contains(t, res.Error, "cannot split command")
}

func TestShellExecutor_Heartbeat(t *testing.T) {
	e := newTestExecutor(t)
	e.HeartbeatFile = "HEARTBEAT.md"
	job := shellJob(HeartbeatCommand)
	path := filepath.Join(e.Dir, "HEARTBEAT.md")

	t.Run("missing file", func(t *testing.T) {
		res := e.Execute(context.Background(), job)
		assert.True(t, res.Succeeded())
		assert.Equal(t, HeartbeatOK, res.Output)
	})

	t.Run("blank file", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("  \n\t\n"), 0644))
		res := e.Execute(context.Background(), job)
		assert.True(t, res.Succeeded())
		assert.Equal(t, HeartbeatOK, res.Output)
	})

	t.Run("instructions", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("\n- check disk usage\n- rotate logs\n\n"), 0644))
		res := e.Execute(context.Background(), job)
		assert.True(t, res.Succeeded())
		assert.Equal(t, "- check disk usage\n- rotate logs", res.Output)
	})

	t.Run("unreadable path", func(t *testing.T) {
		e := *e
		e.HeartbeatFile = t.TempDir()
		res := e.Execute(context.Background(), job)
		assert.Equal(t, StatusFailure, res.Status)
		assert.Contains(t, res.Error, "heartbeat")
	})
}

func TestNewShellExecutor(t *testing.T) {
	cfg := am.Default()
	cfg.Pulse.Workspace = t.TempDir()
	cfg.Pulse.Exec.DefaultTimeoutSeconds = 30

	e := NewShellExecutor(cfg)
	assert.Equal(t, am.ExecModeShell, e.Mode)
	assert.Equal(t, "/bin/sh", e.Shell)
	assert.Equal(t, cfg.WorkspaceDir(), e.Dir)
	assert.Equal(t, filepath.Join(cfg.WorkspaceDir(), am.DefaultHeartbeatFile), e.HeartbeatFile)
	assert.Equal(t, 30*time.Second, e.DefaultTimeout)
}

func TestExecutorFunc(t *testing.T) {
	var got string
	exec := ExecutorFunc(func(ctx context.Context, job *Job) Result {
		got = job.Name
		return Result{Status: StatusSuccess, Output: "done"}
	})

	res := exec.Execute(context.Background(), shellJob("ignored"))
	assert.Equal(t, "probe", got)
	assert.Equal(t, "done", res.Output)
}
