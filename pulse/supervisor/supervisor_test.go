package supervisor

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/pulse/errors"
)

// TestHelperProcess is not a real test. It is the daemon body re-invoked by
// the supervisor tests through the test binary.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	mode := os.Getenv("PULSE_TEST_HELPER_MODE")
	if mode == "exit" {
		os.Exit(3)
	}

	idle := RunnerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		if mode == "slow" {
			// still finishing a job when the stop arrives
			time.Sleep(2 * time.Second)
		}
		return nil
	})
	if err := RunLoop(context.Background(), idle, os.Getenv("PULSE_TEST_PID_FILE"), nil); err != nil {
		os.Exit(2)
	}
	os.Exit(0)
}

func helperConfig(t *testing.T, env ...string) Config {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("helper daemon relies on SIGTERM")
	}
	dir := t.TempDir()
	pidFile := filepath.Join(dir, ".pulse", "daemon.pid")
	return Config{
		PIDFile:    pidFile,
		Executable: os.Args[0],
		Args:       []string{"-test.run=^TestHelperProcess$"},
		Env: append([]string{
			"GO_WANT_HELPER_PROCESS=1",
			"PULSE_TEST_PID_FILE=" + pidFile,
		}, env...),
		Dir:         dir,
		LogFile:     filepath.Join(dir, ".pulse", "daemon.log"),
		StopTimeout: 5 * time.Second,
	}
}

func TestStatus_FreshWorkspace(t *testing.T) {
	s := New(Config{PIDFile: filepath.Join(t.TempDir(), "daemon.pid")}, nil)

	st, err := s.Status()
	require.NoError(t, err)
	assert.False(t, st.Running)
	assert.Zero(t, st.PID)
}

func TestStatus_RemovesStaleFiles(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs the true binary")
	}

	// A process that has already exited and been reaped
	dead := exec.Command("true")
	require.NoError(t, dead.Run())
	deadPID := dead.ProcessState.Pid()

	tests := []struct {
		name    string
		content string
	}{
		{"dead process", strconv.Itoa(deadPID)},
		{"garbage", "not-a-pid"},
		{"empty", ""},
		{"negative", "-4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "daemon.pid")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			st, err := New(Config{PIDFile: path}, zaptest.NewLogger(t).Sugar()).Status()
			require.NoError(t, err)
			assert.False(t, st.Running)

			_, err = os.Stat(path)
			assert.True(t, os.IsNotExist(err), "stale PID file should be removed")
		})
	}
}

func TestStatus_LiveProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	require.NoError(t, WritePIDFile(path, os.Getpid()))

	st, err := New(Config{PIDFile: path}, nil).Status()
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Equal(t, os.Getpid(), st.PID)
	if runtime.GOOS == "linux" {
		assert.False(t, st.StartedAt.IsZero())
		assert.NotZero(t, st.RSSBytes)
	}
}

func TestStartStop(t *testing.T) {
	cfg := helperConfig(t)
	s := New(cfg, zaptest.NewLogger(t).Sugar())

	st, err := s.Status()
	require.NoError(t, err)
	require.False(t, st.Running)

	st, err = s.Start()
	require.NoError(t, err)
	require.True(t, st.Running)
	require.Positive(t, st.PID)
	pid := st.PID
	t.Cleanup(func() {
		if processAlive(pid) {
			_ = terminate(pid)
		}
	})

	recorded, err := ReadPIDFile(cfg.PIDFile)
	require.NoError(t, err)
	assert.Equal(t, pid, recorded)

	again, err := s.Start()
	require.NoError(t, err)
	assert.True(t, again.Running)
	assert.Equal(t, pid, again.PID, "start is idempotent while running")

	st, err = s.Stop()
	require.NoError(t, err)
	assert.False(t, st.Running)

	st, err = s.Status()
	require.NoError(t, err)
	assert.False(t, st.Running)
	assert.False(t, processAlive(pid), "daemon should have exited on SIGTERM")

	st, err = s.Stop()
	require.NoError(t, err)
	assert.False(t, st.Running, "stop without a daemon is a no-op")
}

func TestStop_SlowDaemonKeepsPIDFile(t *testing.T) {
	cfg := helperConfig(t, "PULSE_TEST_HELPER_MODE=slow")
	cfg.StopTimeout = 100 * time.Millisecond
	s := New(cfg, zaptest.NewLogger(t).Sugar())

	st, err := s.Start()
	require.NoError(t, err)
	pid := st.PID
	t.Cleanup(func() {
		if processAlive(pid) {
			_ = terminate(pid)
		}
	})

	st, err = s.Stop()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still finishing")
	assert.True(t, st.Running)

	recorded, err := ReadPIDFile(cfg.PIDFile)
	require.NoError(t, err, "PID file stays while the daemon is alive")
	assert.Equal(t, pid, recorded)

	again, err := s.Start()
	require.NoError(t, err)
	assert.Equal(t, pid, again.PID, "no second daemon while the first is finishing")

	require.Eventually(t, func() bool { return !processAlive(pid) }, 10*time.Second, 50*time.Millisecond)
	st, err = s.Status()
	require.NoError(t, err)
	assert.False(t, st.Running)
}

func TestStart_ImmediateExitIsReported(t *testing.T) {
	cfg := helperConfig(t, "PULSE_TEST_HELPER_MODE=exit")
	cfg.StartGrace = 10 * time.Second
	s := New(cfg, nil)

	_, err := s.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited immediately")
	assert.Contains(t, errors.FlattenHints(err), cfg.LogFile)

	st, err := s.Status()
	require.NoError(t, err)
	assert.False(t, st.Running)
}

func TestRunLoop_ClaimsAndReleasesPIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "daemon.pid")

	var seen int
	err := RunLoop(context.Background(), RunnerFunc(func(ctx context.Context) error {
		pid, err := ReadPIDFile(path)
		seen = pid
		return err
	}), path, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	assert.Equal(t, os.Getpid(), seen)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestRunLoop_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunLoop(ctx, RunnerFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		}), "", nil)
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run loop did not stop")
	}
}

func TestRunLoop_RefusesWhenAnotherDaemonOwnsPIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	// The test runner's parent is alive for the duration of the test
	require.NoError(t, WritePIDFile(path, os.Getppid()))

	ran := false
	err := RunLoop(context.Background(), RunnerFunc(func(ctx context.Context) error {
		ran = true
		return nil
	}), path, nil)

	require.Error(t, err)
	assert.True(t, errors.IsConflictError(err))
	assert.False(t, ran)

	pid, err := ReadPIDFile(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getppid(), pid, "the other daemon's PID file is left alone")
}

func TestRunLoop_TakesOverStalePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0644))

	err := RunLoop(context.Background(), RunnerFunc(func(ctx context.Context) error {
		return errors.New("store unavailable")
	}), path, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "store unavailable")
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPIDFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "daemon.pid")
	require.NoError(t, WritePIDFile(path, 4242))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "4242\n", string(data))

	pid, err := ReadPIDFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)

	_, err = ReadPIDFile(filepath.Join(t.TempDir(), "missing.pid"))
	require.Error(t, err)
	assert.True(t, isNotExist(err))
}
