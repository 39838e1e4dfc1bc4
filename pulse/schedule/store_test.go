package schedule

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/pulse/am"
	"github.com/teranos/pulse/errors"
	"github.com/teranos/pulse/internal/util"
)

func TestCreateAndGet(t *testing.T) {
	forEachStore(t, func(t *testing.T, store JobStore) {
		ctx := context.Background()
		start := baseTime.Add(time.Hour)
		end := baseTime.Add(48 * time.Hour)

		created, err := store.Create(ctx, JobSpec{
			Name:           "backup",
			Schedule:       "1h",
			Command:        "tar czf /tmp/b.tgz .",
			OnFailure:      OnFailureRetry,
			Retries:        3,
			TimeoutSeconds: 120,
			StartAt:        &start,
			EndAt:          &end,
			MaxRuns:        10,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)

		got, err := store.Get(ctx, "backup")
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, "backup", got.Name)
		assert.Equal(t, "1h", got.Schedule)
		assert.Equal(t, "tar czf /tmp/b.tgz .", got.Command)
		assert.True(t, got.Enabled, "jobs are enabled by default")
		assert.Equal(t, OnFailureRetry, got.OnFailure)
		assert.Equal(t, 3, got.Retries)
		assert.Equal(t, 120, got.TimeoutSeconds)
		assert.Equal(t, util.Ptr(formatTime(start)), got.StartAt)
		assert.Equal(t, util.Ptr(formatTime(end)), got.EndAt)
		assert.Equal(t, 10, got.MaxRuns)
		assert.Nil(t, got.NextRunAt)
		assert.Nil(t, got.LastRunAt)
		assert.Nil(t, got.LastStatus)
		assert.Equal(t, formatTime(baseTime), got.CreatedAt)
	})
}

func TestCreate_Defaults(t *testing.T) {
	forEachStore(t, func(t *testing.T, store JobStore) {
		job, err := store.Create(context.Background(), JobSpec{Name: "tidy", Schedule: "1d", Command: "true", Disabled: true})
		require.NoError(t, err)
		assert.Equal(t, OnFailureNotify, job.OnFailure)
		assert.False(t, job.Enabled)
	})
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name string
		spec JobSpec
	}{
		{"missing name", JobSpec{Schedule: "1h", Command: "true"}},
		{"missing schedule", JobSpec{Name: "a", Command: "true"}},
		{"missing command", JobSpec{Name: "a", Schedule: "1h"}},
		{"blank command", JobSpec{Name: "a", Schedule: "1h", Command: "   "}},
		{"invalid schedule", JobSpec{Name: "a", Schedule: "sometimes", Command: "true"}},
		{"whitespace in name", JobSpec{Name: "a b", Schedule: "1h", Command: "true"}},
		{"unknown policy", JobSpec{Name: "a", Schedule: "1h", Command: "true", OnFailure: "panic"}},
		{"negative retries", JobSpec{Name: "a", Schedule: "1h", Command: "true", Retries: -1}},
		{"end before start", JobSpec{Name: "a", Schedule: "1h", Command: "true",
			StartAt: util.Ptr(baseTime.Add(time.Hour)), EndAt: util.Ptr(baseTime)}},
	}

	forEachStore(t, func(t *testing.T, store JobStore) {
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := store.Create(context.Background(), tt.spec)
				require.Error(t, err)
				assert.True(t, errors.IsInvalidInputError(err), "got %v", err)
			})
		}

		jobs, err := store.List(context.Background())
		require.NoError(t, err)
		assert.Empty(t, jobs)
	})
}

func TestCreate_DuplicateName(t *testing.T) {
	forEachStore(t, func(t *testing.T, store JobStore) {
		ctx := context.Background()
		_, err := store.Create(ctx, JobSpec{Name: "dup", Schedule: "1h", Command: "true"})
		require.NoError(t, err)

		_, err = store.Create(ctx, JobSpec{Name: "dup", Schedule: "2h", Command: "false"})
		require.Error(t, err)
		assert.True(t, errors.IsConflictError(err))
		assert.Equal(t, errors.ExitConflict, errors.ExitCode(err))
	})
}

func TestList_NewestFirst(t *testing.T) {
	forEachStore(t, func(t *testing.T, store JobStore) {
		ctx := context.Background()
		for _, name := range []string{"first", "second", "third"} {
			_, err := store.Create(ctx, JobSpec{Name: name, Schedule: "1h", Command: "true"})
			require.NoError(t, err)
		}
		require.NoError(t, store.SetEnabled(ctx, "second", false))

		jobs, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, jobs, 3)
		assert.Equal(t, []string{"third", "second", "first"}, names(jobs))

		enabled, err := store.ListEnabled(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"third", "first"}, names(enabled))
	})
}

func TestRemove(t *testing.T) {
	forEachStore(t, func(t *testing.T, store JobStore) {
		ctx := context.Background()
		job, err := store.Create(ctx, JobSpec{Name: "gone", Schedule: "1h", Command: "true"})
		require.NoError(t, err)
		require.NoError(t, store.AppendLog(ctx, job.ID, LogEntry{
			JobName: "gone", Status: StatusSuccess,
			StartedAt: formatTime(baseTime), FinishedAt: formatTime(baseTime),
		}))

		removed, err := store.Remove(ctx, "gone")
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = store.Remove(ctx, "gone")
		require.NoError(t, err)
		assert.False(t, removed, "second remove reports nothing removed")

		_, err = store.Get(ctx, "gone")
		assert.True(t, errors.IsNotFoundError(err))

		logs, err := store.ListLogs(ctx, "gone", 0, nil)
		require.NoError(t, err)
		assert.Empty(t, logs, "logs never outlive their job")
	})
}

func TestUnknownNames(t *testing.T) {
	forEachStore(t, func(t *testing.T, store JobStore) {
		ctx := context.Background()

		_, err := store.Get(ctx, "nope")
		assert.True(t, errors.IsNotFoundError(err))
		assert.True(t, errors.IsNotFoundError(store.SetEnabled(ctx, "nope", true)))
		_, err = store.Update(ctx, "nope", JobPatch{Command: util.Ptr("true")})
		assert.True(t, errors.IsNotFoundError(err))
		assert.True(t, errors.IsNotFoundError(store.SetNextRun(ctx, "nope", baseTime)))
		assert.True(t, errors.IsNotFoundError(store.RecordRun(ctx, "nope", RunState{})))
	})
}

func TestUpdate_MergeSemantics(t *testing.T) {
	forEachStore(t, func(t *testing.T, store JobStore) {
		ctx := context.Background()
		_, err := store.Create(ctx, JobSpec{Name: "report", Schedule: "1h", Command: "make report", Retries: 2, OnFailure: OnFailureRetry})
		require.NoError(t, err)
		require.NoError(t, store.SetNextRun(ctx, "report", baseTime.Add(time.Hour)))

		updated, err := store.Update(ctx, "report", JobPatch{Command: util.Ptr("make report-v2")})
		require.NoError(t, err)
		assert.Equal(t, "make report-v2", updated.Command)
		assert.Equal(t, "1h", updated.Schedule, "omitted fields are unchanged")
		assert.Equal(t, 2, updated.Retries)
		assert.Equal(t, OnFailureRetry, updated.OnFailure)
		assert.NotNil(t, updated.NextRunAt, "command change keeps the schedule state")

		got, err := store.Get(ctx, "report")
		require.NoError(t, err)
		assert.Equal(t, updated, got)

		updated, err = store.Update(ctx, "report", JobPatch{Schedule: util.Ptr("30m")})
		require.NoError(t, err)
		assert.Equal(t, "30m", updated.Schedule)
		assert.Nil(t, updated.NextRunAt, "schedule change forces recompute")

		_, err = store.Update(ctx, "report", JobPatch{Schedule: util.Ptr("whenever")})
		assert.True(t, errors.IsInvalidInputError(err))

		same, err := store.Update(ctx, "report", JobPatch{})
		require.NoError(t, err)
		assert.Equal(t, updated.UpdatedAt, same.UpdatedAt, "empty patch is a no-op")
	})
}

func TestSetEnabled_ReenableClearsNextRun(t *testing.T) {
	forEachStore(t, func(t *testing.T, store JobStore) {
		ctx := context.Background()
		_, err := store.Create(ctx, JobSpec{Name: "sync", Schedule: "5m", Command: "true"})
		require.NoError(t, err)
		require.NoError(t, store.SetNextRun(ctx, "sync", baseTime))

		require.NoError(t, store.SetEnabled(ctx, "sync", false))
		job, err := store.Get(ctx, "sync")
		require.NoError(t, err)
		assert.False(t, job.Enabled)
		assert.NotNil(t, job.NextRunAt)

		require.NoError(t, store.SetEnabled(ctx, "sync", false), "idempotent")

		require.NoError(t, store.SetEnabled(ctx, "sync", true))
		job, err = store.Get(ctx, "sync")
		require.NoError(t, err)
		assert.True(t, job.Enabled)
		assert.Nil(t, job.NextRunAt)
	})
}

func TestRecordRun(t *testing.T) {
	forEachStore(t, func(t *testing.T, store JobStore) {
		ctx := context.Background()
		_, err := store.Create(ctx, JobSpec{Name: "ping", Schedule: "1m", Command: "true"})
		require.NoError(t, err)

		require.NoError(t, store.RecordRun(ctx, "ping", RunState{
			LastRunAt:           baseTime,
			LastStatus:          StatusFailure,
			NextRunAt:           baseTime.Add(time.Minute),
			RunCount:            4,
			ConsecutiveFailures: 2,
			Disable:             true,
		}))

		job, err := store.Get(ctx, "ping")
		require.NoError(t, err)
		assert.Equal(t, formatTime(baseTime), *job.LastRunAt)
		assert.Equal(t, StatusFailure, *job.LastStatus)
		assert.Equal(t, formatTime(baseTime.Add(time.Minute)), *job.NextRunAt)
		assert.Equal(t, 4, job.RunCount)
		assert.Equal(t, 2, job.ConsecutiveFailures)
		assert.False(t, job.Enabled)
	})
}

func TestRecordRun_KeepsEnabledFlag(t *testing.T) {
	forEachStore(t, func(t *testing.T, store JobStore) {
		ctx := context.Background()
		_, err := store.Create(ctx, JobSpec{Name: "ping", Schedule: "1m", Command: "true"})
		require.NoError(t, err)
		require.NoError(t, store.SetEnabled(ctx, "ping", false))

		require.NoError(t, store.RecordRun(ctx, "ping", RunState{
			LastRunAt:  baseTime,
			LastStatus: StatusSuccess,
			NextRunAt:  baseTime.Add(time.Minute),
			RunCount:   1,
		}))

		job, err := store.Get(ctx, "ping")
		require.NoError(t, err)
		assert.False(t, job.Enabled, "recording a run must not re-enable a disabled job")
		assert.Equal(t, 1, job.RunCount)
	})
}

func TestListLogs(t *testing.T) {
	forEachStore(t, func(t *testing.T, store JobStore) {
		ctx := context.Background()
		job, err := store.Create(ctx, JobSpec{Name: "etl", Schedule: "1h", Command: "true"})
		require.NoError(t, err)
		other, err := store.Create(ctx, JobSpec{Name: "other", Schedule: "1h", Command: "true"})
		require.NoError(t, err)

		for i := 0; i < 5; i++ {
			started := baseTime.Add(time.Duration(i) * time.Hour)
			require.NoError(t, store.AppendLog(ctx, job.ID, LogEntry{
				JobName:    "etl",
				Status:     StatusSuccess,
				StartedAt:  formatTime(started),
				FinishedAt: formatTime(started.Add(time.Second)),
				DurationMs: 1000,
				Output:     started.Format("15:04"),
			}))
		}
		require.NoError(t, store.AppendLog(ctx, other.ID, LogEntry{
			JobName: "other", Status: StatusFailure,
			StartedAt: formatTime(baseTime), FinishedAt: formatTime(baseTime),
		}))

		logs, err := store.ListLogs(ctx, "etl", 0, nil)
		require.NoError(t, err)
		require.Len(t, logs, 5)
		assert.Equal(t, "13:00", logs[0].Output, "newest first")
		assert.Equal(t, "09:00", logs[4].Output)
		assert.Equal(t, job.ID, logs[0].JobID)
		assert.NotEmpty(t, logs[0].ID)

		logs, err = store.ListLogs(ctx, "etl", 2, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"13:00", "12:00"}, outputs(logs))

		since := baseTime.Add(3 * time.Hour)
		logs, err = store.ListLogs(ctx, "etl", 0, &since)
		require.NoError(t, err)
		assert.Equal(t, []string{"13:00", "12:00"}, outputs(logs))

		logs, err = store.ListLogs(ctx, "missing", 10, nil)
		require.NoError(t, err)
		assert.Empty(t, logs)
	})
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := NewFileStore(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupted")
}

func TestFileStore_SharedBetweenInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	cli, err := NewFileStore(path)
	require.NoError(t, err)
	daemon, err := NewFileStore(path)
	require.NoError(t, err)

	_, err = cli.Create(context.Background(), JobSpec{Name: "shared", Schedule: "1h", Command: "true"})
	require.NoError(t, err)

	job, err := daemon.Get(context.Background(), "shared")
	require.NoError(t, err)
	assert.Equal(t, "shared", job.Name)
}

func TestFileStore_ConcurrentWritersAcrossHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	cli, err := NewFileStore(path)
	require.NoError(t, err)
	daemon, err := NewFileStore(path)
	require.NoError(t, err)

	const perHandle = 20
	var wg sync.WaitGroup
	errs := make(chan error, 2*perHandle)
	for i := 0; i < perHandle; i++ {
		for h, store := range []*FileStore{cli, daemon} {
			wg.Add(1)
			go func(name string, store *FileStore) {
				defer wg.Done()
				_, err := store.Create(context.Background(), JobSpec{Name: name, Schedule: "1h", Command: "true"})
				errs <- err
			}(fmt.Sprintf("job-%d-%d", h, i), store)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	jobs, err := cli.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, jobs, 2*perHandle, "no write is lost between handles")
}

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()
	cfg := am.Default()
	cfg.Pulse.Workspace = dir

	store, err := OpenStore(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLStore{}, store)
	require.NoError(t, store.Close())
	_, err = os.Stat(filepath.Join(dir, am.DefaultDatabasePath))
	assert.NoError(t, err)

	cfg.Database.Backend = am.BackendJSON
	store, err = OpenStore(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)
	require.NoError(t, store.Close())

	cfg.Database.Backend = "etcd"
	_, err = OpenStore(context.Background(), cfg, nil)
	assert.True(t, errors.IsInvalidInputError(err))
}

func TestSQLStore_DriverErrorsAreRuntime(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	store := NewSQLStore(conn)
	defer store.Close()

	mock.ExpectQuery(`FROM jobs WHERE name = \?`).
		WillReturnError(errors.New("disk I/O error"))

	_, err = store.Get(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, errors.KindRuntime, errors.Kind(err))
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func names(jobs []*Job) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.Name
	}
	return out
}

func outputs(logs []*LogEntry) []string {
	out := make([]string, len(logs))
	for i, l := range logs {
		out[i] = l.Output
	}
	return out
}
