package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/pulse/errors"
)

func TestOpen(t *testing.T) {
	for _, driver := range []string{DriverMattn, DriverModernc} {
		t.Run("applies pragmas with "+driver, func(t *testing.T) {
			dbPath := filepath.Join(t.TempDir(), "test.db")

			db, err := Open(driver, dbPath, nil)
			require.NoError(t, err)
			require.NotNil(t, db)
			defer db.Close()

			var journalMode string
			require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
			assert.Equal(t, "wal", journalMode)

			var foreignKeys int
			require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
			assert.Equal(t, 1, foreignKeys)

			var busyTimeout int
			require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
			assert.Equal(t, SQLiteBusyTimeoutMS, busyTimeout)
		})
	}

	t.Run("rejects unknown drivers", func(t *testing.T) {
		db, err := Open("postgres", filepath.Join(t.TempDir(), "test.db"), nil)
		require.Error(t, err)
		assert.Nil(t, db)
		assert.True(t, errors.IsInvalidInputError(err))
	})

	t.Run("returns error for an unusable path", func(t *testing.T) {
		dir := t.TempDir()
		blocker := filepath.Join(dir, "file")
		require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

		// Parent of the database is a regular file
		db, err := Open(DriverMattn, filepath.Join(blocker, "db.sqlite"), nil)
		require.Error(t, err)
		assert.Nil(t, db)
		assert.NotNil(t, errors.GetStack(err), "error should have stack trace from errors.Wrap")
	})

	t.Run("creates database file and parent directory", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), ".pulse", "new.db")

		db, err := Open(DriverMattn, dbPath, nil)
		require.NoError(t, err)
		defer db.Close()

		_, err = os.Stat(dbPath)
		assert.NoError(t, err)
	})

	t.Run("closed connections are detected", func(t *testing.T) {
		db, err := Open(DriverMattn, filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		db.Close()

		_, err = db.Exec("PRAGMA journal_mode")
		require.Error(t, err)
		assert.True(t, IsDatabaseClosed(err))
		assert.True(t, IsDatabaseClosed(errors.Wrap(err, "pulse tick")))
		assert.False(t, IsDatabaseClosed(nil))
	})
}

func TestOpen_WithLogger(t *testing.T) {
	db, err := Open(DriverMattn, filepath.Join(t.TempDir(), "test.db"), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	require.NotNil(t, db)
	defer db.Close()
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: jobs.name")))
	assert.False(t, IsUniqueViolation(errors.New("disk I/O error")))
	assert.False(t, IsUniqueViolation(nil))
}
