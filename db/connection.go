package db

import (
	"context"
	"database/sql"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/teranos/pulse/errors"
	"github.com/teranos/pulse/sym"
)

// Supported database/sql driver names.
const (
	DriverMattn   = "sqlite3" // github.com/mattn/go-sqlite3 (cgo)
	DriverModernc = "sqlite"  // modernc.org/sqlite (pure Go)
)

// SQLiteBusyTimeoutMS is how long a connection waits on a locked database
// before returning SQLITE_BUSY. The CLI and the daemon share one file.
const SQLiteBusyTimeoutMS = 5000

// Open opens a SQLite database at the specified path with optimized settings.
// WAL mode, foreign keys and the busy timeout are set through the DSN so that
// every pooled connection gets them, not only the first one.
// If logger is provided, logs database operations; otherwise operates silently.
func Open(driver, path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	if driver == "" {
		driver = DriverMattn
	}
	if logger != nil {
		logger.Debugw("Opening database", "path", path, "driver", driver, "symbol", sym.DB)
	}

	dsn, err := buildDSN(driver, path)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "failed to create database directory %s", dir)
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	// sql.Open is lazy; surface a bad path or read-only directory here
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to connect to database %s", path)
	}

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to read journal mode")
	}
	if journalMode != "wal" {
		db.Close()
		return nil, errors.Newf("failed to enable WAL mode (journal_mode=%s)", journalMode)
	}

	if logger != nil {
		logger.Infow("Database opened successfully",
			"path", path,
			"driver", driver,
			"symbol", sym.DB,
			"wal_mode", true,
			"foreign_keys", true,
		)
	}

	return db, nil
}

// OpenWithMigrations opens the database and brings its schema up to date.
func OpenWithMigrations(ctx context.Context, driver, path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	db, err := Open(driver, path, logger)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if err := Migrate(ctx, db, logger); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate database")
	}
	return db, nil
}

// buildDSN encodes the connection pragmas in each driver's own DSN dialect.
func buildDSN(driver, path string) (string, error) {
	timeout := strconv.Itoa(SQLiteBusyTimeoutMS)
	q := url.Values{}

	switch driver {
	case DriverMattn:
		q.Set("_journal_mode", "WAL")
		q.Set("_foreign_keys", "on")
		q.Set("_busy_timeout", timeout)
	case DriverModernc:
		q.Add("_pragma", "journal_mode(WAL)")
		q.Add("_pragma", "foreign_keys(1)")
		q.Add("_pragma", "busy_timeout("+timeout+")")
	default:
		return "", errors.NewInvalidInputError("unsupported database driver %q (want %s or %s)", driver, DriverMattn, DriverModernc)
	}

	return "file:" + path + "?" + q.Encode(), nil
}
