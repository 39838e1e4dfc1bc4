package testing

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/teranos/pulse/db"
)

// CreateTestDB creates a migrated SQLite test database in a per-test temp dir.
// A file is used rather than :memory: so every pooled connection sees the
// same schema. Automatically registers cleanup via t.Cleanup().
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := db.OpenWithMigrations(context.Background(), db.DriverMattn, filepath.Join(t.TempDir(), "pulse.db"), nil)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
	})

	return conn
}
