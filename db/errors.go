package db

import (
	"strings"
)

// IsDatabaseClosed reports whether err came from using a *sql.DB after Close.
// database/sql keeps that error unexported, so the message is matched.
// The daemon sees it when the store is closed underneath a finishing tick.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "database is closed")
}

// IsUniqueViolation reports whether err is a UNIQUE constraint failure.
// Both drivers surface the SQLite message text unchanged.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
