package schedule

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	pulsetest "github.com/teranos/pulse/internal/testing"
)

// baseTime is a whole-second instant so stored RFC3339 values round-trip exactly
var baseTime = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// stepClock returns a clock that advances one second per call, which keeps
// created_at ordering deterministic across rows
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	t := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := t
		t = t.Add(time.Second)
		return now
	}
}

func newTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	s := NewSQLStore(pulsetest.CreateTestDB(t))
	s.now = stepClock(baseTime)
	return s
}

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(filepath.Join(t.TempDir(), ".pulse", "jobs.json"))
	if err != nil {
		t.Fatalf("Failed to create file store: %v", err)
	}
	s.now = stepClock(baseTime)
	return s
}

// forEachStore runs fn against both backends
func forEachStore(t *testing.T, fn func(t *testing.T, store JobStore)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, newTestSQLStore(t)) })
	t.Run("json", func(t *testing.T) { fn(t, newTestFileStore(t)) })
}
