package schedule

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/teranos/pulse/errors"
)

// fileDocument is the on-disk shape of the JSON store
type fileDocument struct {
	Version int         `json:"version"`
	Jobs    []*Job      `json:"jobs"`
	Logs    []*LogEntry `json:"logs"`
}

const fileDocumentVersion = 1

const fileLockRetry = 10 * time.Millisecond

// FileStore is a JobStore over a single JSON document.
// Every operation re-reads the file so the CLI and the daemon see each
// other's writes; writes go through a temp file and rename.
//
// Separate handles (the CLI and the daemon, or two stores in one process)
// serialize through an OS lock on the <path>.lock sidecar. mu serializes
// goroutines sharing one handle, since a flock.Flock is reentrant for its owner.
type FileStore struct {
	path string
	lock *flock.Flock
	mu   sync.Mutex
	now  func() time.Time
}

// NewFileStore opens (or lazily creates) the JSON store at path
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create store directory for %s", path)
	}
	fs := &FileStore{path: path, lock: flock.New(path + ".lock"), now: time.Now}

	// Surface a corrupt file at open rather than on the first tick
	if _, err := fs.read(context.Background()); err != nil {
		return nil, err
	}
	return fs, nil
}

// withLock runs fn holding the sidecar lock, exclusive for writers and
// shared for readers
func (s *FileStore) withLock(ctx context.Context, exclusive bool, fn func() error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var locked bool
	if exclusive {
		locked, err = s.lock.TryLockContext(ctx, fileLockRetry)
	} else {
		locked, err = s.lock.TryRLockContext(ctx, fileLockRetry)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to lock job store %s", s.path)
	}
	if !locked {
		return errors.Newf("failed to lock job store %s", s.path)
	}
	defer func() {
		if uerr := s.lock.Unlock(); uerr != nil && err == nil {
			err = errors.Wrapf(uerr, "failed to unlock job store %s", s.path)
		}
	}()

	return fn()
}

func (s *FileStore) load() (*fileDocument, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &fileDocument{Version: fileDocumentVersion}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read job store %s", s.path)
	}

	var doc fileDocument
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, errors.Wrapf(err, "job store %s is corrupted", s.path)
		}
	}
	if doc.Version == 0 {
		doc.Version = fileDocumentVersion
	}
	return &doc, nil
}

func (s *FileStore) save(doc *fileDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode job store")
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file for job store")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write job store")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to sync job store")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close job store temp file")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.Wrapf(err, "failed to replace job store %s", s.path)
	}
	return nil
}

// mutate loads the document, applies fn and saves it if fn succeeds
func (s *FileStore) mutate(ctx context.Context, fn func(doc *fileDocument) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.withLock(ctx, true, func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
		return s.save(doc)
	})
}

// read loads the document for a read-only operation
func (s *FileStore) read(ctx context.Context) (*fileDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var doc *fileDocument
	err := s.withLock(ctx, false, func() error {
		var err error
		doc, err = s.load()
		return err
	})
	return doc, err
}

func findJob(doc *fileDocument, name string) (int, *Job) {
	for i, j := range doc.Jobs {
		if j.Name == name {
			return i, j
		}
	}
	return -1, nil
}

// Create persists a new job
func (s *FileStore) Create(ctx context.Context, spec JobSpec) (*Job, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	var job *Job
	err := s.mutate(ctx, func(doc *fileDocument) error {
		if _, existing := findJob(doc, spec.Name); existing != nil {
			return conflict(spec.Name)
		}
		job = newJob(uuid.NewString(), spec, s.now())
		doc.Jobs = append(doc.Jobs, job)
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := *job
	return &out, nil
}

// Get retrieves a job by name
func (s *FileStore) Get(ctx context.Context, name string) (*Job, error) {
	doc, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	_, job := findJob(doc, name)
	if job == nil {
		return nil, notFound(name)
	}
	return job, nil
}

// List returns all jobs, newest first
func (s *FileStore) List(ctx context.Context) ([]*Job, error) {
	return s.list(ctx, false)
}

// ListEnabled returns enabled jobs, newest first
func (s *FileStore) ListEnabled(ctx context.Context) ([]*Job, error) {
	return s.list(ctx, true)
}

func (s *FileStore) list(ctx context.Context, enabledOnly bool) ([]*Job, error) {
	doc, err := s.read(ctx)
	if err != nil {
		return nil, err
	}

	// Walk backwards so ties on created_at keep newest-inserted first
	jobs := make([]*Job, 0, len(doc.Jobs))
	for i := len(doc.Jobs) - 1; i >= 0; i-- {
		if enabledOnly && !doc.Jobs[i].Enabled {
			continue
		}
		jobs = append(jobs, doc.Jobs[i])
	}
	sort.SliceStable(jobs, func(a, b int) bool {
		return jobs[a].CreatedAt > jobs[b].CreatedAt
	})
	return jobs, nil
}

// Remove deletes a job and cascades to its logs
func (s *FileStore) Remove(ctx context.Context, name string) (bool, error) {
	removed := false
	errNothing := errors.New("nothing to remove")

	err := s.mutate(ctx, func(doc *fileDocument) error {
		i, job := findJob(doc, name)
		if job == nil {
			return errNothing
		}
		doc.Jobs = append(doc.Jobs[:i], doc.Jobs[i+1:]...)

		kept := doc.Logs[:0]
		for _, l := range doc.Logs {
			if l.JobID != job.ID {
				kept = append(kept, l)
			}
		}
		doc.Logs = kept
		removed = true
		return nil
	})
	if errors.Is(err, errNothing) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return removed, nil
}

// SetEnabled enables or disables a job
func (s *FileStore) SetEnabled(ctx context.Context, name string, enabled bool) error {
	_, err := s.Update(ctx, name, JobPatch{Enabled: &enabled})
	return err
}

// Update merges patch into the stored job
func (s *FileStore) Update(ctx context.Context, name string, patch JobPatch) (*Job, error) {
	var updated *Job
	err := s.mutate(ctx, func(doc *fileDocument) error {
		i, current := findJob(doc, name)
		if current == nil {
			return notFound(name)
		}
		if patch.IsEmpty() {
			updated = current
			return nil
		}
		job, err := applyPatch(current, patch, s.now())
		if err != nil {
			return err
		}
		doc.Jobs[i] = job
		updated = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := *updated
	return &out, nil
}

// SetNextRun stores the next due instant
func (s *FileStore) SetNextRun(ctx context.Context, name string, next time.Time) error {
	return s.mutate(ctx, func(doc *fileDocument) error {
		_, job := findJob(doc, name)
		if job == nil {
			return notFound(name)
		}
		n := formatTime(next)
		job.NextRunAt = &n
		job.UpdatedAt = formatTime(s.now())
		return nil
	})
}

// RecordRun stores the scheduling state after an execution
func (s *FileStore) RecordRun(ctx context.Context, name string, state RunState) error {
	return s.mutate(ctx, func(doc *fileDocument) error {
		_, job := findJob(doc, name)
		if job == nil {
			return notFound(name)
		}
		last := formatTime(state.LastRunAt)
		status := state.LastStatus
		next := formatTime(state.NextRunAt)
		job.LastRunAt = &last
		job.LastStatus = &status
		job.NextRunAt = &next
		job.RunCount = state.RunCount
		job.ConsecutiveFailures = state.ConsecutiveFailures
		if state.Disable {
			job.Enabled = false
		}
		job.UpdatedAt = formatTime(s.now())
		return nil
	})
}

// AppendLog writes an execution log entry for the job with the given id
func (s *FileStore) AppendLog(ctx context.Context, jobID string, entry LogEntry) error {
	return s.mutate(ctx, func(doc *fileDocument) error {
		found := false
		for _, j := range doc.Jobs {
			if j.ID == jobID {
				found = true
				break
			}
		}
		if !found {
			return errors.NewNotFoundError("job id %s not found", jobID)
		}

		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		if entry.CreatedAt == "" {
			entry.CreatedAt = formatTime(s.now())
		}
		entry.JobID = jobID
		doc.Logs = append(doc.Logs, &entry)
		return nil
	})
}

// ListLogs returns a job's logs newest first
func (s *FileStore) ListLogs(ctx context.Context, jobName string, limit int, since *time.Time) ([]*LogEntry, error) {
	doc, err := s.read(ctx)
	if err != nil {
		return nil, err
	}

	var sinceStr string
	if since != nil {
		sinceStr = formatTime(*since)
	}

	logs := make([]*LogEntry, 0)
	for i := len(doc.Logs) - 1; i >= 0; i-- {
		l := doc.Logs[i]
		if l.JobName != jobName {
			continue
		}
		if since != nil && l.StartedAt < sinceStr {
			continue
		}
		logs = append(logs, l)
	}
	sort.SliceStable(logs, func(a, b int) bool {
		return logs[a].StartedAt > logs[b].StartedAt
	})
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

// Close is a no-op; the file is not held open between operations
func (s *FileStore) Close() error {
	return nil
}
