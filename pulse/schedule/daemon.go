package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/pulse/am"
	"github.com/teranos/pulse/db"
	"github.com/teranos/pulse/errors"
	"github.com/teranos/pulse/logger"
)

// DaemonConfig contains configuration for the scheduler daemon
type DaemonConfig struct {
	PollInterval      time.Duration // sleep between ticks
	HeartbeatEnabled  bool
	HeartbeatInterval string        // interval schedule for the heartbeat job
	RetryDelay        time.Duration // reduced delay after a failure for retry-policy jobs
}

// DefaultDaemonConfig returns the documented defaults
func DefaultDaemonConfig() DaemonConfig {
	return DaemonConfig{
		PollInterval:      time.Duration(am.DefaultPollIntervalMS) * time.Millisecond,
		HeartbeatEnabled:  true,
		HeartbeatInterval: am.DefaultHeartbeatInterval,
		RetryDelay:        time.Minute,
	}
}

// DaemonConfigFrom extracts the daemon settings from the loaded configuration
func DaemonConfigFrom(cfg *am.Config) DaemonConfig {
	return DaemonConfig{
		PollInterval:      cfg.PollInterval(),
		HeartbeatEnabled:  cfg.Pulse.Heartbeat.Enabled,
		HeartbeatInterval: cfg.Pulse.Heartbeat.Interval,
		RetryDelay:        cfg.RetryDelay(),
	}
}

// Daemon owns the polling loop: each tick ensures system jobs exist, runs due
// jobs one at a time through the executor and records their outcomes.
type Daemon struct {
	store    JobStore
	executor Executor
	logger   *zap.SugaredLogger
	pulseLog *zap.SugaredLogger // Logger with Pulse symbol pre-attached
	now      func() time.Time

	mu              sync.Mutex
	cfg             DaemonConfig
	lastTickAt      time.Time
	ticksSinceStart int64
	runs            int64
	failures        int64

	wake    chan struct{}
	idleLog rate.Sometimes
}

// NewDaemon creates a daemon bound to a store and executor.
// The caller owns the store's lifecycle.
func NewDaemon(store JobStore, executor Executor, cfg DaemonConfig, log *zap.SugaredLogger) *Daemon {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultDaemonConfig().PollInterval
	}
	return &Daemon{
		store:    store,
		executor: executor,
		logger:   log,
		pulseLog: logger.AddPulseSymbol(log),
		now:      time.Now,
		cfg:      cfg,
		wake:     make(chan struct{}, 1),
		idleLog:  rate.Sometimes{Interval: 10 * time.Minute},
	}
}

// Config returns the current daemon configuration
func (d *Daemon) Config() DaemonConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// SetPollInterval changes the sleep between ticks; a sleeping loop picks it up immediately
func (d *Daemon) SetPollInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}
	d.mu.Lock()
	d.cfg.PollInterval = interval
	d.mu.Unlock()
	d.poke()
}

// ApplyConfig swaps in new settings, e.g. after a config file reload.
// An existing heartbeat job keeps its schedule.
func (d *Daemon) ApplyConfig(cfg DaemonConfig) {
	d.mu.Lock()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = d.cfg.PollInterval
	}
	d.cfg = cfg
	d.mu.Unlock()

	d.pulseLog.Infow("Pulse daemon config applied",
		logger.FieldInterval, cfg.PollInterval,
		"heartbeat_enabled", cfg.HeartbeatEnabled,
		"heartbeat_interval", cfg.HeartbeatInterval)
	d.poke()
}

func (d *Daemon) poke() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// EnsureSystemJobs creates the heartbeat job when heartbeat is enabled and no
// job with the reserved name exists. Otherwise it is a no-op.
func (d *Daemon) EnsureSystemJobs(ctx context.Context) error {
	cfg := d.Config()
	if !cfg.HeartbeatEnabled {
		return nil
	}

	_, err := d.store.Get(ctx, HeartbeatJobName)
	if err == nil {
		return nil
	}
	if !errors.IsNotFoundError(err) {
		return errors.Wrap(err, "failed to look up heartbeat job")
	}

	interval := cfg.HeartbeatInterval
	if interval == "" {
		interval = am.DefaultHeartbeatInterval
	}

	_, err = d.store.Create(ctx, JobSpec{
		Name:      HeartbeatJobName,
		Schedule:  interval,
		Command:   HeartbeatCommand,
		OnFailure: OnFailureIgnore,
	})
	if errors.IsConflictError(err) {
		// The CLI created it between our Get and Create
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to create heartbeat job")
	}

	d.pulseLog.Infow("Pulse created heartbeat job", logger.FieldSchedule, interval)
	return nil
}

// Tick evaluates every enabled job once. Command failures are recorded as
// logs; only store errors are returned, and they should stop the daemon.
func (d *Daemon) Tick(ctx context.Context, now time.Time) error {
	d.mu.Lock()
	d.lastTickAt = now
	d.ticksSinceStart++
	tick := d.ticksSinceStart
	d.mu.Unlock()

	if err := d.EnsureSystemJobs(ctx); err != nil {
		return err
	}

	jobs, err := d.store.ListEnabled(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list enabled jobs")
	}

	executed := 0
	for _, job := range jobs {
		ran, err := d.step(ctx, job, now)
		if err != nil {
			return err
		}
		if ran {
			executed++
		}
	}

	if executed == 0 {
		d.idleLog.Do(func() {
			d.pulseLog.Infow("Pulse - no jobs due",
				logger.FieldTick, tick,
				logger.FieldCount, len(jobs))
		})
	} else {
		d.pulseLog.Debugw("Pulse tick complete",
			logger.FieldTick, tick,
			"executed", executed)
	}
	return nil
}

// step applies the per-job state machine and reports whether the job ran
func (d *Daemon) step(ctx context.Context, job *Job, now time.Time) (bool, error) {
	log := logger.JobLogger(d.pulseLog, job.ID, job.Name)

	if job.EndAt != nil && IsDue(now, *job.EndAt) {
		if err := d.store.SetEnabled(ctx, job.Name, false); err != nil {
			return false, errors.Wrapf(err, "failed to disable expired job %q", job.Name)
		}
		log.Infow("Pulse disabled job past its end time", "end_at", *job.EndAt)
		return false, nil
	}

	if job.NextRunAt == nil || *job.NextRunAt == "" {
		next := d.firstRun(job, now)
		if err := d.store.SetNextRun(ctx, job.Name, next); err != nil {
			return false, errors.Wrapf(err, "failed to schedule job %q", job.Name)
		}
		log.Debugw("Pulse scheduled job", logger.FieldNextRunAt, formatTime(next))
		return false, nil
	}

	if _, err := parseTime(*job.NextRunAt); err != nil {
		log.Warnw("Pulse skipping job with unparsable next run", logger.FieldNextRunAt, *job.NextRunAt)
		return false, nil
	}

	if !IsDue(now, *job.NextRunAt) {
		return false, nil
	}

	return true, d.execute(ctx, job)
}

// firstRun picks the initial nextRunAt: a future startAt wins over the schedule
func (d *Daemon) firstRun(job *Job, now time.Time) time.Time {
	if job.StartAt != nil {
		if start, err := parseTime(*job.StartAt); err == nil && start.After(now) {
			return start
		}
	}
	return ComputeNextRun(job.Schedule, now)
}

// RunNow executes a job immediately regardless of its schedule and records
// the outcome like a tick would.
func (d *Daemon) RunNow(ctx context.Context, name string) (*LogEntry, error) {
	job, err := d.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	var entry *LogEntry
	err = d.run(ctx, job, func(e *LogEntry) { entry = e })
	return entry, err
}

func (d *Daemon) execute(ctx context.Context, job *Job) error {
	return d.run(ctx, job, nil)
}

// run executes one job, appends its log, then writes the new scheduling
// state. The log write always precedes the state write.
func (d *Daemon) run(ctx context.Context, job *Job, onLog func(*LogEntry)) error {
	log := logger.JobLogger(d.pulseLog, job.ID, job.Name)
	log.Infow("Pulse executing job", logger.FieldCommand, job.Command)

	started := d.now()
	res := d.executor.Execute(ctx, job)
	finished := d.now()

	if res.Status != StatusSuccess && res.Status != StatusFailure {
		res.Status = StatusFailure
	}

	entry := LogEntry{
		ID:         uuid.NewString(),
		JobID:      job.ID,
		JobName:    job.Name,
		Status:     res.Status,
		StartedAt:  formatTime(started),
		FinishedAt: formatTime(finished),
		DurationMs: finished.Sub(started).Milliseconds(),
		Output:     res.Output,
		Error:      res.Error,
		CreatedAt:  formatTime(finished),
	}
	if err := d.store.AppendLog(ctx, job.ID, entry); err != nil {
		return errors.Wrapf(err, "failed to record log for %q", job.Name)
	}
	if onLog != nil {
		onLog(&entry)
	}

	d.mu.Lock()
	d.runs++
	if !res.Succeeded() {
		d.failures++
	}
	retryDelay := d.cfg.RetryDelay
	d.mu.Unlock()

	d.logOutcome(log, job, res, entry.DurationMs)

	if job.IsOneShot() {
		if _, err := d.store.Remove(ctx, job.Name); err != nil {
			return errors.Wrapf(err, "failed to remove one-shot job %q", job.Name)
		}
		log.Infow("Pulse removed one-shot job after its run")
		return nil
	}

	state := RunState{
		LastRunAt:  finished,
		LastStatus: res.Status,
		RunCount:   job.RunCount + 1,
	}
	if !res.Succeeded() {
		state.ConsecutiveFailures = job.ConsecutiveFailures + 1
	}

	state.NextRunAt = nextAfterRun(job, res, state.ConsecutiveFailures, finished, retryDelay)

	if job.MaxRuns > 0 && state.RunCount >= job.MaxRuns {
		state.Disable = true
		log.Infow("Pulse disabled job after reaching max runs", "max_runs", job.MaxRuns)
	}

	if err := d.store.RecordRun(ctx, job.Name, state); err != nil {
		return errors.Wrapf(err, "failed to record run for %q", job.Name)
	}
	return nil
}

// nextAfterRun computes nextRunAt from the finish instant. Retry-policy jobs
// that just failed, and still have budget, come back after the shorter of
// their interval and the retry delay.
func nextAfterRun(job *Job, res Result, consecutiveFailures int, finished time.Time, retryDelay time.Duration) time.Time {
	next := ComputeNextRun(job.Schedule, finished)

	if res.Succeeded() || job.OnFailure != OnFailureRetry || job.Retries <= 0 || retryDelay <= 0 {
		return next
	}
	if consecutiveFailures > job.Retries {
		return next
	}
	if retry := finished.Add(retryDelay); retry.Before(next) {
		return retry
	}
	return next
}

func (d *Daemon) logOutcome(log *zap.SugaredLogger, job *Job, res Result, durationMs int64) {
	if res.Succeeded() {
		log.Infow("Pulse OK", logger.FieldDurationMS, durationMs)
		return
	}

	fields := []interface{}{
		logger.FieldDurationMS, durationMs,
		logger.FieldError, res.Error,
		logger.FieldErrorType, errors.KindExecutionFailure,
	}
	switch job.OnFailure {
	case OnFailureIgnore:
		log.Debugw("Pulse FAILED (ignored)", fields...)
	case OnFailureRetry:
		log.Warnw("Pulse FAILED, will retry", append(fields,
			"attempt", job.ConsecutiveFailures+1,
			"retries", job.Retries)...)
	default:
		log.Errorw("Pulse FAILED", fields...)
	}
}

// Run is the foreground loop: ensure system jobs, then tick and sleep until
// ctx is cancelled. Cancellation is observed at the top of the loop, so the
// current tick and any in-flight command always finish.
func (d *Daemon) Run(ctx context.Context) error {
	openLog := logger.AddPulseOpenSymbol(d.logger)
	closeLog := logger.AddPulseCloseSymbol(d.logger)

	cfg := d.Config()
	openLog.Infow("Pulse daemon started",
		logger.FieldInterval, cfg.PollInterval,
		"heartbeat_enabled", cfg.HeartbeatEnabled)

	// Ticks run on a context that outlives the stop signal
	tickCtx := context.WithoutCancel(ctx)

	if err := d.EnsureSystemJobs(tickCtx); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			break
		}

		if err := d.Tick(tickCtx, d.now()); err != nil {
			// A store closed during shutdown ends the loop like a stop signal
			if ctx.Err() != nil && db.IsDatabaseClosed(err) {
				d.pulseLog.Debugw("Pulse store closed during shutdown", logger.FieldError, err)
				break
			}
			d.pulseLog.Errorw("Pulse tick failed, stopping daemon", logger.FieldError, err)
			return errors.WrapRuntime(err, "pulse tick")
		}

		timer := time.NewTimer(d.Config().PollInterval)
		select {
		case <-ctx.Done():
		case <-timer.C:
		case <-d.wake:
		}
		timer.Stop()
	}

	closeLog.Infow("Pulse daemon stopped", "ticks", d.Stats()["ticks_since_start"])
	return nil
}

// Stats returns daemon statistics
func (d *Daemon) Stats() map[string]interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()

	return map[string]interface{}{
		"last_tick_at":      d.lastTickAt,
		"ticks_since_start": d.ticksSinceStart,
		"runs":              d.runs,
		"failures":          d.failures,
		"poll_interval":     d.cfg.PollInterval,
	}
}
