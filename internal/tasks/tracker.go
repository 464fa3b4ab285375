package tasks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"devflow/internal/logging"
	"devflow/internal/logs"
)

const (
	defaultPollInterval = time.Second
	// startGrace is how long a record may sit without a pid before the launch
	// is considered abandoned.
	startGrace = 30 * time.Second

	crashMessage = "process exited without recording a status"
)

// Tracker answers status questions about launched tasks.
type Tracker struct {
	dir    string
	poll   time.Duration
	logger *slog.Logger
	alive  func(pid int) bool
	now    func() time.Time
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithPollInterval sets the Wait polling interval.
func WithPollInterval(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		if d > 0 {
			t.poll = d
		}
	}
}

// WithTrackerLogger attaches a logger.
func WithTrackerLogger(logger *slog.Logger) TrackerOption {
	return func(t *Tracker) { t.logger = logger }
}

// NewTracker returns a Tracker over the records in dir.
func NewTracker(dir string, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		dir:   dir,
		poll:  defaultPollInterval,
		alive: processAlive,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = logging.NewComponentLogger(t.logger, "tasks")
	return t
}

// Record returns the task's record with its derived status applied.
func (t *Tracker) Record(ctx context.Context, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	rec, err := loadRecord(t.dir, id)
	if err != nil {
		return Record{}, err
	}
	return t.derive(rec), nil
}

// Status returns the task's derived status, or StatusUnknown with
// ErrTaskNotFound for an unknown id.
func (t *Tracker) Status(ctx context.Context, id string) (Status, error) {
	rec, err := t.Record(ctx, id)
	if err != nil {
		return StatusUnknown, err
	}
	return rec.Status, nil
}

// Wait polls until the task is terminal or timeout elapses, in which case it
// returns StatusRunning. A timeout of zero or less checks once.
func (t *Tracker) Wait(ctx context.Context, id string, timeout time.Duration) (Status, error) {
	status, err := t.Status(ctx, id)
	if err != nil || status.Terminal() || timeout <= 0 {
		return status, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ticker := time.NewTicker(t.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-timer.C:
			return StatusRunning, nil
		case <-ticker.C:
			status, err = t.Status(ctx, id)
			if err != nil || status.Terminal() {
				return status, err
			}
		}
	}
}

// TailLog returns the last n lines of the task's log.
func (t *Tracker) TailLog(id string, n int) ([]string, error) {
	rec, err := loadRecord(t.dir, id)
	if err != nil {
		return nil, err
	}
	return logs.LastLines(logFileFor(t.dir, rec), n)
}

// FollowLog copies the task's log to w, starting with its existing content,
// until the task is terminal or ctx ends.
func (t *Tracker) FollowLog(ctx context.Context, id string, w io.Writer) error {
	rec, err := loadRecord(t.dir, id)
	if err != nil {
		return err
	}
	done := func() bool {
		status, err := t.Status(ctx, id)
		return err != nil || status.Terminal()
	}
	_, err = logs.Follow(ctx, logFileFor(t.dir, rec), 0, w, done)
	return err
}

// List returns every task, newest first, with derived statuses.
func (t *Tracker) List(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	records, err := listRecords(t.dir, func(name string, err error) {
		t.logger.Warn("skipping unreadable task record",
			logging.String(logging.FieldEventType, "task_record_unreadable"),
			logging.String("file", name),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the file if it is not needed"),
			logging.String(logging.FieldImpact, "task is omitted from listings"),
		)
	})
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i] = t.derive(records[i])
	}
	return records, nil
}

// ListIncomplete returns the tasks whose derived status is not terminal.
func (t *Tracker) ListIncomplete(ctx context.Context) ([]Record, error) {
	records, err := t.List(ctx)
	if err != nil {
		return nil, err
	}
	incomplete := records[:0]
	for _, rec := range records {
		if !rec.Status.Terminal() {
			incomplete = append(incomplete, rec)
		}
	}
	return incomplete, nil
}

// CleanOptions filters Clean. A zero OlderThan removes every terminal task.
type CleanOptions struct {
	OlderThan time.Duration
}

// Clean removes the record and log of every terminal task matching opts and
// returns their ids. Running tasks are never removed, however old.
func (t *Tracker) Clean(ctx context.Context, opts CleanOptions) ([]string, error) {
	records, err := t.List(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := t.now().Add(-opts.OlderThan)
	var removed []string
	var errs []error
	for _, rec := range records {
		if !rec.Status.Terminal() {
			continue
		}
		if opts.OlderThan > 0 {
			ref := rec.StartTime
			if rec.EndTime != nil {
				ref = *rec.EndTime
			}
			if ref.After(cutoff) {
				continue
			}
		}
		if err := removeTaskFiles(t.dir, rec.TaskID); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, rec.TaskID)
	}
	if len(removed) > 0 {
		t.logger.Info("cleaned finished tasks",
			logging.String(logging.FieldEventType, "tasks_cleaned"),
			logging.Int("count", len(removed)),
		)
	}
	return removed, errors.Join(errs...)
}

// derive applies crash detection to a record read from disk.
func (t *Tracker) derive(rec Record) Record {
	if rec.Status != StatusRunning {
		return rec
	}
	if rec.PID == 0 {
		if t.now().Sub(rec.StartTime) < startGrace {
			return rec
		}
	} else if t.alive(rec.PID) {
		return rec
	}
	return t.markCrashed(rec)
}

// markCrashed reports rec as failed and persists that unless the child wrote a
// terminal status in the meantime.
func (t *Tracker) markCrashed(rec Record) Record {
	failed := rec
	failed.Status = StatusFailed
	failed.ExitCode = intPtr(-1)
	failed.EndTime = timePtr(t.now().UTC())
	failed.Error = crashMessage

	current, err := loadRecord(t.dir, rec.TaskID)
	if err == nil && current.Status.Terminal() {
		return current
	}
	if err := saveRecord(t.dir, failed); err != nil {
		t.logger.Warn("could not persist crashed task status",
			logging.String(logging.FieldEventType, "task_crash_persist_failed"),
			logging.String(logging.FieldTaskID, rec.TaskID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on the tasks directory"),
			logging.String(logging.FieldImpact, "status is re-derived on every check"),
		)
	} else {
		t.logger.Info("task process gone; marked failed",
			logging.String(logging.FieldEventType, "task_crash_detected"),
			logging.String(logging.FieldTaskID, rec.TaskID),
			logging.Int("pid", rec.PID),
		)
	}
	return failed
}

func logFileFor(dir string, rec Record) string {
	if rec.LogFile != "" {
		return rec.LogFile
	}
	return LogPath(dir, rec.TaskID)
}
