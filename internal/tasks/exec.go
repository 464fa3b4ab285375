package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"time"

	"devflow/internal/logging"
)

// Exit codes written by Execute.
const (
	ExitOK               = 0
	ExitOperationFailed  = 1
	ExitUnknownOperation = 2
)

// Execute is the child side of Launch: it runs operation as task id, writes
// the terminal status into the record, and returns the process exit code.
// Failures inside the operation end up in the record and in out; they are
// never returned to the caller.
func (l *Launcher) Execute(ctx context.Context, id, operation string, out io.Writer) int {
	if out == nil {
		out = io.Discard
	}
	ctx = logging.WithOperation(logging.WithTaskID(ctx, id), operation)
	logger := logging.WithContext(ctx, l.logger)

	def, err := l.registry.Resolve(operation)
	if err != nil {
		fmt.Fprintf(out, "devflow: %v\n", err)
		l.finish(id, operation, ExitUnknownOperation, err)
		return ExitUnknownOperation
	}

	started := l.now().UTC()
	fmt.Fprintf(out, "==> %s (%s)\n", def.Display, def.Name)
	fmt.Fprintf(out, "    task %s, pid %d, started %s\n", id, os.Getpid(), started.Format(time.RFC3339))

	runErr := runOperation(ctx, def.Run)

	elapsed := l.now().UTC().Sub(started).Round(time.Millisecond)
	code := ExitOK
	if runErr != nil {
		code = ExitOperationFailed
		fmt.Fprintf(out, "==> %s failed after %s: %v\n", def.Display, elapsed, runErr)
		logger.Debug("operation failed", logging.Error(runErr))
	} else {
		fmt.Fprintf(out, "==> %s completed in %s\n", def.Display, elapsed)
	}
	l.finish(id, def.Name, code, runErr)
	return code
}

func runOperation(ctx context.Context, op Operation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return op(ctx)
}

// finish writes the terminal status. It waits briefly for the launcher to
// record the pid so the launcher's write cannot land after ours.
func (l *Launcher) finish(id, operation string, code int, runErr error) {
	rec, err := l.awaitPID(id)
	if err != nil {
		if !errors.Is(err, ErrTaskNotFound) {
			l.logger.Warn("task record unreadable; rewriting",
				logging.String(logging.FieldEventType, "task_record_unreadable"),
				logging.String(logging.FieldTaskID, id),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "inspect the tasks directory"),
				logging.String(logging.FieldImpact, "launch metadata for this task is lost"),
			)
		}
		module, function := SplitName(operation)
		rec = Record{
			TaskID:    id,
			Command:   DisplayName(operation),
			Module:    module,
			Function:  function,
			Operation: operation,
			StartTime: l.now().UTC(),
			LogFile:   LogPath(l.dir, id),
		}
	}
	if rec.Status.Terminal() {
		return
	}
	if rec.PID == 0 {
		rec.PID = os.Getpid()
	}

	rec.EndTime = timePtr(l.now().UTC())
	rec.ExitCode = intPtr(code)
	if code == ExitOK {
		rec.Status = StatusCompleted
		rec.Error = ""
	} else {
		rec.Status = StatusFailed
		if runErr != nil {
			rec.Error = firstLine(runErr.Error())
		}
	}
	if err := saveRecord(l.dir, rec); err != nil {
		logging.ErrorWithContext(l.logger, "failed to record task outcome", "task_record_write_failed",
			logging.String(logging.FieldTaskID, id),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on the tasks directory"),
		)
	}
}

func (l *Launcher) awaitPID(id string) (Record, error) {
	deadline := l.now().Add(l.pidWait)
	for {
		rec, err := loadRecord(l.dir, id)
		if err != nil || rec.PID != 0 || rec.Status.Terminal() || !l.now().Before(deadline) {
			return rec, err
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
