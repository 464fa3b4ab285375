package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"devflow/internal/fileutil"
	"devflow/internal/logging"
)

// EnvTaskID carries the task id into the child process.
const EnvTaskID = "DEVFLOW_TASK_ID"

// Launcher starts registered operations as detached processes.
type Launcher struct {
	registry   *Registry
	dir        string
	executable string
	baseArgs   []string
	env        []string
	logger     *slog.Logger
	now        func() time.Time
	pidWait    time.Duration
}

// LauncherOption configures a Launcher.
type LauncherOption func(*Launcher)

// WithExecutable overrides the bootstrap binary and the arguments placed
// before "task exec". By default the current executable is used.
func WithExecutable(path string, args ...string) LauncherOption {
	return func(l *Launcher) {
		l.executable = path
		l.baseArgs = append([]string(nil), args...)
	}
}

// WithEnv appends KEY=VALUE pairs to the child's environment.
func WithEnv(env ...string) LauncherOption {
	return func(l *Launcher) { l.env = append(l.env, env...) }
}

// WithLauncherLogger attaches a logger.
func WithLauncherLogger(logger *slog.Logger) LauncherOption {
	return func(l *Launcher) { l.logger = logger }
}

// NewLauncher returns a Launcher that records tasks under dir.
func NewLauncher(registry *Registry, dir string, opts ...LauncherOption) (*Launcher, error) {
	if registry == nil {
		return nil, fmt.Errorf("tasks: registry is required")
	}
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("tasks: directory is required")
	}
	l := &Launcher{
		registry: registry,
		dir:      dir,
		now:      time.Now,
		pidWait:  2 * time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		l.executable = exe
	}
	l.logger = logging.NewComponentLogger(l.logger, "tasks")
	return l, nil
}

// BootstrapArgs returns the argv (without the executable) that runs operation
// as task id in a child process.
func (l *Launcher) BootstrapArgs(id, operation string) []string {
	args := append([]string(nil), l.baseArgs...)
	return append(args, "task", "exec", "--id", id, operation)
}

// Launch starts operation in a detached process and returns its record as
// soon as the process exists. display overrides the registered display name.
func (l *Launcher) Launch(ctx context.Context, operation, display string) (Record, error) {
	def, err := l.registry.Resolve(operation)
	if err != nil {
		return Record{}, err
	}
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if strings.TrimSpace(display) == "" {
		display = def.Display
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return Record{}, fmt.Errorf("create tasks directory: %w", err)
	}

	start := l.now().UTC()
	id := NewTaskID(start)
	logPath := LogPath(l.dir, id)

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return Record{}, fmt.Errorf("create task log: %w", err)
	}
	defer logFile.Close()

	devNull, err := os.Open(os.DevNull)
	if err != nil {
		_ = fileutil.RemoveIfExists(logPath)
		return Record{}, fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	rec := Record{
		TaskID:    id,
		Command:   display,
		Module:    def.Module,
		Function:  def.Function,
		Operation: def.Name,
		StartTime: start,
		LogFile:   logPath,
		Status:    StatusRunning,
	}
	// The provisional record (pid 0) exists before the child can look for it.
	if err := saveRecord(l.dir, rec); err != nil {
		_ = fileutil.RemoveIfExists(logPath)
		return Record{}, err
	}

	args := l.BootstrapArgs(id, def.Name)
	cmd := exec.Command(l.executable, args...)
	cmd.Stdin = devNull
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = append(os.Environ(), l.env...)
	cmd.Env = append(cmd.Env, EnvTaskID+"="+id)
	detach(cmd)

	if err := cmd.Start(); err != nil {
		_ = removeTaskFiles(l.dir, id)
		spawnErr := &SpawnError{Operation: def.Name, Command: l.executable, Err: err}
		logging.ErrorWithContext(l.logger, "background task failed to start", "task_spawn_failed",
			logging.String(logging.FieldTaskID, id),
			logging.String(logging.FieldOperation, def.Name),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the devflow binary is executable"),
		)
		return Record{}, spawnErr
	}

	rec.PID = cmd.Process.Pid
	if err := l.recordPID(rec); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Process.Release()
		return Record{}, err
	}
	if err := cmd.Process.Release(); err != nil {
		l.logger.Debug("release child process failed", logging.Error(err))
	}

	l.logger.Info("background task started",
		logging.String(logging.FieldEventType, "task_started"),
		logging.String(logging.FieldTaskID, id),
		logging.String(logging.FieldOperation, def.Name),
		logging.Int("pid", rec.PID),
		logging.String("log_file", logPath),
	)
	return rec, nil
}

// recordPID fills in the child's pid without overwriting a terminal status the
// child may already have written.
func (l *Launcher) recordPID(rec Record) error {
	current, err := loadRecord(l.dir, rec.TaskID)
	if err == nil && current.Status.Terminal() {
		current.PID = rec.PID
		return saveRecord(l.dir, current)
	}
	return saveRecord(l.dir, rec)
}
