package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"devflow/internal/config"
	"devflow/internal/logging"
	"devflow/internal/netctx"
	"devflow/internal/operations"
	"devflow/internal/state"
	"devflow/internal/tasks"
)

type commandContext struct {
	configFlag *string
	stateFlag  *string

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error

	loggerOnce sync.Once
	logger     *slog.Logger
	// taskLogging sends logs to stdout, which is the task log in a child.
	taskLogging bool

	runner     operations.Runner
	bootstrap  []string
	launchOpts []tasks.LauncherOption
	now        func() time.Time
}

type contextOption func(*commandContext)

// withRunner replaces the external CLI runner used by operations.
func withRunner(runner operations.Runner) contextOption {
	return func(c *commandContext) { c.runner = runner }
}

// withBootstrap replaces the executable and leading arguments used to start
// background tasks, plus extra launcher options.
func withBootstrap(argv []string, opts ...tasks.LauncherOption) contextOption {
	return func(c *commandContext) {
		c.bootstrap = append([]string(nil), argv...)
		c.launchOpts = append(c.launchOpts, opts...)
	}
}

func newCommandContext(configFlag, stateFlag *string, opts ...contextOption) *commandContext {
	c := &commandContext{
		configFlag: configFlag,
		stateFlag:  stateFlag,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.stateFlag != nil && strings.TrimSpace(*c.stateFlag) != "" {
			stateFile, err := config.ExpandPath(strings.TrimSpace(*c.stateFlag))
			if err != nil {
				c.configErr = fmt.Errorf("resolve --state: %w", err)
				return
			}
			cfg.Paths.StateFile = stateFile
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configExists = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) loggerValue() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		var logger *slog.Logger
		if c.taskLogging {
			logger, err = c.taskLogger(cfg)
		} else {
			logger, err = logging.NewFromConfig(cfg)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "warn: unable to initialize logger: %v\n", err)
			logger = logging.NewNop()
		}
		c.logger = logger
	})
	return c.logger
}

// taskLogger writes to stdout, which is the task log in a background child,
// and mirrors records into the daily CLI log.
func (c *commandContext) taskLogger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		return nil, err
	}
	shared, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{logging.LogFilePath(cfg.Paths.LogDir, c.now())},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to open shared log: %v\n", err)
		return logger, nil
	}
	return logging.TeeLogger(logger, shared.Handler()), nil
}

// pruneLogs removes CLI logs older than the configured retention.
func (c *commandContext) pruneLogs() {
	cfg, err := c.ensureConfig()
	if err != nil || cfg.Logging.RetentionDays <= 0 {
		return
	}
	current := logging.LogFilePath(cfg.Paths.LogDir, c.now())
	logging.CleanupOldLogs(c.loggerValue(), cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: logging.LogFilePattern, Exclude: []string{current}},
	)
}

func (c *commandContext) openStore() (*state.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return state.Open(cfg.Paths.StateFile,
		state.WithLockTimeout(cfg.LockTimeout()),
		state.WithRetryDelay(cfg.LockRetry()),
		state.WithLockedReads(cfg.State.LockedReads),
		state.WithLogger(c.loggerValue()),
	)
}

// registry builds the operation registry. Operations print to out.
func (c *commandContext) registry(out io.Writer) (*tasks.Registry, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := c.openStore()
	if err != nil {
		return nil, err
	}
	logger := c.loggerValue()
	reg := tasks.NewRegistry()
	env := operations.Env{
		Store:      store,
		Runner:     c.runner,
		Out:        out,
		ResultsDir: resultsDir(cfg),
		Logger:     logger,
	}
	if err := operations.Register(reg, env, netctx.WithNetworkContext(cfg.Network, logger)); err != nil {
		return nil, err
	}
	return reg, nil
}

func (c *commandContext) launcher(reg *tasks.Registry) (*tasks.Launcher, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	var executable string
	var args []string
	if len(c.bootstrap) > 0 {
		executable = c.bootstrap[0]
		args = append(args, c.bootstrap[1:]...)
	}
	if c.configExists {
		args = append(args, "--config", c.configPath)
	}
	args = append(args, "--state", cfg.Paths.StateFile)

	opts := []tasks.LauncherOption{
		tasks.WithExecutable(executable, args...),
		tasks.WithEnv("DEVFLOW_STATE_FILE=" + cfg.Paths.StateFile),
		tasks.WithLauncherLogger(c.loggerValue()),
	}
	opts = append(opts, c.launchOpts...)
	return tasks.NewLauncher(reg, cfg.Paths.TasksDir, opts...)
}

func (c *commandContext) tracker() (*tasks.Tracker, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return tasks.NewTracker(cfg.Paths.TasksDir,
		tasks.WithPollInterval(cfg.PollInterval()),
		tasks.WithTrackerLogger(c.loggerValue()),
	), nil
}

// resultsDir sits beside the tasks directory.
func resultsDir(cfg *config.Config) string {
	return filepath.Join(filepath.Dir(cfg.Paths.TasksDir), "results")
}
