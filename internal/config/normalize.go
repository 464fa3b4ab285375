package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeState()
	c.normalizeTasks()
	c.normalizeNetwork()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if c.Paths.StateFile == "" {
		if value, ok := os.LookupEnv("DEVFLOW_STATE_FILE"); ok {
			c.Paths.StateFile = strings.TrimSpace(value)
		}
	}

	var err error
	c.Paths.Root = strings.TrimSpace(c.Paths.Root)
	if c.Paths.Root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("paths.root: resolve working directory: %w", err)
		}
		c.Paths.Root = FindRepoRoot(cwd)
	}
	if c.Paths.Root, err = expandPath(c.Paths.Root); err != nil {
		return fmt.Errorf("paths.root: %w", err)
	}

	dataDir := filepath.Join(c.Paths.Root, dataDirName)
	if strings.TrimSpace(c.Paths.StateFile) == "" {
		c.Paths.StateFile = filepath.Join(dataDir, stateFileName)
	}
	if strings.TrimSpace(c.Paths.TasksDir) == "" {
		c.Paths.TasksDir = filepath.Join(dataDir, tasksDirName)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(dataDir, logDirName)
	}
	if c.Paths.StateFile, err = expandPath(c.Paths.StateFile); err != nil {
		return fmt.Errorf("paths.state_file: %w", err)
	}
	if c.Paths.TasksDir, err = expandPath(c.Paths.TasksDir); err != nil {
		return fmt.Errorf("paths.tasks_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeState() {
	if c.State.LockTimeoutMillis < 0 {
		c.State.LockTimeoutMillis = defaultLockTimeoutMillis
	}
	if c.State.LockRetryMillis <= 0 {
		c.State.LockRetryMillis = defaultLockRetryMillis
	}
}

func (c *Config) normalizeTasks() {
	if c.Tasks.PollIntervalMillis <= 0 {
		c.Tasks.PollIntervalMillis = defaultPollIntervalMillis
	}
	if c.Tasks.WaitTimeoutSeconds < 0 {
		c.Tasks.WaitTimeoutSeconds = 0
	}
	if c.Tasks.TailLines <= 0 {
		c.Tasks.TailLines = defaultTailLines
	}
}

func (c *Config) normalizeNetwork() {
	c.Network.CheckCommand = strings.TrimSpace(c.Network.CheckCommand)
	c.Network.ConnectCommand = strings.TrimSpace(c.Network.ConnectCommand)
	c.Network.DisconnectCommand = strings.TrimSpace(c.Network.DisconnectCommand)
	if c.Network.TimeoutSeconds <= 0 {
		c.Network.TimeoutSeconds = 60
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	if value, ok := os.LookupEnv("DEVFLOW_LOG_LEVEL"); ok && strings.TrimSpace(value) != "" {
		c.Logging.Level = value
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
