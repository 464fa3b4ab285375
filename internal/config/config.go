package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"devflow/internal/fileutil"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the on-disk locations shared by every devflow process.
type Paths struct {
	Root      string `toml:"root"`
	StateFile string `toml:"state_file"`
	TasksDir  string `toml:"tasks_dir"`
	LogDir    string `toml:"log_dir"`
}

// State controls locking behaviour of the shared state file.
type State struct {
	LockTimeoutMillis int  `toml:"lock_timeout_ms"`
	LockRetryMillis   int  `toml:"lock_retry_ms"`
	LockedReads       bool `toml:"locked_reads"`
}

// Tasks controls background task tracking.
type Tasks struct {
	PollIntervalMillis int `toml:"poll_interval_ms"`
	WaitTimeoutSeconds int `toml:"wait_timeout_seconds"`
	TailLines          int `toml:"tail_lines"`
}

// Network describes the commands used to bring up a network context (for
// example a corporate VPN) around operations that reach private endpoints.
type Network struct {
	Enabled           bool   `toml:"enabled"`
	CheckCommand      string `toml:"check_command"`
	ConnectCommand    string `toml:"connect_command"`
	DisconnectCommand string `toml:"disconnect_command"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for devflow.
//
// Configuration sections by subsystem:
//   - Paths: repository root, state file, task and log directories
//   - State: lock timeout and retry cadence for the state file
//   - Tasks: wait polling and log tail defaults
//   - Network: optional VPN-style connect/disconnect hooks
//   - Logging: log format, level, and retention
type Config struct {
	Paths   Paths   `toml:"paths"`
	State   State   `toml:"state"`
	Tasks   Tasks   `toml:"tasks"`
	Network Network `toml:"network"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// ProjectConfigPath returns devflow.toml at the root of the repository
// containing the working directory.
func ProjectConfigPath() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	return filepath.Join(FindRepoRoot(cwd), projectConfigName), nil
}

// Load reads the configuration at path, or the first of the repository's
// devflow.toml and the per-user file when path is empty. A missing file is
// not an error: defaults are used and exists is false. The returned config
// is normalized and validated.
func Load(path string) (cfg *Config, resolved string, exists bool, err error) {
	resolved, exists, err = resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	loaded := Default()
	if exists {
		data, err := os.ReadFile(resolved)
		if err != nil {
			return nil, "", false, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, &loaded); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	}
	if err := loaded.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := loaded.Validate(); err != nil {
		return nil, "", false, err
	}
	return &loaded, resolved, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if strings.TrimSpace(path) != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		exists, err := isFile(expanded)
		return expanded, exists, err
	}

	userPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	candidates := []string{userPath}
	if projectPath, err := ProjectConfigPath(); err == nil {
		candidates = append([]string{projectPath}, candidates...)
	}
	for _, candidate := range candidates {
		exists, err := isFile(candidate)
		if err != nil {
			return "", false, err
		}
		if exists {
			return candidate, true, nil
		}
	}
	return userPath, false, nil
}

func isFile(path string) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("stat config %s: %w", path, err)
	case info.IsDir():
		return false, fmt.Errorf("config path %s is a directory", path)
	}
	return true, nil
}

// EnsureDirectories creates the task and log directories along with the
// state file's parent directory. The state file itself is created lazily by
// the first write.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{filepath.Dir(c.Paths.StateFile), c.Paths.TasksDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockTimeout returns the state-file lock budget.
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.State.LockTimeoutMillis) * time.Millisecond
}

// LockRetry returns the fixed interval between lock attempts.
func (c *Config) LockRetry() time.Duration {
	return time.Duration(c.State.LockRetryMillis) * time.Millisecond
}

// PollInterval returns the task wait polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Tasks.PollIntervalMillis) * time.Millisecond
}

// WaitTimeout returns the default budget for `task wait`.
func (c *Config) WaitTimeout() time.Duration {
	return time.Duration(c.Tasks.WaitTimeoutSeconds) * time.Second
}

// FindRepoRoot walks up from start until it finds a directory containing
// .git. It returns start itself when no repository is found.
func FindRepoRoot(start string) string {
	dir, err := filepath.Abs(start)
	if err != nil {
		return start
	}
	for current := dir; ; {
		if _, err := os.Stat(filepath.Join(current, ".git")); err == nil {
			return current
		}
		parent := filepath.Dir(current)
		if parent == current {
			return dir
		}
		current = parent
	}
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the commented sample configuration.
func SampleConfig() string { return sampleConfig }

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if err := fileutil.WriteFileAtomic(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
