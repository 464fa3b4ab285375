package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateState(); err != nil {
		return err
	}
	if err := c.validateNetwork(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StateFile) == "" {
		return errors.New("paths.state_file must be set")
	}
	if strings.TrimSpace(c.Paths.TasksDir) == "" {
		return errors.New("paths.tasks_dir must be set")
	}
	return nil
}

func (c *Config) validateState() error {
	if c.State.LockTimeoutMillis > 60_000 {
		return errors.New("state.lock_timeout_ms must not exceed 60000")
	}
	if c.State.LockRetryMillis > c.State.LockTimeoutMillis && c.State.LockTimeoutMillis > 0 {
		return errors.New("state.lock_retry_ms must not exceed state.lock_timeout_ms")
	}
	return nil
}

func (c *Config) validateNetwork() error {
	if !c.Network.Enabled {
		return nil
	}
	if c.Network.ConnectCommand == "" {
		return errors.New("network.connect_command must be set when network.enabled is true")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}
