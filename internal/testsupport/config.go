package testsupport

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"devflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config rooted in a unique temp directory per test.
// The data directories are created; the state file is not.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.Root = base
	cfgVal.Paths.StateFile = filepath.Join(base, ".devflow", "state.json")
	cfgVal.Paths.TasksDir = filepath.Join(base, ".devflow", "tasks")
	cfgVal.Paths.LogDir = filepath.Join(base, ".devflow", "logs")
	cfgVal.State.LockTimeoutMillis = 500
	cfgVal.State.LockRetryMillis = 10
	cfgVal.Tasks.PollIntervalMillis = 20
	cfgVal.Logging.RetentionDays = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithLockTimeout overrides the state lock budget.
func WithLockTimeout(d time.Duration) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.State.LockTimeoutMillis = int(d / time.Millisecond)
	}
}

// WithNetwork enables the network context with the given commands.
func WithNetwork(check, connect, disconnect string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Network.Enabled = true
		b.cfg.Network.CheckCommand = check
		b.cfg.Network.ConnectCommand = connect
		b.cfg.Network.DisconnectCommand = disconnect
	}
}

// WithStubbedBinaries writes stub executables that print output and exit 0,
// and prepends them to PATH. stubs maps binary name to its stdout.
func WithStubbedBinaries(stubs map[string]string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		for name, output := range stubs {
			payload := filepath.Join(binDir, name+".out")
			if err := os.WriteFile(payload, []byte(output), 0o644); err != nil {
				b.t.Fatalf("write stub output %s: %v", name, err)
			}
			script := []byte("#!/bin/sh\ncat '" + payload + "'\n")
			if err := os.WriteFile(filepath.Join(binDir, name), script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// WriteConfig writes cfg as TOML under the base directory and returns its path.
func WriteConfig(t testing.TB, cfg *config.Config) string {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(BaseDir(cfg), "devflow.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return cfg.Paths.Root
}
