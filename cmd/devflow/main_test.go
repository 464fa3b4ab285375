package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"testing"

	"devflow/internal/config"
	"devflow/internal/tasks"
	"devflow/internal/testsupport"
)

const helperEnv = "DEVFLOW_WANT_HELPER_PROCESS"

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	t.Setenv("DEVFLOW_STATE_FILE", "")
	t.Setenv("DEVFLOW_LOG_LEVEL", "")
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Logging.Level = "error"
	return &cliTestEnv{
		cfg:        cfg,
		configPath: testsupport.WriteConfig(t, cfg),
	}
}

// runCLI executes the command tree in-process. Background tasks re-execute
// this test binary through TestHelperProcess.
func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(withBootstrap(
		[]string{os.Args[0], "-test.run=^TestHelperProcess$", "--"},
		tasks.WithEnv(helperEnv+"=1"),
	))
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func mustRunCLI(t *testing.T, env *cliTestEnv, args ...string) string {
	t.Helper()
	out, err := runCLI(t, env, args...)
	if err != nil {
		t.Fatalf("devflow %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

// TestHelperProcess is not a real test: it is the devflow binary for tasks
// launched by the tests in this package.
func TestHelperProcess(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "unexpected helper args: %q\n", os.Args)
		os.Exit(3)
	}
	cmd := newRootCommand()
	cmd.SetArgs(args[1:])
	if err := cmd.Execute(); err != nil {
		var exit *exitCodeError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(0)
}

var taskIDPattern = regexp.MustCompile(`Task:\s+(\S+)`)

func launchedTaskID(t *testing.T, out string) string {
	t.Helper()
	match := taskIDPattern.FindStringSubmatch(out)
	if match == nil {
		t.Fatalf("no task id in output:\n%s", out)
	}
	return match[1]
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected %q in output:\n%s", needle, haystack)
	}
}

func requireExitCode(t *testing.T, err error, code int) {
	t.Helper()
	var exit *exitCodeError
	if !errors.As(err, &exit) || exit.code != code {
		t.Fatalf("expected exit code %d, got %v", code, err)
	}
}
