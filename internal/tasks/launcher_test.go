package tasks_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"devflow/internal/tasks"
)

func TestLaunchReturnsImmediatelyAndRuns(t *testing.T) {
	dir := t.TempDir()
	launcher := helperLauncher(t, dir)
	tracker := tasks.NewTracker(dir, tasks.WithPollInterval(50*time.Millisecond))
	ctx := context.Background()

	start := time.Now()
	rec, err := launcher.Launch(ctx, "test.sleep", "")
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Launch blocked for %s", elapsed)
	}
	if rec.PID <= 0 || rec.Status != tasks.StatusRunning {
		t.Fatalf("unexpected launch record: %+v", rec)
	}
	if rec.Command != "Sleep" || rec.Module != "test" || rec.Function != "sleep" {
		t.Fatalf("unexpected naming in record: %+v", rec)
	}
	if rec.LogFile != tasks.LogPath(dir, rec.TaskID) {
		t.Fatalf("unexpected log path %q", rec.LogFile)
	}

	status, err := tracker.Status(ctx, rec.TaskID)
	if err != nil || status != tasks.StatusRunning {
		t.Fatalf("Status right after launch = %s, %v", status, err)
	}

	status, err = tracker.Wait(ctx, rec.TaskID, 20*time.Second)
	if err != nil || status != tasks.StatusCompleted {
		t.Fatalf("Wait = %s, %v", status, err)
	}

	final, err := tracker.Record(ctx, rec.TaskID)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if final.ExitCode == nil || *final.ExitCode != 0 || final.EndTime == nil {
		t.Fatalf("unexpected final record: %+v", final)
	}
	if final.PID != rec.PID {
		t.Fatalf("pid changed from %d to %d", rec.PID, final.PID)
	}
	lines, err := tracker.TailLog(rec.TaskID, 10)
	if err != nil {
		t.Fatalf("TailLog: %v", err)
	}
	if !strings.Contains(strings.Join(lines, "\n"), "sleeping") {
		t.Fatalf("expected child output in log, got %q", lines)
	}
}

func TestLaunchedOperationOutputAndFailure(t *testing.T) {
	dir := t.TempDir()
	launcher := helperLauncher(t, dir)
	tracker := tasks.NewTracker(dir, tasks.WithPollInterval(50*time.Millisecond))
	ctx := context.Background()

	okRec, err := launcher.Launch(ctx, "test.ok", "App Insights Query")
	if err != nil {
		t.Fatalf("Launch ok: %v", err)
	}
	failRec, err := launcher.Launch(ctx, "test.fail", "")
	if err != nil {
		t.Fatalf("Launch fail: %v", err)
	}

	if status, err := tracker.Wait(ctx, okRec.TaskID, 20*time.Second); err != nil || status != tasks.StatusCompleted {
		t.Fatalf("ok task = %s, %v", status, err)
	}
	lines, err := tracker.TailLog(okRec.TaskID, 50)
	if err != nil {
		t.Fatalf("TailLog: %v", err)
	}
	if !strings.Contains(strings.Join(lines, "\n"), "Querying") {
		t.Fatalf("expected Querying in log, got %q", lines)
	}

	if status, err := tracker.Wait(ctx, failRec.TaskID, 20*time.Second); err != nil || status != tasks.StatusFailed {
		t.Fatalf("failing task = %s, %v", status, err)
	}
	rec, err := tracker.Record(ctx, failRec.TaskID)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rec.ExitCode == nil || *rec.ExitCode != tasks.ExitOperationFailed {
		t.Fatalf("unexpected exit code: %+v", rec.ExitCode)
	}
	if !strings.Contains(rec.Error, "endpoint refused connection") {
		t.Fatalf("expected error text in record, got %q", rec.Error)
	}
}

func TestLaunchUnknownOperation(t *testing.T) {
	dir := t.TempDir()
	launcher := helperLauncher(t, dir)

	_, err := launcher.Launch(context.Background(), "nope.missing", "")
	if !errors.Is(err, tasks.ErrUnknownOperation) {
		t.Fatalf("expected ErrUnknownOperation, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected no task files, found %d", len(entries))
	}
}

func TestLaunchSpawnFailureIsSynchronous(t *testing.T) {
	dir := t.TempDir()
	launcher, err := tasks.NewLauncher(testRegistry(), dir,
		tasks.WithExecutable(filepath.Join(t.TempDir(), "missing-devflow")))
	if err != nil {
		t.Fatalf("NewLauncher: %v", err)
	}

	_, err = launcher.Launch(context.Background(), "test.ok", "")
	if !errors.Is(err, tasks.ErrSpawnFailure) {
		t.Fatalf("expected ErrSpawnFailure, got %v", err)
	}
	var spawnErr *tasks.SpawnError
	if !errors.As(err, &spawnErr) || spawnErr.Operation != "test.ok" {
		t.Fatalf("expected SpawnError for test.ok, got %#v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected spawn failure to leave no files, found %d", len(entries))
	}
}

func TestBootstrapArgs(t *testing.T) {
	launcher, err := tasks.NewLauncher(testRegistry(), t.TempDir(), tasks.WithExecutable("/bin/devflow", "--config", "/tmp/c.toml"))
	if err != nil {
		t.Fatalf("NewLauncher: %v", err)
	}
	got := strings.Join(launcher.BootstrapArgs("id-1", "test.ok"), " ")
	if got != "--config /tmp/c.toml task exec --id id-1 test.ok" {
		t.Fatalf("unexpected bootstrap args %q", got)
	}
}
