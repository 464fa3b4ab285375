package lockfile_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"devflow/internal/lockfile"
)

func newTarget(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json.lock")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("create target: %v", err)
	}
	return path
}

func TestSequentialExclusiveAcquire(t *testing.T) {
	path := newTarget(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		handle, err := lockfile.Acquire(ctx, path, lockfile.Exclusive, time.Second)
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		if err := handle.Release(); err != nil {
			t.Fatalf("release %d: %v", i, err)
		}
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	handle, err := lockfile.Acquire(context.Background(), newTarget(t), lockfile.Exclusive, time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := handle.Release(); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if err := handle.Release(); err != nil {
		t.Fatalf("second release: %v", err)
	}
}

func TestExclusiveTimesOutWhileHeld(t *testing.T) {
	path := newTarget(t)
	ctx := context.Background()

	holder, err := lockfile.Acquire(ctx, path, lockfile.Exclusive, time.Second)
	if err != nil {
		t.Fatalf("acquire holder: %v", err)
	}

	start := time.Now()
	_, err = lockfile.Acquire(ctx, path, lockfile.Exclusive, 150*time.Millisecond)
	if !errors.Is(err, lockfile.ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
	var timeoutErr *lockfile.TimeoutError
	if !errors.As(err, &timeoutErr) || timeoutErr.Path != path || timeoutErr.Mode != lockfile.Exclusive {
		t.Fatalf("expected TimeoutError for %s, got %#v", path, err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Fatalf("expected acquisition to wait for the timeout, returned after %s", elapsed)
	}

	if err := holder.Release(); err != nil {
		t.Fatalf("release holder: %v", err)
	}
	next, err := lockfile.Acquire(ctx, path, lockfile.Exclusive, time.Second)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	_ = next.Release()
}

func TestWaiterAcquiresOnceHolderReleases(t *testing.T) {
	path := newTarget(t)
	ctx := context.Background()

	holder, err := lockfile.Acquire(ctx, path, lockfile.Exclusive, time.Second)
	if err != nil {
		t.Fatalf("acquire holder: %v", err)
	}
	time.AfterFunc(100*time.Millisecond, func() { _ = holder.Release() })

	waiter, err := lockfile.Options{RetryDelay: 10 * time.Millisecond}.Acquire(ctx, path, lockfile.Exclusive, 5*time.Second)
	if err != nil {
		t.Fatalf("waiter acquire: %v", err)
	}
	_ = waiter.Release()
}

func TestSharedLocksCoexistAndExcludeWriters(t *testing.T) {
	path := newTarget(t)
	ctx := context.Background()

	first, err := lockfile.Acquire(ctx, path, lockfile.Shared, time.Second)
	if err != nil {
		t.Fatalf("first shared: %v", err)
	}
	defer first.Release()
	second, err := lockfile.Acquire(ctx, path, lockfile.Shared, time.Second)
	if err != nil {
		t.Fatalf("second shared: %v", err)
	}
	defer second.Release()

	if _, err := lockfile.Acquire(ctx, path, lockfile.Exclusive, 0); !errors.Is(err, lockfile.ErrLockTimeout) {
		t.Fatalf("expected exclusive to be refused while shared held, got %v", err)
	}
}

func TestExclusiveExcludesShared(t *testing.T) {
	path := newTarget(t)
	ctx := context.Background()

	holder, err := lockfile.Acquire(ctx, path, lockfile.Exclusive, time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer holder.Release()

	if _, err := lockfile.Acquire(ctx, path, lockfile.Shared, 100*time.Millisecond); !errors.Is(err, lockfile.ErrLockTimeout) {
		t.Fatalf("expected shared to time out, got %v", err)
	}
}

func TestAcquireMissingFileDoesNotCreateIt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.lock")

	_, err := lockfile.Acquire(context.Background(), path, lockfile.Exclusive, time.Second)
	if err == nil {
		t.Fatal("expected error for missing target")
	}
	if errors.Is(err, lockfile.ErrLockTimeout) {
		t.Fatalf("missing target should not be reported as timeout: %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatalf("target must not be created, stat err=%v", statErr)
	}
}

func TestAcquireRejectsNegativeTimeout(t *testing.T) {
	if _, err := lockfile.Acquire(context.Background(), newTarget(t), lockfile.Exclusive, -time.Second); err == nil {
		t.Fatal("expected error for negative timeout")
	}
}

func TestAcquireHonoursCancelledContext(t *testing.T) {
	path := newTarget(t)
	holder, err := lockfile.Acquire(context.Background(), path, lockfile.Exclusive, time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer holder.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = lockfile.Acquire(ctx, path, lockfile.Exclusive, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWithReleasesOnError(t *testing.T) {
	path := newTarget(t)
	ctx := context.Background()
	boom := errors.New("boom")

	if err := lockfile.With(ctx, path, lockfile.Exclusive, time.Second, func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	handle, err := lockfile.Acquire(ctx, path, lockfile.Exclusive, 0)
	if err != nil {
		t.Fatalf("lock should be free after With: %v", err)
	}
	_ = handle.Release()
}
