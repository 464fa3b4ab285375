package lockfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// DefaultRetryDelay is the fixed interval between lock attempts.
const DefaultRetryDelay = 50 * time.Millisecond

// Mode selects exclusive or shared locking.
type Mode int

const (
	Exclusive Mode = iota
	Shared
)

func (m Mode) String() string {
	if m == Shared {
		return "shared"
	}
	return "exclusive"
}

// ErrLockTimeout reports that a lock could not be acquired within its budget.
var ErrLockTimeout = errors.New("lock timeout")

// TimeoutError describes a failed acquisition. It matches ErrLockTimeout.
type TimeoutError struct {
	Path   string
	Mode   Mode
	Waited time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s lock on %s not acquired after %s", e.Mode, e.Path, e.Waited.Round(time.Millisecond))
}

func (e *TimeoutError) Unwrap() error { return ErrLockTimeout }

// Options tunes acquisition.
type Options struct {
	RetryDelay time.Duration
}

// Handle is a held lock. Release must be called on every exit path.
type Handle struct {
	fl   *flock.Flock
	mode Mode
	once sync.Once
	err  error
}

// Release drops the lock. Calling it more than once is safe.
func (h *Handle) Release() error {
	if h == nil {
		return nil
	}
	h.once.Do(func() {
		if err := h.fl.Unlock(); err != nil {
			h.err = fmt.Errorf("release %s lock on %s: %w", h.mode, h.fl.Path(), err)
		}
		_ = h.fl.Close()
	})
	return h.err
}

// Acquire locks path in mode using the default retry delay.
func Acquire(ctx context.Context, path string, mode Mode, timeout time.Duration) (*Handle, error) {
	return Options{}.Acquire(ctx, path, mode, timeout)
}

// Acquire locks path in mode, retrying at a fixed interval until timeout. A
// zero timeout makes a single attempt. The target must already exist.
func (o Options) Acquire(ctx context.Context, path string, mode Mode, timeout time.Duration) (*Handle, error) {
	if timeout < 0 {
		return nil, fmt.Errorf("lock %s: negative timeout %s", path, timeout)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	retry := o.RetryDelay
	if retry <= 0 {
		retry = DefaultRetryDelay
	}

	// O_RDONLY without O_CREATE: a missing target must not be recreated here.
	fl := flock.New(path, flock.SetFlag(os.O_RDONLY))
	start := time.Now()

	locked, err := tryAcquire(ctx, fl, mode, timeout, retry)
	if err != nil {
		_ = fl.Close()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &TimeoutError{Path: path, Mode: mode, Waited: time.Since(start)}
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !locked {
		_ = fl.Close()
		return nil, &TimeoutError{Path: path, Mode: mode, Waited: time.Since(start)}
	}
	return &Handle{fl: fl, mode: mode}, nil
}

func tryAcquire(ctx context.Context, fl *flock.Flock, mode Mode, timeout, retry time.Duration) (bool, error) {
	if timeout == 0 {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if mode == Shared {
			return fl.TryRLock()
		}
		return fl.TryLock()
	}

	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if mode == Shared {
		return fl.TryRLockContext(lockCtx, retry)
	}
	return fl.TryLockContext(lockCtx, retry)
}

// With runs fn while holding the lock and always releases it afterwards.
func With(ctx context.Context, path string, mode Mode, timeout time.Duration, fn func() error) (err error) {
	handle, err := Acquire(ctx, path, mode, timeout)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := handle.Release(); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}()
	return fn()
}
