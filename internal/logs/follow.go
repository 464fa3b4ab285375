package logs

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// fallbackPoll bounds how long a follower sleeps when no filesystem event
// arrives (network filesystems and some container mounts drop inotify events).
const fallbackPoll = 500 * time.Millisecond

// changeNotifier signals when the watched file may have grown.
type changeNotifier struct {
	watcher *fsnotify.Watcher
	target  string
	ch      chan struct{}
	done    chan struct{}
	ticker  *time.Ticker
}

func newChangeNotifier(path string) *changeNotifier {
	n := &changeNotifier{
		target: filepath.Clean(path),
		ch:     make(chan struct{}, 1),
		done:   make(chan struct{}),
		ticker: time.NewTicker(fallbackPoll),
	}
	// Watch the directory so a log created after we start is still seen.
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		if err := watcher.Add(filepath.Dir(n.target)); err == nil {
			n.watcher = watcher
		} else {
			_ = watcher.Close()
		}
	}
	go n.loop()
	return n
}

func (n *changeNotifier) loop() {
	var events chan fsnotify.Event
	var errs chan error
	if n.watcher != nil {
		events = n.watcher.Events
		errs = n.watcher.Errors
	}
	for {
		select {
		case <-n.done:
			return
		case <-n.ticker.C:
			n.signal()
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(event.Name) == n.target && (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				n.signal()
			}
		case _, ok := <-errs:
			if !ok {
				errs = nil
			}
		}
	}
}

func (n *changeNotifier) signal() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

// C fires whenever the file may have changed.
func (n *changeNotifier) C() <-chan struct{} { return n.ch }

// Close stops the notifier.
func (n *changeNotifier) Close() {
	close(n.done)
	n.ticker.Stop()
	if n.watcher != nil {
		_ = n.watcher.Close()
	}
}

// Follow streams complete lines appended to path after offset into w. It
// returns when ctx is cancelled, or once done reports true and the file has
// been drained; that final drain also emits an unterminated last line. The returned offset is where a later Follow can resume.
func Follow(ctx context.Context, path string, offset int64, w io.Writer, done func() bool) (int64, error) {
	events := newChangeNotifier(path)
	defer events.Close()

	emit := func(line string) error {
		_, err := fmt.Fprintln(w, line)
		return err
	}
	for {
		next, err := scanFrom(path, offset, false, emit)
		if err != nil {
			return next, err
		}
		drained := next == offset
		offset = next
		if drained && done != nil && done() {
			// Output flushed between the last read and exit, including a
			// final line the writer never terminated.
			return scanFrom(path, offset, true, emit)
		}

		select {
		case <-ctx.Done():
			return offset, ctx.Err()
		case <-events.C():
		}
	}
}
