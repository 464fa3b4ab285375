package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"

	"devflow/internal/fileutil"
	"devflow/internal/lockfile"
	"devflow/internal/logging"
)

const (
	// DryRunKey is read by operations to suppress side-effecting calls.
	DryRunKey = "dry_run"
	// WorkflowKey holds the reserved workflow sub-document.
	WorkflowKey = "workflow"

	// LockSuffix is appended to the state path to form the sidecar lock file.
	LockSuffix = ".lock"

	defaultLockTimeout = 3 * time.Second
)

// Store is a handle on one state file. It holds no document in memory; every
// call goes back to disk.
type Store struct {
	path        string
	lockPath    string
	lockTimeout time.Duration
	locks       lockfile.Options
	lockedReads bool
	logger      *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLockTimeout sets how long mutations wait for the lock before degrading.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.lockTimeout = d
		}
	}
}

// WithRetryDelay sets the interval between lock attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Store) { s.locks.RetryDelay = d }
}

// WithLockedReads makes reads take a shared lock.
func WithLockedReads(enabled bool) Option {
	return func(s *Store) { s.lockedReads = enabled }
}

// WithLogger attaches a logger for degradation and corruption warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Open returns a Store for path. The file is created lazily by the first
// mutation.
func Open(path string, opts ...Option) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("state: path is required")
	}
	s := &Store{
		path:        path,
		lockPath:    path + LockSuffix,
		lockTimeout: defaultLockTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "state")
	return s, nil
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (any, bool, error) {
	doc, err := s.Load(ctx)
	if err != nil {
		return nil, false, err
	}
	value, ok := doc[key]
	if !ok || value == nil {
		return nil, false, nil
	}
	return value, true, nil
}

// Require returns the value under key or a *MissingKeyError.
func (s *Store) Require(ctx context.Context, key string) (any, error) {
	value, ok, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &MissingKeyError{Key: key}
	}
	return value, nil
}

// GetString returns the value under key rendered as a string. Non-string
// values are rendered as compact JSON.
func (s *Store) GetString(ctx context.Context, key string) (string, bool, error) {
	value, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	return FormatValue(value), true, nil
}

// RequireString is GetString for keys that must be present and non-empty.
func (s *Store) RequireString(ctx context.Context, key string) (string, error) {
	value, ok, err := s.GetString(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok || strings.TrimSpace(value) == "" {
		return "", &MissingKeyError{Key: key}
	}
	return value, nil
}

// GetBool interprets the value under key as a boolean. Strings such as
// "true", "1" and "yes" count as true.
func (s *Store) GetBool(ctx context.Context, key string) (bool, error) {
	value, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	return truthy(value), nil
}

// Decode unmarshals the value under key into v. It reports whether the key
// was present.
func (s *Store) Decode(ctx context.Context, key string, v any) (bool, error) {
	value, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return ok, err
	}
	if err := decodeValue(value, v); err != nil {
		return true, fmt.Errorf("decode state key %q: %w", key, err)
	}
	return true, nil
}

// DryRun reports the dry_run flag. The store itself does nothing with it.
func (s *Store) DryRun(ctx context.Context) bool {
	enabled, err := s.GetBool(ctx, DryRunKey)
	return err == nil && enabled
}

// SortedKeys returns the keys of doc in sorted order.
func SortedKeys(doc map[string]any) []string {
	keys := make([]string, 0, len(doc))
	for key := range doc {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Set stores value under key. Keys are stored verbatim, surrounding
// whitespace included; a blank key is rejected.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("state: key is required")
	}
	normalized, err := toJSONValue(value)
	if err != nil {
		return fmt.Errorf("state key %q: %w", key, err)
	}
	return s.Update(ctx, func(doc map[string]any) error {
		doc[key] = normalized
		return nil
	})
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.Update(ctx, func(doc map[string]any) error {
		delete(doc, key)
		return nil
	})
}

// Save replaces the whole document.
func (s *Store) Save(ctx context.Context, doc map[string]any) error {
	normalized, err := toJSONValue(doc)
	if err != nil {
		return fmt.Errorf("state document: %w", err)
	}
	replacement, _ := normalized.(map[string]any)
	return s.Update(ctx, func(current map[string]any) error {
		clear(current)
		for key, value := range replacement {
			current[key] = value
		}
		return nil
	})
}

// Clear replaces the document with {}.
func (s *Store) Clear(ctx context.Context) error {
	return s.Save(ctx, map[string]any{})
}

// Update runs fn on the current document under an exclusive lock and writes
// the result back. If fn returns an error nothing is written.
func (s *Store) Update(ctx context.Context, fn func(doc map[string]any) error) error {
	if err := s.ensureFiles(); err != nil {
		return err
	}

	handle, err := s.acquire(ctx, lockfile.Exclusive)
	if err != nil {
		return err
	}
	defer handle.Release()

	doc, err := s.readDocument()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return s.writeDocument(doc)
}

// Load returns the full document. A missing file yields an empty document.
func (s *Store) Load(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.lockedReads {
		if _, err := os.Stat(s.path); err == nil {
			if _, err := fileutil.EnsureFile(s.lockPath, nil); err != nil {
				return nil, fmt.Errorf("create state lock file: %w", err)
			}
			handle, err := s.acquire(ctx, lockfile.Shared)
			if err != nil {
				return nil, err
			}
			defer handle.Release()
		}
	}
	return s.readDocument()
}

// acquire takes the sidecar lock. On timeout it logs the degradation and
// returns a nil handle so the caller proceeds unlocked; Release on a nil
// handle is a no-op.
func (s *Store) acquire(ctx context.Context, mode lockfile.Mode) (*lockfile.Handle, error) {
	handle, err := s.locks.Acquire(ctx, s.lockPath, mode, s.lockTimeout)
	if err == nil {
		return handle, nil
	}
	var timeoutErr *lockfile.TimeoutError
	if errors.As(err, &timeoutErr) {
		logging.WarnWithContext(s.logger, "state file busy; continuing without lock", "state_lock_degraded",
			logging.String("path", s.path),
			logging.String("mode", mode.String()),
			logging.Duration("waited", timeoutErr.Waited),
			logging.String(logging.FieldErrorHint, "another devflow process held the state lock; re-check values if they look stale"),
			logging.String(logging.FieldImpact, "concurrent writers may overwrite each other"),
		)
		return nil, nil
	}
	return nil, fmt.Errorf("lock state file: %w", err)
}

func (s *Store) ensureFiles() error {
	if _, err := fileutil.EnsureFile(s.path, []byte("{}\n")); err != nil {
		return fmt.Errorf("create state file: %w", err)
	}
	if _, err := fileutil.EnsureFile(s.lockPath, nil); err != nil {
		return fmt.Errorf("create state lock file: %w", err)
	}
	return nil
}

func (s *Store) readDocument() (map[string]any, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}
	doc, err := parseDocument(data)
	if err != nil {
		logging.WarnWithContext(s.logger, "state file unreadable; treating as empty", "state_corrupt",
			logging.String("path", s.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix or clear the file with devflow state clear"),
			logging.String(logging.FieldImpact, "previously stored keys are ignored until the next write"),
		)
		return map[string]any{}, nil
	}
	return doc, nil
}

func (s *Store) writeDocument(doc map[string]any) error {
	if err := fileutil.WriteJSONAtomic(s.path, doc); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}

func parseDocument(data []byte) (map[string]any, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	decoder.UseNumber()
	var doc map[string]any
	if err := decoder.Decode(&doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return map[string]any{}, nil
	}
	return doc, nil
}

// toJSONValue converts v into the generic form a parsed document holds, so
// in-process updates see the same shapes as values read back from disk.
func toJSONValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var out any
	if err := decoder.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeValue(value any, v any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// FormatValue renders a stored value for display: strings verbatim, anything
// else as compact JSON.
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}

// ParseValue interprets command-line input: valid JSON is stored as JSON,
// anything else as a plain string.
func ParseValue(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return raw
	}
	decoder := json.NewDecoder(strings.NewReader(trimmed))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil || decoder.More() {
		return raw
	}
	return value
}

func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "y", "on":
			return true
		}
		return false
	case json.Number:
		n, err := v.Float64()
		return err == nil && n != 0
	case float64:
		return v != 0
	default:
		return false
	}
}
