package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// consoleHandler renders one line per record:
//
//	2026-01-02T15:04:05Z INFO [state] task 20260102-150405-ab12cd34 – message key=value
//
// component and task_id are lifted out of the key=value tail. Attrs added
// through WithAttrs are flattened once, when the handler is derived.
type consoleHandler struct {
	mu        *sync.Mutex
	w         io.Writer
	level     slog.Leveler
	addSource bool

	component string
	taskID    string
	fields    []field
	group     string
}

type field struct {
	key   string
	value string
}

func newConsoleHandler(w io.Writer, level slog.Leveler, addSource bool) slog.Handler {
	return &consoleHandler{mu: &sync.Mutex{}, w: w, level: level, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	line := lineState{component: h.component, taskID: h.taskID}
	line.fields = append(line.fields, h.fields...)
	r.Attrs(func(a slog.Attr) bool {
		line.add(h.group, a)
		return true
	})

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	msg := strings.TrimSpace(r.Message)
	if msg == "" {
		msg = "(no message)"
	}

	var b strings.Builder
	b.WriteString(formatTimestamp(ts))
	b.WriteByte(' ')
	b.WriteString(levelLabel(r.Level))
	if line.component != "" {
		fmt.Fprintf(&b, " [%s]", line.component)
	}
	if line.taskID != "" {
		b.WriteString(" task ")
		b.WriteString(line.taskID)
	}
	b.WriteString(" – ")
	b.WriteString(msg)
	for _, f := range lastByKey(line.fields) {
		fmt.Fprintf(&b, " %s=%s", f.key, f.value)
	}
	if h.addSource {
		if src := recordSource(r); src != nil && src.File != "" {
			fmt.Fprintf(&b, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	line := lineState{component: h.component, taskID: h.taskID}
	line.fields = append([]field(nil), h.fields...)
	for _, a := range attrs {
		line.add(h.group, a)
	}
	derived := *h
	derived.component, derived.taskID, derived.fields = line.component, line.taskID, line.fields
	return &derived
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	derived := *h
	derived.group = joinKey(h.group, name)
	return &derived
}

type lineState struct {
	component string
	taskID    string
	fields    []field
}

func (l *lineState) add(group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		next := group
		if a.Key != "" {
			next = joinKey(group, a.Key)
		}
		for _, member := range a.Value.Group() {
			l.add(next, member)
		}
		return
	}
	if group == "" {
		switch a.Key {
		case FieldComponent:
			l.component = plainValue(a.Value)
			return
		case FieldTaskID:
			l.taskID = plainValue(a.Value)
			return
		}
	}
	if a.Key == "" {
		return
	}
	l.fields = append(l.fields, field{key: joinKey(group, a.Key), value: quotedValue(a.Value)})
}

// lastByKey keeps the first position of each key with its last value.
func lastByKey(fields []field) []field {
	if len(fields) < 2 {
		return fields
	}
	index := make(map[string]int, len(fields))
	out := make([]field, 0, len(fields))
	for _, f := range fields {
		if i, ok := index[f.key]; ok {
			out[i].value = f.value
			continue
		}
		index[f.key] = len(out)
		out = append(out, f)
	}
	return out
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

func formatTimestamp(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339)
}

// plainValue renders v for the bracketed component and task fields.
func plainValue(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	case slog.KindTime:
		return formatTimestamp(v.Time())
	default:
		return v.String()
	}
}

// quotedValue is plainValue, quoted when it would break key=value parsing.
func quotedValue(v slog.Value) string {
	s := plainValue(v)
	if s == "" || strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}

// recordSource mirrors slog.Record.Source (Go 1.25+) for older toolchains.
func recordSource(r slog.Record) *slog.Source {
	if r.PC == 0 {
		return nil
	}
	fs := runtime.CallersFrames([]uintptr{r.PC})
	f, _ := fs.Next()
	return &slog.Source{Function: f.Function, File: f.File, Line: f.Line}
}
