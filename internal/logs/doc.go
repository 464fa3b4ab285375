// Package logs provides file tailing and follow helpers for background task
// logs.
//
// It reads the last N lines of a log with bounded memory, resumes from byte
// offsets, and follows appends using filesystem notifications so that
// `devflow task log --follow` reacts as soon as the detached task writes.
// While following, a trailing partial line stays unread until its newline
// arrives. Reading the last lines, or draining a finished log, includes it.
package logs
