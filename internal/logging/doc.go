// Package logging assembles structured slog loggers and formatting helpers used
// across devflow.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so task code can tag log lines
// with task IDs and operation names. The package also provides a no-op logger
// for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so that the
// interactive CLI and detached background tasks emit the same shape of data.
package logging
