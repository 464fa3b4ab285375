// Package config loads, normalizes, and validates devflow configuration data.
//
// It supplies defaults, expands user paths (including tilde shortcuts), reads
// TOML files, and honours environment fallbacks such as DEVFLOW_STATE_FILE.
// When no explicit state or task locations are configured they are derived
// from the enclosing repository root, so every checkout gets its own
// .devflow directory.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, canonical log formats, and clear validation errors.
package config
