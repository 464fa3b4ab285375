// Package state implements the shared, file-backed key/value store that every
// devflow command reads its parameters from.
//
// The store is a single JSON document keyed by dotted names such as
// azure.environment or pull_request_id. Every mutation is a read-modify-write
// under an exclusive lock on a sidecar lock file, and the document is replaced
// atomically. When the lock cannot be taken within the configured timeout the
// write proceeds unlocked and a state_lock_degraded warning is logged: a busy
// store must never make a command fail, at the cost that concurrent writers
// may overwrite each other in that window.
//
// Parsing is tolerant. Comments and trailing commas in hand-edited files are
// accepted, and a document that still cannot be parsed is treated as empty.
package state
