// Package tasks launches registered operations as detached background
// processes and tracks their outcome through per-task records on disk.
//
// A Launcher re-executes the current binary with a hidden `task exec`
// command, detached from the caller's session, with output redirected to
// <tasks_dir>/<id>.log. The child resolves the operation in the Registry,
// runs it, and writes its terminal status into <tasks_dir>/<id>.json. The
// parent returns as soon as the child has started.
//
// A Tracker reads those records. A record still marked running whose process
// has disappeared is reported as failed, and that reclassification is written
// back on a best-effort basis. Records move only from running to completed or
// failed; nothing ever writes running over a terminal status.
package tasks
