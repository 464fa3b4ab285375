// Package main hosts the devflow CLI entrypoint and command graph.
//
// The Cobra command tree exposes the shared state file, the background task
// tracker, and the registered developer operations. Commands resolve
// configuration once through commandContext and hand the real work to the
// internal packages.
package main
