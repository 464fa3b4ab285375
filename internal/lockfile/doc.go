// Package lockfile provides cross-process advisory locks over an existing file
// path with bounded retry.
//
// Exclusive locks exclude every other lock on the path; shared locks exclude
// only exclusive ones. The platform primitive (flock on POSIX, LockFileEx on
// Windows) comes from github.com/gofrs/flock, so callers never branch on
// platform. Acquire never creates or removes the target file and never waits
// indefinitely: every attempt is bounded by an explicit timeout.
package lockfile
