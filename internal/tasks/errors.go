package tasks

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskNotFound reports an unknown task id.
	ErrTaskNotFound = errors.New("task not found")
	// ErrUnknownOperation reports an operation name missing from the registry.
	ErrUnknownOperation = errors.New("unknown operation")
	// ErrSpawnFailure is matched by SpawnError.
	ErrSpawnFailure = errors.New("spawn failure")
)

// SpawnError reports that the background process could not be started.
type SpawnError struct {
	Operation string
	Command   string
	Err       error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("start background task for %s (%s): %v", e.Operation, e.Command, e.Err)
}

func (e *SpawnError) Unwrap() []error { return []error{ErrSpawnFailure, e.Err} }

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
}
