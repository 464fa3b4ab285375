package state

import (
	"errors"
	"fmt"
)

// ErrMissingKey is matched by MissingKeyError.
var ErrMissingKey = errors.New("missing state key")

// ErrNoWorkflow reports that no workflow is stored.
var ErrNoWorkflow = errors.New("no active workflow")

// MissingKeyError names a required key that is absent from the store.
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("missing state key %q: set it with devflow state set %s <value>", e.Key, e.Key)
}

func (e *MissingKeyError) Unwrap() error { return ErrMissingKey }
