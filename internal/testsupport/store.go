package testsupport

import (
	"context"
	"testing"

	"devflow/internal/config"
	"devflow/internal/state"
)

// MustOpenStore opens the config's state store for tests.
func MustOpenStore(t testing.TB, cfg *config.Config) *state.Store {
	t.Helper()

	store, err := state.Open(cfg.Paths.StateFile,
		state.WithLockTimeout(cfg.LockTimeout()),
		state.WithRetryDelay(cfg.LockRetry()),
	)
	if err != nil {
		t.Fatalf("state.Open: %v", err)
	}
	return store
}

// SeedState writes every key in values to store.
func SeedState(t testing.TB, store *state.Store, values map[string]any) {
	t.Helper()

	err := store.Update(context.Background(), func(doc map[string]any) error {
		for key, value := range values {
			doc[key] = value
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed state: %v", err)
	}
}
