package state_test

import (
	"context"
	"errors"
	"testing"

	"devflow/internal/state"
)

func TestWorkflowLifecycle(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if _, ok, err := store.Workflow(ctx); err != nil || ok {
		t.Fatalf("expected no workflow, ok=%v err=%v", ok, err)
	}
	if _, err := store.AdvanceWorkflow(ctx, "review"); !errors.Is(err, state.ErrNoWorkflow) {
		t.Fatalf("expected ErrNoWorkflow, got %v", err)
	}

	err := store.SetWorkflow(ctx, state.Workflow{
		Name:    "pr-review",
		Step:    "checkout",
		Context: map[string]any{"pull_request_id": "42"},
	})
	if err != nil {
		t.Fatalf("SetWorkflow: %v", err)
	}

	wf, err := store.AdvanceWorkflow(ctx, "review")
	if err != nil {
		t.Fatalf("AdvanceWorkflow: %v", err)
	}
	if wf.Step != "review" || wf.Status != state.WorkflowActive || wf.Name != "pr-review" {
		t.Fatalf("unexpected workflow after advance: %+v", wf)
	}

	if _, err := store.FinishWorkflow(ctx, ""); err != nil {
		t.Fatalf("FinishWorkflow: %v", err)
	}
	stored, ok, err := store.Workflow(ctx)
	if err != nil || !ok {
		t.Fatalf("Workflow: ok=%v err=%v", ok, err)
	}
	if stored.Status != state.WorkflowCompleted || stored.Context["pull_request_id"] != "42" {
		t.Fatalf("unexpected stored workflow: %+v", stored)
	}
	if stored.UpdatedAt.IsZero() {
		t.Fatal("expected updated_at to be set")
	}

	if err := store.ClearWorkflow(ctx); err != nil {
		t.Fatalf("ClearWorkflow: %v", err)
	}
	if _, ok, _ := store.Workflow(ctx); ok {
		t.Fatal("expected workflow removed")
	}
}
