package state

import (
	"context"
	"strings"
	"time"
)

// Workflow statuses.
const (
	WorkflowActive    = "active"
	WorkflowCompleted = "completed"
	WorkflowFailed    = "failed"
)

// Workflow is the reserved sub-document tracking a multi-step developer
// workflow. The store does not enforce coherent transitions.
type Workflow struct {
	Name      string         `json:"name"`
	Status    string         `json:"status"`
	Step      string         `json:"step,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	UpdatedAt time.Time      `json:"updated_at,omitzero"`
}

// Workflow returns the stored workflow, if any.
func (s *Store) Workflow(ctx context.Context) (Workflow, bool, error) {
	var wf Workflow
	ok, err := s.Decode(ctx, WorkflowKey, &wf)
	if err != nil || !ok {
		return Workflow{}, ok, err
	}
	return wf, true, nil
}

// SetWorkflow replaces the stored workflow.
func (s *Store) SetWorkflow(ctx context.Context, wf Workflow) error {
	if strings.TrimSpace(wf.Status) == "" {
		wf.Status = WorkflowActive
	}
	wf.UpdatedAt = time.Now().UTC()
	return s.Set(ctx, WorkflowKey, wf)
}

// AdvanceWorkflow records step as the current step of the active workflow.
func (s *Store) AdvanceWorkflow(ctx context.Context, step string) (Workflow, error) {
	return s.updateWorkflow(ctx, func(wf *Workflow) {
		wf.Step = step
		wf.Status = WorkflowActive
	})
}

// FinishWorkflow marks the workflow with a terminal status.
func (s *Store) FinishWorkflow(ctx context.Context, status string) (Workflow, error) {
	if strings.TrimSpace(status) == "" {
		status = WorkflowCompleted
	}
	return s.updateWorkflow(ctx, func(wf *Workflow) {
		wf.Status = status
	})
}

// ClearWorkflow removes the workflow sub-document.
func (s *Store) ClearWorkflow(ctx context.Context) error {
	return s.Delete(ctx, WorkflowKey)
}

func (s *Store) updateWorkflow(ctx context.Context, mutate func(*Workflow)) (Workflow, error) {
	var result Workflow
	err := s.Update(ctx, func(doc map[string]any) error {
		raw, ok := doc[WorkflowKey]
		if !ok || raw == nil {
			return ErrNoWorkflow
		}
		var wf Workflow
		if err := decodeValue(raw, &wf); err != nil {
			return err
		}
		mutate(&wf)
		wf.UpdatedAt = time.Now().UTC()
		value, err := toJSONValue(wf)
		if err != nil {
			return err
		}
		doc[WorkflowKey] = value
		result = wf
		return nil
	})
	return result, err
}
