package operations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"devflow/internal/logging"
)

var errPipelineRunning = errors.New("pipeline run still in progress")

// PipelineRun is the subset of `az pipelines runs show` output devflow keeps.
type PipelineRun struct {
	ID         int    `json:"id"`
	Name       string `json:"name,omitempty"`
	Status     string `json:"status"`
	Result     string `json:"result,omitempty"`
	FinishTime string `json:"finishTime,omitempty"`
	URL        string `json:"url,omitempty"`
}

// pipelinePoll waits for an Azure DevOps pipeline run to finish and records
// its outcome. A run that finishes unsuccessfully fails the operation.
func (e Env) pipelinePoll(ctx context.Context) error {
	runID, err := e.Store.RequireString(ctx, KeyPipelineRunID)
	if err != nil {
		return err
	}
	org, err := e.Store.RequireString(ctx, KeyAzureOrganization)
	if err != nil {
		return err
	}
	project, err := e.Store.RequireString(ctx, KeyAzureProject)
	if err != nil {
		return err
	}

	args := []string{
		"pipelines", "runs", "show",
		"--id", runID,
		"--organization", org,
		"--project", project,
		"--output", "json",
	}
	fmt.Fprintf(e.Out, "Polling pipeline run %s in %s every %s\n", runID, project, e.PollInterval)

	if e.Store.DryRun(ctx) {
		_, _, err := e.run(ctx, "az", args...)
		return err
	}

	pollCtx, cancel := context.WithTimeout(ctx, e.PollTimeout)
	defer cancel()

	var run PipelineRun
	check := func() error {
		out, _, err := e.run(pollCtx, "az", args...)
		if err != nil {
			// CLI failures are surfaced, not retried.
			return backoff.Permanent(fmt.Errorf("pipeline poll: %w", err))
		}
		var latest PipelineRun
		if err := json.Unmarshal(out, &latest); err != nil {
			return backoff.Permanent(fmt.Errorf("pipeline poll: parse run: %w", err))
		}
		run = latest
		if !strings.EqualFold(run.Status, "completed") {
			return errPipelineRunning
		}
		return nil
	}
	notify := func(_ error, next time.Duration) {
		fmt.Fprintf(e.Out, "Polling: run %s is %s; next check in %s\n", runID, run.Status, next)
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(e.PollInterval), pollCtx)
	if err := backoff.RetryNotify(check, policy, notify); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("pipeline run %s still %s after %s", runID, run.Status, e.PollTimeout)
		}
		return err
	}

	if err := e.Store.Set(ctx, KeyPipelineResult, run); err != nil {
		return err
	}
	fmt.Fprintf(e.Out, "Pipeline run %s finished: %s\n", runID, run.Result)
	e.Logger.Info("pipeline run finished",
		logging.String(logging.FieldEventType, "pipeline_run_finished"),
		logging.String("run_id", runID),
		logging.String("result", run.Result),
	)
	if !strings.EqualFold(run.Result, "succeeded") {
		return fmt.Errorf("pipeline run %s finished with result %q", runID, run.Result)
	}
	return nil
}
