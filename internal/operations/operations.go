package operations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"devflow/internal/logging"
	"devflow/internal/netctx"
	"devflow/internal/state"
	"devflow/internal/tasks"
)

// Registered operation names.
const (
	AppInsightsQuery = "azure.appinsights_query"
	PipelinePoll     = "azure.pipeline_poll"
	PullRequestView  = "github.pr_view"
)

// State keys read and written by the operations.
const (
	KeyAzureEnvironment  = "azure.environment"
	KeyAzureQuery        = "azure.query"
	KeyAzureTimespan     = "azure.timespan"
	KeyAzureApp          = "azure.app"
	KeyAzureAppsPrefix   = "azure.apps."
	KeyAzureQueryResult  = "azure.query_result"
	KeyPipelineRunID     = "azure.pipeline_run_id"
	KeyAzureOrganization = "azure.organization"
	KeyAzureProject      = "azure.project"
	KeyPipelineResult    = "azure.pipeline_result"
	KeyPullRequestID     = "pull_request_id"
	KeyGitHubRepo        = "github.repo"
	KeyPullRequest       = "github.pull_request"
)

const (
	defaultTimespan     = "P1D"
	defaultPollInterval = 30 * time.Second
	defaultPollTimeout  = 30 * time.Minute
)

// Env is what every operation depends on.
type Env struct {
	Store        *state.Store
	Runner       Runner
	Out          io.Writer
	ResultsDir   string
	Logger       *slog.Logger
	PollInterval time.Duration
	PollTimeout  time.Duration
}

func (e Env) withDefaults() Env {
	if e.Runner == nil {
		e.Runner = ExecRunner{}
	}
	if e.Out == nil {
		e.Out = os.Stdout
	}
	if e.PollInterval <= 0 {
		e.PollInterval = defaultPollInterval
	}
	if e.PollTimeout <= 0 {
		e.PollTimeout = defaultPollTimeout
	}
	e.Logger = logging.NewComponentLogger(e.Logger, "operations")
	return e
}

// Register adds every operation to reg. network wraps the operations that
// reach private Azure endpoints; it may be nil.
func Register(reg *tasks.Registry, env Env, network netctx.Middleware) error {
	if env.Store == nil {
		return errors.New("operations: state store is required")
	}
	env = env.withDefaults()
	ops := []struct {
		name    string
		display string
		op      tasks.Operation
		mws     []netctx.Middleware
	}{
		{AppInsightsQuery, "App Insights Query", env.appInsightsQuery, []netctx.Middleware{network}},
		{PipelinePoll, "Pipeline Poll", env.pipelinePoll, []netctx.Middleware{network}},
		{PullRequestView, "Pull Request View", env.pullRequestView, nil},
	}
	for _, o := range ops {
		if err := reg.Register(o.name, o.display, netctx.Chain(o.op, o.mws...)); err != nil {
			return err
		}
	}
	return nil
}

// run executes a CLI unless dry_run is set, in which case it prints the
// command and reports ran=false.
func (e Env) run(ctx context.Context, name string, args ...string) (out []byte, ran bool, err error) {
	if e.Store.DryRun(ctx) {
		fmt.Fprintf(e.Out, "[dry run] %s\n", commandLine(name, args))
		return nil, false, nil
	}
	e.Logger.Debug("running command", logging.String("command", commandLine(name, args)))
	out, err = e.Runner.Run(ctx, name, args...)
	return out, true, err
}

func decodeJSON(data []byte) (any, error) {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("parse command output: %w", err)
	}
	return value, nil
}
