package operations_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"devflow/internal/operations"
	"devflow/internal/state"
	"devflow/internal/tasks"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   [][]string
	outputs [][]byte
	err     error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.err != nil {
		return nil, f.err
	}
	if len(f.outputs) == 0 {
		return []byte("{}"), nil
	}
	out := f.outputs[0]
	if len(f.outputs) > 1 {
		f.outputs = f.outputs[1:]
	}
	return out, nil
}

type fixture struct {
	store    *state.Store
	runner   *fakeRunner
	out      *bytes.Buffer
	registry *tasks.Registry
	results  string
	tasksDir string
}

func newFixture(t *testing.T, runner *fakeRunner) *fixture {
	t.Helper()
	root := t.TempDir()
	store, err := state.Open(filepath.Join(root, "state.json"))
	if err != nil {
		t.Fatalf("state.Open: %v", err)
	}
	f := &fixture{
		store:    store,
		runner:   runner,
		out:      &bytes.Buffer{},
		registry: tasks.NewRegistry(),
		results:  filepath.Join(root, "results"),
		tasksDir: filepath.Join(root, "tasks"),
	}
	err = operations.Register(f.registry, operations.Env{
		Store:        store,
		Runner:       runner,
		Out:          f.out,
		ResultsDir:   f.results,
		PollInterval: 10 * time.Millisecond,
		PollTimeout:  2 * time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return f
}

func (f *fixture) set(t *testing.T, values map[string]any) {
	t.Helper()
	for key, value := range values {
		if err := f.store.Set(context.Background(), key, value); err != nil {
			t.Fatalf("Set %s: %v", key, err)
		}
	}
}

func (f *fixture) run(t *testing.T, name string) error {
	t.Helper()
	def, err := f.registry.Resolve(name)
	if err != nil {
		t.Fatalf("Resolve %s: %v", name, err)
	}
	return def.Run(context.Background())
}

const insightsResponse = `{"tables":[{"name":"PrimaryResult","columns":[{"name":"timestamp"}],"rows":[["a"],["b"]]}]}`

func TestAppInsightsQueryThroughExecute(t *testing.T) {
	runner := &fakeRunner{outputs: [][]byte{[]byte(insightsResponse)}}
	f := newFixture(t, runner)
	f.set(t, map[string]any{
		"azure.environment":  "staging",
		"azure.query":        "requests | take 2",
		"azure.apps.staging": "app-123",
	})

	launcher, err := tasks.NewLauncher(f.registry, f.tasksDir, tasks.WithExecutable("unused"))
	if err != nil {
		t.Fatalf("NewLauncher: %v", err)
	}
	code := launcher.Execute(context.Background(), "20260101-000000-00c0ffee", operations.AppInsightsQuery, f.out)
	if code != tasks.ExitOK {
		t.Fatalf("exit code %d, output:\n%s", code, f.out.String())
	}
	if !strings.Contains(f.out.String(), "Querying") {
		t.Fatalf("expected Querying in output, got %q", f.out.String())
	}

	if len(runner.calls) != 1 {
		t.Fatalf("expected one az call, got %v", runner.calls)
	}
	call := strings.Join(runner.calls[0], " ")
	for _, want := range []string{"az monitor app-insights query", "--app app-123", "--offset P1D"} {
		if !strings.Contains(call, want) {
			t.Fatalf("expected %q in %q", want, call)
		}
	}

	var result map[string]any
	if ok, err := f.store.Decode(context.Background(), operations.KeyAzureQueryResult, &result); err != nil || !ok {
		t.Fatalf("query result not stored: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(f.results, "appinsights-staging.json"))
	if err != nil {
		t.Fatalf("read results file: %v", err)
	}
	if string(data) != insightsResponse {
		t.Fatalf("unexpected results file %q", data)
	}
	if !strings.Contains(f.out.String(), "Wrote 2 rows") {
		t.Fatalf("expected row count, got %q", f.out.String())
	}
}

func TestAppInsightsQueryMissingKey(t *testing.T) {
	f := newFixture(t, &fakeRunner{})
	f.set(t, map[string]any{"azure.environment": "dev"})

	err := f.run(t, operations.AppInsightsQuery)
	var missing *state.MissingKeyError
	if !errors.As(err, &missing) || missing.Key != "azure.query" {
		t.Fatalf("expected missing azure.query, got %v", err)
	}
}

func TestAppInsightsFallsBackToDefaultApp(t *testing.T) {
	runner := &fakeRunner{outputs: [][]byte{[]byte(insightsResponse)}}
	f := newFixture(t, runner)
	f.set(t, map[string]any{
		"azure.environment": "dev",
		"azure.query":       "traces",
		"azure.app":         "shared-app",
		"azure.timespan":    "PT1H",
	})
	if err := f.run(t, operations.AppInsightsQuery); err != nil {
		t.Fatalf("run: %v", err)
	}
	call := strings.Join(runner.calls[0], " ")
	if !strings.Contains(call, "--app shared-app") || !strings.Contains(call, "--offset PT1H") {
		t.Fatalf("unexpected call %q", call)
	}
}

func TestDryRunSkipsCommands(t *testing.T) {
	runner := &fakeRunner{}
	f := newFixture(t, runner)
	f.set(t, map[string]any{
		"dry_run":           true,
		"azure.environment": "dev",
		"azure.query":       "requests | count",
		"azure.app":         "app",
		"pull_request_id":   "7",
	})

	if err := f.run(t, operations.AppInsightsQuery); err != nil {
		t.Fatalf("app insights dry run: %v", err)
	}
	if err := f.run(t, operations.PullRequestView); err != nil {
		t.Fatalf("pr view dry run: %v", err)
	}
	if len(runner.calls) != 0 {
		t.Fatalf("dry run executed commands: %v", runner.calls)
	}
	if !strings.Contains(f.out.String(), `[dry run] az monitor app-insights query --app app --analytics-query "requests | count"`) {
		t.Fatalf("expected dry-run command line, got %q", f.out.String())
	}
	if _, ok, _ := f.store.Get(context.Background(), operations.KeyAzureQueryResult); ok {
		t.Fatal("dry run must not store results")
	}
}

func TestPipelinePollWaitsForCompletion(t *testing.T) {
	runner := &fakeRunner{outputs: [][]byte{
		[]byte(`{"id":42,"status":"inProgress"}`),
		[]byte(`{"id":42,"status":"inProgress"}`),
		[]byte(`{"id":42,"status":"completed","result":"succeeded","finishTime":"2026-01-01T00:00:00Z"}`),
	}}
	f := newFixture(t, runner)
	f.set(t, map[string]any{
		"azure.pipeline_run_id": 42,
		"azure.organization":    "https://dev.azure.com/acme",
		"azure.project":         "platform",
	})

	if err := f.run(t, operations.PipelinePoll); err != nil {
		t.Fatalf("pipeline poll: %v", err)
	}
	if len(runner.calls) != 3 {
		t.Fatalf("expected 3 polls, got %d", len(runner.calls))
	}
	var run operations.PipelineRun
	if ok, err := f.store.Decode(context.Background(), operations.KeyPipelineResult, &run); err != nil || !ok {
		t.Fatalf("pipeline result not stored: %v", err)
	}
	if run.ID != 42 || run.Result != "succeeded" {
		t.Fatalf("unexpected run %+v", run)
	}
	if !strings.Contains(f.out.String(), "Polling") {
		t.Fatalf("expected polling output, got %q", f.out.String())
	}
}

func TestPipelinePollFailedRunFailsOperation(t *testing.T) {
	runner := &fakeRunner{outputs: [][]byte{[]byte(`{"id":9,"status":"completed","result":"failed"}`)}}
	f := newFixture(t, runner)
	f.set(t, map[string]any{
		"azure.pipeline_run_id": "9",
		"azure.organization":    "acme",
		"azure.project":         "platform",
	})
	if err := f.run(t, operations.PipelinePoll); err == nil || !strings.Contains(err.Error(), `"failed"`) {
		t.Fatalf("expected failed-result error, got %v", err)
	}
}

func TestPipelinePollUsesOnlyTheLatestResponse(t *testing.T) {
	runner := &fakeRunner{outputs: [][]byte{
		[]byte(`{"id":42,"status":"inProgress","result":"succeeded","url":"https://dev.azure.com/acme/run/42"}`),
		[]byte(`{"id":42,"status":"completed","result":"canceled"}`),
	}}
	f := newFixture(t, runner)
	f.set(t, map[string]any{
		"azure.pipeline_run_id": 42,
		"azure.organization":    "acme",
		"azure.project":         "platform",
	})

	if err := f.run(t, operations.PipelinePoll); err == nil || !strings.Contains(err.Error(), `"canceled"`) {
		t.Fatalf("expected canceled-result error, got %v", err)
	}
	var run operations.PipelineRun
	if ok, err := f.store.Decode(context.Background(), operations.KeyPipelineResult, &run); err != nil || !ok {
		t.Fatalf("pipeline result not stored: %v", err)
	}
	if run.URL != "" {
		t.Fatalf("expected url from the earlier poll to be dropped, got %q", run.URL)
	}
}

func TestPipelinePollCLIErrorIsNotRetried(t *testing.T) {
	runner := &fakeRunner{err: errors.New("az: not logged in")}
	f := newFixture(t, runner)
	f.set(t, map[string]any{
		"azure.pipeline_run_id": "9",
		"azure.organization":    "acme",
		"azure.project":         "platform",
	})
	err := f.run(t, operations.PipelinePoll)
	if err == nil || !strings.Contains(err.Error(), "not logged in") {
		t.Fatalf("expected CLI error, got %v", err)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("CLI error should not be retried, got %d calls", len(runner.calls))
	}
}

func TestPullRequestView(t *testing.T) {
	runner := &fakeRunner{outputs: [][]byte{[]byte(`{"number":7,"title":"Add retries","state":"OPEN"}`)}}
	f := newFixture(t, runner)
	f.set(t, map[string]any{"pull_request_id": 7, "github.repo": "acme/service"})

	if err := f.run(t, operations.PullRequestView); err != nil {
		t.Fatalf("pr view: %v", err)
	}
	call := strings.Join(runner.calls[0], " ")
	if !strings.HasPrefix(call, "gh pr view 7 --json number,title") || !strings.HasSuffix(call, "--repo acme/service") {
		t.Fatalf("unexpected call %q", call)
	}
	var pr map[string]any
	if ok, _ := f.store.Decode(context.Background(), operations.KeyPullRequest, &pr); !ok || pr["title"] != "Add retries" {
		t.Fatalf("unexpected stored pull request %v", pr)
	}
}

func TestRegisterNames(t *testing.T) {
	f := newFixture(t, &fakeRunner{})
	names := strings.Join(f.registry.Names(), ",")
	if names != "azure.appinsights_query,azure.pipeline_poll,github.pr_view" {
		t.Fatalf("unexpected registered names %q", names)
	}
}
