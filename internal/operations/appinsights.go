package operations

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"devflow/internal/fileutil"
	"devflow/internal/logging"
)

// appInsightsQuery runs a Kusto query against the Application Insights
// resource configured for azure.environment.
func (e Env) appInsightsQuery(ctx context.Context) error {
	env, err := e.Store.RequireString(ctx, KeyAzureEnvironment)
	if err != nil {
		return err
	}
	query, err := e.Store.RequireString(ctx, KeyAzureQuery)
	if err != nil {
		return err
	}
	timespan, ok, err := e.Store.GetString(ctx, KeyAzureTimespan)
	if err != nil {
		return err
	}
	if !ok || strings.TrimSpace(timespan) == "" {
		timespan = defaultTimespan
	}
	app, err := e.appFor(ctx, env)
	if err != nil {
		return err
	}

	fmt.Fprintf(e.Out, "Querying Application Insights app %s (%s) over %s\n", app, env, timespan)
	args := []string{
		"monitor", "app-insights", "query",
		"--app", app,
		"--analytics-query", query,
		"--offset", timespan,
		"--output", "json",
	}
	out, ran, err := e.run(ctx, "az", args...)
	if err != nil {
		return fmt.Errorf("app insights query: %w", err)
	}
	if !ran {
		return nil
	}

	result, err := decodeJSON(out)
	if err != nil {
		return fmt.Errorf("app insights query: %w", err)
	}
	if err := e.Store.Set(ctx, KeyAzureQueryResult, result); err != nil {
		return err
	}

	rows := countRows(result)
	if e.ResultsDir != "" {
		path := filepath.Join(e.ResultsDir, "appinsights-"+env+".json")
		if err := fileutil.WriteFileAtomic(path, out, 0o644); err != nil {
			return fmt.Errorf("write query results: %w", err)
		}
		fmt.Fprintf(e.Out, "Wrote %d rows to %s\n", rows, path)
	} else {
		fmt.Fprintf(e.Out, "Query returned %d rows\n", rows)
	}
	e.Logger.Info("app insights query completed",
		logging.String(logging.FieldEventType, "appinsights_query_completed"),
		logging.String("environment", env),
		logging.Int("rows", rows),
	)
	return nil
}

// appFor resolves the App Insights app id: azure.apps.<env> first, then azure.app.
func (e Env) appFor(ctx context.Context, env string) (string, error) {
	app, ok, err := e.Store.GetString(ctx, KeyAzureAppsPrefix+env)
	if err != nil {
		return "", err
	}
	if ok && strings.TrimSpace(app) != "" {
		return app, nil
	}
	return e.Store.RequireString(ctx, KeyAzureApp)
}

// countRows sums the rows of every table in an Application Insights response.
func countRows(result any) int {
	doc, ok := result.(map[string]any)
	if !ok {
		return 0
	}
	tables, ok := doc["tables"].([]any)
	if !ok {
		return 0
	}
	total := 0
	for _, table := range tables {
		t, ok := table.(map[string]any)
		if !ok {
			continue
		}
		if rows, ok := t["rows"].([]any); ok {
			total += len(rows)
		}
	}
	return total
}
