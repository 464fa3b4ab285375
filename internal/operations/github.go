package operations

import (
	"context"
	"fmt"
	"strings"
)

var pullRequestFields = []string{"number", "title", "state", "author", "headRefName", "baseRefName", "url", "reviewDecision"}

// pullRequestView fetches pull request metadata with gh and stores it under
// github.pull_request.
func (e Env) pullRequestView(ctx context.Context) error {
	id, err := e.Store.RequireString(ctx, KeyPullRequestID)
	if err != nil {
		return err
	}
	args := []string{"pr", "view", id, "--json", strings.Join(pullRequestFields, ",")}
	repo, ok, err := e.Store.GetString(ctx, KeyGitHubRepo)
	if err != nil {
		return err
	}
	if ok && strings.TrimSpace(repo) != "" {
		args = append(args, "--repo", repo)
	}

	fmt.Fprintf(e.Out, "Fetching pull request #%s\n", id)
	out, ran, err := e.run(ctx, "gh", args...)
	if err != nil {
		return fmt.Errorf("view pull request: %w", err)
	}
	if !ran {
		return nil
	}
	pr, err := decodeJSON(out)
	if err != nil {
		return fmt.Errorf("view pull request: %w", err)
	}
	if err := e.Store.Set(ctx, KeyPullRequest, pr); err != nil {
		return err
	}
	if doc, ok := pr.(map[string]any); ok {
		fmt.Fprintf(e.Out, "#%s %v (%v)\n", id, doc["title"], doc["state"])
	}
	return nil
}
