package main

import (
	"errors"
	"strings"
	"testing"

	"devflow/internal/state"
)

func TestStateSetGetUnsetClear(t *testing.T) {
	env := setupCLITestEnv(t)

	mustRunCLI(t, env, "state", "set", "azure.environment", "staging")
	mustRunCLI(t, env, "state", "set", "retries", "3")
	mustRunCLI(t, env, "state", "set", "build", "42", "--string")

	if out := mustRunCLI(t, env, "state", "get", "azure.environment"); out != "staging\n" {
		t.Fatalf("unexpected value %q", out)
	}
	if out := mustRunCLI(t, env, "state", "get", "retries"); out != "3\n" {
		t.Fatalf("unexpected value %q", out)
	}

	out := mustRunCLI(t, env, "state", "show", "--json")
	requireContains(t, out, `"retries": 3`)
	requireContains(t, out, `"build": "42"`)

	out = mustRunCLI(t, env, "state", "show")
	requireContains(t, out, "azure.environment")
	requireContains(t, out, "staging")

	mustRunCLI(t, env, "state", "unset", "azure.environment")
	if out := mustRunCLI(t, env, "state", "get", "azure.environment"); out != "" {
		t.Fatalf("expected no output for unset key, got %q", out)
	}

	out = mustRunCLI(t, env, "state", "clear")
	requireContains(t, out, "State cleared")
	out = mustRunCLI(t, env, "state", "show")
	requireContains(t, out, "is empty")
}

func TestStateGetRequiredReportsMissingKey(t *testing.T) {
	env := setupCLITestEnv(t)

	_, err := runCLI(t, env, "state", "get", "pull_request_id", "--required")
	if !errors.Is(err, state.ErrMissingKey) {
		t.Fatalf("expected missing key error, got %v", err)
	}
	if !strings.Contains(err.Error(), "devflow state set pull_request_id <value>") {
		t.Fatalf("expected actionable message, got %q", err.Error())
	}
}

func TestWorkflowLifecycle(t *testing.T) {
	env := setupCLITestEnv(t)

	requireContains(t, mustRunCLI(t, env, "workflow", "show"), "No active workflow")

	if _, err := runCLI(t, env, "workflow", "step", "build"); !errors.Is(err, state.ErrNoWorkflow) {
		t.Fatalf("expected no workflow error, got %v", err)
	}

	requireContains(t, mustRunCLI(t, env, "workflow", "start", "release", "--step", "build"), "Started workflow release")
	requireContains(t, mustRunCLI(t, env, "workflow", "step", "deploy"), "at step deploy")

	out := mustRunCLI(t, env, "workflow", "show")
	requireContains(t, out, "Workflow release")
	requireContains(t, out, "deploy")

	if _, err := runCLI(t, env, "workflow", "finish", "--status", "paused"); err == nil {
		t.Fatal("expected invalid finish status to be rejected")
	}
	requireContains(t, mustRunCLI(t, env, "workflow", "finish", "--status", "failed"), "release failed")
	requireContains(t, mustRunCLI(t, env, "workflow", "show", "--json"), `"status": "failed"`)

	mustRunCLI(t, env, "workflow", "clear")
	requireContains(t, mustRunCLI(t, env, "workflow", "show"), "No active workflow")
}
