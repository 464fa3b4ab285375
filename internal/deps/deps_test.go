package deps

import (
	"os"
	"path/filepath"
	"testing"

	"devflow/internal/config"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unset", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Detail != present {
		t.Fatalf("expected resolved path as detail, got %q", results[0].Detail)
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatalf("expected detail message for missing binary")
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}

	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected status for empty command: %#v", results[2])
	}
}

func TestRequirementsIncludeNetworkCommands(t *testing.T) {
	base := Requirements(config.Network{})
	if len(base) != 2 || base[0].Command != "az" || base[1].Command != "gh" {
		t.Fatalf("unexpected base requirements: %#v", base)
	}

	withNetwork := Requirements(config.Network{
		Enabled:           true,
		CheckCommand:      "vpnctl status",
		ConnectCommand:    "vpnctl connect corp",
		DisconnectCommand: "",
	})
	if len(withNetwork) != 3 {
		t.Fatalf("expected one deduplicated network requirement, got %#v", withNetwork)
	}
	if withNetwork[2].Command != "vpnctl" {
		t.Fatalf("unexpected network binary %q", withNetwork[2].Command)
	}
}

func TestCommandBinary(t *testing.T) {
	tests := map[string]string{
		"":                      "",
		"   ":                   "",
		"vpnctl":                "vpnctl",
		"  nmcli con up corp  ": "nmcli",
	}
	for line, want := range tests {
		if got := CommandBinary(line); got != want {
			t.Fatalf("CommandBinary(%q) = %q, want %q", line, got, want)
		}
	}
}
