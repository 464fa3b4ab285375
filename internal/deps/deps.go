package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"devflow/internal/config"
)

// Requirement defines an external CLI devflow operations rely on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports whether a requirement resolved on PATH. Detail holds the
// resolved path, or the reason it is unavailable.
type Status struct {
	Requirement
	Available bool
	Detail    string
}

// Requirements lists the external CLIs used by the registered operations,
// plus the network context commands when that is enabled.
func Requirements(network config.Network) []Requirement {
	reqs := []Requirement{
		{Name: "Azure CLI", Command: "az", Description: "azure.appinsights_query, azure.pipeline_poll"},
		{Name: "GitHub CLI", Command: "gh", Description: "github.pr_view"},
	}
	if !network.Enabled {
		return reqs
	}
	seen := map[string]bool{}
	for _, line := range []string{network.CheckCommand, network.ConnectCommand, network.DisconnectCommand} {
		bin := CommandBinary(line)
		if bin == "" || seen[bin] {
			continue
		}
		seen[bin] = true
		reqs = append(reqs, Requirement{Name: "Network context", Command: bin, Description: "network.* commands"})
	}
	return reqs
}

// CommandBinary returns the program name of a whitespace-separated command line.
func CommandBinary(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// CheckBinaries resolves each requirement's command on PATH.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, len(requirements))
	for i, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		results[i] = Status{Requirement: req}
		if req.Command == "" {
			results[i].Detail = "command not configured"
			continue
		}
		path, err := exec.LookPath(req.Command)
		if err != nil {
			results[i].Detail = fmt.Sprintf("binary %q not found", req.Command)
			continue
		}
		results[i].Available = true
		results[i].Detail = path
	}
	return results
}
