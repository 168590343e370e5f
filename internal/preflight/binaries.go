package preflight

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"pipewright/internal/config"
)

// Requirement defines an external program a run relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a requirement.
type Status struct {
	Requirement
	Available bool
	Path      string
	Detail    string
}

// Result converts the status for display next to the other checks.
func (s Status) Result() Result {
	detail := s.Detail
	if s.Available {
		detail = s.Path
	}
	return Result{Name: s.Name, Passed: s.Available, Optional: s.Optional, Detail: detail}
}

// Requirements lists the programs needed by cfg: the shell that runs command
// stages and the worker host binary itself.
func Requirements(cfg *config.Config) []Requirement {
	reqs := []Requirement{{
		Name:        "Shell",
		Command:     cfg.Pipeline.Shell,
		Description: "Runs command stages",
	}}
	if exe, err := os.Executable(); err == nil {
		reqs = append(reqs, Requirement{
			Name:        "Worker host",
			Command:     exe,
			Description: "Re-executed for every worker stage",
		})
	}
	return reqs
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		status := Status{Requirement: req}
		if req.Command == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		path, err := exec.LookPath(req.Command)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", req.Command)
			results = append(results, status)
			continue
		}
		status.Available = true
		status.Path = path
		results = append(results, status)
	}
	return results
}
