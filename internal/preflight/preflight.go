package preflight

import (
	"context"
	"fmt"
	"strings"

	"pipewright/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	// Optional results never block a run.
	Optional bool
	Detail   string
}

// RunAll executes every applicable check for cfg.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	for _, status := range CheckBinaries(Requirements(cfg)) {
		results = append(results, status.Result())
	}

	results = append(results, CheckCreatable("Data directory", cfg.Paths.DataDir))
	results = append(results, CheckCreatable("Pipe directory", cfg.Paths.PipeDir))
	results = append(results, CheckFIFOSupport(ctx, cfg.Paths.PipeDir))

	if cfg.Paths.LogDir != "" {
		results = append(results, CheckCreatable("Log directory", cfg.Paths.LogDir))
	}
	if cfg.History.Enabled {
		state := CheckCreatable("State directory", cfg.Paths.StateDir)
		state.Optional = true
		results = append(results, state)
	}
	return results
}

// Failures returns the required checks that did not pass.
func Failures(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}

// Error summarizes required failures, or returns nil when there are none.
func Error(results []Result) error {
	failed := Failures(results)
	if len(failed) == 0 {
		return nil
	}
	parts := make([]string, 0, len(failed))
	for _, r := range failed {
		parts = append(parts, r.Name+": "+r.Detail)
	}
	return fmt.Errorf("preflight failed: %s", strings.Join(parts, "; "))
}
