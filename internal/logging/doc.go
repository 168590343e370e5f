// Package logging assembles the slog loggers used by the orchestrator and by
// worker processes.
//
// It owns the console and JSON handlers, resolves the "auto" format by checking
// whether the output is a terminal, and exposes context helpers that tag log
// lines with the run id, pipeline, worker and pid stored by internal/runctx.
// Worker processes rebuild the parent's logger settings from the environment
// (see Options.Environ and OptionsFromEnv) so a run logs in one shape.
package logging
