// Package history keeps a SQLite journal of finished pipeline runs.
//
// Every run produces one row in runs and one row per reaped child in
// children. The store implements pipeline.Recorder so the orchestrator can
// hand it each report as the run ends. The CLI reads it back through Recent
// and Children.
package history
