// Package preflight checks that a host can run pipelines before any child is
// spawned: the configured shell exists, the pipe directory's file system
// accepts FIFOs, and the data, log and state directories are reachable.
//
// "pipewright check" prints every result; "pipewright run" calls RunAll and
// refuses to start when a required check fails.
package preflight
