// Package pipeline supervises one run of a pipe-connected process topology.
//
// A Pipeline owns a channel.Channel for the pipe directory and the set of child
// processes a topology spawns. Run sets the channel up, lets the topology spawn
// workers and shell commands bound to named pipes, waits for every child, and
// tears the pipe directory down on the way out whatever happened. When the
// topology fails, panics, or the context ends, every tracked child's process
// group is sent SIGTERM, then SIGKILL after the kill grace period, and reaped
// before the original error is returned.
//
// Worker children are re-executions of a host binary described by a Launcher.
// The worker name, pipe names and arguments travel in argv and the channel
// configuration travels in the environment; see internal/worker.
//
// Exit codes of children are recorded and logged but never turned into run
// errors. Only failures in the orchestrating process fail a run.
package pipeline
