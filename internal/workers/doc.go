// Package workers holds the worker implementations that ship with the
// pipewright binary. Register installs them into a worker.Registry; the CLI
// uses the same registry on the orchestrator side (to validate topologies)
// and in the hidden worker subcommand (to run them).
package workers
