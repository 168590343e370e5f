// Package main hosts the pipewright CLI.
//
// The Cobra command tree loads configuration once, validates pipeline
// definitions, runs them under a pipeline.Pipeline, and reads back the run
// journal. The same binary is also the worker host: the orchestrator
// re-executes it with the hidden "worker" subcommand for every worker stage.
package main
