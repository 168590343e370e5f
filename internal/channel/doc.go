// Package channel owns the pipe directory of a pipeline run.
//
// A Channel creates the directory at setup, locks it so a second orchestrator
// cannot share it, materializes named pipes (FIFOs) inside it on request, and
// removes the whole directory at teardown unless the configuration preserves
// it. Opening a pipe follows FIFO semantics: a reader blocks until a writer
// attaches and vice versa, so pipes must be created before any process tries
// to open them.
//
// The configuration is an explicit value. Worker processes receive it through
// the environment (see Config.Environ and ConfigFromEnv) and build their own
// Channel without calling Setup.
package channel
