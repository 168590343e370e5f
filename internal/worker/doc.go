// Package worker defines the contract between the orchestrator and the code
// that runs inside a worker process.
//
// A Worker receives positional arguments and a Streams value holding one lazy
// handle per declared reader and writer name. OpenIO is the decorator that
// builds those handles before Run and closes them afterwards; workers that
// manage their own pipes implement Invoker instead and are used as-is. A
// worker may also implement Finalizer to release resources exactly once when
// its process is done, including when Run panics.
//
// Worker processes are re-executions of a host binary. Invocation is the
// explicit argv and environment encoding of what to run, and Main is the entry
// point the host calls with that argv.
package worker
