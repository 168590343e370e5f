// Package topology loads pipeline definitions from TOML and turns them into
// spawn calls.
//
// A definition is a name plus an ordered list of stages. Each stage is
// exactly one of: a worker (optionally "auto" to create its pipes on demand),
// a shell command with ((pipe)) placeholders, or a wait barrier that drains
// every child spawned so far. Validate replays the pipe bookkeeping the
// pipeline performs at run time so that ordering mistakes surface before any
// process starts.
package topology
