// Package lazyio provides handles that open a named pipe on first use.
//
// A Handle is bound to a pipe name, not to a file descriptor. The first read
// opens the pipe for reading, the first write opens it for writing, and Close
// returns the handle to the unopened state so that the next operation reopens
// the pipe. A handle keeps the mode chosen by its first operation for its
// whole lifetime.
package lazyio
