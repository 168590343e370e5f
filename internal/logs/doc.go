// Package logs reads the orchestrator log file for `pipewright logs`.
//
// Last returns the final lines of the file along with the offset just past
// them, and Follow polls from an offset until its context ends. Both keep
// memory bounded by the number of lines requested, not the size of the file.
package logs
