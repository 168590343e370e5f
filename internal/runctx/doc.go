// Package runctx annotates contexts with the identity of a pipeline run.
//
// The orchestrator stores the run id and pipeline name; a worker host adds its
// worker name and pid. internal/logging reads these values back so every log
// line carries the same correlation fields without threading them by hand.
package runctx
