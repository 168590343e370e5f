package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrSpawn marks a failure to start a child process.
	ErrSpawn = errors.New("spawn failed")
	// ErrChainEmpty marks a chain stage that needs an upstream pipe but has none.
	ErrChainEmpty = errors.New("chain has no upstream pipe")
	// ErrState marks an operation invoked in the wrong run state.
	ErrState = errors.New("invalid pipeline state")
)

func wrap(marker error, operation, subject string, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", marker, operation, subject, err)
	}
	return fmt.Errorf("%w: %s %s", marker, operation, subject)
}
