package channel

import (
	"errors"
	"fmt"
)

var (
	// ErrFileSystem marks failures creating, locking, or removing the pipe directory.
	ErrFileSystem = errors.New("pipe directory error")
	// ErrPipeCreation marks failures materializing a named pipe.
	ErrPipeCreation = errors.New("pipe creation error")
	// ErrChannelOpen marks failures opening a named pipe.
	ErrChannelOpen = errors.New("channel open error")
)

func wrap(marker error, operation, subject string, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", marker, operation, subject, err)
	}
	return fmt.Errorf("%w: %s %s", marker, operation, subject)
}
