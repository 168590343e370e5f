package workers

import (
	"context"
	"fmt"

	"pipewright/internal/lazyio"
	"pipewright/internal/worker"
)

// Splitter distributes the lines of reader 0 round-robin across its writers.
type Splitter struct{}

// Run implements worker.Worker.
func (Splitter) Run(ctx context.Context, _ []string, s *worker.Streams) error {
	in, err := s.Reader(0)
	if err != nil {
		return err
	}
	if len(s.Writers) == 0 {
		return fmt.Errorf("%w: splitter needs at least one writer", worker.ErrInvocation)
	}
	if err := openAll(s.Writers, lazyio.ModeWrite); err != nil {
		return err
	}

	next := 0
	for line, err := range in.Lines() {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Writers[next].WriteLine(line); err != nil {
			return err
		}
		next = (next + 1) % len(s.Writers)
	}
	return nil
}

// Joiner copies each reader to writer 0 in declaration order, draining one
// reader completely before moving to the next. Every reader is opened up
// front so that upstream writers of later readers are not stuck in open.
// Data for a later reader beyond the pipe capacity still waits for its turn.
type Joiner struct{}

// Run implements worker.Worker.
func (Joiner) Run(ctx context.Context, _ []string, s *worker.Streams) error {
	out, err := s.Writer(0)
	if err != nil {
		return err
	}
	if err := openAll(s.Readers, lazyio.ModeRead); err != nil {
		return err
	}
	if err := out.Open(lazyio.ModeWrite); err != nil {
		return err
	}
	for _, in := range s.Readers {
		for line, err := range in.Lines() {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := out.WriteLine(line); err != nil {
				return err
			}
		}
	}
	return nil
}
