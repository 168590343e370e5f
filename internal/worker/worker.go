package worker

import (
	"context"
	"errors"
	"fmt"

	"pipewright/internal/lazyio"
)

// Streams holds the lazily opened pipes a worker was given.
type Streams struct {
	Readers []*lazyio.Handle
	Writers []*lazyio.Handle
	DataDir string
}

// Reader returns the i-th declared reader.
func (s *Streams) Reader(i int) (*lazyio.Handle, error) {
	if i < 0 || i >= len(s.Readers) {
		return nil, fmt.Errorf("%w: reader %d not declared (have %d)", ErrInvocation, i, len(s.Readers))
	}
	return s.Readers[i], nil
}

// Writer returns the i-th declared writer.
func (s *Streams) Writer(i int) (*lazyio.Handle, error) {
	if i < 0 || i >= len(s.Writers) {
		return nil, fmt.Errorf("%w: writer %d not declared (have %d)", ErrInvocation, i, len(s.Writers))
	}
	return s.Writers[i], nil
}

// Close closes every handle and reports all failures.
func (s *Streams) Close() error {
	var errs []error
	for _, h := range s.Readers {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, h := range s.Writers {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Worker is a pipeline stage.
type Worker interface {
	Run(ctx context.Context, args []string, s *Streams) error
}

// Finalizer is implemented by workers that hold resources beyond their pipes.
type Finalizer interface {
	Finalize() error
}

// Invoker is implemented by workers that open their own pipes from names.
// OpenIO is one.
type Invoker interface {
	Invoke(ctx context.Context, args, readers, writers []string) error
}

// Func adapts a plain function to Worker.
type Func func(ctx context.Context, args []string, s *Streams) error

// Run calls f.
func (f Func) Run(ctx context.Context, args []string, s *Streams) error {
	return f(ctx, args, s)
}

// OpenIO wraps a Worker so that its declared pipe names become lazy handles
// for the duration of Run.
type OpenIO struct {
	Worker  Worker
	Opener  lazyio.Opener
	DataDir string
}

// Invoke materializes the handles, runs the worker and closes every handle
// whatever the outcome.
func (o OpenIO) Invoke(ctx context.Context, args, readers, writers []string) (err error) {
	streams := &Streams{
		Readers: make([]*lazyio.Handle, 0, len(readers)),
		Writers: make([]*lazyio.Handle, 0, len(writers)),
		DataDir: o.DataDir,
	}
	for _, name := range readers {
		streams.Readers = append(streams.Readers, lazyio.New(name, o.Opener))
	}
	for _, name := range writers {
		streams.Writers = append(streams.Writers, lazyio.New(name, o.Opener))
	}
	defer func() {
		if cerr := streams.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return o.Worker.Run(ctx, args, streams)
}

// Wrap returns w itself when it already manages its pipes, and an OpenIO
// around it otherwise.
func Wrap(w Worker, opener lazyio.Opener, dataDir string) Invoker {
	if inv, ok := w.(Invoker); ok {
		return inv
	}
	return OpenIO{Worker: w, Opener: opener, DataDir: dataDir}
}
