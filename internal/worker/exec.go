package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sys/unix"

	"pipewright/internal/channel"
	"pipewright/internal/lazyio"
	"pipewright/internal/logging"
	"pipewright/internal/runctx"
)

// Exit codes returned by Main.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitInvocation = 2
)

// stopGrace bounds how long a signalled worker may take to return once its
// context is cancelled before the host exits without waiting. A worker blocked
// opening a pipe does not get the grace period.
const stopGrace = 5 * time.Second

// Exec runs one worker inside the current process. Broken-pipe errors are
// treated as a normal end of work. The worker's Finalize hook, when present,
// runs exactly once after Run returns or panics.
func Exec(ctx context.Context, reg *Registry, inv Invocation, logger *slog.Logger) error {
	return execGated(ctx, reg, inv, logger, &openGate{})
}

func execGated(ctx context.Context, reg *Registry, inv Invocation, logger *slog.Logger, gate *openGate) (err error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	factory, err := reg.Lookup(inv.Worker)
	if err != nil {
		return err
	}
	w := factory()
	if w == nil {
		return fmt.Errorf("%w: factory for %s returned nil", ErrInvocation, inv.Worker)
	}

	if f, ok := w.(Finalizer); ok {
		defer func() {
			if ferr := f.Finalize(); ferr != nil {
				logger.Warn("worker finalize failed", logging.Error(ferr))
				if err == nil {
					err = fmt.Errorf("finalize %s: %w", inv.Worker, ferr)
				}
			}
		}()
	}

	opener := gatedOpener{ctx: ctx, gate: gate, opener: channel.New(inv.Channel)}
	invoker := Wrap(w, opener, inv.Channel.DataDir)

	logger.Debug("worker starting",
		logging.Strings("readers", inv.Readers),
		logging.Strings("writers", inv.Writers),
		logging.Strings("args", inv.Args),
	)
	err = invoker.Invoke(ctx, inv.Args, inv.Readers, inv.Writers)
	if err != nil && lazyio.IsBrokenPipe(err) {
		logger.Debug("downstream reader closed; stopping", logging.Error(err))
		return nil
	}
	return err
}

// Main is the body of a worker host process. argv holds the arguments after
// the host's own command name.
func Main(ctx context.Context, reg *Registry, argv []string, lookup func(string) (string, bool), stderr io.Writer) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	inv, err := ParseInvocation(argv, lookup)
	if err != nil {
		fmt.Fprintf(stderr, "pipewright worker: %v\n", err)
		return ExitInvocation
	}

	logger, err := logging.New(logging.OptionsFromEnv(lookup))
	if err != nil {
		fmt.Fprintf(stderr, "pipewright worker: %v\n", err)
		return ExitInvocation
	}

	ctx = runctx.WithRunID(ctx, inv.RunID)
	ctx = runctx.WithWorker(ctx, inv.Worker)
	ctx = runctx.WithPID(ctx, os.Getpid())
	logger = logging.WithContext(ctx, logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, unix.SIGTERM, unix.SIGINT)
	defer signal.Stop(sigs)

	gate := &openGate{}
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case sig := <-sigs:
			logger.Debug("worker received signal", logging.String("signal", sig.String()))
			cancel()
			if gate.stop() {
				logger.Debug("worker blocked opening a pipe; exiting")
				os.Exit(exitCodeForSignal(sig))
			}
			select {
			case <-done:
			case <-sigs:
				os.Exit(exitCodeForSignal(sig))
			case <-time.After(stopGrace):
				os.Exit(exitCodeForSignal(sig))
			}
		case <-done:
		}
	}()

	code := ExitOK
	func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("worker panicked", logging.Any("panic", r))
				code = ExitFailure
			}
		}()
		if err := execGated(ctx, reg, inv, logger, gate); err != nil {
			switch {
			case errors.Is(err, context.Canceled) && ctx.Err() != nil:
				logger.Info("worker stopped by signal")
				code = 128 + int(unix.SIGTERM)
			case errors.Is(err, ErrUnknownWorker), errors.Is(err, ErrInvocation):
				logger.Error("worker invocation rejected", logging.Error(err))
				code = ExitInvocation
			default:
				logger.Error("worker failed", logging.Error(err))
				code = ExitFailure
			}
		}
	}()
	return code
}

func exitCodeForSignal(sig os.Signal) int {
	if s, ok := sig.(unix.Signal); ok {
		return 128 + int(s)
	}
	return ExitFailure
}
