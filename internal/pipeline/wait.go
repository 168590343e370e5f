package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"

	"pipewright/internal/logging"
)

// WaitProcesses blocks until every tracked child has exited, records their
// exits and stops tracking them. Non-zero exit codes are logged, not returned.
// When ctx ends first, the children are killed and ctx.Err() is returned.
func (p *Pipeline) WaitProcesses(ctx context.Context) error {
	children := p.Children()
	logger := logging.WithContext(ctx, p.logger)
	for _, child := range children {
		select {
		case <-child.done:
		case <-ctx.Done():
			logger.Warn("wait interrupted; killing children", logging.Error(ctx.Err()))
			p.KillChildren()
			return ctx.Err()
		}
	}
	p.collect(logger, children)
	return nil
}

// KillChildren sends SIGTERM to every tracked child's process group, sends
// SIGKILL to the groups still running after the kill grace period, then
// reaps and stops tracking them. Children that already exited are not an
// error.
func (p *Pipeline) KillChildren() {
	children := p.Children()
	if len(children) == 0 {
		return
	}
	prev := p.State()
	p.setState(StateKilling)
	defer func() {
		if prev != StateFailed {
			p.setState(prev)
		}
	}()

	logger := p.logger
	for _, child := range children {
		if p.signal(logger, child, unix.SIGTERM) {
			p.opts.Metrics.ChildKilled()
		}
	}

	grace := time.NewTimer(p.opts.KillGrace)
	defer grace.Stop()
	if !waitAll(children, grace.C) {
		for _, child := range children {
			select {
			case <-child.done:
			default:
				logger.Warn("child ignored SIGTERM; sending SIGKILL",
					logging.Int(logging.FieldPID, child.PID),
					logging.String("label", child.Label),
					logging.Duration("grace", p.opts.KillGrace),
				)
				p.signal(logger, child, unix.SIGKILL)
			}
		}
		waitAll(children, nil)
	}
	p.collect(logger, children)
}

// signal delivers sig to the child's process group and reports whether it
// was sent. A child that has been reaped is skipped because its pid may
// already belong to another process.
func (p *Pipeline) signal(logger *slog.Logger, child *Child, sig unix.Signal) bool {
	select {
	case <-child.done:
		return false
	default:
	}
	err := unix.Kill(-child.PID, sig)
	if err != nil && !errors.Is(err, unix.ESRCH) {
		logger.Debug("signal child failed",
			logging.Int(logging.FieldPID, child.PID),
			logging.String("signal", sig.String()),
			logging.Error(err),
		)
	}
	return err == nil
}

// waitAll waits for every child's done channel. It returns false when timeout
// fires first; a nil timeout waits indefinitely.
func waitAll(children []*Child, timeout <-chan time.Time) bool {
	for _, child := range children {
		select {
		case <-child.done:
		case <-timeout:
			return false
		}
	}
	return true
}

// collect moves reaped children from the tracked list to the exit records.
// children must be a prefix of the tracked list.
func (p *Pipeline) collect(logger *slog.Logger, children []*Child) {
	for _, child := range children {
		exit := child.exit
		p.opts.Metrics.ChildExited(exit.Status())
		attrs := []logging.Attr{
			logging.Int(logging.FieldPID, exit.PID),
			logging.String("label", exit.Label),
			logging.String("status", exit.Status()),
			logging.Int("exit_code", exit.ExitCode),
			logging.Duration("duration", exit.Duration),
		}
		if exit.Signaled {
			attrs = append(attrs, logging.String("signal", exit.Signal))
		}
		if exit.Success() {
			logger.Info("child exited", logging.Args(attrs...)...)
		} else {
			logger.Warn("child exited abnormally", logging.Args(attrs...)...)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, child := range children {
		p.exits = append(p.exits, child.exit)
	}
	if len(children) <= len(p.children) {
		p.children = append([]*Child(nil), p.children[len(children):]...)
	} else {
		p.children = nil
	}
}
