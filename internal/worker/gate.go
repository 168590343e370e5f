package worker

import (
	"context"
	"fmt"
	"os"
	"sync"

	"pipewright/internal/lazyio"
)

// openGate counts pipe opens in flight. A FIFO open blocks in the kernel
// until the peer arrives and is not interrupted by a cancelled context, so
// the host uses the count to decide whether a signal can wait for Run to
// return or must end the process.
type openGate struct {
	mu      sync.Mutex
	pending int
	stopped bool
}

func (g *openGate) enter() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return false
	}
	g.pending++
	return true
}

func (g *openGate) leave() {
	g.mu.Lock()
	g.pending--
	g.mu.Unlock()
}

// stop refuses further opens and reports whether one is still blocked.
func (g *openGate) stop() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopped = true
	return g.pending > 0
}

// gatedOpener refuses to start an open once ctx is done or the gate stopped.
type gatedOpener struct {
	ctx    context.Context
	gate   *openGate
	opener lazyio.Opener
}

func (o gatedOpener) OpenReader(name string) (*os.File, error) {
	return o.open(name, o.opener.OpenReader)
}

func (o gatedOpener) OpenWriter(name string) (*os.File, error) {
	return o.open(name, o.opener.OpenWriter)
}

func (o gatedOpener) open(name string, fn func(string) (*os.File, error)) (*os.File, error) {
	if err := o.ctx.Err(); err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if !o.gate.enter() {
		return nil, fmt.Errorf("open %s: %w", name, context.Canceled)
	}
	defer o.gate.leave()
	return fn(name)
}
