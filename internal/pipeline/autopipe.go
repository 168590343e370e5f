package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// Chain placeholders for command stages: ((<)) is the upstream pipe and ((>))
// a fresh downstream pipe.
const (
	UpstreamPlaceholder   = "((<))"
	DownstreamPlaceholder = "((>))"
)

// SpawnAuto creates every reader and writer pipe of spec that does not exist
// yet and spawns the worker. Unlike SpawnProcess it tolerates pipes created
// earlier in the run, so stages may be spawned in any order.
func (p *Pipeline) SpawnAuto(ctx context.Context, spec ProcessSpec) (*Child, error) {
	return p.spawnWorker(ctx, spec, true)
}

// Chain connects stages one-to-one through generated pipe names
// "<prefix>-1", "<prefix>-2", and so on. The first error sticks: later calls
// do nothing and Err reports it.
type Chain struct {
	p      *Pipeline
	prefix string
	seq    int
	last   string
	err    error
}

// Chain starts a new chain. An empty prefix becomes "chain".
func (p *Pipeline) Chain(prefix string) *Chain {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "chain"
	}
	return &Chain{p: p, prefix: prefix}
}

func (c *Chain) next() string {
	c.seq++
	return fmt.Sprintf("%s-%d", c.prefix, c.seq)
}

// Source spawns a worker that writes to a new pipe.
func (c *Chain) Source(ctx context.Context, worker string, args ...string) *Chain {
	if c.err != nil {
		return c
	}
	out := c.next()
	if _, err := c.p.SpawnAuto(ctx, ProcessSpec{Worker: worker, Args: args, Writers: []string{out}}); err != nil {
		c.err = err
		return c
	}
	c.last = out
	return c
}

// Stage spawns a worker reading the previous pipe and writing a new one.
func (c *Chain) Stage(ctx context.Context, worker string, args ...string) *Chain {
	if c.err != nil {
		return c
	}
	if c.last == "" {
		c.err = fmt.Errorf("%w: stage %s", ErrChainEmpty, worker)
		return c
	}
	out := c.next()
	spec := ProcessSpec{Worker: worker, Args: args, Readers: []string{c.last}, Writers: []string{out}}
	if _, err := c.p.SpawnAuto(ctx, spec); err != nil {
		c.err = err
		return c
	}
	c.last = out
	return c
}

// Sink spawns a worker reading the previous pipe. The chain is then open again.
func (c *Chain) Sink(ctx context.Context, worker string, args ...string) *Chain {
	if c.err != nil {
		return c
	}
	if c.last == "" {
		c.err = fmt.Errorf("%w: sink %s", ErrChainEmpty, worker)
		return c
	}
	if _, err := c.p.SpawnAuto(ctx, ProcessSpec{Worker: worker, Args: args, Readers: []string{c.last}}); err != nil {
		c.err = err
		return c
	}
	c.last = ""
	return c
}

// Command spawns a shell command. ((<)) expands to the previous pipe and ((>))
// to a new pipe that becomes the chain's tail. Other ((name)) placeholders are
// left to SpawnCommand.
func (c *Chain) Command(ctx context.Context, template string) *Chain {
	if c.err != nil {
		return c
	}
	usesUpstream := strings.Contains(template, UpstreamPlaceholder)
	usesDownstream := strings.Contains(template, DownstreamPlaceholder)
	if usesUpstream && c.last == "" {
		c.err = fmt.Errorf("%w: command %q", ErrChainEmpty, template)
		return c
	}
	expanded := template
	if usesUpstream {
		expanded = strings.ReplaceAll(expanded, UpstreamPlaceholder, "(("+c.last+"))")
	}
	var out string
	if usesDownstream {
		out = c.next()
		expanded = strings.ReplaceAll(expanded, DownstreamPlaceholder, "(("+out+"))")
	}
	if _, err := c.p.SpawnCommand(ctx, expanded); err != nil {
		c.err = err
		return c
	}
	switch {
	case usesDownstream:
		c.last = out
	case usesUpstream:
		c.last = ""
	}
	return c
}

// Last returns the current tail pipe, or "" when the chain is open.
func (c *Chain) Last() string {
	return c.last
}

// Err returns the first error the chain hit.
func (c *Chain) Err() error {
	return c.err
}
