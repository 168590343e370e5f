package worker

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"pipewright/internal/channel"
	"pipewright/internal/runctx"
)

// Invocation is everything a worker process needs to know, encoded for an
// exec boundary: names travel in argv, the channel configuration and run id
// travel in the environment.
type Invocation struct {
	Worker      string
	Args        []string
	Readers     []string
	Writers     []string
	Channel     channel.Config
	RunID       string
	ProcessName string
}

// Argv returns the flags understood by ParseInvocation. Positional worker
// arguments follow a "--" separator so they may look like flags.
func (inv Invocation) Argv() []string {
	argv := make([]string, 0, 4+len(inv.Readers)+len(inv.Writers)+len(inv.Args))
	argv = append(argv, "--worker="+inv.Worker)
	for _, name := range inv.Readers {
		argv = append(argv, "--reader="+name)
	}
	for _, name := range inv.Writers {
		argv = append(argv, "--writer="+name)
	}
	argv = append(argv, "--")
	argv = append(argv, inv.Args...)
	return argv
}

// Environ returns the environment entries a worker process needs.
func (inv Invocation) Environ() []string {
	env := inv.Channel.Environ()
	if inv.RunID != "" {
		env = append(env, runctx.EnvRunID+"="+inv.RunID)
	}
	return env
}

// Label is the cosmetic process name for this invocation.
func (inv Invocation) Label() string {
	if strings.TrimSpace(inv.ProcessName) != "" {
		return inv.ProcessName
	}
	return Label(inv.Worker, inv.Readers, inv.Writers)
}

// ParseInvocation decodes argv produced by Invocation.Argv together with the
// environment produced by Invocation.Environ.
func ParseInvocation(argv []string, lookup func(string) (string, bool)) (Invocation, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	fs := pflag.NewFlagSet("worker", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SetInterspersed(false)
	name := fs.String("worker", "", "registered worker name")
	readers := fs.StringArray("reader", nil, "pipe name to read from (repeatable)")
	writers := fs.StringArray("writer", nil, "pipe name to write to (repeatable)")
	if err := fs.Parse(argv); err != nil {
		return Invocation{}, fmt.Errorf("%w: %w", ErrInvocation, err)
	}
	if strings.TrimSpace(*name) == "" {
		return Invocation{}, fmt.Errorf("%w: --worker is required", ErrInvocation)
	}
	for _, pipe := range append(append([]string(nil), *readers...), *writers...) {
		if err := channel.ValidateName(pipe); err != nil {
			return Invocation{}, fmt.Errorf("%w: %w", ErrInvocation, err)
		}
	}

	cfg, err := channel.ConfigFromEnv(lookup)
	if err != nil {
		return Invocation{}, fmt.Errorf("%w: %w", ErrInvocation, err)
	}
	runID, _ := lookup(runctx.EnvRunID)

	return Invocation{
		Worker:  *name,
		Args:    fs.Args(),
		Readers: *readers,
		Writers: *writers,
		Channel: cfg,
		RunID:   strings.TrimSpace(runID),
	}, nil
}
