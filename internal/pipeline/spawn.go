package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"
	"syscall"
	"time"

	"pipewright/internal/logging"
	"pipewright/internal/metrics"
	"pipewright/internal/runctx"
	"pipewright/internal/worker"
)

// ioWaitDelay bounds how long Wait keeps copying a child's output after the
// child exited while a grandchild still holds the stream open.
const ioWaitDelay = 2 * time.Second

// ProcessSpec names a worker and the pipes it is bound to.
type ProcessSpec struct {
	Worker      string
	Args        []string
	Readers     []string
	Writers     []string
	ProcessName string
}

// SpawnProcess creates every writer pipe of spec, then starts a worker host
// process bound to spec's pipes. A writer name that already exists in this run
// fails with channel.ErrPipeCreation. Reader pipes must have been created
// already, normally by an earlier spawn that writes to them.
func (p *Pipeline) SpawnProcess(ctx context.Context, spec ProcessSpec) (*Child, error) {
	return p.spawnWorker(ctx, spec, false)
}

func (p *Pipeline) spawnWorker(ctx context.Context, spec ProcessSpec, auto bool) (*Child, error) {
	if err := p.requireRunning("spawn " + spec.Worker); err != nil {
		return nil, err
	}
	if strings.TrimSpace(spec.Worker) == "" {
		return nil, wrap(ErrSpawn, "spawn", "worker", errors.New("worker name is empty"))
	}
	if p.opts.Registry != nil {
		if _, err := p.opts.Registry.Lookup(spec.Worker); err != nil {
			return nil, wrap(ErrSpawn, "spawn", spec.Worker, err)
		}
	}
	if strings.TrimSpace(p.opts.Launcher.Executable) == "" {
		return nil, wrap(ErrSpawn, "spawn", spec.Worker, errors.New("no worker launcher configured"))
	}

	if auto {
		for _, name := range slices.Concat(spec.Readers, spec.Writers) {
			if err := p.ensurePipe(name); err != nil {
				return nil, wrap(ErrSpawn, "spawn", spec.Worker, err)
			}
		}
	} else {
		for _, name := range spec.Writers {
			if _, err := p.channel.CreatePipe(name); err != nil {
				return nil, wrap(ErrSpawn, "spawn", spec.Worker, err)
			}
			p.opts.Metrics.PipeCreated()
		}
	}

	inv := worker.Invocation{
		Worker:      spec.Worker,
		Args:        spec.Args,
		Readers:     spec.Readers,
		Writers:     spec.Writers,
		Channel:     p.channel.Config(),
		RunID:       p.RunID(),
		ProcessName: spec.ProcessName,
	}
	launcher := p.opts.Launcher
	args := append(append([]string(nil), launcher.Args...), inv.Argv()...)
	cmd := exec.Command(launcher.Executable, args...)
	cmd.Args[0] = inv.Label()
	cmd.Env = append(os.Environ(), launcher.Env...)
	cmd.Env = append(cmd.Env, inv.Environ()...)
	cmd.Env = append(cmd.Env, p.opts.LogOptions.Environ()...)

	return p.start(ctx, cmd, metrics.KindWorker, inv.Label(), "")
}

// SpawnCommand substitutes every ((name)) placeholder in template with the
// shell-quoted path of pipe name, creating pipes that do not exist yet, and
// runs the result with the configured shell.
func (p *Pipeline) SpawnCommand(ctx context.Context, template string) (*Child, error) {
	if err := p.requireRunning("spawn command"); err != nil {
		return nil, err
	}
	command, err := ExpandCommand(template, func(name string) (string, error) {
		if err := p.ensurePipe(name); err != nil {
			return "", err
		}
		return p.channel.PipePath(name), nil
	})
	if err != nil {
		return nil, wrap(ErrSpawn, "spawn command", template, err)
	}

	cmd := exec.Command(p.opts.Shell, "-c", command)
	cmd.Env = append(os.Environ(), p.channel.Config().Environ()...)
	if runID := p.RunID(); runID != "" {
		cmd.Env = append(cmd.Env, runctx.EnvRunID+"="+runID)
	}
	return p.start(ctx, cmd, metrics.KindCommand, commandLabel(template), command)
}

func (p *Pipeline) ensurePipe(name string) error {
	existed := p.channel.Created(name)
	if _, err := p.channel.EnsurePipe(name); err != nil {
		return err
	}
	if !existed {
		p.opts.Metrics.PipeCreated()
	}
	return nil
}

func (p *Pipeline) start(ctx context.Context, cmd *exec.Cmd, kind, label, command string) (*Child, error) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = p.opts.Stdout
	cmd.Stderr = p.opts.Stderr
	cmd.WaitDelay = ioWaitDelay

	if err := cmd.Start(); err != nil {
		return nil, wrap(ErrSpawn, "start", label, err)
	}
	child := &Child{
		PID:     cmd.Process.Pid,
		Label:   label,
		Kind:    kind,
		Command: command,
		Started: time.Now(),
		cmd:     cmd,
		done:    make(chan struct{}),
	}
	go child.reap()

	p.mu.Lock()
	p.children = append(p.children, child)
	p.mu.Unlock()
	p.opts.Metrics.ChildStarted(kind)

	logger := logging.WithContext(ctx, p.logger)
	attrs := []logging.Attr{
		logging.Int(logging.FieldPID, child.PID),
		logging.String("label", label),
		logging.String("kind", kind),
	}
	if command != "" {
		attrs = append(attrs, logging.String("command", command))
	}
	logger.Info("child spawned", logging.Args(attrs...)...)
	return child, nil
}

func (p *Pipeline) requireRunning(operation string) error {
	if state := p.State(); state != StateRunning {
		return wrap(ErrState, operation, "", fmt.Errorf("pipeline is %s, not running", state))
	}
	return nil
}

func commandLabel(template string) string {
	label := strings.Join(strings.Fields(template), " ")
	if runes := []rune(label); len(runes) > 60 {
		label = string(runes[:57]) + "..."
	}
	return "sh: " + label
}
