package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pipewright/internal/channel"
	"pipewright/internal/logging"
	"pipewright/internal/metrics"
	"pipewright/internal/runctx"
	"pipewright/internal/worker"
)

// DefaultKillGrace is the SIGTERM to SIGKILL delay used when Options leaves it zero.
const DefaultKillGrace = 10 * time.Second

// Run outcomes recorded in reports and metrics.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
	OutcomePanic  = "panic"
)

// Launcher describes how to start a worker host process. The worker
// invocation's argv is appended to Args.
type Launcher struct {
	Executable string
	Args       []string
	Env        []string
}

// SelfLauncher re-executes the running binary with the given leading args,
// typically the hidden "worker" subcommand.
func SelfLauncher(args ...string) (Launcher, error) {
	exe, err := os.Executable()
	if err != nil {
		return Launcher{}, fmt.Errorf("resolve executable: %w", err)
	}
	return Launcher{Executable: exe, Args: args}, nil
}

// Options configures a Pipeline.
type Options struct {
	// Name labels the run in logs and history.
	Name    string
	Channel channel.Config
	// Launcher starts worker children. Required for SpawnProcess.
	Launcher Launcher
	// Registry, when set, rejects unknown worker names before anything is spawned.
	Registry *worker.Registry
	// Shell runs command templates. Defaults to /bin/sh.
	Shell string
	// KillGrace is the delay between SIGTERM and SIGKILL. Zero selects
	// DefaultKillGrace; a negative value sends SIGKILL right after SIGTERM.
	KillGrace time.Duration
	Logger    *slog.Logger
	// LogOptions is forwarded to worker children through their environment.
	LogOptions logging.Options
	Metrics    *metrics.Metrics
	Recorder   Recorder
	Stdout     io.Writer
	Stderr     io.Writer
}

// Topology spawns the children of one run.
type Topology interface {
	Build(ctx context.Context, p *Pipeline) error
}

// TopologyFunc adapts a function to Topology.
type TopologyFunc func(ctx context.Context, p *Pipeline) error

// Build calls f.
func (f TopologyFunc) Build(ctx context.Context, p *Pipeline) error {
	return f(ctx, p)
}

// Report summarizes a finished run.
type Report struct {
	RunID    string
	Name     string
	PipeDir  string
	Started  time.Time
	Finished time.Time
	Outcome  string
	Error    string
	Exits    []Exit
}

// FailedChildren counts children that did not exit cleanly.
func (r Report) FailedChildren() int {
	n := 0
	for _, exit := range r.Exits {
		if !exit.Success() {
			n++
		}
	}
	return n
}

// Recorder persists run reports.
type Recorder interface {
	Record(ctx context.Context, report Report) error
}

// Pipeline is a single-use orchestrator: build one per run.
type Pipeline struct {
	opts    Options
	channel *channel.Channel
	logger  *slog.Logger

	mu       sync.Mutex
	state    State
	runID    string
	children []*Child
	exits    []Exit
}

// New validates options and prepares a pipeline. It performs no I/O.
func New(opts Options) (*Pipeline, error) {
	if strings.TrimSpace(opts.Shell) == "" {
		opts.Shell = "/bin/sh"
	}
	if opts.KillGrace == 0 {
		opts.KillGrace = DefaultKillGrace
	}
	if opts.KillGrace < 0 {
		opts.KillGrace = 0
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if strings.TrimSpace(opts.Name) == "" {
		opts.Name = "pipeline"
	}
	return &Pipeline{
		opts:    opts,
		channel: channel.New(opts.Channel),
		logger:  logging.NewComponentLogger(opts.Logger, "pipeline"),
		state:   StateConfigured,
	}, nil
}

// Channel exposes the run's pipe directory, for topologies that read or write
// pipes from the orchestrating process itself.
func (p *Pipeline) Channel() *channel.Channel {
	return p.channel
}

// State reports the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// RunID returns the identifier assigned when Run started.
func (p *Pipeline) RunID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runID
}

// Children returns the children that are tracked and not yet reaped by a wait.
func (p *Pipeline) Children() []*Child {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.children)
}

// Exits returns the exit records of every reaped child in spawn order.
func (p *Pipeline) Exits() []Exit {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.exits)
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Run executes the topology. The pipe directory is removed on return unless
// preserved, and no child of this run is alive when Run returns. When the
// topology fails or panics, the children are killed and the original error is
// returned (joined with any teardown error) or the panic re-raised.
func (p *Pipeline) Run(ctx context.Context, topo Topology) (err error) {
	p.mu.Lock()
	if p.state != StateConfigured {
		state := p.state
		p.mu.Unlock()
		return wrap(ErrState, "run", p.opts.Name, fmt.Errorf("pipeline already %s", state))
	}
	p.runID = uuid.NewString()
	p.mu.Unlock()

	ctx = runctx.WithRunID(ctx, p.runID)
	ctx = runctx.WithPipeline(ctx, p.opts.Name)
	logger := logging.WithContext(ctx, p.logger)
	started := time.Now()

	defer func() {
		recovered := recover()
		outcome := OutcomeOK
		if recovered != nil || err != nil {
			outcome = OutcomeFailed
			if recovered != nil {
				outcome = OutcomePanic
			}
			p.setState(StateFailed)
			logger.Error("pipeline failed; killing children",
				logging.String("outcome", outcome),
				logging.Any("cause", failureCause(err, recovered)),
			)
			p.KillChildren()
		}
		if terr := p.channel.Teardown(); terr != nil {
			logger.Warn("pipe directory teardown failed", logging.Error(terr))
			err = errors.Join(err, terr)
		}
		p.setState(StateTornDown)
		p.finish(ctx, logger, started, outcome, err, recovered)
		if recovered != nil {
			panic(recovered)
		}
	}()

	if err := p.channel.Setup(); err != nil {
		return err
	}
	p.setState(StateSetUp)
	logger.Info("pipeline started",
		logging.String("pipe_dir", p.channel.PipeDir()),
		logging.String("data_dir", p.channel.DataDir()),
	)

	p.setState(StateRunning)
	if topo == nil {
		return wrap(ErrState, "run", p.opts.Name, errors.New("no topology"))
	}
	if err := topo.Build(ctx, p); err != nil {
		return err
	}

	p.setState(StateDraining)
	return p.WaitProcesses(ctx)
}

func (p *Pipeline) finish(ctx context.Context, logger *slog.Logger, started time.Time, outcome string, err error, recovered any) {
	finished := time.Now()
	report := Report{
		RunID:    p.RunID(),
		Name:     p.opts.Name,
		PipeDir:  p.channel.PipeDir(),
		Started:  started,
		Finished: finished,
		Outcome:  outcome,
		Exits:    p.Exits(),
	}
	if cause := failureCause(err, recovered); cause != nil {
		report.Error = fmt.Sprint(cause)
	}
	p.opts.Metrics.RecordRun(outcome, finished.Sub(started))

	logger.Info("pipeline finished",
		logging.String("outcome", outcome),
		logging.Duration("duration", finished.Sub(started)),
		logging.Int("children", len(report.Exits)),
		logging.Int("failed_children", report.FailedChildren()),
	)

	if p.opts.Recorder == nil {
		return
	}
	if rerr := p.opts.Recorder.Record(context.WithoutCancel(ctx), report); rerr != nil {
		logger.Warn("record run history failed", logging.Error(rerr))
	}
}

func failureCause(err error, recovered any) any {
	if recovered != nil {
		return recovered
	}
	if err != nil {
		return err
	}
	return nil
}
