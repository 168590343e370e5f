package topology

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"pipewright/internal/channel"
	"pipewright/internal/pipeline"
	"pipewright/internal/worker"
)

// ErrInvalidDefinition marks a definition that cannot be run.
var ErrInvalidDefinition = errors.New("invalid pipeline definition")

// Stage kinds.
const (
	KindWorker  = "worker"
	KindCommand = "command"
	KindWait    = "wait"
)

// Stage is one entry of a definition.
type Stage struct {
	Worker      string   `toml:"worker"`
	Args        []string `toml:"args"`
	Readers     []string `toml:"readers"`
	Writers     []string `toml:"writers"`
	Auto        bool     `toml:"auto"`
	ProcessName string   `toml:"process_name"`
	Command     string   `toml:"command"`
	Wait        bool     `toml:"wait"`
}

// Kind reports which of worker, command or wait the stage is. Stages that
// set none or several of them report "".
func (s Stage) Kind() string {
	var kinds []string
	if strings.TrimSpace(s.Worker) != "" {
		kinds = append(kinds, KindWorker)
	}
	if strings.TrimSpace(s.Command) != "" {
		kinds = append(kinds, KindCommand)
	}
	if s.Wait {
		kinds = append(kinds, KindWait)
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// Describe renders the stage for logs and tables.
func (s Stage) Describe() string {
	switch s.Kind() {
	case KindWorker:
		return worker.Label(s.Worker, s.Readers, s.Writers)
	case KindCommand:
		return s.Command
	case KindWait:
		return "wait"
	default:
		return "invalid stage"
	}
}

// Definition is a named, ordered list of stages.
type Definition struct {
	Name   string  `toml:"name"`
	Stages []Stage `toml:"stage"`
}

// Load reads and parses a definition file. It does not validate it.
func Load(path string) (*Definition, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open definition: %w", err)
	}
	defer file.Close()
	def, err := decode(file)
	if err != nil {
		return nil, fmt.Errorf("parse definition %s: %w", path, err)
	}
	return def, nil
}

// Parse decodes a definition from TOML bytes.
func Parse(data []byte) (*Definition, error) {
	return decode(bytes.NewReader(data))
}

func decode(r io.Reader) (*Definition, error) {
	var def Definition
	decoder := toml.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&def); err != nil {
		return nil, err
	}
	def.Name = strings.TrimSpace(def.Name)
	return &def, nil
}

// Validate checks every stage and the order in which pipes come into
// existence. reg may be nil to skip worker name checks.
func (d *Definition) Validate(reg *worker.Registry) error {
	if len(d.Stages) == 0 {
		return fmt.Errorf("%w: no stages", ErrInvalidDefinition)
	}
	created := make(map[string]bool)
	ensure := func(names []string) {
		for _, name := range names {
			created[name] = true
		}
	}

	for i, stage := range d.Stages {
		fail := func(format string, args ...any) error {
			return fmt.Errorf("%w: stage %d: %s", ErrInvalidDefinition, i+1, fmt.Sprintf(format, args...))
		}
		switch stage.Kind() {
		case KindWait:
			continue
		case KindCommand:
			names := pipeline.Placeholders(stage.Command)
			if err := validateNames(names); err != nil {
				return fail("%v", err)
			}
			ensure(names)
			continue
		case KindWorker:
		default:
			return fail("exactly one of worker, command or wait must be set")
		}

		if reg != nil {
			if _, err := reg.Lookup(stage.Worker); err != nil {
				return fail("%v", err)
			}
		}
		if err := validateNames(stage.Readers); err != nil {
			return fail("%v", err)
		}
		if err := validateNames(stage.Writers); err != nil {
			return fail("%v", err)
		}
		if stage.Auto {
			ensure(stage.Readers)
			ensure(stage.Writers)
			continue
		}
		for _, name := range stage.Readers {
			if !created[name] {
				return fail("reader %q is not written by an earlier stage; set auto = true to create it here", name)
			}
		}
		for _, name := range stage.Writers {
			if created[name] {
				return fail("writer %q already exists; set auto = true to share it", name)
			}
		}
		ensure(stage.Writers)
	}
	return nil
}

func validateNames(names []string) error {
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if err := channel.ValidateName(name); err != nil {
			return err
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("pipe %q listed twice", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// Topology returns the spawn sequence for the definition.
func (d *Definition) Topology() pipeline.Topology {
	stages := append([]Stage(nil), d.Stages...)
	return pipeline.TopologyFunc(func(ctx context.Context, p *pipeline.Pipeline) error {
		for i, stage := range stages {
			if err := runStage(ctx, p, stage); err != nil {
				return fmt.Errorf("stage %d (%s): %w", i+1, stage.Describe(), err)
			}
		}
		return nil
	})
}

func runStage(ctx context.Context, p *pipeline.Pipeline, stage Stage) error {
	switch stage.Kind() {
	case KindWait:
		return p.WaitProcesses(ctx)
	case KindCommand:
		_, err := p.SpawnCommand(ctx, stage.Command)
		return err
	case KindWorker:
		spec := pipeline.ProcessSpec{
			Worker:      stage.Worker,
			Args:        stage.Args,
			Readers:     stage.Readers,
			Writers:     stage.Writers,
			ProcessName: stage.ProcessName,
		}
		var err error
		if stage.Auto {
			_, err = p.SpawnAuto(ctx, spec)
		} else {
			_, err = p.SpawnProcess(ctx, spec)
		}
		return err
	default:
		return fmt.Errorf("%w: exactly one of worker, command or wait must be set", ErrInvalidDefinition)
	}
}
