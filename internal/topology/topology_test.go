package topology_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pipewright/internal/channel"
	"pipewright/internal/pipeline"
	"pipewright/internal/topology"
	"pipewright/internal/worker"
	"pipewright/internal/workers"
)

// TestHelperProcess hosts the built-in workers when the test binary is
// re-executed by a pipeline under test.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}
	os.Exit(worker.Main(context.Background(), workers.NewRegistry(), args, os.LookupEnv, os.Stderr))
}

const uppercaseDefinition = `
name = "uppercase"

[[stage]]
worker = "file-source"
args = ["words.txt"]
writers = ["raw"]

[[stage]]
command = "tr a-z A-Z < ((raw)) > ((upper))"

[[stage]]
worker = "file-sink"
args = ["upper.txt"]
readers = ["upper"]
auto = true

[[stage]]
wait = true

[[stage]]
worker = "file-source"
args = ["upper.txt"]
writers = ["again"]

[[stage]]
worker = "file-sink"
args = ["copy.txt"]
readers = ["again"]
`

func TestParseDefinition(t *testing.T) {
	def, err := topology.Parse([]byte(uppercaseDefinition))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if def.Name != "uppercase" || len(def.Stages) != 6 {
		t.Fatalf("unexpected definition %+v", def)
	}
	kinds := []string{topology.KindWorker, topology.KindCommand, topology.KindWorker, topology.KindWait, topology.KindWorker, topology.KindWorker}
	for i, want := range kinds {
		if got := def.Stages[i].Kind(); got != want {
			t.Fatalf("stage %d: expected kind %s, got %s", i+1, want, got)
		}
	}
	if !def.Stages[2].Auto {
		t.Fatal("expected auto flag on stage 3")
	}
	if got := def.Stages[0].Describe(); got != "pipewright file-source >(raw)" {
		t.Fatalf("unexpected description %q", got)
	}
	if err := def.Validate(workers.NewRegistry()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := topology.Parse([]byte("name = \"x\"\n[[stage]]\nworkr = \"typo\"\n"))
	if err == nil {
		t.Fatal("expected unknown field error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := topology.Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		stages []topology.Stage
		want   string
	}{
		{"empty", nil, "no stages"},
		{"no kind", []topology.Stage{{}}, "exactly one"},
		{"two kinds", []topology.Stage{{Worker: "splitter", Command: "true"}}, "exactly one"},
		{"unknown worker", []topology.Stage{{Worker: "nope"}}, "unknown worker"},
		{"bad pipe name", []topology.Stage{{Worker: "file-source", Writers: []string{"a/b"}}}, "path separator"},
		{"hidden pipe", []topology.Stage{{Command: "cat ((.lock))"}}, "dot"},
		{"reader first", []topology.Stage{{Worker: "file-sink", Readers: []string{"p"}}}, "not written by an earlier stage"},
		{"duplicate writer", []topology.Stage{
			{Worker: "file-source", Writers: []string{"p"}},
			{Worker: "file-source", Writers: []string{"p"}},
		}, "already exists"},
		{"repeated pipe", []topology.Stage{{Worker: "splitter", Readers: []string{"in"}, Writers: []string{"o", "o"}, Auto: true}}, "listed twice"},
	}
	reg := workers.NewRegistry()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := &topology.Definition{Name: tt.name, Stages: tt.stages}
			err := def.Validate(reg)
			if !errors.Is(err, topology.ErrInvalidDefinition) {
				t.Fatalf("expected ErrInvalidDefinition, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q in %v", tt.want, err)
			}
		})
	}
}

func TestValidateAcceptsCommandCreatedReader(t *testing.T) {
	def := &topology.Definition{Stages: []topology.Stage{
		{Command: "seq 3 > ((nums))"},
		{Worker: "file-sink", Args: []string{"n.txt"}, Readers: []string{"nums"}},
	}}
	if err := def.Validate(nil); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestTopologyRunsDefinition(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	def, err := topology.Parse([]byte(uppercaseDefinition))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	base := t.TempDir()
	cfg := channel.Config{DataDir: filepath.Join(base, "data"), PipeDir: filepath.Join(base, "pipes")}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg.DataDir, "words.txt"), []byte("hello\nworld\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	exe, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	p, err := pipeline.New(pipeline.Options{
		Name:    def.Name,
		Channel: cfg,
		Launcher: pipeline.Launcher{
			Executable: exe,
			Args:       []string{"-test.run=^TestHelperProcess$", "--"},
			Env:        []string{"GO_WANT_HELPER_PROCESS=1"},
		},
		Registry:  workers.NewRegistry(),
		KillGrace: 2 * time.Second,
		Stdout:    os.Stderr,
		Stderr:    os.Stderr,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := p.Run(ctx, def.Topology()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, name := range []string{"upper.txt", "copy.txt"} {
		data, err := os.ReadFile(filepath.Join(cfg.DataDir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if string(data) != "HELLO\nWORLD\n" {
			t.Fatalf("%s: unexpected content %q", name, data)
		}
	}
	for _, exit := range p.Exits() {
		if !exit.Success() {
			t.Fatalf("expected clean exits, got %+v", exit)
		}
	}
	if len(p.Exits()) != 5 {
		t.Fatalf("expected 5 children, got %d", len(p.Exits()))
	}
}
