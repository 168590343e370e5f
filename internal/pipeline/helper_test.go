package pipeline_test

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
	"pipewright/internal/worker"
)

// TestHelperProcess is not a real test. Pipelines under test re-execute the
// test binary with GO_WANT_HELPER_PROCESS=1 and this function becomes the
// worker host.
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
	os.Exit(worker.Main(context.Background(), testRegistry(), args, os.LookupEnv, os.Stderr))
}

func testRegistry() *worker.Registry {
	reg := worker.NewRegistry()
	reg.MustRegister("emit", "write each argument as a line", func() worker.Worker { return worker.Func(emitWorker) })
	reg.MustRegister("collect", "write every line read to a data file", func() worker.Worker { return worker.Func(collectWorker) })
	reg.MustRegister("upper", "upper-case lines", func() worker.Worker { return worker.Func(upperWorker) })
	reg.MustRegister("head", "read one line and quit", func() worker.Worker { return worker.Func(headWorker) })
	reg.MustRegister("flood", "write until the reader leaves", func() worker.Worker { return worker.Func(floodWorker) })
	reg.MustRegister("sleeper", "block until cancelled", func() worker.Worker { return worker.Func(sleeperWorker) })
	reg.MustRegister("stubborn", "ignore cancellation", func() worker.Worker { return worker.Func(stubbornWorker) })
	reg.MustRegister("fail", "exit with an error", func() worker.Worker { return worker.Func(failWorker) })
	reg.MustRegister("finalizer", "leave a marker on finalize", func() worker.Worker { return &finalizerWorker{} })
	return reg
}

func emitWorker(_ context.Context, args []string, s *worker.Streams) error {
	out, err := s.Writer(0)
	if err != nil {
		return err
	}
	for _, line := range args {
		if err := out.WriteLine(line); err != nil {
			return err
		}
	}
	return nil
}

func collectWorker(_ context.Context, args []string, s *worker.Streams) error {
	in, err := s.Reader(0)
	if err != nil {
		return err
	}
	var b strings.Builder
	for line, err := range in.Lines() {
		if err != nil {
			return err
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return os.WriteFile(filepath.Join(s.DataDir, args[0]), []byte(b.String()), 0o644)
}

func upperWorker(_ context.Context, _ []string, s *worker.Streams) error {
	in, err := s.Reader(0)
	if err != nil {
		return err
	}
	out, err := s.Writer(0)
	if err != nil {
		return err
	}
	for line, err := range in.Lines() {
		if err != nil {
			return err
		}
		if err := out.WriteLine(strings.ToUpper(line)); err != nil {
			return err
		}
	}
	return nil
}

func headWorker(_ context.Context, _ []string, s *worker.Streams) error {
	in, err := s.Reader(0)
	if err != nil {
		return err
	}
	_, err = in.ReadLine()
	return err
}

func floodWorker(_ context.Context, _ []string, s *worker.Streams) error {
	out, err := s.Writer(0)
	if err != nil {
		return err
	}
	for i := 0; i < 50_000_000; i++ {
		if err := out.WriteLine("flood"); err != nil {
			return err
		}
	}
	return errors.New("reader never went away")
}

func sleeperWorker(ctx context.Context, _ []string, _ *worker.Streams) error {
	<-ctx.Done()
	return ctx.Err()
}

func stubbornWorker(context.Context, []string, *worker.Streams) error {
	time.Sleep(time.Minute)
	return nil
}

func failWorker(context.Context, []string, *worker.Streams) error {
	return errors.New("intentional failure")
}

type finalizerWorker struct {
	dataDir string
}

func (f *finalizerWorker) Run(_ context.Context, _ []string, s *worker.Streams) error {
	f.dataDir = s.DataDir
	return errors.New("fail before finalize")
}

func (f *finalizerWorker) Finalize() error {
	return os.WriteFile(filepath.Join(f.dataDir, "finalized"), []byte("ok"), 0o644)
}

func helperLauncher(t *testing.T) pipeline.Launcher {
	t.Helper()
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("resolve test executable: %v", err)
	}
	return pipeline.Launcher{
		Executable: exe,
		Args:       []string{"-test.run=^TestHelperProcess$", "--"},
		Env:        []string{"GO_WANT_HELPER_PROCESS=1"},
	}
}

func newTestPipeline(t *testing.T, mutate func(*pipeline.Options)) (*pipeline.Pipeline, channel.Config) {
	t.Helper()
	base := t.TempDir()
	opts := pipeline.Options{
		Name: t.Name(),
		Channel: channel.Config{
			DataDir: filepath.Join(base, "data"),
			PipeDir: filepath.Join(base, "pipes"),
		},
		Launcher:  helperLauncher(t),
		Registry:  testRegistry(),
		KillGrace: 2 * time.Second,
		Stdout:    os.Stderr,
		Stderr:    os.Stderr,
	}
	if mutate != nil {
		mutate(&opts)
	}
	p, err := pipeline.New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p, opts.Channel
}

func readData(t *testing.T, cfg channel.Config, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(cfg.DataDir, name))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(data)
}

func assertPipeDirRemoved(t *testing.T, cfg channel.Config) {
	t.Helper()
	if _, err := os.Stat(cfg.PipeDir); !os.IsNotExist(err) {
		t.Fatalf("expected pipe directory %s to be removed, stat err=%v", cfg.PipeDir, err)
	}
}
