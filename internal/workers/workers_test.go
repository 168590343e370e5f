package workers

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"pipewright/internal/channel"
	"pipewright/internal/worker"
)

func newChannel(t *testing.T, pipes ...string) *channel.Channel {
	t.Helper()
	base := t.TempDir()
	ch := channel.New(channel.Config{
		DataDir: filepath.Join(base, "data"),
		PipeDir: filepath.Join(base, "pipes"),
	})
	if err := ch.Setup(); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	t.Cleanup(func() { _ = ch.Teardown() })
	for _, name := range pipes {
		if _, err := ch.CreatePipe(name); err != nil {
			t.Fatalf("CreatePipe %s: %v", name, err)
		}
	}
	return ch
}

// start runs a built-in worker in-process against ch.
func start(ctx context.Context, ch *channel.Channel, name string, args, readers, writers []string) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- worker.Exec(ctx, NewRegistry(), worker.Invocation{
			Worker:  name,
			Args:    args,
			Readers: readers,
			Writers: writers,
			Channel: ch.Config(),
		}, nil)
	}()
	return done
}

func feed(t *testing.T, ch *channel.Channel, pipe, data string) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		w, err := ch.OpenWriter(pipe)
		if err != nil {
			done <- err
			return
		}
		_, err = io.WriteString(w, data)
		done <- errors.Join(err, w.Close())
	}()
	return done
}

func drain(ch *channel.Channel, pipe string) (string, error) {
	r, err := ch.OpenReader(pipe)
	if err != nil {
		return "", err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	return string(data), err
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for worker")
		return nil
	}
}

func TestRegisterInstallsBuiltins(t *testing.T) {
	reg := worker.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	var names []string
	for _, entry := range reg.Entries() {
		names = append(names, entry.Name)
	}
	want := []string{NameFileSink, NameFileSource, NameJoiner, NameSplitter}
	if !slices.Equal(names, want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	if err := Register(reg); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestFileSourceStreamsLines(t *testing.T) {
	ch := newChannel(t, "src")
	if err := os.MkdirAll(ch.DataDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(ch.DataDir(), "input.txt"), []byte("one\ntwo\nthree"), 0o644); err != nil {
		t.Fatal(err)
	}

	done := start(context.Background(), ch, NameFileSource, []string{"input.txt"}, nil, []string{"src"})
	got, err := drain(ch, "src")
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if err := wait(t, done); err != nil {
		t.Fatalf("file-source: %v", err)
	}
	if got != "one\ntwo\nthree\n" {
		t.Fatalf("unexpected stream %q", got)
	}
}

func TestFileSourceEmptyFileStillClosesWriter(t *testing.T) {
	ch := newChannel(t, "src")
	if err := os.WriteFile(filepath.Join(ch.DataDir(), "empty.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	done := start(context.Background(), ch, NameFileSource, []string{"empty.txt"}, nil, []string{"src"})
	got, err := drain(ch, "src")
	if err != nil || got != "" {
		t.Fatalf("expected empty stream, got %q err=%v", got, err)
	}
	if err := wait(t, done); err != nil {
		t.Fatalf("file-source: %v", err)
	}
}

func TestFileSourceRejectsEscapingPath(t *testing.T) {
	ch := newChannel(t)
	for _, arg := range []string{"../secret", "/etc/passwd"} {
		err := wait(t, start(context.Background(), ch, NameFileSource, []string{arg}, nil, []string{"src"}))
		if !errors.Is(err, worker.ErrInvocation) {
			t.Fatalf("expected ErrInvocation for %q, got %v", arg, err)
		}
	}
	err := wait(t, start(context.Background(), ch, NameFileSource, nil, nil, []string{"src"}))
	if !errors.Is(err, worker.ErrInvocation) {
		t.Fatalf("expected ErrInvocation without args, got %v", err)
	}
}

func TestFileSinkWritesDataFile(t *testing.T) {
	ch := newChannel(t, "in")

	done := start(context.Background(), ch, NameFileSink, []string{"out/result.txt"}, []string{"in"}, nil)
	if err := wait(t, feed(t, ch, "in", "alpha\nbeta\n")); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if err := wait(t, done); err != nil {
		t.Fatalf("file-sink: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(ch.DataDir(), "out", "result.txt"))
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	if string(data) != "alpha\nbeta\n" {
		t.Fatalf("unexpected sink output %q", data)
	}
}

func TestFileSinkDiscardsPartialFileOnFailure(t *testing.T) {
	ch := newChannel(t, "in")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := start(ctx, ch, NameFileSink, []string{"partial.txt"}, []string{"in"}, nil)
	fed := feed(t, ch, "in", "only\n")
	if err := wait(t, done); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	_ = wait(t, fed)

	entries, err := os.ReadDir(ch.DataDir())
	if err != nil {
		t.Fatalf("read data dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no files after a failed sink, found %d", len(entries))
	}
}

func TestSplitterRoundRobin(t *testing.T) {
	ch := newChannel(t, "in", "a", "b", "c")

	done := start(context.Background(), ch, NameSplitter, nil, []string{"in"}, []string{"a", "b", "c"})
	fed := feed(t, ch, "in", "1\n2\n3\n4\n")

	outputs := drainAll(t, ch, "a", "b", "c")
	if err := wait(t, fed); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if err := wait(t, done); err != nil {
		t.Fatalf("splitter: %v", err)
	}
	want := map[string]string{"a": "1\n4\n", "b": "2\n", "c": "3\n"}
	for pipe, data := range want {
		if outputs[pipe] != data {
			t.Fatalf("pipe %s: expected %q, got %q", pipe, data, outputs[pipe])
		}
	}
}

func TestSplitterClosesUnusedWriters(t *testing.T) {
	ch := newChannel(t, "in", "a", "b")

	done := start(context.Background(), ch, NameSplitter, nil, []string{"in"}, []string{"a", "b"})
	fed := feed(t, ch, "in", "lonely\n")

	outputs := drainAll(t, ch, "a", "b")
	_ = wait(t, fed)
	if err := wait(t, done); err != nil {
		t.Fatalf("splitter: %v", err)
	}
	if outputs["a"] != "lonely\n" || outputs["b"] != "" {
		t.Fatalf("unexpected outputs %v", outputs)
	}
}

func TestJoinerConcatenatesInOrder(t *testing.T) {
	ch := newChannel(t, "x", "y", "out")

	done := start(context.Background(), ch, NameJoiner, nil, []string{"x", "y"}, []string{"out"})
	fedX := feed(t, ch, "x", "x1\nx2\n")
	fedY := feed(t, ch, "y", "y1\n")

	got, err := drain(ch, "out")
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	for _, fed := range []<-chan error{fedX, fedY} {
		if err := wait(t, fed); err != nil {
			t.Fatalf("feed: %v", err)
		}
	}
	if err := wait(t, done); err != nil {
		t.Fatalf("joiner: %v", err)
	}
	if got != "x1\nx2\ny1\n" {
		t.Fatalf("unexpected joined stream %q", got)
	}
}

func drainAll(t *testing.T, ch *channel.Channel, pipes ...string) map[string]string {
	t.Helper()
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make(map[string]string, len(pipes))
	)
	errs := make(chan error, len(pipes))
	for _, pipe := range pipes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := drain(ch, pipe)
			if err != nil {
				errs <- err
				return
			}
			mu.Lock()
			out[pipe] = data
			mu.Unlock()
		}()
	}
	wg.Wait()
	close(errs)
	var all []string
	for err := range errs {
		all = append(all, err.Error())
	}
	if len(all) > 0 {
		t.Fatalf("drain: %s", strings.Join(all, "; "))
	}
	return out
}
