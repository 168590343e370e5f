package lazyio_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"pgregory.net/rapid"

	"pipewright/internal/channel"
	"pipewright/internal/lazyio"
)

// pipeOpener hands out anonymous pipes and keeps the far end of each one so
// tests can inspect what a handle wrote per open.
type pipeOpener struct {
	t interface {
		Helper()
		Fatalf(format string, args ...any)
	}
	opens   int
	readEnd []*os.File
}

func (o *pipeOpener) OpenReader(string) (*os.File, error) {
	return nil, errors.New("reader not supported")
}

func (o *pipeOpener) OpenWriter(string) (*os.File, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	o.opens++
	o.readEnd = append(o.readEnd, r)
	return w, nil
}

func (o *pipeOpener) drain(i int) string {
	o.t.Helper()
	data, err := io.ReadAll(o.readEnd[i])
	if err != nil {
		o.t.Fatalf("drain pipe %d: %v", i, err)
	}
	_ = o.readEnd[i].Close()
	return string(data)
}

func TestWriteAfterCloseReopens(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		opener := &pipeOpener{t: rt}
		h := lazyio.New("p", opener)

		steps := rapid.SliceOfN(rapid.IntRange(0, 2), 1, 40).Draw(rt, "steps")
		var want []string
		current := ""
		open := false
		for i, step := range steps {
			if step == 0 {
				if err := h.Close(); err != nil {
					rt.Fatalf("close: %v", err)
				}
				if open {
					want = append(want, current)
					current = ""
					open = false
				}
				if !h.Closed() {
					rt.Fatalf("handle not closed after Close")
				}
				continue
			}
			line := rapid.StringMatching(`[a-z]{0,6}`).Draw(rt, "line")
			if err := h.WriteLine(line); err != nil {
				rt.Fatalf("write %d: %v", i, err)
			}
			open = true
			current += line + "\n"
		}
		if err := h.Close(); err != nil {
			rt.Fatalf("final close: %v", err)
		}
		if open {
			want = append(want, current)
		}

		if opener.opens != len(want) {
			rt.Fatalf("expected %d opens, got %d", len(want), opener.opens)
		}
		for i, expected := range want {
			if got := opener.drain(i); got != expected {
				rt.Fatalf("open %d: expected %q, got %q", i, expected, got)
			}
		}
	})
}

func TestOperationsDoNotOpenUntilUsed(t *testing.T) {
	opener := &pipeOpener{t: t}
	h := lazyio.New("idle", opener)
	if !h.Closed() {
		t.Fatal("new handle should report closed")
	}
	if err := h.Close(); err != nil {
		t.Fatalf("close unopened handle: %v", err)
	}
	if opener.opens != 0 {
		t.Fatalf("expected no opens, got %d", opener.opens)
	}
	if h.Mode() != lazyio.ModeUnset {
		t.Fatalf("expected unset mode, got %s", h.Mode())
	}
}

func TestMixedModeIsRejected(t *testing.T) {
	opener := &pipeOpener{t: t}
	h := lazyio.New("p", opener)
	if err := h.WriteLine("x"); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = h.Close()

	_, err := h.ReadLine()
	if !errors.Is(err, lazyio.ErrModeMismatch) {
		t.Fatalf("expected ErrModeMismatch, got %v", err)
	}
	if opener.opens != 1 {
		t.Fatalf("mismatched read must not open, opens=%d", opener.opens)
	}
	opener.drain(0)
}

func TestWriteToDepartedReaderIsBrokenPipe(t *testing.T) {
	opener := &pipeOpener{t: t}
	h := lazyio.New("p", opener)
	if err := h.WriteLine("first"); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = opener.readEnd[0].Close()

	err := h.WriteLine("second")
	if err == nil {
		t.Fatal("expected error writing to closed reader")
	}
	if !errors.Is(err, lazyio.ErrBrokenPipe) || !lazyio.IsBrokenPipe(err) {
		t.Fatalf("expected broken pipe, got %v", err)
	}
	_ = h.Close()
}

func TestIsBrokenPipeIgnoresOtherErrors(t *testing.T) {
	if lazyio.IsBrokenPipe(io.ErrUnexpectedEOF) {
		t.Fatal("unexpected EOF is not a broken pipe")
	}
	if lazyio.IsBrokenPipe(nil) {
		t.Fatal("nil is not a broken pipe")
	}
}

func newChannel(t *testing.T) *channel.Channel {
	t.Helper()
	base := t.TempDir()
	ch := channel.New(channel.Config{
		DataDir: filepath.Join(base, "data"),
		PipeDir: filepath.Join(base, "pipes"),
	})
	if err := ch.Setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	t.Cleanup(func() { _ = ch.Teardown() })
	return ch
}

func TestLinesOverNamedPipe(t *testing.T) {
	ch := newChannel(t)
	if _, err := ch.CreatePipe("p1"); err != nil {
		t.Fatalf("create pipe: %v", err)
	}

	errc := make(chan error, 1)
	go func() {
		w := lazyio.New("p1", ch)
		defer w.Close()
		for _, line := range []string{"a", "b", "c"} {
			if err := w.WriteLine(line); err != nil {
				errc <- err
				return
			}
		}
		errc <- nil
	}()

	r := lazyio.New("p1", ch)
	var got []string
	for line, err := range r.Lines() {
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		got = append(got, line)
	}
	if err := <-errc; err != nil {
		t.Fatalf("writer: %v", err)
	}
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected lines %v", got)
	}
	if _, err := r.ReadLine(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after writer closed, got %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close reader: %v", err)
	}
}

func TestReaderReopensAfterClose(t *testing.T) {
	ch := newChannel(t)
	if _, err := ch.CreatePipe("again"); err != nil {
		t.Fatalf("create pipe: %v", err)
	}

	writeOnce := func(line string) chan error {
		errc := make(chan error, 1)
		go func() {
			w := lazyio.New("again", ch)
			err := w.WriteLine(line)
			_ = w.Close()
			errc <- err
		}()
		return errc
	}

	r := lazyio.New("again", ch)
	for _, want := range []string{"first", "second"} {
		errc := writeOnce(want)
		line, err := r.ReadLine()
		if err != nil {
			t.Fatalf("read %s: %v", want, err)
		}
		if line != want {
			t.Fatalf("expected %q, got %q", want, line)
		}
		if err := <-errc; err != nil {
			t.Fatalf("writer %s: %v", want, err)
		}
		if err := r.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
}

func TestReadLineReturnsUnterminatedTail(t *testing.T) {
	ch := newChannel(t)
	if _, err := ch.CreatePipe("tail"); err != nil {
		t.Fatalf("create pipe: %v", err)
	}
	go func() {
		w := lazyio.New("tail", ch)
		_, _ = w.WriteString("no newline")
		_ = w.Close()
	}()

	r := lazyio.New("tail", ch)
	defer r.Close()
	line, err := r.ReadLine()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if line != "no newline" {
		t.Fatalf("unexpected line %q", line)
	}
}

func TestOpenFailurePropagates(t *testing.T) {
	ch := newChannel(t)
	h := lazyio.New("never-created", ch)
	_, err := h.ReadLine()
	if !errors.Is(err, channel.ErrChannelOpen) {
		t.Fatalf("expected ErrChannelOpen, got %v", err)
	}
	if h.Mode() != lazyio.ModeUnset {
		t.Fatalf("failed open must not fix the mode, got %s", h.Mode())
	}
}

func TestOpenEagerlyFixesMode(t *testing.T) {
	opener := &pipeOpener{t: t}
	h := lazyio.New("eager", opener)

	if err := h.Open(lazyio.ModeUnset); err == nil {
		t.Fatal("expected invalid mode to be rejected")
	}
	if err := h.Open(lazyio.ModeWrite); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if opener.opens != 1 || h.Closed() || h.Mode() != lazyio.ModeWrite {
		t.Fatalf("expected one eager open in write mode, opens=%d mode=%s", opener.opens, h.Mode())
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := opener.drain(0); got != "" {
		t.Fatalf("expected empty stream, got %q", got)
	}
}
