package lazyio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"
	"syscall"
)

var (
	// ErrBrokenPipe marks a write whose reading peer has gone away.
	ErrBrokenPipe = errors.New("broken pipe")
	// ErrModeMismatch marks a read on a write handle or a write on a read handle.
	ErrModeMismatch = errors.New("handle mode mismatch")
)

// Opener opens named pipes. *channel.Channel satisfies it.
type Opener interface {
	OpenReader(name string) (*os.File, error)
	OpenWriter(name string) (*os.File, error)
}

// Mode is the direction a handle was first used in.
type Mode int

const (
	ModeUnset Mode = iota
	ModeRead
	ModeWrite
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	default:
		return "unset"
	}
}

// Handle is a lazily opened end of a named pipe.
//
// A Handle is not safe for concurrent use.
type Handle struct {
	name   string
	opener Opener

	mode   Mode
	file   *os.File
	reader *bufio.Reader
}

// New binds a handle to name. Nothing is opened until the first operation.
func New(name string, opener Opener) *Handle {
	return &Handle{name: name, opener: opener}
}

// Name returns the pipe name the handle is bound to.
func (h *Handle) Name() string {
	return h.name
}

// Mode reports the direction fixed by the first operation.
func (h *Handle) Mode() Mode {
	return h.mode
}

// Closed reports whether the handle currently holds no open file.
func (h *Handle) Closed() bool {
	return h.file == nil
}

// ReadLine returns the next line without its trailing newline. It opens the
// pipe for reading when the handle is closed, which blocks until a writer
// attaches. io.EOF is returned once the writer has closed its end.
func (h *Handle) ReadLine() (string, error) {
	if err := h.ensure(ModeRead); err != nil {
		return "", err
	}
	line, err := h.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			if line == "" {
				return "", io.EOF
			}
			return line, nil
		}
		return "", fmt.Errorf("read %s: %w", h.name, err)
	}
	return strings.TrimSuffix(line, "\n"), nil
}

// Lines yields every remaining line until the writer closes. Iteration opens
// the pipe lazily; after Close a new call starts over on a fresh open.
func (h *Handle) Lines() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			line, err := h.ReadLine()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
			if !yield(line, nil) {
				return
			}
		}
	}
}

// Write opens the pipe for writing when the handle is closed, which blocks
// until a reader attaches, then writes p.
func (h *Handle) Write(p []byte) (int, error) {
	if err := h.ensure(ModeWrite); err != nil {
		return 0, err
	}
	n, err := h.file.Write(p)
	if err != nil {
		if errors.Is(err, syscall.EPIPE) {
			return n, fmt.Errorf("%w: write %s: %w", ErrBrokenPipe, h.name, err)
		}
		return n, fmt.Errorf("write %s: %w", h.name, err)
	}
	return n, nil
}

// WriteString writes s.
func (h *Handle) WriteString(s string) (int, error) {
	return h.Write([]byte(s))
}

// WriteLine writes s followed by a newline.
func (h *Handle) WriteLine(s string) error {
	_, err := h.Write([]byte(s + "\n"))
	return err
}

// Open opens the pipe in mode now instead of at first use. Workers call it on
// outputs they may never write to, so that the peer still sees end of input.
func (h *Handle) Open(mode Mode) error {
	if mode != ModeRead && mode != ModeWrite {
		return fmt.Errorf("open %s: invalid mode %s", h.name, mode)
	}
	return h.ensure(mode)
}

// Close releases the open file, if any. The next operation reopens the pipe.
func (h *Handle) Close() error {
	if h.file == nil {
		return nil
	}
	err := h.file.Close()
	h.file = nil
	h.reader = nil
	if err != nil {
		return fmt.Errorf("close %s: %w", h.name, err)
	}
	return nil
}

func (h *Handle) ensure(mode Mode) error {
	if h.mode != ModeUnset && h.mode != mode {
		return fmt.Errorf("%w: %s handle %s used for %s", ErrModeMismatch, h.mode, h.name, mode)
	}
	if h.file != nil {
		return nil
	}
	if h.opener == nil {
		return fmt.Errorf("open %s: no opener configured", h.name)
	}

	var (
		file *os.File
		err  error
	)
	if mode == ModeRead {
		file, err = h.opener.OpenReader(h.name)
	} else {
		file, err = h.opener.OpenWriter(h.name)
	}
	if err != nil {
		return err
	}
	h.mode = mode
	h.file = file
	if mode == ModeRead {
		h.reader = bufio.NewReader(file)
	}
	return nil
}

// IsBrokenPipe reports whether err stems from writing to a departed reader.
func IsBrokenPipe(err error) bool {
	return errors.Is(err, ErrBrokenPipe) || errors.Is(err, syscall.EPIPE)
}
