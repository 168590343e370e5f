package channel

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"
)

const (
	// EnvDataDir carries the data directory to worker processes.
	EnvDataDir = "PIPEWRIGHT_DATA_DIR"
	// EnvPipeDir carries the pipe directory to worker processes.
	EnvPipeDir = "PIPEWRIGHT_PIPE_DIR"

	lockFileName = ".lock"
	pipeMode     = 0o600
)

// Config describes where a run keeps its data and its named pipes.
type Config struct {
	DataDir         string
	PipeDir         string
	PreservePipeDir bool
}

// DefaultPipeDir returns the per-process pipe directory under the system temp dir.
func DefaultPipeDir() string {
	return filepath.Join(os.TempDir(), "pipewright", strconv.Itoa(os.Getpid()))
}

// DefaultConfig returns the channel configuration used when callers supply none.
func DefaultConfig() Config {
	return Config{
		DataDir: "./data",
		PipeDir: DefaultPipeDir(),
	}
}

// ConfigFromEnv rebuilds the configuration a parent exported with Environ.
func ConfigFromEnv(lookup func(string) (string, bool)) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	pipeDir, ok := lookup(EnvPipeDir)
	if !ok || strings.TrimSpace(pipeDir) == "" {
		return Config{}, fmt.Errorf("%s is not set", EnvPipeDir)
	}
	dataDir, _ := lookup(EnvDataDir)
	return Config{DataDir: strings.TrimSpace(dataDir), PipeDir: strings.TrimSpace(pipeDir)}, nil
}

// Environ returns the environment entries a child needs to reach the same pipes.
func (c Config) Environ() []string {
	return []string{
		EnvDataDir + "=" + c.DataDir,
		EnvPipeDir + "=" + c.PipeDir,
	}
}

// Channel owns a pipe directory: it creates the directory, materializes named
// pipes inside it, opens them, and removes everything on teardown.
//
// A Channel is safe for concurrent use. The zero value is not usable; call New.
type Channel struct {
	cfg Config

	mu    sync.Mutex
	pipes map[string]string
	lock  *flock.Flock
}

// New records the configuration. It performs no I/O.
func New(cfg Config) *Channel {
	if strings.TrimSpace(cfg.PipeDir) == "" {
		cfg.PipeDir = DefaultPipeDir()
	}
	return &Channel{
		cfg:   cfg,
		pipes: make(map[string]string),
	}
}

// Config returns the configuration the channel was built with.
func (c *Channel) Config() Config {
	return c.cfg
}

// DataDir returns the data directory handed to workers.
func (c *Channel) DataDir() string {
	return c.cfg.DataDir
}

// PipeDir returns the directory holding the named pipes.
func (c *Channel) PipeDir() string {
	return c.cfg.PipeDir
}

// Setup creates the pipe directory and the data directory and takes an
// exclusive lock on the pipe directory for the lifetime of the run.
func (c *Channel) Setup() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lock != nil {
		return wrap(ErrFileSystem, "setup", c.cfg.PipeDir, errors.New("already set up"))
	}
	if strings.TrimSpace(c.cfg.DataDir) != "" {
		if err := os.MkdirAll(c.cfg.DataDir, 0o755); err != nil {
			return wrap(ErrFileSystem, "create data directory", c.cfg.DataDir, err)
		}
	}
	if err := os.MkdirAll(c.cfg.PipeDir, 0o700); err != nil {
		return wrap(ErrFileSystem, "create pipe directory", c.cfg.PipeDir, err)
	}

	lock := flock.New(filepath.Join(c.cfg.PipeDir, lockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return wrap(ErrFileSystem, "lock pipe directory", c.cfg.PipeDir, err)
	}
	if !ok {
		return wrap(ErrFileSystem, "lock pipe directory", c.cfg.PipeDir, errors.New("directory is in use by another pipeline"))
	}
	c.lock = lock
	return nil
}

// Teardown releases the directory lock and removes the pipe directory unless
// the configuration preserves it. Only a channel whose Setup succeeded removes
// anything, so a failed Setup never deletes a directory owned by another run.
// Calling it more than once, or after the directory disappeared, is not an
// error.
func (c *Channel) Teardown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pipes = make(map[string]string)
	if c.lock == nil {
		return nil
	}

	var errs []error
	if err := c.lock.Unlock(); err != nil {
		errs = append(errs, wrap(ErrFileSystem, "unlock pipe directory", c.cfg.PipeDir, err))
	}
	c.lock = nil
	if c.cfg.PreservePipeDir {
		return errors.Join(errs...)
	}
	if err := os.RemoveAll(c.cfg.PipeDir); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, wrap(ErrFileSystem, "remove pipe directory", c.cfg.PipeDir, err))
	}
	return errors.Join(errs...)
}

// PipePath returns the file-system location of the named pipe.
func (c *Channel) PipePath(name string) string {
	return filepath.Join(c.cfg.PipeDir, name)
}

// CreatePipe creates the named pipe and returns its path. Creating the same
// name twice within one run fails.
func (c *Channel) CreatePipe(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", wrap(ErrPipeCreation, "create pipe", name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.pipes[name]; exists {
		return "", wrap(ErrPipeCreation, "create pipe", name, errors.New("pipe already created in this run"))
	}
	path := c.PipePath(name)
	if err := unix.Mkfifo(path, pipeMode); err != nil {
		return "", wrap(ErrPipeCreation, "create pipe", path, err)
	}
	c.pipes[name] = path
	return path, nil
}

// EnsurePipe returns the path of the named pipe, creating it when this run has
// not created it yet.
func (c *Channel) EnsurePipe(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", wrap(ErrPipeCreation, "ensure pipe", name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if path, exists := c.pipes[name]; exists {
		return path, nil
	}
	path := c.PipePath(name)
	if err := unix.Mkfifo(path, pipeMode); err != nil {
		if !errors.Is(err, unix.EEXIST) || !isFIFO(path) {
			return "", wrap(ErrPipeCreation, "ensure pipe", path, err)
		}
	}
	c.pipes[name] = path
	return path, nil
}

// Created reports whether name was created or ensured during the current run.
func (c *Channel) Created(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pipes[name]
	return ok
}

// Pipes returns the names created during the current run.
func (c *Channel) Pipes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.pipes))
	for name := range c.pipes {
		names = append(names, name)
	}
	return names
}

// OpenReader opens the named pipe for reading. It blocks until a writer opens
// the other end.
func (c *Channel) OpenReader(name string) (*os.File, error) {
	return c.open(name, os.O_RDONLY)
}

// OpenWriter opens the named pipe for writing. It blocks until a reader opens
// the other end.
func (c *Channel) OpenWriter(name string) (*os.File, error) {
	return c.open(name, os.O_WRONLY)
}

func (c *Channel) open(name string, flag int) (*os.File, error) {
	op := "open reader"
	if flag == os.O_WRONLY {
		op = "open writer"
	}
	if err := ValidateName(name); err != nil {
		return nil, wrap(ErrChannelOpen, op, name, err)
	}
	path := c.PipePath(name)
	info, err := os.Stat(path)
	if err != nil {
		return nil, wrap(ErrChannelOpen, op, path, err)
	}
	if info.Mode()&os.ModeNamedPipe == 0 {
		return nil, wrap(ErrChannelOpen, op, path, errors.New("not a named pipe"))
	}
	file, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, wrap(ErrChannelOpen, op, path, err)
	}
	return file, nil
}

// ValidateName reports whether name can be used as a pipe name.
func ValidateName(name string) error {
	switch {
	case name == "":
		return errors.New("pipe name is empty")
	case strings.ContainsRune(name, filepath.Separator) || strings.ContainsRune(name, '/'):
		return fmt.Errorf("pipe name %q must not contain a path separator", name)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("pipe name %q must not start with a dot", name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("pipe name %q contains a NUL byte", name)
	}
	return nil
}

func isFIFO(path string) bool {
	info, err := os.Lstat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeNamedPipe != 0
}
