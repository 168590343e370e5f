package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"

	"pipewright/internal/config"
)

const (
	// EnvLevel carries the log level to worker processes.
	EnvLevel = "PIPEWRIGHT_LOG_LEVEL"
	// EnvFormat carries the resolved log format to worker processes.
	EnvFormat = "PIPEWRIGHT_LOG_FORMAT"
)

// Options describes logger construction parameters.
type Options struct {
	Level       string
	Format      string
	OutputPaths []string
	Development bool
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	level := parseLevel(opts.Level)
	levelVar := new(slog.LevelVar)
	levelVar.Set(level)

	paths := opts.OutputPaths
	if len(paths) == 0 {
		paths = []string{"stderr"}
	}
	writer, err := openWriters(paths)
	if err != nil {
		return nil, err
	}

	addSource := opts.Development || level <= slog.LevelDebug

	switch ResolveFormat(opts.Format, paths) {
	case "json":
		return slog.New(newJSONHandler(writer, levelVar, addSource)), nil
	case "console":
		return slog.New(newConsoleHandler(writer, levelVar, addSource)), nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
}

// NewFromConfig creates a logger using application config values.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return New(opts)
}

// OptionsFromConfig maps configuration onto logger options, adding the log
// file when a log directory is configured.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	if cfg == nil {
		return Options{Level: "info", Format: "auto", OutputPaths: []string{"stderr"}}, nil
	}
	paths := []string{"stderr"}
	if logFile := cfg.LogFile(); logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			return Options{}, fmt.Errorf("ensure log directory: %w", err)
		}
		paths = append(paths, logFile)
	}
	return Options{
		Level:       cfg.Logging.Level,
		Format:      ResolveFormat(cfg.Logging.Format, paths),
		OutputPaths: paths,
	}, nil
}

// Environ returns the environment entries that let a worker process log with
// the same level and format as its parent.
func (o Options) Environ() []string {
	return []string{
		EnvLevel + "=" + strings.TrimSpace(o.Level),
		EnvFormat + "=" + ResolveFormat(o.Format, o.OutputPaths),
	}
}

// OptionsFromEnv rebuilds worker logger options from the environment. Workers
// always log to stderr.
func OptionsFromEnv(lookup func(string) (string, bool)) Options {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	level, _ := lookup(EnvLevel)
	format, _ := lookup(EnvFormat)
	return Options{Level: level, Format: format, OutputPaths: []string{"stderr"}}
}

// ResolveFormat turns "auto" (or an empty value) into "console" when the first
// standard stream among paths is a terminal and "json" otherwise.
func ResolveFormat(format string, paths []string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != "" && format != "auto" {
		return format
	}
	for _, path := range paths {
		switch strings.TrimSpace(path) {
		case "stdout":
			return terminalFormat(os.Stdout)
		case "stderr":
			return terminalFormat(os.Stderr)
		}
	}
	return "json"
}

func terminalFormat(f *os.File) string {
	if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
		return "console"
	}
	return "json"
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openWriters(paths []string) (io.Writer, error) {
	seen := map[string]struct{}{}
	var writers []io.Writer

	for _, path := range paths {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}

		switch trimmed {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if dir := filepath.Dir(trimmed); dir != "." && dir != "" {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("create log directory %s: %w", dir, err)
				}
			}
			file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", trimmed, err)
			}
			writers = append(writers, file)
		}
	}

	switch len(writers) {
	case 0:
		return os.Stderr, nil
	case 1:
		return writers[0], nil
	default:
		return io.MultiWriter(writers...), nil
	}
}
