package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pipewright/internal/config"
	"pipewright/internal/logging"
	"pipewright/internal/runctx"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Logging.Format = "json"

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello file")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "pipewright.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "hello file") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestConsoleLoggerOmitsSourceForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message without source", logging.String("pipe", "p1"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(content)
	if strings.Contains(text, ".go:") {
		t.Fatalf("expected no source information in info logs, got %q", text)
	}
	if !strings.Contains(text, "    - pipe: p1") {
		t.Fatalf("expected indented field, got %q", text)
	}
}

func TestConsoleLoggerIncludesSourceForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message with source")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), ".go:") {
		t.Fatalf("expected source information in debug logs, got %q", content)
	}
}

func TestJSONLoggerCarriesContextFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "run.json")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := runctx.WithRunID(context.Background(), "run-xyz")
	ctx = runctx.WithWorker(ctx, "splitter")
	ctx = runctx.WithPID(ctx, 99)
	logging.WithContext(ctx, logger).Info("contextual log")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &record); err != nil {
		t.Fatalf("decode record %q: %v", content, err)
	}
	if record[logging.FieldRunID] != "run-xyz" {
		t.Fatalf("unexpected run id %v", record[logging.FieldRunID])
	}
	if record[logging.FieldWorker] != "splitter" {
		t.Fatalf("unexpected worker %v", record[logging.FieldWorker])
	}
	if record[logging.FieldPID] != float64(99) {
		t.Fatalf("unexpected pid %v", record[logging.FieldPID])
	}
	if record["level"] != "info" {
		t.Fatalf("unexpected level %v", record["level"])
	}
}

func TestConsoleFoldsSubjectIntoHeader(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "subject.log")
	logger, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger = logging.NewComponentLogger(logger, "pipeline")
	logger.Info("spawned", logging.String(logging.FieldRunID, "0123456789abcdef"), logging.String(logging.FieldWorker, "joiner"), logging.Int(logging.FieldPID, 7))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "[run 01234567 joiner#7] pipeline: spawned") {
		t.Fatalf("unexpected header %q", content)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestResolveFormat(t *testing.T) {
	if got := logging.ResolveFormat("JSON", nil); got != "json" {
		t.Fatalf("expected explicit json, got %q", got)
	}
	if got := logging.ResolveFormat("auto", []string{"/tmp/file.log"}); got != "json" {
		t.Fatalf("expected json for file-only output, got %q", got)
	}
}

func TestOptionsEnvironRoundTrip(t *testing.T) {
	opts := logging.Options{Level: "debug", Format: "console"}
	env := map[string]string{}
	for _, entry := range opts.Environ() {
		key, value, _ := strings.Cut(entry, "=")
		env[key] = value
	}
	got := logging.OptionsFromEnv(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
	if got.Level != "debug" || got.Format != "console" {
		t.Fatalf("unexpected options %+v", got)
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("nop logger should be disabled")
	}
	logging.WithContext(context.Background(), nil).Info("ignored")
}
