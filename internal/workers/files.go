package workers

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pipewright/internal/fileutil"
	"pipewright/internal/lazyio"
	"pipewright/internal/worker"
)

// FileSource streams DataDir/<args[0]> to writer 0, one line per write.
type FileSource struct{}

// Run implements worker.Worker.
func (FileSource) Run(ctx context.Context, args []string, s *worker.Streams) error {
	name, err := requireArg(args, "file")
	if err != nil {
		return err
	}
	out, err := s.Writer(0)
	if err != nil {
		return err
	}
	path, err := dataPath(s.DataDir, name)
	if err != nil {
		return err
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open source %s: %w", path, err)
	}
	defer file.Close()

	if err := out.Open(lazyio.ModeWrite); err != nil {
		return err
	}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := out.WriteLine(scanner.Text()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read source %s: %w", path, err)
	}
	return nil
}

// FileSink writes every line of reader 0 to DataDir/<args[0]>. The file only
// appears once the input ended cleanly; on failure Finalize discards it.
type FileSink struct {
	pending *fileutil.AtomicFile
}

// Run implements worker.Worker.
func (f *FileSink) Run(ctx context.Context, args []string, s *worker.Streams) error {
	name, err := requireArg(args, "file")
	if err != nil {
		return err
	}
	in, err := s.Reader(0)
	if err != nil {
		return err
	}
	path, err := dataPath(s.DataDir, name)
	if err != nil {
		return err
	}
	out, err := fileutil.CreateAtomic(path, 0o644)
	if err != nil {
		return err
	}
	f.pending = out

	w := bufio.NewWriter(out)
	for line, err := range in.Lines() {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := w.WriteString(line); err != nil {
			return fmt.Errorf("write sink %s: %w", path, err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fmt.Errorf("write sink %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush sink %s: %w", path, err)
	}
	f.pending = nil
	return out.Commit()
}

// Finalize discards a partially written file.
func (f *FileSink) Finalize() error {
	if f.pending == nil {
		return nil
	}
	err := f.pending.Abort()
	f.pending = nil
	return err
}

// dataPath resolves name inside dataDir and refuses paths that escape it.
func dataPath(dataDir, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %q must be relative to the data directory", worker.ErrInvocation, name)
	}
	cleaned := filepath.Clean(name)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes the data directory", worker.ErrInvocation, name)
	}
	return filepath.Join(dataDir, cleaned), nil
}
