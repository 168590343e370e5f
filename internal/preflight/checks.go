package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckCreatable passes when path is an accessible directory, or when it does
// not exist yet and its nearest existing ancestor is writable.
func CheckCreatable(name, path string) Result {
	if path == "" {
		return Result{Name: name, Detail: "path not configured"}
	}
	if _, err := os.Stat(path); err == nil {
		return CheckDirectoryAccess(name, path)
	}

	ancestor, err := existingAncestor(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	result := CheckDirectoryAccess(name, ancestor)
	if !result.Passed {
		result.Detail = fmt.Sprintf("%s cannot be created: %s", path, result.Detail)
		return result
	}
	result.Detail = fmt.Sprintf("%s (will be created under %s)", path, ancestor)
	return result
}

// CheckFIFOSupport creates and removes a named pipe next to pipeDir to prove
// the file system supports them.
func CheckFIFOSupport(ctx context.Context, pipeDir string) Result {
	const name = "Named pipes"
	if err := ctx.Err(); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if pipeDir == "" {
		return Result{Name: name, Detail: "pipe directory not configured"}
	}
	dir, err := existingAncestor(pipeDir)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	probeDir, err := os.MkdirTemp(dir, ".pipewright-probe-")
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", dir, err)}
	}
	defer os.RemoveAll(probeDir)

	probe := filepath.Join(probeDir, "fifo")
	if err := unix.Mkfifo(probe, 0o600); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("mkfifo in %s failed: %v", dir, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("mkfifo ok in %s", dir)}
}

func existingAncestor(path string) (string, error) {
	current, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		info, err := os.Stat(current)
		if err == nil {
			if !info.IsDir() {
				return "", fmt.Errorf("%s is not a directory", current)
			}
			return current, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", fmt.Errorf("no existing ancestor for %s", path)
		}
		current = parent
	}
}
