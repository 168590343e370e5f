package workers

import (
	"fmt"

	"pipewright/internal/lazyio"
	"pipewright/internal/worker"
)

// Names of the built-in workers.
const (
	NameSplitter   = "splitter"
	NameJoiner     = "joiner"
	NameFileSource = "file-source"
	NameFileSink   = "file-sink"
)

// Register installs every built-in worker into reg.
func Register(reg *worker.Registry) error {
	entries := []struct {
		name, description string
		factory           worker.Factory
	}{
		{NameSplitter, "round-robin lines of reader 0 across all writers", func() worker.Worker { return Splitter{} }},
		{NameJoiner, "concatenate every reader in order into writer 0", func() worker.Worker { return Joiner{} }},
		{NameFileSource, "stream DataDir/<file> line by line to writer 0", func() worker.Worker { return FileSource{} }},
		{NameFileSink, "write reader 0 to DataDir/<file>", func() worker.Worker { return &FileSink{} }},
	}
	for _, e := range entries {
		if err := reg.Register(e.name, e.description, e.factory); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding the built-in workers.
func NewRegistry() *worker.Registry {
	reg := worker.NewRegistry()
	if err := Register(reg); err != nil {
		panic(err)
	}
	return reg
}

// openAll opens every handle in mode. A writer that ends up receiving no
// lines must still be opened once, otherwise its reader blocks forever.
func openAll(handles []*lazyio.Handle, mode lazyio.Mode) error {
	for _, h := range handles {
		if err := h.Open(mode); err != nil {
			return err
		}
	}
	return nil
}

func requireArg(args []string, what string) (string, error) {
	if len(args) == 0 || args[0] == "" {
		return "", fmt.Errorf("%w: missing %s argument", worker.ErrInvocation, what)
	}
	return args[0], nil
}
