package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pipewright/internal/worker"
	"pipewright/internal/workers"
)

// newWorkerCommand is the entry point of re-executed worker processes. Its
// arguments are produced by worker.Invocation.Argv and are parsed by the
// worker package itself.
func newWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:                "worker",
		Short:              "Run one pipeline worker (internal)",
		Hidden:             true,
		DisableFlagParsing: true,
		Annotations:        map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			code := worker.Main(cmd.Context(), workers.NewRegistry(), args, os.LookupEnv, cmd.ErrOrStderr())
			if code != worker.ExitOK {
				return &exitError{code: code}
			}
			return nil
		},
	}
}

func newWorkersCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "workers",
		Short:       "List the built-in workers",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			entries := workers.NewRegistry().Entries()
			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{entry.Name, entry.Description})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]column{{title: "Worker"}, {title: "Description"}}, rows))
			return nil
		},
	}
}
