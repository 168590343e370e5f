package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pipewright/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the host can run pipelines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				status := "ok"
				if !r.Passed {
					status = "FAIL"
					if r.Optional {
						status = "warn"
					}
				}
				rows = append(rows, []string{r.Name, status, yesNo(!r.Optional), r.Detail})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]column{
				{title: "Check"},
				{title: "Status"},
				{title: "Required"},
				{title: "Detail"},
			}, rows))
			return preflight.Error(results)
		},
	}
}
