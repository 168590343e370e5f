package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"pipewright/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recent runs, or the children of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(ctx, cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				run, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if run == nil {
					return fmt.Errorf("run %s not found", args[0])
				}
				children, err := store.Children(cmd.Context(), run.RunID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Run %s (%s): %s in %s\n", run.RunID, run.Name, run.Outcome, run.Duration().Round(time.Millisecond))
				if run.Error != "" {
					fmt.Fprintf(out, "Error: %s\n", run.Error)
				}
				rows := make([][]string, 0, len(children))
				for _, c := range children {
					code := strconv.Itoa(c.ExitCode)
					if c.Signal != "" {
						code = c.Signal
					}
					rows = append(rows, []string{strconv.Itoa(c.Seq + 1), strconv.Itoa(c.PID), c.Label, c.Status, code, c.Duration.String()})
				}
				fmt.Fprintln(out, renderTable([]column{
					{title: "#", right: true},
					{title: "PID", right: true},
					{title: "Process"},
					{title: "Status"},
					{title: "Exit", right: true},
					{title: "Duration", right: true},
				}, rows))
				return nil
			}

			runs, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					run.RunID,
					run.Name,
					run.Started.Local().Format(time.DateTime),
					run.Outcome,
					strconv.Itoa(run.Children),
					strconv.Itoa(run.Failed),
					run.Duration().Round(time.Millisecond).String(),
				})
			}
			fmt.Fprintln(out, renderTable([]column{
				{title: "Run"},
				{title: "Name"},
				{title: "Started"},
				{title: "Outcome"},
				{title: "Children", right: true},
				{title: "Failed", right: true},
				{title: "Duration", right: true},
			}, rows))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show (0 for all)")
	cmd.AddCommand(newHistoryPruneCommand(ctx))
	return cmd
}

func newHistoryPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete runs older than a duration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			store, err := openHistory(ctx, cmd)
			if err != nil {
				return err
			}
			defer store.Close()
			removed, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d run(s)\n", removed)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Age of the oldest run to keep")
	return cmd
}

func openHistory(ctx *commandContext, cmd *cobra.Command) (*history.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.History.Enabled {
		return nil, errors.New("run history is disabled (history.enabled = false)")
	}
	return history.Open(cmd.Context(), cfg.HistoryPath())
}
