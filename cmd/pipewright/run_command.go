package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pipewright/internal/config"
	"pipewright/internal/history"
	"pipewright/internal/logging"
	"pipewright/internal/metrics"
	"pipewright/internal/pipeline"
	"pipewright/internal/preflight"
	"pipewright/internal/topology"
	"pipewright/internal/workers"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var metricsAddr string
	var preserve bool
	var skipChecks bool

	cmd := &cobra.Command{
		Use:   "run <definition.toml>",
		Short: "Run a pipeline definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if preserve {
				cfg.Pipeline.PreservePipeDir = true
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Metrics.Listen = strings.TrimSpace(metricsAddr)
			}
			return runDefinition(cmd.Context(), cmd, cfg, args[0], skipChecks)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on host:port while the pipeline runs")
	cmd.Flags().BoolVar(&preserve, "preserve-pipe-dir", false, "Keep the pipe directory after the run")
	cmd.Flags().BoolVar(&skipChecks, "skip-checks", false, "Do not run preflight checks")
	return cmd
}

func runDefinition(ctx context.Context, cmd *cobra.Command, cfg *config.Config, path string, skipChecks bool) error {
	def, err := topology.Load(path)
	if err != nil {
		return err
	}
	if def.Name == "" {
		def.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	reg := workers.NewRegistry()
	if err := def.Validate(reg); err != nil {
		return err
	}
	if !skipChecks {
		if err := preflight.Error(preflight.RunAll(ctx, cfg)); err != nil {
			return err
		}
	}

	logOpts, err := logging.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	logger, err := logging.New(logOpts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	m := metrics.New()
	if cfg.Metrics.Listen != "" {
		stop, err := serveMetrics(cfg.Metrics.Listen, m, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	var recorder pipeline.Recorder
	if cfg.History.Enabled {
		store, err := history.Open(ctx, cfg.HistoryPath())
		if err != nil {
			logger.Warn("run history unavailable", logging.Error(err))
		} else {
			defer store.Close()
			recorder = store
		}
	}

	launcher, err := workerLauncher()
	if err != nil {
		return err
	}
	p, err := pipeline.New(pipeline.Options{
		Name:       def.Name,
		Channel:    cfg.ChannelConfig(),
		Launcher:   launcher,
		Registry:   reg,
		Shell:      cfg.Pipeline.Shell,
		KillGrace:  cfg.KillGrace(),
		Logger:     logger,
		LogOptions: logOpts,
		Metrics:    m,
		Recorder:   recorder,
		Stdout:     cmd.OutOrStdout(),
		Stderr:     cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	runErr := p.Run(ctx, def.Topology())
	printExits(cmd.OutOrStdout(), p.RunID(), p.Exits())
	return runErr
}

func printExits(out io.Writer, runID string, exits []pipeline.Exit) {
	if len(exits) == 0 {
		return
	}
	rows := make([][]string, 0, len(exits))
	for _, exit := range exits {
		code := strconv.Itoa(exit.ExitCode)
		if exit.Signaled {
			code = exit.Signal
		}
		rows = append(rows, []string{
			strconv.Itoa(exit.PID),
			exit.Label,
			exit.Status(),
			code,
			exit.Duration.Round(time.Millisecond).String(),
		})
	}
	fmt.Fprintf(out, "Run %s\n", runID)
	fmt.Fprintln(out, renderTable([]column{
		{title: "PID", right: true},
		{title: "Process"},
		{title: "Status"},
		{title: "Exit", right: true},
		{title: "Duration", right: true},
	}, rows))
}

// serveMetrics exposes m on addr until the returned stop function is called.
func serveMetrics(addr string, m *metrics.Metrics, logger *slog.Logger) (func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", logging.Error(err))
		}
	}()
	logger.Info("serving metrics", logging.String("address", listener.Addr().String()))
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}, nil
}
