// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianPregel/pkg/telemetry"
	"github.com/AleutianAI/AleutianPregel/pkg/ux"
	"github.com/AleutianAI/AleutianPregel/pkg/validation"
	"github.com/AleutianAI/AleutianPregel/services/pregel"
	"github.com/AleutianAI/AleutianPregel/services/pregel/checkpoint"
	"github.com/AleutianAI/AleutianPregel/services/pregel/config"
	"github.com/AleutianAI/AleutianPregel/services/pregel/graph"
	"github.com/AleutianAI/AleutianPregel/services/pregel/monitor"
	"github.com/AleutianAI/AleutianPregel/services/pregel/programs"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// shutdownTimeout bounds telemetry flushes and the monitor shutdown.
const shutdownTimeout = 5 * time.Second

type runOptions struct {
	graphPath  string
	configPath string
	runID      string
	undirected bool
	dedup      bool

	file config.File

	output      string
	top         int
	progress    string
	monitorAddr string
	traces      string
	metrics     string
}

func newRunCmd(a *app) *cobra.Command {
	o := &runOptions{file: config.Default()}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a vertex program over an edge-list graph",
		Example: `  pregel run --graph edges.txt
  pregel run --graph web.txt --program pagerank --max-iterations 30 --tolerance 1e-6
  pregel run --graph roads.txt --program sssp --source 12 --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.resolveConfig(cmd.Flags()); err != nil {
				return err
			}
			return runProgram(cmd.Context(), a, o)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.graphPath, "graph", "g", "", "edge-list file to load (required)")
	f.StringVarP(&o.configPath, "config", "c", "", "YAML configuration file; flags override its values")
	f.StringVar(&o.runID, "run-id", "", "run id used in logs and checkpoints (default: random)")
	f.BoolVar(&o.undirected, "undirected", false, "treat edges as undirected (always on for cc)")
	f.BoolVar(&o.dedup, "dedup", false, "drop duplicate edges while loading")

	f.StringVarP(&o.file.Program.Name, "program", "p", o.file.Program.Name, "vertex program: cc, pagerank, sssp")
	f.Int64Var(&o.file.Program.Source, "source", o.file.Program.Source, "source node for sssp")
	f.Float64Var(&o.file.Program.Damping, "damping", o.file.Program.Damping, "damping factor for pagerank")
	f.IntVar(&o.file.MaxIterations, "max-iterations", o.file.MaxIterations, "superstep cap")
	f.IntVarP(&o.file.Concurrency, "concurrency", "j", o.file.Concurrency, "worker count")
	f.StringVar(&o.file.Partitioning, "partitioning", o.file.Partitioning, "node partitioning: range, degree, auto")
	f.StringVar(&o.file.Discipline, "discipline", o.file.Discipline, "message discipline: sync, async, reducing")
	f.StringVar(&o.file.Reducer, "reducer", o.file.Reducer, "reducer for the reducing discipline: sum, min, max, count")
	f.Float64Var(&o.file.Tolerance, "tolerance", o.file.Tolerance, "convergence tolerance passed to master compute")
	f.IntVar(&o.file.CheckInterval, "check-interval", o.file.CheckInterval, "nodes between termination checks")
	f.StringVar(&o.file.CheckpointDir, "checkpoint-dir", o.file.CheckpointDir, "badger directory for checkpoints")
	f.IntVar(&o.file.CheckpointEvery, "checkpoint-every", o.file.CheckpointEvery, "checkpoint every N supersteps (0 disables)")

	f.StringVarP(&o.output, "output", "o", "table", "result format: table, json")
	f.IntVar(&o.top, "top", 20, "print at most this many node values (0 prints all)")
	f.StringVar(&o.progress, "progress", "auto", "live progress view: auto, on, off")
	f.StringVar(&o.monitorAddr, "monitor-addr", "", "serve /metrics, /runs and /progress on this address")
	f.StringVar(&o.traces, "traces", "", "trace exporter: otlp, stdout, none (default from OTEL_TRACES_EXPORTER)")
	f.StringVar(&o.metrics, "metrics", "", "metric exporter: prometheus, stdout, none (default: prometheus with --monitor-addr)")

	_ = cmd.MarkFlagRequired("graph")
	return cmd
}

// configFlags are the flags that override config file values.
var configFlags = []string{
	"program", "source", "damping", "max-iterations", "concurrency", "partitioning",
	"discipline", "reducer", "tolerance", "check-interval", "checkpoint-dir", "checkpoint-every",
}

// resolveConfig loads --config and reapplies every explicitly set flag on
// top of it, then validates the result.
func (o *runOptions) resolveConfig(flags *pflag.FlagSet) error {
	if o.output != "table" && o.output != "json" {
		return fmt.Errorf("unknown output format %q", o.output)
	}
	switch o.progress {
	case "auto", "on", "off":
	default:
		return fmt.Errorf("unknown progress mode %q", o.progress)
	}

	if o.configPath != "" {
		overrides := o.file
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return err
		}
		o.file = loaded
		applyOverrides(flags, &o.file, overrides)
	}
	return o.file.Validate()
}

func applyOverrides(flags *pflag.FlagSet, dst *config.File, src config.File) {
	for _, name := range configFlags {
		if !flags.Changed(name) {
			continue
		}
		switch name {
		case "program":
			dst.Program.Name = src.Program.Name
		case "source":
			dst.Program.Source = src.Program.Source
		case "damping":
			dst.Program.Damping = src.Program.Damping
		case "max-iterations":
			dst.MaxIterations = src.MaxIterations
		case "concurrency":
			dst.Concurrency = src.Concurrency
		case "partitioning":
			dst.Partitioning = src.Partitioning
		case "discipline":
			dst.Discipline = src.Discipline
		case "reducer":
			dst.Reducer = src.Reducer
		case "tolerance":
			dst.Tolerance = src.Tolerance
		case "check-interval":
			dst.CheckInterval = src.CheckInterval
		case "checkpoint-dir":
			dst.CheckpointDir = src.CheckpointDir
		case "checkpoint-every":
			dst.CheckpointEvery = src.CheckpointEvery
		}
	}
}

func (o *runOptions) telemetryConfig(a *app) telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = version
	cfg.Writer = a.errOut
	if o.traces != "" {
		cfg.TraceExporter = o.traces
	}
	switch {
	case o.metrics != "":
		cfg.MetricExporter = o.metrics
	case o.monitorAddr != "":
		cfg.MetricExporter = "prometheus"
	}
	return cfg
}

func runProgram(ctx context.Context, a *app, o *runOptions) (err error) {
	logger := a.logger.Slog()

	shutdownTelemetry, err := telemetry.Init(ctx, o.telemetryConfig(a))
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if serr := shutdownTelemetry(sctx); serr != nil {
			logger.Warn("telemetry shutdown failed", slog.String("error", serr.Error()))
		}
	}()

	cfg, err := o.file.ToConfig()
	if err != nil {
		return err
	}
	program, err := programs.ByName(o.file.Program.Name, programs.Params{
		Source:  o.file.Program.Source,
		Damping: o.file.Program.Damping,
	})
	if err != nil {
		return err
	}

	g, err := o.loadGraph(logger)
	if err != nil {
		return err
	}
	if o.file.Program.Name == "sssp" && o.file.Program.Source >= g.NodeCount() {
		return fmt.Errorf("source node %d is outside the graph (%d nodes)", o.file.Program.Source, g.NodeCount())
	}

	runID := uuid.NewString()
	if o.runID != "" {
		if runID, err = validation.SanitizeRunID(o.runID); err != nil {
			return err
		}
	}
	opts := []pregel.Option{pregel.WithLogger(logger), pregel.WithRunID(runID)}

	var store *checkpoint.Store
	if o.file.CheckpointDir != "" {
		storeCfg := checkpoint.DefaultConfig(o.file.CheckpointDir)
		storeCfg.Logger = logger
		store, err = checkpoint.Open(storeCfg)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := store.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		if cfg.CheckpointEvery == 0 {
			cfg.CheckpointEvery = 1
		}
		opts = append(opts, pregel.WithCheckpointer(store))
	}

	var (
		observers []pregel.ProgressFunc
		result    *pregel.Result
		view      *ux.ProgressView
	)
	if o.monitorAddr != "" {
		hub := monitor.NewHub()
		serverOpts := []monitor.ServerOption{monitor.WithLogger(logger)}
		if h := telemetry.MetricsHandler(); h != nil {
			serverOpts = append(serverOpts, monitor.WithMetricsHandler(h))
		}
		if store != nil {
			serverOpts = append(serverOpts, monitor.WithCheckpoints(store))
		}
		server := monitor.NewServer(hub, serverOpts...)
		if err := server.Start(o.monitorAddr); err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if serr := server.Shutdown(sctx); serr != nil {
				logger.Warn("monitor shutdown failed", slog.String("error", serr.Error()))
			}
		}()
		hub.Start(runID, o.file.Program.Name)
		defer func() {
			hub.Finish(runID, result, err)
		}()
		observers = append(observers, hub.Progress())
	}

	if o.showProgress(a) {
		title := fmt.Sprintf("%s on %s", o.file.Program.Name, o.graphPath)
		view = ux.StartProgress(ctx, a.errOut, title, cfg.MaxIterations)
		defer view.Stop()
		observers = append(observers, func(_ string, stats pregel.SuperstepStats) {
			view.Step(ux.StepMsg{
				Superstep:    stats.Superstep,
				ActiveNodes:  stats.ActiveNodes,
				MessagesSent: stats.MessagesSent,
			})
		})
	}
	if len(observers) > 0 {
		opts = append(opts, pregel.WithProgress(fanOut(observers)))
	}

	engine, err := pregel.New(g, cfg, program, opts...)
	if err != nil {
		return err
	}
	result, err = engine.Run(ctx)
	if view != nil {
		view.Stop()
	}
	if err != nil {
		return err
	}
	if result.Outcome == pregel.OutcomeTerminated && ctx.Err() != nil {
		logger.Warn("run interrupted", slog.Int("supersteps", result.Supersteps))
	}

	return writeResult(a.printer, o.output, o.top, resultReport{
		Program:   o.file.Program.Name,
		Graph:     o.graphPath,
		Nodes:     g.NodeCount(),
		Edges:     g.RelationshipCount(),
		ResultKey: program.ResultKey(),
		Result:    result,
	})
}

func (o *runOptions) loadGraph(logger *slog.Logger) (*graph.Graph, error) {
	var opts []graph.BuilderOption
	if o.undirected || o.file.Program.Name == "cc" {
		opts = append(opts, graph.WithUndirected())
	}
	if o.dedup {
		opts = append(opts, graph.WithDeduplicate())
	}

	start := time.Now()
	g, err := graph.LoadEdgeListFile(o.graphPath, opts...)
	if err != nil {
		return nil, err
	}
	logger.Info("graph loaded",
		slog.String("path", o.graphPath),
		slog.Int64("nodes", g.NodeCount()),
		slog.Int64("relationships", g.RelationshipCount()),
		slog.Bool("undirected", g.Undirected()),
		slog.Duration("duration", time.Since(start)))
	return g, nil
}

func (o *runOptions) showProgress(a *app) bool {
	switch o.progress {
	case "on":
		return true
	case "off":
		return false
	default:
		return !a.plain && o.output == "table" && ux.IsTerminal(a.errOut)
	}
}

func fanOut(observers []pregel.ProgressFunc) pregel.ProgressFunc {
	if len(observers) == 1 {
		return observers[0]
	}
	return func(runID string, stats pregel.SuperstepStats) {
		for _, fn := range observers {
			fn(runID, stats)
		}
	}
}
