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
	"io"

	"github.com/AleutianAI/AleutianPregel/pkg/logging"
	"github.com/AleutianAI/AleutianPregel/pkg/ux"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// app holds state shared by every subcommand of one invocation.
type app struct {
	out    io.Writer
	errOut io.Writer

	logLevel string
	logDir   string
	jsonLogs bool
	quiet    bool
	plain    bool

	logger  *logging.Logger
	printer *ux.Printer
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "pregel",
		Short: "Run bulk synchronous parallel vertex programs over graphs",
		Long: `pregel loads a graph from an edge list and runs a vertex program
(connected components, PageRank, or single-source shortest paths) on it in
supersteps, spreading the nodes over a pool of workers.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.logLevel, "log-level", "info", "minimum log level: debug, info, warn, error")
	flags.StringVar(&a.logDir, "log-dir", "", "also append JSON logs to a daily file in this directory")
	flags.BoolVar(&a.jsonLogs, "json-logs", false, "write console logs as JSON")
	flags.BoolVarP(&a.quiet, "quiet", "q", false, "disable console logs")
	flags.BoolVar(&a.plain, "plain", false, "plain tab-separated output even on a terminal")

	root.AddCommand(
		newRunCmd(a),
		newValidateCmd(a),
		newInitCmd(a),
		newCheckpointsCmd(a),
		newVersionCmd(a),
	)
	return root
}

func (a *app) setup() error {
	level, err := logging.ParseLevel(a.logLevel)
	if err != nil {
		return err
	}
	a.logger, err = logging.New(logging.Config{
		Level:   level,
		LogDir:  a.logDir,
		Service: "pregel",
		JSON:    a.jsonLogs,
		Quiet:   a.quiet,
		Output:  a.errOut,
	})
	if err != nil {
		return err
	}

	mode := ux.Mode("")
	if a.plain {
		mode = ux.ModeMachine
	}
	a.printer = ux.NewPrinter(a.out, mode)
	return nil
}

func (a *app) teardown() error {
	if a.logger == nil {
		return nil
	}
	return a.logger.Close()
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			a.printer.KeyValues("pregel", [][2]string{{"version", version}})
		},
	}
}
