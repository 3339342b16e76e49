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
	"fmt"
	"strconv"

	"github.com/AleutianAI/AleutianPregel/services/pregel/config"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "pregel.yaml"

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init [path]",
		Short: "Write a default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultConfigPath
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			a.printer.Success("wrote " + path)
			return nil
		},
	}
}

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [path]",
		Short: "Check a configuration file and print the resolved settings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultConfigPath
			if len(args) == 1 {
				path = args[0]
			}
			f, err := config.Load(path)
			if err != nil {
				return err
			}
			cfg, err := f.ToConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			reducer := "program default"
			if cfg.Reducer != nil {
				reducer = f.Reducer
			}
			a.printer.KeyValues(path, [][2]string{
				{"program", f.Program.Name},
				{"max_iterations", strconv.Itoa(cfg.MaxIterations)},
				{"concurrency", strconv.Itoa(cfg.Concurrency)},
				{"partitioning", cfg.Partitioning.String()},
				{"discipline", cfg.Discipline.String()},
				{"reducer", reducer},
				{"tolerance", strconv.FormatFloat(cfg.Tolerance, 'g', -1, 64)},
				{"check_interval", strconv.Itoa(cfg.CheckInterval)},
				{"checkpoint_every", strconv.Itoa(cfg.CheckpointEvery)},
				{"checkpoint_dir", fmt.Sprintf("%q", f.CheckpointDir)},
			})
			a.printer.Success("configuration is valid")
			return nil
		},
	}
}
