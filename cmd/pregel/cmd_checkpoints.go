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
	"os"
	"strconv"
	"time"

	"github.com/AleutianAI/AleutianPregel/services/pregel/checkpoint"
	"github.com/spf13/cobra"
)

func newCheckpointsCmd(a *app) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:     "checkpoints",
		Aliases: []string{"cp"},
		Short:   "Inspect and remove stored run snapshots",
	}
	cmd.PersistentFlags().StringVarP(&dir, "dir", "d", "", "checkpoint directory (required)")
	_ = cmd.MarkPersistentFlagRequired("dir")

	open := func() (*checkpoint.Store, error) {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("checkpoint directory: %w", err)
		}
		cfg := checkpoint.DefaultConfig(dir)
		cfg.Logger = a.logger.Slog()
		cfg.GCInterval = 0
		return checkpoint.Open(cfg)
	}

	list := &cobra.Command{
		Use:   "list [run-id]",
		Short: "List runs, or the snapshots of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 0 {
				runs, err := store.Runs(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, len(runs))
				for i, r := range runs {
					rows[i] = []string{r}
				}
				a.printer.Table([]string{"run_id"}, rows)
				return nil
			}

			infos, err := store.List(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			rows := make([][]string, len(infos))
			for i, info := range infos {
				rows[i] = []string{
					strconv.Itoa(info.Superstep),
					strconv.FormatInt(info.NodeCount, 10),
					strconv.Itoa(info.Bytes),
					info.CreatedAt.Format(time.RFC3339),
				}
			}
			a.printer.Table([]string{"superstep", "nodes", "bytes", "created_at"}, rows)
			return nil
		},
	}

	var superstep int
	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Describe one snapshot (default: the latest)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			var snap *checkpoint.Snapshot
			if cmd.Flags().Changed("superstep") {
				snap, err = store.Load(cmd.Context(), args[0], superstep)
			} else {
				snap, err = store.Latest(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}

			active := 0
			for _, on := range snap.Active {
				if on {
					active++
				}
			}
			a.printer.KeyValues("Snapshot", [][2]string{
				{"run_id", snap.RunID},
				{"superstep", strconv.Itoa(snap.Superstep)},
				{"nodes", strconv.FormatInt(snap.NodeCount, 10)},
				{"active", strconv.Itoa(active)},
				{"created_at", snap.CreatedAt.Format(time.RFC3339)},
			})
			rows := make([][]string, len(snap.Columns))
			for i, col := range snap.Columns {
				rows[i] = []string{col.Key, col.Type}
			}
			a.printer.Table([]string{"property", "type"}, rows)
			return nil
		},
	}
	show.Flags().IntVar(&superstep, "superstep", 0, "snapshot superstep")

	del := &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete every snapshot of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.printer.Success(fmt.Sprintf("deleted %d snapshots of %s", n, args[0]))
			return nil
		},
	}

	cmd.AddCommand(list, show, del)
	return cmd
}
