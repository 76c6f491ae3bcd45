// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/litminer/internal/checkpoint"
	"github.com/pdiddy/litminer/pkg/types"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect or edit the checkpoint",
	Long: `The checkpoint is an append-only JSON Lines file with one entry per
finished record. Records with an entry are skipped by later runs; clearing
entries makes those records run again.`,
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Summarize checkpoint entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := checkpointPath(cmd)
		if err != nil {
			return err
		}
		entries, report, err := checkpoint.Load(path)
		if err != nil {
			return err
		}

		var ok, failed int
		byKind := make(map[types.ErrorKind]int)
		runs := make(map[string]int)
		for _, e := range entries {
			if e.Status == types.StatusSuccess {
				ok++
			} else {
				failed++
				byKind[e.ErrorKind]++
			}
			runs[e.RunID]++
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "checkpoint: %s\n", path)
		fmt.Fprintf(w, "entries: %d (succeeded: %d, failed: %d) in %d run(s)\n", len(entries), ok, failed, len(runs))
		printFailures(w, byKind)
		if report.Corrupt > 0 {
			fmt.Fprintf(w, "corrupt lines: %d\n", report.Corrupt)
		}
		if report.Uncommitted > 0 {
			fmt.Fprintf(w, "unfinished flush: %d lines (dropped on next run)\n", report.Uncommitted)
		}
		if report.TruncatedTail {
			fmt.Fprintln(w, "partial last line: yes (dropped on next run)")
		}

		if showFailed, _ := cmd.Flags().GetBool("failures"); showFailed {
			ids := make([]string, 0, failed)
			for id, e := range entries {
				if e.Status == types.StatusFailure {
					ids = append(ids, id)
				}
			}
			sort.Strings(ids)
			for _, id := range ids {
				e := entries[id]
				fmt.Fprintf(w, "failed  %s: %s: %s\n", id, e.ErrorKind, e.Message)
			}
		}
		return nil
	},
}

var checkpointClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove entries so their records are processed again",
	Long: `Clear rewrites the checkpoint without the selected entries. Select with
--all, --failures, --kind, or --id. With no selection the file is only
compacted: corrupt, partial, and superseded lines are dropped. Do not run
clear while a run is using the checkpoint.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := checkpointPath(cmd)
		if err != nil {
			return err
		}

		var f checkpoint.Filter
		f.All, _ = cmd.Flags().GetBool("all")
		f.Failures, _ = cmd.Flags().GetBool("failures")
		kinds, _ := cmd.Flags().GetStringSlice("kind")
		for _, k := range kinds {
			f.Kinds = append(f.Kinds, types.ErrorKind(strings.TrimSpace(k)))
		}
		f.IDs, _ = cmd.Flags().GetStringSlice("id")

		rep, err := checkpoint.Clear(path, f)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed: %d, kept: %d, dropped lines: %d\n", rep.Removed, rep.Kept, rep.Dropped)
		return nil
	},
}

func checkpointPath(cmd *cobra.Command) (string, error) {
	if err := bindFlags(cmd); err != nil {
		return "", err
	}
	return viper.GetString("checkpoint.path"), nil
}

func init() {
	addCheckpointFlags(checkpointShowCmd)
	checkpointShowCmd.Flags().Bool("failures", false, "list failed records")

	addCheckpointFlags(checkpointClearCmd)
	checkpointClearCmd.Flags().Bool("all", false, "remove every entry")
	checkpointClearCmd.Flags().Bool("failures", false, "remove failed entries")
	checkpointClearCmd.Flags().StringSlice("kind", nil, "remove failed entries of these error kinds (e.g. parse,transient_api)")
	checkpointClearCmd.Flags().StringSlice("id", nil, "remove entries for these record ids")

	checkpointCmd.AddCommand(checkpointShowCmd)
	checkpointCmd.AddCommand(checkpointClearCmd)
	rootCmd.AddCommand(checkpointCmd)
}
