// Copyright 2026 The Haulsheet Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/jcodagnone/haulsheet/config"
	"github.com/jcodagnone/haulsheet/dispatch"
	"github.com/spf13/cobra"
)

var refreshNoArchive bool

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run one refresh cycle and print the outcome of each tab",
	Long: `
refresh fetches and parses every configured tab once. Unless --no-archive is
given the previous snapshot is restored from the database first, so tabs that
fail keep their last good record, and the new snapshot is archived.
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		cfg := config.Load(settings)
		cache := dispatch.NewCache()

		var archive dispatch.Archive

		if !refreshNoArchive {
			st, err := openStore(ctx, cfg, cache)
			if err != nil {
				return err
			}
			defer st.Close()

			archive = st
		}

		scheduler, bar, err := newScheduler(ctx, cfg, cache, archive, nil, true)
		if err != nil {
			return err
		}

		snap, err := scheduler.Refresh(ctx)
		if bar != nil {
			_ = bar.Finish()
		}

		if err != nil {
			return err
		}

		return printStatus(cmd.OutOrStdout(), snap.Status())
	},
}

func printStatus(w io.Writer, status dispatch.RefreshStatus) error {
	fmt.Fprintf(w, "version %d refreshed at %s (cycle %s)\n\n",
		status.Version, status.RefreshedAt.Format("2006-01-02 15:04:05"), status.CycleID)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TAB\tSTATUS\tSTALE\tWARNINGS")

	for _, tab := range slices.Sorted(maps.Keys(status.Tabs)) {
		s := status.Tabs[tab]

		stale := ""
		if s.Stale {
			stale = "yes"
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", tab, s.Status, stale, strings.Join(s.Warnings, "; "))
	}

	return tw.Flush()
}

func init() {
	refreshCmd.Flags().BoolVar(&refreshNoArchive, "no-archive", false, "neither restore nor archive snapshots")
	rootCmd.AddCommand(refreshCmd)
}
