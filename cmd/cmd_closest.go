// Copyright 2026 The Haulsheet Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jcodagnone/haulsheet/config"
	"github.com/jcodagnone/haulsheet/dispatch"
	"github.com/jcodagnone/haulsheet/geo"
	"github.com/jcodagnone/haulsheet/server"
	"github.com/spf13/cobra"
)

var closestRefresh bool

var errNoLocation = errors.New("no location could be matched")

var closestCmd = &cobra.Command{
	Use:   "closest <address>",
	Short: "Print the location closest to an address",
	Long: `
closest matches an address against the archived snapshot. When nothing has
been archived yet, or with --refresh, the sheet is refreshed first.
`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.Load(settings)
		cache := dispatch.NewCache()

		st, err := openStore(ctx, cfg, cache)
		if err != nil {
			return err
		}
		defer st.Close()

		if closestRefresh || cache.Snapshot().Version() == 0 {
			scheduler, bar, err := newScheduler(ctx, cfg, cache, st, nil, true)
			if err != nil {
				return err
			}

			_, err = scheduler.Refresh(ctx)
			if bar != nil {
				_ = bar.Finish()
			}

			if err != nil {
				return err
			}
		}

		geocoder, err := newGeocoder(ctx, cfg, newHTTPClient(cfg))
		if err != nil {
			return err
		}

		coordinates := geo.NewCoordinateCache(geocoder, st, nil)
		if err := coordinates.Warm(ctx); err != nil {
			return fmt.Errorf("loading coordinates: %w", err)
		}

		service := dispatch.NewService(cache, geo.NewMatcher(coordinates, cfg.TieEpsilonMeters), nil)

		address := strings.Join(args, " ")

		match, ok := service.ClosestLocation(ctx, address)
		if !ok {
			return fmt.Errorf("%w: %q", errNoLocation, address)
		}

		record, _ := service.GetLocation(match.TabID)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		return enc.Encode(server.ClosestResponse{Match: match, Location: record})
	},
}

func init() {
	closestCmd.Flags().BoolVar(&closestRefresh, "refresh", false, "refresh the sheet before matching")
	rootCmd.AddCommand(closestCmd)
}
