// Copyright 2026 The Haulsheet Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jcodagnone/haulsheet/config"
	"github.com/jcodagnone/haulsheet/dispatch"
	"github.com/jcodagnone/haulsheet/geo"
	"github.com/jcodagnone/haulsheet/metrics"
	"github.com/jcodagnone/haulsheet/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Refresh the sheet periodically and serve lookups over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg := config.Load(settings)

		recorder, err := metrics.NewRecorder(prometheus.DefaultRegisterer)
		if err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}

		cache := dispatch.NewCache()

		st, err := openStore(ctx, cfg, cache)
		if err != nil {
			return err
		}
		defer st.Close()

		scheduler, _, err := newScheduler(ctx, cfg, cache, st, recorder, false)
		if err != nil {
			return err
		}

		client := newHTTPClient(cfg)

		geocoder, err := newGeocoder(ctx, cfg, client)
		if err != nil {
			return err
		}

		coordinates := geo.NewCoordinateCache(geocoder, st, recorder)
		if err := coordinates.Warm(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to warm coordinate cache")
		}

		service := dispatch.NewService(cache, geo.NewMatcher(coordinates, cfg.TieEpsilonMeters), scheduler)

		errc := make(chan error, 1)

		go func() {
			errc <- scheduler.Run(ctx)
		}()

		log.Info().
			Str("listen", cfg.Listen).
			Str("sheet_id", cfg.SheetID).
			Strs("tabs", cfg.Tabs).
			Dur("interval", scheduler.Interval()).
			Msg("serving")

		err = server.New(service, prometheus.DefaultGatherer).Run(ctx, cfg.Listen)
		stop()

		if schedErr := <-errc; !errors.Is(schedErr, context.Canceled) {
			err = errors.Join(err, schedErr)
		}

		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
