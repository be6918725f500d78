// Copyright 2026 The Haulsheet Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/jcodagnone/haulsheet/config"
	"github.com/jcodagnone/haulsheet/dispatch"
	"github.com/jcodagnone/haulsheet/geo"
	"github.com/jcodagnone/haulsheet/metrics"
	"github.com/jcodagnone/haulsheet/sheet"
	"github.com/jcodagnone/haulsheet/store"
	"github.com/jcodagnone/haulsheet/utils/httputils"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
)

func newHTTPClient(cfg *config.Config) *http.Client {
	options := httputils.ClientOptions{
		UserAgent: fmt.Sprintf("%s/%s", cfg.UserAgent, Version),
	}

	if cfg.TraceHTTP {
		options.TraceWriter = os.Stderr
	}

	return httputils.NewClient(options)
}

func newFetcher(ctx context.Context, cfg *config.Config, client *http.Client) (sheet.Fetcher, error) {
	switch cfg.FetchMode {
	case config.FetchModeAPI:
		return sheet.NewSheetsAPIFetcher(ctx, cfg.SheetsAPIKey)
	case config.FetchModeCSV:
		f := sheet.NewCSVExportFetcher(client, "")
		f.SetTabGIDs(cfg.TabGIDs)

		for _, tab := range cfg.Tabs {
			if _, ok := cfg.TabGIDs[tab]; !ok {
				log.Warn().Str("tab", tab).Msg("no gid configured (use name=gid); the by-name export may blank mixed-type cells")
			}
		}

		return f, nil
	default:
		return nil, fmt.Errorf("unknown fetch mode %q", cfg.FetchMode)
	}
}

func newGeocoder(ctx context.Context, cfg *config.Config, client *http.Client) (geo.Geocoder, error) {
	key := cfg.GoogleMapsAPIKey
	if key == "" {
		var err error

		key, err = geo.APIKeyFromADC(ctx, "", geo.DefaultKeyDisplayName)
		if err != nil {
			return nil, fmt.Errorf("no Google Maps API key configured: %w", err)
		}

		log.Info().Msg("using Google Maps API key from default credentials")
	}

	return geo.NewGoogleMapsGeocoder(key, cfg.GoogleMapsRegion, client), nil
}

// openStore opens the archive and publishes its latest snapshot into cache.
func openStore(ctx context.Context, cfg *config.Config, cache *dispatch.Cache) (*store.Store, error) {
	st, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}

	snap, err := st.Restore(ctx)

	switch {
	case err == nil:
		cache.Publish(snap)
		log.Info().
			Uint64("version", snap.Version()).
			Time("created_at", snap.CreatedAt()).
			Int("locations", snap.Len()).
			Msg("restored snapshot")
	case errors.Is(err, store.ErrNoSnapshot):
		log.Debug().Str("db", cfg.DBPath).Msg("no archived snapshot")
	default:
		log.Warn().Err(err).Msg("failed to restore snapshot")
	}

	return st, nil
}

// newScheduler builds the scheduler for cfg. A progress bar follows the tabs
// of each cycle when showProgress is set and stderr is a terminal.
func newScheduler(
	ctx context.Context,
	cfg *config.Config,
	cache *dispatch.Cache,
	archive dispatch.Archive,
	recorder *metrics.Recorder,
	showProgress bool,
) (*dispatch.Scheduler, *progressbar.ProgressBar, error) {
	if err := cfg.ValidateRefresh(); err != nil {
		return nil, nil, err
	}

	fetcher, err := newFetcher(ctx, cfg, newHTTPClient(cfg))
	if err != nil {
		return nil, nil, err
	}

	options := dispatch.Options{
		SheetID:        cfg.SheetID,
		Tabs:           cfg.Tabs,
		Interval:       cfg.RefreshInterval,
		FetchTimeout:   cfg.FetchTimeout,
		MaxConcurrency: cfg.MaxConcurrency,
		Archive:        archive,
		Metrics:        recorder,
	}

	var bar *progressbar.ProgressBar
	if showProgress && isatty.IsTerminal(os.Stderr.Fd()) {
		bar = progressbar.NewOptions(len(cfg.Tabs),
			progressbar.OptionSetDescription("Fetching "+cfg.SheetID),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		options.OnTabDone = func(string) { _ = bar.Add(1) }
	}

	return dispatch.NewScheduler(fetcher, cache, options), bar, nil
}
