// Copyright 2026 The Haulsheet Authors
// SPDX-License-Identifier: Apache-2.0

// Package cmd implements the haul command line.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/jcodagnone/haulsheet/config"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	settings   = config.New()
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "haul",
	Short: "moving truck prices from vendor spreadsheets",
	Long: `
haul reads the per-location calendars that a moving truck vendor publishes as
tabs of a shared spreadsheet, and answers which location is closest to an
address and what it charges on a given day.
`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if err := setupLogging(logLevel); err != nil {
			return err
		}

		return config.ReadFile(settings, configFile)
	},
}

var Version = "dev"

func setupLogging(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	zerolog.SetGlobalLevel(lvl)

	if isatty.IsTerminal(os.Stderr.Fd()) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	return nil
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (yaml, toml or json)")
	flags.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	flags.String("sheet-id", "", "spreadsheet id")
	flags.StringSlice("tabs", nil, "tabs to read, one per location, as name or name=gid")
	flags.String("fetch-mode", settings.GetString(config.KeyFetchMode), "how tabs are fetched: csv or api")
	flags.Duration("refresh-interval", settings.GetDuration(config.KeyRefreshInterval), "time between refresh cycles")
	flags.Duration("fetch-timeout", settings.GetDuration(config.KeyFetchTimeout), "timeout of each tab fetch")
	flags.Float64("tie-epsilon-meters", settings.GetFloat64(config.KeyTieEpsilonMeters),
		"distances closer than this are ties, broken by tab id")
	flags.Int("max-concurrency", settings.GetInt(config.KeyMaxConcurrency), "tabs fetched in parallel")
	flags.String("db-path", settings.GetString(config.KeyDBPath), "DuckDB file keeping snapshots and coordinates")
	flags.String("listen", settings.GetString(config.KeyListen), "HTTP listen address")
	flags.String("google-maps-api-key", "", "Google Maps API key; looked up with ADC when empty")
	flags.String("google-maps-region", settings.GetString(config.KeyGoogleMapsRegion), "geocoding region bias")
	flags.String("sheets-api-key", "", "Google Sheets API key for the api fetch mode")
	flags.String("user-agent", settings.GetString(config.KeyUserAgent), "User-Agent product name")
	flags.Bool("trace-http", false, "dump HTTP transactions to stderr")

	if err := config.BindFlags(settings, flags); err != nil {
		panic(err)
	}
}

func Execute(version string) {
	Version = version

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
