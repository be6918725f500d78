// Copyright 2026 The Haulsheet Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads haulsheet options from flags, HAUL_ environment
// variables and an optional config file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Option keys.
const (
	KeySheetID          = "sheet_id"
	KeyTabs             = "tabs"
	KeyFetchMode        = "fetch_mode"
	KeyRefreshInterval  = "refresh_interval"
	KeyFetchTimeout     = "fetch_timeout"
	KeyTieEpsilonMeters = "tie_epsilon_meters"
	KeyMaxConcurrency   = "max_concurrency"
	KeyDBPath           = "db_path"
	KeyListen           = "listen"
	KeyGoogleMapsAPIKey = "google_maps_api_key"
	KeyGoogleMapsRegion = "google_maps_region"
	KeySheetsAPIKey     = "sheets_api_key"
	KeyUserAgent        = "user_agent"
	KeyTraceHTTP        = "trace_http"
)

// Fetch modes.
const (
	FetchModeCSV = "csv"
	FetchModeAPI = "api"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "HAUL"

// Config holds the resolved options.
type Config struct {
	SheetID          string
	Tabs             []string
	// TabGIDs holds the gid of tabs configured as "name=gid".
	TabGIDs          map[string]string
	FetchMode        string
	RefreshInterval  time.Duration
	FetchTimeout     time.Duration
	TieEpsilonMeters float64
	MaxConcurrency   int
	DBPath           string
	Listen           string
	GoogleMapsAPIKey string
	GoogleMapsRegion string
	SheetsAPIKey     string
	UserAgent        string
	TraceHTTP        bool
}

// New returns a viper instance with defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyFetchMode, FetchModeCSV)
	v.SetDefault(KeyRefreshInterval, 15*time.Minute)
	v.SetDefault(KeyFetchTimeout, 20*time.Second)
	v.SetDefault(KeyTieEpsilonMeters, 1.0)
	v.SetDefault(KeyMaxConcurrency, 4)
	v.SetDefault(KeyDBPath, "haulsheet.duckdb")
	v.SetDefault(KeyListen, ":8080")
	v.SetDefault(KeyGoogleMapsRegion, "ca")
	v.SetDefault(KeyUserAgent, "haulsheet")

	// the Maps key is commonly provisioned without our prefix
	_ = v.BindEnv(KeyGoogleMapsAPIKey, EnvPrefix+"_GOOGLE_MAPS_API_KEY", "GOOGLE_MAPS_API_KEY")

	return v
}

// BindFlags binds every flag of flags whose name, with dashes as underscores,
// is an option key.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var errs []error

	flags.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil {
			errs = append(errs, fmt.Errorf("binding flag %s: %w", f.Name, err))
		}
	})

	return errors.Join(errs...)
}

// ReadFile merges the config file at path, if any.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}

	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	return nil
}

// splitList accepts both lists and comma separated strings.
func splitList(values []string) []string {
	var ret []string

	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				ret = append(ret, part)
			}
		}
	}

	return ret
}

// splitTabs separates "name=gid" entries into tab names and their gids.
func splitTabs(entries []string) ([]string, map[string]string) {
	var (
		tabs []string
		gids = map[string]string{}
	)

	for _, e := range entries {
		name, gid, _ := strings.Cut(e, "=")
		name, gid = strings.TrimSpace(name), strings.TrimSpace(gid)

		if name == "" {
			continue
		}

		tabs = append(tabs, name)
		if gid != "" {
			gids[name] = gid
		}
	}

	return tabs, gids
}

// Load resolves the options from v.
func Load(v *viper.Viper) *Config {
	tabs, gids := splitTabs(splitList(v.GetStringSlice(KeyTabs)))

	return &Config{
		SheetID:          v.GetString(KeySheetID),
		Tabs:             tabs,
		TabGIDs:          gids,
		FetchMode:        strings.ToLower(v.GetString(KeyFetchMode)),
		RefreshInterval:  v.GetDuration(KeyRefreshInterval),
		FetchTimeout:     v.GetDuration(KeyFetchTimeout),
		TieEpsilonMeters: v.GetFloat64(KeyTieEpsilonMeters),
		MaxConcurrency:   v.GetInt(KeyMaxConcurrency),
		DBPath:           v.GetString(KeyDBPath),
		Listen:           v.GetString(KeyListen),
		GoogleMapsAPIKey: v.GetString(KeyGoogleMapsAPIKey),
		GoogleMapsRegion: v.GetString(KeyGoogleMapsRegion),
		SheetsAPIKey:     v.GetString(KeySheetsAPIKey),
		UserAgent:        v.GetString(KeyUserAgent),
		TraceHTTP:        v.GetBool(KeyTraceHTTP),
	}
}

// ValidateRefresh checks the options needed to fetch the sheet.
func (c *Config) ValidateRefresh() error {
	var errs []error

	if c.SheetID == "" {
		errs = append(errs, errors.New("sheet id is required"))
	}

	if len(c.Tabs) == 0 {
		errs = append(errs, errors.New("at least one tab is required"))
	}

	for tab, gid := range c.TabGIDs {
		if strings.Trim(gid, "0123456789") != "" {
			errs = append(errs, fmt.Errorf("tab %s: gid must be numeric, got %q", tab, gid))
		}
	}

	if c.FetchMode != FetchModeCSV && c.FetchMode != FetchModeAPI {
		errs = append(errs, fmt.Errorf("unknown fetch mode %q", c.FetchMode))
	}

	if c.RefreshInterval <= 0 {
		errs = append(errs, fmt.Errorf("refresh interval must be positive, got %s", c.RefreshInterval))
	}

	if c.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("fetch timeout must be positive, got %s", c.FetchTimeout))
	}

	if c.TieEpsilonMeters < 0 {
		errs = append(errs, fmt.Errorf("tie epsilon must not be negative, got %v", c.TieEpsilonMeters))
	}

	return errors.Join(errs...)
}
