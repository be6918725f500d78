// Copyright 2026 The Haulsheet Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes refresh and geocoding counters to Prometheus.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder records refresh cycles and geocoding lookups.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	cycles   *prometheus.CounterVec
	duration prometheus.Histogram
	tabs     *prometheus.CounterVec
	version  prometheus.Gauge
	lookups  *prometheus.CounterVec
}

// register adds c to reg, returning the collector already registered under the
// same description when there is one.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}

		return c, err
	}

	return c, nil
}

// NewRecorder registers the collectors on reg. If reg is nil, the default
// registerer is used.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	cycles, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "haulsheet_refresh_cycles_total",
		Help: "Refresh cycles by outcome",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}

	duration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "haulsheet_refresh_duration_seconds",
		Help:    "Wall time of a refresh cycle",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	}))
	if err != nil {
		return nil, err
	}

	tabs, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "haulsheet_tab_results_total",
		Help: "Per tab refresh results",
	}, []string{"status"}))
	if err != nil {
		return nil, err
	}

	version, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "haulsheet_snapshot_version",
		Help: "Version of the published dispatch snapshot",
	}))
	if err != nil {
		return nil, err
	}

	lookups, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "haulsheet_geocode_lookups_total",
		Help: "Address resolutions by result",
	}, []string{"result"}))
	if err != nil {
		return nil, err
	}

	return &Recorder{
		cycles:   cycles,
		duration: duration,
		tabs:     tabs,
		version:  version,
		lookups:  lookups,
	}, nil
}

// Cycle outcomes.
const (
	CyclePublished = "published"
	CycleFailed    = "failed"
)

// RecordCycle records one refresh cycle.
func (r *Recorder) RecordCycle(outcome string, d time.Duration) {
	if r == nil {
		return
	}

	r.cycles.WithLabelValues(outcome).Inc()
	r.duration.Observe(d.Seconds())
}

// RecordTab counts one tab result, e.g. "OK", "PARTIAL", "FAILED", "fetch_error" or "carried".
func (r *Recorder) RecordTab(status string) {
	if r == nil {
		return
	}

	r.tabs.WithLabelValues(status).Inc()
}

// SetVersion exports the current snapshot version.
func (r *Recorder) SetVersion(v uint64) {
	if r == nil {
		return
	}

	r.version.Set(float64(v))
}

// Geocode lookup results.
const (
	LookupHit   = "hit"
	LookupMiss  = "miss"
	LookupError = "error"
)

// RecordLookup counts one coordinate cache lookup.
func (r *Recorder) RecordLookup(result string) {
	if r == nil {
		return
	}

	r.lookups.WithLabelValues(result).Inc()
}
