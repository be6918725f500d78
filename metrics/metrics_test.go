// Copyright 2026 The Haulsheet Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()

	r, err := NewRecorder(reg)
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}

	r.RecordCycle(CyclePublished, 2*time.Second)
	r.RecordTab("OK")
	r.RecordTab("OK")
	r.RecordTab("carried")
	r.SetVersion(7)
	r.RecordLookup(LookupHit)

	expected := `
# HELP haulsheet_tab_results_total Per tab refresh results
# TYPE haulsheet_tab_results_total counter
haulsheet_tab_results_total{status="OK"} 2
haulsheet_tab_results_total{status="carried"} 1
`
	if err := testutil.CollectAndCompare(r.tabs, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}

	if got := testutil.ToFloat64(r.version); got != 7 {
		t.Errorf("snapshot version = %v, want 7", got)
	}

	if c := testutil.CollectAndCount(r.duration); c != 1 {
		t.Errorf("duration collected %d series, want 1", c)
	}
}

func TestNewRecorder_ReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()

	a, err := NewRecorder(reg)
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}

	b, err := NewRecorder(reg)
	if err != nil {
		t.Fatalf("second NewRecorder() error = %v", err)
	}

	a.RecordLookup(LookupMiss)
	b.RecordLookup(LookupMiss)

	if got := testutil.ToFloat64(a.lookups.WithLabelValues(LookupMiss)); got != 2 {
		t.Errorf("shared counter = %v, want 2", got)
	}
}

func TestNilRecorder(_ *testing.T) {
	var r *Recorder

	r.RecordCycle(CycleFailed, time.Second)
	r.RecordTab("FAILED")
	r.SetVersion(1)
	r.RecordLookup(LookupError)
}
