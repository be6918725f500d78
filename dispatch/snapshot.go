// Copyright 2026 The Haulsheet Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch publishes parsed vendor locations as immutable snapshots and
// keeps them fresh in the background.
package dispatch

import (
	"maps"
	"slices"
	"sync/atomic"
	"time"

	"github.com/jcodagnone/haulsheet/calendar"
)

// Snapshot is an immutable view of every known location. Nothing reachable from
// a published snapshot is modified afterwards.
type Snapshot struct {
	version   uint64
	createdAt time.Time
	cycleID   string
	records   map[string]*calendar.LocationRecord
	warnings  map[string][]string
}

// NewSnapshot builds a snapshot from records keyed by tab id. The maps are copied.
func NewSnapshot(
	version uint64,
	createdAt time.Time,
	cycleID string,
	records map[string]*calendar.LocationRecord,
	warnings map[string][]string,
) *Snapshot {
	s := &Snapshot{
		version:   version,
		createdAt: createdAt,
		cycleID:   cycleID,
		records:   maps.Clone(records),
		warnings:  make(map[string][]string, len(warnings)),
	}

	if s.records == nil {
		s.records = map[string]*calendar.LocationRecord{}
	}

	for tab, w := range warnings {
		if len(w) > 0 {
			s.warnings[tab] = slices.Clone(w)
		}
	}

	return s
}

// Version increases by one on every publish. The empty snapshot has version 0.
func (s *Snapshot) Version() uint64 { return s.version }

// CreatedAt is the time the snapshot was assembled.
func (s *Snapshot) CreatedAt() time.Time { return s.createdAt }

// CycleID identifies the refresh cycle that built the snapshot.
func (s *Snapshot) CycleID() string { return s.cycleID }

// Len returns the number of records.
func (s *Snapshot) Len() int { return len(s.records) }

// Record returns the record of tabID.
func (s *Snapshot) Record(tabID string) (*calendar.LocationRecord, bool) {
	r, ok := s.records[tabID]

	return r, ok
}

// Records returns every record ordered by tab id.
func (s *Snapshot) Records() []*calendar.LocationRecord {
	ret := make([]*calendar.LocationRecord, 0, len(s.records))
	for _, tab := range slices.Sorted(maps.Keys(s.records)) {
		ret = append(ret, s.records[tab])
	}

	return ret
}

// Warnings returns the warnings the refresh cycle attached to tabID.
func (s *Snapshot) Warnings(tabID string) []string {
	return slices.Clone(s.warnings[tabID])
}

// TabStatus is the refresh outcome of one tab.
type TabStatus struct {
	// Status is the parse status of the served record, or MISSING when there is none.
	Status string `json:"status"`
	// Stale is set when the served record comes from an earlier cycle.
	Stale    bool     `json:"stale"`
	Warnings []string `json:"warnings,omitempty"`
}

// RefreshStatus summarizes the last published refresh.
type RefreshStatus struct {
	Version     uint64               `json:"version"`
	RefreshedAt time.Time            `json:"refreshed_at"`
	CycleID     string               `json:"cycle_id,omitempty"`
	Tabs        map[string]TabStatus `json:"tabs"`
}

// Status describes the snapshot per tab.
func (s *Snapshot) Status() RefreshStatus {
	ret := RefreshStatus{
		Version:     s.version,
		RefreshedAt: s.createdAt,
		CycleID:     s.cycleID,
		Tabs:        make(map[string]TabStatus, len(s.records)),
	}

	for tab, r := range s.records {
		ret.Tabs[tab] = TabStatus{
			Status:   r.Status.String(),
			Stale:    !r.RefreshedAt.Equal(s.createdAt),
			Warnings: s.Warnings(tab),
		}
	}

	for tab, w := range s.warnings {
		if _, ok := s.records[tab]; !ok {
			ret.Tabs[tab] = TabStatus{Status: "MISSING", Warnings: slices.Clone(w)}
		}
	}

	return ret
}

var emptySnapshot = NewSnapshot(0, time.Time{}, "", nil, nil)

// Cache holds the current snapshot. Readers never block and never see a
// partially built snapshot.
type Cache struct {
	current atomic.Pointer[Snapshot]
}

// NewCache returns a cache serving the empty snapshot.
func NewCache() *Cache {
	c := &Cache{}
	c.current.Store(emptySnapshot)

	return c
}

// Snapshot returns the current snapshot. It is never nil.
func (c *Cache) Snapshot() *Snapshot {
	if s := c.current.Load(); s != nil {
		return s
	}

	return emptySnapshot
}

// Publish makes s the current snapshot.
func (c *Cache) Publish(s *Snapshot) {
	if s == nil {
		return
	}

	c.current.Store(s)
}
