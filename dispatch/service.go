// Copyright 2026 The Haulsheet Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"

	"github.com/jcodagnone/haulsheet/calendar"
	"github.com/jcodagnone/haulsheet/geo"
)

// Service answers dispatch queries from the current snapshot. Every query reads
// exactly one snapshot.
type Service struct {
	cache     *Cache
	matcher   *geo.Matcher
	scheduler *Scheduler
}

// NewService creates a Service. scheduler may be nil, in which case
// TriggerRefresh does nothing.
func NewService(cache *Cache, matcher *geo.Matcher, scheduler *Scheduler) *Service {
	return &Service{cache: cache, matcher: matcher, scheduler: scheduler}
}

// Snapshot returns the snapshot currently served.
func (s *Service) Snapshot() *Snapshot {
	return s.cache.Snapshot()
}

// ClosestLocation returns the location nearest to address. It returns false when
// the address can't be resolved or no location qualifies.
func (s *Service) ClosestLocation(ctx context.Context, address string) (geo.Match, bool) {
	if s.matcher == nil {
		return geo.Match{}, false
	}

	return s.matcher.FindClosest(ctx, address, s.cache.Snapshot().Records())
}

// GetLocation returns the record of tabID.
func (s *Service) GetLocation(tabID string) (*calendar.LocationRecord, bool) {
	return s.cache.Snapshot().Record(tabID)
}

// Locations returns every record ordered by tab id.
func (s *Service) Locations() []*calendar.LocationRecord {
	return s.cache.Snapshot().Records()
}

// TriggerRefresh requests a refresh cycle and returns immediately.
func (s *Service) TriggerRefresh() {
	if s.scheduler != nil {
		s.scheduler.Trigger()
	}
}

// LastRefreshStatus describes the snapshot currently served.
func (s *Service) LastRefreshStatus() RefreshStatus {
	return s.cache.Snapshot().Status()
}
