// Copyright 2026 The Haulsheet Authors
// SPDX-License-Identifier: Apache-2.0

package geo

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jcodagnone/haulsheet/calendar"
	"github.com/jcodagnone/haulsheet/spatial"
)

// DefaultTieEpsilon is the distance, in meters, under which two candidates are
// considered equally close.
const DefaultTieEpsilon = 1.0

// Match is the location chosen for an address.
type Match struct {
	TabID          string        `json:"tab_id"`
	DistanceMeters float64       `json:"distance_meters"`
	Point          spatial.Point `json:"point"`
	Cell           string        `json:"h3_cell,omitempty"`
}

// Matcher finds the location closest to an address.
type Matcher struct {
	Cache *CoordinateCache
	// Epsilon is the tie distance in meters.
	Epsilon float64
}

// NewMatcher creates a matcher resolving addresses through cache.
func NewMatcher(cache *CoordinateCache, epsilon float64) *Matcher {
	if epsilon < 0 {
		epsilon = 0
	}

	return &Matcher{Cache: cache, Epsilon: epsilon}
}

type candidate struct {
	tabID    string
	point    spatial.Point
	distance float64
}

// resolveErrorLevel picks the log level of a failed lookup: unknown addresses are
// routine, throttling and quota problems affect every query.
func resolveErrorLevel(err error) zerolog.Level {
	switch {
	case IsRateLimitError(err), IsQuotaExceededError(err), IsTimeoutError(err):
		return zerolog.WarnLevel
	case IsNotFoundError(err):
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

// FindClosest returns the usable record nearest to address. Among candidates
// within Epsilon of the minimum distance, the smallest tab id wins. It returns
// false when the address can't be resolved or no usable record has a resolvable
// address.
func (m *Matcher) FindClosest(ctx context.Context, address string, records []*calendar.LocationRecord) (Match, bool) {
	origin, err := m.Cache.Resolve(ctx, address)
	if err != nil {
		log.WithLevel(resolveErrorLevel(err)).Err(err).Str("address", address).Msg("query address not resolved")

		return Match{}, false
	}

	var candidates []candidate

	for _, r := range records {
		if !r.Usable() || r.StreetAddress == "" {
			continue
		}

		p, err := m.Cache.Resolve(ctx, r.StreetAddress)
		if err != nil {
			log.WithLevel(resolveErrorLevel(err)).Err(err).Str("tab", r.TabID).Msg("location address not resolved")

			continue
		}

		candidates = append(candidates, candidate{tabID: r.TabID, point: p, distance: origin.HaversineDistance(p)})
	}

	if len(candidates) == 0 {
		return Match{}, false
	}

	minDistance := candidates[0].distance
	for _, c := range candidates[1:] {
		minDistance = min(minDistance, c.distance)
	}

	var best *candidate

	for i := range candidates {
		c := &candidates[i]
		if c.distance-minDistance > m.Epsilon {
			continue
		}

		if best == nil || c.tabID < best.tabID {
			best = c
		}
	}

	match := Match{TabID: best.tabID, DistanceMeters: best.distance, Point: best.point}

	if cell, err := best.point.Cell(spatial.DefaultCellResolution); err == nil {
		match.Cell = fmt.Sprintf("%x", cell)
	}

	return match, true
}
