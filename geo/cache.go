// Copyright 2026 The Haulsheet Authors
// SPDX-License-Identifier: Apache-2.0

package geo

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/jcodagnone/haulsheet/metrics"
	"github.com/jcodagnone/haulsheet/spatial"
	"github.com/jcodagnone/haulsheet/utils/textutils"
)

// CoordinateStore persists resolved coordinates across restarts.
type CoordinateStore interface {
	LoadCoordinates(ctx context.Context) (map[string]spatial.Point, error)
	SaveCoordinate(ctx context.Context, key, address string, p spatial.Point) error
}

// CoordinateCache memoizes geocoding results by normalized address. Entries never
// expire. Two callers missing on the same address may both call the geocoder;
// the last write wins, and both results describe the same address.
type CoordinateCache struct {
	geocoder Geocoder
	store    CoordinateStore
	metrics  *metrics.Recorder

	mu     sync.RWMutex
	points map[string]spatial.Point
}

// NewCoordinateCache creates a cache in front of geocoder. store and recorder are optional.
func NewCoordinateCache(geocoder Geocoder, store CoordinateStore, recorder *metrics.Recorder) *CoordinateCache {
	return &CoordinateCache{
		geocoder: geocoder,
		store:    store,
		metrics:  recorder,
		points:   map[string]spatial.Point{},
	}
}

// Warm loads the coordinates kept in the store.
func (c *CoordinateCache) Warm(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	points, err := c.store.LoadCoordinates(ctx)
	if err != nil {
		return fmt.Errorf("loading coordinates: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for k, p := range points {
		c.points[k] = p
	}

	log.Debug().Int("count", len(points)).Msg("coordinate cache warmed")

	return nil
}

// Lookup returns the cached coordinate for address without geocoding.
func (c *CoordinateCache) Lookup(address string) (spatial.Point, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.points[textutils.NormalizeKey(address)]

	return p, ok
}

// Len returns the number of cached coordinates.
func (c *CoordinateCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.points)
}

// Resolve returns the coordinate of address, geocoding it on a miss.
func (c *CoordinateCache) Resolve(ctx context.Context, address string) (spatial.Point, error) {
	key := textutils.NormalizeKey(address)
	if key == "" {
		return spatial.Point{}, &GeocodeError{Type: ErrorTypeInvalidRequest, Message: "empty address"}
	}

	c.mu.RLock()
	p, ok := c.points[key]
	c.mu.RUnlock()

	if ok {
		c.metrics.RecordLookup(metrics.LookupHit)

		return p, nil
	}

	p, err := c.geocoder.Geocode(ctx, address)
	if err == nil && !p.Valid() {
		err = &GeocodeError{Type: ErrorTypeUnknown, Message: fmt.Sprintf("geocoder returned invalid point %s", p)}
	}

	if err != nil {
		c.metrics.RecordLookup(metrics.LookupError)

		return spatial.Point{}, err
	}

	c.metrics.RecordLookup(metrics.LookupMiss)

	c.mu.Lock()
	c.points[key] = p
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.SaveCoordinate(ctx, key, address, p); err != nil {
			log.Warn().Err(err).Str("address", address).Msg("saving coordinate")
		}
	}

	return p, nil
}
