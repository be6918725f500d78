// Copyright 2026 The Haulsheet Authors
// SPDX-License-Identifier: Apache-2.0

// Package geo resolves addresses to coordinates and finds the vendor location
// closest to a customer.
package geo

import (
	"context"

	"github.com/jcodagnone/haulsheet/spatial"
)

// Geocoder resolves a free text address. Unresolvable addresses fail with a
// *GeocodeError of type ErrorTypeNotFound.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (spatial.Point, error)
}

// GeocoderFunc adapts a function to the Geocoder interface.
type GeocoderFunc func(ctx context.Context, address string) (spatial.Point, error)

// Geocode calls f.
func (f GeocoderFunc) Geocode(ctx context.Context, address string) (spatial.Point, error) {
	return f(ctx, address)
}
