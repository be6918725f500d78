// Copyright 2026 The Haulsheet Authors
// SPDX-License-Identifier: Apache-2.0

package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/jcodagnone/haulsheet/spatial"
	"github.com/jcodagnone/haulsheet/utils/htmlutils"
)

// DefaultGoogleMapsURL is the Geocoding API endpoint.
const DefaultGoogleMapsURL = "https://maps.googleapis.com/maps/api/geocode/json"

// GoogleMapsGeocoder uses the Google Maps Geocoding API.
type GoogleMapsGeocoder struct {
	apiKey     string
	baseURL    string
	region     string
	httpClient *http.Client
}

// NewGoogleMapsGeocoder creates a geocoder biased to region (a ccTLD like "ca";
// empty for no bias).
func NewGoogleMapsGeocoder(apiKey, region string, client *http.Client) *GoogleMapsGeocoder {
	if client == nil {
		client = http.DefaultClient
	}

	return &GoogleMapsGeocoder{
		apiKey:     apiKey,
		baseURL:    DefaultGoogleMapsURL,
		region:     region,
		httpClient: client,
	}
}

type googleMapsResponse struct {
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
		FormattedAddress string `json:"formatted_address"`
	} `json:"results"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

// Geocode implements Geocoder.
func (g *GoogleMapsGeocoder) Geocode(ctx context.Context, address string) (spatial.Point, error) {
	params := url.Values{}
	params.Set("address", address)
	params.Set("key", g.apiKey)

	if g.region != "" {
		params.Set("region", g.region)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return spatial.Point{}, &GeocodeError{Type: ErrorTypeInvalidRequest, Message: "building request", Err: err}
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		t := ErrorTypeNetworkError

		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			t = ErrorTypeTimeout
		}

		return spatial.Point{}, &GeocodeError{Type: t, Message: "geocoding request failed", Err: err}
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return spatial.Point{}, ClassifyHTTPError(resp.StatusCode)
	}

	body, err := htmlutils.AsReader(resp, "application/json")
	if err != nil {
		return spatial.Point{}, &GeocodeError{Type: ErrorTypeUnknown, Message: "reading response", Err: err}
	}

	var gmResp googleMapsResponse
	if err := json.NewDecoder(body).Decode(&gmResp); err != nil {
		return spatial.Point{}, &GeocodeError{Type: ErrorTypeUnknown, Message: "decoding response", Err: err}
	}

	if gmResp.Status != "OK" {
		return spatial.Point{}, ClassifyAPIStatus(gmResp.Status, gmResp.ErrorMessage)
	}

	if len(gmResp.Results) == 0 {
		return spatial.Point{}, &GeocodeError{
			Type:    ErrorTypeNotFound,
			Message: fmt.Sprintf("no results found for address: %s", address),
		}
	}

	loc := gmResp.Results[0].Geometry.Location

	return spatial.Point{Lat: loc.Lat, Lng: loc.Lng}, nil
}
