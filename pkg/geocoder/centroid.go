package geocoder

import (
	"context"

	"github.com/ladleio/ladle/pkg/usgeo"
)

// Centroid is the synthetic last-resort provider: it places an address
// at its state's centroid. No network, never fails, lowest precision.
// The validator prices centroid results accordingly.
type Centroid struct{}

// NewCentroid returns the centroid fallback provider
func NewCentroid() *Centroid { return &Centroid{} }

func (g *Centroid) Name() string      { return ProviderCentroid }
func (g *Centroid) Precision() string { return PrecisionLowest }

// Geocode resolves the address state (directly or via ZIP) and returns
// the state centroid
func (g *Centroid) Geocode(_ context.Context, addr Address) (*Result, error) {
	code, ok := usgeo.StateCode(addr.State)
	if !ok {
		code, ok = usgeo.StateForZIP(addr.PostalCode)
	}
	if !ok {
		return nil, ErrNoMatch
	}
	lat, lng, ok := usgeo.Centroid(code)
	if !ok {
		return nil, ErrNoMatch
	}
	return &Result{
		Latitude:  lat,
		Longitude: lng,
		Provider:  ProviderCentroid,
		Precision: PrecisionLowest,
	}, nil
}

// Reverse answers from the state bounding-box table
func (g *Centroid) Reverse(_ context.Context, lat, lng float64) (*Address, error) {
	code, ok := usgeo.StateForCoords(lat, lng)
	if !ok {
		return nil, ErrNoMatch
	}
	return &Address{State: code}, nil
}
