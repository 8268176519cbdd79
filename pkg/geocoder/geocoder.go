package geocoder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ladleio/ladle/pkg/config"
)

// Provider names. The chain is configured by name; centroid is the
// synthetic fallback appended after the HTTP providers.
const (
	ProviderArcGIS    = "arcgis"
	ProviderNominatim = "nominatim"
	ProviderCensus    = "census"
	ProviderCentroid  = "centroid"
)

// Precision labels carried on results. They describe the provider that
// produced the coordinates, not the chain position.
const (
	PrecisionHigh   = "high"
	PrecisionMid    = "mid"
	PrecisionLow    = "low"
	PrecisionLowest = "lowest"
)

var (
	// ErrNoMatch means the provider answered but found no candidate.
	// It does not count as a provider failure.
	ErrNoMatch = errors.New("geocoder: no match")

	// ErrNotGeocodable means the chain completed and no provider could
	// resolve the address
	ErrNotGeocodable = errors.New("geocoder: address not geocodable")

	// ErrNotResolvable means reverse lookup found no address for the
	// coordinates
	ErrNotResolvable = errors.New("geocoder: coordinates not resolvable")

	// ErrUnavailable means the provider was skipped because its circuit
	// is open here or in a sibling process
	ErrUnavailable = errors.New("geocoder: provider unavailable")
)

// Address is the structured input to geocoding and the output of
// reverse lookup
type Address struct {
	Line1      string `json:"line1,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}

// OneLine renders the address as a single comma-joined line, the form
// every HTTP provider accepts
func (a Address) OneLine() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{a.Line1, a.City, a.State, a.PostalCode} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Normalized lowercases and collapses whitespace so that trivially
// different renderings of one address share a cache entry
func (a Address) Normalized() string {
	return strings.Join(strings.Fields(strings.ToLower(a.OneLine())), " ")
}

// CacheKey is the shared cache key for this address. Full hash, no
// truncation: distinct addresses must never collide.
func (a Address) CacheKey() string {
	sum := sha256.Sum256([]byte(a.Normalized()))
	return "geocode:" + hex.EncodeToString(sum[:])
}

func reverseCacheKey(lat, lng float64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("rev:%.6f,%.6f", lat, lng)))
	return "geocode:" + hex.EncodeToString(sum[:])
}

// Result is a successful geocode. Fallback marks results that did not
// come from the first provider in the configured chain; the validator
// prices that in.
type Result struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Provider  string  `json:"provider"`
	Precision string  `json:"precision"`
	Fallback  bool    `json:"fallback,omitempty"`
}

// Provider resolves addresses to coordinates and back. Implementations
// are stateless apart from their HTTP client; rate limiting and circuit
// breaking are layered on by the service.
type Provider interface {
	Name() string
	Precision() string
	Geocode(ctx context.Context, addr Address) (*Result, error)
	Reverse(ctx context.Context, lat, lng float64) (*Address, error)
}

// BaseURLs resolves the configured HTTP providers to the base URLs
// they will call, applying the same defaults the constructors apply.
// Used to aim reachability probes at the real targets; the centroid
// fallback has no URL and is omitted.
func BaseURLs(cfg config.GeocoderConfig) map[string]string {
	urls := make(map[string]string, len(cfg.Providers))
	for _, name := range cfg.Providers {
		switch name {
		case ProviderArcGIS:
			urls[name] = orDefault(cfg.ArcGISURL, defaultArcGISURL)
		case ProviderNominatim:
			urls[name] = orDefault(cfg.NominatimURL, defaultNominatimURL)
		case ProviderCensus:
			urls[name] = orDefault(cfg.CensusURL, defaultCensusURL)
		}
	}
	return urls
}

func orDefault(url, def string) string {
	if url != "" {
		return url
	}
	return def
}
