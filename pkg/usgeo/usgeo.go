package usgeo

import (
	"sort"
	"strings"
)

// Continental plausibility envelope for US food resources. The box is
// intentionally generous: it covers the lower 48 with margin but
// rejects coordinates that landed on another continent or in the
// Gulf of Guinea at (0,0).
const (
	MinLatitude  = 25.0
	MaxLatitude  = 49.0
	MinLongitude = -125.0
	MaxLongitude = -67.0
)

const coordEpsilon = 1e-6

// InBounds reports whether the coordinates fall inside the continental
// US plausibility envelope
func InBounds(lat, lng float64) bool {
	return lat >= MinLatitude && lat <= MaxLatitude &&
		lng >= MinLongitude && lng <= MaxLongitude
}

// IsNullIsland reports whether the coordinates are (0,0), the classic
// failed-geocode sentinel
func IsNullIsland(lat, lng float64) bool {
	return lat > -coordEpsilon && lat < coordEpsilon &&
		lng > -coordEpsilon && lng < coordEpsilon
}

// Bounds is a latitude/longitude bounding box
type Bounds struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// Contains reports whether the point falls inside the box
func (b Bounds) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat &&
		lng >= b.MinLng && lng <= b.MaxLng
}

// StateCode normalizes a state code or full name to its USPS
// two-letter code. Returns false for anything it does not recognize.
func StateCode(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", false
	}
	upper := strings.ToUpper(trimmed)
	if len(upper) == 2 {
		if _, ok := stateNames[upper]; ok {
			return upper, true
		}
		return "", false
	}
	code, ok := nameToCode[upper]
	return code, ok
}

// StateName returns the full name for a USPS two-letter code
func StateName(code string) (string, bool) {
	name, ok := stateNames[strings.ToUpper(strings.TrimSpace(code))]
	return name, ok
}

// StateBounds returns the approximate bounding box for a state
func StateBounds(code string) (Bounds, bool) {
	b, ok := stateBounds[strings.ToUpper(strings.TrimSpace(code))]
	return b, ok
}

// Centroid returns the geographic center of a state. Used as the
// lowest-precision geocoding fallback when every provider fails but
// the record names a recognizable state.
func Centroid(code string) (lat, lng float64, ok bool) {
	c, found := stateCentroids[strings.ToUpper(strings.TrimSpace(code))]
	if !found {
		return 0, 0, false
	}
	return c[0], c[1], true
}

// StateCodes returns every known USPS code in lexical order
func StateCodes() []string {
	codes := make([]string, 0, len(stateNames))
	for code := range stateNames {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// StateForCoords returns the state whose bounding box contains the
// point. State boxes overlap near borders; ties resolve to the state
// whose centroid is closest, which is right far more often than any
// fixed ordering.
func StateForCoords(lat, lng float64) (string, bool) {
	best := ""
	bestDist := 0.0
	for code, b := range stateBounds {
		if !b.Contains(lat, lng) {
			continue
		}
		c, ok := stateCentroids[code]
		if !ok {
			continue
		}
		dLat, dLng := lat-c[0], lng-c[1]
		dist := dLat*dLat + dLng*dLng
		if best == "" || dist < bestDist || (dist == bestDist && code < best) {
			best = code
			bestDist = dist
		}
	}
	return best, best != ""
}

// StateForZIP maps a US postal code to its state via the three-digit
// ZIP prefix. Accepts 5-digit and ZIP+4 forms.
func StateForZIP(zip string) (string, bool) {
	digits := strings.TrimSpace(zip)
	if idx := strings.IndexByte(digits, '-'); idx >= 0 {
		digits = digits[:idx]
	}
	if len(digits) < 3 {
		return "", false
	}
	prefix := 0
	for _, r := range digits[:3] {
		if r < '0' || r > '9' {
			return "", false
		}
		prefix = prefix*10 + int(r-'0')
	}
	for _, zr := range zipRanges {
		if prefix >= zr.lo && prefix <= zr.hi {
			return zr.state, true
		}
	}
	return "", false
}
