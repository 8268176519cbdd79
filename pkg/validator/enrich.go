package validator

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ladleio/ladle/pkg/geocoder"
	"github.com/ladleio/ladle/pkg/hsds"
	"github.com/ladleio/ladle/pkg/log"
	"github.com/ladleio/ladle/pkg/usgeo"
)

// Enricher fills missing or implausible coordinates by geocoding the
// record's address, resolves the state the coordinates land in, and
// corrects the written state when the geocoder contradicts it. It
// mutates the record in place and returns the provenance the scorer
// needs.
type Enricher struct {
	geo *geocoder.Service
	log zerolog.Logger
}

// NewEnricher builds an enricher. A nil service disables geocoding;
// records are then scored exactly as aligned.
func NewEnricher(geo *geocoder.Service) *Enricher {
	return &Enricher{geo: geo, log: log.WithComponent("validator")}
}

// Enrich runs the enrichment sequence on one record. A returned error
// means the geocoder chain was unreachable and the job should be
// retried; definitive no-match answers are not errors, the scorer
// handles them.
func (e *Enricher) Enrich(ctx context.Context, rec *hsds.AlignedRecord) (*Provenance, error) {
	normalizeState(rec)

	prov := &Provenance{}
	if e.geo != nil && needsGeocode(rec) && geocodable(rec) {
		res, err := e.geo.Geocode(ctx, addressOf(rec))
		switch {
		case err == nil:
			lat, lng := res.Latitude, res.Longitude
			rec.Location.Latitude = &lat
			rec.Location.Longitude = &lng
			prov.Provider = res.Provider
			prov.Precision = res.Precision
			prov.Fallback = res.Fallback
		case errors.Is(err, geocoder.ErrNotGeocodable):
			e.log.Debug().Str("address", addressOf(rec).OneLine()).Msg("address not geocodable")
		default:
			return nil, err
		}
	}

	e.resolveCoordState(ctx, rec, prov)
	e.correctState(rec, prov)
	return prov, nil
}

// needsGeocode reports whether the record's coordinates are absent or
// implausible enough to replace
func needsGeocode(rec *hsds.AlignedRecord) bool {
	if rec.Location == nil {
		return false
	}
	if !rec.HasCoordinates() {
		return true
	}
	lat, lng := *rec.Location.Latitude, *rec.Location.Longitude
	return usgeo.IsNullIsland(lat, lng) || !usgeo.InBounds(lat, lng)
}

// geocodable requires at least an address line and a city, the minimum
// a provider can usefully match
func geocodable(rec *hsds.AlignedRecord) bool {
	return rec.Location != nil &&
		strings.TrimSpace(rec.Location.Address1) != "" &&
		strings.TrimSpace(rec.Location.City) != ""
}

func addressOf(rec *hsds.AlignedRecord) geocoder.Address {
	return geocoder.Address{
		Line1:      rec.Location.Address1,
		City:       rec.Location.City,
		State:      rec.Location.StateProvince,
		PostalCode: rec.Location.PostalCode,
	}
}

// resolveCoordState answers "which state do these coordinates sit in".
// The local bounding-box table answers first; reverse geocoding covers
// points the table cannot place. Reverse failures only cost the state
// check, never the job.
func (e *Enricher) resolveCoordState(ctx context.Context, rec *hsds.AlignedRecord, prov *Provenance) {
	if !rec.HasCoordinates() {
		return
	}
	lat, lng := *rec.Location.Latitude, *rec.Location.Longitude
	if code, ok := usgeo.StateForCoords(lat, lng); ok {
		prov.CoordState = code
		return
	}
	if e.geo == nil {
		return
	}
	addr, err := e.geo.Reverse(ctx, lat, lng)
	if err != nil {
		if !errors.Is(err, geocoder.ErrNotResolvable) {
			e.log.Debug().Err(err).Msg("reverse geocode unavailable for state check")
		}
		return
	}
	if code, ok := usgeo.StateCode(addr.State); ok {
		prov.CoordState = code
	}
}

// correctState rewrites the written state when this enricher geocoded
// the record and the coordinates land elsewhere. A ZIP that backs the
// written state vetoes the correction; the mismatch then stands and
// the scorer deducts for it. Source-stated coordinates are never
// corrected.
func (e *Enricher) correctState(rec *hsds.AlignedRecord, prov *Provenance) {
	if prov.Provider == "" || prov.CoordState == "" || rec.Location == nil {
		return
	}
	written, ok := usgeo.StateCode(rec.Location.StateProvince)
	if !ok {
		rec.Location.StateProvince = prov.CoordState
		return
	}
	if written == prov.CoordState {
		return
	}
	if zipState, zok := usgeo.StateForZIP(rec.Location.PostalCode); zok && zipState == written {
		return
	}
	e.log.Debug().Str("written", written).Str("coord_state", prov.CoordState).
		Msg("correcting state from coordinates")
	rec.Location.StateProvince = prov.CoordState
}

// normalizeState maps full state names and sloppy codes to USPS
// two-letter codes; unrecognized strings become empty
func normalizeState(rec *hsds.AlignedRecord) {
	if rec.Location == nil || strings.TrimSpace(rec.Location.StateProvince) == "" {
		return
	}
	if code, ok := usgeo.StateCode(rec.Location.StateProvince); ok {
		rec.Location.StateProvince = code
	} else {
		rec.Location.StateProvince = ""
	}
}
