package validator

import (
	"fmt"
	"strings"

	"github.com/ladleio/ladle/pkg/config"
	"github.com/ladleio/ladle/pkg/geocoder"
	"github.com/ladleio/ladle/pkg/hsds"
	"github.com/ladleio/ladle/pkg/types"
	"github.com/ladleio/ladle/pkg/usgeo"
)

// Rule names recorded on rejection rows. Stable: operators filter the
// rejections table by these.
const (
	RuleMissingCoordinates = "missing_coordinates"
	RuleZeroCoordinates    = "zero_coordinates"
	RuleOutOfBounds        = "coordinates_outside_us"
	RuleTestData           = "test_data"
	RulePlaceholderAddress = "placeholder_address"
	RuleStateMismatch      = "state_coordinate_mismatch"
	RuleCentroidPrecision  = "lowest_precision_geocode"
	RuleFallbackPrecision  = "mid_precision_geocode"
	RuleMissingCity        = "missing_city"
	RuleMissingPostal      = "missing_postal_code"
)

// Provenance describes how a record's coordinates were obtained and
// which state they resolve to. The enricher builds it; precision and
// state rules consume it. A zero Provider means the source stated the
// coordinates itself.
type Provenance struct {
	Provider   string
	Precision  string
	Fallback   bool
	CoordState string
}

// Result is one scoring verdict
type Result struct {
	Score    int
	Accepted bool
	TestData bool
	Outcomes types.RuleOutcomes
}

// Summary converts the result into the form that travels with the
// record to the reconciler
func (r Result) Summary(prov *Provenance) types.ValidationSummary {
	s := types.ValidationSummary{
		Score:    r.Score,
		Accepted: r.Accepted,
		TestData: r.TestData,
		Outcomes: r.Outcomes,
	}
	if prov != nil {
		s.GeoProvider = prov.Provider
		s.GeoPrecision = prov.Precision
	}
	return s
}

// Scorer applies the deduction rule families to aligned records
type Scorer struct {
	threshold   int
	legacyState bool
}

// NewScorer builds a scorer from validator configuration
func NewScorer(cfg config.ValidatorConfig) *Scorer {
	return &Scorer{threshold: cfg.Threshold, legacyState: cfg.LegacyStateCheck}
}

// Score starts at 100 and applies the first matching deduction from
// each rule family. The final score is clamped at zero. Acceptance
// requires the threshold and a negative test-data flag; a perfect
// score cannot rescue seeded test content.
func (s *Scorer) Score(rec *hsds.AlignedRecord, prov *Provenance) Result {
	res := Result{Score: 100}
	deduct := func(rule string, points int, detail string) {
		res.Score -= points
		res.Outcomes = append(res.Outcomes, types.RuleOutcome{Rule: rule, Deduction: points, Detail: detail})
	}

	// coordinate family
	switch {
	case !rec.HasCoordinates():
		deduct(RuleMissingCoordinates, 100, "")
	case usgeo.IsNullIsland(*rec.Location.Latitude, *rec.Location.Longitude):
		deduct(RuleZeroCoordinates, 100, "")
	case !usgeo.InBounds(*rec.Location.Latitude, *rec.Location.Longitude):
		deduct(RuleOutOfBounds, 95, fmt.Sprintf("(%.4f, %.4f)", *rec.Location.Latitude, *rec.Location.Longitude))
	}

	// test data family
	switch {
	case IsTestData(rec):
		res.TestData = true
		deduct(RuleTestData, 95, rec.Organization.Name)
	case HasPlaceholderAddress(rec):
		deduct(RulePlaceholderAddress, 75, rec.Location.Address1)
	}

	// state consistency family
	if !s.legacyState {
		if detail, mismatch := stateMismatch(rec, prov); mismatch {
			deduct(RuleStateMismatch, 20, detail)
		}
	}

	// geocode precision family
	if prov != nil {
		switch {
		case prov.Provider == geocoder.ProviderCentroid:
			deduct(RuleCentroidPrecision, 15, prov.Provider)
		case prov.Fallback:
			deduct(RuleFallbackPrecision, 10, prov.Provider)
		}
	}

	// completeness families
	if rec.Location == nil || strings.TrimSpace(rec.Location.City) == "" {
		deduct(RuleMissingCity, 10, "")
	}
	if rec.Location == nil || strings.TrimSpace(rec.Location.PostalCode) == "" {
		deduct(RuleMissingPostal, 5, "")
	}

	if res.Score < 0 {
		res.Score = 0
	}
	res.Accepted = res.Score >= s.threshold && !res.TestData
	return res
}

// stateMismatch reports whether the written state disagrees with the
// state the coordinates resolve to. Unknown on either side passes;
// absence of evidence is not a quality problem.
func stateMismatch(rec *hsds.AlignedRecord, prov *Provenance) (string, bool) {
	if rec.Location == nil || prov == nil || prov.CoordState == "" {
		return "", false
	}
	written, ok := usgeo.StateCode(rec.Location.StateProvince)
	if !ok || written == prov.CoordState {
		return "", false
	}
	return written + " vs " + prov.CoordState, true
}
