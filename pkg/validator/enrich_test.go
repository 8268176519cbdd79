package validator

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ladleio/ladle/pkg/broker"
	"github.com/ladleio/ladle/pkg/config"
	"github.com/ladleio/ladle/pkg/geocoder"
	"github.com/ladleio/ladle/pkg/hsds"
	"github.com/ladleio/ladle/pkg/types"
)

func newTestBroker(t *testing.T) *broker.Broker {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return broker.NewWithClient(rdb)
}

// newTestGeocoder runs a single-provider chain against the handler
func newTestGeocoder(t *testing.T, handler http.HandlerFunc) *geocoder.Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := geocoder.New(config.GeocoderConfig{
		Providers:           []string{geocoder.ProviderArcGIS},
		CacheTTLSecs:        60,
		RateLimits:          map[string]float64{geocoder.ProviderArcGIS: 1000},
		BreakerFailures:     10,
		BreakerWindowSecs:   60,
		BreakerCooldownSecs: 60,
		TimeoutSecs:         2,
		ArcGISURL:           srv.URL,
	}, newTestBroker(t), nil)
	require.NoError(t, err)
	return svc
}

func arcgisAnswer(lat, lng float64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"candidates":[{"location":{"x":%g,"y":%g},"score":100}]}`, lng, lat)
	}
}

// addressOnly is an Austin listing with no coordinates
func addressOnly() *hsds.AlignedRecord {
	return &hsds.AlignedRecord{
		Organization: hsds.Organization{Name: "Central Texas Food Bank"},
		Location: &hsds.Location{
			Address1:      "6500 Metropolis Dr",
			City:          "Austin",
			StateProvince: "TX",
			PostalCode:    "78744",
		},
	}
}

func TestEnrichGeocodesMissingCoordinates(t *testing.T) {
	e := NewEnricher(newTestGeocoder(t, arcgisAnswer(30.2672, -97.7431)))
	rec := addressOnly()

	prov, err := e.Enrich(context.Background(), rec)
	require.NoError(t, err)
	require.True(t, rec.HasCoordinates())
	assert.InDelta(t, 30.2672, *rec.Location.Latitude, 1e-6)
	assert.InDelta(t, -97.7431, *rec.Location.Longitude, 1e-6)
	assert.Equal(t, geocoder.ProviderArcGIS, prov.Provider)
	assert.False(t, prov.Fallback)
	assert.Equal(t, "TX", prov.CoordState)
}

func TestEnrichSkipsRecordsWithCoordinates(t *testing.T) {
	var calls atomic.Int32
	e := NewEnricher(newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		arcgisAnswer(30.2672, -97.7431)(w, r)
	}))
	rec := addressOnly()
	lat, lng := 30.2672, -97.7431
	rec.Location.Latitude = &lat
	rec.Location.Longitude = &lng

	prov, err := e.Enrich(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, int32(0), calls.Load(), "valid coordinates must not be re-geocoded")
	assert.Empty(t, prov.Provider)
	assert.Equal(t, "TX", prov.CoordState)
}

func TestEnrichReplacesNullIsland(t *testing.T) {
	e := NewEnricher(newTestGeocoder(t, arcgisAnswer(30.2672, -97.7431)))
	rec := addressOnly()
	zero := 0.0
	rec.Location.Latitude = &zero
	rec.Location.Longitude = &zero

	prov, err := e.Enrich(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, geocoder.ProviderArcGIS, prov.Provider)
	assert.InDelta(t, 30.2672, *rec.Location.Latitude, 1e-6)
}

func TestEnrichNormalizesStateName(t *testing.T) {
	e := NewEnricher(nil)
	rec := addressOnly()
	lat, lng := 30.2672, -97.7431
	rec.Location.Latitude = &lat
	rec.Location.Longitude = &lng
	rec.Location.StateProvince = "Texas"

	_, err := e.Enrich(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "TX", rec.Location.StateProvince)
}

func TestEnrichDropsUnrecognizedState(t *testing.T) {
	e := NewEnricher(nil)
	rec := addressOnly()
	rec.Location.StateProvince = "Republic of Pantries"

	_, err := e.Enrich(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "", rec.Location.StateProvince)
}

func TestEnrichCorrectsStateFromCoordinates(t *testing.T) {
	// written NY, coordinates in Texas, no ZIP to veto: correct it
	e := NewEnricher(newTestGeocoder(t, arcgisAnswer(30.2672, -97.7431)))
	rec := addressOnly()
	rec.Location.StateProvince = "NY"
	rec.Location.PostalCode = ""

	prov, err := e.Enrich(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "TX", prov.CoordState)
	assert.Equal(t, "TX", rec.Location.StateProvince)
}

func TestEnrichZipBackedStateSurvives(t *testing.T) {
	// ZIP 10001 corroborates the written NY: keep it, let scoring deduct
	e := NewEnricher(newTestGeocoder(t, arcgisAnswer(30.2672, -97.7431)))
	rec := addressOnly()
	rec.Location.StateProvince = "NY"
	rec.Location.PostalCode = "10001"

	prov, err := e.Enrich(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "NY", rec.Location.StateProvince)

	res := testScorer().Score(rec, prov)
	assert.Equal(t, RuleStateMismatch, res.Outcomes[0].Rule)
}

func TestEnrichNeverCorrectsSourceStatedCoordinates(t *testing.T) {
	// coordinates came from the source, so the written state stands
	// even when it disagrees; the scorer takes the deduction instead
	e := NewEnricher(nil)
	rec := addressOnly()
	lat, lng := 30.2672, -97.7431
	rec.Location.Latitude = &lat
	rec.Location.Longitude = &lng
	rec.Location.StateProvince = "NY"

	prov, err := e.Enrich(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "NY", rec.Location.StateProvince)
	assert.Equal(t, "TX", prov.CoordState)

	res := testScorer().Score(rec, prov)
	assert.Equal(t, 80, res.Score)
}

func TestEnrichNotGeocodableLeavesRecord(t *testing.T) {
	e := NewEnricher(newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":[]}`)
	}))
	rec := addressOnly()

	prov, err := e.Enrich(context.Background(), rec)
	require.NoError(t, err, "a definitive no-match is a verdict, not a failure")
	assert.False(t, rec.HasCoordinates())
	assert.Empty(t, prov.Provider)

	res := testScorer().Score(rec, prov)
	assert.False(t, res.Accepted)
}

func TestEnrichChainOutageIsRetryable(t *testing.T) {
	e := NewEnricher(newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := e.Enrich(context.Background(), addressOnly())
	require.Error(t, err)
	assert.Equal(t, types.ErrKindTransient, types.KindOf(err))
}

func TestEnrichSkipsIncompleteAddress(t *testing.T) {
	var calls atomic.Int32
	e := NewEnricher(newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	rec := addressOnly()
	rec.Location.City = ""

	_, err := e.Enrich(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, int32(0), calls.Load(), "address line without city is not geocodable")
	assert.False(t, rec.HasCoordinates())
}
