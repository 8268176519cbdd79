package geocoder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ladleio/ladle/pkg/broker"
	"github.com/ladleio/ladle/pkg/config"
	"github.com/ladleio/ladle/pkg/types"
)

func newTestBroker(t *testing.T) *broker.Broker {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return broker.NewWithClient(rdb)
}

// testConfig keeps rate limiters out of the way so tests never sleep
func testConfig() config.GeocoderConfig {
	return config.GeocoderConfig{
		Providers:    []string{ProviderArcGIS, ProviderNominatim, ProviderCensus},
		CacheTTLSecs: 86400,
		RateLimits: map[string]float64{
			ProviderArcGIS:    1000,
			ProviderNominatim: 1000,
			ProviderCensus:    1000,
		},
		BreakerFailures:     5,
		BreakerWindowSecs:   60,
		BreakerCooldownSecs: 60,
		TimeoutSecs:         5,
	}
}

func testAddress() Address {
	return Address{
		Line1:      "123 Main St",
		City:       "Austin",
		State:      "TX",
		PostalCode: "78701",
	}
}

func arcgisHit(lat, lng float64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"location":{"x":` +
			strconv.FormatFloat(lng, 'f', -1, 64) + `,"y":` +
			strconv.FormatFloat(lat, 'f', -1, 64) + `},"score":100}]}`))
	}
}

func TestGeocodePrimaryProviderWins(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		arcgisHit(30.2672, -97.7431)(w, r)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Providers = []string{ProviderArcGIS}
	cfg.ArcGISURL = srv.URL

	svc, err := New(cfg, newTestBroker(t), nil)
	require.NoError(t, err)

	res, err := svc.Geocode(context.Background(), testAddress())
	require.NoError(t, err)
	assert.InDelta(t, 30.2672, res.Latitude, 1e-9)
	assert.InDelta(t, -97.7431, res.Longitude, 1e-9)
	assert.Equal(t, ProviderArcGIS, res.Provider)
	assert.Equal(t, PrecisionHigh, res.Precision)
	assert.False(t, res.Fallback)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGeocodeSecondCallServedFromCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		arcgisHit(30.2672, -97.7431)(w, r)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Providers = []string{ProviderArcGIS}
	cfg.ArcGISURL = srv.URL

	svc, err := New(cfg, newTestBroker(t), nil)
	require.NoError(t, err)

	_, err = svc.Geocode(context.Background(), testAddress())
	require.NoError(t, err)

	// trivially different rendering of the same address shares the entry
	again := Address{Line1: "123  MAIN st", City: "austin", State: "tx", PostalCode: "78701"}
	res, err := svc.Geocode(context.Background(), again)
	require.NoError(t, err)
	assert.Equal(t, ProviderArcGIS, res.Provider)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGeocodeFallsThroughChain(t *testing.T) {
	arcgis := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer arcgis.Close()

	nominatim := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`)) // answered, no match
	}))
	defer nominatim.Close()

	census := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"addressMatches":[{"coordinates":{"x":-97.7431,"y":30.2672}}]}}`))
	}))
	defer census.Close()

	cfg := testConfig()
	cfg.ArcGISURL = arcgis.URL
	cfg.NominatimURL = nominatim.URL
	cfg.CensusURL = census.URL

	svc, err := New(cfg, newTestBroker(t), nil)
	require.NoError(t, err)

	res, err := svc.Geocode(context.Background(), testAddress())
	require.NoError(t, err)
	assert.Equal(t, ProviderCensus, res.Provider)
	assert.Equal(t, PrecisionLow, res.Precision)
	assert.True(t, res.Fallback)
}

func TestGeocodeNotGeocodable(t *testing.T) {
	noMatch := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer noMatch.Close()

	cfg := testConfig()
	cfg.Providers = []string{ProviderArcGIS}
	cfg.ArcGISURL = noMatch.URL
	cfg.CentroidFallback = false

	svc, err := New(cfg, newTestBroker(t), nil)
	require.NoError(t, err)

	_, err = svc.Geocode(context.Background(), testAddress())
	assert.ErrorIs(t, err, ErrNotGeocodable)
}

func TestGeocodeEmptyAddress(t *testing.T) {
	cfg := testConfig()
	cfg.CentroidFallback = true

	svc, err := New(cfg, newTestBroker(t), nil)
	require.NoError(t, err)

	_, err = svc.Geocode(context.Background(), Address{})
	assert.ErrorIs(t, err, ErrNotGeocodable)
}

func TestGeocodeCentroidRescuesOutage(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()

	cfg := testConfig()
	cfg.Providers = []string{ProviderArcGIS}
	cfg.ArcGISURL = down.URL
	cfg.CentroidFallback = true

	svc, err := New(cfg, newTestBroker(t), nil)
	require.NoError(t, err)

	res, err := svc.Geocode(context.Background(), testAddress())
	require.NoError(t, err)
	assert.Equal(t, ProviderCentroid, res.Provider)
	assert.Equal(t, PrecisionLowest, res.Precision)
	assert.True(t, res.Fallback)
	// Texas centroid, not Austin
	assert.InDelta(t, 31.0, res.Latitude, 2.0)
}

func TestGeocodeAllProvidersDownIsTransient(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()

	cfg := testConfig()
	cfg.Providers = []string{ProviderArcGIS}
	cfg.ArcGISURL = down.URL
	cfg.CentroidFallback = false

	svc, err := New(cfg, newTestBroker(t), nil)
	require.NoError(t, err)

	_, err = svc.Geocode(context.Background(), testAddress())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotGeocodable)
	assert.Equal(t, types.ErrKindTransient, types.KindOf(err))
}

func TestBreakerTripsAfterThresholdAndMirrors(t *testing.T) {
	var calls atomic.Int32
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()

	b := newTestBroker(t)
	cfg := testConfig()
	cfg.Providers = []string{ProviderArcGIS}
	cfg.ArcGISURL = down.URL
	cfg.BreakerFailures = 2
	cfg.CentroidFallback = false

	svc, err := New(cfg, b, nil)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = svc.Geocode(ctx, Address{Line1: "1 First St", City: "Austin"})
	require.Error(t, err)
	_, err = svc.Geocode(ctx, Address{Line1: "2 Second St", City: "Austin"})
	require.Error(t, err)

	// breaker tripped on the second failure and mirrored to the broker
	open, err := b.BreakerOpen(ctx, "geocoder:arcgis")
	require.NoError(t, err)
	assert.True(t, open)

	// third call is skipped without touching the provider
	_, err = svc.Geocode(ctx, Address{Line1: "3 Third St", City: "Austin"})
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSiblingBreakerFlagSkipsProvider(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		arcgisHit(30.0, -97.0)(w, r)
	}))
	defer srv.Close()

	b := newTestBroker(t)
	require.NoError(t, b.SetBreakerOpen(context.Background(), "geocoder:arcgis", time.Minute))

	cfg := testConfig()
	cfg.Providers = []string{ProviderArcGIS}
	cfg.ArcGISURL = srv.URL
	cfg.CentroidFallback = false

	svc, err := New(cfg, b, nil)
	require.NoError(t, err)

	_, err = svc.Geocode(context.Background(), testAddress())
	require.Error(t, err)
	assert.Equal(t, int32(0), calls.Load())
}

func TestReverseResolvesState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"address":{"Address":"350 5th Ave","City":"New York","Region":"NY","Postal":"10118"}}`))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Providers = []string{ProviderArcGIS}
	cfg.ArcGISURL = srv.URL

	svc, err := New(cfg, newTestBroker(t), nil)
	require.NoError(t, err)

	addr, err := svc.Reverse(context.Background(), 40.7484, -73.9857)
	require.NoError(t, err)
	assert.Equal(t, "NY", addr.State)
	assert.Equal(t, "New York", addr.City)
}

func TestReverseFallsBackToBoundingBoxes(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()

	cfg := testConfig()
	cfg.Providers = []string{ProviderArcGIS}
	cfg.ArcGISURL = down.URL
	cfg.CentroidFallback = true

	svc, err := New(cfg, newTestBroker(t), nil)
	require.NoError(t, err)

	addr, err := svc.Reverse(context.Background(), 30.2672, -97.7431)
	require.NoError(t, err)
	assert.Equal(t, "TX", addr.State)
}

func TestUnknownProviderRejected(t *testing.T) {
	cfg := testConfig()
	cfg.Providers = []string{"mapquest"}

	_, err := New(cfg, newTestBroker(t), nil)
	assert.Error(t, err)
}

func TestAddressNormalization(t *testing.T) {
	a := Address{Line1: "123  Main   St", City: "AUSTIN", State: "tx", PostalCode: "78701"}
	b := Address{Line1: "123 Main St", City: "Austin", State: "TX", PostalCode: "78701"}
	assert.Equal(t, a.Normalized(), b.Normalized())
	assert.Equal(t, a.CacheKey(), b.CacheKey())

	c := Address{Line1: "124 Main St", City: "Austin", State: "TX", PostalCode: "78701"}
	assert.NotEqual(t, a.CacheKey(), c.CacheKey())
}

func TestCentroidProvider(t *testing.T) {
	p := NewCentroid()

	// full state name resolves
	res, err := p.Geocode(context.Background(), Address{State: "Texas"})
	require.NoError(t, err)
	assert.Equal(t, ProviderCentroid, res.Provider)

	// ZIP-only address resolves through the prefix table
	res, err = p.Geocode(context.Background(), Address{PostalCode: "10001"})
	require.NoError(t, err)
	assert.InDelta(t, 42.9, res.Latitude, 2.0)

	// nothing to anchor on
	_, err = p.Geocode(context.Background(), Address{Line1: "123 Main St"})
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestBaseURLsResolveDefaults(t *testing.T) {
	cfg := testConfig()
	cfg.NominatimURL = "http://nominatim.internal:8080"

	urls := BaseURLs(cfg)
	assert.Equal(t, "http://nominatim.internal:8080", urls[ProviderNominatim])
	assert.Equal(t, defaultArcGISURL, urls[ProviderArcGIS])
	assert.Equal(t, defaultCensusURL, urls[ProviderCensus])

	// only configured providers get probe targets
	cfg.Providers = []string{ProviderCensus}
	assert.Equal(t, map[string]string{ProviderCensus: defaultCensusURL}, BaseURLs(cfg))
}
