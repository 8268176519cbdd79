package usgeo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInBounds(t *testing.T) {
	// Austin, TX
	assert.True(t, InBounds(30.2672, -97.7431))
	// Seattle, WA
	assert.True(t, InBounds(47.6062, -122.3321))
	// Paris, France
	assert.False(t, InBounds(48.8566, 2.3522))
	// Honolulu (outside the continental envelope)
	assert.False(t, InBounds(21.3069, -157.8583))
	// Null island
	assert.False(t, InBounds(0, 0))
}

func TestIsNullIsland(t *testing.T) {
	assert.True(t, IsNullIsland(0, 0))
	assert.True(t, IsNullIsland(0.0000001, -0.0000001))
	assert.False(t, IsNullIsland(0, -97.7431))
	assert.False(t, IsNullIsland(30.2672, 0))
}

func TestStateCode(t *testing.T) {
	code, ok := StateCode("TX")
	require.True(t, ok)
	assert.Equal(t, "TX", code)

	code, ok = StateCode("tx")
	require.True(t, ok)
	assert.Equal(t, "TX", code)

	code, ok = StateCode("Texas")
	require.True(t, ok)
	assert.Equal(t, "TX", code)

	code, ok = StateCode("new york")
	require.True(t, ok)
	assert.Equal(t, "NY", code)

	_, ok = StateCode("ZZ")
	assert.False(t, ok)

	_, ok = StateCode("Ontario")
	assert.False(t, ok)

	_, ok = StateCode("")
	assert.False(t, ok)
}

func TestStateBoundsContains(t *testing.T) {
	tx, ok := StateBounds("TX")
	require.True(t, ok)

	// Austin is in Texas
	assert.True(t, tx.Contains(30.2672, -97.7431))
	// Albuquerque is not
	assert.False(t, tx.Contains(35.0844, -106.6504))

	ny, ok := StateBounds("ny")
	require.True(t, ok)
	assert.True(t, ny.Contains(40.7128, -74.0060))
}

func TestCentroid(t *testing.T) {
	lat, lng, ok := Centroid("CO")
	require.True(t, ok)
	assert.InDelta(t, 38.9972, lat, 0.001)
	assert.InDelta(t, -105.5478, lng, 0.001)

	// Every state with bounds has a centroid inside them
	for code, b := range stateBounds {
		lat, lng, ok := Centroid(code)
		require.True(t, ok, "missing centroid for %s", code)
		assert.True(t, b.Contains(lat, lng), "centroid for %s outside its bounds", code)
	}

	_, _, ok = Centroid("XX")
	assert.False(t, ok)
}

func TestStateForCoords(t *testing.T) {
	// Austin sits well inside the Texas box
	state, ok := StateForCoords(30.2672, -97.7431)
	require.True(t, ok)
	assert.Equal(t, "TX", state)

	// Denver: near the center of Colorado, overlapping boxes resolve
	// by centroid distance
	state, ok = StateForCoords(39.7392, -104.9903)
	require.True(t, ok)
	assert.Equal(t, "CO", state)

	// Mid-Atlantic ocean matches nothing
	_, ok = StateForCoords(35.0, -50.0)
	assert.False(t, ok)
}

func TestStateCodesSorted(t *testing.T) {
	codes := StateCodes()
	require.NotEmpty(t, codes)
	assert.Contains(t, codes, "TX")
	assert.Contains(t, codes, "DC")
	for i := 1; i < len(codes); i++ {
		assert.Less(t, codes[i-1], codes[i])
	}
}

func TestStateForZIP(t *testing.T) {
	tests := []struct {
		zip   string
		state string
		ok    bool
	}{
		{"78701", "TX", true},
		{"10001", "NY", true},
		{"94103", "CA", true},
		{"00901", "PR", true},
		{"20500", "DC", true},
		{"11201-2908", "NY", true},
		{"99501", "AK", true},
		{"96910", "", false}, // Guam, unmapped
		{"12", "", false},
		{"abcde", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		state, ok := StateForZIP(tt.zip)
		assert.Equal(t, tt.ok, ok, "zip %q", tt.zip)
		assert.Equal(t, tt.state, state, "zip %q", tt.zip)
	}
}
