package publisher

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ladleio/ladle/pkg/storage"
)

func TestRatchetBlocksShrunkenSnapshot(t *testing.T) {
	hw := storage.Counts{Organizations: 10000}
	counts := storage.Counts{Organizations: 5000}

	err := checkRatchet(counts, hw, 0.9)
	require.Error(t, err)

	var rerr *RatchetError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "organizations", rerr.Entity)
	assert.Equal(t, int64(5000), rerr.Count)
	assert.Equal(t, int64(10000), rerr.HighWater)
	assert.Equal(t, int64(9000), rerr.Floor)
	assert.Contains(t, err.Error(), "below floor 9000")
}

func TestRatchetAllowsCountAtFloor(t *testing.T) {
	hw := storage.Counts{Organizations: 10000, Locations: 20000}
	counts := storage.Counts{Organizations: 9000, Locations: 20000}

	assert.NoError(t, checkRatchet(counts, hw, 0.9))
}

func TestRatchetAllowsGrowth(t *testing.T) {
	hw := storage.Counts{Organizations: 100, Locations: 200, Services: 300}
	counts := storage.Counts{Organizations: 150, Locations: 210, Services: 300}

	assert.NoError(t, checkRatchet(counts, hw, 0.9))
}

func TestRatchetIgnoresZeroMarks(t *testing.T) {
	// first publish ever, nothing recorded yet
	assert.NoError(t, checkRatchet(storage.Counts{}, storage.Counts{}, 0.9))
	assert.NoError(t, checkRatchet(storage.Counts{Organizations: 5}, storage.Counts{}, 0.9))
}

func TestRatchetChecksEveryEntity(t *testing.T) {
	hw := storage.Counts{
		Organizations:      100,
		Locations:          100,
		Services:           100,
		ServiceAtLocations: 100,
		Schedules:          100,
	}
	counts := storage.Counts{
		Organizations:      100,
		Locations:          100,
		Services:           100,
		ServiceAtLocations: 100,
		Schedules:          10,
	}

	err := checkRatchet(counts, hw, 0.9)
	require.Error(t, err)

	var rerr *RatchetError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "schedules", rerr.Entity)
	assert.Equal(t, int64(90), rerr.Floor)
}
