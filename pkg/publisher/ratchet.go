package publisher

import (
	"fmt"
	"math"

	"github.com/ladleio/ladle/pkg/storage"
)

// RatchetError means a snapshot shrank below the guard threshold and
// must not be published
type RatchetError struct {
	Entity    string
	Count     int64
	HighWater int64
	Floor     int64
}

func (e *RatchetError) Error() string {
	return fmt.Sprintf("ratchet guard: %s count %d below floor %d (high-water %d)",
		e.Entity, e.Count, e.Floor, e.HighWater)
}

// checkRatchet compares a snapshot's counts against the high-water
// marks. Any entity falling below fraction x high-water fails the
// whole snapshot; a fresh state with zero marks passes everything.
func checkRatchet(counts, hw storage.Counts, fraction float64) error {
	checks := []struct {
		entity string
		count  int64
		mark   int64
	}{
		{"organizations", counts.Organizations, hw.Organizations},
		{"locations", counts.Locations, hw.Locations},
		{"services", counts.Services, hw.Services},
		{"service_at_location", counts.ServiceAtLocations, hw.ServiceAtLocations},
		{"schedules", counts.Schedules, hw.Schedules},
	}
	for _, c := range checks {
		floor := int64(math.Ceil(float64(c.mark) * fraction))
		if c.count < floor {
			return &RatchetError{Entity: c.entity, Count: c.count, HighWater: c.mark, Floor: floor}
		}
	}
	return nil
}
