package worker

import (
	"context"

	"github.com/ladleio/ladle/pkg/queue"
)

// DepthBackpressure holds a pool off while the downstream queue's
// unprocessed depth sits at or above the high-water mark. A depth read
// failure fails open: stalling the pipeline on a broker hiccup is
// worse than briefly overshooting the mark.
func DepthBackpressure(downstream *queue.Queue, highWater int64) BackpressureFunc {
	return func(ctx context.Context) bool {
		if highWater <= 0 {
			return false
		}
		depths, err := downstream.Depths(ctx)
		if err != nil {
			return false
		}
		return depths.Total() >= highWater
	}
}
