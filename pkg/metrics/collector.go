package metrics

import (
	"context"
	"time"

	"github.com/ladleio/ladle/pkg/broker"
	"github.com/ladleio/ladle/pkg/queue"
	"github.com/ladleio/ladle/pkg/types"
)

// ContentStatser reports content record counts, satisfied by the
// content store
type ContentStatser interface {
	Stats(ctx context.Context) (types.ContentStats, error)
}

// Collector polls shared state into gauges: queue depths, content
// record counts, the LLM quota hold, and geocoder breaker flags.
// Counters are incremented at the point of work; only state that lives
// in the broker or database is polled.
type Collector struct {
	broker      *broker.Broker
	queues      *queue.Set
	content     ContentStatser
	llmProvider string
	geoNames    []string
	stopCh      chan struct{}
}

// NewCollector creates a new metrics collector. content may be nil.
func NewCollector(b *broker.Broker, queues *queue.Set, content ContentStatser, llmProvider string, geocoderProviders []string) *Collector {
	return &Collector{
		broker:      b,
		queues:      queues,
		content:     content,
		llmProvider: llmProvider,
		geoNames:    geocoderProviders,
		stopCh:      make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.collectQueueDepths(ctx)
	c.collectContentStats(ctx)
	c.collectQuotaHold(ctx)
	c.collectBreakers(ctx)
}

func (c *Collector) collectQueueDepths(ctx context.Context) {
	depths, err := c.queues.DepthsAll(ctx)
	if err != nil {
		return
	}
	for name, d := range depths {
		QueueDepth.WithLabelValues(name, "ready").Set(float64(d.Ready))
		QueueDepth.WithLabelValues(name, "delayed").Set(float64(d.Delayed))
		QueueDepth.WithLabelValues(name, "in_flight").Set(float64(d.InFlight))
		QueueDepth.WithLabelValues(name, "dead").Set(float64(d.Dead))
	}
}

func (c *Collector) collectContentStats(ctx context.Context) {
	if c.content == nil {
		return
	}
	stats, err := c.content.Stats(ctx)
	if err != nil {
		return
	}
	ContentRecords.WithLabelValues("new").Set(float64(stats.New))
	ContentRecords.WithLabelValues("pending").Set(float64(stats.Pending))
	ContentRecords.WithLabelValues("completed").Set(float64(stats.Completed))
	ContentRecords.WithLabelValues("failed").Set(float64(stats.Failed))
	ContentBytes.Set(float64(stats.Bytes))
}

func (c *Collector) collectQuotaHold(ctx context.Context) {
	hold, err := c.broker.GetQuotaHold(ctx, c.llmProvider)
	if err != nil {
		return
	}
	if hold.Active(time.Now()) {
		QuotaHoldActive.WithLabelValues(c.llmProvider).Set(1)
	} else {
		QuotaHoldActive.WithLabelValues(c.llmProvider).Set(0)
	}
}

func (c *Collector) collectBreakers(ctx context.Context) {
	for _, name := range c.geoNames {
		open, err := c.broker.BreakerOpen(ctx, "geocoder:"+name)
		if err != nil {
			continue
		}
		if open {
			BreakerOpen.WithLabelValues(name).Set(1)
		} else {
			BreakerOpen.WithLabelValues(name).Set(0)
		}
	}
}
