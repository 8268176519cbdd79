package contentstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ladleio/ladle/pkg/events"
	"github.com/ladleio/ladle/pkg/log"
	"github.com/ladleio/ladle/pkg/metrics"
	"github.com/ladleio/ladle/pkg/queue"
	"github.com/ladleio/ladle/pkg/types"
)

// Intake bridges payload submission to the alignment queue: dedup
// through the store, then hand new hashes to the llm queue. The HTTP
// surface and the scrape_intake worker both go through it.
type Intake struct {
	store  *Store
	llmQ   *queue.Queue
	events *events.Broker
	log    zerolog.Logger
}

// NewIntake wires the submission path
func NewIntake(store *Store, llmQ *queue.Queue, ev *events.Broker) *Intake {
	return &Intake{
		store:  store,
		llmQ:   llmQ,
		events: ev,
		log:    log.WithComponent("intake"),
	}
}

// Submit deduplicates the payload and enqueues an alignment job when
// the bytes are new. If the enqueue fails the record is reset to new,
// so retrying the same bytes starts over instead of wedging an orphan
// that claims to be in flight.
func (i *Intake) Submit(ctx context.Context, payload []byte, meta types.SourceMetadata) (types.SubmitResult, error) {
	res, err := i.store.Submit(ctx, payload, meta)
	if err != nil {
		return types.SubmitResult{}, err
	}

	if !res.WasNew {
		metrics.PayloadsSubmitted.WithLabelValues("deduplicated").Inc()
		if i.events != nil {
			i.events.Emit(events.EventPayloadDeduplicated, "payload deduplicated", map[string]string{
				"job_id":     res.JobID,
				"scraper_id": meta.ScraperID,
			})
		}
		i.log.Debug().Str("job_id", res.JobID).Str("scraper_id", meta.ScraperID).
			Msg("payload deduplicated")
		return res, nil
	}

	if err := i.enqueueAlign(ctx, res, meta); err != nil {
		if rerr := i.store.Reset(ctx, res.Hash); rerr != nil {
			i.log.Error().Err(rerr).Str("hash", res.Hash).
				Msg("resetting record after enqueue failure failed")
		}
		return types.SubmitResult{}, types.WrapError(types.ErrKindTransient,
			fmt.Errorf("enqueueing alignment job: %w", err))
	}

	metrics.PayloadsSubmitted.WithLabelValues("new").Inc()
	if i.events != nil {
		i.events.Emit(events.EventPayloadReceived, "payload received", map[string]string{
			"job_id":     res.JobID,
			"scraper_id": meta.ScraperID,
		})
	}
	i.log.Info().Str("job_id", res.JobID).Str("scraper_id", meta.ScraperID).
		Int("bytes", len(payload)).Msg("payload accepted")
	return res, nil
}

// Stats exposes the store aggregation for the API
func (i *Intake) Stats(ctx context.Context) (types.ContentStats, error) {
	return i.store.Stats(ctx)
}

func (i *Intake) enqueueAlign(ctx context.Context, res types.SubmitResult, meta types.SourceMetadata) error {
	body, err := json.Marshal(types.AlignJob{
		JobID:       res.JobID,
		ContentHash: res.Hash,
		ScraperID:   meta.ScraperID,
		SourceURL:   meta.SourceURL,
	})
	if err != nil {
		return err
	}
	// job-id guard: a crash between Submit and Enqueue redelivers the
	// intake message, and the second enqueue becomes a no-op
	_, _, err = i.llmQ.Enqueue(ctx, body, queue.WithJobID(res.JobID))
	return err
}
