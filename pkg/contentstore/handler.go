package contentstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/ladleio/ladle/pkg/log"
	"github.com/ladleio/ladle/pkg/queue"
	"github.com/ladleio/ladle/pkg/retry"
	"github.com/ladleio/ladle/pkg/types"
	"github.com/ladleio/ladle/pkg/worker"
)

// intake failures are Postgres, blob tree, or Redis trouble
const (
	retryBase = 5 * time.Second
	retryMax  = time.Minute
)

// Handler is the scrape_intake queue stage: decode the payload
// envelope and run it through the intake bridge. Scrapers that cannot
// reach the HTTP surface drop envelopes here instead.
type Handler struct {
	intake *Intake
	log    zerolog.Logger
}

// NewHandler wires the intake stage
func NewHandler(intake *Intake) *Handler {
	return &Handler{
		intake: intake,
		log:    log.WithComponent("intake"),
	}
}

// Handle processes one intake envelope
func (h *Handler) Handle(ctx context.Context, d *queue.Delivery) worker.Outcome {
	var job types.IntakeJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		return worker.DeadLetter("malformed intake envelope: " + err.Error())
	}
	if len(job.Payload) == 0 {
		return worker.DeadLetter("intake envelope carries no payload")
	}
	if job.Meta.ScraperID == "" {
		return worker.DeadLetter("intake envelope carries no scraper id")
	}

	res, err := h.intake.Submit(ctx, job.Payload, job.Meta)
	if err != nil {
		h.log.Warn().Err(err).Str("scraper_id", job.Meta.ScraperID).
			Int("attempts", d.Attempts).Msg("submit failed, will retry")
		return worker.Retry(retry.Delay(retryBase, d.Attempts, retryMax))
	}

	h.log.Debug().Str("job_id", res.JobID).Bool("deduplicated", !res.WasNew).
		Msg("intake envelope processed")
	return worker.Ack()
}
