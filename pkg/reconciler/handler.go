package reconciler

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ladleio/ladle/pkg/events"
	"github.com/ladleio/ladle/pkg/log"
	"github.com/ladleio/ladle/pkg/queue"
	"github.com/ladleio/ladle/pkg/retry"
	"github.com/ladleio/ladle/pkg/types"
	"github.com/ladleio/ladle/pkg/worker"
)

// transient retry spacing for storage outages that outlast the
// in-transaction retries
const (
	retryBase = 10 * time.Second
	retryMax  = 2 * time.Minute
)

// Handler is the reconciler queue stage: integrate one accepted record
// into the canonical store
type Handler struct {
	reconciler *Reconciler
	events     *events.Broker
	log        zerolog.Logger
}

// NewHandler wires the reconcile stage
func NewHandler(r *Reconciler, ev *events.Broker) *Handler {
	return &Handler{
		reconciler: r,
		events:     ev,
		log:        log.WithComponent("reconciler"),
	}
}

// Handle processes one reconcile job
func (h *Handler) Handle(ctx context.Context, d *queue.Delivery) worker.Outcome {
	var job types.ReconcileJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		return worker.DeadLetter("malformed reconcile job: " + err.Error())
	}
	logger := h.log.With().Str("job_id", job.JobID).Str("scraper_id", job.ScraperID).Logger()

	res, err := h.reconciler.Reconcile(ctx, &job)
	if err != nil {
		switch types.KindOf(err) {
		case types.ErrKindMalformed:
			logger.Warn().Err(err).Msg("record cannot be integrated")
			return worker.DeadLetter(err.Error())
		case types.ErrKindIntegrity:
			// survived every retry inside Reconcile; a human needs to look
			logger.Error().Err(err).Msg("integrity violation during reconcile")
			return worker.DeadLetter(err.Error())
		case types.ErrKindFatal:
			logger.Error().Err(err).Msg("unrecoverable reconcile failure")
			return worker.DeadLetter(err.Error())
		default:
			logger.Warn().Err(err).Int("attempts", d.Attempts).Msg("reconcile failed, will retry")
			return worker.Retry(retry.Delay(retryBase, d.Attempts, retryMax))
		}
	}

	h.emit(&job, res)
	logger.Info().
		Str("org_id", res.OrganizationID).
		Int("created", total(res.Created)).
		Int("merged", total(res.Merged)).
		Int("versions", res.TotalVersions()).
		Msg("record reconciled")
	return worker.Ack()
}

func (h *Handler) emit(job *types.ReconcileJob, res *Result) {
	if h.events == nil {
		return
	}
	if n := total(res.Created); n > 0 {
		h.events.Emit(events.EventEntityCreated, "entities created", map[string]string{
			"job_id":   job.JobID,
			"org_id":   res.OrganizationID,
			"entities": strconv.Itoa(n),
		})
	}
	if n := total(res.Merged); n > 0 {
		h.events.Emit(events.EventEntityMerged, "entities merged", map[string]string{
			"job_id":   job.JobID,
			"org_id":   res.OrganizationID,
			"entities": strconv.Itoa(n),
			"versions": strconv.Itoa(res.TotalVersions()),
		})
	}
}

func total(m map[types.EntityKind]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}
