package validator

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ladleio/ladle/pkg/events"
	"github.com/ladleio/ladle/pkg/log"
	"github.com/ladleio/ladle/pkg/metrics"
	"github.com/ladleio/ladle/pkg/queue"
	"github.com/ladleio/ladle/pkg/retry"
	"github.com/ladleio/ladle/pkg/types"
	"github.com/ladleio/ladle/pkg/worker"
)

// transient retry spacing for geocoder outages and storage hiccups
const (
	retryBase = 15 * time.Second
	retryMax  = 5 * time.Minute
)

// RejectionStore persists records that failed validation. Implemented
// by pkg/storage.
type RejectionStore interface {
	SaveRejection(ctx context.Context, rej *types.Rejection) error
}

// Handler is the validator queue stage: enrich, score, then either
// forward to the reconciler or persist a rejection. Rejection is a
// business outcome, not a failure; rejected jobs ack.
type Handler struct {
	scorer      *Scorer
	enricher    *Enricher
	rejections  RejectionStore
	reconcilerQ *queue.Queue
	events      *events.Broker
	log         zerolog.Logger
}

// NewHandler wires the validation stage
func NewHandler(scorer *Scorer, enricher *Enricher, rejections RejectionStore, reconcilerQ *queue.Queue, ev *events.Broker) *Handler {
	return &Handler{
		scorer:      scorer,
		enricher:    enricher,
		rejections:  rejections,
		reconcilerQ: reconcilerQ,
		events:      ev,
		log:         log.WithComponent("validator"),
	}
}

// Handle processes one validation job
func (h *Handler) Handle(ctx context.Context, d *queue.Delivery) worker.Outcome {
	var job types.ValidateJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		return worker.DeadLetter("malformed validate job: " + err.Error())
	}
	logger := h.log.With().Str("job_id", job.JobID).Str("scraper_id", job.ScraperID).Logger()

	prov, err := h.enricher.Enrich(ctx, &job.Record)
	if err != nil {
		logger.Warn().Err(err).Int("attempts", d.Attempts).Msg("enrichment unavailable, will retry")
		return worker.Retry(retry.Delay(retryBase, d.Attempts, retryMax))
	}

	res := h.scorer.Score(&job.Record, prov)
	metrics.ValidationScore.Observe(float64(res.Score))

	if !res.Accepted {
		return h.reject(ctx, d, job, res, logger)
	}

	if err := h.enqueueReconciler(ctx, job, res, prov); err != nil {
		logger.Error().Err(err).Msg("reconciler enqueue failed")
		return worker.Retry(retry.Delay(retryBase, d.Attempts, retryMax))
	}

	metrics.RecordsValidated.WithLabelValues("accepted").Inc()
	if h.events != nil {
		h.events.Emit(events.EventRecordAccepted, "record accepted", map[string]string{
			"job_id": job.JobID,
			"score":  strconv.Itoa(res.Score),
		})
	}
	logger.Info().Int("score", res.Score).Msg("record accepted")
	return worker.Ack()
}

// reject persists the rejection and acks: a low score is a verdict,
// and redelivering the job cannot change it
func (h *Handler) reject(ctx context.Context, d *queue.Delivery, job types.ValidateJob, res Result, logger zerolog.Logger) worker.Outcome {
	if h.rejections != nil {
		raw, err := json.Marshal(job.Record)
		if err != nil {
			raw = nil
		}
		rej := &types.Rejection{
			JobID:     job.JobID,
			ScraperID: job.ScraperID,
			Score:     res.Score,
			TestData:  res.TestData,
			Outcomes:  res.Outcomes,
			Record:    raw,
		}
		if err := h.rejections.SaveRejection(ctx, rej); err != nil {
			logger.Error().Err(err).Msg("persisting rejection failed")
			return worker.Retry(retry.Delay(retryBase, d.Attempts, retryMax))
		}
	}

	metrics.RecordsValidated.WithLabelValues("rejected").Inc()
	if h.events != nil {
		h.events.Emit(events.EventRecordRejected, "record rejected", map[string]string{
			"job_id":    job.JobID,
			"score":     strconv.Itoa(res.Score),
			"test_data": strconv.FormatBool(res.TestData),
		})
	}
	logger.Info().Int("score", res.Score).Bool("test_data", res.TestData).
		Interface("outcomes", res.Outcomes).Msg("record rejected")
	return worker.Ack()
}

func (h *Handler) enqueueReconciler(ctx context.Context, job types.ValidateJob, res Result, prov *Provenance) error {
	body, err := json.Marshal(types.ReconcileJob{
		JobID:      job.JobID,
		ScraperID:  job.ScraperID,
		SourceURL:  job.SourceURL,
		Record:     job.Record,
		Validation: res.Summary(prov),
	})
	if err != nil {
		return err
	}
	_, _, err = h.reconcilerQ.Enqueue(ctx, body, queue.WithJobID(job.JobID))
	return err
}
