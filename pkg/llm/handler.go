package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ladleio/ladle/pkg/contentstore"
	"github.com/ladleio/ladle/pkg/events"
	"github.com/ladleio/ladle/pkg/hsds"
	"github.com/ladleio/ladle/pkg/log"
	"github.com/ladleio/ladle/pkg/queue"
	"github.com/ladleio/ladle/pkg/retry"
	"github.com/ladleio/ladle/pkg/types"
	"github.com/ladleio/ladle/pkg/worker"
)

// transient retry spacing for provider and storage hiccups
const (
	transientBase = 30 * time.Second
	transientMax  = 10 * time.Minute
	reparseDelay  = 5 * time.Second
)

// Handler is the llm queue stage: payload in, validated AlignedRecord
// out on the validator queue, content-store lifecycle kept in step.
type Handler struct {
	store            *contentstore.Store
	aligner          *Aligner
	validatorQ       *queue.Queue
	events           *events.Broker
	maxOutputRetries int
	log              zerolog.Logger
}

// NewHandler wires the alignment stage
func NewHandler(store *contentstore.Store, aligner *Aligner, validatorQ *queue.Queue, ev *events.Broker, maxOutputRetries int) *Handler {
	if maxOutputRetries < 1 {
		maxOutputRetries = 1
	}
	return &Handler{
		store:            store,
		aligner:          aligner,
		validatorQ:       validatorQ,
		events:           ev,
		maxOutputRetries: maxOutputRetries,
		log:              log.WithComponent("llm"),
	}
}

// Handle processes one alignment job
func (h *Handler) Handle(ctx context.Context, d *queue.Delivery) worker.Outcome {
	var job types.AlignJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		return worker.DeadLetter("malformed align job: " + err.Error())
	}
	logger := h.log.With().Str("job_id", job.JobID).Str("scraper_id", job.ScraperID).Logger()

	// fleet-wide quota hold: park the job until the hold expires
	if wait := h.aligner.Guard().Check(ctx); wait > 0 {
		logger.Debug().Dur("wait", wait).Msg("parked by quota hold")
		return worker.Retry(wait)
	}

	if err := h.store.MarkPending(ctx, job.JobID); err != nil {
		switch {
		case errors.Is(err, contentstore.ErrNotFound):
			return worker.DeadLetter("no content record for job " + job.JobID)
		case errors.Is(err, contentstore.ErrIllegalTransition):
			// already completed or failed by an earlier delivery
			return h.resumeSettled(ctx, job, logger)
		default:
			logger.Error().Err(err).Msg("mark pending failed")
			return worker.Retry(retry.Delay(transientBase, d.Attempts, transientMax))
		}
	}

	payload, err := h.store.ReadPayload(job.ContentHash)
	if err != nil {
		logger.Error().Err(err).Str("hash", job.ContentHash).Msg("payload blob unreadable")
		h.markFailed(ctx, job.JobID, types.ErrKindIntegrity)
		return worker.DeadLetter("payload blob unreadable: " + err.Error())
	}

	rec, canonical, err := h.aligner.Align(ctx, payload, job.ScraperID, job.SourceURL)
	if err != nil {
		return h.alignFailure(ctx, d, job, err, logger)
	}

	ref, err := h.store.StoreOutput(job.ContentHash, canonical)
	if err != nil {
		logger.Error().Err(err).Msg("storing aligned output failed")
		return worker.Retry(retry.Delay(transientBase, d.Attempts, transientMax))
	}
	if err := h.store.MarkCompleted(ctx, job.JobID, ref); err != nil {
		logger.Error().Err(err).Msg("mark completed failed")
		return worker.Retry(retry.Delay(transientBase, d.Attempts, transientMax))
	}

	if err := h.enqueueValidator(ctx, job, rec); err != nil {
		// the record is completed; a redelivery resumes via
		// resumeSettled and re-enqueues idempotently
		logger.Error().Err(err).Msg("validator enqueue failed")
		return worker.Retry(retry.Delay(transientBase, d.Attempts, transientMax))
	}

	if h.events != nil {
		h.events.Emit(events.EventRecordAligned, "record aligned", map[string]string{
			"job_id":     job.JobID,
			"scraper_id": job.ScraperID,
		})
	}
	logger.Info().Str("output_ref", ref).Msg("record aligned")
	return worker.Ack()
}

// resumeSettled finishes a redelivered job whose record already
// reached a terminal status. Completed records re-enqueue the stored
// output (covers a crash between mark_completed and enqueue); failed
// records are final.
func (h *Handler) resumeSettled(ctx context.Context, job types.AlignJob, logger zerolog.Logger) worker.Outcome {
	rec, err := h.store.GetByJob(ctx, job.JobID)
	if err != nil {
		return worker.Retry(transientBase)
	}
	switch rec.Status {
	case types.StatusCompleted:
		raw, err := h.store.ReadOutput(rec.OutputRef)
		if err != nil {
			logger.Error().Err(err).Str("output_ref", rec.OutputRef).Msg("stored output unreadable")
			return worker.DeadLetter("stored output unreadable: " + err.Error())
		}
		var aligned hsds.AlignedRecord
		if err := json.Unmarshal(raw, &aligned); err != nil {
			return worker.DeadLetter("stored output corrupt: " + err.Error())
		}
		if err := h.enqueueValidator(ctx, job, &aligned); err != nil {
			return worker.Retry(transientBase)
		}
		logger.Info().Msg("resumed completed job, validator re-enqueued")
		return worker.Ack()
	case types.StatusFailed:
		return worker.Ack()
	default:
		// another worker holds it pending right now
		return worker.Retry(transientBase)
	}
}

func (h *Handler) alignFailure(ctx context.Context, d *queue.Delivery, job types.AlignJob, err error, logger zerolog.Logger) worker.Outcome {
	kind := KindOf(err)
	switch kind {
	case ErrQuota:
		hold := h.aligner.Guard().Trip(ctx, RetryAfterOf(err))
		return worker.Retry(hold)

	case ErrTransient, ErrTimeout:
		logger.Warn().Err(err).Int("attempts", d.Attempts).Msg("provider failure, will retry")
		return worker.Retry(retry.Delay(transientBase, d.Attempts, transientMax))

	case ErrMalformed, ErrSchema:
		if d.Attempts >= h.maxOutputRetries {
			logger.Error().Err(err).Int("attempts", d.Attempts).Msg("giving up on malformed output")
			h.markFailed(ctx, job.JobID, types.ErrKindMalformed)
			h.emitFailure(job, kind)
			return worker.DeadLetter(fmt.Sprintf("output invalid after %d attempts: %v", d.Attempts, err))
		}
		logger.Warn().Err(err).Int("attempts", d.Attempts).Msg("invalid output, retrying")
		return worker.Retry(reparseDelay)

	default: // ErrPermanent
		logger.Error().Err(err).Msg("permanent provider failure")
		h.markFailed(ctx, job.JobID, types.ErrKindFatal)
		h.emitFailure(job, kind)
		return worker.DeadLetter("provider permanent failure: " + err.Error())
	}
}

func (h *Handler) enqueueValidator(ctx context.Context, job types.AlignJob, rec *hsds.AlignedRecord) error {
	body, err := json.Marshal(types.ValidateJob{
		JobID:     job.JobID,
		ScraperID: job.ScraperID,
		SourceURL: job.SourceURL,
		Record:    *rec,
	})
	if err != nil {
		return fmt.Errorf("encoding validate job: %w", err)
	}
	_, _, err = h.validatorQ.Enqueue(ctx, body, queue.WithJobID(job.JobID))
	return err
}

func (h *Handler) markFailed(ctx context.Context, jobID string, kind types.ErrorKind) {
	if err := h.store.MarkFailed(ctx, jobID, kind); err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("mark failed failed")
	}
}

func (h *Handler) emitFailure(job types.AlignJob, kind ErrorKind) {
	if h.events == nil {
		return
	}
	h.events.Emit(events.EventAlignmentFailed, "alignment failed", map[string]string{
		"job_id": job.JobID,
		"kind":   string(kind),
	})
}
