package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ladleio/ladle/pkg/broker"
	"github.com/ladleio/ladle/pkg/health"
	"github.com/ladleio/ladle/pkg/publisher"
	"github.com/ladleio/ladle/pkg/queue"
	"github.com/ladleio/ladle/pkg/types"
)

// SubmitRequest is the intake contract for scrapers. Payload carries
// the raw scraped bytes, base64-encoded in the JSON body.
type SubmitRequest struct {
	Payload   []byte    `json:"payload"`
	ScraperID string    `json:"scraper_id"`
	SourceURL string    `json:"source_url,omitempty"`
	ScrapedAt time.Time `json:"scraped_at,omitempty"`
}

// SubmitResponse reports the admission outcome
type SubmitResponse struct {
	JobID        string `json:"job_id"`
	Hash         string `json:"hash"`
	Deduplicated bool   `json:"deduplicated"`
}

// StatsResponse aggregates content store counters and queue depths
type StatsResponse struct {
	Content types.ContentStats      `json:"content"`
	Queues  map[string]queue.Depths `json:"queues"`
}

// HealthzResponse reports dependency health for readiness probes
type HealthzResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version,omitempty"`
	Checks    map[string]string `json:"checks"`
}

// ErrorResponse is the JSON error envelope
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleSubmit admits one scraped payload. New content answers 202
// with the job id; a duplicate answers 200 with the original job id.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxPayloadBytes)

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooBig.Limit))
			return
		}
		s.writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}
	if len(req.Payload) == 0 {
		s.writeError(w, http.StatusBadRequest, "payload is required")
		return
	}
	if req.ScraperID == "" {
		s.writeError(w, http.StatusBadRequest, "scraper_id is required")
		return
	}

	meta := types.SourceMetadata{
		ScraperID: req.ScraperID,
		SourceURL: req.SourceURL,
		ScrapedAt: req.ScrapedAt,
	}
	if meta.ScrapedAt.IsZero() {
		meta.ScrapedAt = time.Now().UTC()
	}

	res, err := s.intake.Submit(r.Context(), req.Payload, meta)
	if err != nil {
		if types.IsKind(err, types.ErrKindMalformed) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error().Err(err).Str("scraper_id", req.ScraperID).Msg("payload admission failed")
		s.writeError(w, http.StatusServiceUnavailable, "payload admission failed, retry later")
		return
	}

	code := http.StatusAccepted
	if !res.WasNew {
		code = http.StatusOK
	}
	s.writeJSON(w, code, SubmitResponse{
		JobID:        res.JobID,
		Hash:         res.Hash,
		Deduplicated: !res.WasNew,
	})
}

// handleStats reports content store counters and per-queue depths
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	content, err := s.intake.Stats(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("reading content stats")
		s.writeError(w, http.StatusServiceUnavailable, "stats unavailable")
		return
	}

	depths := make(map[string]queue.Depths, len(s.queues))
	for _, q := range s.queues {
		d, err := q.Depths(r.Context())
		if err != nil {
			s.log.Error().Err(err).Str("queue", q.Name()).Msg("reading queue depths")
			s.writeError(w, http.StatusServiceUnavailable, "stats unavailable")
			return
		}
		depths[q.Name()] = d
	}

	s.writeJSON(w, http.StatusOK, StatsResponse{Content: content, Queues: depths})
}

// handlePublish runs one synchronous publish cycle. A held lock or a
// ratchet abort answers 409; the caller decides whether to override.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	rec, err := s.pub.Publish(r.Context())
	if err != nil {
		if errors.Is(err, broker.ErrLockHeld) {
			s.writeError(w, http.StatusConflict, "a publish cycle is already running")
			return
		}
		var ratchet *publisher.RatchetError
		if errors.As(err, &ratchet) {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.log.Error().Err(err).Msg("publish failed")
		s.writeError(w, http.StatusInternalServerError, "publish failed: "+err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, rec)
}

// handleHealthz probes every registered dependency
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	results := s.checks.Run(r.Context())

	checks := make(map[string]string, len(results))
	for name, res := range results {
		if res.Healthy {
			checks[name] = "ok"
		} else {
			checks[name] = res.Message
		}
	}

	resp := HealthzResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   s.version,
		Checks:    checks,
	}
	code := http.StatusOK
	if !health.Healthy(results) {
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("encoding response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, ErrorResponse{Error: msg})
}
