package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ladleio/ladle/pkg/broker"
	"github.com/ladleio/ladle/pkg/config"
	"github.com/ladleio/ladle/pkg/events"
	"github.com/ladleio/ladle/pkg/hsds"
	"github.com/ladleio/ladle/pkg/log"
	"github.com/ladleio/ladle/pkg/metrics"
)

// Aligner turns a scraped payload into a validated AlignedRecord via
// the configured provider. It owns the call timeout, the strict output
// parse, and failure classification; quota coordination lives in the
// guard.
type Aligner struct {
	provider Provider
	guard    *QuotaGuard
	cfg      config.LLMConfig
	log      zerolog.Logger
}

// NewAligner builds the aligner and its quota guard from configuration
func NewAligner(cfg config.LLMConfig, b *broker.Broker, ev *events.Broker) (*Aligner, error) {
	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	return &Aligner{
		provider: provider,
		guard:    NewQuotaGuard(b, provider.Name(), cfg, ev),
		cfg:      cfg,
		log:      log.WithComponent("llm").With().Str("provider", provider.Name()).Logger(),
	}, nil
}

// NewAlignerWithProvider wires an explicit provider. Tests use it to
// script responses.
func NewAlignerWithProvider(p Provider, cfg config.LLMConfig, b *broker.Broker, ev *events.Broker) *Aligner {
	return &Aligner{
		provider: p,
		guard:    NewQuotaGuard(b, p.Name(), cfg, ev),
		cfg:      cfg,
		log:      log.WithComponent("llm").With().Str("provider", p.Name()).Logger(),
	}
}

// Provider returns the active provider name
func (a *Aligner) Provider() string {
	return a.provider.Name()
}

// Guard returns the quota guard, shared with the worker handler
func (a *Aligner) Guard() *QuotaGuard {
	return a.guard
}

// Align runs one alignment: prompt, provider call under the wall-clock
// timeout, fence strip, strict parse. Returns the record plus its
// canonical JSON encoding for the output blob. Failures are always
// *Error values.
func (a *Aligner) Align(ctx context.Context, payload []byte, scraperID, sourceURL string) (*hsds.AlignedRecord, []byte, error) {
	prompt := BuildPrompt(payload, scraperID, sourceURL)

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout())
	defer cancel()

	timer := metrics.NewTimer()
	raw, err := a.provider.Complete(callCtx, prompt)
	metrics.LLMCallDuration.WithLabelValues(a.provider.Name()).Observe(timer.Duration().Seconds())

	if err != nil {
		kind := KindOf(err)
		metrics.LLMCalls.WithLabelValues(a.provider.Name(), string(kind)).Inc()
		if _, ok := errAs(err); !ok {
			err = NewError(kind, err)
		}
		return nil, nil, err
	}

	rec, err := hsds.Parse(raw)
	if err != nil {
		switch {
		case errors.Is(err, hsds.ErrSchemaViolation):
			metrics.LLMCalls.WithLabelValues(a.provider.Name(), string(ErrSchema)).Inc()
			return nil, nil, NewError(ErrSchema, err)
		default:
			metrics.LLMCalls.WithLabelValues(a.provider.Name(), string(ErrMalformed)).Inc()
			return nil, nil, NewError(ErrMalformed, err)
		}
	}

	canonical, err := json.Marshal(rec)
	if err != nil {
		return nil, nil, Errorf(ErrMalformed, "re-encoding record: %v", err)
	}

	metrics.LLMCalls.WithLabelValues(a.provider.Name(), "ok").Inc()
	a.guard.Clear(ctx)
	return rec, canonical, nil
}

func errAs(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// String describes the aligner for startup logs
func (a *Aligner) String() string {
	return fmt.Sprintf("aligner(provider=%s, model=%s, timeout=%s)",
		a.provider.Name(), a.cfg.Model, a.cfg.Timeout())
}
