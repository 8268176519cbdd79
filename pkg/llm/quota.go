package llm

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ladleio/ladle/pkg/broker"
	"github.com/ladleio/ladle/pkg/config"
	"github.com/ladleio/ladle/pkg/events"
	"github.com/ladleio/ladle/pkg/log"
	"github.com/ladleio/ladle/pkg/metrics"
)

// QuotaGuard coordinates quota back-off across the worker fleet. One
// provider 429 trips a broker-wide hold; every worker consults the
// hold before spending a call. Consecutive trips compound the delay up
// to the configured ceiling; one success resets it.
type QuotaGuard struct {
	b        *broker.Broker
	provider string
	base     time.Duration
	max      time.Duration
	factor   float64
	events   *events.Broker
	log      zerolog.Logger
}

// NewQuotaGuard builds the guard for one provider
func NewQuotaGuard(b *broker.Broker, provider string, cfg config.LLMConfig, ev *events.Broker) *QuotaGuard {
	return &QuotaGuard{
		b:        b,
		provider: provider,
		base:     cfg.QuotaBaseDelay(),
		max:      cfg.QuotaMaxDelay(),
		factor:   cfg.QuotaBackoff,
		events:   ev,
		log:      log.WithComponent("llm").With().Str("provider", provider).Logger(),
	}
}

// Check returns how long the caller must wait before a provider call,
// zero when the provider is clear. A broker read failure reports
// clear: blocking the pipeline on a coordination hiccup is worse than
// risking one extra 429.
func (g *QuotaGuard) Check(ctx context.Context) time.Duration {
	hold, err := g.b.GetQuotaHold(ctx, g.provider)
	if err != nil {
		g.log.Warn().Err(err).Msg("quota hold read failed")
		return 0
	}
	now := time.Now()
	if !hold.Active(now) {
		metrics.QuotaHoldActive.WithLabelValues(g.provider).Set(0)
		return 0
	}
	metrics.QuotaHoldActive.WithLabelValues(g.provider).Set(1)
	return hold.Until.Sub(now)
}

// Trip records a quota error and returns the hold it installed. The
// delay is the larger of the provider's retry-after and the
// compounding back-off, clamped to the ceiling.
func (g *QuotaGuard) Trip(ctx context.Context, retryAfter time.Duration) time.Duration {
	mult := 1.0
	if hold, err := g.b.GetQuotaHold(ctx, g.provider); err == nil && hold != nil {
		mult = hold.Multiplier
	}

	delay := time.Duration(float64(g.base) * mult)
	if retryAfter > delay {
		delay = retryAfter
	}
	if delay > g.max {
		delay = g.max
	}

	next := mult * g.factor
	if time.Duration(float64(g.base)*next) > g.max {
		next = float64(g.max) / float64(g.base)
	}

	until := time.Now().Add(delay)
	if err := g.b.SetQuotaHold(ctx, g.provider, until, next); err != nil {
		g.log.Error().Err(err).Msg("failed to record quota hold")
	}
	metrics.QuotaHoldActive.WithLabelValues(g.provider).Set(1)
	g.log.Warn().Dur("hold", delay).Float64("multiplier", mult).Msg("quota hold tripped")
	if g.events != nil {
		g.events.Emit(events.EventQuotaHold, "provider quota exhausted", map[string]string{
			"provider": g.provider,
			"hold":     delay.String(),
		})
	}
	return delay
}

// Clear resets the hold and its multiplier after a successful call
func (g *QuotaGuard) Clear(ctx context.Context) {
	if err := g.b.ClearQuotaHold(ctx, g.provider); err != nil {
		g.log.Warn().Err(err).Msg("failed to clear quota hold")
		return
	}
	metrics.QuotaHoldActive.WithLabelValues(g.provider).Set(0)
}
