package geocoder

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/ladleio/ladle/pkg/broker"
	"github.com/ladleio/ladle/pkg/config"
	"github.com/ladleio/ladle/pkg/events"
	"github.com/ladleio/ladle/pkg/log"
	"github.com/ladleio/ladle/pkg/metrics"
)

// guardedProvider layers a rate limiter and a circuit breaker over an
// HTTP provider. Breaker transitions are mirrored to the broker so
// every worker process skips a tripped provider, not just the one that
// observed the failures.
type guardedProvider struct {
	inner    Provider
	b        *broker.Broker
	events   *events.Broker
	limiter  *rate.Limiter
	cb       *gobreaker.CircuitBreaker
	cooldown time.Duration
	log      zerolog.Logger
}

func newGuardedProvider(inner Provider, b *broker.Broker, ev *events.Broker, cfg config.GeocoderConfig) *guardedProvider {
	name := inner.Name()
	rps := cfg.RateLimit(name)
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	p := &guardedProvider{
		inner:    inner,
		b:        b,
		events:   ev,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		cooldown: cfg.BreakerCooldown(),
		log:      log.WithComponent("geocoder").With().Str("provider", name).Logger(),
	}
	p.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    cfg.BreakerWindow(),
		Timeout:     cfg.BreakerCooldown(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.TotalFailures >= uint32(cfg.BreakerFailures)
		},
		// a clean "no candidates" answer is a working provider
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoMatch)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.mirrorState(name, to)
		},
	})
	return p
}

func (p *guardedProvider) Name() string      { return p.inner.Name() }
func (p *guardedProvider) Precision() string { return p.inner.Precision() }

func (p *guardedProvider) Geocode(ctx context.Context, addr Address) (*Result, error) {
	out, err := p.do(ctx, func() (interface{}, error) {
		return p.inner.Geocode(ctx, addr)
	})
	if err != nil {
		return nil, err
	}
	return out.(*Result), nil
}

func (p *guardedProvider) Reverse(ctx context.Context, lat, lng float64) (*Address, error) {
	out, err := p.do(ctx, func() (interface{}, error) {
		return p.inner.Reverse(ctx, lat, lng)
	})
	if err != nil {
		return nil, err
	}
	return out.(*Address), nil
}

func (p *guardedProvider) do(ctx context.Context, call func() (interface{}, error)) (interface{}, error) {
	// sibling processes may have tripped the breaker; a broker read
	// failure falls through to the local breaker rather than blocking
	if open, err := p.b.BreakerOpen(ctx, p.flagName()); err == nil && open {
		return nil, ErrUnavailable
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	out, err := p.cb.Execute(call)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrUnavailable
	}
	return out, err
}

func (p *guardedProvider) flagName() string {
	return "geocoder:" + p.inner.Name()
}

func (p *guardedProvider) mirrorState(name string, to gobreaker.State) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch to {
	case gobreaker.StateOpen:
		metrics.BreakerOpen.WithLabelValues(name).Set(1)
		p.log.Warn().Dur("cooldown", p.cooldown).Msg("circuit breaker opened")
		if err := p.b.SetBreakerOpen(ctx, p.flagName(), p.cooldown); err != nil {
			p.log.Error().Err(err).Msg("failed to mirror breaker open")
		}
		p.events.Emit(events.EventBreakerOpened, "geocode provider circuit opened", map[string]string{
			"provider": name,
			"cooldown": p.cooldown.String(),
		})
	case gobreaker.StateClosed:
		metrics.BreakerOpen.WithLabelValues(name).Set(0)
		p.log.Info().Msg("circuit breaker closed")
		if err := p.b.ClearBreaker(ctx, p.flagName()); err != nil {
			p.log.Error().Err(err).Msg("failed to clear mirrored breaker")
		}
	}
}
