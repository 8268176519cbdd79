package geocoder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ladleio/ladle/pkg/broker"
	"github.com/ladleio/ladle/pkg/config"
	"github.com/ladleio/ladle/pkg/events"
	"github.com/ladleio/ladle/pkg/log"
	"github.com/ladleio/ladle/pkg/metrics"
	"github.com/ladleio/ladle/pkg/types"
)

// Service runs the provider chain with a shared broker-backed cache.
// Providers are tried in configured order; the first success wins and
// is cached under the normalized-address hash.
type Service struct {
	cfg       config.GeocoderConfig
	b         *broker.Broker
	providers []Provider
	fallback  Provider
	log       zerolog.Logger
}

// New builds the chain from configuration. Unknown provider names are
// a configuration error, not a runtime skip. ev may be nil; breaker
// transitions are then logged and mirrored but not announced.
func New(cfg config.GeocoderConfig, b *broker.Broker, ev *events.Broker) (*Service, error) {
	s := &Service{
		cfg: cfg,
		b:   b,
		log: log.WithComponent("geocoder"),
	}
	for _, name := range cfg.Providers {
		var p Provider
		switch name {
		case ProviderArcGIS:
			p = NewArcGIS(cfg.ArcGISURL, cfg.Timeout())
		case ProviderNominatim:
			p = NewNominatim(cfg.NominatimURL, cfg.Timeout())
		case ProviderCensus:
			p = NewCensus(cfg.CensusURL, cfg.Timeout())
		default:
			return nil, fmt.Errorf("geocoder: unknown provider %q", name)
		}
		s.providers = append(s.providers, newGuardedProvider(p, b, ev, cfg))
	}
	if cfg.CentroidFallback {
		s.fallback = NewCentroid()
	}
	if len(s.providers) == 0 && s.fallback == nil {
		return nil, fmt.Errorf("geocoder: no providers configured")
	}
	return s, nil
}

// Providers returns the configured chain names, fallback included
func (s *Service) Providers() []string {
	names := make([]string, 0, len(s.providers)+1)
	for _, p := range s.providers {
		names = append(names, p.Name())
	}
	if s.fallback != nil {
		names = append(names, s.fallback.Name())
	}
	return names
}

// Geocode resolves an address to coordinates through the chain.
// Returns ErrNotGeocodable when providers answered but none matched;
// a transient pipeline error when the whole chain was unreachable.
func (s *Service) Geocode(ctx context.Context, addr Address) (*Result, error) {
	if addr.OneLine() == "" {
		return nil, ErrNotGeocodable
	}

	key := addr.CacheKey()
	if res, ok := s.cacheGet(ctx, key); ok {
		metrics.GeocodeCache.WithLabelValues("hit").Inc()
		return res, nil
	}
	metrics.GeocodeCache.WithLabelValues("miss").Inc()

	sawNoMatch := false
	for i, p := range s.providers {
		res, err := p.Geocode(ctx, addr)
		switch {
		case err == nil:
			res.Fallback = i > 0
			s.cachePut(ctx, key, res)
			metrics.GeocodeRequests.WithLabelValues(p.Name(), "ok").Inc()
			return res, nil
		case errors.Is(err, ErrNoMatch):
			sawNoMatch = true
			metrics.GeocodeRequests.WithLabelValues(p.Name(), "miss").Inc()
		case errors.Is(err, ErrUnavailable):
			metrics.GeocodeRequests.WithLabelValues(p.Name(), "skipped").Inc()
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return nil, err
		default:
			metrics.GeocodeRequests.WithLabelValues(p.Name(), "error").Inc()
			s.log.Warn().Err(err).Str("provider", p.Name()).Msg("geocode attempt failed")
		}
	}

	if s.fallback != nil {
		res, err := s.fallback.Geocode(ctx, addr)
		if err == nil {
			res.Fallback = true
			s.cachePut(ctx, key, res)
			metrics.GeocodeRequests.WithLabelValues(s.fallback.Name(), "ok").Inc()
			return res, nil
		}
		sawNoMatch = sawNoMatch || errors.Is(err, ErrNoMatch)
	}

	if sawNoMatch {
		return nil, ErrNotGeocodable
	}
	return nil, types.Errorf(types.ErrKindTransient, "geocoder: no provider reachable")
}

// Reverse resolves coordinates to an address through the chain. The
// centroid fallback answers from state bounding boxes when every HTTP
// provider fails.
func (s *Service) Reverse(ctx context.Context, lat, lng float64) (*Address, error) {
	key := reverseCacheKey(lat, lng)
	if raw, ok, err := s.b.CacheGet(ctx, key); err == nil && ok {
		var addr Address
		if json.Unmarshal(raw, &addr) == nil {
			metrics.GeocodeCache.WithLabelValues("hit").Inc()
			return &addr, nil
		}
	}
	metrics.GeocodeCache.WithLabelValues("miss").Inc()

	sawNoMatch := false
	for _, p := range s.providers {
		addr, err := p.Reverse(ctx, lat, lng)
		switch {
		case err == nil:
			s.cachePut(ctx, key, addr)
			metrics.GeocodeRequests.WithLabelValues(p.Name(), "ok").Inc()
			return addr, nil
		case errors.Is(err, ErrNoMatch):
			sawNoMatch = true
			metrics.GeocodeRequests.WithLabelValues(p.Name(), "miss").Inc()
		case errors.Is(err, ErrUnavailable):
			metrics.GeocodeRequests.WithLabelValues(p.Name(), "skipped").Inc()
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return nil, err
		default:
			metrics.GeocodeRequests.WithLabelValues(p.Name(), "error").Inc()
			s.log.Warn().Err(err).Str("provider", p.Name()).Msg("reverse geocode attempt failed")
		}
	}

	if s.fallback != nil {
		if addr, err := s.fallback.Reverse(ctx, lat, lng); err == nil {
			s.cachePut(ctx, key, addr)
			return addr, nil
		}
		sawNoMatch = true
	}

	if sawNoMatch {
		return nil, ErrNotResolvable
	}
	return nil, types.Errorf(types.ErrKindTransient, "geocoder: no provider reachable")
}

func (s *Service) cacheGet(ctx context.Context, key string) (*Result, bool) {
	raw, ok, err := s.b.CacheGet(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, false
	}
	return &res, true
}

func (s *Service) cachePut(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.b.CacheSet(ctx, key, raw, s.cfg.CacheTTL()); err != nil {
		s.log.Debug().Err(err).Msg("geocode cache write failed")
	}
}
