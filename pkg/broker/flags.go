package broker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// QuotaHold records that an LLM provider reported quota exhaustion.
// Every worker process consults the hold before calling the provider,
// so one 429 pauses the whole fleet.
type QuotaHold struct {
	Until      time.Time
	Multiplier float64
}

// Active reports whether the hold is still in effect at now
func (h *QuotaHold) Active(now time.Time) bool {
	return h != nil && now.Before(h.Until)
}

// SetQuotaHold flags the provider as quota-limited until the given
// time. The multiplier is the compounding factor already applied, kept
// past the hold itself so consecutive trips keep growing the delay.
func (b *Broker) SetQuotaHold(ctx context.Context, provider string, until time.Time, multiplier float64) error {
	key := Key("quota", provider)
	retention := 2 * time.Until(until)
	if retention <= 0 {
		retention = time.Minute
	}
	pipe := b.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"until_ms", until.UnixMilli(),
		"multiplier", strconv.FormatFloat(multiplier, 'f', -1, 64),
	)
	pipe.PExpire(ctx, key, retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("setting quota hold for %s: %w", provider, err)
	}
	return nil
}

// GetQuotaHold returns the provider's quota hold, or nil when none is
// recorded
func (b *Broker) GetQuotaHold(ctx context.Context, provider string) (*QuotaHold, error) {
	vals, err := b.rdb.HGetAll(ctx, Key("quota", provider)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading quota hold for %s: %w", provider, err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	untilMs, err := strconv.ParseInt(vals["until_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt quota hold for %s: %w", provider, err)
	}
	mult, err := strconv.ParseFloat(vals["multiplier"], 64)
	if err != nil || mult < 1 {
		mult = 1
	}
	return &QuotaHold{Until: time.UnixMilli(untilMs), Multiplier: mult}, nil
}

// ClearQuotaHold resets the provider after a successful call, which
// also resets the compounding multiplier
func (b *Broker) ClearQuotaHold(ctx context.Context, provider string) error {
	return b.rdb.Del(ctx, Key("quota", provider)).Err()
}

// SetBreakerOpen mirrors a circuit breaker opening so sibling
// processes skip the provider for the cooldown window
func (b *Broker) SetBreakerOpen(ctx context.Context, name string, cooldown time.Duration) error {
	return b.rdb.Set(ctx, Key("breaker", name), "open", cooldown).Err()
}

// BreakerOpen reports whether the named breaker is open anywhere in
// the fleet
func (b *Broker) BreakerOpen(ctx context.Context, name string) (bool, error) {
	err := b.rdb.Get(ctx, Key("breaker", name)).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading breaker %s: %w", name, err)
	}
	return true, nil
}

// ClearBreaker closes the mirrored breaker flag
func (b *Broker) ClearBreaker(ctx context.Context, name string) error {
	return b.rdb.Del(ctx, Key("breaker", name)).Err()
}

// CacheGet reads a cached value. The second return is false on miss.
func (b *Broker) CacheGet(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := b.rdb.Get(ctx, Key("cache", key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	return val, true, nil
}

// CacheSet stores a value with a TTL
func (b *Broker) CacheSet(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if err := b.rdb.Set(ctx, Key("cache", key), val, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}
