package broker

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ladle"

// Broker wraps the Redis connection shared by the queue substrate,
// distributed locks, the geocode cache, and cross-process coordination
// flags (quota holds, breaker state).
type Broker struct {
	rdb *redis.Client
}

// Connect parses a redis:// URL, opens a client, and verifies the
// connection with a ping
func Connect(ctx context.Context, url string) (*Broker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing broker url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("pinging broker: %w", err)
	}
	return &Broker{rdb: rdb}, nil
}

// NewWithClient wraps an existing Redis client. Tests use it to point
// the broker at miniredis.
func NewWithClient(rdb *redis.Client) *Broker {
	return &Broker{rdb: rdb}
}

// Client exposes the underlying Redis client for the queue substrate
func (b *Broker) Client() *redis.Client {
	return b.rdb
}

// Ping verifies the broker connection
func (b *Broker) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

// Close releases the connection pool
func (b *Broker) Close() error {
	return b.rdb.Close()
}

// Key builds a namespaced broker key: ladle:<part>:<part>...
func Key(parts ...string) string {
	return keyPrefix + ":" + strings.Join(parts, ":")
}
