package health

import (
	"context"
	"fmt"
	"time"

	"github.com/ladleio/ladle/pkg/broker"
)

// RedisChecker probes the broker connection
type RedisChecker struct {
	b *broker.Broker
}

// NewRedisChecker creates a checker over the shared broker
func NewRedisChecker(b *broker.Broker) *RedisChecker {
	return &RedisChecker{b: b}
}

// Name returns the dependency name
func (r *RedisChecker) Name() string {
	return "broker"
}

// Check pings the broker
func (r *RedisChecker) Check(ctx context.Context) Result {
	start := time.Now()
	if err := r.b.Ping(ctx); err != nil {
		return result(start, false, fmt.Sprintf("ping failed: %v", err))
	}
	return result(start, true, "ok")
}
