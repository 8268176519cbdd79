package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockHeld means another process owns the lock
	ErrLockHeld = errors.New("broker: lock already held")

	// ErrLockLost means the lock expired or changed hands before a
	// refresh or release
	ErrLockLost = errors.New("broker: lock lost")
)

// Release and refresh compare the stored token so a process that lost
// its lock to TTL expiry cannot stomp the next holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Lock is a broker-held named lock with a fencing token
type Lock struct {
	b     *Broker
	key   string
	token string
}

// AcquireLock takes the named lock for ttl. Returns ErrLockHeld when
// another holder owns it; callers treat that as "skip this cycle".
func (b *Broker) AcquireLock(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	key := Key("lock", name)
	token := uuid.NewString()
	ok, err := b.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %s: %w", name, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lock{b: b, key: key, token: token}, nil
}

// Refresh extends the lock TTL. Long-running holders call this
// periodically; ErrLockLost means the work should stop.
func (l *Lock) Refresh(ctx context.Context, ttl time.Duration) error {
	n, err := refreshScript.Run(ctx, l.b.rdb, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refreshing lock: %w", err)
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

// Release drops the lock if this holder still owns it
func (l *Lock) Release(ctx context.Context) error {
	if _, err := releaseScript.Run(ctx, l.b.rdb, []string{l.key}, l.token).Result(); err != nil {
		return fmt.Errorf("releasing lock: %w", err)
	}
	return nil
}
