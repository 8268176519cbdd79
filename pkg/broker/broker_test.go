package broker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroker(t *testing.T) (*Broker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewWithClient(rdb), mr
}

func TestKey(t *testing.T) {
	assert.Equal(t, "ladle:lock:publisher", Key("lock", "publisher"))
	assert.Equal(t, "ladle:q:llm:ready", Key("q", "llm", "ready"))
}

func TestLockAcquireAndRelease(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	lock, err := b.AcquireLock(ctx, "publisher", time.Minute)
	require.NoError(t, err)

	// Second acquire fails while held
	_, err = b.AcquireLock(ctx, "publisher", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	// Different name is independent
	other, err := b.AcquireLock(ctx, "reaper", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lock.Release(ctx))

	// Released lock can be re-acquired
	lock2, err := b.AcquireLock(ctx, "publisher", time.Minute)
	require.NoError(t, err)
	require.NoError(t, lock2.Release(ctx))
}

func TestLockRefresh(t *testing.T) {
	b, mr := newTestBroker(t)
	ctx := context.Background()

	lock, err := b.AcquireLock(ctx, "publisher", time.Second)
	require.NoError(t, err)
	assert.NoError(t, lock.Refresh(ctx, time.Minute))

	// Expire the lock out from under the holder
	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, lock.Refresh(ctx, time.Minute), ErrLockLost)
}

func TestLockReleaseIsTokenFenced(t *testing.T) {
	b, mr := newTestBroker(t)
	ctx := context.Background()

	stale, err := b.AcquireLock(ctx, "publisher", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	// New holder takes over after expiry
	fresh, err := b.AcquireLock(ctx, "publisher", time.Minute)
	require.NoError(t, err)

	// Stale holder's release must not free the new holder's lock
	require.NoError(t, stale.Release(ctx))
	_, err = b.AcquireLock(ctx, "publisher", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, fresh.Release(ctx))
}

func TestQuotaHoldRoundTrip(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	hold, err := b.GetQuotaHold(ctx, "openai")
	require.NoError(t, err)
	assert.Nil(t, hold)

	until := time.Now().Add(time.Hour).Truncate(time.Millisecond)
	require.NoError(t, b.SetQuotaHold(ctx, "openai", until, 1.5))

	hold, err = b.GetQuotaHold(ctx, "openai")
	require.NoError(t, err)
	require.NotNil(t, hold)
	assert.True(t, hold.Until.Equal(until))
	assert.Equal(t, 1.5, hold.Multiplier)
	assert.True(t, hold.Active(time.Now()))
	assert.False(t, hold.Active(until.Add(time.Second)))

	require.NoError(t, b.ClearQuotaHold(ctx, "openai"))
	hold, err = b.GetQuotaHold(ctx, "openai")
	require.NoError(t, err)
	assert.Nil(t, hold)
}

func TestBreakerFlags(t *testing.T) {
	b, mr := newTestBroker(t)
	ctx := context.Background()

	open, err := b.BreakerOpen(ctx, "geocoder:arcgis")
	require.NoError(t, err)
	assert.False(t, open)

	require.NoError(t, b.SetBreakerOpen(ctx, "geocoder:arcgis", time.Minute))
	open, err = b.BreakerOpen(ctx, "geocoder:arcgis")
	require.NoError(t, err)
	assert.True(t, open)

	// Cooldown expiry closes the flag
	mr.FastForward(2 * time.Minute)
	open, err = b.BreakerOpen(ctx, "geocoder:arcgis")
	require.NoError(t, err)
	assert.False(t, open)
}

func TestCache(t *testing.T) {
	b, mr := newTestBroker(t)
	ctx := context.Background()

	_, hit, err := b.CacheGet(ctx, "geocode:abc")
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, b.CacheSet(ctx, "geocode:abc", []byte(`{"lat":30.1}`), time.Hour))

	val, hit, err := b.CacheGet(ctx, "geocode:abc")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []byte(`{"lat":30.1}`), val)

	mr.FastForward(2 * time.Hour)
	_, hit, err = b.CacheGet(ctx, "geocode:abc")
	require.NoError(t, err)
	assert.False(t, hit)
}
