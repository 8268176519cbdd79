package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ladleio/ladle/pkg/broker"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	b := broker.NewWithClient(rdb)
	return New(b, LLM, 5*time.Minute), mr
}

func TestEnqueueDequeueAck(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	id, created, err := q.Enqueue(ctx, []byte(`{"job":"a"}`))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, id)

	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, id, d.ID)
	assert.Equal(t, []byte(`{"job":"a"}`), d.Body)
	assert.Equal(t, 1, d.Attempts)

	require.NoError(t, d.Ack(ctx))

	depths, err := q.Depths(ctx)
	require.NoError(t, err)
	assert.Equal(t, Depths{}, depths)

	// Queue is empty now
	d, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestDequeueIsFIFO(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	first, _, err := q.Enqueue(ctx, []byte("first"))
	require.NoError(t, err)
	second, _, err := q.Enqueue(ctx, []byte("second"))
	require.NoError(t, err)

	d1, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, d1)
	assert.Equal(t, first, d1.ID)

	d2, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, d2)
	assert.Equal(t, second, d2.ID)
}

func TestPriorityJumpsTheLine(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, _, err := q.Enqueue(ctx, []byte("normal"))
	require.NoError(t, err)
	urgent, _, err := q.Enqueue(ctx, []byte("urgent"), WithPriority())
	require.NoError(t, err)

	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, urgent, d.ID)
}

func TestEnqueueDeduplicatesByJobID(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	id1, created, err := q.Enqueue(ctx, []byte("payload"), WithJobID("job-1"))
	require.NoError(t, err)
	assert.True(t, created)

	// Same job id inside the visibility window is a no-op
	id2, created, err := q.Enqueue(ctx, []byte("payload"), WithJobID("job-1"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id1, id2)

	depths, err := q.Depths(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depths.Ready)

	// Different job id is a new message
	_, created, err = q.Enqueue(ctx, []byte("payload"), WithJobID("job-2"))
	require.NoError(t, err)
	assert.True(t, created)
}

func TestEnqueueDedupWindowExpires(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	_, created, err := q.Enqueue(ctx, []byte("payload"), WithJobID("job-1"))
	require.NoError(t, err)
	assert.True(t, created)

	// After the visibility window the seen-key is gone
	mr.FastForward(6 * time.Minute)

	_, created, err = q.Enqueue(ctx, []byte("payload"), WithJobID("job-1"))
	require.NoError(t, err)
	assert.True(t, created)
}

func TestDelayedMessageNotReadyUntilReaped(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, _, err := q.Enqueue(ctx, []byte("later"), WithDelay(time.Hour))
	require.NoError(t, err)

	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, d)

	depths, err := q.Depths(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depths.Delayed)

	// Reap before the delay elapses moves nothing
	moved, err := q.Reap(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, moved)

	// Reap after the delay promotes it
	moved, err = q.Reap(ctx, time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	d, err = q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, []byte("later"), d.Body)
}

func TestVisibilityExpiryRedelivers(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, _, err := q.Enqueue(ctx, []byte("work"))
	require.NoError(t, err)

	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, 1, d.Attempts)

	// Worker crashes: no ack. After the visibility window the reaper
	// puts the message back on ready.
	moved, err := q.Reap(ctx, time.Now().Add(6*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	d2, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, d2)
	assert.Equal(t, d.ID, d2.ID)
	assert.Equal(t, 2, d2.Attempts)
}

func TestRetryWithDelay(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, _, err := q.Enqueue(ctx, []byte("flaky"))
	require.NoError(t, err)

	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, d)

	require.NoError(t, d.Retry(ctx, time.Minute))

	depths, err := q.Depths(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depths.Delayed)
	assert.Equal(t, int64(0), depths.InFlight)

	// Promote and redeliver with the attempt count intact
	_, err = q.Reap(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)

	d2, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, d2)
	assert.Equal(t, 2, d2.Attempts)
}

func TestRetryImmediate(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, _, err := q.Enqueue(ctx, []byte("again"))
	require.NoError(t, err)

	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, d)
	require.NoError(t, d.Retry(ctx, 0))

	d2, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, d2)
	assert.Equal(t, d.ID, d2.ID)
}

func TestDeadLetter(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, _, err := q.Enqueue(ctx, []byte("poison"), WithJobID("job-9"))
	require.NoError(t, err)

	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, d)

	require.NoError(t, d.DeadLetter(ctx, "max attempts exceeded"))

	depths, err := q.Depths(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depths.Dead)
	assert.Equal(t, int64(0), depths.InFlight)

	entries, err := q.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "job-9", entries[0].JobID)
	assert.Equal(t, []byte("poison"), entries[0].Body)
	assert.Equal(t, "max attempts exceeded", entries[0].Reason)
	assert.Equal(t, 1, entries[0].Attempts)
}

func TestReplayDeadLetters(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	_, _, err := q.Enqueue(ctx, []byte("poison"), WithJobID("job-9"))
	require.NoError(t, err)

	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, d.DeadLetter(ctx, "bad day"))

	// The original seen-key must not block the replay
	mr.FastForward(6 * time.Minute)

	n, err := q.ReplayDeadLetters(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	d2, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, d2)
	assert.Equal(t, []byte("poison"), d2.Body)
	assert.Equal(t, "job-9", d2.JobID)
	// Replayed messages start a fresh attempt count
	assert.Equal(t, 1, d2.Attempts)

	depths, err := q.Depths(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), depths.Dead)
}

func TestSetDepthsAll(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	b := broker.NewWithClient(rdb)
	set := NewSet(b, time.Minute)
	ctx := context.Background()

	_, _, err := set.Intake.Enqueue(ctx, []byte("a"))
	require.NoError(t, err)
	_, _, err = set.LLM.Enqueue(ctx, []byte("b"))
	require.NoError(t, err)
	_, _, err = set.LLM.Enqueue(ctx, []byte("c"))
	require.NoError(t, err)

	depths, err := set.DepthsAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depths[Intake].Ready)
	assert.Equal(t, int64(2), depths[LLM].Ready)
	assert.Equal(t, int64(0), depths[Validator].Ready)

	assert.Equal(t, set.LLM, set.ByName(LLM))
	assert.Nil(t, set.ByName("nope"))
}
