package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	assert.Equal(t, 2, b.SubscriberCount())

	b.Emit(EventRecordAccepted, "record accepted", map[string]string{"job_id": "j-1"})

	for _, sub := range []Subscriber{sub1, sub2} {
		select {
		case ev := <-sub:
			assert.Equal(t, EventRecordAccepted, ev.Type)
			assert.Equal(t, "j-1", ev.Metadata["job_id"])
			assert.False(t, ev.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())

	_, open := <-sub
	assert.False(t, open)
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	slow := b.Subscribe()
	fast := b.Subscribe()

	// Overflow the slow subscriber's buffer without draining it
	for i := 0; i < 60; i++ {
		b.Emit(EventPayloadReceived, "payload", nil)
	}

	// The fast subscriber still gets events up to its own buffer
	received := 0
	deadline := time.After(time.Second)
	for received < 50 {
		select {
		case <-fast:
			received++
		case <-deadline:
			t.Fatalf("fast subscriber stalled after %d events", received)
		}
	}
	require.Equal(t, 50, received)
	_ = slow
}
