package events

import (
	"sync"
	"time"
)

// EventType names a pipeline lifecycle event
type EventType string

const (
	EventPayloadReceived     EventType = "payload.received"
	EventPayloadDeduplicated EventType = "payload.deduplicated"
	EventRecordAligned       EventType = "record.aligned"
	EventAlignmentFailed     EventType = "alignment.failed"
	EventQuotaHold           EventType = "quota.hold"
	EventRecordAccepted      EventType = "record.accepted"
	EventRecordRejected      EventType = "record.rejected"
	EventEntityCreated       EventType = "entity.created"
	EventEntityMerged        EventType = "entity.merged"
	EventJobDeadLettered     EventType = "job.dead_lettered"
	EventSnapshotPublished   EventType = "snapshot.published"
	EventPublishGuardAbort   EventType = "publish.guard_abort"
	EventBreakerOpened       EventType = "breaker.opened"
)

const (
	// central buffer between publishers and the broadcast loop
	brokerBuffer = 100
	// per-subscriber buffer; a full subscriber misses events
	subscriberBuffer = 50
)

// Event is one pipeline lifecycle moment with identifying metadata
type Event struct {
	Type      EventType
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// Subscriber receives broadcast events until Unsubscribe closes it
type Subscriber chan *Event

// Broker fans events out to every subscriber without ever blocking a
// publisher. Delivery is at most once per subscriber.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]struct{}
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates an event broker. Start must be called before
// published events reach subscribers.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]struct{}),
		eventCh:     make(chan *Event, brokerBuffer),
		stopCh:      make(chan struct{}),
	}
}

// Start launches the broadcast loop
func (b *Broker) Start() {
	go b.run()
}

// Stop ends the broadcast loop. Events published after Stop are
// dropped.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe registers a new subscriber channel
func (b *Broker) Subscribe() Subscriber {
	sub := make(Subscriber, subscriberBuffer)
	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes the subscriber and closes its channel
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	delete(b.subscribers, sub)
	b.mu.Unlock()
	close(sub)
}

// Publish hands an event to the broadcast loop, stamping the time if
// the caller did not
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

// Emit is shorthand for publishing a typed event with metadata. A nil
// broker drops the event, so components can leave events unwired.
func (b *Broker) Emit(typ EventType, message string, metadata map[string]string) {
	if b == nil {
		return
	}
	b.Publish(&Event{Type: typ, Message: message, Metadata: metadata})
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

// broadcast never blocks on a subscriber; a full buffer drops the
// event for that subscriber only
func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
		}
	}
}
