package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ladleio/ladle/pkg/broker"
)

// Pipeline queue names, in flow order
const (
	Intake     = "scrape_intake"
	LLM        = "llm"
	Validator  = "validator"
	Reconciler = "reconciler"
)

// Names lists the pipeline queues in flow order
func Names() []string {
	return []string{Intake, LLM, Validator, Reconciler}
}

const reapBatch = 100

// Queue is one named reliable queue on the broker. Messages move
// between a ready list, a delayed set, an inflight set with
// per-delivery deadlines, and a dead letter list.
type Queue struct {
	rdb  *redis.Client
	name string
	vis  time.Duration
}

// New binds a queue name on the broker. vis is the visibility window:
// how long a delivery may stay unacknowledged before the reaper
// returns it to ready.
func New(b *broker.Broker, name string, vis time.Duration) *Queue {
	if vis <= 0 {
		vis = 5 * time.Minute
	}
	return &Queue{rdb: b.Client(), name: name, vis: vis}
}

// Name returns the queue name
func (q *Queue) Name() string {
	return q.name
}

func (q *Queue) key(parts ...string) string {
	return broker.Key(append([]string{"q", q.name}, parts...)...)
}

func (q *Queue) msgKey(id string) string {
	return q.key("msg", id)
}

// Message is one delivered queue message
type Message struct {
	ID         string
	JobID      string
	Body       []byte
	Attempts   int
	EnqueuedAt time.Time
}

// Delivery is a message leased to one worker until the visibility
// deadline. Exactly one of Ack, Retry, or DeadLetter must be called.
type Delivery struct {
	Message
	q *Queue
}

type enqueueConfig struct {
	jobID    string
	delay    time.Duration
	priority bool
}

// EnqueueOption adjusts a single enqueue
type EnqueueOption func(*enqueueConfig)

// WithJobID makes the enqueue idempotent: a second enqueue with the
// same job id inside the visibility window returns the existing
// message id instead of creating a duplicate.
func WithJobID(id string) EnqueueOption {
	return func(c *enqueueConfig) { c.jobID = id }
}

// WithDelay holds the message in the delayed set until the delay
// elapses
func WithDelay(d time.Duration) EnqueueOption {
	return func(c *enqueueConfig) { c.delay = d }
}

// WithPriority places the message at the consumer end of the ready
// list so it is delivered next
func WithPriority() EnqueueOption {
	return func(c *enqueueConfig) { c.priority = true }
}

// Enqueue adds a message. Returns the message id and whether this call
// created a new message (false when the job-id guard deduplicated it).
func (q *Queue) Enqueue(ctx context.Context, body []byte, opts ...EnqueueOption) (string, bool, error) {
	var cfg enqueueConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	id := uuid.NewString()
	now := time.Now()
	readyAt := int64(0)
	if cfg.delay > 0 {
		readyAt = now.Add(cfg.delay).UnixMilli()
	}
	front := "0"
	if cfg.priority {
		front = "1"
	}

	keys := []string{q.key("ready"), q.key("delayed"), q.key("seen", cfg.jobID), q.msgKey(id)}
	res, err := enqueueScript.Run(ctx, q.rdb, keys,
		id, string(body), cfg.jobID, now.UnixMilli(), readyAt, q.vis.Milliseconds(), front,
	).Result()
	if err != nil {
		return "", false, fmt.Errorf("enqueue %s: %w", q.name, err)
	}
	reply, ok := res.([]interface{})
	if !ok || len(reply) != 2 {
		return "", false, fmt.Errorf("enqueue %s: unexpected reply %v", q.name, res)
	}
	gotID, _ := reply[0].(string)
	created, _ := reply[1].(int64)
	return gotID, created == 1, nil
}

// Dequeue leases the oldest ready message. Returns (nil, nil) when the
// queue is empty.
func (q *Queue) Dequeue(ctx context.Context) (*Delivery, error) {
	deadline := time.Now().Add(q.vis).UnixMilli()
	res, err := dequeueScript.Run(ctx, q.rdb,
		[]string{q.key("ready"), q.key("inflight")},
		q.key("msg")+":", deadline,
	).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue %s: %w", q.name, err)
	}
	reply, ok := res.([]interface{})
	if !ok || len(reply) != 5 {
		return nil, fmt.Errorf("dequeue %s: unexpected reply %v", q.name, res)
	}

	id, _ := reply[0].(string)
	bodyStr, _ := reply[1].(string)
	jobID, _ := reply[2].(string)
	attempts, _ := reply[3].(int64)
	enqStr, _ := reply[4].(string)
	enqMs, _ := strconv.ParseInt(enqStr, 10, 64)

	return &Delivery{
		Message: Message{
			ID:         id,
			JobID:      jobID,
			Body:       []byte(bodyStr),
			Attempts:   int(attempts),
			EnqueuedAt: time.UnixMilli(enqMs),
		},
		q: q,
	}, nil
}

// Ack removes the message permanently
func (d *Delivery) Ack(ctx context.Context) error {
	err := ackScript.Run(ctx, d.q.rdb,
		[]string{d.q.key("inflight"), d.q.msgKey(d.ID)}, d.ID,
	).Err()
	if err != nil {
		return fmt.Errorf("ack %s/%s: %w", d.q.name, d.ID, err)
	}
	return nil
}

// Retry returns the message for redelivery after the given delay. The
// attempt counter is preserved.
func (d *Delivery) Retry(ctx context.Context, delay time.Duration) error {
	readyAt := int64(0)
	if delay > 0 {
		readyAt = time.Now().Add(delay).UnixMilli()
	}
	err := nackScript.Run(ctx, d.q.rdb,
		[]string{d.q.key("inflight"), d.q.key("ready"), d.q.key("delayed")},
		d.ID, readyAt,
	).Err()
	if err != nil {
		return fmt.Errorf("retry %s/%s: %w", d.q.name, d.ID, err)
	}
	return nil
}

// DeadLetterEntry is the envelope stored on the dead letter list
type DeadLetterEntry struct {
	ID       string    `json:"id"`
	JobID    string    `json:"job_id,omitempty"`
	Body     []byte    `json:"body"`
	Attempts int       `json:"attempts"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

// DeadLetter moves the message to the dead letter list with a reason
func (d *Delivery) DeadLetter(ctx context.Context, reason string) error {
	entry, err := json.Marshal(DeadLetterEntry{
		ID:       d.ID,
		JobID:    d.JobID,
		Body:     d.Body,
		Attempts: d.Attempts,
		Reason:   reason,
		FailedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding dead letter: %w", err)
	}
	err = deadLetterScript.Run(ctx, d.q.rdb,
		[]string{d.q.key("inflight"), d.q.key("dlq"), d.q.msgKey(d.ID)},
		d.ID, string(entry),
	).Err()
	if err != nil {
		return fmt.Errorf("dead letter %s/%s: %w", d.q.name, d.ID, err)
	}
	return nil
}

// Reap promotes due delayed messages and requeues inflight deliveries
// whose visibility deadline passed before now. Returns how many
// messages moved.
func (q *Queue) Reap(ctx context.Context, now time.Time) (int, error) {
	moved, err := reapScript.Run(ctx, q.rdb,
		[]string{q.key("delayed"), q.key("ready"), q.key("inflight")},
		now.UnixMilli(), reapBatch,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("reap %s: %w", q.name, err)
	}
	return moved, nil
}

// Depths summarizes a queue for backpressure checks and stats
type Depths struct {
	Ready    int64 `json:"ready"`
	Delayed  int64 `json:"delayed"`
	InFlight int64 `json:"in_flight"`
	Dead     int64 `json:"dead"`
}

// Total returns messages that still expect processing
func (d Depths) Total() int64 {
	return d.Ready + d.Delayed + d.InFlight
}

// Depths reports the current queue depths
func (q *Queue) Depths(ctx context.Context) (Depths, error) {
	pipe := q.rdb.Pipeline()
	ready := pipe.LLen(ctx, q.key("ready"))
	delayed := pipe.ZCard(ctx, q.key("delayed"))
	inflight := pipe.ZCard(ctx, q.key("inflight"))
	dead := pipe.LLen(ctx, q.key("dlq"))
	if _, err := pipe.Exec(ctx); err != nil {
		return Depths{}, fmt.Errorf("depths %s: %w", q.name, err)
	}
	return Depths{
		Ready:    ready.Val(),
		Delayed:  delayed.Val(),
		InFlight: inflight.Val(),
		Dead:     dead.Val(),
	}, nil
}

// DeadLetters returns up to limit entries from the dead letter list,
// newest first
func (q *Queue) DeadLetters(ctx context.Context, limit int64) ([]DeadLetterEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	raw, err := q.rdb.LRange(ctx, q.key("dlq"), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading dead letters %s: %w", q.name, err)
	}
	entries := make([]DeadLetterEntry, 0, len(raw))
	for _, item := range raw {
		var e DeadLetterEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ReplayDeadLetters re-enqueues up to limit dead letters as fresh
// messages. Operator tool for after an outage or a bug fix.
func (q *Queue) ReplayDeadLetters(ctx context.Context, limit int) (int, error) {
	replayed := 0
	for replayed < limit {
		item, err := q.rdb.RPop(ctx, q.key("dlq")).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return replayed, fmt.Errorf("popping dead letter %s: %w", q.name, err)
		}
		var e DeadLetterEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue
		}
		if _, _, err := q.Enqueue(ctx, e.Body, WithJobID(e.JobID)); err != nil {
			// Put the entry back so nothing is lost
			_ = q.rdb.RPush(ctx, q.key("dlq"), item).Err()
			return replayed, err
		}
		replayed++
	}
	return replayed, nil
}
