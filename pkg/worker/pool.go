package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ladleio/ladle/pkg/events"
	"github.com/ladleio/ladle/pkg/log"
	"github.com/ladleio/ladle/pkg/metrics"
	"github.com/ladleio/ladle/pkg/queue"
)

// OutcomeKind is what a handler decided about a delivery
type OutcomeKind int

const (
	OutcomeAck OutcomeKind = iota
	OutcomeRetry
	OutcomeDeadLetter
)

// Outcome is a handler's verdict on one delivery
type Outcome struct {
	Kind   OutcomeKind
	Delay  time.Duration
	Reason string
}

// Ack marks the job done
func Ack() Outcome {
	return Outcome{Kind: OutcomeAck}
}

// Retry returns the job for redelivery after the delay
func Retry(delay time.Duration) Outcome {
	return Outcome{Kind: OutcomeRetry, Delay: delay}
}

// DeadLetter parks the job on the dead letter list
func DeadLetter(reason string) Outcome {
	return Outcome{Kind: OutcomeDeadLetter, Reason: reason}
}

// Handler processes one delivery. Implementations must be safe for
// concurrent use; the pool calls Handle from every worker goroutine.
type Handler interface {
	Handle(ctx context.Context, d *queue.Delivery) Outcome
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, d *queue.Delivery) Outcome

// Handle calls the function
func (f HandlerFunc) Handle(ctx context.Context, d *queue.Delivery) Outcome {
	return f(ctx, d)
}

// BackpressureFunc reports whether the pool should hold off dequeuing,
// typically because a downstream queue is past its high-water mark
type BackpressureFunc func(ctx context.Context) bool

// Options tunes a pool
type Options struct {
	// Workers is the number of concurrent handler goroutines (min 1)
	Workers int

	// PollInterval is the idle sleep when the queue is empty
	PollInterval time.Duration

	// MaxAttempts dead-letters a delivery before handling when its
	// attempt count exceeds this (0 disables the guard)
	MaxAttempts int

	// JobTimeout bounds a single Handle call (0 means no bound beyond
	// the pool context)
	JobTimeout time.Duration

	// Backpressure, when set, pauses dequeuing while it returns true
	Backpressure BackpressureFunc

	// Events, when set, receives job.dead_lettered events
	Events *events.Broker
}

// settleTimeout bounds ack/retry/dead-letter calls. Settling runs on a
// fresh context so a canceled pool still records the outcome instead
// of leaving the delivery to time out.
const settleTimeout = 10 * time.Second

// Pool runs the dequeue -> handle -> settle loop for one queue
type Pool struct {
	q       *queue.Queue
	handler Handler
	opts    Options
	log     zerolog.Logger
}

// NewPool builds a pool over a queue and handler
func NewPool(q *queue.Queue, h Handler, opts Options) *Pool {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	return &Pool{
		q:       q,
		handler: h,
		opts:    opts,
		log:     log.WithQueue(q.Name()),
	}
}

// Run blocks until the context is canceled. Every worker settles its
// current delivery before exiting.
func (p *Pool) Run(ctx context.Context) error {
	p.log.Info().Int("workers", p.opts.Workers).Msg("worker pool starting")

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.opts.Workers; i++ {
		id := i
		g.Go(func() error {
			p.runWorker(ctx, id)
			return nil
		})
	}
	err := g.Wait()
	p.log.Info().Msg("worker pool stopped")
	return err
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if p.opts.Backpressure != nil && p.opts.Backpressure(ctx) {
			p.sleep(ctx, p.opts.PollInterval)
			continue
		}

		d, err := p.q.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Error().Err(err).Int("worker", id).Msg("dequeue failed")
			p.sleep(ctx, p.opts.PollInterval)
			continue
		}
		if d == nil {
			p.sleep(ctx, p.opts.PollInterval)
			continue
		}

		p.process(ctx, d)
	}
}

func (p *Pool) process(ctx context.Context, d *queue.Delivery) {
	if p.opts.MaxAttempts > 0 && d.Attempts > p.opts.MaxAttempts {
		reason := fmt.Sprintf("max attempts exceeded (%d)", d.Attempts-1)
		p.settle(d, DeadLetter(reason))
		return
	}

	hctx := ctx
	if p.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, p.opts.JobTimeout)
		defer cancel()
	}

	timer := metrics.NewTimer()
	outcome := p.handler.Handle(hctx, d)
	metrics.JobDuration.WithLabelValues(p.q.Name()).Observe(timer.Duration().Seconds())

	p.settle(d, outcome)
}

// settle records the outcome on a fresh context: the pool context may
// already be canceled during shutdown and the delivery must not be
// left to the reaper.
func (p *Pool) settle(d *queue.Delivery, o Outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()

	var err error
	switch o.Kind {
	case OutcomeAck:
		err = d.Ack(ctx)
		metrics.JobsProcessed.WithLabelValues(p.q.Name(), "ack").Inc()
	case OutcomeRetry:
		err = d.Retry(ctx, o.Delay)
		metrics.JobsProcessed.WithLabelValues(p.q.Name(), "retry").Inc()
		p.log.Debug().Str("job_id", d.JobID).Dur("delay", o.Delay).Int("attempts", d.Attempts).
			Msg("job scheduled for retry")
	case OutcomeDeadLetter:
		err = d.DeadLetter(ctx, o.Reason)
		metrics.JobsProcessed.WithLabelValues(p.q.Name(), "dead_letter").Inc()
		p.log.Warn().Str("job_id", d.JobID).Str("reason", o.Reason).Int("attempts", d.Attempts).
			Msg("job dead lettered")
		if p.opts.Events != nil {
			p.opts.Events.Emit(events.EventJobDeadLettered, o.Reason, map[string]string{
				"queue":  p.q.Name(),
				"job_id": d.JobID,
			})
		}
	}
	if err != nil {
		// the visibility deadline will re-deliver; log and move on
		p.log.Error().Err(err).Str("job_id", d.JobID).Msg("failed to settle delivery")
	}
}

func (p *Pool) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
