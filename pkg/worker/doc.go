/*
Package worker runs the dequeue -> handle -> settle loop shared by every
pipeline stage.

A Pool binds one queue to one Handler and runs N goroutines over it. The
pool owns everything that is identical across stages: empty-queue
polling, the max-attempts guard, per-job timeouts, downstream
backpressure, outcome metrics, and settling each delivery exactly once
even during shutdown. Handlers own only the domain work and answer with
one of three outcomes.

# Architecture

	              +---------------------------------------+
	              |                 Pool                  |
	              |                                       |
	  queue ----->|  worker 0   worker 1   ...  worker N  |
	  (broker)    |     |          |               |      |
	              |     v          v               v      |
	              |  dequeue -> backpressure? -> attempts |
	              |     |                           |     |
	              |     v                           v     |
	              |  Handler.Handle(ctx, delivery)  DLQ   |
	              |     |                                 |
	              |     v                                 |
	              |  settle: Ack | Retry(d) | DeadLetter  |
	              +---------------------------------------+

# Outcomes

Handlers never touch the queue directly. They return:

  - Ack(): the job is done, remove it.
  - Retry(delay): transient trouble, redeliver after the delay. The
    attempt counter is preserved across retries.
  - DeadLetter(reason): the job cannot succeed, park it for operators.

Deliveries whose attempt count exceeds MaxAttempts are dead-lettered
before the handler runs, so a poison message cannot loop forever no
matter what the handler does.

# Shutdown

Run blocks until its context is canceled. A worker that is mid-job
finishes the handler call and settles the outcome on a fresh context,
so cancellation never abandons a delivery to the visibility reaper.

# Backpressure

An optional BackpressureFunc pauses dequeuing while it returns true.
DepthBackpressure builds one from a downstream queue and a high-water
mark, which is how the validator pool stops accepting work when the
reconciler queue backs up.

# Usage

	h := worker.HandlerFunc(func(ctx context.Context, d *queue.Delivery) worker.Outcome {
		var job types.ValidateJob
		if err := json.Unmarshal(d.Body, &job); err != nil {
			return worker.DeadLetter("malformed payload")
		}
		if err := process(ctx, job); err != nil {
			return worker.Retry(30 * time.Second)
		}
		return worker.Ack()
	})

	pool := worker.NewPool(queues.Validator, h, worker.Options{
		Workers:      cfg.Workers.Validator,
		MaxAttempts:  cfg.Queue.MaxAttempts,
		Backpressure: worker.DepthBackpressure(queues.Reconciler, int64(cfg.Queue.HighWater)),
	})
	if err := pool.Run(ctx); err != nil {
		return err
	}

# Integration Points

  - pkg/queue: delivery lease, ack/nack, dead letter list
  - pkg/llm, pkg/validator, pkg/reconciler, pkg/intake: stage handlers
  - pkg/metrics: job duration histograms and outcome counters
  - pkg/events: job.dead_lettered notifications

# See Also

  - pkg/pipeline for how pools are assembled into the full runtime
  - pkg/queue for delivery and visibility semantics
*/
package worker
