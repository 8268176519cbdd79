/*
Package queue implements the reliable Redis-backed queues the pipeline
stages consume from.

Four named queues carry the flow: scrape_intake, llm, validator,
reconciler. Each is an independent Queue value on the shared broker
connection; Set bundles them so wiring code passes one value around.

# Message Lifecycle

	Enqueue ----> ready ----> Dequeue ----> inflight
	         \                                |  |  \
	          -> delayed --(due, reaper)--+   |  |   -> DeadLetter -> dlq
	                  ^                       |  Ack
	                  +------- Retry ---------+   |
	                                           (gone)

A dequeued message becomes a Delivery leased to one worker until the
visibility deadline. Exactly one of Ack, Retry, or DeadLetter settles
it. A worker that crashes mid-lease settles nothing; the reaper finds
the expired deadline and returns the message to ready with its attempt
count intact, so the next delivery knows it is a redelivery.

# Atomicity

Every state transition runs as a Lua script, so a crash between steps
can never strand a message outside exactly one of ready, delayed,
inflight, or the dead letter list. The scripts live in scripts.go with
their KEYS/ARGV contracts.

# Enqueue Options

  - WithJobID: idempotent enqueue. A second enqueue with the same job
    id inside the visibility window returns the existing message id
    instead of a duplicate. Intake relies on this when a scraper
    resubmits.
  - WithDelay: park the message in the delayed set until due. Retry
    backoff and quota holds use it.
  - WithPriority: deliver next rather than last.

# Reaping

Reap promotes due delayed messages and rescues expired inflight
deliveries in bounded batches. It takes now as an argument so tests
can move time instead of sleeping. The pipeline runtime runs a reaper
loop per process over its active queues; the pass is idempotent, so
overlapping reapers across processes are safe.

# Depths

Depths reports ready, delayed, inflight, and dead letter counts per
queue. Worker backpressure reads the downstream queue's depths before
dequeuing more work, and the stats endpoint and metrics collector
report them.
*/
package queue
