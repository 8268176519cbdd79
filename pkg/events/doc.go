/*
Package events provides in-process pub/sub for pipeline lifecycle
events.

One Broker fans events out to every subscriber. Publishing never
blocks the pipeline: the broker buffers centrally, each subscriber
gets its own buffered channel, and a subscriber that stops draining
loses events rather than stalling the workers that emit them. Events
are observability, not state; nothing in the pipeline depends on an
event being delivered.

# Architecture

	intake  llm  validator  reconciler  pool  publisher  geocoder
	   \     |       |          |        |        |         /
	    +----+-------+----------+--------+--------+--------+
	                           |
	                     Emit / Publish
	                           |
	                     +-----------+
	                     |  Broker   |  central buffer (100)
	                     +-----------+
	                      /         \
	               Subscriber     Subscriber   per-sub buffer (50)

# Event Types

Intake (pkg/contentstore):

  - payload.received: a new payload was stored and enqueued for
    alignment. Metadata: job_id, scraper_id.
  - payload.deduplicated: the payload hash was already known; the
    original job id is returned to the submitter. Metadata: job_id,
    scraper_id.

Alignment (pkg/llm):

  - record.aligned: the provider produced a valid aligned record.
    Metadata: job_id, scraper_id.
  - alignment.failed: alignment failed permanently and the record
    will not progress. Metadata: job_id, kind.
  - quota.hold: the provider reported quota exhaustion and a shared
    hold was set; every worker backs off until it expires. Metadata:
    provider, hold.

Validation (pkg/validator):

  - record.accepted: the record scored at or above the threshold and
    moved on to reconciliation. Metadata: job_id, score.
  - record.rejected: the record scored below the threshold or tripped
    a hard rule and was written to the rejection log. Metadata:
    job_id, score, test_data.

Reconciliation (pkg/reconciler):

  - entity.created: canonical entities were created for this record.
    Metadata: job_id, org_id, entities.
  - entity.merged: the record merged into existing canonical
    entities. Metadata: job_id, org_id, entities, versions.

Queue processing (pkg/worker):

  - job.dead_lettered: a job exhausted its attempts or failed
    permanently and moved to the dead letter queue. The event message
    carries the reason. Metadata: queue, job_id.

Publishing (pkg/publisher):

  - snapshot.published: a publish cycle wrote and committed a
    snapshot. Metadata: commit, rows.
  - publish.guard_abort: the ratchet guard rejected a snapshot whose
    row count fell below the floor; nothing was committed. Metadata:
    entity, count, floor.

Geocoding (pkg/geocoder):

  - breaker.opened: a provider's circuit breaker opened and the trip
    was mirrored to the broker for the fleet. Metadata: provider,
    cooldown.

# Usage

Emitting:

	ev.Emit(events.EventRecordAccepted, "record accepted", map[string]string{
		"job_id": job.JobID,
		"score":  strconv.Itoa(res.Score),
	})

Emit on a nil *Broker is a no-op, so handlers constructed without an
events broker (tests, one-off tools) need no guards.

Consuming:

	sub := ev.Subscribe()
	defer ev.Unsubscribe(sub)
	for e := range sub {
		fmt.Printf("[%s] %s\n", e.Type, e.Message)
	}

Unsubscribe closes the channel, ending the range loop.

# Delivery Semantics

At-most-once, in-process only. The central buffer holds 100 events and
each subscriber channel holds 50; when either is full the event is
dropped for that path. An event published before Start or after Stop
is discarded. Events do not survive a restart and do not cross
processes; cross-process coordination (quota holds, breaker flags)
lives in pkg/broker instead.

# Integration Points

The pipeline Runtime is the standing subscriber: it drains its
subscription into debug logs for the life of the process. Everything
durable about these moments is recorded elsewhere (log lines, metrics
counters, database rows); the event stream exists for live observation
and tests.
*/
package events
