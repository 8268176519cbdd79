/*
Package metrics defines and registers the Prometheus metrics for the
ladle pipeline.

All metrics are registered on the default registry at package init and
exposed through Handler(), which the API server mounts at /metrics.
Counters and histograms are incremented at the point of work; gauges
that mirror shared state (queue depths, content record counts, quota
holds, breaker flags) are sampled by the Collector on a fixed interval.

# Metrics Catalog

Queue metrics:

	ladle_queue_depth{queue, state}
	  Gauge. Messages per queue and state (ready, delayed, in_flight, dead).

	ladle_jobs_processed_total{queue, outcome}
	  Counter. Settled deliveries by outcome (ack, retry, dead_letter).

	ladle_job_duration_seconds{queue}
	  Histogram. Handler execution time.

Content store metrics:

	ladle_payloads_submitted_total{result}
	  Counter. Submissions by result (new, deduplicated).

	ladle_content_records{status}
	  Gauge. Content records by status (new, pending, completed, failed).

	ladle_content_bytes
	  Gauge. Total stored payload bytes.

LLM metrics:

	ladle_llm_calls_total{provider, result}
	  Counter. Provider calls by result (ok, quota, transient,
	  malformed, permanent).

	ladle_llm_call_duration_seconds{provider}
	  Histogram. Provider call latency.

	ladle_llm_quota_hold{provider}
	  Gauge. 1 while a quota hold is active.

Validator and geocoder metrics:

	ladle_records_validated_total{outcome}
	  Counter. Validated records by outcome (accepted, rejected).

	ladle_validation_score
	  Histogram. Distribution of validation scores.

	ladle_geocode_requests_total{provider, result}
	  Counter. Lookups by provider and result (ok, miss, error, skipped).

	ladle_geocode_cache_total{result}
	  Counter. Cache lookups by result (hit, miss).

	ladle_breaker_open{provider}
	  Gauge. 1 while the provider circuit breaker is open.

Reconciler metrics:

	ladle_entities_reconciled_total{kind, action}
	  Counter. Reconciled entities by kind and action (created, merged).

	ladle_field_changes_total{kind}
	  Counter. Canonical field changes written.

Publisher metrics:

	ladle_publish_cycles_total{result}
	  Counter. Cycles by result (published, guard_abort, error, skipped).

	ladle_published_entities{kind}
	  Gauge. Entity counts in the last published snapshot.

	ladle_publish_duration_seconds
	  Histogram. End-to-end cycle duration.

API metrics:

	ladle_api_requests_total{method, status}
	  Counter. Requests by HTTP method and response status.

	ladle_api_request_duration_seconds{method}
	  Histogram. Request duration.

# Usage

Counters and histograms are updated inline where the work happens:

	metrics.JobsProcessed.WithLabelValues(queueName, "ack").Inc()

	timer := metrics.NewTimer()
	// ... handle the delivery ...
	timer.ObserveDurationVec(metrics.JobDuration, queueName)

Sampled gauges come from the Collector, which polls queue depths,
content stats, the quota hold, and breaker flags every 15 seconds:

	c := metrics.NewCollector(broker, queues, contentStore, "openai", providers)
	c.Start()
	defer c.Stop()

# Useful Queries

	Dead letter growth:  rate(ladle_queue_depth{state="dead"}[10m])
	Dedup ratio:         rate(ladle_payloads_submitted_total{result="deduplicated"}[1h])
	                     / rate(ladle_payloads_submitted_total[1h])
	Rejection rate:      rate(ladle_records_validated_total{outcome="rejected"}[1h])
	Quota pressure:      max(ladle_llm_quota_hold)
	p95 handler latency: histogram_quantile(0.95,
	                     rate(ladle_job_duration_seconds_bucket[5m]))

Keep label cardinality bounded: queue names, providers, entity kinds
and outcomes are all small fixed sets. Never label by job ID or hash.
*/
package metrics
