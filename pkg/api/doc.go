/*
Package api implements the inbound HTTP surface of the pipeline.

Scrapers are plain processes that POST what they scraped; everything
downstream of that single call is the pipeline's problem. The server
also exposes read-only stats, an on-demand publish trigger, readiness,
and Prometheus metrics.

# Endpoints

	POST /api/v1/payloads   admit one scraped payload (base64 in JSON)
	GET  /api/v1/stats      content store counters + queue depths
	POST /api/v1/publish    run one synchronous publish cycle
	GET  /healthz           dependency probes (postgres, broker)
	GET  /metrics           prometheus

# Intake Contract

A payload submission carries the raw bytes plus source metadata:

	{
	  "payload":    "<base64>",
	  "scraper_id": "nyc_efap",
	  "source_url": "https://...",
	  "scraped_at": "2026-08-01T12:00:00Z"
	}

New content answers 202 Accepted with a fresh job id. Re-submitting
byte-identical content answers 200 OK with the original job id and
deduplicated=true, which is how re-run scrapers avoid re-running the
LLM. Bodies over the configured cap (default 8 MiB) answer 413.

Admission is synchronous only up to the dedup decision; alignment,
validation, and reconciliation happen on the queues. A 202 means the
payload is durable and queued, not processed.

# Publish Trigger

POST /api/v1/publish runs a full cycle inline and holds the response
until the push finishes. 409 means either another process holds the
publish lock or the ratchet guard refused a shrinking snapshot.

# See Also

  - pkg/client: the Go wrapper scrapers link against
  - pkg/contentstore: admission and dedup semantics
  - pkg/publisher: cycle and ratchet semantics
*/
package api
