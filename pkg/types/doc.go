/*
Package types defines the shared vocabulary of the pipeline.

Every stage speaks the same nouns: raw payloads enter as content
records, the LLM stage turns them into aligned entities, validation
summarizes rule outcomes, reconciliation writes canonical entities
with per-field provenance, and everything that fails carries a
classified error. This package holds those types and nothing else; it
imports no other ladle package so every package can import it.

# Content Flow

  - SourceMetadata: who scraped the payload, from where, and when.
  - ContentRecord: one stored payload keyed by its SHA-256 hash, with
    a ProcessingStatus (new, pending, completed, failed) that tracks
    its progress through the stages.
  - SubmitResult: the intake answer, including whether the payload
    deduplicated against an earlier submission.
  - ContentStats: store-wide counts and byte totals for the stats
    endpoint and the metrics collector.

# Canonical Entities

Organization, Location, Service, ServiceAtLocation, and Schedule
mirror the published data model. EntityKind names the three
reconciled kinds, and LockClass maps each kind to its own advisory
lock key space so organizations and locations never contend on the
same key.

FieldMap records which scraper last wrote each field of a canonical
entity; the reconciler's majority-vote merge reads it and every write
updates it. SourceRecord ties a canonical entity back to one
scraper's view of it, and VersionEntry is one line of the append-only
change history. FieldMap and RuleOutcomes implement driver.Valuer and
sql.Scanner so they round-trip through jsonb columns without
hand-written marshaling at call sites.

# Validation

RuleOutcome is one rule's verdict on a record; ValidationSummary
aggregates the outcomes with the final score. Rejection is the row
written when a record fails, preserving the scored record and its
outcomes for review.

# Job Envelopes

IntakeJob, AlignJob, ValidateJob, and ReconcileJob are the payloads
the four queues carry. Each envelope holds only identifiers and small
metadata; large payloads stay in the content store and are fetched by
hash, so a queue entry never grows with document size.

# Error Classification

ErrorKind classifies failures for retry policy:

  - transient: infrastructure hiccup, retry with backoff
  - quota: provider quota exhausted, retry after the shared hold
  - malformed: bad model output, bounded retries then dead letter
  - rejection: validation failure, terminal but expected
  - integrity: stored data contradicts itself, dead letter for a human
  - fatal: no retry will ever help, dead letter immediately

Wrap errors at the point where the kind is known:

	if resp.StatusCode == http.StatusTooManyRequests {
		return types.Errorf(types.ErrKindQuota, "provider returned 429")
	}
	return types.WrapError(types.ErrKindTransient, err)

KindOf walks the wrapped chain and returns the first kind it finds,
falling back to transient for unclassified errors, so plain errors
from third party code default to the safe retrying path.
*/
package types
