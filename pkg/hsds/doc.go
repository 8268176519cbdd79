/*
Package hsds defines the aligned-record subset of the Human Services
Data Specification and the strict parser that enforces it.

AlignedRecord is the contract between the LLM stage and everything
downstream: one organization, an optional location, and any number of
services and schedules. The subset tracks HSDS 3.1.1 but keeps only
the fields the pipeline reconciles; SchemaJSON is the authoritative
statement of that subset, embedded verbatim in alignment prompts and
enforced on every provider response.

Parse is deliberately unforgiving. Provider output is stripped of
Markdown fences, checked against the schema, then decoded with
unknown fields disallowed, so a model that invents fields fails
loudly at the alignment stage instead of leaking surprises into the
validator. Schema violations come back as ErrSchemaViolation with the
offending paths listed, which the LLM stage treats as malformed output
worth a bounded number of fresh attempts.

The Fields methods flatten each block into name/value pairs for the
reconciler's field-level merge. Empty values are omitted so a scraper
that never saw a field does not vote against scrapers that did.
*/
package hsds
