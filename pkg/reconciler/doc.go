// Package reconciler folds accepted records from many scrapers into
// one canonical entity per real-world organization, location, and
// service.
//
// # Matching
//
// Each record resolves to canonical rows before any write:
//
//	organization  exact normalized name, else the scraper's own source
//	              id trail when the stored name is still similar enough
//	location      within the coordinate tolerance of an existing row of
//	              the same organization AND with a similar address line;
//	              the nearest qualifying row wins
//	service       exact normalized name within the organization
//
// Name and address normalization lowercases, strips punctuation,
// spells out ampersands, and folds street suffixes to their USPS
// abbreviations, so "123 Main Street" and "123 Main St." compare
// equal. Similarity is a Levenshtein ratio over the normalized forms.
//
// # Merging
//
// Canonical field values are decided by majority vote. Every scraper
// votes its latest stored observation per field; the incoming record
// replaces its own scraper's stored ballot before counting. Ties break
// by configured source priority, then by recency with the live
// observation counting as newest, then by value for determinism.
// Fields the incoming record does not mention keep their canonical
// values, and a re-submitted unchanged record produces no writes at
// all. Every decided change lands in the append-only version history
// with the winning scraper credited as its source.
//
// # Concurrency
//
// All writes for one record happen in a single transaction guarded by
// Postgres advisory locks on the match keys, taken in a fixed order
// (organization, then location, then services) so concurrent workers
// integrating the same entity serialise instead of deadlocking.
// Transient transaction failures retry with exponential backoff inside
// the handler; a constraint violation that survives every retry is
// classified as an integrity error and dead-letters with its SQLSTATE
// intact for operators.
package reconciler
