// Package publisher turns the canonical store into a distributable
// dataset: newline-delimited JSON per entity, a GeoJSON point
// collection for mappable locations, and a single SQLite file with the
// full relational projection, committed to an external git repository.
//
// # Cycle
//
// Each cycle takes the broker lock (single writer across processes),
// reads every table through one repeatable-read snapshot, checks the
// ratchet guard, stages artifacts in the working copy, commits with a
// structured row-count message, and pushes. Any failure after staging
// leaves the remote untouched; a partial dataset is never published.
// Cycles run on a cron schedule and on demand, and a cycle that finds
// nothing changed records itself without committing.
//
// # Ratchet
//
// Per-entity high-water marks persist in a bbolt state file. A
// snapshot in which any entity count falls below the configured
// fraction of its mark aborts the cycle, on the theory that real
// datasets grow and a sudden shrink is a broken pipeline, not reality.
// Marks only move upward; the override flag publishes anyway and
// adopts the shrunken counts as the new baseline.
//
// Rows are exported in id order so an unchanged dataset produces
// byte-identical artifacts and an empty diff.
package publisher
