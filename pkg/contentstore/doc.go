/*
Package contentstore provides content-addressed storage and exactly-once
admission for scraped payloads.

Every payload entering the pipeline passes through this package first. The
payload bytes are hashed with SHA-256 and written to a sharded blob store on
disk; a Postgres index keyed by that hash tracks the processing lifecycle.
Identical bytes submitted twice are recognized and collapse onto the
original job, which is what keeps re-running a scraper from re-running the
LLM.

# Architecture

	              Submit(payload, meta)
	                      |
	                      v
	            +------------------+
	            |     SHA-256      |
	            +------------------+
	                      |
	         +------------+------------+
	         v                         v
	+-----------------+      +------------------+
	|    BlobStore    |      |  content_records |
	|  objects/ab/..  |      |  (Postgres, row  |
	|  outputs/ab/..  |      |   per hash)      |
	+-----------------+      +------------------+
	   gzip blobs on disk      status lifecycle

# Record Lifecycle

Each content record moves through a fixed set of states:

	new -> pending -> completed
	  \       \
	   \       +---> failed
	    +----------> failed

Submit returns WasNew=true and a fresh job id when the hash has never been
seen, or when the prior attempt ended in failed (restart). While a record is
pending or completed, resubmitting the same bytes returns the original job
id with WasNew=false.

Status transitions are guarded UPDATEs. An update that matches zero rows is
resolved into ErrNotFound or ErrIllegalTransition, so a worker that tries to
complete a job that was never picked up gets a real error instead of a
silent no-op.

# Blob Layout

Blobs live under the store root, sharded by the first two hex characters of
the hash to keep directory fan-out sane:

	objects/3f/3fa4b1...9c.gz        raw scraped payload, gzipped
	outputs/3f/3fa4b1...9c.json.gz   aligned LLM output, gzipped

Writes go through a temp file and rename, so a crashed process never leaves
a partial blob at the final path. Payload writes are idempotent: if the
object already exists the bytes are identical (same hash) and the write is
skipped.

# Usage

	store, err := contentstore.New(db, cfg.ContentStorePath)
	if err != nil {
		return err
	}

	result, err := store.Submit(ctx, payload, types.SourceMetadata{
		ScraperID: "nyc_efap",
		SourceURL: url,
		ScrapedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if result.WasNew {
		// enqueue an alignment job for result.JobID
	}

# Integration Points

  - pkg/intake: calls Submit for every payload arriving over the API
  - pkg/llm: reads payloads, stores aligned outputs, drives the
    pending/completed/failed transitions
  - pkg/api: exposes Stats on the stats endpoint

# See Also

  - pkg/types: ContentRecord, SubmitResult, ContentStats
  - pkg/queue: carries job ids and hashes, never payload bytes
*/
package contentstore
