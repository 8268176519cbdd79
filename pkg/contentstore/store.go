package contentstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/ladleio/ladle/pkg/log"
	"github.com/ladleio/ladle/pkg/types"
)

var (
	// ErrNotFound means no content record matches the hash or job id
	ErrNotFound = errors.New("contentstore: record not found")

	// ErrIllegalTransition means the requested status change violates
	// the record lifecycle (new -> pending -> completed | failed)
	ErrIllegalTransition = errors.New("contentstore: illegal status transition")
)

// Store is the content-addressed dedup index: a Postgres table keyed
// by payload hash plus a blob store for the bytes themselves. Tables
// see hashes and refs only; payloads never enter Postgres.
type Store struct {
	db    *sqlx.DB
	blobs *BlobStore
	log   zerolog.Logger
}

// New opens the store over an existing database handle and a blob root
func New(db *sqlx.DB, blobRoot string) (*Store, error) {
	blobs, err := NewBlobStore(blobRoot)
	if err != nil {
		return nil, err
	}
	return &Store{
		db:    db,
		blobs: blobs,
		log:   log.WithComponent("contentstore"),
	}, nil
}

// Submit stores a payload and returns its job handle. Identical bytes
// submitted while a prior submission is pending or completed return
// the original job id with WasNew false; failed or never-started
// submissions are restarted under a fresh job id.
func (s *Store) Submit(ctx context.Context, payload []byte, meta types.SourceMetadata) (types.SubmitResult, error) {
	if len(payload) == 0 {
		return types.SubmitResult{}, fmt.Errorf("contentstore: empty payload")
	}
	hash := HashOf(payload)

	// Blob first: if the transaction below fails the blob is orphaned,
	// not lost, and a retry reuses it.
	if err := s.blobs.WritePayload(hash, payload); err != nil {
		return types.SubmitResult{}, err
	}

	scrapedAt := meta.ScrapedAt
	if scrapedAt.IsZero() {
		scrapedAt = time.Now().UTC()
	}

	var result types.SubmitResult
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var existing struct {
			JobID  string                 `db:"job_id"`
			Status types.ProcessingStatus `db:"status"`
		}
		err := tx.GetContext(ctx, &existing,
			`SELECT job_id, status FROM content_records WHERE hash = $1 FOR UPDATE`, hash)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			jobID := uuid.NewString()
			_, err := tx.ExecContext(ctx,
				`INSERT INTO content_records (hash, status, job_id, scraper_id, source_url, scraped_at, byte_size)
				 VALUES ($1, 'new', $2, $3, $4, $5, $6)`,
				hash, jobID, meta.ScraperID, meta.SourceURL, scrapedAt, len(payload))
			if err != nil {
				return fmt.Errorf("inserting content record: %w", err)
			}
			result = types.SubmitResult{JobID: jobID, Hash: hash, WasNew: true}
			return nil

		case err != nil:
			return fmt.Errorf("looking up content record: %w", err)

		case existing.Status == types.StatusPending || existing.Status == types.StatusCompleted:
			result = types.SubmitResult{JobID: existing.JobID, Hash: hash, WasNew: false}
			return nil

		default:
			// new or failed: restart under a fresh job id
			jobID := uuid.NewString()
			_, err := tx.ExecContext(ctx,
				`UPDATE content_records
				 SET job_id = $2, status = 'new', scraper_id = $3, source_url = $4, scraped_at = $5, error_kind = '', updated_at = now()
				 WHERE hash = $1`,
				hash, jobID, meta.ScraperID, meta.SourceURL, scrapedAt)
			if err != nil {
				return fmt.Errorf("restarting content record: %w", err)
			}
			result = types.SubmitResult{JobID: jobID, Hash: hash, WasNew: true}
			return nil
		}
	})
	if err != nil {
		return types.SubmitResult{}, err
	}
	return result, nil
}

// Reset returns a record to new after a downstream enqueue failed, so
// a later submission of the same bytes can retry. Completed records
// are left alone.
func (s *Store) Reset(ctx context.Context, hash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE content_records SET status = 'new', updated_at = now()
		 WHERE hash = $1 AND status IN ('new', 'pending')`, hash)
	if err != nil {
		return fmt.Errorf("resetting content record: %w", err)
	}
	return s.checkTransition(ctx, res, "hash", hash)
}

// MarkPending records that an alignment worker picked the job up.
// Re-marking a pending record (queue redelivery) is a no-op.
func (s *Store) MarkPending(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE content_records SET status = 'pending', updated_at = now()
		 WHERE job_id = $1 AND status IN ('new', 'pending')`, jobID)
	if err != nil {
		return fmt.Errorf("marking pending: %w", err)
	}
	return s.checkTransition(ctx, res, "job_id", jobID)
}

// MarkCompleted records a successful alignment and where its output
// lives. Idempotent for redeliveries of an already-completed job.
func (s *Store) MarkCompleted(ctx context.Context, jobID, outputRef string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE content_records SET status = 'completed', output_ref = $2, error_kind = '', updated_at = now()
		 WHERE job_id = $1 AND status IN ('pending', 'completed')`, jobID, outputRef)
	if err != nil {
		return fmt.Errorf("marking completed: %w", err)
	}
	return s.checkTransition(ctx, res, "job_id", jobID)
}

// MarkFailed records a terminal alignment failure with its error kind
func (s *Store) MarkFailed(ctx context.Context, jobID string, kind types.ErrorKind) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE content_records SET status = 'failed', error_kind = $2, updated_at = now()
		 WHERE job_id = $1 AND status IN ('new', 'pending', 'failed')`, jobID, string(kind))
	if err != nil {
		return fmt.Errorf("marking failed: %w", err)
	}
	return s.checkTransition(ctx, res, "job_id", jobID)
}

// checkTransition distinguishes "no such record" from "record exists
// but the transition is illegal" after a guarded UPDATE matched zero rows
func (s *Store) checkTransition(ctx context.Context, res sql.Result, col, val string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}
	var n int
	query := `SELECT count(*) FROM content_records WHERE ` + col + ` = $1`
	if err := s.db.GetContext(ctx, &n, query, val); err != nil {
		return fmt.Errorf("checking record existence: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrIllegalTransition
}

// GetByHash returns the content record for a payload hash
func (s *Store) GetByHash(ctx context.Context, hash string) (*types.ContentRecord, error) {
	var rec types.ContentRecord
	err := s.db.GetContext(ctx, &rec, `SELECT * FROM content_records WHERE hash = $1`, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading content record: %w", err)
	}
	return &rec, nil
}

// GetByJob returns the content record for a job id
func (s *Store) GetByJob(ctx context.Context, jobID string) (*types.ContentRecord, error) {
	var rec types.ContentRecord
	err := s.db.GetContext(ctx, &rec, `SELECT * FROM content_records WHERE job_id = $1`, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading content record: %w", err)
	}
	return &rec, nil
}

// ReadPayload returns the original payload bytes for a hash
func (s *Store) ReadPayload(hash string) ([]byte, error) {
	return s.blobs.ReadPayload(hash)
}

// StoreOutput persists an alignment output and returns its ref
func (s *Store) StoreOutput(hash string, data []byte) (string, error) {
	return s.blobs.WriteOutput(hash, data)
}

// ReadOutput returns a stored alignment output
func (s *Store) ReadOutput(ref string) ([]byte, error) {
	return s.blobs.ReadOutput(ref)
}

// Stats summarizes the store by status
func (s *Store) Stats(ctx context.Context) (types.ContentStats, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT status, count(*) AS n, coalesce(sum(byte_size), 0) AS bytes
		 FROM content_records GROUP BY status`)
	if err != nil {
		return types.ContentStats{}, fmt.Errorf("reading content stats: %w", err)
	}
	defer rows.Close()

	var stats types.ContentStats
	for rows.Next() {
		var status string
		var n, bytes int64
		if err := rows.Scan(&status, &n, &bytes); err != nil {
			return types.ContentStats{}, fmt.Errorf("scanning content stats: %w", err)
		}
		stats.Total += n
		stats.Bytes += bytes
		switch types.ProcessingStatus(status) {
		case types.StatusNew:
			stats.New = n
		case types.StatusPending:
			stats.Pending = n
		case types.StatusCompleted:
			stats.Completed = n
		case types.StatusFailed:
			stats.Failed = n
		}
	}
	return stats, rows.Err()
}

func (s *Store) withTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.log.Error().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing tx: %w", err)
	}
	return nil
}
