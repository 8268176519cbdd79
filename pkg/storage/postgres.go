package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/ladleio/ladle/pkg/log"
	"github.com/ladleio/ladle/pkg/types"
)

// Queries is the read surface shared by the store, its transactions,
// and publisher snapshots. sqlx.ExtContext is satisfied by both
// *sqlx.DB and *sqlx.Tx, so the same lookups serve all three.
type Queries struct {
	ext sqlx.ExtContext
}

// PostgresStore implements Store over a Postgres database
type PostgresStore struct {
	Queries
	db  *sqlx.DB
	log zerolog.Logger
}

// NewPostgres wraps an existing database handle. The handle is shared
// with the content store; connection pooling happens there.
func NewPostgres(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{
		Queries: Queries{ext: db},
		db:      db,
		log:     log.WithComponent("storage"),
	}
}

// Close closes the underlying database handle
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Organization operations

func (q *Queries) GetOrganization(ctx context.Context, id string) (*types.Organization, error) {
	var org types.Organization
	err := sqlx.GetContext(ctx, q.ext, &org, `SELECT * FROM organizations WHERE id = $1`, id)
	if err != nil {
		return nil, wrapGet("organization", err)
	}
	return &org, nil
}

func (q *Queries) GetOrganizationByNormalizedName(ctx context.Context, normalized string) (*types.Organization, error) {
	var org types.Organization
	err := sqlx.GetContext(ctx, q.ext, &org,
		`SELECT * FROM organizations WHERE normalized_name = $1`, normalized)
	if err != nil {
		return nil, wrapGet("organization", err)
	}
	return &org, nil
}

// Location operations

func (q *Queries) GetLocation(ctx context.Context, id string) (*types.Location, error) {
	var loc types.Location
	err := sqlx.GetContext(ctx, q.ext, &loc, `SELECT * FROM locations WHERE id = $1`, id)
	if err != nil {
		return nil, wrapGet("location", err)
	}
	return &loc, nil
}

func (q *Queries) ListLocationsByOrganization(ctx context.Context, orgID string) ([]types.Location, error) {
	var locs []types.Location
	err := sqlx.SelectContext(ctx, q.ext, &locs,
		`SELECT * FROM locations WHERE organization_id = $1 ORDER BY id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing locations: %w", err)
	}
	return locs, nil
}

// ListLocationsNear returns an organization's locations inside a
// bounding box around (lat, lng). The box is a prefilter over the
// coordinate index; callers refine with an exact distance check.
func (q *Queries) ListLocationsNear(ctx context.Context, orgID string, lat, lng, radiusM float64) ([]types.Location, error) {
	minLat, maxLat, minLng, maxLng := boundingBox(lat, lng, radiusM)
	var locs []types.Location
	err := sqlx.SelectContext(ctx, q.ext, &locs,
		`SELECT * FROM locations
		 WHERE organization_id = $1
		   AND latitude BETWEEN $2 AND $3
		   AND longitude BETWEEN $4 AND $5
		 ORDER BY id`,
		orgID, minLat, maxLat, minLng, maxLng)
	if err != nil {
		return nil, fmt.Errorf("listing locations near point: %w", err)
	}
	return locs, nil
}

const metersPerDegreeLat = 111_320.0

func boundingBox(lat, lng, radiusM float64) (minLat, maxLat, minLng, maxLng float64) {
	dLat := radiusM / metersPerDegreeLat
	cosLat := math.Cos(lat * math.Pi / 180)
	if cosLat < 0.01 {
		cosLat = 0.01
	}
	dLng := radiusM / (metersPerDegreeLat * cosLat)
	return lat - dLat, lat + dLat, lng - dLng, lng + dLng
}

// Service operations

func (q *Queries) GetService(ctx context.Context, id string) (*types.Service, error) {
	var svc types.Service
	err := sqlx.GetContext(ctx, q.ext, &svc, `SELECT * FROM services WHERE id = $1`, id)
	if err != nil {
		return nil, wrapGet("service", err)
	}
	return &svc, nil
}

func (q *Queries) GetServiceByName(ctx context.Context, orgID, normalized string) (*types.Service, error) {
	var svc types.Service
	err := sqlx.GetContext(ctx, q.ext, &svc,
		`SELECT * FROM services WHERE organization_id = $1 AND normalized_name = $2`, orgID, normalized)
	if err != nil {
		return nil, wrapGet("service", err)
	}
	return &svc, nil
}

// Source trail and version history

func (q *Queries) FindSourceRecord(ctx context.Context, kind types.EntityKind, scraperID, sourceID string) (*types.SourceRecord, error) {
	var rec types.SourceRecord
	err := sqlx.GetContext(ctx, q.ext, &rec,
		`SELECT * FROM source_records
		 WHERE entity_kind = $1 AND scraper_id = $2 AND source_id = $3
		 ORDER BY last_seen_at DESC LIMIT 1`,
		string(kind), scraperID, sourceID)
	if err != nil {
		return nil, wrapGet("source record", err)
	}
	return &rec, nil
}

func (q *Queries) ListSourceRecords(ctx context.Context, kind types.EntityKind, canonicalID string) ([]types.SourceRecord, error) {
	var recs []types.SourceRecord
	err := sqlx.SelectContext(ctx, q.ext, &recs,
		`SELECT * FROM source_records
		 WHERE entity_kind = $1 AND canonical_id = $2
		 ORDER BY id`,
		string(kind), canonicalID)
	if err != nil {
		return nil, fmt.Errorf("listing source records: %w", err)
	}
	return recs, nil
}

func (q *Queries) ListVersions(ctx context.Context, kind types.EntityKind, canonicalID string) ([]types.VersionEntry, error) {
	var entries []types.VersionEntry
	err := sqlx.SelectContext(ctx, q.ext, &entries,
		`SELECT * FROM version_entries
		 WHERE entity_kind = $1 AND canonical_id = $2
		 ORDER BY id`,
		string(kind), canonicalID)
	if err != nil {
		return nil, fmt.Errorf("listing version entries: %w", err)
	}
	return entries, nil
}

// SaveRejection persists a validation rejection for later review
func (s *PostgresStore) SaveRejection(ctx context.Context, rej *types.Rejection) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rejections (job_id, scraper_id, score, test_data, outcomes, record)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rej.JobID, rej.ScraperID, rej.Score, rej.TestData, rej.Outcomes, []byte(rej.Record))
	if err != nil {
		return fmt.Errorf("saving rejection: %w", err)
	}
	return nil
}

// WithTx runs fn inside one transaction and commits when fn returns
// nil. Advisory locks taken through the Tx are released on commit or
// rollback.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}
	if err := fn(&Tx{Queries: Queries{ext: tx}, tx: tx}); err != nil {
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

// Snapshot runs fn over a repeatable-read, read-only view so every
// table is read as of the same instant
func (s *PostgresStore) Snapshot(ctx context.Context, fn func(*View) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{
		Isolation: sql.LevelRepeatableRead,
		ReadOnly:  true,
	})
	if err != nil {
		return fmt.Errorf("beginning snapshot tx: %w", err)
	}
	if err := fn(&View{Queries: Queries{ext: tx}, tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.log.Error().Err(rbErr).Msg("snapshot rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("closing snapshot tx: %w", err)
	}
	return nil
}

func wrapGet(what string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("reading %s: %w", what, err)
}
