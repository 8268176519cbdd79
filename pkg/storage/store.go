package storage

import (
	"context"
	"errors"

	"github.com/ladleio/ladle/pkg/types"
)

// ErrNotFound means no canonical row matches the lookup
var ErrNotFound = errors.New("storage: not found")

// Store defines the interface for the canonical entity store.
// Implemented by Postgres-backed storage.
type Store interface {
	// Organizations
	GetOrganization(ctx context.Context, id string) (*types.Organization, error)
	GetOrganizationByNormalizedName(ctx context.Context, normalized string) (*types.Organization, error)

	// Locations
	GetLocation(ctx context.Context, id string) (*types.Location, error)
	ListLocationsByOrganization(ctx context.Context, orgID string) ([]types.Location, error)
	ListLocationsNear(ctx context.Context, orgID string, lat, lng, radiusM float64) ([]types.Location, error)

	// Services
	GetService(ctx context.Context, id string) (*types.Service, error)
	GetServiceByName(ctx context.Context, orgID, normalized string) (*types.Service, error)

	// Source trail and version history
	FindSourceRecord(ctx context.Context, kind types.EntityKind, scraperID, sourceID string) (*types.SourceRecord, error)
	ListSourceRecords(ctx context.Context, kind types.EntityKind, canonicalID string) ([]types.SourceRecord, error)
	ListVersions(ctx context.Context, kind types.EntityKind, canonicalID string) ([]types.VersionEntry, error)

	// Rejections
	SaveRejection(ctx context.Context, rej *types.Rejection) error

	// WithTx runs fn inside one transaction. Reconciler writes go
	// through the Tx so advisory locks and upserts commit together.
	WithTx(ctx context.Context, fn func(*Tx) error) error

	// Snapshot runs fn over a repeatable-read view of the canonical
	// tables, so the publisher exports one consistent dataset.
	Snapshot(ctx context.Context, fn func(*View) error) error

	// Utility
	Close() error
}
