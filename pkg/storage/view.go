package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ladleio/ladle/pkg/types"
)

// View is one consistent read of the canonical tables. All methods see
// the database as of the moment Snapshot began.
type View struct {
	Queries
	tx *sqlx.Tx
}

// Counts are per-table row counts as of one snapshot. The publisher
// compares them against its ratchet high-water marks before exporting.
type Counts struct {
	Organizations      int64 `db:"organizations" json:"organizations"`
	Locations          int64 `db:"locations" json:"locations"`
	Services           int64 `db:"services" json:"services"`
	ServiceAtLocations int64 `db:"service_at_location" json:"service_at_location"`
	Schedules          int64 `db:"schedules" json:"schedules"`
}

// Total sums the entity counts
func (c Counts) Total() int64 {
	return c.Organizations + c.Locations + c.Services + c.ServiceAtLocations + c.Schedules
}

// Counts reads all table counts in one statement
func (v *View) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := v.tx.GetContext(ctx, &c,
		`SELECT
		   (SELECT count(*) FROM organizations) AS organizations,
		   (SELECT count(*) FROM locations) AS locations,
		   (SELECT count(*) FROM services) AS services,
		   (SELECT count(*) FROM service_at_location) AS service_at_location,
		   (SELECT count(*) FROM schedules) AS schedules`)
	if err != nil {
		return Counts{}, fmt.Errorf("counting canonical rows: %w", err)
	}
	return c, nil
}

// Organizations returns every organization in id order. Exports sort
// by id so unchanged data produces byte-identical artifacts.
func (v *View) Organizations(ctx context.Context) ([]types.Organization, error) {
	var orgs []types.Organization
	if err := v.tx.SelectContext(ctx, &orgs, `SELECT * FROM organizations ORDER BY id`); err != nil {
		return nil, fmt.Errorf("snapshotting organizations: %w", err)
	}
	return orgs, nil
}

// Locations returns every location in id order
func (v *View) Locations(ctx context.Context) ([]types.Location, error) {
	var locs []types.Location
	if err := v.tx.SelectContext(ctx, &locs, `SELECT * FROM locations ORDER BY id`); err != nil {
		return nil, fmt.Errorf("snapshotting locations: %w", err)
	}
	return locs, nil
}

// Services returns every service in id order
func (v *View) Services(ctx context.Context) ([]types.Service, error) {
	var svcs []types.Service
	if err := v.tx.SelectContext(ctx, &svcs, `SELECT * FROM services ORDER BY id`); err != nil {
		return nil, fmt.Errorf("snapshotting services: %w", err)
	}
	return svcs, nil
}

// ServiceAtLocations returns every service-location link in id order
func (v *View) ServiceAtLocations(ctx context.Context) ([]types.ServiceAtLocation, error) {
	var links []types.ServiceAtLocation
	if err := v.tx.SelectContext(ctx, &links, `SELECT * FROM service_at_location ORDER BY id`); err != nil {
		return nil, fmt.Errorf("snapshotting service_at_location: %w", err)
	}
	return links, nil
}

// Schedules returns every schedule in id order
func (v *View) Schedules(ctx context.Context) ([]types.Schedule, error) {
	var schedules []types.Schedule
	if err := v.tx.SelectContext(ctx, &schedules, `SELECT * FROM schedules ORDER BY id`); err != nil {
		return nil, fmt.Errorf("snapshotting schedules: %w", err)
	}
	return schedules, nil
}
