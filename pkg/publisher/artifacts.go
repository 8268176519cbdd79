package publisher

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/ladleio/ladle/pkg/storage"
	"github.com/ladleio/ladle/pkg/types"
)

// Artifact names inside the repository data directory
const (
	fileOrganizations = "organizations.jsonl"
	fileLocations     = "locations.jsonl"
	fileServices      = "services.jsonl"
	fileLinks         = "service_at_locations.jsonl"
	fileGeoJSON       = "locations.geojson"
	fileSQLite        = "snapshot.sqlite"
)

// Dataset is one consistent snapshot of the canonical tables
type Dataset struct {
	Counts        storage.Counts
	Organizations []types.Organization
	Locations     []types.Location
	Services      []types.Service
	Links         []types.ServiceAtLocation
	Schedules     []types.Schedule
}

// collect reads the whole dataset from one snapshot view
func collect(ctx context.Context, v *storage.View) (*Dataset, error) {
	ds := &Dataset{}
	var err error
	if ds.Counts, err = v.Counts(ctx); err != nil {
		return nil, err
	}
	if ds.Organizations, err = v.Organizations(ctx); err != nil {
		return nil, err
	}
	if ds.Locations, err = v.Locations(ctx); err != nil {
		return nil, err
	}
	if ds.Services, err = v.Services(ctx); err != nil {
		return nil, err
	}
	if ds.Links, err = v.ServiceAtLocations(ctx); err != nil {
		return nil, err
	}
	if ds.Schedules, err = v.Schedules(ctx); err != nil {
		return nil, err
	}
	return ds, nil
}

// writeArtifacts materialises the dataset under dir. Rows arrive in id
// order from the view, so an unchanged dataset writes byte-identical
// files and the git commit stage sees no diff.
func writeArtifacts(ctx context.Context, dir string, ds *Dataset) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating artifact directory: %w", err)
	}
	if err := writeJSONL(filepath.Join(dir, fileOrganizations), ds.Organizations); err != nil {
		return err
	}
	if err := writeJSONL(filepath.Join(dir, fileLocations), ds.Locations); err != nil {
		return err
	}
	if err := writeJSONL(filepath.Join(dir, fileServices), ds.Services); err != nil {
		return err
	}
	if err := writeJSONL(filepath.Join(dir, fileLinks), ds.Links); err != nil {
		return err
	}
	if err := writeGeoJSON(filepath.Join(dir, fileGeoJSON), ds.Locations); err != nil {
		return err
	}
	return writeSQLite(ctx, filepath.Join(dir, fileSQLite), ds)
}

func writeJSONL[T any](path string, rows []T) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	enc := json.NewEncoder(f)
	for i := range rows {
		if err := enc.Encode(rows[i]); err != nil {
			f.Close()
			return fmt.Errorf("encoding %s row: %w", filepath.Base(path), err)
		}
	}
	return f.Close()
}

// writeGeoJSON exports locations with valid coordinates as a point
// FeatureCollection
func writeGeoJSON(path string, locs []types.Location) error {
	fc := geojson.NewFeatureCollection()
	for i := range locs {
		loc := &locs[i]
		if !loc.HasCoordinates() {
			continue
		}
		f := geojson.NewFeature(orb.Point{*loc.Longitude, *loc.Latitude})
		f.ID = loc.ID
		f.Properties = geojson.Properties{
			"id":              loc.ID,
			"organization_id": loc.OrganizationID,
			"name":            loc.Name,
			"address_1":       loc.Address1,
			"city":            loc.City,
			"state_province":  loc.StateProvince,
			"postal_code":     loc.PostalCode,
		}
		fc.Append(f)
	}
	data, err := json.Marshal(fc)
	if err != nil {
		return fmt.Errorf("encoding geojson: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

const sqliteSchema = `
CREATE TABLE organizations (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	alternate_name TEXT,
	description    TEXT,
	email          TEXT,
	website        TEXT,
	phone          TEXT,
	created_at     TIMESTAMP,
	updated_at     TIMESTAMP
);
CREATE TABLE locations (
	id              TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL REFERENCES organizations(id),
	name            TEXT,
	address_1       TEXT,
	address_2       TEXT,
	city            TEXT,
	state_province  TEXT,
	postal_code     TEXT,
	country         TEXT,
	latitude        REAL,
	longitude       REAL,
	created_at      TIMESTAMP,
	updated_at      TIMESTAMP
);
CREATE TABLE services (
	id              TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL REFERENCES organizations(id),
	name            TEXT NOT NULL,
	alternate_name  TEXT,
	description     TEXT,
	status          TEXT,
	phone           TEXT,
	email           TEXT,
	created_at      TIMESTAMP,
	updated_at      TIMESTAMP
);
CREATE TABLE service_at_location (
	id          TEXT PRIMARY KEY,
	service_id  TEXT NOT NULL REFERENCES services(id),
	location_id TEXT NOT NULL REFERENCES locations(id)
);
CREATE TABLE schedules (
	id          TEXT PRIMARY KEY,
	service_id  TEXT REFERENCES services(id),
	location_id TEXT REFERENCES locations(id),
	freq        TEXT,
	byday       TEXT,
	opens_at    TEXT,
	closes_at   TEXT,
	description TEXT
);
CREATE INDEX idx_locations_org ON locations(organization_id);
CREATE INDEX idx_services_org ON services(organization_id);
CREATE INDEX idx_sal_service ON service_at_location(service_id);
CREATE INDEX idx_sal_location ON service_at_location(location_id);
`

// writeSQLite exports the full relational projection as one file
func writeSQLite(ctx context.Context, path string, ds *Dataset) error {
	// stale staging file from an aborted cycle
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale sqlite artifact: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("creating sqlite artifact: %w", err)
	}
	if err := exportSQLite(ctx, db, ds); err != nil {
		db.Close()
		return err
	}
	return db.Close()
}

func exportSQLite(ctx context.Context, db *sql.DB, ds *Dataset) error {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("creating sqlite schema: %w", err)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning sqlite tx: %w", err)
	}
	if err := fillSQLite(ctx, tx, ds); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing sqlite artifact: %w", err)
	}
	return nil
}

func fillSQLite(ctx context.Context, tx *sql.Tx, ds *Dataset) error {
	for i := range ds.Organizations {
		o := &ds.Organizations[i]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO organizations (id, name, alternate_name, description, email, website, phone, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			o.ID, o.Name, o.AlternateName, o.Description, o.Email, o.Website, o.Phone,
			o.CreatedAt, o.UpdatedAt); err != nil {
			return fmt.Errorf("inserting organization: %w", err)
		}
	}
	for i := range ds.Locations {
		l := &ds.Locations[i]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO locations (id, organization_id, name, address_1, address_2, city, state_province, postal_code, country, latitude, longitude, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.ID, l.OrganizationID, l.Name, l.Address1, l.Address2, l.City, l.StateProvince,
			l.PostalCode, l.Country, l.Latitude, l.Longitude, l.CreatedAt, l.UpdatedAt); err != nil {
			return fmt.Errorf("inserting location: %w", err)
		}
	}
	for i := range ds.Services {
		s := &ds.Services[i]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO services (id, organization_id, name, alternate_name, description, status, phone, email, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.ID, s.OrganizationID, s.Name, s.AlternateName, s.Description, s.Status,
			s.Phone, s.Email, s.CreatedAt, s.UpdatedAt); err != nil {
			return fmt.Errorf("inserting service: %w", err)
		}
	}
	for i := range ds.Links {
		l := &ds.Links[i]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO service_at_location (id, service_id, location_id) VALUES (?, ?, ?)`,
			l.ID, l.ServiceID, l.LocationID); err != nil {
			return fmt.Errorf("inserting service_at_location: %w", err)
		}
	}
	for i := range ds.Schedules {
		s := &ds.Schedules[i]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schedules (id, service_id, location_id, freq, byday, opens_at, closes_at, description)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			s.ID, s.ServiceID, s.LocationID, s.Freq, s.Byday, s.OpensAt, s.ClosesAt,
			s.Description); err != nil {
			return fmt.Errorf("inserting schedule: %w", err)
		}
	}
	return nil
}
