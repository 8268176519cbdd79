package storage

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/jmoiron/sqlx"

	"github.com/ladleio/ladle/pkg/types"
)

// Tx is the mutation surface of one reconciler transaction. It embeds
// the shared read surface so matchers can re-check candidates after
// the advisory lock is held.
type Tx struct {
	Queries
	tx *sqlx.Tx
}

// LockKey hashes a match key into the objid half of an advisory lock
// pair. FNV-32a keeps the key stable across processes and restarts.
func LockKey(matchKey string) int32 {
	h := fnv.New32a()
	h.Write([]byte(matchKey))
	return int32(h.Sum32())
}

// LockEntity takes pg_advisory_xact_lock(class, key) for the entity
// kind and match key. The lock is held until the transaction ends, so
// two workers reconciling the same entity serialise. Callers locking
// several keys must lock in a consistent order.
func (t *Tx) LockEntity(ctx context.Context, kind types.EntityKind, matchKey string) error {
	_, err := t.tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock($1, $2)`, kind.LockClass(), LockKey(matchKey))
	if err != nil {
		return fmt.Errorf("locking %s %q: %w", kind, matchKey, err)
	}
	return nil
}

// CreateOrganization inserts an organization and returns its canonical
// id. If another row already owns the normalized name the existing id
// comes back instead, so callers must treat the returned id as the
// canonical one.
func (t *Tx) CreateOrganization(ctx context.Context, org *types.Organization) (string, error) {
	var id string
	err := t.tx.GetContext(ctx, &id,
		`INSERT INTO organizations (id, name, normalized_name, alternate_name, description, email, website, phone)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (normalized_name) WHERE normalized_name <> ''
		 DO UPDATE SET updated_at = now()
		 RETURNING id`,
		org.ID, org.Name, org.NormalizedName, org.AlternateName, org.Description,
		org.Email, org.Website, org.Phone)
	if err != nil {
		return "", fmt.Errorf("creating organization: %w", err)
	}
	return id, nil
}

// UpdateOrganization writes merged field values back to the canonical row
func (t *Tx) UpdateOrganization(ctx context.Context, org *types.Organization) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE organizations
		 SET name = $2, normalized_name = $3, alternate_name = $4, description = $5,
		     email = $6, website = $7, phone = $8, updated_at = now()
		 WHERE id = $1`,
		org.ID, org.Name, org.NormalizedName, org.AlternateName, org.Description,
		org.Email, org.Website, org.Phone)
	if err != nil {
		return fmt.Errorf("updating organization: %w", err)
	}
	return nil
}

// CreateLocation inserts a location row
func (t *Tx) CreateLocation(ctx context.Context, loc *types.Location) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO locations (id, organization_id, name, address_1, address_2, city,
		                        state_province, postal_code, country, latitude, longitude,
		                        geo_provider, geo_precision)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		loc.ID, loc.OrganizationID, loc.Name, loc.Address1, loc.Address2, loc.City,
		loc.StateProvince, loc.PostalCode, loc.Country, loc.Latitude, loc.Longitude,
		loc.GeoProvider, loc.GeoPrecision)
	if err != nil {
		return fmt.Errorf("creating location: %w", err)
	}
	return nil
}

// UpdateLocation writes merged field values back to the canonical row
func (t *Tx) UpdateLocation(ctx context.Context, loc *types.Location) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE locations
		 SET name = $2, address_1 = $3, address_2 = $4, city = $5, state_province = $6,
		     postal_code = $7, country = $8, latitude = $9, longitude = $10,
		     geo_provider = $11, geo_precision = $12, updated_at = now()
		 WHERE id = $1`,
		loc.ID, loc.Name, loc.Address1, loc.Address2, loc.City, loc.StateProvince,
		loc.PostalCode, loc.Country, loc.Latitude, loc.Longitude,
		loc.GeoProvider, loc.GeoPrecision)
	if err != nil {
		return fmt.Errorf("updating location: %w", err)
	}
	return nil
}

// CreateService inserts a service and returns its canonical id. As
// with organizations, a conflict on (organization, normalized name)
// returns the existing id.
func (t *Tx) CreateService(ctx context.Context, svc *types.Service) (string, error) {
	var id string
	err := t.tx.GetContext(ctx, &id,
		`INSERT INTO services (id, organization_id, name, normalized_name, alternate_name,
		                       description, status, phone, email)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (organization_id, normalized_name)
		 DO UPDATE SET updated_at = now()
		 RETURNING id`,
		svc.ID, svc.OrganizationID, svc.Name, svc.NormalizedName, svc.AlternateName,
		svc.Description, svc.Status, svc.Phone, svc.Email)
	if err != nil {
		return "", fmt.Errorf("creating service: %w", err)
	}
	return id, nil
}

// UpdateService writes merged field values back to the canonical row
func (t *Tx) UpdateService(ctx context.Context, svc *types.Service) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE services
		 SET name = $2, normalized_name = $3, alternate_name = $4, description = $5,
		     status = $6, phone = $7, email = $8, updated_at = now()
		 WHERE id = $1`,
		svc.ID, svc.Name, svc.NormalizedName, svc.AlternateName, svc.Description,
		svc.Status, svc.Phone, svc.Email)
	if err != nil {
		return fmt.Errorf("updating service: %w", err)
	}
	return nil
}

// EnsureServiceAtLocation links a service to a location, ignoring
// links that already exist
func (t *Tx) EnsureServiceAtLocation(ctx context.Context, link *types.ServiceAtLocation) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO service_at_location (id, service_id, location_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (service_id, location_id) DO NOTHING`,
		link.ID, link.ServiceID, link.LocationID)
	if err != nil {
		return fmt.Errorf("linking service to location: %w", err)
	}
	return nil
}

// ReplaceServiceSchedules swaps a service's schedules for the given
// set. Schedules carry no stable source identity, so replacement is
// how a scraper's newest view wins.
func (t *Tx) ReplaceServiceSchedules(ctx context.Context, serviceID string, schedules []types.Schedule) error {
	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM schedules WHERE service_id = $1`, serviceID); err != nil {
		return fmt.Errorf("clearing service schedules: %w", err)
	}
	for i := range schedules {
		sch := &schedules[i]
		if _, err := t.tx.ExecContext(ctx,
			`INSERT INTO schedules (id, service_id, location_id, freq, byday, opens_at, closes_at, description)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			sch.ID, serviceID, sch.LocationID, sch.Freq, sch.Byday,
			sch.OpensAt, sch.ClosesAt, sch.Description); err != nil {
			return fmt.Errorf("inserting service schedule: %w", err)
		}
	}
	return nil
}

// ReplaceLocationSchedules swaps a location's location-wide schedules
// (rows with no service binding) for the given set
func (t *Tx) ReplaceLocationSchedules(ctx context.Context, locationID string, schedules []types.Schedule) error {
	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM schedules WHERE location_id = $1 AND service_id IS NULL`, locationID); err != nil {
		return fmt.Errorf("clearing location schedules: %w", err)
	}
	for i := range schedules {
		sch := &schedules[i]
		if _, err := t.tx.ExecContext(ctx,
			`INSERT INTO schedules (id, service_id, location_id, freq, byday, opens_at, closes_at, description)
			 VALUES ($1, NULL, $2, $3, $4, $5, $6, $7)`,
			sch.ID, locationID, sch.Freq, sch.Byday,
			sch.OpensAt, sch.ClosesAt, sch.Description); err != nil {
			return fmt.Errorf("inserting location schedule: %w", err)
		}
	}
	return nil
}

// UpsertSourceRecord records a scraper's latest view of a canonical
// entity. One row per (kind, canonical, scraper); re-observations
// refresh the fields and last_seen_at.
func (t *Tx) UpsertSourceRecord(ctx context.Context, rec *types.SourceRecord) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO source_records (entity_kind, canonical_id, scraper_id, source_id, fields, first_seen_at, last_seen_at)
		 VALUES ($1, $2, $3, $4, $5, now(), now())
		 ON CONFLICT (entity_kind, canonical_id, scraper_id)
		 DO UPDATE SET source_id = EXCLUDED.source_id, fields = EXCLUDED.fields, last_seen_at = now()`,
		string(rec.EntityKind), rec.CanonicalID, rec.ScraperID, rec.SourceID, rec.Fields)
	if err != nil {
		return fmt.Errorf("upserting source record: %w", err)
	}
	return nil
}

// AppendVersions writes field-level changes to the audit history
func (t *Tx) AppendVersions(ctx context.Context, entries []types.VersionEntry) error {
	for i := range entries {
		e := &entries[i]
		if _, err := t.tx.ExecContext(ctx,
			`INSERT INTO version_entries (entity_kind, canonical_id, field_name, old_value, new_value, source)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			string(e.EntityKind), e.CanonicalID, e.FieldName, e.OldValue, e.NewValue, e.Source); err != nil {
			return fmt.Errorf("appending version entry: %w", err)
		}
	}
	return nil
}
