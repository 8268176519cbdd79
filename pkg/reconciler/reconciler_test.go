package reconciler

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ladleio/ladle/pkg/config"
	"github.com/ladleio/ladle/pkg/hsds"
	"github.com/ladleio/ladle/pkg/storage"
	"github.com/ladleio/ladle/pkg/types"
)

func newMockReconciler(t *testing.T, cfg config.ReconcilerConfig) (*Reconciler, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	store := storage.NewPostgres(sqlx.NewDb(mockDB, "sqlmock"))
	return New(store, cfg), mock
}

func testCfg() config.ReconcilerConfig {
	return config.ReconcilerConfig{
		LocationToleranceM: 50,
		NameSimilarity:     0.85,
		AddressSimilarity:  0.85,
		SourcePriority:     []string{"alpha", "beta"},
		TxRetries:          3,
	}
}

func f64(v float64) *float64 { return &v }

func TestReconcileCreatesEverything(t *testing.T) {
	r, mock := newMockReconciler(t, testCfg())

	lat, lng := 30.2672, -97.7431
	svcIdx := 0
	job := &types.ReconcileJob{
		JobID:     "job-1",
		ScraperID: "alpha",
		Record: hsds.AlignedRecord{
			Organization: hsds.Organization{
				Name:     "Central Texas Food Bank",
				Phone:    "512-282-2111",
				SourceID: "ctfb-1",
			},
			Location: &hsds.Location{
				Address1:      "6500 Metropolis Dr",
				City:          "Austin",
				StateProvince: "TX",
				PostalCode:    "78744",
				Latitude:      &lat,
				Longitude:     &lng,
			},
			Services: []hsds.Service{{Name: "Food Pantry", Status: "active"}},
			Schedules: []hsds.Schedule{
				{Freq: "WEEKLY", Byday: "MO,TU,WE,TH,FR", OpensAt: "09:00", ClosesAt: "17:00", ServiceIndex: &svcIdx},
				{Freq: "WEEKLY", Byday: "SA", OpensAt: "10:00", ClosesAt: "14:00"},
			},
		},
		Validation: types.ValidationSummary{GeoProvider: "arcgis", GeoPrecision: "high"},
	}

	mock.ExpectBegin()

	// organization: lock, no match, create with full version trail
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock($1, $2)`)).
		WithArgs(types.KindOrganization.LockClass(), storage.LockKey("central texas food bank")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM organizations WHERE normalized_name = $1`)).
		WithArgs("central texas food bank").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM source_records WHERE entity_kind = $1 AND scraper_id = $2 AND source_id = $3`)).
		WithArgs("organization", "alpha", "ctfb-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO organizations`)).
		WithArgs(sqlmock.AnyArg(), "Central Texas Food Bank", "central texas food bank", "", "", "", "", "512-282-2111").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("org-1"))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO version_entries`)).
		WithArgs("organization", "org-1", "name", "", "Central Texas Food Bank", "alpha").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO version_entries`)).
		WithArgs("organization", "org-1", "phone", "", "512-282-2111", "alpha").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO source_records`)).
		WithArgs("organization", "org-1", "alpha", "ctfb-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	// location: lock, nothing nearby, create
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock($1, $2)`)).
		WithArgs(types.KindLocation.LockClass(), storage.LockKey("org-1|6500 metropolis dr")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM locations WHERE organization_id = $1 AND latitude BETWEEN $2 AND $3`)).
		WithArgs("org-1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO locations`)).
		WithArgs(sqlmock.AnyArg(), "org-1", "", "6500 Metropolis Dr", "", "Austin", "TX", "78744", "US", 30.2672, -97.7431, "arcgis", "high").
		WillReturnResult(sqlmock.NewResult(1, 1))
	for _, change := range [][2]string{
		{"address_1", "6500 Metropolis Dr"},
		{"city", "Austin"},
		{"latitude", "30.2672"},
		{"longitude", "-97.7431"},
		{"postal_code", "78744"},
		{"state_province", "TX"},
	} {
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO version_entries`)).
			WithArgs("location", sqlmock.AnyArg(), change[0], "", change[1], "alpha").
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO source_records`)).
		WithArgs("location", sqlmock.AnyArg(), "alpha", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	// service: lock, no match, create, then link to the location
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock($1, $2)`)).
		WithArgs(types.KindService.LockClass(), storage.LockKey("org-1|food pantry")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM services WHERE organization_id = $1 AND normalized_name = $2`)).
		WithArgs("org-1", "food pantry").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO services`)).
		WithArgs(sqlmock.AnyArg(), "org-1", "Food Pantry", "food pantry", "", "", "active", "", "").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("svc-1"))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO version_entries`)).
		WithArgs("service", "svc-1", "name", "", "Food Pantry", "alpha").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO version_entries`)).
		WithArgs("service", "svc-1", "status", "", "active", "alpha").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO source_records`)).
		WithArgs("service", "svc-1", "alpha", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO service_at_location`)).
		WithArgs(sqlmock.AnyArg(), "svc-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	// schedules: one set for the service, one location-wide
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM schedules WHERE service_id = $1`)).
		WithArgs("svc-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO schedules`)).
		WithArgs(sqlmock.AnyArg(), "svc-1", nil, "WEEKLY", "MO,TU,WE,TH,FR", "09:00", "17:00", "").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM schedules WHERE location_id = $1 AND service_id IS NULL`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO schedules`)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "WEEKLY", "SA", "10:00", "14:00", "").
		WillReturnResult(sqlmock.NewResult(2, 1))

	mock.ExpectCommit()

	res, err := r.Reconcile(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "org-1", res.OrganizationID)
	assert.Equal(t, []string{"svc-1"}, res.ServiceIDs)
	require.Len(t, res.LocationIDs, 1)
	assert.Equal(t, 1, res.Created[types.KindOrganization])
	assert.Equal(t, 1, res.Created[types.KindLocation])
	assert.Equal(t, 1, res.Created[types.KindService])
	assert.Empty(t, res.Merged)
	assert.Equal(t, 10, res.TotalVersions())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileMajorityMergeAcrossScrapers(t *testing.T) {
	r, mock := newMockReconciler(t, testCfg())

	job := &types.ReconcileJob{
		JobID:     "job-2",
		ScraperID: "beta",
		Record: hsds.AlignedRecord{
			Organization: hsds.Organization{
				Name:     "Central Texas Food Bank",
				Phone:    "555-2222",
				SourceID: "ctfb-1",
			},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock($1, $2)`)).
		WithArgs(types.KindOrganization.LockClass(), storage.LockKey("central texas food bank")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM organizations WHERE normalized_name = $1`)).
		WithArgs("central texas food bank").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "normalized_name", "phone"}).
			AddRow("org-1", "Central Texas Food Bank", "central texas food bank", "555-1111"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM source_records WHERE entity_kind = $1 AND canonical_id = $2`)).
		WithArgs("organization", "org-1").
		WillReturnRows(sqlmock.NewRows([]string{"scraper_id", "fields"}).
			AddRow("alpha", []byte(`{"name":"Central Texas Food Bank","phone":"555-1111"}`)).
			AddRow("gamma", []byte(`{"phone":"555-2222"}`)))

	// gamma plus the live beta observation outvote alpha two to one
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE organizations`)).
		WithArgs("org-1", "Central Texas Food Bank", "central texas food bank", "", "", "", "", "555-2222").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO version_entries`)).
		WithArgs("organization", "org-1", "phone", "555-1111", "555-2222", "beta").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO source_records`)).
		WithArgs("organization", "org-1", "beta", "ctfb-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	res, err := r.Reconcile(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "org-1", res.OrganizationID)
	assert.Empty(t, res.Created)
	assert.Equal(t, 1, res.Merged[types.KindOrganization])
	assert.Equal(t, 1, res.Versions[types.KindOrganization])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileMatchesNearbyLocation(t *testing.T) {
	r, mock := newMockReconciler(t, testCfg())

	// beta reports the same place a few meters off with the suffix
	// spelled out; it must fold into alpha's location, not create one
	job := &types.ReconcileJob{
		JobID:     "job-3",
		ScraperID: "beta",
		Record: hsds.AlignedRecord{
			Organization: hsds.Organization{Name: "Helping Hands"},
			Location: &hsds.Location{
				Address1:  "123 Main Street",
				City:      "Austin",
				Latitude:  f64(30.26725),
				Longitude: f64(-97.7431),
			},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock($1, $2)`)).
		WithArgs(types.KindOrganization.LockClass(), storage.LockKey("helping hands")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM organizations WHERE normalized_name = $1`)).
		WithArgs("helping hands").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "normalized_name"}).
			AddRow("org-1", "Helping Hands", "helping hands"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM source_records WHERE entity_kind = $1 AND canonical_id = $2`)).
		WithArgs("organization", "org-1").
		WillReturnRows(sqlmock.NewRows([]string{"scraper_id", "fields"}).
			AddRow("alpha", []byte(`{"name":"Helping Hands"}`)))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO source_records`)).
		WithArgs("organization", "org-1", "beta", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock($1, $2)`)).
		WithArgs(types.KindLocation.LockClass(), storage.LockKey("org-1|123 main st")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM locations WHERE organization_id = $1 AND latitude BETWEEN $2 AND $3`)).
		WithArgs("org-1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "address_1", "city", "latitude", "longitude"}).
			AddRow("loc-1", "org-1", "123 Main St", "Austin", 30.2672, -97.7431))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM source_records WHERE entity_kind = $1 AND canonical_id = $2`)).
		WithArgs("location", "loc-1").
		WillReturnRows(sqlmock.NewRows([]string{"scraper_id", "fields"}).
			AddRow("alpha", []byte(`{"address_1":"123 Main St","city":"Austin","latitude":"30.2672","longitude":"-97.7431"}`)))

	// every vote ties and alpha outranks beta, so nothing changes
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO source_records`)).
		WithArgs("location", "loc-1", "beta", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	res, err := r.Reconcile(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, []string{"loc-1"}, res.LocationIDs)
	assert.Empty(t, res.Created)
	assert.Empty(t, res.Merged)
	assert.Zero(t, res.TotalVersions())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileRejectsUnusableName(t *testing.T) {
	r, mock := newMockReconciler(t, testCfg())

	job := &types.ReconcileJob{
		JobID:     "job-4",
		ScraperID: "alpha",
		Record:    hsds.AlignedRecord{Organization: hsds.Organization{Name: "!!!"}},
	}

	_, err := r.Reconcile(context.Background(), job)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.ErrKindMalformed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileRetriesTransientFailure(t *testing.T) {
	r, mock := newMockReconciler(t, testCfg())

	job := &types.ReconcileJob{
		JobID:     "job-5",
		ScraperID: "alpha",
		Record:    hsds.AlignedRecord{Organization: hsds.Organization{Name: "Helping Hands"}},
	}

	// first attempt dies mid-transaction
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock($1, $2)`)).
		WillReturnError(errors.New("connection reset by peer"))
	mock.ExpectRollback()

	// second attempt lands
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock($1, $2)`)).
		WithArgs(types.KindOrganization.LockClass(), storage.LockKey("helping hands")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM organizations WHERE normalized_name = $1`)).
		WithArgs("helping hands").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO organizations`)).
		WithArgs(sqlmock.AnyArg(), "Helping Hands", "helping hands", "", "", "", "", "").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("org-9"))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO version_entries`)).
		WithArgs("organization", "org-9", "name", "", "Helping Hands", "alpha").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO source_records`)).
		WithArgs("organization", "org-9", "alpha", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	res, err := r.Reconcile(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "org-9", res.OrganizationID)
	assert.Equal(t, 1, res.Created[types.KindOrganization])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileClassifiesConstraintViolation(t *testing.T) {
	r, mock := newMockReconciler(t, testCfg())

	job := &types.ReconcileJob{
		JobID:     "job-6",
		ScraperID: "alpha",
		Record:    hsds.AlignedRecord{Organization: hsds.Organization{Name: "Helping Hands"}},
	}

	pgErr := &pgconn.PgError{Code: "23505", Message: "duplicate key value"}
	for i := 0; i < 3; i++ {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock($1, $2)`)).
			WillReturnError(pgErr)
		mock.ExpectRollback()
	}

	_, err := r.Reconcile(context.Background(), job)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.ErrKindIntegrity))

	var got *pgconn.PgError
	assert.True(t, errors.As(err, &got), "original SQLSTATE should stay reachable")
	assert.NoError(t, mock.ExpectationsWereMet())
}
