package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/rs/zerolog"

	"github.com/ladleio/ladle/pkg/config"
	"github.com/ladleio/ladle/pkg/hsds"
	"github.com/ladleio/ladle/pkg/log"
	"github.com/ladleio/ladle/pkg/metrics"
	"github.com/ladleio/ladle/pkg/retry"
	"github.com/ladleio/ladle/pkg/storage"
	"github.com/ladleio/ladle/pkg/types"
)

const txRetryBase = 100 * time.Millisecond

// Reconciler integrates accepted aligned records into the canonical
// store: match, merge by majority vote, upsert, and record the source
// trail and version history, all inside one advisory-locked
// transaction per record.
type Reconciler struct {
	store storage.Store
	cfg   config.ReconcilerConfig
	log   zerolog.Logger
}

// New creates a reconciler over the canonical store
func New(store storage.Store, cfg config.ReconcilerConfig) *Reconciler {
	return &Reconciler{
		store: store,
		cfg:   cfg,
		log:   log.WithComponent("reconciler"),
	}
}

// Result reports the canonical rows one reconcile touched
type Result struct {
	OrganizationID string
	LocationIDs    []string
	ServiceIDs     []string
	Created        map[types.EntityKind]int
	Merged         map[types.EntityKind]int
	Versions       map[types.EntityKind]int
}

func newResult() *Result {
	return &Result{
		Created:  make(map[types.EntityKind]int),
		Merged:   make(map[types.EntityKind]int),
		Versions: make(map[types.EntityKind]int),
	}
}

// TotalVersions sums version entries across entity kinds
func (r *Result) TotalVersions() int {
	n := 0
	for _, v := range r.Versions {
		n += v
	}
	return n
}

// Reconcile integrates one record and returns the canonical ids it
// resolved to. Transient failures (serialization conflicts, deadlocks,
// momentary outages) are retried with exponential backoff; a
// constraint violation that survives every retry comes back classified
// as an integrity error.
func (r *Reconciler) Reconcile(ctx context.Context, job *types.ReconcileJob) (*Result, error) {
	orgKey := NormalizeName(job.Record.Organization.Name)
	if orgKey == "" {
		return nil, types.Errorf(types.ErrKindMalformed,
			"organization name %q normalizes to nothing", job.Record.Organization.Name)
	}

	var res *Result
	attempt := func() error {
		res = newResult()
		return r.store.WithTx(ctx, func(tx *storage.Tx) error {
			return r.integrate(ctx, tx, job, orgKey, res)
		})
	}
	shouldRetry := func(err error) bool {
		return types.KindOf(err) == types.ErrKindTransient
	}
	if err := retry.Do(ctx, r.cfg.TxRetries, txRetryBase, attempt, shouldRetry); err != nil {
		if isConstraintViolation(err) {
			return nil, types.WrapError(types.ErrKindIntegrity,
				fmt.Errorf("constraint violation after %d attempts: %w", r.cfg.TxRetries, err))
		}
		return nil, err
	}

	for kind, n := range res.Created {
		metrics.EntitiesReconciled.WithLabelValues(string(kind), "created").Add(float64(n))
	}
	for kind, n := range res.Merged {
		metrics.EntitiesReconciled.WithLabelValues(string(kind), "merged").Add(float64(n))
	}
	for kind, n := range res.Versions {
		metrics.FieldChanges.WithLabelValues(string(kind)).Add(float64(n))
	}
	return res, nil
}

// integrate runs the whole record inside one transaction. Locks are
// taken organization first, then location, then services in record
// order, so workers integrating the same organization serialise
// without deadlocking.
func (r *Reconciler) integrate(ctx context.Context, tx *storage.Tx, job *types.ReconcileJob, orgKey string, res *Result) error {
	if err := tx.LockEntity(ctx, types.KindOrganization, orgKey); err != nil {
		return err
	}
	org, err := r.reconcileOrganization(ctx, tx, job, orgKey, res)
	if err != nil {
		return err
	}
	res.OrganizationID = org.ID

	var loc *types.Location
	if job.Record.Location != nil {
		loc, err = r.reconcileLocation(ctx, tx, job, org.ID, res)
		if err != nil {
			return err
		}
		res.LocationIDs = append(res.LocationIDs, loc.ID)
	}

	serviceIDs := make([]string, len(job.Record.Services))
	for i := range job.Record.Services {
		svc, err := r.reconcileService(ctx, tx, job, org.ID, &job.Record.Services[i], res)
		if err != nil {
			return err
		}
		if svc == nil {
			continue
		}
		serviceIDs[i] = svc.ID
		res.ServiceIDs = append(res.ServiceIDs, svc.ID)

		if loc != nil {
			link := &types.ServiceAtLocation{ID: uuid.NewString(), ServiceID: svc.ID, LocationID: loc.ID}
			if err := tx.EnsureServiceAtLocation(ctx, link); err != nil {
				return err
			}
		}
	}

	return r.applySchedules(ctx, tx, job, serviceIDs, loc)
}

func (r *Reconciler) reconcileOrganization(ctx context.Context, tx *storage.Tx, job *types.ReconcileJob, orgKey string, res *Result) (*types.Organization, error) {
	in := Incoming{ScraperID: job.ScraperID, Fields: job.Record.Organization.Fields()}

	org, err := r.matchOrganization(ctx, tx, job, orgKey)
	if err != nil {
		return nil, err
	}

	if org == nil {
		org = &types.Organization{ID: uuid.NewString(), NormalizedName: orgKey}
		changes := Merge(nil, in, nil, r.cfg.SourcePriority)
		applyOrganizationChanges(org, changes)
		id, err := tx.CreateOrganization(ctx, org)
		if err != nil {
			return nil, err
		}
		org.ID = id
		if err := r.recordVersions(ctx, tx, res, types.KindOrganization, org.ID, changes); err != nil {
			return nil, err
		}
		res.Created[types.KindOrganization]++
		r.log.Info().Str("org_id", org.ID).Str("name", org.Name).Msg("organization created")
	} else {
		history, err := tx.ListSourceRecords(ctx, types.KindOrganization, org.ID)
		if err != nil {
			return nil, err
		}
		changes := Merge(organizationFields(org), in, history, r.cfg.SourcePriority)
		if len(changes) > 0 {
			applyOrganizationChanges(org, changes)
			if err := tx.UpdateOrganization(ctx, org); err != nil {
				return nil, err
			}
			if err := r.recordVersions(ctx, tx, res, types.KindOrganization, org.ID, changes); err != nil {
				return nil, err
			}
			res.Merged[types.KindOrganization]++
		}
	}

	return org, tx.UpsertSourceRecord(ctx, &types.SourceRecord{
		EntityKind:  types.KindOrganization,
		CanonicalID: org.ID,
		ScraperID:   job.ScraperID,
		SourceID:    job.Record.Organization.SourceID,
		Fields:      in.Fields,
	})
}

// matchOrganization resolves the canonical organization for the
// incoming record: exact normalized name, then the scraper's own
// source trail as long as the stored name is still similar enough
func (r *Reconciler) matchOrganization(ctx context.Context, tx *storage.Tx, job *types.ReconcileJob, orgKey string) (*types.Organization, error) {
	org, err := tx.GetOrganizationByNormalizedName(ctx, orgKey)
	if err == nil {
		return org, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	sourceID := job.Record.Organization.SourceID
	if sourceID == "" {
		return nil, nil
	}
	sr, err := tx.FindSourceRecord(ctx, types.KindOrganization, job.ScraperID, sourceID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	org, err = tx.GetOrganization(ctx, sr.CanonicalID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if Similarity(orgKey, org.NormalizedName) >= r.cfg.NameSimilarity {
		return org, nil
	}
	return nil, nil
}

func (r *Reconciler) reconcileLocation(ctx context.Context, tx *storage.Tx, job *types.ReconcileJob, orgID string, res *Result) (*types.Location, error) {
	rl := job.Record.Location
	in := Incoming{ScraperID: job.ScraperID, Fields: rl.Fields()}

	if err := tx.LockEntity(ctx, types.KindLocation, locationLockKey(orgID, rl)); err != nil {
		return nil, err
	}

	loc, err := r.matchLocation(ctx, tx, orgID, rl)
	if err != nil {
		return nil, err
	}

	if loc == nil {
		loc = &types.Location{ID: uuid.NewString(), OrganizationID: orgID}
		changes := Merge(nil, in, nil, r.cfg.SourcePriority)
		applyLocationChanges(loc, changes)
		if loc.Country == "" {
			loc.Country = "US"
		}
		loc.GeoProvider = job.Validation.GeoProvider
		loc.GeoPrecision = job.Validation.GeoPrecision
		if err := tx.CreateLocation(ctx, loc); err != nil {
			return nil, err
		}
		if err := r.recordVersions(ctx, tx, res, types.KindLocation, loc.ID, changes); err != nil {
			return nil, err
		}
		res.Created[types.KindLocation]++
	} else {
		history, err := tx.ListSourceRecords(ctx, types.KindLocation, loc.ID)
		if err != nil {
			return nil, err
		}
		changes := Merge(locationFields(loc), in, history, r.cfg.SourcePriority)
		if len(changes) > 0 {
			applyLocationChanges(loc, changes)
			if coordsWonBy(changes, job.ScraperID) {
				loc.GeoProvider = job.Validation.GeoProvider
				loc.GeoPrecision = job.Validation.GeoPrecision
			}
			if err := tx.UpdateLocation(ctx, loc); err != nil {
				return nil, err
			}
			if err := r.recordVersions(ctx, tx, res, types.KindLocation, loc.ID, changes); err != nil {
				return nil, err
			}
			res.Merged[types.KindLocation]++
		}
	}

	return loc, tx.UpsertSourceRecord(ctx, &types.SourceRecord{
		EntityKind:  types.KindLocation,
		CanonicalID: loc.ID,
		ScraperID:   job.ScraperID,
		Fields:      in.Fields,
	})
}

// matchLocation finds an existing location of the organization within
// the coordinate tolerance whose address line is similar enough. Both
// conditions must hold; among several candidates the nearest wins.
func (r *Reconciler) matchLocation(ctx context.Context, tx *storage.Tx, orgID string, rl *hsds.Location) (*types.Location, error) {
	if rl.Latitude == nil || rl.Longitude == nil {
		return nil, nil
	}
	candidates, err := tx.ListLocationsNear(ctx, orgID, *rl.Latitude, *rl.Longitude, r.cfg.LocationToleranceM)
	if err != nil {
		return nil, err
	}

	point := orb.Point{*rl.Longitude, *rl.Latitude}
	addr := NormalizeAddress(rl.Address1)
	var best *types.Location
	bestDist := r.cfg.LocationToleranceM + 1
	for i := range candidates {
		c := &candidates[i]
		if !c.HasCoordinates() {
			continue
		}
		dist := geo.DistanceHaversine(point, orb.Point{*c.Longitude, *c.Latitude})
		if dist > r.cfg.LocationToleranceM {
			continue
		}
		if Similarity(addr, NormalizeAddress(c.Address1)) < r.cfg.AddressSimilarity {
			continue
		}
		if dist < bestDist {
			best, bestDist = c, dist
		}
	}
	return best, nil
}

func (r *Reconciler) reconcileService(ctx context.Context, tx *storage.Tx, job *types.ReconcileJob, orgID string, hs *hsds.Service, res *Result) (*types.Service, error) {
	key := NormalizeName(hs.Name)
	if key == "" {
		r.log.Warn().Str("job_id", job.JobID).Msg("service name normalizes to nothing, skipped")
		return nil, nil
	}
	in := Incoming{ScraperID: job.ScraperID, Fields: hs.Fields()}

	if err := tx.LockEntity(ctx, types.KindService, orgID+"|"+key); err != nil {
		return nil, err
	}

	svc, err := tx.GetServiceByName(ctx, orgID, key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		svc = &types.Service{ID: uuid.NewString(), OrganizationID: orgID, NormalizedName: key}
		changes := Merge(nil, in, nil, r.cfg.SourcePriority)
		applyServiceChanges(svc, changes)
		if svc.Status == "" {
			svc.Status = "active"
		}
		id, err := tx.CreateService(ctx, svc)
		if err != nil {
			return nil, err
		}
		svc.ID = id
		if err := r.recordVersions(ctx, tx, res, types.KindService, svc.ID, changes); err != nil {
			return nil, err
		}
		res.Created[types.KindService]++

	case err != nil:
		return nil, err

	default:
		history, err := tx.ListSourceRecords(ctx, types.KindService, svc.ID)
		if err != nil {
			return nil, err
		}
		changes := Merge(serviceFields(svc), in, history, r.cfg.SourcePriority)
		if len(changes) > 0 {
			applyServiceChanges(svc, changes)
			if err := tx.UpdateService(ctx, svc); err != nil {
				return nil, err
			}
			if err := r.recordVersions(ctx, tx, res, types.KindService, svc.ID, changes); err != nil {
				return nil, err
			}
			res.Merged[types.KindService]++
		}
	}

	return svc, tx.UpsertSourceRecord(ctx, &types.SourceRecord{
		EntityKind:  types.KindService,
		CanonicalID: svc.ID,
		ScraperID:   job.ScraperID,
		Fields:      in.Fields,
	})
}

// applySchedules replaces schedule sets the incoming record actually
// carries. A record with no schedules for a target leaves the stored
// ones alone, so scrapers that never extract hours do not erase them.
func (r *Reconciler) applySchedules(ctx context.Context, tx *storage.Tx, job *types.ReconcileJob, serviceIDs []string, loc *types.Location) error {
	byService := make(map[int][]types.Schedule)
	var forLocation []types.Schedule

	for _, s := range job.Record.Schedules {
		row := types.Schedule{
			ID:          uuid.NewString(),
			Freq:        s.Freq,
			Byday:       s.Byday,
			OpensAt:     s.OpensAt,
			ClosesAt:    s.ClosesAt,
			Description: s.Description,
		}
		switch {
		case s.ServiceIndex == nil:
			if loc != nil {
				forLocation = append(forLocation, row)
			}
		case *s.ServiceIndex >= 0 && *s.ServiceIndex < len(serviceIDs) && serviceIDs[*s.ServiceIndex] != "":
			byService[*s.ServiceIndex] = append(byService[*s.ServiceIndex], row)
		default:
			r.log.Warn().Str("job_id", job.JobID).Int("service_index", *s.ServiceIndex).
				Msg("schedule references a service the record does not carry")
		}
	}

	for idx, rows := range byService {
		if err := tx.ReplaceServiceSchedules(ctx, serviceIDs[idx], rows); err != nil {
			return err
		}
	}
	if len(forLocation) > 0 {
		if err := tx.ReplaceLocationSchedules(ctx, loc.ID, forLocation); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) recordVersions(ctx context.Context, tx *storage.Tx, res *Result, kind types.EntityKind, canonicalID string, changes []Change) error {
	if len(changes) == 0 {
		return nil
	}
	entries := make([]types.VersionEntry, len(changes))
	for i, c := range changes {
		entries[i] = types.VersionEntry{
			EntityKind:  kind,
			CanonicalID: canonicalID,
			FieldName:   c.Field,
			OldValue:    c.Old,
			NewValue:    c.New,
			Source:      c.Source,
		}
	}
	if err := tx.AppendVersions(ctx, entries); err != nil {
		return err
	}
	res.Versions[kind] += len(changes)
	return nil
}

// locationLockKey scopes the location advisory lock to the
// organization plus the address line, falling back to a coordinate
// cell when the record has no address
func locationLockKey(orgID string, rl *hsds.Location) string {
	if addr := NormalizeAddress(rl.Address1); addr != "" {
		return orgID + "|" + addr
	}
	if rl.Latitude != nil && rl.Longitude != nil {
		return fmt.Sprintf("%s|%.4f,%.4f", orgID, *rl.Latitude, *rl.Longitude)
	}
	return orgID + "|"
}

// coordsWonBy reports whether a coordinate change credited to the
// given scraper is among the changes. Geo provenance follows the
// incoming record only when its own coordinates won the vote.
func coordsWonBy(changes []Change, scraperID string) bool {
	for _, c := range changes {
		if (c.Field == "latitude" || c.Field == "longitude") && c.Source == scraperID {
			return true
		}
	}
	return false
}

// isConstraintViolation reports whether err is a Postgres integrity
// constraint violation (SQLSTATE class 23)
func isConstraintViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23")
}
