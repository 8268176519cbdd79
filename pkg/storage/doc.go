/*
Package storage provides the Postgres-backed canonical entity store.

The storage package implements the Store interface over Postgres,
holding the merged HSDS entities (organizations, locations, services,
their links and schedules) plus the per-scraper source trail and the
append-only version history. The reconciler writes through it, the
publisher snapshots from it, and the validator files rejections into
it.

# Architecture

One *sqlx.DB handle fans out into three access surfaces that share the
same read queries:

	┌───────────────────── STORAGE ACCESS ──────────────────────┐
	│                                                            │
	│  ┌──────────────────────────────────────────────┐         │
	│  │             PostgresStore                     │         │
	│  │  - plain reads (matcher candidates, lookups)  │         │
	│  │  - SaveRejection                              │         │
	│  └───────┬───────────────────────────┬──────────┘         │
	│          │ WithTx                    │ Snapshot            │
	│  ┌───────▼──────────────┐   ┌────────▼──────────────┐     │
	│  │         Tx           │   │         View          │     │
	│  │  - LockEntity        │   │  - repeatable read    │     │
	│  │  - Create* / Update* │   │  - read only          │     │
	│  │  - UpsertSourceRecord│   │  - per-table listings │     │
	│  │  - AppendVersions    │   │  - Counts             │     │
	│  └──────────────────────┘   └───────────────────────┘     │
	│                                                            │
	└────────────────────────────────────────────────────────────┘

Tx and View both embed Queries, so every lookup available on the store
is also available inside a transaction (matchers re-check candidates
under the lock) and inside a snapshot.

# Tables

	organizations        canonical orgs, unique on normalized_name
	locations            canonical locations, btree on (latitude, longitude)
	services             canonical services, unique on (organization_id, normalized_name)
	service_at_location  service/location links, unique on the pair
	schedules            opening hours, bound to a service or a location
	source_records       one row per (kind, canonical, scraper), fields as JSONB
	version_entries      append-only field-level change history
	rejections           validator rejects with score and rule outcomes

# Concurrency

Reconciler writes serialise per match key, not globally. Tx.LockEntity
takes pg_advisory_xact_lock(class, fnv32a(matchKey)) with one class per
entity kind; the lock drops when the transaction commits or rolls
back. Two workers integrating the same organization block on the same
key while unrelated organizations proceed in parallel.

Publisher snapshots run in a REPEATABLE READ read-only transaction, so
every table export observes the same instant and a half-finished
reconcile can never split across artifacts.

# Usage

	store := storage.NewPostgres(db)

	err := store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := tx.LockEntity(ctx, types.KindOrganization, key); err != nil {
			return err
		}
		id, err := tx.CreateOrganization(ctx, org)
		if err != nil {
			return err
		}
		return tx.UpsertSourceRecord(ctx, rec)
	})

# Integration Points

  - pkg/reconciler: matching, merging, and upserts via WithTx
  - pkg/validator: SaveRejection for below-threshold records
  - pkg/publisher: Snapshot for consistent artifact generation
  - cmd/ladle-migrate: owns the schema these queries assume
*/
package storage
