// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/kazu-apps/carenote-sync/internal/model"
)

// UpdateFunc receives the current record (nil if absent) and returns the
// record to store, or nil to leave the row untouched. It runs while the
// store holds the record's write lock and must not call back into the store.
type UpdateFunc func(cur *model.SyncableRecord) (*model.SyncableRecord, error)

// RecordStore is the device-local tombstone-aware record store.
// Every method is atomic per LocalID.
type RecordStore interface {
	// Get loads a record by local id.
	Get(ctx context.Context, localID uuid.UUID) (*model.SyncableRecord, error)
	// GetByRemoteID loads a record by its remote id.
	GetByRemoteID(ctx context.Context, remoteID uuid.UUID) (*model.SyncableRecord, error)
	// GetBySyncKey loads a record by its stable application-level key.
	GetBySyncKey(ctx context.Context, key string) (*model.SyncableRecord, error)
	// Upsert inserts or replaces a record.
	Upsert(ctx context.Context, r model.SyncableRecord) error
	// Update performs an atomic read-modify-write on one record.
	Update(ctx context.Context, localID uuid.UUID, fn UpdateFunc) (*model.SyncableRecord, error)
	// QueryDirty returns records whose SyncedAt is absent or older than
	// UpdatedAt, skipping versions parked by Reject.
	QueryDirty(ctx context.Context, limit int) ([]model.SyncableRecord, error)
	// Reject parks the version of a record stamped updatedAt after the remote
	// store refused it; the record is dirty again once UpdatedAt moves on.
	Reject(ctx context.Context, localID uuid.UUID, updatedAt time.Time) error
	// QueryTombstonesOlderThan returns tombstones with DeletedAt before ts.
	QueryTombstonesOlderThan(ctx context.Context, ts time.Time) ([]model.SyncableRecord, error)
	// Purge hard-deletes a reconciled tombstone; it reports whether a row was removed.
	Purge(ctx context.Context, localID uuid.UUID) (bool, error)
	// List returns records of a kind, optionally including tombstones.
	List(ctx context.Context, kind model.Kind, includeDeleted bool) ([]model.SyncableRecord, error)
}

// LedgerStore is the idempotency ledger for entitlement verification.
type LedgerStore interface {
	// GetEntry loads the entry for a token digest or returns errs.ErrNotFound.
	GetEntry(ctx context.Context, digest []byte) (*model.LedgerEntry, error)
	// InsertEntryIfAbsent creates the entry unless one exists, and returns the stored row.
	InsertEntryIfAbsent(ctx context.Context, e model.LedgerEntry) (stored model.LedgerEntry, inserted bool, err error)
}

// StateStore persists the sync cycle state between runs.
type StateStore interface {
	// LoadWatermark returns the last saved watermark, zero if none.
	LoadWatermark(ctx context.Context) (model.Watermark, error)
	// SaveWatermark persists w.
	SaveWatermark(ctx context.Context, w model.Watermark) error
}
