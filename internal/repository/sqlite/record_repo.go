package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/kazu-apps/carenote-sync/internal/errs"
	"github.com/kazu-apps/carenote-sync/internal/model"
	"github.com/kazu-apps/carenote-sync/internal/repository"
)

// RecordRepo implements repository.RecordStore on SQLite.
type RecordRepo struct{ db *sql.DB }

var _ repository.RecordStore = (*RecordRepo)(nil)

const recordCols = `local_id, remote_id, kind, sync_key, device_id, updated_at, deleted_at, synced_at, payload`

// Get loads a record by local id.
func (r *RecordRepo) Get(ctx context.Context, localID uuid.UUID) (*model.SyncableRecord, error) {
	return getOne(ctx, r.db, `SELECT `+recordCols+` FROM records WHERE local_id=?`, localID.String())
}

// GetByRemoteID loads a record by remote id.
func (r *RecordRepo) GetByRemoteID(ctx context.Context, remoteID uuid.UUID) (*model.SyncableRecord, error) {
	return getOne(ctx, r.db, `SELECT `+recordCols+` FROM records WHERE remote_id=?`, remoteID.String())
}

// GetBySyncKey loads a record by its application-level key.
func (r *RecordRepo) GetBySyncKey(ctx context.Context, key string) (*model.SyncableRecord, error) {
	return getOne(ctx, r.db, `SELECT `+recordCols+` FROM records WHERE sync_key=?`, key)
}

// Upsert inserts or replaces a record, enforcing the metadata invariants.
func (r *RecordRepo) Upsert(ctx context.Context, rec model.SyncableRecord) error {
	_, err := r.Update(ctx, rec.LocalID, func(*model.SyncableRecord) (*model.SyncableRecord, error) {
		return &rec, nil
	})
	return err
}

// Update runs fn against the current row inside one immediate transaction.
func (r *RecordRepo) Update(ctx context.Context, localID uuid.UUID, fn repository.UpdateFunc) (*model.SyncableRecord, error) {
	var out *model.SyncableRecord
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		cur, err := getOne(ctx, tx, `SELECT `+recordCols+` FROM records WHERE local_id=?`, localID.String())
		if err != nil && !errors.Is(err, errs.ErrNotFound) {
			return err
		}
		next, err := fn(cur)
		if err != nil {
			return err
		}
		if next == nil {
			out = cur
			return nil
		}
		if err := checkTransition(localID, cur, next); err != nil {
			return err
		}
		if err := write(ctx, tx, *next); err != nil {
			return err
		}
		v := next.Clone()
		out = &v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// checkTransition enforces that UpdatedAt never regresses, RemoteID is set
// once, and SyncedAt never passes UpdatedAt.
func checkTransition(localID uuid.UUID, cur, next *model.SyncableRecord) error {
	if next.LocalID != localID {
		return errs.Validationf("record local id mismatch")
	}
	if !next.Kind.Valid() {
		return errs.Validationf("unknown record kind %q", next.Kind)
	}
	if next.SyncedAt != nil && next.SyncedAt.After(next.UpdatedAt) {
		return errs.Validationf("synced_at after updated_at")
	}
	if cur == nil {
		return nil
	}
	if next.UpdatedAt.Before(cur.UpdatedAt) {
		return errs.Validationf("updated_at regression")
	}
	if cur.RemoteID != nil && (next.RemoteID == nil || *next.RemoteID != *cur.RemoteID) {
		return errs.Validationf("remote id already assigned")
	}
	return nil
}

func write(ctx context.Context, q querier, rec model.SyncableRecord) error {
	const ins = `
INSERT INTO records (` + recordCols + `)
VALUES (?,?,?,?,?,?,?,?,?)
ON CONFLICT(local_id) DO UPDATE SET
	remote_id=excluded.remote_id, kind=excluded.kind, sync_key=excluded.sync_key,
	device_id=excluded.device_id, updated_at=excluded.updated_at, deleted_at=excluded.deleted_at,
	synced_at=excluded.synced_at, payload=excluded.payload`
	var remote sql.NullString
	if rec.RemoteID != nil {
		remote = sql.NullString{String: rec.RemoteID.String(), Valid: true}
	}
	var payload []byte
	if !rec.IsTombstone() {
		payload = rec.Payload
	}
	_, err := q.ExecContext(ctx, ins,
		rec.LocalID.String(), remote, string(rec.Kind), rec.SyncKey, rec.DeviceID,
		rec.UpdatedAt.UnixMilli(), nullMillis(rec.DeletedAt), nullMillis(rec.SyncedAt), payload,
	)
	return err
}

// QueryDirty returns records never pushed or changed since their last sync.
// A version parked by Reject is skipped until the record changes again.
func (r *RecordRepo) QueryDirty(ctx context.Context, limit int) ([]model.SyncableRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	return getMany(ctx, r.db, `
SELECT `+recordCols+` FROM records
WHERE (synced_at IS NULL OR synced_at < updated_at)
	AND (rejected_at IS NULL OR rejected_at <> updated_at)
ORDER BY updated_at ASC
LIMIT ?`, limit)
}

// Reject parks the updatedAt version of a record. A row that has already
// moved past that version is left alone.
func (r *RecordRepo) Reject(ctx context.Context, localID uuid.UUID, updatedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE records SET rejected_at=updated_at WHERE local_id=? AND updated_at=?`,
		localID.String(), updatedAt.UnixMilli())
	return err
}

// QueryTombstonesOlderThan returns tombstones deleted before ts.
func (r *RecordRepo) QueryTombstonesOlderThan(ctx context.Context, ts time.Time) ([]model.SyncableRecord, error) {
	return getMany(ctx, r.db, `
SELECT `+recordCols+` FROM records
WHERE deleted_at IS NOT NULL AND deleted_at < ?
ORDER BY deleted_at ASC`, ts.UnixMilli())
}

// Purge removes a tombstone only once it is reconciled with the remote store.
func (r *RecordRepo) Purge(ctx context.Context, localID uuid.UUID) (bool, error) {
	const q = `
DELETE FROM records
WHERE local_id=? AND deleted_at IS NOT NULL AND synced_at IS NOT NULL
	AND synced_at >= deleted_at AND synced_at >= updated_at`
	res, err := r.db.ExecContext(ctx, q, localID.String())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// List returns records of kind ordered by last update.
func (r *RecordRepo) List(ctx context.Context, kind model.Kind, includeDeleted bool) ([]model.SyncableRecord, error) {
	q := `SELECT ` + recordCols + ` FROM records WHERE kind=?`
	if !includeDeleted {
		q += ` AND deleted_at IS NULL`
	}
	return getMany(ctx, r.db, q+` ORDER BY updated_at DESC`, string(kind))
}

type scanner interface{ Scan(dest ...any) error }

func scanRecord(s scanner) (model.SyncableRecord, error) {
	var (
		rec             model.SyncableRecord
		localID, kind   string
		remoteID        sql.NullString
		updated         int64
		deleted, synced sql.NullInt64
		payload         []byte
	)
	if err := s.Scan(&localID, &remoteID, &kind, &rec.SyncKey, &rec.DeviceID, &updated, &deleted, &synced, &payload); err != nil {
		return rec, err
	}
	id, err := uuid.FromString(localID)
	if err != nil {
		return rec, err
	}
	rec.LocalID = id
	if remoteID.Valid {
		rid, err := uuid.FromString(remoteID.String)
		if err != nil {
			return rec, err
		}
		rec.RemoteID = &rid
	}
	rec.Kind = model.Kind(kind)
	rec.UpdatedAt = time.UnixMilli(updated).UTC()
	rec.DeletedAt = fromMillis(deleted)
	rec.SyncedAt = fromMillis(synced)
	if len(payload) > 0 {
		rec.Payload = payload
	}
	return rec, nil
}

func getOne(ctx context.Context, q querier, query string, args ...any) (*model.SyncableRecord, error) {
	rec, err := scanRecord(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func getMany(ctx context.Context, q querier, query string, args ...any) ([]model.SyncableRecord, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SyncableRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
