package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/kazu-apps/carenote-sync/internal/errs"
	"github.com/kazu-apps/carenote-sync/internal/model"
	"github.com/kazu-apps/carenote-sync/internal/repository"
)

// LedgerRepo implements repository.LedgerStore.
type LedgerRepo struct{ db *sql.DB }

var _ repository.LedgerStore = (*LedgerRepo)(nil)

// GetEntry loads a ledger entry by token digest.
func (r *LedgerRepo) GetEntry(ctx context.Context, digest []byte) (*model.LedgerEntry, error) {
	return getEntry(ctx, r.db, digest)
}

// InsertEntryIfAbsent creates the entry; an existing row is returned unchanged.
func (r *LedgerRepo) InsertEntryIfAbsent(ctx context.Context, e model.LedgerEntry) (model.LedgerEntry, bool, error) {
	const ins = `
INSERT INTO ledger (token_digest, product_id, is_active, expiry_time_millis, auto_renewing, verified_at)
VALUES (?,?,?,?,?,?)
ON CONFLICT(token_digest) DO NOTHING`

	var (
		stored   *model.LedgerEntry
		inserted bool
	)
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, ins,
			e.TokenDigest, e.ProductID, e.IsActive, e.ExpiryTimeMillis, e.AutoRenewing, e.VerifiedAt.UnixMilli())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		inserted = n == 1
		stored, err = getEntry(ctx, tx, e.TokenDigest)
		return err
	})
	if err != nil {
		return model.LedgerEntry{}, false, err
	}
	return *stored, inserted, nil
}

func getEntry(ctx context.Context, q querier, digest []byte) (*model.LedgerEntry, error) {
	const sel = `
SELECT token_digest, product_id, is_active, expiry_time_millis, auto_renewing, verified_at
FROM ledger WHERE token_digest=?`
	var (
		e        model.LedgerEntry
		verified int64
	)
	err := q.QueryRowContext(ctx, sel, digest).
		Scan(&e.TokenDigest, &e.ProductID, &e.IsActive, &e.ExpiryTimeMillis, &e.AutoRenewing, &verified)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	e.VerifiedAt = time.UnixMilli(verified).UTC()
	return &e, nil
}

// StateRepo implements repository.StateStore as a key/value row.
type StateRepo struct{ db *sql.DB }

var _ repository.StateStore = (*StateRepo)(nil)

const watermarkKey = "watermark"

type watermarkRow struct {
	Seq      int64 `json:"seq"`
	SyncedAt int64 `json:"synced_at_ms"`
}

// LoadWatermark returns the saved watermark or the zero value.
func (r *StateRepo) LoadWatermark(ctx context.Context) (model.Watermark, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM sync_state WHERE key=?`, watermarkKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Watermark{}, nil
	}
	if err != nil {
		return model.Watermark{}, err
	}
	var row watermarkRow
	if err := json.Unmarshal([]byte(raw), &row); err != nil {
		return model.Watermark{}, err
	}
	w := model.Watermark{Seq: row.Seq}
	if row.SyncedAt != 0 {
		w.SyncedAt = time.UnixMilli(row.SyncedAt).UTC()
	}
	return w, nil
}

// SaveWatermark persists w.
func (r *StateRepo) SaveWatermark(ctx context.Context, w model.Watermark) error {
	row := watermarkRow{Seq: w.Seq}
	if !w.SyncedAt.IsZero() {
		row.SyncedAt = w.SyncedAt.UnixMilli()
	}
	b, err := json.Marshal(row)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO sync_state (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value`, watermarkKey, string(b))
	return err
}
