package postgres

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/kazu-apps/carenote-sync/internal/errs"
	"github.com/kazu-apps/carenote-sync/internal/model"
	"github.com/kazu-apps/carenote-sync/internal/repository"
)

// DocumentRepo implements DocumentRepository using PostgreSQL.
type DocumentRepo struct{ db *DB }

var _ repository.DocumentRepository = (*DocumentRepo)(nil)

// NewDocumentRepo constructs a document repository.
func NewDocumentRepo(db *DB) *DocumentRepo { return &DocumentRepo{db: db} }

const lockRecipient = `SELECT pg_advisory_xact_lock(hashtext($1))`

const docCols = `remote_id, kind, sync_key, device_id, updated_at, deleted_at, body, seq`

// Put stores d for the recipient. A new sequence is taken only when the
// stored state changes, so replaying a put is harmless.
//
// Writers of one recipient are serialized by a transaction-scoped advisory
// lock taken before any sequence is drawn. Sequences of a recipient therefore
// become visible in commit order, and a reader that has seen seq n will
// never later find a smaller seq committed.
func (r *DocumentRepo) Put(
	ctx context.Context, recipientID uuid.UUID, d model.Document,
) (seq int64, applied bool, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	if _, err = tx.Exec(ctx, lockRecipient, recipientID.String()); err != nil {
		return 0, false, fmt.Errorf("put: lock recipient: %w", err)
	}

	const sel = `SELECT ` + docCols + ` FROM documents WHERE recipient_id=$1 AND remote_id=$2 FOR UPDATE`
	const ins = `
INSERT INTO documents (recipient_id, remote_id, kind, sync_key, device_id, updated_at, deleted_at, body)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING seq`
	const upd = `
UPDATE documents
SET kind=$3, sync_key=$4, device_id=$5, updated_at=$6, deleted_at=$7, body=$8, seq=nextval('document_seq')
WHERE recipient_id=$1 AND remote_id=$2
RETURNING seq`

	var body []byte
	if d.DeletedAt == nil {
		body = d.Body
	}
	args := []any{recipientID, d.RemoteID, string(d.Kind), d.SyncKey, d.DeviceID, d.UpdatedAt.UTC(), utcPtr(d.DeletedAt), body}

	cur, scanErr := scanDocument(tx.QueryRow(ctx, sel, recipientID, d.RemoteID))
	switch {
	case scanErr == nil:
		if sameDocument(cur, d) {
			return cur.Seq, false, nil
		}
		if err = tx.QueryRow(ctx, upd, args...).Scan(&seq); err != nil {
			return 0, false, err
		}
	case errors.Is(scanErr, pgx.ErrNoRows):
		if err = tx.QueryRow(ctx, ins, args...).Scan(&seq); err != nil {
			if isUniqueViolation(err) {
				return 0, false, fmt.Errorf("put: %w", errs.ErrAlreadyExists)
			}
			return 0, false, err
		}
	default:
		return 0, false, scanErr
	}
	return seq, true, nil
}

// Get returns a single document by remote id.
func (r *DocumentRepo) Get(ctx context.Context, recipientID, remoteID uuid.UUID) (*model.Document, error) {
	const q = `SELECT ` + docCols + ` FROM documents WHERE recipient_id=$1 AND remote_id=$2`
	d, err := scanDocument(r.db.Pool.QueryRow(ctx, q, recipientID, remoteID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// ChangedSince returns documents with a sequence strictly after since, in
// order. Put's per-recipient lock keeps the result free of gaps that a
// later commit could fill.
func (r *DocumentRepo) ChangedSince(ctx context.Context, recipientID uuid.UUID, since int64, limit int) (model.ChangePage, error) {
	const q = `
SELECT ` + docCols + `
FROM documents
WHERE recipient_id=$1 AND seq>$2
ORDER BY seq ASC
LIMIT $3`
	rows, err := r.db.Pool.Query(ctx, q, recipientID, since, limit+1)
	if err != nil {
		return model.ChangePage{}, err
	}
	defer rows.Close()

	var page model.ChangePage
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return model.ChangePage{}, err
		}
		page.Documents = append(page.Documents, d)
	}
	if err := rows.Err(); err != nil {
		return model.ChangePage{}, err
	}
	if len(page.Documents) > limit {
		page.Documents = page.Documents[:limit]
		page.HasMore = true
	}
	return page, nil
}

func scanDocument(row pgx.Row) (model.Document, error) {
	var (
		d       model.Document
		kind    string
		deleted *time.Time
		body    []byte
	)
	if err := row.Scan(&d.RemoteID, &kind, &d.SyncKey, &d.DeviceID, &d.UpdatedAt, &deleted, &body, &d.Seq); err != nil {
		return model.Document{}, err
	}
	d.Kind = model.Kind(kind)
	d.UpdatedAt = d.UpdatedAt.UTC()
	d.DeletedAt = utcPtr(deleted)
	if deleted == nil {
		d.Body = body
	}
	return d, nil
}

func sameDocument(cur, next model.Document) bool {
	if cur.Kind != next.Kind || cur.DeviceID != next.DeviceID || cur.SyncKey != next.SyncKey {
		return false
	}
	if !cur.UpdatedAt.Equal(next.UpdatedAt) {
		return false
	}
	if (cur.DeletedAt == nil) != (next.DeletedAt == nil) {
		return false
	}
	if cur.DeletedAt != nil {
		return cur.DeletedAt.Equal(*next.DeletedAt)
	}
	return bytes.Equal(cur.Body, next.Body)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
