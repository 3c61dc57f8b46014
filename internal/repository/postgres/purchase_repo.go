package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/kazu-apps/carenote-sync/internal/errs"
	"github.com/kazu-apps/carenote-sync/internal/model"
	"github.com/kazu-apps/carenote-sync/internal/repository"
)

// PurchaseRepo implements PurchaseRepository using PostgreSQL.
type PurchaseRepo struct{ db *DB }

var _ repository.PurchaseRepository = (*PurchaseRepo)(nil)

// NewPurchaseRepo constructs a purchase repository.
func NewPurchaseRepo(db *DB) *PurchaseRepo { return &PurchaseRepo{db: db} }

// Lookup selects the purchase for a token digest and product.
func (r *PurchaseRepo) Lookup(ctx context.Context, digest []byte, productID string) (*model.Purchase, error) {
	const q = `
SELECT product_id, is_active, expiry_time_millis, auto_renewing
FROM purchases WHERE token_digest=$1 AND product_id=$2`
	var p model.Purchase
	err := r.db.Pool.QueryRow(ctx, q, digest, productID).Scan(&p.ProductID, &p.IsActive, &p.ExpiryTimeMillis, &p.AutoRenewing)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Record inserts or replaces the purchase state for a token digest.
func (r *PurchaseRepo) Record(ctx context.Context, digest []byte, p model.Purchase) error {
	const q = `
INSERT INTO purchases (token_digest, product_id, is_active, expiry_time_millis, auto_renewing, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (token_digest, product_id)
DO UPDATE SET is_active=$3, expiry_time_millis=$4, auto_renewing=$5, updated_at=now()`
	_, err := r.db.Pool.Exec(ctx, q, digest, p.ProductID, p.IsActive, p.ExpiryTimeMillis, p.AutoRenewing)
	return err
}
