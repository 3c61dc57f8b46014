// Package service contains the application services behind the gRPC API.
package service

import (
	"context"
	"errors"

	"github.com/kazu-apps/carenote-sync/internal/crypto"
	"github.com/kazu-apps/carenote-sync/internal/errs"
	"github.com/kazu-apps/carenote-sync/internal/model"
	"github.com/kazu-apps/carenote-sync/internal/repository"
)

// EntitlementService answers purchase verification requests.
type EntitlementService interface {
	// Verify returns the purchase state recorded for a token and product.
	Verify(ctx context.Context, token, productID, idempotencyKey string) (model.Purchase, error)
	// Grant records purchase state for a token. Used for provisioning.
	Grant(ctx context.Context, token string, p model.Purchase) error
}

type EntitlementServiceImpl struct {
	purchases repository.PurchaseRepository
}

// NewEntitlementService constructs EntitlementService.
func NewEntitlementService(purchases repository.PurchaseRepository) *EntitlementServiceImpl {
	return &EntitlementServiceImpl{purchases: purchases}
}

// Verify looks the token up by digest. The raw token is never persisted.
func (s *EntitlementServiceImpl) Verify(ctx context.Context, token, productID, idempotencyKey string) (model.Purchase, error) {
	if token == "" || productID == "" {
		return model.Purchase{}, errs.E(errs.InvalidInput, "verify purchase", nil)
	}
	if idempotencyKey == "" {
		return model.Purchase{}, errs.E(errs.InvalidInput, "verify purchase: missing idempotency key", nil)
	}
	p, err := s.purchases.Lookup(ctx, crypto.TokenDigest(token), productID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Purchase{}, errs.E(errs.NotFound, "verify purchase", err)
		}
		return model.Purchase{}, err
	}
	return *p, nil
}

// Grant stores or replaces the purchase state for token.
func (s *EntitlementServiceImpl) Grant(ctx context.Context, token string, p model.Purchase) error {
	if token == "" || p.ProductID == "" {
		return errs.Validationf("empty token/product_id")
	}
	if p.ExpiryTimeMillis < 0 {
		return errs.Validationf("negative expiry")
	}
	return s.purchases.Record(ctx, crypto.TokenDigest(token), p)
}
