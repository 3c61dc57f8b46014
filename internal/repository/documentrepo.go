package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/kazu-apps/carenote-sync/internal/model"
)

// DocumentRepository is the server-side document store scoped by care recipient.
type DocumentRepository interface {
	// Get returns one document.
	Get(ctx context.Context, recipientID, remoteID uuid.UUID) (*model.Document, error)
	// Put stores a document and returns its change sequence. An identical
	// rewrite leaves the stored row and its sequence unchanged.
	Put(ctx context.Context, recipientID uuid.UUID, d model.Document) (seq int64, applied bool, err error)
	// ChangedSince returns up to limit documents with sequence greater than since.
	ChangedSince(ctx context.Context, recipientID uuid.UUID, since int64, limit int) (model.ChangePage, error)
}

// PurchaseRepository holds purchase state known to the verification authority.
type PurchaseRepository interface {
	// Lookup returns the purchase recorded for a token digest and product.
	Lookup(ctx context.Context, digest []byte, productID string) (*model.Purchase, error)
	// Record stores or replaces purchase state for a token digest.
	Record(ctx context.Context, digest []byte, p model.Purchase) error
}
