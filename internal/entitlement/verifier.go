// Package entitlement verifies purchase tokens with the remote authority
// at most once per token, using the local idempotency ledger.
package entitlement

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kazu-apps/carenote-sync/internal/crypto"
	"github.com/kazu-apps/carenote-sync/internal/errs"
	"github.com/kazu-apps/carenote-sync/internal/logging"
	"github.com/kazu-apps/carenote-sync/internal/metrics"
	"github.com/kazu-apps/carenote-sync/internal/model"
	"github.com/kazu-apps/carenote-sync/internal/repository"
	"github.com/kazu-apps/carenote-sync/internal/retrypolicy"
)

// Authority is the remote purchase verification service. Calls carrying the
// same idempotency key have the effect of one call.
type Authority interface {
	Verify(ctx context.Context, token, productID, idempotencyKey string) (model.Purchase, error)
}

// Verification is the outcome of Verify.
type Verification struct {
	Entitlement model.LedgerEntry
	Replayed    bool // served from the ledger without calling the authority
}

// Option customizes a Verifier.
type Option func(*Verifier)

// WithRetry sets the retry policy of authority calls.
func WithRetry(p retrypolicy.Policy) Option { return func(v *Verifier) { v.retry = p } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(v *Verifier) { v.now = now } }

// WithMetrics counts verification outcomes.
func WithMetrics(m *metrics.Metrics) Option { return func(v *Verifier) { v.metrics = m } }

// Verifier applies each purchase token exactly once.
type Verifier struct {
	ledger    repository.LedgerStore
	authority Authority
	log       *zap.Logger
	retry     retrypolicy.Policy
	now       func() time.Time
	metrics   *metrics.Metrics
	group     singleflight.Group
}

// New builds a verifier.
func New(ledger repository.LedgerStore, authority Authority, log *zap.Logger, opts ...Option) *Verifier {
	if log == nil {
		log = zap.NewNop()
	}
	v := &Verifier{ledger: ledger, authority: authority, log: log, retry: retrypolicy.Default(), now: time.Now}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Verify returns the entitlement granted by token. A token already in the
// ledger is answered from it without contacting the authority.
func (v *Verifier) Verify(ctx context.Context, token, productID string) (Verification, error) {
	if token == "" || productID == "" {
		return Verification{}, errs.E(errs.InvalidInput, "verify: token and product are required", nil)
	}
	digest := crypto.TokenDigest(token)

	// The shared call outlives any single caller; each caller waits on its
	// own ctx.
	ch := v.group.DoChan(hex.EncodeToString(digest), func() (any, error) {
		wctx := context.WithoutCancel(ctx)
		if b := v.retry.Budget(); b > 0 {
			var cancel context.CancelFunc
			wctx, cancel = context.WithTimeout(wctx, b)
			defer cancel()
		}
		return v.verify(wctx, digest, token, productID)
	})
	var (
		res any
		err error
	)
	select {
	case r := <-ch:
		res, err = r.Val, r.Err
	case <-ctx.Done():
		err = errs.E(errs.Transient, "verify", ctx.Err())
	}
	if err != nil {
		v.metrics.Verification("error")
		v.log.Warn("purchase verification failed",
			append(logging.ErrorFields(err),
				zap.String("product_id", productID),
				logging.Redacted("purchase_token", token))...)
		return Verification{}, err
	}
	out := res.(Verification)
	if out.Replayed {
		v.metrics.Verification("replayed")
	} else {
		v.metrics.Verification("verified")
	}
	v.log.Info("purchase verified",
		zap.String("product_id", out.Entitlement.ProductID),
		zap.Bool("active", out.Entitlement.IsActive),
		zap.Bool("replayed", out.Replayed))
	return out, nil
}

func (v *Verifier) verify(ctx context.Context, digest []byte, token, productID string) (Verification, error) {
	entry, err := v.ledger.GetEntry(ctx, digest)
	switch {
	case err == nil:
		return Verification{Entitlement: *entry, Replayed: true}, nil
	case !errors.Is(err, errs.ErrNotFound):
		return Verification{}, errs.E(errs.Transient, "verify: ledger lookup", err)
	}

	// One key per logical verification; transport retries reuse it.
	key := uuid.Must(uuid.NewV4()).String()
	p, err := retrypolicy.DoValue(ctx, v.retry, func(ctx context.Context) (model.Purchase, error) {
		return v.authority.Verify(ctx, token, productID, key)
	})
	if err != nil {
		return Verification{}, classify(err)
	}
	if p.ProductID == "" {
		p.ProductID = productID
	}

	stored, inserted, err := v.ledger.InsertEntryIfAbsent(context.WithoutCancel(ctx), model.LedgerEntry{
		TokenDigest:      digest,
		ProductID:        p.ProductID,
		IsActive:         p.IsActive,
		ExpiryTimeMillis: p.ExpiryTimeMillis,
		AutoRenewing:     p.AutoRenewing,
		VerifiedAt:       v.now().UTC().Truncate(time.Millisecond),
	})
	if err != nil {
		return Verification{}, errs.E(errs.Transient, "verify: ledger insert", err)
	}
	return Verification{Entitlement: stored, Replayed: !inserted}, nil
}

// classify keeps authority errors inside the verifier's taxonomy.
func classify(err error) error {
	var e *errs.Error
	if errors.As(err, &e) {
		switch e.Kind {
		case errs.Authentication, errs.InvalidInput, errs.NotFound, errs.PermissionDenied, errs.Transient:
			return err
		case errs.Validation:
			return errs.E(errs.InvalidInput, "verify", err)
		}
	}
	return errs.E(errs.Transient, "verify", err)
}
