// Package auth issues and parses the bearer tokens that bind a household
// member to a care recipient.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/kazu-apps/carenote-sync/internal/errs"
)

// Principal is the authenticated caller.
type Principal struct {
	MemberID    uuid.UUID
	RecipientID uuid.UUID
}

type claims struct {
	RecipientID string `json:"rid"`
	jwt.RegisteredClaims
}

// Issuer signs HS256 access tokens.
type Issuer struct {
	signKey []byte
	ttl     time.Duration
	now     func() time.Time
}

// NewIssuer returns an issuer for tokens valid for ttl.
func NewIssuer(signKey []byte, ttl time.Duration) *Issuer {
	return &Issuer{signKey: signKey, ttl: ttl, now: time.Now}
}

// Issue creates a signed token for p and returns it with its expiry.
func (i *Issuer) Issue(p Principal) (string, time.Time, error) {
	if p.MemberID == uuid.Nil || p.RecipientID == uuid.Nil {
		return "", time.Time{}, errors.New("validation: member and recipient are required")
	}
	now := i.now()
	exp := now.Add(i.ttl)
	c := claims{
		RecipientID: p.RecipientID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.MemberID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.signKey)
	return signed, exp, err
}

// Parse verifies an HS256 token and returns its principal. Every failure
// is reported as errs.ErrUnauthorized.
func Parse(signKey []byte, token string) (Principal, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return signKey, nil
	}, jwt.WithLeeway(30*time.Second), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return Principal{}, fmt.Errorf("invalid token: %w", errs.ErrUnauthorized)
	}

	member, err := uuid.FromString(c.Subject)
	if err != nil {
		return Principal{}, fmt.Errorf("bad subject: %w", errs.ErrUnauthorized)
	}
	recipient, err := uuid.FromString(c.RecipientID)
	if err != nil {
		return Principal{}, fmt.Errorf("bad recipient: %w", errs.ErrUnauthorized)
	}
	return Principal{MemberID: member, RecipientID: recipient}, nil
}
