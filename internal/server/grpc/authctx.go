package grpcserver

import (
	"context"

	"github.com/kazu-apps/carenote-sync/internal/auth"
)

type ctxKey string

const principalKey ctxKey = "carenote.principal"

// WithPrincipal stores the authenticated caller in context.
func WithPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromCtx fetches the authenticated caller from context.
func PrincipalFromCtx(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalKey).(auth.Principal)
	return p, ok
}
