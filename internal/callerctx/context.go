package callerctx

import (
	"context"
	"strings"
)

// PrincipalKey is the request context key for the authenticated caller principal.
type PrincipalKey struct{}

// WithPrincipal stores the caller principal in the context. The principal is
// an opaque identity already verified by the upstream authentication layer;
// the ledger only ever compares it for equality.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, PrincipalKey{}, strings.TrimSpace(principal))
}

// PrincipalFromContext returns the caller principal from context, if set.
func PrincipalFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(PrincipalKey{}).(string)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}
