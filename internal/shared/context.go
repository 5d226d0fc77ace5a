package shared

import "context"

type principalContextKey struct{}

// Principal describes the already-authenticated caller attached by the upstream
// authentication layer.
type Principal struct {
	ID    string
	Role  string
	Email string
}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context. It returns nil when
// the request is anonymous.
func PrincipalFromContext(ctx context.Context) *Principal {
	if ctx == nil {
		return nil
	}
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
