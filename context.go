package leaseAuth

import "context"

type clientIPContextKey struct{}
type principalContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The engine uses it
// for the per-IP login throttle and in events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithPrincipal binds p to ctx. A nil p returns ctx unchanged.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	if p == nil {
		return ctx
	}
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the principal bound by the gate, or nil for
// an anonymous request.
func PrincipalFromContext(ctx context.Context) *Principal {
	if ctx == nil {
		return nil
	}
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

// clearPrincipal masks any principal bound further up the context chain.
func clearPrincipal(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if PrincipalFromContext(ctx) == nil {
		return ctx
	}
	return context.WithValue(ctx, principalContextKey{}, (*Principal)(nil))
}
