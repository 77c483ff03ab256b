// Package identity answers who the current shopper is.
package identity

import "context"

// Principal is an authenticated shopper.
type Principal struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	// Token is the bearer token the principal was verified from. It is
	// forwarded to the order backend.
	Token string `json:"-"`
}

// Identity resolves the principal for a request. A nil principal means the
// shopper is anonymous.
type Identity interface {
	CurrentPrincipal(ctx context.Context) *Principal
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying p.
func NewContext(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the principal stored in ctx, or nil.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(ctxKey{}).(*Principal)
	return p
}

// Context reads the principal placed in the request context by the
// authentication middleware.
type Context struct{}

// CurrentPrincipal implements Identity.
func (Context) CurrentPrincipal(ctx context.Context) *Principal {
	return FromContext(ctx)
}

// Static always answers with the same principal. A nil principal makes every
// caller anonymous.
type Static struct {
	Principal *Principal
}

// CurrentPrincipal implements Identity.
func (s Static) CurrentPrincipal(context.Context) *Principal {
	return s.Principal
}
