package auth

import (
	"context"

	"github.com/oneone404/One-Shield-sub000/internal/models"
)

// Principal is the authenticated human behind a request.
type Principal struct {
	UserID string
	OrgID  string
	Role   models.Role
}

// IsAdmin reports whether the principal may manage users, tokens, policies,
// and endpoints.
func (p *Principal) IsAdmin() bool {
	return p.Role == models.RoleAdmin
}

// CanTriage reports whether the principal may change incident state.
func (p *Principal) CanTriage() bool {
	return p.Role == models.RoleAdmin || p.Role == models.RoleAnalyst
}

type contextKey int

const (
	principalKey contextKey = iota
	endpointKey
)

// WithPrincipal attaches a human principal to the request context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom extracts the human principal, if the request carried one.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok
}

// WithEndpoint attaches an agent-authenticated endpoint to the context.
func WithEndpoint(ctx context.Context, e *models.Endpoint) context.Context {
	return context.WithValue(ctx, endpointKey, e)
}

// EndpointFrom extracts the authenticated endpoint, if the request carried
// one.
func EndpointFrom(ctx context.Context) (*models.Endpoint, bool) {
	e, ok := ctx.Value(endpointKey).(*models.Endpoint)
	return e, ok
}
