package auth

import (
	"context"

	"github.com/medassist/api/internal/domain"
)

// Identity is the authenticated principal attached to a request.
type Identity struct {
	UserID string
	Roles  []domain.Role
}

// HasRole reports whether the identity carries the given role.
func (i Identity) HasRole(role domain.Role) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type contextKey string

const identityKey contextKey = "github.com/medassist/api/internal/platform/auth/identity"

// WithIdentity stores the identity on the context.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// FromContext returns the request identity, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}
