package auth

import (
	"context"
	"strings"
)

// Roles recognised in the "role" custom claim.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Identity is the caller extracted from a verified Firebase ID token.
type Identity struct {
	UID   string
	Email string
	Name  string
	Roles []string
}

// HasRole reports whether the identity carries role (case-insensitive).
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = normaliseRole(role)
	if role == "" {
		return false
	}
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type identityKey struct{}

// WithIdentity stores identity on ctx.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity stored by RequireFirebaseAuth.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	identity, ok := ctx.Value(identityKey{}).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
