package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/food-passport/api/internal/platform/httpx"
)

const (
	roleClaim            = "role"
	defaultVerifyTimeout = 5 * time.Second
)

var (
	// ErrTokenExpired signals that the provided Firebase ID token has expired.
	ErrTokenExpired = errors.New("auth: firebase id token expired")
	// ErrTokenInvalid signals that the provided Firebase ID token is invalid for other reasons.
	ErrTokenInvalid = errors.New("auth: firebase id token invalid")
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// Authenticator turns bearer tokens into an Identity on the request context.
type Authenticator struct {
	verifier  TokenVerifier
	adminRole string
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithAdminRole overrides the role allowed to act on behalf of other users.
func WithAdminRole(role string) Option {
	return func(a *Authenticator) {
		if role = normaliseRole(role); role != "" {
			a.adminRole = role
		}
	}
}

// NewAuthenticator constructs an Authenticator backed by verifier.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{verifier: verifier, adminRole: RoleAdmin}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireFirebaseAuth rejects requests without a valid bearer token. When allowedRoles is not
// empty the identity must hold at least one of them.
func (a *Authenticator) RequireFirebaseAuth(allowedRoles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, role := range allowedRoles {
		if role = normaliseRole(role); role != "" {
			allowed[role] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := a.authenticate(w, r)
			if !ok {
				return
			}
			if len(allowed) > 0 && !hasAllowedRole(identity.Roles, allowed) {
				writeAuthError(r.Context(), w, http.StatusForbidden, "insufficient_role", "identity does not have required role")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// OptionalFirebaseAuth lets anonymous requests through untouched. A request that does carry an
// Authorization header must present a valid token, and its identity is stored on the context.
func (a *Authenticator) OptionalFirebaseAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.TrimSpace(r.Header.Get("Authorization")) == "" {
				next.ServeHTTP(w, r)
				return
			}
			identity, ok := a.authenticate(w, r)
			if !ok {
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// authenticate verifies the bearer token and writes the 401 itself on failure.
func (a *Authenticator) authenticate(w http.ResponseWriter, r *http.Request) (*Identity, bool) {
	raw, ok := extractBearerToken(r.Header.Get("Authorization"))
	if !ok {
		writeAuthError(r.Context(), w, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
		return nil, false
	}
	if a == nil || a.verifier == nil {
		writeAuthError(r.Context(), w, http.StatusUnauthorized, "unauthenticated", "authorization service unavailable")
		return nil, false
	}

	token, err := a.verifier.VerifyIDToken(r.Context(), raw)
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenExpired), firebaseauth.IsIDTokenExpired(err):
			writeAuthError(r.Context(), w, http.StatusUnauthorized, "token_expired", "firebase id token expired")
		default:
			writeAuthError(r.Context(), w, http.StatusUnauthorized, "invalid_token", "firebase id token invalid")
		}
		return nil, false
	}

	identity := &Identity{
		UID:   token.UID,
		Email: stringClaim(token.Claims, "email"),
		Name:  stringClaim(token.Claims, "name"),
		Roles: rolesFromClaims(token.Claims[roleClaim]),
	}
	if len(identity.Roles) == 0 {
		identity.Roles = []string{RoleUser}
	}
	return identity, true
}

// RequireOwner only lets the request through when the authenticated uid equals the id returned by
// owner, or when the identity holds the admin role. It must run after RequireFirebaseAuth.
func (a *Authenticator) RequireOwner(owner func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				writeAuthError(r.Context(), w, http.StatusUnauthorized, "unauthenticated", "authentication required")
				return
			}
			if identity.UID != strings.TrimSpace(owner(r)) && !identity.HasRole(a.adminRole) {
				writeAuthError(r.Context(), w, http.StatusForbidden, "forbidden", "cannot act on another user's passport")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hasAllowedRole(roles []string, allowed map[string]struct{}) bool {
	for _, role := range roles {
		if _, ok := allowed[role]; ok {
			return true
		}
	}
	return false
}

// rolesFromClaims accepts a single string, a list of strings, or a map of role to bool.
func rolesFromClaims(raw any) []string {
	var candidates []string
	switch v := raw.(type) {
	case string:
		candidates = []string{v}
	case []string:
		candidates = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				candidates = append(candidates, s)
			}
		}
	case map[string]any:
		for key, value := range v {
			if enabled, ok := value.(bool); ok && enabled {
				candidates = append(candidates, key)
			}
		}
	}

	out := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		role := normaliseRole(candidate)
		if role == "" {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}

func stringClaim(claims map[string]any, key string) string {
	value, _ := claims[key].(string)
	return strings.TrimSpace(value)
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeAuthError(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}
