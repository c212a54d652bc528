package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
)

type stubTokenVerifier struct {
	token    *firebaseauth.Token
	err      error
	received string
}

func (s *stubTokenVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	s.received = idToken
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	code, _ := body["error"].(string)
	return code
}

func TestRequireFirebaseAuth_AllowsValidToken(t *testing.T) {
	verifier := &stubTokenVerifier{
		token: &firebaseauth.Token{
			UID: "uid-123",
			Claims: map[string]any{
				"role":  []any{"Admin", "admin", "user"},
				"email": "user@example.com",
				"name":  "Lan",
			},
		},
	}
	authn := NewAuthenticator(verifier)

	called := false
	handler := authn.RequireFirebaseAuth(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		if identity.UID != "uid-123" || identity.Email != "user@example.com" || identity.Name != "Lan" {
			t.Fatalf("unexpected identity %+v", identity)
		}
		if len(identity.Roles) != 2 || !identity.HasRole("ADMIN") {
			t.Fatalf("expected deduplicated roles, got %v", identity.Roles)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer token-value")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent || !called {
		t.Fatalf("expected handler to run, got status %d", rr.Code)
	}
	if verifier.received != "token-value" {
		t.Fatalf("expected verifier to receive token-value, got %s", verifier.received)
	}
}

func TestRequireFirebaseAuth_Rejections(t *testing.T) {
	cases := []struct {
		name     string
		header   string
		verifier *stubTokenVerifier
		roles    []string
		status   int
		code     string
	}{
		{name: "missing header", header: "", verifier: &stubTokenVerifier{}, status: http.StatusUnauthorized, code: "unauthenticated"},
		{name: "wrong scheme", header: "Basic abc", verifier: &stubTokenVerifier{}, status: http.StatusUnauthorized, code: "unauthenticated"},
		{name: "expired", header: "Bearer t", verifier: &stubTokenVerifier{err: ErrTokenExpired}, status: http.StatusUnauthorized, code: "token_expired"},
		{name: "invalid", header: "Bearer t", verifier: &stubTokenVerifier{err: ErrTokenInvalid}, status: http.StatusUnauthorized, code: "invalid_token"},
		{
			name:     "missing role",
			header:   "Bearer t",
			verifier: &stubTokenVerifier{token: &firebaseauth.Token{UID: "u", Claims: map[string]any{}}},
			roles:    []string{RoleAdmin},
			status:   http.StatusForbidden,
			code:     "insufficient_role",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewAuthenticator(tc.verifier).RequireFirebaseAuth(tc.roles...)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Fatalf("handler should not execute")
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			if code := decodeError(t, rr); code != tc.code {
				t.Fatalf("expected %s, got %s", tc.code, code)
			}
		})
	}
}

func TestRequireFirebaseAuth_DefaultsToUserRole(t *testing.T) {
	verifier := &stubTokenVerifier{token: &firebaseauth.Token{UID: "uid-456", Claims: map[string]any{}}}
	handler := NewAuthenticator(verifier).RequireFirebaseAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := IdentityFromContext(r.Context())
		if len(identity.Roles) != 1 || identity.Roles[0] != RoleUser {
			t.Fatalf("expected default role, got %v", identity.Roles)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer token")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}

func TestRequireOwner(t *testing.T) {
	authn := NewAuthenticator(nil)
	owner := func(*http.Request) string { return "user-1" }
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	cases := []struct {
		name     string
		identity *Identity
		status   int
	}{
		{name: "no identity", identity: nil, status: http.StatusUnauthorized},
		{name: "owner", identity: &Identity{UID: "user-1", Roles: []string{RoleUser}}, status: http.StatusNoContent},
		{name: "other user", identity: &Identity{UID: "user-2", Roles: []string{RoleUser}}, status: http.StatusForbidden},
		{name: "admin", identity: &Identity{UID: "ops", Roles: []string{RoleAdmin}}, status: http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tc.identity != nil {
				req = req.WithContext(WithIdentity(req.Context(), tc.identity))
			}
			rr := httptest.NewRecorder()
			authn.RequireOwner(owner)(ok).ServeHTTP(rr, req)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
		})
	}
}

func TestOptionalFirebaseAuth(t *testing.T) {
	verifier := &stubTokenVerifier{token: &firebaseauth.Token{UID: "uid-7"}}
	authn := NewAuthenticator(verifier)

	var seen string
	handler := authn.OptionalFirebaseAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = "anonymous"
		if identity, ok := IdentityFromContext(r.Context()); ok {
			seen = identity.UID
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	if rr.Code != http.StatusNoContent || seen != "anonymous" {
		t.Fatalf("expected anonymous pass-through, got %d %q", rr.Code, seen)
	}

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent || seen != "uid-7" {
		t.Fatalf("expected verified identity, got %d %q", rr.Code, seen)
	}

	seen = ""
	verifier.err = ErrTokenInvalid
	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer bad")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized || seen != "" {
		t.Fatalf("expected invalid token to be rejected, got %d %q", rr.Code, seen)
	}
}
