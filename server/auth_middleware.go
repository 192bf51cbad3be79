package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-message-gateway/permission"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeyIdentity stores the permission.Identity of the caller
const ContextKeyIdentity ContextKey = "identity"

// secretFromRequest reads the caller secret from ?token= or a Bearer Authorization header.
func secretFromRequest(r *http.Request) string {
	if secret := r.URL.Query().Get("token"); secret != "" {
		return secret
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// IdentityFromContext returns the identity placed by RequireAuth.
func IdentityFromContext(ctx context.Context) (permission.Identity, bool) {
	id, ok := ctx.Value(ContextKeyIdentity).(permission.Identity)
	return id, ok
}

// RequireAuth validates the caller secret against the token registry and
// injects the resulting identity into the request context.
func (s *Server) RequireAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			secret := secretFromRequest(r)
			if secret == "" {
				writeErrorResponse(w, http.StatusUnauthorized, "access token required",
					"provide the token via the token query parameter or the Authorization header")
				return
			}

			validation, ok := s.tokens.Validate(secret)
			if !ok {
				writeErrorResponse(w, http.StatusUnauthorized, "invalid token", "the token provided is not valid or has expired")
				return
			}

			identity := permission.Identity{TenantID: validation.TenantID, IsMaster: validation.IsMaster}
			ctx := context.WithValue(r.Context(), ContextKeyIdentity, identity)
			next(w, r.WithContext(ctx))
		}
	}
}

// RequireMaster rejects callers that are not the wildcard identity.
// Should be chained after RequireAuth.
func (s *Server) RequireMaster() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok || !identity.IsMaster {
				writeErrorResponse(w, http.StatusForbidden, "access denied", "only the master token can manage tokens")
				return
			}
			next(w, r)
		}
	}
}

// authorizeTenant checks the caller may act on the {clientId} path value.
// It writes the error response itself and reports whether the handler may continue.
func authorizeTenant(w http.ResponseWriter, r *http.Request, tenantID string) bool {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, "access token required", "")
		return false
	}
	if err := identity.Check(tenantID); err != nil {
		writeError(w, err)
		return false
	}
	return true
}
