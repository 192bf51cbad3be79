package server

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	gwerrors "github.com/jrsteele09/go-message-gateway/internal/errors"
)

type generateTokenRequest struct {
	ClientID  string `json:"clientId"`
	ExpiresIn int64  `json:"expiresIn"` // milliseconds, 0 never expires
}

type validateTokenRequest struct {
	Token string `json:"token"`
}

type validateTokenResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	IsValid bool   `json:"isValid"`
	Data    any    `json:"data,omitempty"`
}

// GenerateTokenHandler issues a token for a tenant, replacing any previous one.
func (s *Server) GenerateTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateTokenRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if req.ClientID == "" {
			writeErrorResponse(w, http.StatusBadRequest, "clientId required", "provide the clientId to issue a token for")
			return
		}

		issued, err := s.tokens.Issue(req.ClientID, time.Duration(req.ExpiresIn)*time.Millisecond)
		if err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, "token generated", issued)
	}
}

// ValidateTokenHandler reports whether the token in the body is currently valid.
func (s *Server) ValidateTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req validateTokenRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if req.Token == "" {
			writeErrorResponse(w, http.StatusBadRequest, "token required", "provide the token to validate")
			return
		}

		validation, ok := s.tokens.Validate(req.Token)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, validateTokenResponse{Message: "token invalid or expired"})
			return
		}
		writeJSON(w, http.StatusOK, validateTokenResponse{
			Success: true,
			Message: "token valid",
			IsValid: true,
			Data:    validation,
		})
	}
}

// RevokeTokenHandler removes the tenant's token.
func (s *Server) RevokeTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.PathValue("clientId")
		if !s.tokens.Revoke(tenantID) {
			writeError(w, gwerrors.Wrapf(gwerrors.ErrNotFound, "no active token for client %s", tenantID))
			return
		}
		log.Info().Str("tenant", tenantID).Msg("token revoked via API")
		writeSuccess(w, "token revoked", nil)
	}
}

// ListTokensHandler lists active tokens with redacted secrets.
func (s *Server) ListTokensHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokens := s.tokens.ListActive()
		writeSuccess(w, "active tokens", map[string]any{
			"count":  len(tokens),
			"tokens": tokens,
		})
	}
}

// TokenInfoHandler describes the caller's own identity.
func (s *Server) TokenInfoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, _ := IdentityFromContext(r.Context())
		writeSuccess(w, "current token", identity)
	}
}
