package server

import (
	"net/http"

	"github.com/jrsteele09/go-message-gateway/sessions"
)

type createSessionRequest struct {
	ClientID string `json:"clientId"`
}

type sendMessageRequest struct {
	Number  string `json:"number"`
	Message string `json:"message"`
}

// CreateSessionHandler starts a session and its driver for the tenant in the body.
func (s *Server) CreateSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if req.ClientID == "" {
			writeErrorResponse(w, http.StatusBadRequest, "clientId required", "provide the clientId of the session to create")
			return
		}
		if !authorizeTenant(w, r, req.ClientID) {
			return
		}

		snapshot, err := s.adapter.Create(r.Context(), req.ClientID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, "session created, waiting for QR code", snapshot)
	}
}

// QRCodeHandler returns the last pairing code of the session.
func (s *Server) QRCodeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.PathValue("clientId")
		if !authorizeTenant(w, r, tenantID) {
			return
		}
		qr, err := s.sessions.QRCode(tenantID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"clientId":  tenantID,
			"qrCode":    qr.Code,
			"timestamp": qr.Timestamp,
		})
	}
}

// StatusHandler returns the session snapshot.
func (s *Server) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.PathValue("clientId")
		if !authorizeTenant(w, r, tenantID) {
			return
		}
		snapshot, err := s.sessions.Get(tenantID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snapshot)
	}
}

// SendMessageHandler sends a text message through the session's driver.
func (s *Server) SendMessageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.PathValue("clientId")
		var req sendMessageRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if req.Number == "" || req.Message == "" {
			writeErrorResponse(w, http.StatusBadRequest, "number and message required", "")
			return
		}
		if !authorizeTenant(w, r, tenantID) {
			return
		}

		result, err := s.adapter.SendMessage(r.Context(), tenantID, req.Number, req.Message)
		if err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, "message sent", result)
	}
}

// RemoveSessionHandler tears down the session and its driver.
func (s *Server) RemoveSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.PathValue("clientId")
		if !authorizeTenant(w, r, tenantID) {
			return
		}
		if err := s.adapter.Remove(r.Context(), tenantID); err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, "session removed", nil)
	}
}

// ListSessionsHandler lists the sessions visible to the caller.
func (s *Server) ListSessionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, _ := IdentityFromContext(r.Context())
		visible := make([]sessions.Snapshot, 0)
		for _, snap := range s.sessions.List() {
			if identity.Can(snap.TenantID) {
				visible = append(visible, snap)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"clients": visible})
	}
}
