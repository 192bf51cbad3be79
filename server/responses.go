package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	gwerrors "github.com/jrsteele09/go-message-gateway/internal/errors"
)

const contentTypeJSON = "application/json"

// Envelope wraps successful responses.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("failed to encode response")
	}
}

func writeSuccess(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, Envelope{Success: true, Message: message, Data: data})
}

func writeErrorResponse(w http.ResponseWriter, status int, errorCode, message string) {
	writeJSON(w, status, ErrorResponse{Error: errorCode, Message: message})
}

// statusFor maps a gateway error kind to its HTTP status.
func statusFor(err error) int {
	switch gwerrors.Kind(err) {
	case gwerrors.ErrInvalidInput:
		return http.StatusBadRequest
	case gwerrors.ErrUnauthenticated:
		return http.StatusUnauthorized
	case gwerrors.ErrPermissionDenied:
		return http.StatusForbidden
	case gwerrors.ErrNotFound:
		return http.StatusNotFound
	case gwerrors.ErrAlreadyExists:
		return http.StatusConflict
	case gwerrors.ErrUpstreamFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusForbidden:
		// Never reveal whether the target exists.
		writeErrorResponse(w, status, "access denied", "token is not allowed to access this session")
	case http.StatusInternalServerError:
		log.Err(err).Msg("unexpected error")
		writeErrorResponse(w, status, "internal server error", "")
	default:
		if status == http.StatusBadGateway {
			log.Err(err).Msg("upstream failure")
		}
		writeErrorResponse(w, status, gwerrors.Kind(err).Error(), err.Error())
	}
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return gwerrors.Wrapf(gwerrors.ErrInvalidInput, "request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return gwerrors.Wrapf(gwerrors.ErrInvalidInput, "malformed JSON body: %v", err)
	}
	return nil
}
