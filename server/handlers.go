package server

import (
	"net/http"
	"time"
)

// IndexHandler describes the service and its routes.
func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"name":      s.config.GetAppName(),
			"status":    "running",
			"websocket": RouteWebSocket,
			"routes":    s.routes,
		})
	}
}

func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"uptime":   time.Since(s.startedAt).Round(time.Second).String(),
			"sessions": len(s.sessions.List()),
		})
	}
}

// PreflightHandler answers CORS preflight requests; CorsMiddleware sets the headers.
func (s *Server) PreflightHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

// WebSocketStatsHandler reports live connection counts.
func (s *Server) WebSocketStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.hub.Stats())
	}
}
