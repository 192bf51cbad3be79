package server

import (
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	gwerrors "github.com/jrsteele09/go-message-gateway/internal/errors"
	"github.com/jrsteele09/go-message-gateway/internal/utils"
	"github.com/jrsteele09/go-message-gateway/sessions"
)

// parseLimit reads ?limit=, which must be positive when present.
func parseLimit(q url.Values, defaultLimit int) (int, error) {
	limit, err := utils.ParseOptionalInt(q.Get("limit"), defaultLimit)
	if err != nil || limit <= 0 {
		return 0, errors.Wrapf(gwerrors.ErrInvalidInput, "limit must be a positive integer, got %q", q.Get("limit"))
	}
	return limit, nil
}

// parseFilter builds a message filter from the query string.
func parseFilter(q url.Values, defaultLimit int) (sessions.Filter, error) {
	f := sessions.Filter{
		From: q.Get("from"),
		Type: q.Get("type"),
	}

	lastHours, err := utils.ParseOptionalFloat(q.Get("lastHours"))
	if err != nil || lastHours < 0 {
		return f, errors.Wrapf(gwerrors.ErrInvalidInput, "lastHours must be a non-negative number, got %q", q.Get("lastHours"))
	}
	f.LastHours = lastHours

	onlyGroups, err := utils.ParseOptionalBool(q.Get("onlyGroups"))
	if err != nil {
		return f, errors.Wrapf(gwerrors.ErrInvalidInput, "onlyGroups must be true or false, got %q", q.Get("onlyGroups"))
	}
	f.OnlyGroups = onlyGroups

	if f.Limit, err = parseLimit(q, defaultLimit); err != nil {
		return f, err
	}
	return f, nil
}

func (s *Server) writeQuery(w http.ResponseWriter, tenantID string, f sessions.Filter) {
	res, err := s.sessions.Query(tenantID, f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, "", map[string]any{
		"clientId": tenantID,
		"messages": res.Messages,
		"count":    len(res.Messages),
		"total":    res.Total,
		"filters":  res.Filters,
	})
}

// QueryMessagesHandler filters the session's buffered messages.
func (s *Server) QueryMessagesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.PathValue("clientId")
		f, err := parseFilter(r.URL.Query(), s.config.GetDefaultQueryLimit())
		if err != nil {
			writeError(w, err)
			return
		}
		if !authorizeTenant(w, r, tenantID) {
			return
		}
		s.writeQuery(w, tenantID, f)
	}
}

// LatestMessagesHandler returns the newest messages.
func (s *Server) LatestMessagesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.PathValue("clientId")
		limit, err := parseLimit(r.URL.Query(), s.config.GetLatestMessagesLimit())
		if err != nil {
			writeError(w, err)
			return
		}
		if !authorizeTenant(w, r, tenantID) {
			return
		}
		s.writeQuery(w, tenantID, sessions.Filter{Limit: limit})
	}
}

// SearchMessagesHandler finds messages whose body contains ?q=. The other
// message filters may be combined with it.
func (s *Server) SearchMessagesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.PathValue("clientId")
		q := r.URL.Query()
		if q.Get("q") == "" {
			writeErrorResponse(w, http.StatusBadRequest, "q required", "provide the text to search for")
			return
		}
		f, err := parseFilter(q, s.config.GetDefaultQueryLimit())
		if err != nil {
			writeError(w, err)
			return
		}
		f.Text = q.Get("q")
		if !authorizeTenant(w, r, tenantID) {
			return
		}
		s.writeQuery(w, tenantID, f)
	}
}

// MessageStatsHandler summarises the session's buffer.
func (s *Server) MessageStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.PathValue("clientId")
		if !authorizeTenant(w, r, tenantID) {
			return
		}
		stats, err := s.sessions.Stats(tenantID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, "", map[string]any{"clientId": tenantID, "stats": stats})
	}
}

// ClearMessagesHandler empties the session's buffer.
func (s *Server) ClearMessagesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.PathValue("clientId")
		if !authorizeTenant(w, r, tenantID) {
			return
		}
		cleared, err := s.sessions.Clear(tenantID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, "messages cleared", map[string]any{"clientId": tenantID, "cleared": cleared})
	}
}
