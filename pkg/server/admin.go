package server

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/openclaw/a2a/pkg/conversations"
	"github.com/openclaw/a2a/pkg/logger"
	"github.com/openclaw/a2a/pkg/logstore"
	"github.com/openclaw/a2a/pkg/types/a2a"
)

// adminOnly restricts a handler to loopback callers, or to remote
// callers presenting the configured x-admin-token.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.isAdmin(r) {
			next(w, r)
			return
		}
		logger.WithComponent(r.Context(), "server").
			WithField("event", "admin_denied").
			WithField("remote_addr", r.RemoteAddr).
			Warn("admin endpoint denied")
		s.writeError(w, r, http.StatusUnauthorized, errUnauthorized)
	}
}

func (s *Server) isAdmin(r *http.Request) bool {
	if isLoopback(r.RemoteAddr) {
		return true
	}
	token := r.Header.Get("x-admin-token")
	return s.config.AdminToken != "" && token == s.config.AdminToken
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// queryInt parses an integer query parameter with a default and cap.
func queryInt(r *http.Request, key string, fallback, max int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	if max > 0 && n > max {
		return max
	}
	return n
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := conversations.ListOptions{
		ContactID:       q.Get("contact_id"),
		Status:          a2a.ConversationStatus(q.Get("status")),
		Limit:           queryInt(r, "limit", 50, 200),
		IncludeMessages: q.Get("include_messages") == "true",
		MessageLimit:    queryInt(r, "message_limit", 20, 200),
	}

	listed, err := s.conversations.ListConversations(r.Context(), opts)
	if err != nil {
		logger.G(r.Context()).WithError(err).Error("failed to list conversations")
		s.writeError(w, r, http.StatusInternalServerError, errInternal)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"conversations": listed,
		"count":         len(listed),
	})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	recent := queryInt(r, "recent", 10, 100)

	context, err := s.conversations.ConversationContext(r.Context(), id, recent)
	if err != nil {
		logger.G(r.Context()).
			WithError(err).
			WithField("conversation_id", id).
			Warn("conversation lookup failed")
		s.writeError(w, r, http.StatusNotFound, errNotFound)
		return
	}
	s.writeJSON(w, r, http.StatusOK, context)
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		s.writeError(w, r, http.StatusNotFound, errNotFound)
		return
	}
	q := r.URL.Query()
	opts := logstore.ListOptions{
		Limit:          queryInt(r, "limit", 100, 1000),
		Level:          q.Get("level"),
		Component:      q.Get("component"),
		Event:          q.Get("event"),
		ErrorCode:      q.Get("error_code"),
		TraceID:        q.Get("trace_id"),
		ConversationID: q.Get("conversation_id"),
		TokenID:        q.Get("token_id"),
		Search:         q.Get("search"),
		SortDesc:       q.Get("order") != "asc",
	}
	if code, err := strconv.Atoi(q.Get("status_code")); err == nil {
		opts.StatusCode = code
	}
	opts.From = queryTime(q.Get("since"))
	opts.To = queryTime(q.Get("until"))

	entries, err := s.logs.List(r.Context(), opts)
	if err != nil {
		logger.G(r.Context()).WithError(err).Error("failed to list log entries")
		s.writeError(w, r, http.StatusInternalServerError, errInternal)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		s.writeError(w, r, http.StatusNotFound, errNotFound)
		return
	}
	traceID := mux.Vars(r)["id"]
	entries, err := s.logs.GetTrace(r.Context(), traceID, queryInt(r, "limit", 500, 2000))
	if err != nil {
		logger.G(r.Context()).WithError(err).Error("failed to load trace")
		s.writeError(w, r, http.StatusInternalServerError, errInternal)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"trace_id": traceID,
		"entries":  entries,
		"count":    len(entries),
	})
}

func (s *Server) handleLogStats(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		s.writeError(w, r, http.StatusNotFound, errNotFound)
		return
	}
	q := r.URL.Query()
	stats, err := s.logs.GetStats(r.Context(), queryTime(q.Get("since")), queryTime(q.Get("until")))
	if err != nil {
		logger.G(r.Context()).WithError(err).Error("failed to compute log stats")
		s.writeError(w, r, http.StatusInternalServerError, errInternal)
		return
	}
	s.writeJSON(w, r, http.StatusOK, stats)
}

func queryTime(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}
