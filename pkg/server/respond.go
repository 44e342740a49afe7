package server

import (
	"encoding/json"
	"net/http"

	"github.com/openclaw/a2a/pkg/logger"
)

// The closed set of caller-facing error codes. Anything more specific
// (which credential check failed, what the store reported) stays in the
// logs.
const (
	errMissingToken          = "missing_token"
	errUnauthorized          = "unauthorized"
	errRateLimited           = "rate_limited"
	errMissingMessage        = "missing_message"
	errInvalidMessage        = "invalid_message"
	errMissingConversationID = "missing_conversation_id"
	errNotFound              = "not_found"
	errInternal              = "internal_error"
)

// writeJSON writes a JSON body with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.G(r.Context()).WithError(err).Error("failed to encode JSON response")
	}
}

// errorMessages supplies the human-readable half of an error response.
// The unauthorized text stays generic; the real rejection reason only
// ever reaches the logs.
var errorMessages = map[string]string{
	errMissingToken:          "Authorization header with a Bearer token is required",
	errUnauthorized:          "Invalid or expired token",
	errRateLimited:           "Rate limit exceeded, retry later",
	errMissingMessage:        "A message is required",
	errInvalidMessage:        "The message must be a JSON string of at most 10000 characters",
	errMissingConversationID: "A conversation_id is required",
	errNotFound:              "Conversation not found",
	errInternal:              "Internal error",
}

// writeError writes {"success":false,"error":code,"message":text}. code
// must be one of the closed set above.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	s.writeJSON(w, r, status, map[string]any{
		"success": false,
		"error":   code,
		"message": errorMessages[code],
	})
}
