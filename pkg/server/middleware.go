package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openclaw/a2a/pkg/logger"
)

// maxBodyBytes caps every request body.
const maxBodyBytes = 100 * 1024

// maxTraceIDLength bounds an accepted x-trace-id header.
const maxTraceIDLength = 120

// traceMiddleware resolves the request's trace id (accepting a
// well-formed x-trace-id from the caller, minting one otherwise), binds
// it plus a fresh request id to the context logger, and echoes the
// trace id on the response.
func (s *Server) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := strings.TrimSpace(r.Header.Get("x-trace-id"))
		if traceID == "" || len(traceID) > maxTraceIDLength {
			traceID = uuid.NewString()
		}
		requestID := uuid.NewString()

		entry := logger.G(r.Context()).
			WithField("trace_id", traceID).
			WithField("request_id", requestID)
		ctx := logger.WithLogger(r.Context(), entry)

		w.Header().Set("x-trace-id", traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs one line per request with the final status.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, statusCode: 200}
		next.ServeHTTP(rw, r)

		logger.G(r.Context()).WithFields(map[string]any{
			"component":   "server",
			"event":       "http_request",
			"method":      r.Method,
			"path":        r.URL.Path,
			"status_code": rw.statusCode,
			"duration_ms": time.Since(start).Milliseconds(),
			"remote_addr": r.RemoteAddr,
		}).Info("HTTP request")
	})
}

// bodyLimitMiddleware bounds request bodies so a peer cannot stream an
// arbitrarily large payload, and requires JSON on writes.
func (s *Server) bodyLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			contentType := r.Header.Get("Content-Type")
			if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
				s.writeError(w, r, http.StatusBadRequest, errInvalidMessage)
				return
			}
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
