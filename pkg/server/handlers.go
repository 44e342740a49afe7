package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/openclaw/a2a/pkg/collab"
	"github.com/openclaw/a2a/pkg/conversations"
	"github.com/openclaw/a2a/pkg/credentials"
	"github.com/openclaw/a2a/pkg/crypto"
	"github.com/openclaw/a2a/pkg/logger"
	"github.com/openclaw/a2a/pkg/telemetry"
	"github.com/openclaw/a2a/pkg/types/a2a"
	"github.com/openclaw/a2a/pkg/version"
)

// Message and timeout bounds for /invoke.
const (
	maxMessageChars = 10000

	minTimeoutSeconds     = 5
	maxTimeoutSeconds     = 300
	defaultTimeoutSeconds = 60
)

// Caller identity field caps. Anything longer is truncated, anything
// outside the four whitelisted fields is dropped.
const (
	maxCallerNameLength     = 100
	maxCallerOwnerLength    = 100
	maxCallerInstanceLength = 200
	maxCallerContextLength  = 500
)

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"pong":      true,
		"service":   "openclaw-a2a",
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	limits := s.limiter.Limits()
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"a2a":          true,
		"service":      "openclaw-a2a",
		"version":      version.Get().Version,
		"capabilities": []string{"invoke", "multi-turn", "collab_state"},
		"rate_limits": map[string]int{
			"per_minute": limits.PerMinute,
			"per_hour":   limits.PerHour,
			"per_day":    limits.PerDay,
		},
	})
}

// authenticate resolves the Bearer token. A missing token is reported
// as missing_token; every validation failure collapses to a generic
// unauthorized with the real reason logged.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (*credentials.Validation, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		s.writeError(w, r, http.StatusUnauthorized, errMissingToken)
		return nil, false
	}

	validation, err := s.credentials.ValidateToken(token)
	if err != nil {
		logger.WithComponent(r.Context(), "server").
			WithError(err).
			WithField("error_code", "credential_store_error").
			Error("token validation failed")
		s.writeError(w, r, http.StatusInternalServerError, errInternal)
		return nil, false
	}
	if !validation.Valid {
		logger.WithComponent(r.Context(), "server").
			WithField("event", "auth_rejected").
			WithField("reason", validation.Reason).
			Warn("rejected credential")
		s.writeError(w, r, http.StatusUnauthorized, errUnauthorized)
		return nil, false
	}
	return validation, true
}

type invokeRequest struct {
	Message        json.RawMessage `json:"message"`
	ConversationID string          `json:"conversation_id"`
	Caller         map[string]any  `json:"caller"`
	Context        any             `json:"context"`
	TimeoutSeconds any             `json:"timeout_seconds"`
}

type invokeResponse struct {
	Success         bool   `json:"success"`
	ConversationID  string `json:"conversation_id"`
	Response        string `json:"response"`
	CanContinue     bool   `json:"can_continue"`
	TokensRemaining *int   `json:"tokens_remaining"`
}

// sanitizeCaller keeps only the four whitelisted identity fields, each
// truncated to its cap.
func sanitizeCaller(raw map[string]any) a2a.Caller {
	pick := func(key string, max int) string {
		v, ok := raw[key].(string)
		if !ok {
			return ""
		}
		v = strings.TrimSpace(v)
		// Truncate by runes so a multibyte character is never split.
		if utf8.RuneCountInString(v) > max {
			v = string([]rune(v)[:max])
		}
		return v
	}
	return a2a.Caller{
		Name:     pick("name", maxCallerNameLength),
		Owner:    pick("owner", maxCallerOwnerLength),
		Instance: pick("instance", maxCallerInstanceLength),
		Context:  pick("context", maxCallerContextLength),
	}
}

// coerceTimeout turns a JSON number or numeric string into a deadline
// in seconds, clamped to [minTimeoutSeconds, maxTimeoutSeconds].
func coerceTimeout(v any) time.Duration {
	seconds := defaultTimeoutSeconds
	switch n := v.(type) {
	case float64:
		seconds = int(n)
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			seconds = parsed
		}
	}
	if seconds < minTimeoutSeconds {
		seconds = minTimeoutSeconds
	}
	if seconds > maxTimeoutSeconds {
		seconds = maxTimeoutSeconds
	}
	return time.Duration(seconds) * time.Second
}

// newConversationID mints a conversation id both peers of the call will
// share: a millisecond timestamp plus six hex characters.
func (s *Server) newConversationID() string {
	suffix, err := crypto.RandomHex(3)
	if err != nil {
		suffix = "000000"
	}
	return fmt.Sprintf("conv_%d_%s", s.now().UnixMilli(), suffix)
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	validation, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	token := validation.Token

	result := s.limiter.Allow(token.ID)
	if result.Limited {
		logger.WithComponent(ctx, "server").
			WithField("event", "rate_limited").
			WithField("token_id", token.ID).
			WithField("window", string(result.Window)).
			Warn("call rejected by rate limiter")
		w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
		s.writeError(w, r, http.StatusTooManyRequests, errRateLimited)
		return
	}

	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// A literal empty body means no message was sent at all.
		if errors.Is(err, io.EOF) {
			s.writeError(w, r, http.StatusBadRequest, errMissingMessage)
			return
		}
		s.writeError(w, r, http.StatusBadRequest, errInvalidMessage)
		return
	}
	if len(req.Message) == 0 {
		s.writeError(w, r, http.StatusBadRequest, errMissingMessage)
		return
	}
	var message string
	if err := json.Unmarshal(req.Message, &message); err != nil {
		s.writeError(w, r, http.StatusBadRequest, errInvalidMessage)
		return
	}
	if strings.TrimSpace(message) == "" {
		s.writeError(w, r, http.StatusBadRequest, errMissingMessage)
		return
	}
	if utf8.RuneCountInString(message) > maxMessageChars {
		s.writeError(w, r, http.StatusBadRequest, errInvalidMessage)
		return
	}

	timeout := coerceTimeout(req.TimeoutSeconds)
	caller := sanitizeCaller(req.Caller)

	conversationID := strings.TrimSpace(req.ConversationID)
	if conversationID == "" {
		conversationID = s.newConversationID()
	}

	log := logger.WithComponent(ctx, "server").
		WithField("conversation_id", conversationID).
		WithField("token_id", token.ID)

	contactID := ""
	contactName := caller.Name
	if contact, err := s.credentials.EnsureInboundContact(caller, token.ID); err != nil {
		log.WithError(err).Warn("failed to record inbound contact")
	} else {
		contactID = contact.ID
		contactName = contact.Name
	}

	conversationID, resumed, err := s.conversations.StartConversation(ctx, conversations.StartRequest{
		ID:          conversationID,
		ContactID:   contactID,
		ContactName: contactName,
		TokenID:     token.ID,
		Direction:   a2a.DirectionInbound,
	})
	if err != nil {
		log.WithError(err).
			WithField("error_code", "conversation_start_failed").
			Error("failed to start conversation")
		s.writeError(w, r, http.StatusInternalServerError, errInternal)
		return
	}
	log = log.WithField("conversation_id", conversationID)
	log.WithField("event", "call_received").
		WithField("resumed", resumed).
		Info("inbound call")

	if _, err := s.conversations.AddMessage(ctx, conversationID, a2a.Message{
		Direction: a2a.DirectionInbound,
		Role:      "user",
		Content:   message,
	}); err != nil {
		log.WithError(err).
			WithField("error_code", "message_append_failed").
			Error("failed to append inbound message")
		s.writeError(w, r, http.StatusInternalServerError, errInternal)
		return
	}

	if s.watchdog != nil {
		s.watchdog.Track(conversationID, caller)
	}

	reply, err := s.produceReply(ctx, conversationID, message, caller, req.Context, timeout)
	if err != nil {
		log.WithError(err).
			WithField("error_code", "producer_failed").
			WithField("hint", "the reply producer errored or timed out; the conversation stays active").
			Error("failed to produce reply")
		s.writeError(w, r, http.StatusInternalServerError, errInternal)
		return
	}

	cleaned, _, _ := collab.ExtractStateBlock(reply)
	if _, err := s.conversations.AddMessage(ctx, conversationID, a2a.Message{
		Direction: a2a.DirectionOutbound,
		Role:      "assistant",
		Content:   cleaned,
	}); err != nil {
		log.WithError(err).
			WithField("error_code", "message_append_failed").
			Error("failed to append outbound message")
		s.writeError(w, r, http.StatusInternalServerError, errInternal)
		return
	}

	if s.engine != nil {
		keywords := collab.BuildKeywords(token.Topics.LeadWith, token.Topics.DiscussFreely)
		if _, _, err := s.engine.ProcessTurn(ctx, conversationID, message, reply, keywords); err != nil {
			// The turn already happened; a state persistence failure
			// must not fail the call.
			log.WithError(err).Warn("failed to persist collaboration state")
		}
	}

	if s.watchdog != nil {
		s.watchdog.Track(conversationID, caller)
	}

	if token.Notify {
		preview := message
		if utf8.RuneCountInString(preview) > 200 {
			preview = string([]rune(preview)[:200])
		}
		s.dispatcher.Dispatch(ctx, a2a.NotificationEvent{
			Type:           "incoming_message",
			ConversationID: conversationID,
			Caller:         caller,
			Message:        preview,
		})
	}

	remaining := validation.CallsRemaining
	s.writeJSON(w, r, http.StatusOK, invokeResponse{
		Success:         true,
		ConversationID:  conversationID,
		Response:        cleaned,
		CanContinue:     remaining == nil || *remaining > 0,
		TokensRemaining: remaining,
	})
}

// produceReply invokes the reply producer under its own deadline and a
// trace span.
func (s *Server) produceReply(ctx context.Context, conversationID, message string, caller a2a.Caller, callContext any, timeout time.Duration) (string, error) {
	if s.producer == nil {
		return "", errors.New("no reply producer configured")
	}
	produceCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reply string
	err := telemetry.WithSpan(produceCtx, "a2a.produce_reply", func(ctx context.Context) error {
		var perr error
		reply, perr = s.producer.Produce(ctx, conversationID, message, caller, callContext)
		return perr
	}, attribute.String("conversation_id", conversationID))
	return reply, err
}

type endRequest struct {
	ConversationID string `json:"conversation_id"`
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	validation, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var req endRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, errMissingConversationID)
		return
	}
	conversationID := strings.TrimSpace(req.ConversationID)
	if conversationID == "" {
		s.writeError(w, r, http.StatusBadRequest, errMissingConversationID)
		return
	}

	log := logger.WithComponent(ctx, "server").
		WithField("conversation_id", conversationID).
		WithField("token_id", validation.Token.ID)

	conclusion, err := s.conversations.ConcludeConversation(ctx, conversationID, conversations.ConcludeOptions{
		Summarizer:   s.summarizer,
		OwnerContext: s.config.OwnerContext,
	})
	if err != nil {
		log.WithError(err).
			WithField("error_code", "conclude_failed").
			Error("failed to conclude conversation")
		s.writeError(w, r, http.StatusInternalServerError, errInternal)
		return
	}
	if s.watchdog != nil {
		s.watchdog.Forget(conversationID)
	}
	log.WithField("event", "call_ended").Info("conversation concluded by peer")

	summary := ""
	if conclusion != nil {
		summary = conclusion.Summary
	}
	if validation.Token.Notify {
		s.dispatcher.Dispatch(ctx, a2a.NotificationEvent{
			Type:           "conversation_concluded",
			ConversationID: conversationID,
			Summary:        summary,
			Reason:         "peer_end",
		})
	}

	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"success":         true,
		"conversation_id": conversationID,
		"status":          "concluded",
		"summary":         summary,
	})
}
