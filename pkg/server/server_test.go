package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/a2a/pkg/collab"
	"github.com/openclaw/a2a/pkg/conversations"
	"github.com/openclaw/a2a/pkg/credentials"
	"github.com/openclaw/a2a/pkg/logstore"
	"github.com/openclaw/a2a/pkg/notify"
	"github.com/openclaw/a2a/pkg/ratelimit"
	"github.com/openclaw/a2a/pkg/types/a2a"
	"github.com/openclaw/a2a/pkg/watchdog"
)

// scriptedProducer returns a fixed reply and records what it was asked.
type scriptedProducer struct {
	mu          sync.Mutex
	reply       string
	err         error
	calls       int
	lastSession string
	lastMessage string
	lastCaller  a2a.Caller
}

func (p *scriptedProducer) Produce(ctx context.Context, sessionID, message string, caller a2a.Caller, callContext any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.lastSession = sessionID
	p.lastMessage = message
	p.lastCaller = caller
	return p.reply, p.err
}

// collectingNotifier records dispatched owner notifications.
type collectingNotifier struct {
	mu     sync.Mutex
	events []a2a.NotificationEvent
}

func (c *collectingNotifier) Notify(ctx context.Context, event a2a.NotificationEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *collectingNotifier) wait(t *testing.T, n int) []a2a.NotificationEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		c.mu.Lock()
		events := append([]a2a.NotificationEvent{}, c.events...)
		c.mu.Unlock()
		if len(events) >= n {
			return events
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d notification(s), got %d", n, len(events))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

type fixture struct {
	server      *Server
	credentials *credentials.Store
	convs       *conversations.Store
	producer    *scriptedProducer
}

// newFixture wires a server over real stores in a temp dir. mutate may
// adjust config and deps before the server is built.
func newFixture(t *testing.T, mutate func(*Config, *Deps)) *fixture {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()

	tiers, err := credentials.LoadTierConfig(filepath.Join(dir, "a2a-config.json"))
	require.NoError(t, err)
	creds, err := credentials.NewStore(ctx, filepath.Join(dir, "a2a.json"), tiers)
	require.NoError(t, err)
	convs, err := conversations.NewStore(ctx, filepath.Join(dir, "conversations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { convs.Close() })
	logs, err := logstore.New(ctx, convs.DB())
	require.NoError(t, err)

	producer := &scriptedProducer{reply: "hello from the other side"}
	cfg := Config{}
	deps := Deps{
		Credentials:   creds,
		Conversations: convs,
		Logs:          logs,
		Limiter:       ratelimit.New(ratelimit.DefaultLimits()),
		Collab:        collab.New(convs, collab.Options{}),
		Watchdog:      watchdog.New(convs, notify.NewDispatcher(nil), watchdog.Options{}),
		Producer:      producer,
	}
	if mutate != nil {
		mutate(&cfg, &deps)
	}

	srv, err := New(cfg, deps)
	require.NoError(t, err)
	return &fixture{server: srv, credentials: creds, convs: convs, producer: producer}
}

func (f *fixture) token(t *testing.T, req credentials.CreateTokenRequest) string {
	t.Helper()
	if req.Name == "" {
		req.Name = "peer"
	}
	if req.Tier == "" {
		req.Tier = "friends"
	}
	plaintext, _, err := f.credentials.CreateToken(req)
	require.NoError(t, err)
	return plaintext
}

// do runs a request through the router from a non-loopback address.
func (f *fixture) do(method, path, bearer string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestPing(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do("GET", "/api/a2a/ping", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["pong"])
	assert.Equal(t, "openclaw-a2a", body["service"])
	assert.NotEmpty(t, rec.Header().Get("x-trace-id"))
}

func TestStatus(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do("GET", "/api/a2a/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["a2a"])
	assert.ElementsMatch(t, []any{"invoke", "multi-turn", "collab_state"}, body["capabilities"])
	limits := body["rate_limits"].(map[string]any)
	assert.Equal(t, float64(10), limits["per_minute"])
	assert.Equal(t, float64(100), limits["per_hour"])
	assert.Equal(t, float64(1000), limits["per_day"])
}

func TestTraceIDEcho(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest("GET", "/api/a2a/ping", nil)
	req.Header.Set("x-trace-id", "  trace-abc  ")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "trace-abc", rec.Header().Get("x-trace-id"))

	// Oversized trace ids are replaced, not echoed.
	req = httptest.NewRequest("GET", "/api/a2a/ping", nil)
	long := strings.Repeat("x", 200)
	req.Header.Set("x-trace-id", long)
	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	minted := rec.Header().Get("x-trace-id")
	assert.NotEqual(t, long, minted)
	assert.NotEmpty(t, minted)
}

func TestInvokeRequiresToken(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do("POST", "/api/a2a/invoke", "", map[string]any{"message": "hi"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, errMissingToken, decodeBody(t, rec)["error"])
}

func TestInvokeRejectsUnknownTokenGenerically(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do("POST", "/api/a2a/invoke", "fed_bogus", map[string]any{"message": "hi"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, errUnauthorized, decodeBody(t, rec)["error"])
}

func TestErrorResponsesCarryMessage(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do("POST", "/api/a2a/invoke", "fed_bogus", map[string]any{"message": "hi"})
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, errUnauthorized, body["error"])
	// The text stays generic; never the concrete rejection reason.
	assert.Equal(t, "Invalid or expired token", body["message"])

	rec = f.do("POST", "/api/a2a/invoke", "", map[string]any{"message": "hi"})
	body = decodeBody(t, rec)
	assert.Equal(t, errMissingToken, body["error"])
	assert.NotEmpty(t, body["message"])
}

func TestInvokeHappyPath(t *testing.T) {
	f := newFixture(t, nil)
	f.producer.reply = `Glad you asked.<collab_state>{"phase": "explore", "overlapScore": 0.3}</collab_state>`
	token := f.token(t, credentials.CreateTokenRequest{Name: "alice", MaxCalls: 50})

	rec := f.do("POST", "/api/a2a/invoke", token, map[string]any{
		"message": "what are you working on?",
		"caller":  map[string]any{"name": "alice's agent", "owner": "alice"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Glad you asked.", body["response"], "the state trailer never reaches the peer")
	assert.Equal(t, true, body["can_continue"])
	assert.Equal(t, float64(49), body["tokens_remaining"])

	conversationID := body["conversation_id"].(string)
	assert.True(t, strings.HasPrefix(conversationID, "conv_"))
	assert.Equal(t, conversationID, f.producer.lastSession)
	assert.Equal(t, "alice's agent", f.producer.lastCaller.Name)

	// Both turn halves are persisted, outbound without the trailer.
	_, messages, err := f.convs.GetConversation(context.Background(), conversationID,
		conversations.GetOptions{IncludeMessages: true})
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, a2a.DirectionInbound, messages[0].Direction)
	assert.Equal(t, "what are you working on?", messages[0].Content)
	assert.Equal(t, a2a.DirectionOutbound, messages[1].Direction)
	assert.Equal(t, "Glad you asked.", messages[1].Content)

	// The collaboration state recorded the turn.
	state, err := f.convs.LoadCollabState(context.Background(), conversationID)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 1, state.TurnCount)
	assert.Equal(t, a2a.PhaseExplore, state.Phase)
}

func TestInvokeReusesConversationID(t *testing.T) {
	f := newFixture(t, nil)
	token := f.token(t, credentials.CreateTokenRequest{})

	rec := f.do("POST", "/api/a2a/invoke", token, map[string]any{
		"message":         "first",
		"conversation_id": "conv_shared_123",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "conv_shared_123", decodeBody(t, rec)["conversation_id"])

	rec = f.do("POST", "/api/a2a/invoke", token, map[string]any{
		"message":         "second",
		"conversation_id": "conv_shared_123",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	conv, _, err := f.convs.GetConversation(context.Background(), "conv_shared_123", conversations.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, conv.MessageCount)
}

func TestInvokeMessageValidation(t *testing.T) {
	f := newFixture(t, nil)
	token := f.token(t, credentials.CreateTokenRequest{})

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"absent message", map[string]any{}, http.StatusBadRequest, errMissingMessage},
		{"blank message", map[string]any{"message": "   "}, http.StatusBadRequest, errMissingMessage},
		{"non-string message", map[string]any{"message": 42}, http.StatusBadRequest, errInvalidMessage},
		{"object message", map[string]any{"message": map[string]any{"text": "hi"}}, http.StatusBadRequest, errInvalidMessage},
		{"oversized message", map[string]any{"message": strings.Repeat("a", maxMessageChars+1)}, http.StatusBadRequest, errInvalidMessage},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do("POST", "/api/a2a/invoke", token, tc.body)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decodeBody(t, rec)["error"])
		})
	}
}

func TestInvokeEmptyBody(t *testing.T) {
	f := newFixture(t, nil)
	token := f.token(t, credentials.CreateTokenRequest{})

	rec := f.do("POST", "/api/a2a/invoke", token, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errMissingMessage, decodeBody(t, rec)["error"])
}

func TestInvokeMalformedJSON(t *testing.T) {
	f := newFixture(t, nil)
	token := f.token(t, credentials.CreateTokenRequest{})

	req := httptest.NewRequest("POST", "/api/a2a/invoke", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errInvalidMessage, decodeBody(t, rec)["error"])
}

func TestInvokeRejectsNonJSONContentType(t *testing.T) {
	f := newFixture(t, nil)
	token := f.token(t, credentials.CreateTokenRequest{})

	req := httptest.NewRequest("POST", "/api/a2a/invoke", strings.NewReader("message=hi"))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errInvalidMessage, decodeBody(t, rec)["error"])
}

func TestInvokeBodyLimit(t *testing.T) {
	f := newFixture(t, nil)
	token := f.token(t, credentials.CreateTokenRequest{})

	oversized := fmt.Sprintf(`{"message": %q}`, strings.Repeat("a", maxBodyBytes+1))
	req := httptest.NewRequest("POST", "/api/a2a/invoke", strings.NewReader(oversized))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvokeRateLimited(t *testing.T) {
	f := newFixture(t, func(cfg *Config, deps *Deps) {
		deps.Limiter = ratelimit.New(ratelimit.Limits{PerMinute: 1, PerHour: 100, PerDay: 1000})
	})
	token := f.token(t, credentials.CreateTokenRequest{})

	rec := f.do("POST", "/api/a2a/invoke", token, map[string]any{"message": "one"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do("POST", "/api/a2a/invoke", token, map[string]any{"message": "two"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, errRateLimited, decodeBody(t, rec)["error"])
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestInvokeExhaustedTokenCannotContinue(t *testing.T) {
	f := newFixture(t, nil)
	token := f.token(t, credentials.CreateTokenRequest{MaxCalls: 1})

	rec := f.do("POST", "/api/a2a/invoke", token, map[string]any{"message": "only call"})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(0), body["tokens_remaining"])
	assert.Equal(t, false, body["can_continue"])

	rec = f.do("POST", "/api/a2a/invoke", token, map[string]any{"message": "again"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestInvokeProducerFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.producer.err = assert.AnError
	token := f.token(t, credentials.CreateTokenRequest{})

	rec := f.do("POST", "/api/a2a/invoke", token, map[string]any{
		"message":         "hi",
		"conversation_id": "conv_fail_1",
	})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, errInternal, decodeBody(t, rec)["error"])

	// The conversation stays active with the inbound half recorded.
	conv, _, err := f.convs.GetConversation(context.Background(), "conv_fail_1", conversations.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, a2a.StatusActive, conv.Status)
	assert.Equal(t, 1, conv.MessageCount)
}

func TestInvokeNotifiesOwner(t *testing.T) {
	notifier := &collectingNotifier{}
	f := newFixture(t, func(cfg *Config, deps *Deps) {
		deps.Dispatcher = notify.NewDispatcher(notifier)
	})
	token := f.token(t, credentials.CreateTokenRequest{Notify: true})

	long := strings.Repeat("m", 500)
	rec := f.do("POST", "/api/a2a/invoke", token, map[string]any{"message": long})
	require.Equal(t, http.StatusOK, rec.Code)

	events := notifier.wait(t, 1)
	assert.Equal(t, "incoming_message", events[0].Type)
	assert.Len(t, events[0].Message, 200, "the preview is truncated")
}

func TestEndFlow(t *testing.T) {
	f := newFixture(t, nil)
	token := f.token(t, credentials.CreateTokenRequest{})

	rec := f.do("POST", "/api/a2a/invoke", token, map[string]any{"message": "hello"})
	require.Equal(t, http.StatusOK, rec.Code)
	conversationID := decodeBody(t, rec)["conversation_id"].(string)

	rec = f.do("POST", "/api/a2a/end", token, map[string]any{"conversation_id": conversationID})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "concluded", body["status"])

	conv, _, err := f.convs.GetConversation(context.Background(), conversationID, conversations.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, a2a.StatusConcluded, conv.Status)
}

func TestEndRequiresConversationID(t *testing.T) {
	f := newFixture(t, nil)
	token := f.token(t, credentials.CreateTokenRequest{})

	rec := f.do("POST", "/api/a2a/end", token, map[string]any{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errMissingConversationID, decodeBody(t, rec)["error"])

	rec = f.do("POST", "/api/a2a/end", token, map[string]any{"conversation_id": "  "})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEndRequiresToken(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do("POST", "/api/a2a/end", "", map[string]any{"conversation_id": "conv_x"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, errMissingToken, decodeBody(t, rec)["error"])
}

func TestAdminEndpointsDenyRemoteCallers(t *testing.T) {
	f := newFixture(t, nil)

	// httptest requests come from 192.0.2.1, a non-loopback address.
	rec := f.do("GET", "/api/a2a/conversations", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, errUnauthorized, decodeBody(t, rec)["error"])
}

func TestAdminEndpointsAllowLoopback(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest("GET", "/api/a2a/conversations", nil)
	req.RemoteAddr = "127.0.0.1:54321"
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(0), body["count"])
}

func TestAdminTokenGrantsRemoteAccess(t *testing.T) {
	f := newFixture(t, func(cfg *Config, deps *Deps) {
		cfg.AdminToken = "sekrit"
	})

	req := httptest.NewRequest("GET", "/api/a2a/conversations", nil)
	req.Header.Set("x-admin-token", "sekrit")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest("GET", "/api/a2a/conversations", nil)
	req.Header.Set("x-admin-token", "wrong")
	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminGetConversation(t *testing.T) {
	f := newFixture(t, nil)
	token := f.token(t, credentials.CreateTokenRequest{})

	rec := f.do("POST", "/api/a2a/invoke", token, map[string]any{"message": "hello"})
	require.Equal(t, http.StatusOK, rec.Code)
	conversationID := decodeBody(t, rec)["conversation_id"].(string)

	req := httptest.NewRequest("GET", "/api/a2a/conversations/"+conversationID, nil)
	req.RemoteAddr = "127.0.0.1:54321"
	rec2 := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec2, req)
	require.Equal(t, http.StatusOK, rec2.Code)
	body := decodeBody(t, rec2)
	assert.Equal(t, conversationID, body["id"])
	assert.Equal(t, float64(2), body["message_count"])

	// Unknown ids are a 404, never an internal error.
	req = httptest.NewRequest("GET", "/api/a2a/conversations/conv_missing", nil)
	req.RemoteAddr = "127.0.0.1:54321"
	rec3 := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec3, req)
	require.Equal(t, http.StatusNotFound, rec3.Code)
	assert.Equal(t, errNotFound, decodeBody(t, rec3)["error"])
}

func TestAdminLogQueries(t *testing.T) {
	f := newFixture(t, nil)
	token := f.token(t, credentials.CreateTokenRequest{})

	rec := f.do("POST", "/api/a2a/invoke", token, map[string]any{"message": "hello"})
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest("GET", "/api/a2a/logs", nil)
	req.RemoteAddr = "127.0.0.1:54321"
	rec2 := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec2, req)
	require.Equal(t, http.StatusOK, rec2.Code)

	req = httptest.NewRequest("GET", "/api/a2a/logs/stats", nil)
	req.RemoteAddr = "127.0.0.1:54321"
	rec3 := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec3, req)
	require.Equal(t, http.StatusOK, rec3.Code)
}

func TestNewRequiresCoreDependencies(t *testing.T) {
	f := newFixture(t, nil)

	_, err := New(Config{}, Deps{Conversations: f.convs, Limiter: ratelimit.New(ratelimit.DefaultLimits())})
	assert.Error(t, err)

	_, err = New(Config{}, Deps{Credentials: f.credentials, Limiter: ratelimit.New(ratelimit.DefaultLimits())})
	assert.Error(t, err)

	_, err = New(Config{}, Deps{Credentials: f.credentials, Conversations: f.convs})
	assert.Error(t, err)
}

func TestSanitizeCaller(t *testing.T) {
	caller := sanitizeCaller(map[string]any{
		"name":      "  Agent Smith  ",
		"owner":     strings.Repeat("o", 150),
		"instance":  "node-1",
		"context":   "chatting",
		"privilege": "root",
		"extra":     42,
	})
	assert.Equal(t, "Agent Smith", caller.Name)
	assert.Len(t, caller.Owner, maxCallerOwnerLength)
	assert.Equal(t, "node-1", caller.Instance)
	assert.Equal(t, "chatting", caller.Context)
}

func TestSanitizeCallerTruncatesByRune(t *testing.T) {
	caller := sanitizeCaller(map[string]any{
		"name": strings.Repeat("é", maxCallerNameLength+7),
	})
	assert.True(t, utf8.ValidString(caller.Name))
	assert.Equal(t, maxCallerNameLength, utf8.RuneCountInString(caller.Name))
}

func TestCoerceTimeout(t *testing.T) {
	assert.Equal(t, 60*time.Second, coerceTimeout(nil))
	assert.Equal(t, 30*time.Second, coerceTimeout(float64(30)))
	assert.Equal(t, 30*time.Second, coerceTimeout(" 30 "))
	assert.Equal(t, 5*time.Second, coerceTimeout(float64(1)))
	assert.Equal(t, 300*time.Second, coerceTimeout(float64(900)))
	assert.Equal(t, 60*time.Second, coerceTimeout("soon"))
	assert.Equal(t, 60*time.Second, coerceTimeout(true))
}

func TestNewConversationIDShape(t *testing.T) {
	f := newFixture(t, nil)
	id := f.server.newConversationID()
	parts := strings.Split(id, "_")
	require.Len(t, parts, 3)
	assert.Equal(t, "conv", parts[0])
	assert.Len(t, parts[2], 6)
}
