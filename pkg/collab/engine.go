// Package collab maintains the per-conversation collaboration state:
// phase, overlap score, threads, and close signal. Each turn is applied
// either from a structured <collab_state> trailer in the reply or from
// a deterministic heuristic over the exchanged text. Persistent state
// lives in the conversation store; the in-memory map is a bounded hot
// cache.
package collab

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/openclaw/a2a/pkg/logger"
	"github.com/openclaw/a2a/pkg/types/a2a"
)

// ModeAdaptive lets the phase ladder run; ModeDeepDive pins the phase
// at deep_dive once the conversation is past its first turn.
const (
	ModeAdaptive = "adaptive"
	ModeDeepDive = "deep_dive"
)

// StateStore is the persistence the engine writes through. The
// conversation store implements it.
type StateStore interface {
	SaveCollabState(ctx context.Context, conversationID string, state a2a.CollabState) error
	LoadCollabState(ctx context.Context, conversationID string) (*a2a.CollabState, error)
}

// Options bound the engine's cache and select its mode.
type Options struct {
	Mode        string
	MaxSessions int
	TTL         time.Duration
}

// Engine applies one state update per conversation turn.
type Engine struct {
	mu       sync.Mutex
	store    StateStore
	sessions map[string]*a2a.CollabState
	mode     string
	max      int
	ttl      time.Duration
	now      func() time.Time
}

// New creates an Engine. Zero options fall back to adaptive mode, 500
// cached sessions, and a 6 hour TTL.
func New(store StateStore, opts Options) *Engine {
	if opts.Mode == "" {
		opts.Mode = ModeAdaptive
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 500
	}
	if opts.TTL <= 0 {
		opts.TTL = 6 * time.Hour
	}
	return &Engine{
		store:    store,
		sessions: make(map[string]*a2a.CollabState),
		mode:     opts.Mode,
		max:      opts.MaxSessions,
		ttl:      opts.TTL,
		now:      time.Now,
	}
}

// ProcessTurn applies one turn to the conversation's state and returns
// the updated state plus the reply text with any collab_state trailer
// stripped. keywords is the caller tier's topic vocabulary for the
// heuristic path.
func (e *Engine) ProcessTurn(ctx context.Context, conversationID, inbound, outbound string, keywords []string) (a2a.CollabState, string, error) {
	cleaned, rawJSON, found := ExtractStateBlock(outbound)
	now := e.now()

	e.mu.Lock()
	state := e.lookupLocked(ctx, conversationID, now)

	structured := false
	if found {
		var raw map[string]any
		if err := json.Unmarshal([]byte(rawJSON), &raw); err == nil {
			phasePatched := applyPatch(state, raw, now)
			if !phasePatched {
				state.Phase = inferPhase(state)
			}
			structured = true
		} else {
			logger.WithComponent(ctx, "collab").
				WithError(err).
				WithField("conversation_id", conversationID).
				Debug("collab_state block did not parse, falling back to heuristic")
		}
	}
	if !structured {
		heuristicUpdate(state, inbound, cleaned, keywords, now)
	}

	if e.mode == ModeDeepDive && state.Phase != a2a.PhaseHandshake && state.Phase != a2a.PhaseClose {
		state.Phase = a2a.PhaseDeepDive
	}

	out := *state
	e.evictLocked(now)
	e.mu.Unlock()

	if err := e.store.SaveCollabState(ctx, conversationID, out); err != nil {
		return out, cleaned, err
	}
	return out, cleaned, nil
}

// State returns the current state for a conversation, loading it from
// the store on a cache miss.
func (e *Engine) State(ctx context.Context, conversationID string) a2a.CollabState {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	state := e.lookupLocked(ctx, conversationID, now)
	return *state
}

// lookupLocked returns the cached state, falling back to the store and
// then to a fresh handshake state. Callers hold the mutex.
func (e *Engine) lookupLocked(ctx context.Context, conversationID string, now time.Time) *a2a.CollabState {
	if state, ok := e.sessions[conversationID]; ok {
		return state
	}
	if persisted, err := e.store.LoadCollabState(ctx, conversationID); err == nil && persisted != nil {
		e.sessions[conversationID] = persisted
		return persisted
	}
	fresh := a2a.NewCollabState(now)
	e.sessions[conversationID] = &fresh
	return &fresh
}

// evictLocked prunes entries past TTL and, if the map is still over
// capacity, drops the oldest by UpdatedAt. Callers hold the mutex.
func (e *Engine) evictLocked(now time.Time) {
	for id, state := range e.sessions {
		if now.Sub(state.UpdatedAt) > e.ttl {
			delete(e.sessions, id)
		}
	}
	for len(e.sessions) > e.max {
		oldestID := ""
		var oldest time.Time
		for id, state := range e.sessions {
			if oldestID == "" || state.UpdatedAt.Before(oldest) {
				oldestID = id
				oldest = state.UpdatedAt
			}
		}
		delete(e.sessions, oldestID)
	}
}

// CachedSessions reports the current cache size.
func (e *Engine) CachedSessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}
