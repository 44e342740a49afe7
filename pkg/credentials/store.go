// Package credentials implements the per-owner credential store: token
// issuance and validation, the contact directory, and tier defaults.
// The store is one JSON file, atomically replaced on every mutation.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/openclaw/a2a/pkg/crypto"
	"github.com/openclaw/a2a/pkg/logger"
	"github.com/openclaw/a2a/pkg/types/a2a"
)

// Validation failure reasons. These are only ever observable through
// logs; the HTTP layer collapses all of them to a generic unauthorized.
const (
	ReasonTokenNotFound    = "token_not_found"
	ReasonTokenRevoked     = "token_revoked"
	ReasonTokenExpired     = "token_expired"
	ReasonMaxCallsExceeded = "max_calls_exceeded"
	ReasonInvalidTokenTier = "invalid_token_tier"
)

// Token is an issued credential. Only the SHA-256 hash of the plaintext
// is persisted; the plaintext exists only in the CreateToken response.
type Token struct {
	ID           string         `json:"id"`
	TokenHash    string         `json:"token_hash"`
	Name         string         `json:"name"`
	Owner        string         `json:"owner,omitempty"`
	Tier         a2a.Tier       `json:"tier"`
	Capabilities []string       `json:"capabilities,omitempty"`
	Topics       TierTopics     `json:"allowed_topics"`
	Goals        []string       `json:"allowed_goals,omitempty"`
	TierSettings map[string]any `json:"tier_settings,omitempty"`
	Disclosure   a2a.Disclosure `json:"disclosure"`
	Notify       bool           `json:"notify"`
	MaxCalls     int            `json:"max_calls"`
	CallsMade    int            `json:"calls_made"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
	Revoked      bool           `json:"revoked"`
	RevokedAt    *time.Time     `json:"revoked_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	LastUsed     *time.Time     `json:"last_used,omitempty"`
}

// CallsRemaining returns the number of calls left, or nil when the
// token is uncapped.
func (t *Token) CallsRemaining() *int {
	if t.MaxCalls <= 0 {
		return nil
	}
	n := t.MaxCalls - t.CallsMade
	if n < 0 {
		n = 0
	}
	return &n
}

// CreateTokenRequest are the issuance inputs. Capabilities, Topics and
// Goals override the tier defaults when non-nil.
type CreateTokenRequest struct {
	Name         string
	Owner        string
	Expires      string
	Tier         string
	Disclosure   a2a.Disclosure
	Notify       bool
	MaxCalls     int
	Capabilities []string
	Topics       *TierTopics
	Goals        []string
	TierSettings map[string]any
}

// Validation is the structured result of validating a plaintext token.
type Validation struct {
	Valid          bool
	Reason         string
	Token          *Token
	CallsRemaining *int
}

type storeState struct {
	Tokens   map[string]*Token `json:"tokens"`
	Contacts []*Contact        `json:"contacts,omitempty"`
}

// Store is the credential store. All mutations hold the store mutex for
// the full load-transform-save cycle, which makes validation's counter
// increment atomic with respect to concurrent validations.
type Store struct {
	mu    sync.Mutex
	path  string
	key   []byte
	state storeState
	tiers *TierConfig
	now   func() time.Time
}

// NewStore opens (or creates) the credential store at path. A corrupt
// store file is renamed aside with a timestamp suffix and the store
// restarts empty.
func NewStore(ctx context.Context, path string, tiers *TierConfig) (*Store, error) {
	s := &Store{
		path:  path,
		key:   crypto.ObfuscationKey(path),
		state: storeState{Tokens: map[string]*Token{}},
		tiers: tiers,
		now:   time.Now,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read credential store")
	}

	if err := json.Unmarshal(data, &s.state); err != nil {
		backup := fmt.Sprintf("%s.corrupt.%d", path, time.Now().Unix())
		logger.WithComponent(ctx, "credentials").
			WithError(err).
			WithField("backup", backup).
			WithField("error_code", "credential_store_corrupt").
			WithField("hint", "the store file did not parse; it was moved aside and the store restarted empty").
			Error("credential store corrupt")
		if renameErr := os.Rename(path, backup); renameErr != nil {
			return nil, errors.Wrap(renameErr, "failed to move corrupt credential store aside")
		}
		s.state = storeState{Tokens: map[string]*Token{}}
	}
	if s.state.Tokens == nil {
		s.state.Tokens = map[string]*Token{}
	}
	return s, nil
}

// save persists the state via write-to-temp + rename. Callers hold the
// mutex.
func (s *Store) save() error {
	data, err := json.MarshalIndent(&s.state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal credential store")
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o600); err != nil {
		return errors.Wrap(err, "failed to write credential store")
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		return errors.Wrap(err, "failed to replace credential store")
	}
	return nil
}

// CreateToken issues a new token. The returned plaintext is shown once
// and never persisted.
func (s *Store) CreateToken(req CreateTokenRequest) (plaintext string, token *Token, err error) {
	tier, ok := NormalizeTier(req.Tier)
	if !ok {
		return "", nil, errors.Errorf("invalid token tier %q", req.Tier)
	}

	expiry, never, err := ParseExpiry(req.Expires)
	if err != nil {
		return "", nil, err
	}

	plaintext, err = crypto.GenerateToken()
	if err != nil {
		return "", nil, err
	}
	id, err := crypto.GenerateTokenID()
	if err != nil {
		return "", nil, err
	}

	defaults := s.tiers.Settings(tier)
	topics := defaults.Topics
	if req.Topics != nil {
		topics = *req.Topics
	}
	goals := defaults.Goals
	if req.Goals != nil {
		goals = req.Goals
	}
	capabilities := defaults.Capabilities
	if req.Capabilities != nil {
		capabilities = req.Capabilities
	}

	disclosure := req.Disclosure
	if disclosure == "" {
		disclosure = a2a.DisclosureMinimal
	}

	now := s.now()
	token = &Token{
		ID:           id,
		TokenHash:    crypto.HashToken(plaintext),
		Name:         req.Name,
		Owner:        req.Owner,
		Tier:         tier,
		Capabilities: capabilities,
		Topics:       topics,
		Goals:        goals,
		TierSettings: req.TierSettings,
		Disclosure:   disclosure,
		Notify:       req.Notify,
		MaxCalls:     req.MaxCalls,
		CreatedAt:    now,
	}
	if !never {
		t := now.Add(expiry)
		token.ExpiresAt = &t
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Tokens[token.TokenHash] = token
	if err := s.save(); err != nil {
		delete(s.state.Tokens, token.TokenHash)
		return "", nil, err
	}
	out := *token
	return plaintext, &out, nil
}

// ValidateToken validates a plaintext token. On success it atomically
// increments calls_made and stamps last_used before returning. The
// failure reason is for logging only and must never reach a caller.
func (s *Store) ValidateToken(plaintext string) (*Validation, error) {
	hash := crypto.HashToken(plaintext)

	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.state.Tokens[hash]
	if !ok {
		return &Validation{Reason: ReasonTokenNotFound}, nil
	}
	if token.Revoked {
		return &Validation{Reason: ReasonTokenRevoked}, nil
	}
	now := s.now()
	if token.ExpiresAt != nil && now.After(*token.ExpiresAt) {
		return &Validation{Reason: ReasonTokenExpired}, nil
	}
	if _, ok := NormalizeTier(string(token.Tier)); !ok {
		return &Validation{Reason: ReasonInvalidTokenTier}, nil
	}
	if token.MaxCalls > 0 && token.CallsMade >= token.MaxCalls {
		return &Validation{Reason: ReasonMaxCallsExceeded}, nil
	}

	token.CallsMade++
	token.LastUsed = &now
	if err := s.save(); err != nil {
		token.CallsMade--
		token.LastUsed = nil
		return nil, err
	}

	out := *token
	return &Validation{
		Valid:          true,
		Token:          &out,
		CallsRemaining: out.CallsRemaining(),
	}, nil
}

// GetToken returns a copy of the token with the given id.
func (s *Store) GetToken(id string) (*Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.state.Tokens {
		if t.ID == id {
			out := *t
			return &out, true
		}
	}
	return nil, false
}

// FindByIDPrefix returns tokens whose id starts with prefix. This is a
// dashboard/CLI convenience; validation never matches by prefix.
func (s *Store) FindByIDPrefix(prefix string) []*Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Token
	for _, t := range s.state.Tokens {
		if len(prefix) > 0 && len(t.ID) >= len(prefix) && t.ID[:len(prefix)] == prefix {
			c := *t
			out = append(out, &c)
		}
	}
	return out
}

// ListTokens returns copies of all tokens.
func (s *Store) ListTokens() []*Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Token, 0, len(s.state.Tokens))
	for _, t := range s.state.Tokens {
		c := *t
		out = append(out, &c)
	}
	return out
}

// RevokeToken revokes the token with the given id. Revocation is
// monotonic; revoking an already-revoked token is a no-op.
func (s *Store) RevokeToken(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.state.Tokens {
		if t.ID != id {
			continue
		}
		if t.Revoked {
			return nil
		}
		now := s.now()
		t.Revoked = true
		t.RevokedAt = &now
		return s.save()
	}
	return errors.Errorf("token not found: %s", id)
}

// DeleteToken removes the token with the given id.
func (s *Store) DeleteToken(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, t := range s.state.Tokens {
		if t.ID == id {
			delete(s.state.Tokens, hash)
			return s.save()
		}
	}
	return errors.Errorf("token not found: %s", id)
}

// Tiers exposes the tier configuration backing this store.
func (s *Store) Tiers() *TierConfig {
	return s.tiers
}
