// Package a2a defines the shared domain types for the agent-to-agent
// calling runtime: tokens, contacts, conversations, messages,
// collaboration state, and the interfaces of the external collaborators
// (reply producer, summarizer, owner notifier).
package a2a

import (
	"context"
	"time"
)

// Tier is the coarse access class assigned to an issued token. It
// determines the default capabilities, topics, and goals snapshotted at
// token creation.
type Tier string

const (
	TierPublic  Tier = "public"
	TierFriends Tier = "friends"
	TierFamily  Tier = "family"
	TierCustom  Tier = "custom"
)

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierPublic, TierFriends, TierFamily, TierCustom:
		return true
	}
	return false
}

// Disclosure controls how much owner context the agent may reveal to a
// peer holding the token.
type Disclosure string

const (
	DisclosureNone    Disclosure = "none"
	DisclosureMinimal Disclosure = "minimal"
	DisclosurePublic  Disclosure = "public"
)

// Direction marks which side of the call a conversation or message
// belongs to.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	StatusActive    ConversationStatus = "active"
	StatusConcluded ConversationStatus = "concluded"
	StatusTimeout   ConversationStatus = "timeout"
)

// Phase is the collaboration phase of a conversation.
type Phase string

const (
	PhaseHandshake  Phase = "handshake"
	PhaseExplore    Phase = "explore"
	PhaseDeepDive   Phase = "deep_dive"
	PhaseSynthesize Phase = "synthesize"
	PhaseClose      Phase = "close"
)

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseHandshake, PhaseExplore, PhaseDeepDive, PhaseSynthesize, PhaseClose:
		return true
	}
	return false
}

// Caller carries the sanitised identity a remote agent presented on an
// inbound call. Only these four fields ever survive sanitisation.
type Caller struct {
	Name     string `json:"name,omitempty"`
	Owner    string `json:"owner,omitempty"`
	Instance string `json:"instance,omitempty"`
	Context  string `json:"context,omitempty"`
}

// Message is a single turn half inside a conversation.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Direction      Direction      `json:"direction"`
	Role           string         `json:"role"`
	Content        string         `json:"content"`
	Timestamp      time.Time      `json:"timestamp"`
	Compressed     bool           `json:"compressed"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Conversation is the durable record of one call between two agents.
// Both peers of a call share the same conversation id.
type Conversation struct {
	ID            string             `json:"id"`
	ContactID     string             `json:"contact_id,omitempty"`
	ContactName   string             `json:"contact_name,omitempty"`
	TokenID       string             `json:"token_id,omitempty"`
	Direction     Direction          `json:"direction"`
	Status        ConversationStatus `json:"status"`
	StartedAt     time.Time          `json:"started_at"`
	LastMessageAt time.Time          `json:"last_message_at"`
	EndedAt       *time.Time         `json:"ended_at,omitempty"`
	MessageCount  int                `json:"message_count"`

	Conclusion *Conclusion `json:"conclusion,omitempty"`
}

// Conclusion is the structured summary written when a conversation is
// concluded. The neutral Summary may be shared with the peer; every
// Owner* field is private to this deployment's owner.
type Conclusion struct {
	Summary                  string         `json:"summary,omitempty"`
	OwnerSummary             string         `json:"owner_summary,omitempty"`
	OwnerRelevance           string         `json:"owner_relevance,omitempty"`
	OwnerGoalsTouched        []string       `json:"owner_goals_touched,omitempty"`
	OwnerActionItems         []string       `json:"owner_action_items,omitempty"`
	CallerActionItems        []string       `json:"caller_action_items,omitempty"`
	JointActionItems         []string       `json:"joint_action_items,omitempty"`
	CollaborationOpportunity map[string]any `json:"collaboration_opportunity,omitempty"`
	OwnerFollowUp            string         `json:"owner_follow_up,omitempty"`
	OwnerNotes               string         `json:"owner_notes,omitempty"`
}

// CollabState is the adaptive per-conversation collaboration tracker,
// updated once per turn by the state engine.
type CollabState struct {
	Phase                   Phase     `json:"phase"`
	TurnCount               int       `json:"turn_count"`
	OverlapScore            float64   `json:"overlap_score"`
	ActiveThreads           []string  `json:"active_threads,omitempty"`
	CandidateCollaborations []string  `json:"candidate_collaborations,omitempty"`
	OpenQuestions           []string  `json:"open_questions,omitempty"`
	CloseSignal             bool      `json:"close_signal"`
	Confidence              float64   `json:"confidence"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// NewCollabState returns the state of a conversation before its first
// turn.
func NewCollabState(now time.Time) CollabState {
	return CollabState{
		Phase:      PhaseHandshake,
		Confidence: 0.5,
		UpdatedAt:  now,
	}
}

// ConversationContext is the dashboard-facing view of a conversation:
// identity, conclusion, and the most recent messages.
type ConversationContext struct {
	ID             string             `json:"id"`
	ContactID      string             `json:"contact_id,omitempty"`
	ContactName    string             `json:"contact_name,omitempty"`
	Status         ConversationStatus `json:"status"`
	Summary        string             `json:"summary,omitempty"`
	OwnerContext   string             `json:"owner_context,omitempty"`
	RecentMessages []Message          `json:"recent_messages"`
	MessageCount   int                `json:"message_count"`
	StartedAt      time.Time          `json:"started_at"`
	EndedAt        *time.Time         `json:"ended_at,omitempty"`
}

// NotificationEvent is delivered to the owner notifier when something
// the owner cares about happened. Dispatch is fire-and-forget.
type NotificationEvent struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Caller         Caller    `json:"caller,omitempty"`
	Message        string    `json:"message,omitempty"`
	Summary        string    `json:"summary,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// ReplyProducer is the external collaborator that turns an inbound
// message into the outbound reply text. The returned text may end with
// a <collab_state>{...}</collab_state> trailer which the state engine
// strips before the reply is sent.
type ReplyProducer interface {
	Produce(ctx context.Context, sessionID, message string, caller Caller, callContext any) (string, error)
}

// ReplyProducerFunc adapts a function to the ReplyProducer interface.
type ReplyProducerFunc func(ctx context.Context, sessionID, message string, caller Caller, callContext any) (string, error)

func (f ReplyProducerFunc) Produce(ctx context.Context, sessionID, message string, caller Caller, callContext any) (string, error) {
	return f(ctx, sessionID, message, caller, callContext)
}

// Summarizer is the external collaborator invoked when a conversation
// concludes. Every field of the returned conclusion is optional.
type Summarizer interface {
	Summarize(ctx context.Context, messages []Message, ownerContext string) (*Conclusion, error)
}

// SummarizerFunc adapts a function to the Summarizer interface.
type SummarizerFunc func(ctx context.Context, messages []Message, ownerContext string) (*Conclusion, error)

func (f SummarizerFunc) Summarize(ctx context.Context, messages []Message, ownerContext string) (*Conclusion, error) {
	return f(ctx, messages, ownerContext)
}

// OwnerNotifier delivers notification events to the owner. Failures are
// logged by the dispatcher and never surfaced to the remote caller.
type OwnerNotifier interface {
	Notify(ctx context.Context, event NotificationEvent) error
}

// OwnerNotifierFunc adapts a function to the OwnerNotifier interface.
type OwnerNotifierFunc func(ctx context.Context, event NotificationEvent) error

func (f OwnerNotifierFunc) Notify(ctx context.Context, event NotificationEvent) error {
	return f(ctx, event)
}
