package conversations

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/openclaw/a2a/pkg/types/a2a"
)

// JSONField stores any JSON-serialisable value in a TEXT column.
type JSONField[T any] struct {
	Data T
}

// Scan implements the sql.Scanner interface for reading from database
func (j *JSONField[T]) Scan(value any) error {
	if value == nil {
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.Errorf("cannot scan %T into JSONField", value)
		}
		bytes = []byte(str)
	}
	if len(bytes) == 0 {
		return nil
	}

	return json.Unmarshal(bytes, &j.Data)
}

// Value implements the driver.Valuer interface for writing to database
func (j JSONField[T]) Value() (driver.Value, error) {
	return json.Marshal(j.Data)
}

// dbConversation mirrors the conversations table.
type dbConversation struct {
	ID            string     `db:"id"`
	ContactID     *string    `db:"contact_id"`
	ContactName   *string    `db:"contact_name"`
	TokenID       *string    `db:"token_id"`
	Direction     string     `db:"direction"`
	Status        string     `db:"status"`
	StartedAt     time.Time  `db:"started_at"`
	LastMessageAt time.Time  `db:"last_message_at"`
	EndedAt       *time.Time `db:"ended_at"`
	MessageCount  int        `db:"message_count"`

	CollabPhase         *string               `db:"collab_phase"`
	CollabTurnCount     int                   `db:"collab_turn_count"`
	CollabOverlapScore  float64               `db:"collab_overlap_score"`
	CollabActiveThreads JSONField[[]string]   `db:"collab_active_threads"`
	CollabCandidates    JSONField[[]string]   `db:"collab_candidates"`
	CollabOpenQuestions JSONField[[]string]   `db:"collab_open_questions"`
	CollabCloseSignal   bool                  `db:"collab_close_signal"`
	CollabConfidence    float64               `db:"collab_confidence"`
	CollabUpdatedAt     *time.Time            `db:"collab_updated_at"`

	Summary                  *string                    `db:"summary"`
	OwnerSummary             *string                    `db:"owner_summary"`
	OwnerRelevance           *string                    `db:"owner_relevance"`
	OwnerGoalsTouched        JSONField[[]string]        `db:"owner_goals_touched"`
	OwnerActionItems         JSONField[[]string]        `db:"owner_action_items"`
	CallerActionItems        JSONField[[]string]        `db:"caller_action_items"`
	JointActionItems         JSONField[[]string]        `db:"joint_action_items"`
	CollaborationOpportunity JSONField[map[string]any]  `db:"collaboration_opportunity"`
	OwnerFollowUp            *string                    `db:"owner_follow_up"`
	OwnerNotes               *string                    `db:"owner_notes"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (c *dbConversation) toConversation() a2a.Conversation {
	conv := a2a.Conversation{
		ID:            c.ID,
		ContactID:     deref(c.ContactID),
		ContactName:   deref(c.ContactName),
		TokenID:       deref(c.TokenID),
		Direction:     a2a.Direction(c.Direction),
		Status:        a2a.ConversationStatus(c.Status),
		StartedAt:     c.StartedAt,
		LastMessageAt: c.LastMessageAt,
		EndedAt:       c.EndedAt,
		MessageCount:  c.MessageCount,
	}
	if c.Summary != nil || c.OwnerSummary != nil {
		conv.Conclusion = &a2a.Conclusion{
			Summary:                  deref(c.Summary),
			OwnerSummary:             deref(c.OwnerSummary),
			OwnerRelevance:           deref(c.OwnerRelevance),
			OwnerGoalsTouched:        c.OwnerGoalsTouched.Data,
			OwnerActionItems:         c.OwnerActionItems.Data,
			CallerActionItems:        c.CallerActionItems.Data,
			JointActionItems:         c.JointActionItems.Data,
			CollaborationOpportunity: c.CollaborationOpportunity.Data,
			OwnerFollowUp:            deref(c.OwnerFollowUp),
			OwnerNotes:               deref(c.OwnerNotes),
		}
	}
	return conv
}

func (c *dbConversation) toCollabState() *a2a.CollabState {
	if c.CollabPhase == nil || c.CollabUpdatedAt == nil {
		return nil
	}
	return &a2a.CollabState{
		Phase:                   a2a.Phase(*c.CollabPhase),
		TurnCount:               c.CollabTurnCount,
		OverlapScore:            c.CollabOverlapScore,
		ActiveThreads:           c.CollabActiveThreads.Data,
		CandidateCollaborations: c.CollabCandidates.Data,
		OpenQuestions:           c.CollabOpenQuestions.Data,
		CloseSignal:             c.CollabCloseSignal,
		Confidence:              c.CollabConfidence,
		UpdatedAt:               *c.CollabUpdatedAt,
	}
}

// dbMessage mirrors the messages table.
type dbMessage struct {
	ID             string                    `db:"id"`
	ConversationID string                    `db:"conversation_id"`
	Direction      string                    `db:"direction"`
	Role           string                    `db:"role"`
	Content        string                    `db:"content"`
	Timestamp      time.Time                 `db:"timestamp"`
	Compressed     bool                      `db:"compressed"`
	Metadata       JSONField[map[string]any] `db:"metadata"`
}

// toMessage converts to the domain model, transparently decompressing
// compressed content.
func (m *dbMessage) toMessage() (a2a.Message, error) {
	content := m.Content
	if m.Compressed {
		decompressed, err := decompressContent(content)
		if err != nil {
			return a2a.Message{}, errors.Wrapf(err, "failed to decompress message %s", m.ID)
		}
		content = decompressed
	}
	return a2a.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Direction:      a2a.Direction(m.Direction),
		Role:           m.Role,
		Content:        content,
		Timestamp:      m.Timestamp,
		Compressed:     m.Compressed,
		Metadata:       m.Metadata.Data,
	}, nil
}
