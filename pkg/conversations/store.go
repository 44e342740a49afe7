// Package conversations implements the durable conversation store:
// conversations, their messages, structured conclusions, and the
// persisted collaboration state, all in one SQLite database.
package conversations

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/openclaw/a2a/pkg/db"
	"github.com/openclaw/a2a/pkg/logger"
	"github.com/openclaw/a2a/pkg/types/a2a"
)

// Store is the SQLite-backed conversation store. All writes are
// serialised behind the single connection configured by pkg/db.
type Store struct {
	dbPath string
	db     *sqlx.DB
	now    func() time.Time
}

// NewStore opens the conversation store at dbPath. If the existing
// schema predates the current probe columns, the database file is
// renamed to a timestamped backup and recreated empty; there is no
// in-place column migration.
func NewStore(ctx context.Context, dbPath string) (*Store, error) {
	conn, err := db.Open(ctx, dbPath)
	if err != nil {
		return nil, err
	}

	obsolete, err := schemaObsolete(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if obsolete {
		conn.Close()
		backup := fmt.Sprintf("%s.backup.%d", dbPath, time.Now().Unix())
		logger.WithComponent(ctx, "conversations").
			WithField("backup", backup).
			WithField("error_code", "schema_obsolete").
			WithField("hint", "the conversation database predates the current schema; it was backed up and recreated").
			Error("conversation store schema obsolete")
		if err := os.Rename(dbPath, backup); err != nil {
			return nil, errors.Wrap(err, "failed to back up obsolete conversation database")
		}
		conn, err = db.Open(ctx, dbPath)
		if err != nil {
			return nil, err
		}
	}

	for _, ddl := range schemaDDL {
		if _, err := conn.ExecContext(ctx, ddl); err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "failed to initialize conversation schema")
		}
	}

	return &Store{dbPath: dbPath, db: conn, now: time.Now}, nil
}

// schemaObsolete reports whether an existing conversations table is
// missing any of the probe columns.
func schemaObsolete(ctx context.Context, conn *sqlx.DB) (bool, error) {
	var tables int
	err := conn.GetContext(ctx, &tables,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='conversations'")
	if err != nil {
		return false, errors.Wrap(err, "failed to inspect schema")
	}
	if tables == 0 {
		return false, nil
	}
	for _, column := range probeColumns {
		ok, err := db.HasColumn(ctx, conn, "conversations", column)
		if err != nil {
			return false, err
		}
		if !ok {
			return true, nil
		}
	}
	return false, nil
}

// DB exposes the underlying connection so the log store can share it.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// StartRequest are the inputs of StartConversation. An empty ID asks
// the store to mint one.
type StartRequest struct {
	ID          string
	ContactID   string
	ContactName string
	TokenID     string
	Direction   a2a.Direction
}

// StartConversation creates the conversation if absent, otherwise
// marks it active and touches last_message_at. Resumed is true only
// when the existing record was still active.
func (s *Store) StartConversation(ctx context.Context, req StartRequest) (id string, resumed bool, err error) {
	id = req.ID
	if id == "" {
		id = fmt.Sprintf("conv_%s", uuid.NewString())
	}
	now := s.now()

	var existing dbConversation
	err = s.db.GetContext(ctx, &existing, "SELECT * FROM conversations WHERE id = ?", id)
	if err == sql.ErrNoRows {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO conversations (id, contact_id, contact_name, token_id, direction, status, started_at, last_message_at)
			VALUES (?, ?, ?, ?, ?, 'active', ?, ?)`,
			id, nullable(req.ContactID), nullable(req.ContactName), nullable(req.TokenID),
			string(req.Direction), now, now)
		if err != nil {
			return "", false, errors.Wrap(err, "failed to create conversation")
		}
		return id, false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "failed to look up conversation")
	}

	resumed = existing.Status == string(a2a.StatusActive)
	_, err = s.db.ExecContext(ctx,
		"UPDATE conversations SET status = 'active', ended_at = NULL, last_message_at = ? WHERE id = ?",
		now, id)
	if err != nil {
		return "", false, errors.Wrap(err, "failed to resume conversation")
	}
	return id, resumed, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// AddMessage appends a message and bumps the conversation's counters in
// the same transaction.
func (s *Store) AddMessage(ctx context.Context, conversationID string, msg a2a.Message) (a2a.Message, error) {
	if msg.ID == "" {
		msg.ID = "msg_" + uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	msg.ConversationID = conversationID

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return a2a.Message{}, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, direction, role, content, timestamp, compressed, metadata)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		msg.ID, conversationID, string(msg.Direction), msg.Role, msg.Content, msg.Timestamp,
		JSONField[map[string]any]{Data: msg.Metadata})
	if err != nil {
		return a2a.Message{}, errors.Wrap(err, "failed to insert message")
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE conversations SET message_count = message_count + 1, last_message_at = ? WHERE id = ?",
		msg.Timestamp, conversationID)
	if err != nil {
		return a2a.Message{}, errors.Wrap(err, "failed to update conversation counters")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return a2a.Message{}, errors.Errorf("conversation not found: %s", conversationID)
	}

	if err := tx.Commit(); err != nil {
		return a2a.Message{}, errors.Wrap(err, "failed to commit message")
	}
	return msg, nil
}

// GetOptions control what GetConversation returns.
type GetOptions struct {
	IncludeMessages bool
	// MessageLimit bounds the returned messages to the most recent N;
	// zero means all.
	MessageLimit int
}

// GetConversation returns the conversation and, optionally, its most
// recent messages in chronological order.
func (s *Store) GetConversation(ctx context.Context, id string, opts GetOptions) (*a2a.Conversation, []a2a.Message, error) {
	var record dbConversation
	err := s.db.GetContext(ctx, &record, "SELECT * FROM conversations WHERE id = ?", id)
	if err == sql.ErrNoRows {
		return nil, nil, errors.Errorf("conversation not found: %s", id)
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load conversation")
	}
	conv := record.toConversation()

	if !opts.IncludeMessages {
		return &conv, nil, nil
	}
	messages, err := s.recentMessages(ctx, id, opts.MessageLimit)
	if err != nil {
		return nil, nil, err
	}
	return &conv, messages, nil
}

// recentMessages returns the most recent limit messages (all when limit
// is zero) in chronological order.
func (s *Store) recentMessages(ctx context.Context, conversationID string, limit int) ([]a2a.Message, error) {
	query := "SELECT * FROM messages WHERE conversation_id = ? ORDER BY timestamp, id"
	args := []any{conversationID}
	if limit > 0 {
		query = `SELECT * FROM (
			SELECT * FROM messages WHERE conversation_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?
		) ORDER BY timestamp, id`
		args = append(args, limit)
	}

	var rows []dbMessage
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to load messages")
	}
	messages := make([]a2a.Message, 0, len(rows))
	for i := range rows {
		msg, err := rows[i].toMessage()
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// ListOptions filter ListConversations.
type ListOptions struct {
	ContactID       string
	Status          a2a.ConversationStatus
	Limit           int
	IncludeMessages bool
	MessageLimit    int
}

// ListedConversation pairs a conversation with its messages when
// requested.
type ListedConversation struct {
	a2a.Conversation
	Messages []a2a.Message `json:"messages,omitempty"`
}

// ListConversations returns conversations ordered by last_message_at
// descending.
func (s *Store) ListConversations(ctx context.Context, opts ListOptions) ([]ListedConversation, error) {
	query := "SELECT * FROM conversations"
	var conditions []string
	var args []any
	if opts.ContactID != "" {
		conditions = append(conditions, "contact_id = ?")
		args = append(args, opts.ContactID)
	}
	if opts.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(opts.Status))
	}
	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY last_message_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	var rows []dbConversation
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to list conversations")
	}

	out := make([]ListedConversation, 0, len(rows))
	for i := range rows {
		listed := ListedConversation{Conversation: rows[i].toConversation()}
		if opts.IncludeMessages {
			messages, err := s.recentMessages(ctx, rows[i].ID, opts.MessageLimit)
			if err != nil {
				return nil, err
			}
			listed.Messages = messages
		}
		out = append(out, listed)
	}
	return out, nil
}

// ConcludeOptions configure ConcludeConversation.
type ConcludeOptions struct {
	Summarizer   a2a.Summarizer
	OwnerContext string
}

// ConcludeConversation marks the conversation concluded, invoking the
// summarizer first when one is configured and at least one message
// exists. A summarizer failure is logged and the conversation still
// concludes, without a summary. Concluding an already-concluded
// conversation is a no-op.
func (s *Store) ConcludeConversation(ctx context.Context, id string, opts ConcludeOptions) (*a2a.Conclusion, error) {
	conv, messages, err := s.GetConversation(ctx, id, GetOptions{IncludeMessages: true})
	if err != nil {
		return nil, err
	}
	if conv.Status != a2a.StatusActive {
		return conv.Conclusion, nil
	}

	now := s.now()
	var conclusion *a2a.Conclusion
	if opts.Summarizer != nil && len(messages) > 0 {
		conclusion, err = opts.Summarizer.Summarize(ctx, messages, opts.OwnerContext)
		if err != nil {
			logger.WithComponent(ctx, "conversations").
				WithError(err).
				WithField("conversation_id", id).
				WithField("error_code", "summarizer_failed").
				WithField("hint", "the conversation concluded without a summary; re-run the summarizer manually if one is needed").
				Error("summarizer failed")
			conclusion = nil
		}
	}

	if conclusion != nil {
		_, err = s.db.ExecContext(ctx, `
			UPDATE conversations SET
				status = 'concluded', ended_at = ?,
				summary = ?, owner_summary = ?, owner_relevance = ?,
				owner_goals_touched = ?, owner_action_items = ?, caller_action_items = ?,
				joint_action_items = ?, collaboration_opportunity = ?,
				owner_follow_up = ?, owner_notes = ?
			WHERE id = ?`,
			now,
			nullable(conclusion.Summary), nullable(conclusion.OwnerSummary), nullable(conclusion.OwnerRelevance),
			JSONField[[]string]{Data: conclusion.OwnerGoalsTouched},
			JSONField[[]string]{Data: conclusion.OwnerActionItems},
			JSONField[[]string]{Data: conclusion.CallerActionItems},
			JSONField[[]string]{Data: conclusion.JointActionItems},
			JSONField[map[string]any]{Data: conclusion.CollaborationOpportunity},
			nullable(conclusion.OwnerFollowUp), nullable(conclusion.OwnerNotes),
			id)
	} else {
		_, err = s.db.ExecContext(ctx,
			"UPDATE conversations SET status = 'concluded', ended_at = ? WHERE id = ?", now, id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to conclude conversation")
	}
	return conclusion, nil
}

// TimeoutConversation marks the conversation timed out.
func (s *Store) TimeoutConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE conversations SET status = 'timeout', ended_at = ? WHERE id = ?", s.now(), id)
	if err != nil {
		return errors.Wrap(err, "failed to time out conversation")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Errorf("conversation not found: %s", id)
	}
	return nil
}

// ActiveConversationsIdleFor returns active conversations whose last
// message is older than the threshold.
func (s *Store) ActiveConversationsIdleFor(ctx context.Context, threshold time.Duration) ([]a2a.Conversation, error) {
	cutoff := s.now().Add(-threshold)
	var rows []dbConversation
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM conversations WHERE status = 'active' AND last_message_at < ? ORDER BY last_message_at",
		cutoff)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query idle conversations")
	}
	out := make([]a2a.Conversation, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toConversation())
	}
	return out, nil
}

// CompressOldMessages gzips the content of uncompressed messages older
// than the given number of days. Returns how many messages were
// compressed. Reads decompress transparently.
func (s *Store) CompressOldMessages(ctx context.Context, olderThanDays int) (int, error) {
	cutoff := s.now().AddDate(0, 0, -olderThanDays)

	var rows []dbMessage
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM messages WHERE compressed = 0 AND timestamp < ?", cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to query old messages")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	for i := range rows {
		compressed, err := compressContent(rows[i].Content)
		if err != nil {
			return 0, err
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE messages SET content = ?, compressed = 1 WHERE id = ?",
			compressed, rows[i].ID)
		if err != nil {
			return 0, errors.Wrap(err, "failed to compress message")
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "failed to commit compression")
	}
	return len(rows), nil
}

// SaveCollabState persists the collaboration state columns for a
// conversation.
func (s *Store) SaveCollabState(ctx context.Context, conversationID string, state a2a.CollabState) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET
			collab_phase = ?, collab_turn_count = ?, collab_overlap_score = ?,
			collab_active_threads = ?, collab_candidates = ?, collab_open_questions = ?,
			collab_close_signal = ?, collab_confidence = ?, collab_updated_at = ?
		WHERE id = ?`,
		string(state.Phase), state.TurnCount, state.OverlapScore,
		JSONField[[]string]{Data: state.ActiveThreads},
		JSONField[[]string]{Data: state.CandidateCollaborations},
		JSONField[[]string]{Data: state.OpenQuestions},
		state.CloseSignal, state.Confidence, state.UpdatedAt,
		conversationID)
	if err != nil {
		return errors.Wrap(err, "failed to save collaboration state")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Errorf("conversation not found: %s", conversationID)
	}
	return nil
}

// LoadCollabState returns the persisted collaboration state, or nil if
// the conversation has never had a turn.
func (s *Store) LoadCollabState(ctx context.Context, conversationID string) (*a2a.CollabState, error) {
	var record dbConversation
	err := s.db.GetContext(ctx, &record, "SELECT * FROM conversations WHERE id = ?", conversationID)
	if err == sql.ErrNoRows {
		return nil, errors.Errorf("conversation not found: %s", conversationID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load collaboration state")
	}
	return record.toCollabState(), nil
}

// ConversationContext returns the dashboard view of a conversation:
// identity, conclusion summary, and the recentN most recent messages.
func (s *Store) ConversationContext(ctx context.Context, conversationID string, recentN int) (*a2a.ConversationContext, error) {
	conv, messages, err := s.GetConversation(ctx, conversationID, GetOptions{
		IncludeMessages: true,
		MessageLimit:    recentN,
	})
	if err != nil {
		return nil, err
	}

	summary := ""
	if conv.Conclusion != nil {
		summary = conv.Conclusion.Summary
	}
	return &a2a.ConversationContext{
		ID:             conv.ID,
		ContactID:      conv.ContactID,
		ContactName:    conv.ContactName,
		Status:         conv.Status,
		Summary:        summary,
		RecentMessages: messages,
		MessageCount:   conv.MessageCount,
		StartedAt:      conv.StartedAt,
		EndedAt:        conv.EndedAt,
	}, nil
}
