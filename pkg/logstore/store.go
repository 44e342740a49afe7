// Package logstore persists structured log entries into the
// conversation database and serves the dashboard's trace queries. A
// logrus hook mirrors entries into the store asynchronously so request
// paths never block on log persistence.
package logstore

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

const createLogEntriesTable = `
CREATE TABLE IF NOT EXISTS log_entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp DATETIME NOT NULL,
    level TEXT NOT NULL,
    component TEXT,
    event TEXT,
    message TEXT,
    trace_id TEXT,
    conversation_id TEXT,
    token_id TEXT,
    request_id TEXT,
    status_code INTEGER,
    error_code TEXT,
    hint TEXT,
    data TEXT,
    error_stack TEXT
);
`

var logIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_log_trace ON log_entries(trace_id);`,
	`CREATE INDEX IF NOT EXISTS idx_log_conversation ON log_entries(conversation_id);`,
	`CREATE INDEX IF NOT EXISTS idx_log_token ON log_entries(token_id);`,
	`CREATE INDEX IF NOT EXISTS idx_log_error_code ON log_entries(error_code);`,
	`CREATE INDEX IF NOT EXISTS idx_log_level ON log_entries(level);`,
	`CREATE INDEX IF NOT EXISTS idx_log_timestamp ON log_entries(timestamp);`,
}

// dataField stores the free-form structured payload as JSON text.
type dataField map[string]any

func (d *dataField) Scan(value any) error {
	// Reset first: sqlx hands Scan a pre-allocated map, which would
	// otherwise surface a NULL column as an empty non-nil map.
	*d = nil
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		s, ok := value.(string)
		if !ok {
			return errors.Errorf("cannot scan %T into dataField", value)
		}
		b = []byte(s)
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, d)
}

func (d dataField) Value() (driver.Value, error) {
	if len(d) == 0 {
		return nil, nil
	}
	return json.Marshal(map[string]any(d))
}

// Entry is one persisted log record.
type Entry struct {
	ID             int64          `db:"id" json:"id"`
	Timestamp      time.Time      `db:"timestamp" json:"timestamp"`
	Level          string         `db:"level" json:"level"`
	Component      string         `db:"component" json:"component,omitempty"`
	Event          string         `db:"event" json:"event,omitempty"`
	Message        string         `db:"message" json:"message"`
	TraceID        string         `db:"trace_id" json:"trace_id,omitempty"`
	ConversationID string         `db:"conversation_id" json:"conversation_id,omitempty"`
	TokenID        string         `db:"token_id" json:"token_id,omitempty"`
	RequestID      string         `db:"request_id" json:"request_id,omitempty"`
	StatusCode     *int           `db:"status_code" json:"status_code,omitempty"`
	ErrorCode      string         `db:"error_code" json:"error_code,omitempty"`
	Hint           string         `db:"hint" json:"hint,omitempty"`
	Data           dataField      `db:"data" json:"data,omitempty"`
	ErrorStack     string         `db:"error_stack" json:"error_stack,omitempty"`
}

// Store is the durable log store.
type Store struct {
	db *sqlx.DB
}

// New creates the log table on the shared conversation database.
func New(ctx context.Context, db *sqlx.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, createLogEntriesTable); err != nil {
		return nil, errors.Wrap(err, "failed to create log table")
	}
	for _, ddl := range logIndexes {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return nil, errors.Wrap(err, "failed to create log index")
		}
	}
	return &Store{db: db}, nil
}

// Insert writes one entry.
func (s *Store) Insert(ctx context.Context, e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO log_entries (
			timestamp, level, component, event, message, trace_id,
			conversation_id, token_id, request_id, status_code,
			error_code, hint, data, error_stack
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Timestamp, e.Level, e.Component, e.Event, e.Message, e.TraceID,
		e.ConversationID, e.TokenID, e.RequestID, e.StatusCode,
		e.ErrorCode, e.Hint, e.Data, e.ErrorStack)
	return errors.Wrap(err, "failed to insert log entry")
}

// ListOptions filter List. Zero values mean "no filter".
type ListOptions struct {
	Limit          int
	Level          string
	Component      string
	Event          string
	ErrorCode      string
	StatusCode     int
	TraceID        string
	ConversationID string
	TokenID        string
	Search         string
	From           *time.Time
	To             *time.Time
	SortDesc       bool
}

// List returns entries matching the filter, ordered by id.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Entry, error) {
	var conditions []string
	var args []any
	add := func(cond string, arg any) {
		conditions = append(conditions, cond)
		args = append(args, arg)
	}

	if opts.Level != "" {
		add("level = ?", opts.Level)
	}
	if opts.Component != "" {
		add("component = ?", opts.Component)
	}
	if opts.Event != "" {
		add("event = ?", opts.Event)
	}
	if opts.ErrorCode != "" {
		add("error_code = ?", opts.ErrorCode)
	}
	if opts.StatusCode != 0 {
		add("status_code = ?", opts.StatusCode)
	}
	if opts.TraceID != "" {
		add("trace_id = ?", opts.TraceID)
	}
	if opts.ConversationID != "" {
		add("conversation_id = ?", opts.ConversationID)
	}
	if opts.TokenID != "" {
		add("token_id = ?", opts.TokenID)
	}
	if opts.Search != "" {
		add("LOWER(message) LIKE ?", "%"+strings.ToLower(opts.Search)+"%")
	}
	if opts.From != nil {
		add("timestamp >= ?", *opts.From)
	}
	if opts.To != nil {
		add("timestamp <= ?", *opts.To)
	}

	query := "SELECT * FROM log_entries"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	if opts.SortDesc {
		query += " ORDER BY id DESC"
	} else {
		query += " ORDER BY id ASC"
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)

	var entries []Entry
	if err := s.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to list log entries")
	}
	return entries, nil
}

// GetTrace returns the entries of one trace, ordered by id ascending.
func (s *Store) GetTrace(ctx context.Context, traceID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 500
	}
	var entries []Entry
	err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM log_entries WHERE trace_id = ? ORDER BY id ASC LIMIT ?",
		traceID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load trace")
	}
	return entries, nil
}

// Stats summarises the store: total entries plus per-level counts.
type Stats struct {
	Total    int            `json:"total"`
	PerLevel map[string]int `json:"per_level"`
}

// GetStats computes stats for the optional time range.
func (s *Store) GetStats(ctx context.Context, from, to *time.Time) (*Stats, error) {
	query := "SELECT level, COUNT(*) AS count FROM log_entries"
	var conditions []string
	var args []any
	if from != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, *from)
	}
	if to != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, *to)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " GROUP BY level"

	rows := []struct {
		Level string `db:"level"`
		Count int    `db:"count"`
	}{}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to compute log stats")
	}

	stats := &Stats{PerLevel: make(map[string]int)}
	for _, r := range rows {
		stats.PerLevel[r.Level] = r.Count
		stats.Total += r.Count
	}
	return stats, nil
}
