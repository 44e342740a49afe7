package logstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// known field keys lifted into dedicated columns; everything else goes
// into the data payload.
const (
	fieldComponent      = "component"
	fieldEvent          = "event"
	fieldTraceID        = "trace_id"
	fieldConversationID = "conversation_id"
	fieldTokenID        = "token_id"
	fieldRequestID      = "request_id"
	fieldStatusCode     = "status_code"
	fieldErrorCode      = "error_code"
	fieldHint           = "hint"
)

// Hook mirrors logrus entries at or above the configured level into the
// log store. Writes go through a buffered channel and a single
// background writer; an overflowing buffer drops entries rather than
// blocking the request path.
type Hook struct {
	store    *Store
	minLevel logrus.Level

	entries chan Entry
	done    chan struct{}
	once    sync.Once
}

// NewHook starts the background writer. minLevel follows logrus
// ordering (logrus.InfoLevel persists info and above).
func NewHook(store *Store, minLevel logrus.Level) *Hook {
	h := &Hook{
		store:    store,
		minLevel: minLevel,
		entries:  make(chan Entry, 256),
		done:     make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hook) run() {
	defer close(h.done)
	for e := range h.entries {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		// Persistence failures here cannot be logged back through the
		// hook without looping; they vanish with the entry.
		_ = h.store.Insert(ctx, e)
		cancel()
	}
}

// Close stops the writer after draining buffered entries.
func (h *Hook) Close() {
	h.once.Do(func() {
		close(h.entries)
		<-h.done
	})
}

// Levels implements logrus.Hook.
func (h *Hook) Levels() []logrus.Level {
	var levels []logrus.Level
	for _, l := range logrus.AllLevels {
		if l <= h.minLevel {
			levels = append(levels, l)
		}
	}
	return levels
}

// Fire implements logrus.Hook.
func (h *Hook) Fire(entry *logrus.Entry) error {
	e := Entry{
		Timestamp: entry.Time,
		Level:     levelName(entry.Level),
		Message:   entry.Message,
	}

	data := make(dataField)
	for key, value := range entry.Data {
		switch key {
		case fieldComponent:
			e.Component = fmt.Sprint(value)
		case fieldEvent:
			e.Event = fmt.Sprint(value)
		case fieldTraceID:
			e.TraceID = fmt.Sprint(value)
		case fieldConversationID:
			e.ConversationID = fmt.Sprint(value)
		case fieldTokenID:
			e.TokenID = fmt.Sprint(value)
		case fieldRequestID:
			e.RequestID = fmt.Sprint(value)
		case fieldStatusCode:
			if code, ok := toInt(value); ok {
				e.StatusCode = &code
			}
		case fieldErrorCode:
			e.ErrorCode = fmt.Sprint(value)
		case fieldHint:
			e.Hint = fmt.Sprint(value)
		case logrus.ErrorKey:
			if err, ok := value.(error); ok {
				// %+v renders the pkg/errors stack when present.
				e.ErrorStack = fmt.Sprintf("%+v", err)
				data["error"] = err.Error()
			} else {
				data["error"] = fmt.Sprint(value)
			}
		default:
			data[key] = value
		}
	}
	if len(data) > 0 {
		e.Data = data
	}

	select {
	case h.entries <- e:
	default:
		// Buffer full; dropping beats blocking a request on SQLite.
	}
	return nil
}

func toInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// levelName maps logrus levels onto the store's closed level set.
func levelName(l logrus.Level) string {
	switch l {
	case logrus.TraceLevel:
		return "trace"
	case logrus.DebugLevel:
		return "debug"
	case logrus.InfoLevel:
		return "info"
	case logrus.WarnLevel:
		return "warn"
	default:
		return "error"
	}
}
