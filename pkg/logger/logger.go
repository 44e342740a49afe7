// Package logger provides context-aware structured logging on top of
// logrus. Request handlers carry a child logger bound to the request's
// trace id in the context; components retrieve it with G(ctx) and add
// their own fields.
package logger

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// G is a convenience alias for GetLogger.
	G = GetLogger
	// L is the global logger entry used as a fallback when no logger is found in context.
	L = logrus.NewEntry(newLogger())
)

type (
	loggerKey struct{}
)

// WithLogger attaches a logger entry to the given context, making it retrievable via GetLogger.
func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	e := logger.WithContext(ctx)
	return context.WithValue(ctx, loggerKey{}, e)
}

// GetLogger retrieves the logger entry from the context. If no logger is found,
// it returns the global logger L with the context attached.
func GetLogger(ctx context.Context) *logrus.Entry {
	logger := ctx.Value(loggerKey{})

	if logger == nil {
		return L.WithContext(ctx)
	}

	return logger.(*logrus.Entry)
}

// WithComponent returns the context logger with the component field set.
// Components are the coarse units the dashboard filters logs by
// (server, credentials, conversations, collab, watchdog).
func WithComponent(ctx context.Context, component string) *logrus.Entry {
	return GetLogger(ctx).WithField("component", component)
}

// WithTrace returns a child entry bound to a trace id. Every log line
// written through the child carries the same trace_id so the dashboard
// can reassemble a request.
func WithTrace(entry *logrus.Entry, traceID string) *logrus.Entry {
	return entry.WithField("trace_id", traceID)
}

func newLogger() *logrus.Logger {
	l := logrus.New()

	// JSON by default; the SQLite log store is the authoritative sink,
	// stdout is for the operator.
	setLoggerFormat(l, "json")

	return l
}

// setLoggerFormat sets the formatter for the given logger
func setLoggerFormat(logger *logrus.Logger, format string) {
	switch format {
	case "text", "fmt":
		logger.Formatter = &logrus.TextFormatter{
			TimestampFormat: time.RFC3339Nano,
			FullTimestamp:   true,
		}
	case "json":
		fallthrough
	default:
		logger.Formatter = &logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
			TimestampFormat: time.RFC3339Nano,
		}
	}
}

// SetLogLevel sets the log level for the global logger
func SetLogLevel(level string) error {
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	L.Logger.SetLevel(logLevel)
	return nil
}

// SetLogFormat sets the log format for the global logger
func SetLogFormat(format string) {
	setLoggerFormat(L.Logger, format)
}

// SetLogOutput sets the output destination for the global logger
func SetLogOutput(w io.Writer) {
	L.Logger.SetOutput(w)
}

// AddHook registers a hook on the global logger. The log store uses
// this to mirror entries into SQLite.
func AddHook(hook logrus.Hook) {
	L.Logger.AddHook(hook)
}
