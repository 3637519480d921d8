// Package logging provides the small structured-logging interface used
// across the review pipeline, plus a couple of conveniences for attaching
// the identifiers this domain cares about (partition key, client/account
// id) to a log line without every call site re-deriving them by hand.
package logging

import (
	"github.com/cfedersp/review-pipeline/workitem"
	"github.com/sirupsen/logrus"
)

// Logger is the logging capability every component in this repository
// depends on. Nothing outside of Logrus below depends on logrus
// concretely, so a caller can plug in any backend that can satisfy this
// shape.
type Logger interface {
	WithField(key string, value any) Logger
	WithFields(fields map[string]any) Logger
	WithError(err error) Logger
	Debug(args ...any)
	Info(args ...any)
	Warn(args ...any)
	Error(args ...any)
}

// WithWorkItem attaches the identifiers a reader needs to correlate a log
// line back to a specific item: its partition key plus the client and
// account ids that compose it. Every component that logs about a
// workitem.Item should route through this rather than calling WithField
// three times with ad-hoc key names.
func WithWorkItem(l Logger, item workitem.Item) Logger {
	return l.WithFields(map[string]any{
		"partition_key": workitem.PartitionKey(item),
		"client_id":     item.GetClientID(),
		"account_id":    item.GetAccountID(),
	})
}

// Discard is a Logger that does nothing, and the default every core
// component falls back to when no Logger is supplied.
type Discard struct{}

var _ Logger = Discard{}

func (Discard) WithField(string, any) Logger     { return Discard{} }
func (Discard) WithFields(map[string]any) Logger { return Discard{} }
func (Discard) WithError(error) Logger           { return Discard{} }
func (Discard) Debug(...any)                     {}
func (Discard) Info(...any)                      {}
func (Discard) Warn(...any)                      {}
func (Discard) Error(...any)                     {}

// Logrus adapts a logrus.FieldLogger (typically *logrus.Logger or
// *logrus.Entry) to Logger. Its three With* methods all reduce to the same
// shape - call through to the wrapped FieldLogger and rewrap the result -
// so they're expressed via the shared withField helper rather than
// repeated three times.
type Logrus struct {
	logrus.FieldLogger
}

var _ Logger = Logrus{}

func (x Logrus) withField(fn func(logrus.FieldLogger) logrus.FieldLogger) Logger {
	return Logrus{FieldLogger: fn(x.FieldLogger)}
}

func (x Logrus) WithField(key string, value any) Logger {
	return x.withField(func(fl logrus.FieldLogger) logrus.FieldLogger { return fl.WithField(key, value) })
}

func (x Logrus) WithFields(fields map[string]any) Logger {
	return x.withField(func(fl logrus.FieldLogger) logrus.FieldLogger { return fl.WithFields(fields) })
}

func (x Logrus) WithError(err error) Logger {
	return x.withField(func(fl logrus.FieldLogger) logrus.FieldLogger { return fl.WithError(err) })
}

// NewLogrus wraps a *logrus.Logger as a Logger. A nil logger falls back to
// logrus.StandardLogger().
func NewLogrus(logger *logrus.Logger) Logger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return Logrus{FieldLogger: logger}
}

// OrDiscard returns l, or Discard{} if l is nil, so callers never need a nil
// check before logging.
func OrDiscard(l Logger) Logger {
	if l == nil {
		return Discard{}
	}
	return l
}
