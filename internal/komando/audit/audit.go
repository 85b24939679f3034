// Package audit records the session trail: every state transition, execution
// outcome, and operator action lands here exactly once.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Severity classifies an audit entry.
type Severity string

const (
	SeverityDebug   Severity = "debug"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeveritySuccess Severity = "success"
)

// Payload carries structured context for an entry.
type Payload map[string]any

// Entry is one audit record. Timestamp is set by the sink when zero.
type Entry struct {
	ID        int64
	SessionID string
	Severity  Severity
	Message   string
	Payload   Payload
	Actor     string
	Timestamp time.Time
}

// Sink persists audit entries. Appends must be durable before returning: the
// session layer writes the entry before reporting a transition to the caller.
type Sink interface {
	Append(ctx context.Context, e Entry) error
}

// LogSink writes entries to the process log. It backs tests and hosts that
// keep their audit trail elsewhere.
type LogSink struct {
	Logger *slog.Logger
}

func (s *LogSink) Append(_ context.Context, e Entry) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{
		"session_id", e.SessionID,
		"severity", string(e.Severity),
		"actor", e.Actor,
	}
	if len(e.Payload) > 0 {
		if data, err := json.Marshal(e.Payload); err == nil {
			attrs = append(attrs, "payload", string(data))
		}
	}
	switch e.Severity {
	case SeverityError:
		logger.Error(e.Message, attrs...)
	case SeverityWarning:
		logger.Warn(e.Message, attrs...)
	case SeverityDebug:
		logger.Debug(e.Message, attrs...)
	default:
		logger.Info(e.Message, attrs...)
	}
	return nil
}
