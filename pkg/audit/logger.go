package audit

import (
	"context"
	"time"

	"github.com/guildhall-io/guildhall/pkg/contextkeys"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *Event) error

	// LogMembership logs a membership lifecycle event
	LogMembership(ctx context.Context, eventType EventType, actorID int64, targetUserID, groupID int64, status EventStatus, message string) error

	// LogRoleChange logs a role or grant mutation
	LogRoleChange(ctx context.Context, eventType EventType, actorID int64, groupID int64, metadata map[string]interface{}) error

	// LogAdminAction logs an account administration event, optionally
	// correlated to a bulk operation
	LogAdminAction(ctx context.Context, eventType EventType, actorID int64, targetUserID int64, bulkOpID string, status EventStatus, message string) error

	// LogGuardRejection logs a mutation rejected by a protection invariant
	LogGuardRejection(ctx context.Context, actorID int64, invariant, detail string) error

	// Close closes the logger and flushes any buffered logs
	Close() error
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return contextkeys.WithAuditLogger(ctx, logger)
}

// FromContext retrieves the audit logger from context. Returns a no-op
// logger when none is set so call sites never nil-check.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok {
		return logger
	}
	return &noOpLogger{}
}

// buildBaseEvent creates a base audit event with common fields populated
func buildBaseEvent(ctx context.Context, eventType EventType, status EventStatus) *Event {
	event := &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		Metadata:  make(map[string]interface{}),
	}

	if requestID := contextkeys.GetRequestID(ctx); requestID != "" {
		event.RequestID = requestID
	}

	return event
}

// NoOp returns a logger that discards everything. Used in tests and in
// code paths where auditing is explicitly disabled.
func NoOp() Logger {
	return &noOpLogger{}
}

type noOpLogger struct{}

func (l *noOpLogger) Log(ctx context.Context, event *Event) error {
	return nil
}

func (l *noOpLogger) LogMembership(ctx context.Context, eventType EventType, actorID int64, targetUserID, groupID int64, status EventStatus, message string) error {
	return nil
}

func (l *noOpLogger) LogRoleChange(ctx context.Context, eventType EventType, actorID int64, groupID int64, metadata map[string]interface{}) error {
	return nil
}

func (l *noOpLogger) LogAdminAction(ctx context.Context, eventType EventType, actorID int64, targetUserID int64, bulkOpID string, status EventStatus, message string) error {
	return nil
}

func (l *noOpLogger) LogGuardRejection(ctx context.Context, actorID int64, invariant, detail string) error {
	return nil
}

func (l *noOpLogger) Close() error {
	return nil
}
