// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//   import "github.com/guildhall-io/guildhall/pkg/contextkeys"
//   ctx = context.WithValue(ctx, contextkeys.ActorKey, actorID)
//   actorID := ctx.Value(contextkeys.ActorKey).(int64)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// ActorKey contains the authenticated acting user's ID
	// Set by: middleware.ActorMiddleware (pkg/middleware/actor.go)
	// Required by: every engine mutation, audit trail
	// Type: int64
	ActorKey Key = "acting_user_id"

	// RequestIDKey contains request ID string (UUID)
	// Set by: HTTP middleware, observability layer
	// Used by: Logger, audit trail
	// Type: string
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	// Set by: Observability middleware
	// Used by: Handlers that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"

	// AuditLoggerKey contains audit.Logger interface
	// Set by: cmd wiring before the router is built
	// Used by: Handlers that record audit events
	// Type: audit.Logger
	AuditLoggerKey Key = "audit_logger"
)

// WithActor adds the acting user's ID to the context
func WithActor(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, ActorKey, userID)
}

// Actor retrieves the acting user's ID from context. The second return
// value is false when no authenticated user is attached.
func Actor(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ActorKey).(int64)
	return id, ok
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// WithAuditLogger adds audit logger to the context
func WithAuditLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, AuditLoggerKey, logger)
}
