package audit

import (
	"context"
	"fmt"
	"sync"
)

// MultiLogger logs to multiple audit loggers simultaneously. Bulk
// executions write synchronously so the per-item audit entry exists before
// the result is reported.
type MultiLogger struct {
	loggers []Logger
	async   bool
	wg      sync.WaitGroup
	errChan chan error
}

// NewMultiLogger creates a new multi-logger that writes to multiple destinations
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{
		loggers: loggers,
		async:   false,
		errChan: make(chan error, len(loggers)),
	}
}

// SetAsync sets whether logging should be asynchronous
func (m *MultiLogger) SetAsync(async bool) {
	m.async = async
}

// Log logs an audit event to all configured loggers
func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	if len(m.loggers) == 0 {
		return nil
	}

	if m.async {
		return m.logAsync(ctx, event)
	}

	return m.logSync(ctx, event)
}

// logSync logs synchronously to all loggers
func (m *MultiLogger) logSync(ctx context.Context, event *Event) error {
	var firstErr error

	for _, logger := range m.loggers {
		if err := logger.Log(ctx, event); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			// Continue logging to other loggers even if one fails
		}
	}

	return firstErr
}

// logAsync logs asynchronously to all loggers
func (m *MultiLogger) logAsync(ctx context.Context, event *Event) error {
	for _, logger := range m.loggers {
		m.wg.Add(1)
		go func(l Logger) {
			defer m.wg.Done()
			if err := l.Log(ctx, event); err != nil {
				select {
				case m.errChan <- err:
				default:
					// Channel full, drop error
				}
			}
		}(logger)
	}

	return nil
}

// LogMembership logs a membership lifecycle event
func (m *MultiLogger) LogMembership(ctx context.Context, eventType EventType, actorID int64, targetUserID, groupID int64, status EventStatus, message string) error {
	event := buildBaseEvent(ctx, eventType, status)
	event.ActorID = &actorID
	event.TargetUserID = &targetUserID
	event.GroupID = &groupID
	event.Message = message

	return m.Log(ctx, event)
}

// LogRoleChange logs a role or grant mutation
func (m *MultiLogger) LogRoleChange(ctx context.Context, eventType EventType, actorID int64, groupID int64, metadata map[string]interface{}) error {
	event := buildBaseEvent(ctx, eventType, EventStatusSuccess)
	event.ActorID = &actorID
	event.GroupID = &groupID
	if metadata != nil {
		event.Metadata = metadata
	}

	return m.Log(ctx, event)
}

// LogAdminAction logs an account administration event
func (m *MultiLogger) LogAdminAction(ctx context.Context, eventType EventType, actorID int64, targetUserID int64, bulkOpID string, status EventStatus, message string) error {
	event := buildBaseEvent(ctx, eventType, status)
	event.ActorID = &actorID
	event.TargetUserID = &targetUserID
	event.BulkOpID = bulkOpID
	event.Message = message

	return m.Log(ctx, event)
}

// LogGuardRejection logs a mutation rejected by a protection invariant
func (m *MultiLogger) LogGuardRejection(ctx context.Context, actorID int64, invariant, detail string) error {
	event := buildBaseEvent(ctx, EventTypeGuardRejected, EventStatusDenied)
	event.ActorID = &actorID
	event.Message = detail
	event.Metadata["invariant"] = invariant

	return m.Log(ctx, event)
}

// Wait waits for all async logging operations to complete
func (m *MultiLogger) Wait() {
	m.wg.Wait()
}

// GetErrors returns any errors that occurred during async logging
func (m *MultiLogger) GetErrors() []error {
	var errors []error
	for {
		select {
		case err := <-m.errChan:
			errors = append(errors, err)
		default:
			return errors
		}
	}
}

// Close closes all loggers
func (m *MultiLogger) Close() error {
	m.wg.Wait()

	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to close logger: %w", err)
			}
		}
	}

	close(m.errChan)
	return firstErr
}
