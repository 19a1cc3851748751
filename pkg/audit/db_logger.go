package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// DBLogger implements audit logging to PostgreSQL. It writes to the
// admin_audit_log table created by the storage migrations.
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-based audit logger
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db}, nil
}

// Log logs an audit event to the database
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	metadataJSON := []byte("{}")
	if event.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO admin_audit_log (
			timestamp, event_type, status,
			actor_id, target_user_id, group_id,
			request_id, bulk_op_id,
			message, error_message, metadata
		) VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7, $8,
			$9, $10, $11
		) RETURNING id
	`

	err := l.db.QueryRowContext(ctx, query,
		event.Timestamp, event.EventType, event.Status,
		event.ActorID, event.TargetUserID, event.GroupID,
		event.RequestID, event.BulkOpID,
		event.Message, event.ErrorMessage, metadataJSON,
	).Scan(&event.ID)

	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// LogMembership logs a membership lifecycle event
func (l *DBLogger) LogMembership(ctx context.Context, eventType EventType, actorID int64, targetUserID, groupID int64, status EventStatus, message string) error {
	event := buildBaseEvent(ctx, eventType, status)
	event.ActorID = &actorID
	event.TargetUserID = &targetUserID
	event.GroupID = &groupID
	event.Message = message

	return l.Log(ctx, event)
}

// LogRoleChange logs a role or grant mutation
func (l *DBLogger) LogRoleChange(ctx context.Context, eventType EventType, actorID int64, groupID int64, metadata map[string]interface{}) error {
	event := buildBaseEvent(ctx, eventType, EventStatusSuccess)
	event.ActorID = &actorID
	event.GroupID = &groupID
	if metadata != nil {
		event.Metadata = metadata
	}

	return l.Log(ctx, event)
}

// LogAdminAction logs an account administration event
func (l *DBLogger) LogAdminAction(ctx context.Context, eventType EventType, actorID int64, targetUserID int64, bulkOpID string, status EventStatus, message string) error {
	event := buildBaseEvent(ctx, eventType, status)
	event.ActorID = &actorID
	event.TargetUserID = &targetUserID
	event.BulkOpID = bulkOpID
	event.Message = message

	return l.Log(ctx, event)
}

// LogGuardRejection logs a mutation rejected by a protection invariant
func (l *DBLogger) LogGuardRejection(ctx context.Context, actorID int64, invariant, detail string) error {
	event := buildBaseEvent(ctx, EventTypeGuardRejected, EventStatusDenied)
	event.ActorID = &actorID
	event.Message = detail
	event.Metadata["invariant"] = invariant

	return l.Log(ctx, event)
}

// Search searches audit logs based on filters
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*Event, error) {
	query := `
		SELECT
			id, timestamp, event_type, status,
			actor_id, target_user_id, group_id,
			request_id, bulk_op_id,
			message, error_message, metadata
		FROM admin_audit_log
		WHERE 1=1
	`

	args := []interface{}{}
	argCount := 1

	if filter.StartTime != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", argCount)
		args = append(args, *filter.StartTime)
		argCount++
	}

	if filter.EndTime != nil {
		query += fmt.Sprintf(" AND timestamp <= $%d", argCount)
		args = append(args, *filter.EndTime)
		argCount++
	}

	if filter.ActorID != nil {
		query += fmt.Sprintf(" AND actor_id = $%d", argCount)
		args = append(args, *filter.ActorID)
		argCount++
	}

	if filter.TargetUserID != nil {
		query += fmt.Sprintf(" AND target_user_id = $%d", argCount)
		args = append(args, *filter.TargetUserID)
		argCount++
	}

	if filter.GroupID != nil {
		query += fmt.Sprintf(" AND group_id = $%d", argCount)
		args = append(args, *filter.GroupID)
		argCount++
	}

	if len(filter.EventTypes) > 0 {
		query += fmt.Sprintf(" AND event_type = ANY($%d)", argCount)
		eventTypeStrs := make([]string, len(filter.EventTypes))
		for i, et := range filter.EventTypes {
			eventTypeStrs[i] = string(et)
		}
		args = append(args, pq.Array(eventTypeStrs))
		argCount++
	}

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, string(*filter.Status))
		argCount++
	}

	if filter.BulkOpID != "" {
		query += fmt.Sprintf(" AND bulk_op_id = $%d", argCount)
		args = append(args, filter.BulkOpID)
		argCount++
	}

	query += " ORDER BY timestamp DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, filter.Limit)
		argCount++
	}

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filter.Offset)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit logs: %w", err)
	}
	defer rows.Close()

	events := make([]*Event, 0)
	for rows.Next() {
		event := &Event{
			Metadata: make(map[string]interface{}),
		}

		var requestID, bulkOpID, message, errorMessage sql.NullString
		var metadataJSON []byte

		err := rows.Scan(
			&event.ID, &event.Timestamp, &event.EventType, &event.Status,
			&event.ActorID, &event.TargetUserID, &event.GroupID,
			&requestID, &bulkOpID,
			&message, &errorMessage, &metadataJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}

		event.RequestID = requestID.String
		event.BulkOpID = bulkOpID.String
		event.Message = message.String
		event.ErrorMessage = errorMessage.String

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", err)
	}

	return events, nil
}

// DeleteOlderThan removes audit entries older than the cutoff. Used by the
// retention sweep. Returns the number of rows removed.
func (l *DBLogger) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := l.db.ExecContext(ctx,
		"DELETE FROM admin_audit_log WHERE timestamp < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired audit logs: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted audit logs: %w", err)
	}

	return rows, nil
}

// Close closes the database logger. The shared connection pool is owned by
// the caller, so nothing to do here.
func (l *DBLogger) Close() error {
	return nil
}
