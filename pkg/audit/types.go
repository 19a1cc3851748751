package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Membership lifecycle events
	EventTypeMembershipInvite  EventType = "membership.invite"
	EventTypeMembershipAccept  EventType = "membership.accept"
	EventTypeMembershipDecline EventType = "membership.decline"
	EventTypeMembershipPause   EventType = "membership.pause"
	EventTypeMembershipResume  EventType = "membership.resume"
	EventTypeMembershipRemove  EventType = "membership.remove"
	EventTypeMembershipLeave   EventType = "membership.leave"
	EventTypeMembershipJoin    EventType = "membership.join"

	// Role and grant events
	EventTypeRoleCreate       EventType = "role.create"
	EventTypeRoleUpdateGrants EventType = "role.update_grants"
	EventTypeRoleDelete       EventType = "role.delete"
	EventTypeRoleAssign       EventType = "role.assign"
	EventTypeRoleUnassign     EventType = "role.unassign"

	// Group events
	EventTypeGroupCreate EventType = "group.create"
	EventTypeGroupUpdate EventType = "group.update"
	EventTypeGroupDelete EventType = "group.delete"

	// Account administration events
	EventTypeUserDeactivate EventType = "user.deactivate"
	EventTypeUserReactivate EventType = "user.reactivate"
	EventTypeUserDeleteSoft EventType = "user.delete_soft"
	EventTypeUserDeleteHard EventType = "user.delete_hard"
	EventTypeUserRestore    EventType = "user.restore"
	EventTypeUserLogout     EventType = "user.logout"
	EventTypeUserRemove     EventType = "user.remove"

	// Bulk orchestration events
	EventTypeBulkExecute EventType = "bulk.execute"

	// Protection invariant events
	EventTypeGuardRejected EventType = "guard.rejected"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
	EventStatusSkipped EventStatus = "skipped"
)

// Event represents a single audit log entry
type Event struct {
	// Core fields
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Participants
	ActorID      *int64 `json:"actor_id,omitempty"`
	TargetUserID *int64 `json:"target_user_id,omitempty"`
	GroupID      *int64 `json:"group_id,omitempty"`

	// Correlation
	RequestID string `json:"request_id,omitempty"`
	BulkOpID  string `json:"bulk_op_id,omitempty"`

	// Additional details
	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an audit event from JSON
func FromJSON(data []byte) (*Event, error) {
	var event Event
	err := json.Unmarshal(data, &event)
	return &event, err
}

// SearchFilter represents filters for searching audit logs
type SearchFilter struct {
	// Time range
	StartTime *time.Time
	EndTime   *time.Time

	// Participant filters
	ActorID      *int64
	TargetUserID *int64
	GroupID      *int64

	// Event filters
	EventTypes []EventType
	Status     *EventStatus
	BulkOpID   string

	// Pagination
	Limit  int
	Offset int
}

// ExportFormat represents the format for exporting audit logs
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson" // Newline-delimited JSON
)
