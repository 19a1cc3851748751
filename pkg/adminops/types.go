package adminops

// Action is a bulk admin action name
type Action string

const (
	ActionMessage    Action = "message"
	ActionNotify     Action = "notify"
	ActionActivate   Action = "activate"
	ActionDeactivate Action = "deactivate"
	ActionDeleteSoft Action = "delete_soft"
	ActionDeleteHard Action = "delete_hard"
	ActionLogout     Action = "logout"
	ActionInvite     Action = "invite"
	ActionJoin       Action = "join"
	ActionRemove     Action = "remove"
)

// AllActions lists every action in display order
var AllActions = []Action{
	ActionMessage, ActionNotify,
	ActionActivate, ActionDeactivate, ActionDeleteSoft, ActionDeleteHard, ActionLogout,
	ActionInvite, ActionJoin, ActionRemove,
}

// Category groups actions for UI presentation. Eligibility rules are
// independent of category.
type Category string

const (
	CategoryCommunication Category = "communication"
	CategoryAccount       Category = "account"
	CategoryGroup         Category = "group"
)

// Category returns the UI grouping for the action
func (a Action) Category() Category {
	switch a {
	case ActionMessage, ActionNotify:
		return CategoryCommunication
	case ActionInvite, ActionJoin, ActionRemove:
		return CategoryGroup
	default:
		return CategoryAccount
	}
}

// Destructive reports whether executing the action requires an explicit
// confirmation step first.
func (a Action) Destructive() bool {
	switch a {
	case ActionDeactivate, ActionDeleteSoft, ActionDeleteHard, ActionLogout, ActionRemove:
		return true
	}
	return false
}

// ClearsSelection reports whether a successful execution clears the
// operator's current selection. Only actions that terminally change
// account state do; logout is destructive but preserves the selection
// so the operator can chain further actions.
func (a Action) ClearsSelection() bool {
	switch a {
	case ActionDeactivate, ActionDeleteSoft, ActionDeleteHard:
		return true
	}
	return false
}

// Valid reports whether the action name is known
func (a Action) Valid() bool {
	for _, known := range AllActions {
		if a == known {
			return true
		}
	}
	return false
}

// ActionState is the computed eligibility of one action for the current
// selection. A disabled action always carries a human-readable reason.
type ActionState struct {
	Disabled bool   `json:"disabled"`
	Reason   string `json:"reason,omitempty"`
}

// TargetError records one failed target inside a bulk execution. A
// delivery-level failure from the notifier carries no user id.
type TargetError struct {
	UserID  int64  `json:"user_id,omitempty"`
	Message string `json:"message"`
}

// BulkResult is the structured outcome of one bulk execution. Failures
// never roll back what already succeeded; the caller decides whether a
// partial outcome is acceptable.
type BulkResult struct {
	BulkOpID       string        `json:"bulk_op_id"`
	Action         Action        `json:"action"`
	Succeeded      int           `json:"succeeded"`
	Skipped        int           `json:"skipped"`
	Errors         []TargetError `json:"errors,omitempty"`
	ClearSelection bool          `json:"clear_selection"`
}

// Extra carries action-specific parameters: the target group for the
// group-category actions and the payload for message/notify.
type Extra struct {
	GroupID int64  `json:"group_id,omitempty"`
	Payload string `json:"payload,omitempty"`
}
