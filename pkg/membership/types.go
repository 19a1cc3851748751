package membership

import "time"

// Status is the membership lifecycle state
type Status string

const (
	// StatusInvited means the user has a pending invitation
	StatusInvited Status = "invited"
	// StatusActive is the only status that participates in permission
	// resolution, member counts, and common-group computations.
	StatusActive Status = "active"
	// StatusPaused suspends participation without touching role rows
	StatusPaused Status = "paused"
	// StatusRemoved marks an ended membership. The row is kept so a
	// re-invitation reuses it.
	StatusRemoved Status = "removed"
)

// Membership represents one (group, user) membership record
type Membership struct {
	ID        int64      `json:"id"`
	GroupID   int64      `json:"group_id"`
	UserID    int64      `json:"user_id"`
	Status    Status     `json:"status"`
	InvitedBy *int64     `json:"invited_by,omitempty"`
	InvitedAt time.Time  `json:"invited_at"`
	JoinedAt  *time.Time `json:"joined_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Member is a membership joined with its user's display fields, as
// rendered on a group roster.
type Member struct {
	Membership
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// ListFilter selects members for roster listing
type ListFilter struct {
	Status   Status `json:"status,omitempty"`
	Page     int    `json:"page,omitempty"`
	PageSize int    `json:"page_size,omitempty"`
}
