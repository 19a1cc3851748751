package roles

import "time"

// GroupRole is a role scoped to one group. Template-derived roles
// (TemplateID set) can be edited but not deleted; custom roles can be
// deleted as long as the deletion passes the protection guards.
type GroupRole struct {
	ID          int64     `json:"id"`
	GroupID     int64     `json:"group_id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description,omitempty"`
	TemplateID  *int64    `json:"template_id,omitempty"`
	IsCustom    bool      `json:"is_custom"`
	CreatedBy   *int64    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// PermissionIDs are the role's grants, loaded on read paths that
	// need them.
	PermissionIDs []int64 `json:"permission_ids,omitempty"`
}

// Assignment is a (user, group, role) edge
type Assignment struct {
	ID        int64     `json:"id"`
	GroupID   int64     `json:"group_id"`
	UserID    int64     `json:"user_id"`
	RoleID    int64     `json:"role_id"`
	GrantedBy *int64    `json:"granted_by,omitempty"`
	GrantedAt time.Time `json:"granted_at"`
}

// SetGrantsResult reports the outcome of a grant edit. When
// LockoutWarning is set, nothing was persisted: the edit would remove a
// critical permission the editor holds only through this role, and the
// caller must resubmit with an explicit confirmation.
type SetGrantsResult struct {
	LockoutWarning     bool     `json:"lockout_warning"`
	LockoutPermissions []string `json:"lockout_permissions,omitempty"`
}

// GrantOption is one catalog permission as offered to a role editor.
// Permissions the editor does not hold in the group are disabled with a
// reason instead of being silently dropped.
type GrantOption struct {
	PermissionID int64  `json:"permission_id"`
	Name         string `json:"name"`
	DisplayName  string `json:"display_name"`
	Critical     bool   `json:"critical"`
	Granted      bool   `json:"granted"`
	Disabled     bool   `json:"disabled"`
	Reason       string `json:"reason,omitempty"`
}
