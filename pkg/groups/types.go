package groups

import "time"

// GroupKind distinguishes platform-scoped groups from ordinary ones
type GroupKind string

const (
	// KindPersonal is a single-user workspace group
	KindPersonal GroupKind = "personal"
	// KindEngagement is the ordinary user-facing community group
	KindEngagement GroupKind = "engagement"
	// KindSystem is platform-scoped: grants held through a system group
	// apply in every context group.
	KindSystem GroupKind = "system"
)

// Visibility controls whether a group appears in the public catalog
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Group represents a community group
type Group struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	Kind           GroupKind  `json:"kind"`
	Visibility     Visibility `json:"visibility"`
	ShowMemberList bool       `json:"show_member_list"`
	Description    string     `json:"description,omitempty"`
	CreatedBy      *int64     `json:"created_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// UpdateGroupRequest carries the editable group fields. Nil means leave
// the field unchanged.
type UpdateGroupRequest struct {
	Name           *string     `json:"name,omitempty"`
	Description    *string     `json:"description,omitempty"`
	Visibility     *Visibility `json:"visibility,omitempty"`
	ShowMemberList *bool       `json:"show_member_list,omitempty"`
}

// Well-known system group names
const (
	SystemGroupAllMembers     = "All Members"
	SystemGroupAdministrators = "Platform Administrators"
)
