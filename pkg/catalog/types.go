package catalog

// Permission is a named capability defined by the platform. The catalog is
// fixed at deploy time; groups compose permissions into roles but never
// define new ones.
type Permission struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	DisplayName  string `json:"display_name"`
	Description  string `json:"description,omitempty"`
	CategoryID   int64  `json:"category_id"`
	Critical     bool   `json:"critical"`
	DisplayOrder int    `json:"display_order"`
}

// Category groups related permissions for display
type Category struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	DisplayName  string `json:"display_name"`
	DisplayOrder int    `json:"display_order"`
}

// CategoryView is a category with its permissions, in display order
type CategoryView struct {
	Category    Category     `json:"category"`
	Permissions []Permission `json:"permissions"`
}

// RoleTemplate is a starting point for group roles. Mandatory templates
// are instantiated for every new group.
type RoleTemplate struct {
	ID              int64    `json:"id"`
	Name            string   `json:"name"`
	DisplayName     string   `json:"display_name"`
	Description     string   `json:"description,omitempty"`
	Mandatory       bool     `json:"mandatory"`
	PermissionNames []string `json:"permission_names"`
}

// Well-known permission names
const (
	PermCreateGroup        = "create_group"
	PermBrowseCatalog      = "browse_catalog"
	PermEnrollSelf         = "enroll_self"
	PermAdministerPlatform = "administer_platform"

	PermInviteMembers  = "invite_members"
	PermRemoveMembers  = "remove_members"
	PermViewMemberList = "view_member_list"

	PermManageRoles = "manage_roles"
	PermAssignRoles = "assign_roles"

	PermModerateContent = "moderate_content"
	PermEditGroup       = "edit_group"

	PermManageEnrollments = "manage_enrollments"
)

// Well-known template names
const (
	TemplateSteward  = "steward"
	TemplateMember   = "member"
	TemplateObserver = "observer"
)
