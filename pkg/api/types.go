package api

import (
	"net/http"

	"github.com/guildhall-io/guildhall/pkg/adminops"
	"github.com/guildhall-io/guildhall/pkg/groups"
	"github.com/guildhall-io/guildhall/pkg/middleware"
)

type createGroupRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Visibility  groups.Visibility `json:"visibility"`
}

type inviteRequest struct {
	UserID int64 `json:"user_id"`
}

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	TemplateID  *int64 `json:"template_id,omitempty"`
}

type setGrantsRequest struct {
	PermissionIDs  []int64 `json:"permission_ids"`
	ConfirmLockout bool    `json:"confirm_lockout"`
}

type assignRoleRequest struct {
	RoleID int64 `json:"role_id"`
}

type createUserRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

type actionStatesRequest struct {
	UserIDs []int64 `json:"user_ids"`
}

type executeActionRequest struct {
	Action    adminops.Action `json:"action"`
	UserIDs   []int64         `json:"user_ids"`
	GroupID   int64           `json:"group_id,omitempty"`
	Payload   string          `json:"payload,omitempty"`
	Confirmed bool            `json:"confirmed"`
}

type confirmationResponse struct {
	ConfirmationRequired bool   `json:"confirmation_required"`
	Prompt               string `json:"prompt"`
}

type checkResponse struct {
	Allowed bool `json:"allowed"`
}

type listResponse struct {
	Items interface{} `json:"items"`
	Total int         `json:"total"`
	Page  int         `json:"page"`
}

func (s *Server) requirePlatform(permission string) func(http.Handler) http.Handler {
	return middleware.RequirePlatformPermission(s.resolver, permission)
}

func (s *Server) requireGroup(permission string) func(http.Handler) http.Handler {
	return middleware.RequireGroupPermission(s.resolver, permission)
}
