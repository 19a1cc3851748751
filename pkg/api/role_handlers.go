package api

import (
	"net/http"

	"github.com/guildhall-io/guildhall/pkg/httputil"
)

func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	groupID, ok := httputil.ParsePathInt64OrError(w, r, "groupID")
	if !ok {
		return
	}

	list, err := s.roles.ListGroupRoles(r.Context(), groupID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteSuccess(w, list)
}

func (s *Server) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	groupID, ok := httputil.ParsePathInt64OrError(w, r, "groupID")
	if !ok {
		return
	}

	var req createRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteValidationError(w, "name is required")
		return
	}

	role, err := s.roles.CreateRole(r.Context(), groupID, req.Name, req.Description, req.TemplateID, actorID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteCreated(w, role)
}

func (s *Server) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "roleID")
	if !ok {
		return
	}

	if err := s.roles.DeleteRole(r.Context(), roleID, actorID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// handleSetGrants replaces a role's grant set. A self-lockout warning
// comes back as a 200 with lockout_warning set and nothing persisted;
// the client resubmits with confirm_lockout to save anyway.
func (s *Server) handleSetGrants(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "roleID")
	if !ok {
		return
	}

	var req setGrantsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	result, err := s.roles.SetRoleGrants(r.Context(), roleID, req.PermissionIDs, actorID, req.ConfirmLockout)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteSuccess(w, result)
}

func (s *Server) handleGrantOptions(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "roleID")
	if !ok {
		return
	}

	options, err := s.roles.ComposableGrants(r.Context(), roleID, actorID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteSuccess(w, options)
}

func (s *Server) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	groupID, ok := httputil.ParsePathInt64OrError(w, r, "groupID")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "userID")
	if !ok {
		return
	}

	var req assignRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.RoleID <= 0 {
		httputil.WriteValidationError(w, "role_id is required")
		return
	}

	assignment, err := s.roles.AssignRole(r.Context(), groupID, userID, req.RoleID, actorID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteCreated(w, assignment)
}

func (s *Server) handleUnassignRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	groupID, ok := httputil.ParsePathInt64OrError(w, r, "groupID")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "userID")
	if !ok {
		return
	}
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "roleID")
	if !ok {
		return
	}

	if err := s.roles.UnassignRole(r.Context(), groupID, userID, roleID, actorID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) handleListUserRoles(w http.ResponseWriter, r *http.Request) {
	groupID, ok := httputil.ParsePathInt64OrError(w, r, "groupID")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "userID")
	if !ok {
		return
	}

	list, err := s.roles.ListUserRoles(r.Context(), groupID, userID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteSuccess(w, list)
}
