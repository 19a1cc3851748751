package api

import (
	"net/http"
	"strconv"

	"github.com/guildhall-io/guildhall/pkg/catalog"
	"github.com/guildhall-io/guildhall/pkg/contextkeys"
	"github.com/guildhall-io/guildhall/pkg/groups"
	"github.com/guildhall-io/guildhall/pkg/httputil"
	"github.com/guildhall-io/guildhall/pkg/membership"
)

func actorOrUnauthorized(w http.ResponseWriter, r *http.Request) (int64, bool) {
	actorID, ok := contextkeys.Actor(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return 0, false
	}
	return actorID, true
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req createGroupRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteValidationError(w, "name is required")
		return
	}
	if req.Visibility == "" {
		req.Visibility = groups.VisibilityPublic
	}

	group, err := s.groups.CreateGroup(r.Context(), req.Name, req.Description, req.Visibility, actorID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteCreated(w, group)
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	kind := groups.GroupKind(r.URL.Query().Get("kind"))

	list, err := s.groups.ListGroups(r.Context(), kind)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteSuccess(w, list)
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := httputil.ParsePathInt64OrError(w, r, "groupID")
	if !ok {
		return
	}

	group, err := s.groups.GetGroup(r.Context(), groupID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteSuccess(w, group)
}

func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := httputil.ParsePathInt64OrError(w, r, "groupID")
	if !ok {
		return
	}

	var req groups.UpdateGroupRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	group, err := s.groups.UpdateGroup(r.Context(), groupID, req)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteSuccess(w, group)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	groupID, ok := httputil.ParsePathInt64OrError(w, r, "groupID")
	if !ok {
		return
	}

	if err := s.groups.DeleteGroup(r.Context(), groupID, actorID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// handleListMembers serves the group roster. A hidden member list is
// only visible to holders of view_member_list in that group.
func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	groupID, ok := httputil.ParsePathInt64OrError(w, r, "groupID")
	if !ok {
		return
	}

	group, err := s.groups.GetGroup(r.Context(), groupID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	if !group.ShowMemberList {
		actorID, _ := contextkeys.Actor(r.Context())
		if !s.resolver.HasPermission(r.Context(), actorID, groupID, catalog.PermViewMemberList) {
			httputil.WriteForbidden(w, "the member list of this group is hidden")
			return
		}
	}

	filter := membership.ListFilter{
		Status:   membership.Status(r.URL.Query().Get("status")),
		Page:     queryInt(r, "page", 1),
		PageSize: queryInt(r, "page_size", 50),
	}

	members, total, err := s.memberships.ListMembers(r.Context(), groupID, filter)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteSuccess(w, listResponse{Items: members, Total: total, Page: filter.Page})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 1 {
		return fallback
	}
	return val
}
