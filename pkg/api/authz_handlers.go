package api

import (
	"net/http"
	"strconv"

	"github.com/guildhall-io/guildhall/pkg/catalog"
	"github.com/guildhall-io/guildhall/pkg/contextkeys"
	"github.com/guildhall-io/guildhall/pkg/httputil"
)

// handleAuthzCheck answers a single permission check for the acting
// user, or for another user when the caller is a platform
// administrator. Checks never error: anonymous callers and unknown
// names simply get false.
func (s *Server) handleAuthzCheck(w http.ResponseWriter, r *http.Request) {
	permission := r.URL.Query().Get("permission")
	if permission == "" {
		httputil.WriteValidationError(w, "permission is required")
		return
	}
	groupID := queryInt64(r, "group_id")

	userID, ok := s.subjectUser(w, r)
	if !ok {
		return
	}

	allowed := s.resolver.HasPermission(r.Context(), userID, groupID, permission)
	_ = httputil.WriteSuccess(w, checkResponse{Allowed: allowed})
}

// handleAuthzPermissions returns the effective permission set for the
// acting user in a context group (group_id 0 for the platform tier
// alone).
func (s *Server) handleAuthzPermissions(w http.ResponseWriter, r *http.Request) {
	groupID := queryInt64(r, "group_id")

	userID, ok := s.subjectUser(w, r)
	if !ok {
		return
	}

	perms, err := s.resolver.EffectivePermissions(r.Context(), userID, groupID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteSuccess(w, map[string][]string{"permissions": perms})
}

// subjectUser resolves whose permissions are being asked about: the
// actor by default, or the user_id query parameter when the actor is a
// platform administrator inspecting someone else.
func (s *Server) subjectUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	actorID, _ := contextkeys.Actor(r.Context())

	subject := queryInt64(r, "user_id")
	if subject == 0 || subject == actorID {
		return actorID, true
	}

	if !s.resolver.HasPermission(r.Context(), actorID, 0, catalog.PermAdministerPlatform) {
		httputil.WriteForbidden(w, "requires permission "+catalog.PermAdministerPlatform)
		return 0, false
	}
	return subject, true
}

func queryInt64(r *http.Request, key string) int64 {
	val, err := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	if err != nil {
		return 0
	}
	return val
}

func (s *Server) handleCatalogPermissions(w http.ResponseWriter, r *http.Request) {
	grouped, err := s.catalog.ListGrouped(r.Context())
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteSuccess(w, grouped)
}

func (s *Server) handleCatalogTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.catalog.ListTemplates(r.Context())
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteSuccess(w, templates)
}
