package api

import (
	"fmt"
	"net/http"

	"github.com/guildhall-io/guildhall/pkg/accounts"
	"github.com/guildhall-io/guildhall/pkg/httputil"
	"github.com/guildhall-io/guildhall/pkg/selection"
)

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" || req.DisplayName == "" {
		httputil.WriteValidationError(w, "email and display_name are required")
		return
	}

	user, err := s.accounts.CreateUser(r.Context(), req.Email, req.DisplayName)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	s.invalidatePages()
	_ = httputil.WriteCreated(w, user)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "userID")
	if !ok {
		return
	}

	user, err := s.accounts.GetUser(r.Context(), userID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteSuccess(w, user)
}

// handleListUsers serves the paginated admin user listing the bulk
// selection bar sits on. Pages are memoized by (filters, page) so
// browsing back and forth does not re-run the query; any mutation that
// could change the listing invalidates the whole cache.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	filter := userFilterFromQuery(r)

	if s.pages != nil {
		if page, ok := s.pages.Get(filterKey(filter), filter.Page); ok {
			users, err := s.accounts.GetUsers(r.Context(), page.IDs)
			if err == nil {
				_ = httputil.WriteSuccess(w, listResponse{Items: users, Total: page.Total, Page: filter.Page})
				return
			}
		}
	}

	users, total, err := s.accounts.ListUsers(r.Context(), filter)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	if s.pages != nil {
		ids := make([]int64, len(users))
		for i, u := range users {
			ids[i] = u.ID
		}
		s.pages.Put(filterKey(filter), filter.Page, selection.CachedPage{IDs: ids, Total: total})
	}

	_ = httputil.WriteSuccess(w, listResponse{Items: users, Total: total, Page: filter.Page})
}

// handleMatchingUsers backs "select all N results": the full id set
// matching the active filters across every page.
func (s *Server) handleMatchingUsers(w http.ResponseWriter, r *http.Request) {
	filter := userFilterFromQuery(r)

	ids, err := s.accounts.ListMatchingIDs(r.Context(), filter)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	_ = httputil.WriteSuccess(w, map[string]interface{}{
		"user_ids": ids,
		"total":    len(ids),
	})
}

func (s *Server) invalidatePages() {
	if s.pages != nil {
		s.pages.Invalidate()
	}
}

func userFilterFromQuery(r *http.Request) accounts.ListFilter {
	return accounts.ListFilter{
		Status:   accounts.UserStatus(r.URL.Query().Get("status")),
		Search:   r.URL.Query().Get("search"),
		Page:     queryInt(r, "page", 1),
		PageSize: queryInt(r, "page_size", 50),
	}
}

func filterKey(filter accounts.ListFilter) string {
	return fmt.Sprintf("%s|%s|%d", filter.Status, filter.Search, filter.PageSize)
}
