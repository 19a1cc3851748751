package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/guildhall-io/guildhall/pkg/accounts"
	"github.com/guildhall-io/guildhall/pkg/adminops"
	"github.com/guildhall-io/guildhall/pkg/audit"
	"github.com/guildhall-io/guildhall/pkg/catalog"
	"github.com/guildhall-io/guildhall/pkg/groups"
	"github.com/guildhall-io/guildhall/pkg/membership"
	"github.com/guildhall-io/guildhall/pkg/observability"
	"github.com/guildhall-io/guildhall/pkg/roles"
	"github.com/guildhall-io/guildhall/pkg/selection"
)

// Resolver is the permission-resolution surface the handlers need
type Resolver interface {
	HasPermission(ctx context.Context, userID, groupID int64, permission string) bool
	EffectivePermissions(ctx context.Context, userID, groupID int64) ([]string, error)
}

// BulkOrchestrator runs the admin bulk-action layer
type BulkOrchestrator interface {
	ActionStates(ctx context.Context, selectedIDs []int64) (map[adminops.Action]adminops.ActionState, error)
	Execute(ctx context.Context, action adminops.Action, targetIDs []int64, actorID int64, extra adminops.Extra) (*adminops.BulkResult, error)
}

// AuditSearcher is the queryable side of the audit trail
type AuditSearcher interface {
	Search(ctx context.Context, filter audit.SearchFilter) ([]*audit.Event, error)
}

// Server holds the handler dependencies
type Server struct {
	logger      *observability.Logger
	groups      groups.Service
	memberships membership.Service
	roles       roles.Service
	accounts    accounts.Service
	catalog     catalog.Store
	resolver    Resolver
	bulk        BulkOrchestrator
	auditSearch AuditSearcher
	pages       *selection.PageCache
}

// Options bundles the server dependencies. AuditSearch and Pages are
// optional; audit search returns 503 without a searchable sink, and
// listings simply skip caching without a page cache.
type Options struct {
	Logger      *observability.Logger
	Groups      groups.Service
	Memberships membership.Service
	Roles       roles.Service
	Accounts    accounts.Service
	Catalog     catalog.Store
	Resolver    Resolver
	Bulk        BulkOrchestrator
	AuditSearch AuditSearcher
	Pages       *selection.PageCache
}

// NewServer creates a Server
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = observability.FromContext(context.Background())
	}
	return &Server{
		logger:      logger,
		groups:      opts.Groups,
		memberships: opts.Memberships,
		roles:       opts.Roles,
		accounts:    opts.Accounts,
		catalog:     opts.Catalog,
		resolver:    opts.Resolver,
		bulk:        opts.Bulk,
		auditSearch: opts.AuditSearch,
		pages:       opts.Pages,
	}
}

// RegisterRoutes attaches every route under /api/v1. Permission guards
// wrap the admin and group-management routes; bulkLimit, when non-nil,
// additionally wraps the bulk execution endpoint.
func (s *Server) RegisterRoutes(router *mux.Router, bulkLimit func(http.Handler) http.Handler) {
	r := router.PathPrefix("/api/v1").Subrouter()

	platformAdmin := s.requirePlatform(catalog.PermAdministerPlatform)

	// catalog
	r.HandleFunc("/catalog/permissions", s.handleCatalogPermissions).Methods(http.MethodGet)
	r.HandleFunc("/catalog/templates", s.handleCatalogTemplates).Methods(http.MethodGet)

	// permission checks for the acting user
	r.HandleFunc("/authz/check", s.handleAuthzCheck).Methods(http.MethodGet)
	r.HandleFunc("/authz/permissions", s.handleAuthzPermissions).Methods(http.MethodGet)

	// groups
	r.Handle("/groups", s.requirePlatform(catalog.PermCreateGroup)(http.HandlerFunc(s.handleCreateGroup))).Methods(http.MethodPost)
	r.HandleFunc("/groups", s.handleListGroups).Methods(http.MethodGet)
	r.HandleFunc("/groups/{groupID}", s.handleGetGroup).Methods(http.MethodGet)
	r.Handle("/groups/{groupID}", s.requireGroup(catalog.PermEditGroup)(http.HandlerFunc(s.handleUpdateGroup))).Methods(http.MethodPatch)
	r.Handle("/groups/{groupID}", platformAdmin(http.HandlerFunc(s.handleDeleteGroup))).Methods(http.MethodDelete)
	r.HandleFunc("/groups/{groupID}/members", s.handleListMembers).Methods(http.MethodGet)

	// membership lifecycle
	r.HandleFunc("/groups/{groupID}/invitations", s.handleInvite).Methods(http.MethodPost)
	r.HandleFunc("/invitations/{membershipID}/accept", s.handleAcceptInvitation).Methods(http.MethodPost)
	r.HandleFunc("/invitations/{membershipID}/decline", s.handleDeclineInvitation).Methods(http.MethodPost)
	r.Handle("/groups/{groupID}/members/{userID}/pause",
		s.requireGroup(catalog.PermRemoveMembers)(http.HandlerFunc(s.handlePauseMember))).Methods(http.MethodPost)
	r.Handle("/groups/{groupID}/members/{userID}/resume",
		s.requireGroup(catalog.PermRemoveMembers)(http.HandlerFunc(s.handleResumeMember))).Methods(http.MethodPost)
	r.HandleFunc("/groups/{groupID}/members/{userID}", s.handleRemoveMember).Methods(http.MethodDelete)
	r.HandleFunc("/groups/{groupID}/leave", s.handleLeaveGroup).Methods(http.MethodPost)

	// roles and grants
	r.HandleFunc("/groups/{groupID}/roles", s.handleListRoles).Methods(http.MethodGet)
	r.Handle("/groups/{groupID}/roles",
		s.requireGroup(catalog.PermManageRoles)(http.HandlerFunc(s.handleCreateRole))).Methods(http.MethodPost)
	r.Handle("/groups/{groupID}/roles/{roleID}",
		s.requireGroup(catalog.PermManageRoles)(http.HandlerFunc(s.handleDeleteRole))).Methods(http.MethodDelete)
	r.Handle("/groups/{groupID}/roles/{roleID}/grants",
		s.requireGroup(catalog.PermManageRoles)(http.HandlerFunc(s.handleSetGrants))).Methods(http.MethodPut)
	r.Handle("/groups/{groupID}/roles/{roleID}/grant-options",
		s.requireGroup(catalog.PermManageRoles)(http.HandlerFunc(s.handleGrantOptions))).Methods(http.MethodGet)
	r.Handle("/groups/{groupID}/members/{userID}/roles",
		s.requireGroup(catalog.PermAssignRoles)(http.HandlerFunc(s.handleAssignRole))).Methods(http.MethodPost)
	r.HandleFunc("/groups/{groupID}/members/{userID}/roles", s.handleListUserRoles).Methods(http.MethodGet)
	r.Handle("/groups/{groupID}/members/{userID}/roles/{roleID}",
		s.requireGroup(catalog.PermAssignRoles)(http.HandlerFunc(s.handleUnassignRole))).Methods(http.MethodDelete)

	// admin: users, selection, bulk actions, audit
	r.Handle("/admin/users", platformAdmin(http.HandlerFunc(s.handleCreateUser))).Methods(http.MethodPost)
	r.Handle("/admin/users", platformAdmin(http.HandlerFunc(s.handleListUsers))).Methods(http.MethodGet)
	r.Handle("/admin/users/matching", platformAdmin(http.HandlerFunc(s.handleMatchingUsers))).Methods(http.MethodGet)
	r.Handle("/admin/users/{userID}", platformAdmin(http.HandlerFunc(s.handleGetUser))).Methods(http.MethodGet)
	r.Handle("/admin/actions/states", platformAdmin(http.HandlerFunc(s.handleActionStates))).Methods(http.MethodPost)

	execute := platformAdmin(http.HandlerFunc(s.handleExecuteAction))
	if bulkLimit != nil {
		execute = platformAdmin(bulkLimit(http.HandlerFunc(s.handleExecuteAction)))
	}
	r.Handle("/admin/actions/execute", execute).Methods(http.MethodPost)

	r.Handle("/admin/audit", platformAdmin(http.HandlerFunc(s.handleAuditSearch))).Methods(http.MethodGet)
	r.Handle("/admin/audit/export", platformAdmin(http.HandlerFunc(s.handleAuditExport))).Methods(http.MethodGet)
}
