package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildhall-io/guildhall/pkg/accounts"
	"github.com/guildhall-io/guildhall/pkg/adminops"
	"github.com/guildhall-io/guildhall/pkg/audit"
	"github.com/guildhall-io/guildhall/pkg/catalog"
	"github.com/guildhall-io/guildhall/pkg/contextkeys"
	"github.com/guildhall-io/guildhall/pkg/errdefs"
	"github.com/guildhall-io/guildhall/pkg/groups"
	"github.com/guildhall-io/guildhall/pkg/membership"
	"github.com/guildhall-io/guildhall/pkg/roles"
	"github.com/guildhall-io/guildhall/pkg/selection"
)

type fakeResolver struct {
	allowed map[string]bool
	perms   []string
}

func (f *fakeResolver) HasPermission(_ context.Context, userID, groupID int64, permission string) bool {
	return f.allowed[fmt.Sprintf("%d:%d:%s", userID, groupID, permission)]
}

func (f *fakeResolver) EffectivePermissions(context.Context, int64, int64) ([]string, error) {
	return f.perms, nil
}

func (f *fakeResolver) allow(userID, groupID int64, permission string) {
	if f.allowed == nil {
		f.allowed = make(map[string]bool)
	}
	f.allowed[fmt.Sprintf("%d:%d:%s", userID, groupID, permission)] = true
}

type fakeGroups struct {
	groups.Service
	create func(name, description string, visibility groups.Visibility, createdBy int64) (*groups.Group, error)
	get    func(id int64) (*groups.Group, error)
}

func (f *fakeGroups) CreateGroup(_ context.Context, name, description string, visibility groups.Visibility, createdBy int64) (*groups.Group, error) {
	return f.create(name, description, visibility, createdBy)
}

func (f *fakeGroups) GetGroup(_ context.Context, id int64) (*groups.Group, error) {
	return f.get(id)
}

type fakeMembershipSvc struct {
	membership.Service
	leave  func(groupID, userID int64) error
	remove func(groupID, userID, actorID int64) error
}

func (f *fakeMembershipSvc) Leave(_ context.Context, groupID, userID int64) error {
	return f.leave(groupID, userID)
}

func (f *fakeMembershipSvc) Remove(_ context.Context, groupID, userID, actorID int64) error {
	return f.remove(groupID, userID, actorID)
}

type fakeRoles struct {
	roles.Service
	setGrants func(roleID int64, permissionIDs []int64, actorID int64, confirm bool) (*roles.SetGrantsResult, error)
}

func (f *fakeRoles) SetRoleGrants(_ context.Context, roleID int64, permissionIDs []int64, actorID int64, confirm bool) (*roles.SetGrantsResult, error) {
	return f.setGrants(roleID, permissionIDs, actorID, confirm)
}

type fakeAccountsSvc struct {
	accounts.Service
	listCalls int
	getCalls  int
	users     []*accounts.User
	matching  []int64
}

func (f *fakeAccountsSvc) ListUsers(_ context.Context, filter accounts.ListFilter) ([]*accounts.User, int, error) {
	f.listCalls++
	return f.users, len(f.users), nil
}

func (f *fakeAccountsSvc) GetUsers(_ context.Context, ids []int64) ([]*accounts.User, error) {
	f.getCalls++
	return f.users, nil
}

func (f *fakeAccountsSvc) ListMatchingIDs(_ context.Context, filter accounts.ListFilter) ([]int64, error) {
	return f.matching, nil
}

type fakeBulk struct {
	states  map[adminops.Action]adminops.ActionState
	execute func(action adminops.Action, targetIDs []int64, actorID int64, extra adminops.Extra) (*adminops.BulkResult, error)
}

func (f *fakeBulk) ActionStates(context.Context, []int64) (map[adminops.Action]adminops.ActionState, error) {
	return f.states, nil
}

func (f *fakeBulk) Execute(_ context.Context, action adminops.Action, targetIDs []int64, actorID int64, extra adminops.Extra) (*adminops.BulkResult, error) {
	return f.execute(action, targetIDs, actorID, extra)
}

type fakeAudit struct {
	events []*audit.Event
}

func (f *fakeAudit) Search(context.Context, audit.SearchFilter) ([]*audit.Event, error) {
	return f.events, nil
}

type serverFixture struct {
	server   *Server
	router   *mux.Router
	resolver *fakeResolver
}

func newFixture(t *testing.T, opts Options) *serverFixture {
	t.Helper()

	resolver := &fakeResolver{}
	if opts.Resolver == nil {
		opts.Resolver = resolver
	} else {
		resolver = opts.Resolver.(*fakeResolver)
	}

	server := NewServer(opts)
	router := mux.NewRouter()
	server.RegisterRoutes(router, nil)
	return &serverFixture{server: server, router: router, resolver: resolver}
}

func (f *serverFixture) do(method, path string, actorID int64, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if actorID > 0 {
		req = req.WithContext(contextkeys.WithActor(req.Context(), actorID))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestCreateGroup_RequiresPlatformPermission(t *testing.T) {
	called := false
	fixture := newFixture(t, Options{
		Groups: &fakeGroups{
			create: func(name, description string, visibility groups.Visibility, createdBy int64) (*groups.Group, error) {
				called = true
				assert.Equal(t, int64(7), createdBy)
				return &groups.Group{ID: 1, Name: name, Visibility: visibility}, nil
			},
		},
	})

	rec := fixture.do(http.MethodPost, "/api/v1/groups", 7, createGroupRequest{Name: "gophers"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, called)

	fixture.resolver.allow(7, 0, catalog.PermCreateGroup)
	rec = fixture.do(http.MethodPost, "/api/v1/groups", 7, createGroupRequest{Name: "gophers"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, called)
}

func TestGetGroup(t *testing.T) {
	fixture := newFixture(t, Options{
		Groups: &fakeGroups{
			get: func(id int64) (*groups.Group, error) {
				if id != 10 {
					return nil, errdefs.NotFoundID("group", id)
				}
				return &groups.Group{ID: 10, Name: "gophers", ShowMemberList: true}, nil
			},
		},
	})

	rec := fixture.do(http.MethodGet, "/api/v1/groups/10", 0, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = fixture.do(http.MethodGet, "/api/v1/groups/99", 0, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRemoveMember_SelfIsLeave(t *testing.T) {
	leaveCalled := false
	fixture := newFixture(t, Options{
		Memberships: &fakeMembershipSvc{
			leave: func(groupID, userID int64) error {
				leaveCalled = true
				assert.Equal(t, int64(7), userID)
				return nil
			},
			remove: func(groupID, userID, actorID int64) error {
				t.Fatal("self-removal must go through Leave")
				return nil
			},
		},
	})

	rec := fixture.do(http.MethodDelete, "/api/v1/groups/10/members/7", 7, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, leaveCalled)
}

func TestRemoveMember_PeerNeedsPermission(t *testing.T) {
	fixture := newFixture(t, Options{
		Memberships: &fakeMembershipSvc{
			remove: func(groupID, userID, actorID int64) error { return nil },
		},
	})

	rec := fixture.do(http.MethodDelete, "/api/v1/groups/10/members/2", 7, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	fixture.resolver.allow(7, 10, catalog.PermRemoveMembers)
	rec = fixture.do(http.MethodDelete, "/api/v1/groups/10/members/2", 7, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRemoveMember_GuardViolationIsConflict(t *testing.T) {
	fixture := newFixture(t, Options{
		Memberships: &fakeMembershipSvc{
			remove: func(groupID, userID, actorID int64) error {
				return errdefs.InvariantViolation("last_privileged_holder", "promote another steward first")
			},
		},
	})
	fixture.resolver.allow(7, 10, catalog.PermRemoveMembers)

	rec := fixture.do(http.MethodDelete, "/api/v1/groups/10/members/2", 7, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "promote another steward")
}

func TestSetGrants_LockoutWarningRoundTrip(t *testing.T) {
	fixture := newFixture(t, Options{
		Roles: &fakeRoles{
			setGrants: func(roleID int64, permissionIDs []int64, actorID int64, confirm bool) (*roles.SetGrantsResult, error) {
				if !confirm {
					return &roles.SetGrantsResult{LockoutWarning: true, LockoutPermissions: []string{"manage_roles"}}, nil
				}
				return &roles.SetGrantsResult{}, nil
			},
		},
	})
	fixture.resolver.allow(7, 10, catalog.PermManageRoles)

	rec := fixture.do(http.MethodPut, "/api/v1/groups/10/roles/5/grants", 7,
		setGrantsRequest{PermissionIDs: []int64{1}})
	require.Equal(t, http.StatusOK, rec.Code)
	var result roles.SetGrantsResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.LockoutWarning)
	assert.Equal(t, []string{"manage_roles"}, result.LockoutPermissions)

	rec = fixture.do(http.MethodPut, "/api/v1/groups/10/roles/5/grants", 7,
		setGrantsRequest{PermissionIDs: []int64{1}, ConfirmLockout: true})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.LockoutWarning)
}

func TestAuthzCheck(t *testing.T) {
	fixture := newFixture(t, Options{})
	fixture.resolver.allow(7, 10, "moderate_content")

	rec := fixture.do(http.MethodGet, "/api/v1/authz/check?group_id=10&permission=moderate_content", 7, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"allowed":true}`, rec.Body.String())

	// anonymous checks resolve to false, never an error
	rec = fixture.do(http.MethodGet, "/api/v1/authz/check?group_id=10&permission=moderate_content", 0, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"allowed":false}`, rec.Body.String())
}

func TestAuthzCheck_InspectingOthersNeedsAdmin(t *testing.T) {
	fixture := newFixture(t, Options{})

	rec := fixture.do(http.MethodGet, "/api/v1/authz/check?user_id=3&permission=create_group", 7, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	fixture.resolver.allow(7, 0, catalog.PermAdministerPlatform)
	rec = fixture.do(http.MethodGet, "/api/v1/authz/check?user_id=3&permission=create_group", 7, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListUsers_PageCacheHit(t *testing.T) {
	pages, err := selection.NewPageCache(8)
	require.NoError(t, err)
	accts := &fakeAccountsSvc{users: []*accounts.User{{ID: 1}, {ID: 2}}}
	fixture := newFixture(t, Options{Accounts: accts, Pages: pages})
	fixture.resolver.allow(7, 0, catalog.PermAdministerPlatform)

	rec := fixture.do(http.MethodGet, "/api/v1/admin/users?status=active", 7, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, accts.listCalls)

	rec = fixture.do(http.MethodGet, "/api/v1/admin/users?status=active", 7, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, accts.listCalls, "second request should come from the page cache")
	assert.Equal(t, 1, accts.getCalls)

	pages.Invalidate()
	rec = fixture.do(http.MethodGet, "/api/v1/admin/users?status=active", 7, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, accts.listCalls)
}

func TestMatchingUsers(t *testing.T) {
	accts := &fakeAccountsSvc{matching: []int64{1, 2, 3}}
	fixture := newFixture(t, Options{Accounts: accts})
	fixture.resolver.allow(7, 0, catalog.PermAdministerPlatform)

	rec := fixture.do(http.MethodGet, "/api/v1/admin/users/matching?search=ada", 7, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_ids":[1,2,3],"total":3}`, rec.Body.String())
}

func TestExecuteAction_DestructiveNeedsConfirmation(t *testing.T) {
	executed := false
	fixture := newFixture(t, Options{
		Bulk: &fakeBulk{
			execute: func(action adminops.Action, targetIDs []int64, actorID int64, extra adminops.Extra) (*adminops.BulkResult, error) {
				executed = true
				return &adminops.BulkResult{Action: action, Succeeded: len(targetIDs), ClearSelection: true}, nil
			},
		},
	})
	fixture.resolver.allow(7, 0, catalog.PermAdministerPlatform)

	rec := fixture.do(http.MethodPost, "/api/v1/admin/actions/execute", 7,
		executeActionRequest{Action: adminops.ActionDeleteHard, UserIDs: []int64{1, 2}})
	assert.Equal(t, http.StatusPreconditionRequired, rec.Code)
	assert.Contains(t, rec.Body.String(), "Permanently delete 2 users")
	assert.False(t, executed, "nothing may mutate before confirmation")

	rec = fixture.do(http.MethodPost, "/api/v1/admin/actions/execute", 7,
		executeActionRequest{Action: adminops.ActionDeleteHard, UserIDs: []int64{1, 2}, Confirmed: true})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, executed)
}

func TestExecuteAction_PartialFailureIsMultiStatus(t *testing.T) {
	fixture := newFixture(t, Options{
		Bulk: &fakeBulk{
			execute: func(action adminops.Action, targetIDs []int64, actorID int64, extra adminops.Extra) (*adminops.BulkResult, error) {
				return &adminops.BulkResult{
					Action:    action,
					Succeeded: 1,
					Errors:    []adminops.TargetError{{UserID: 2, Message: "boom"}},
				}, errdefs.PartialFailure(1, 0, 1)
			},
		},
	})
	fixture.resolver.allow(7, 0, catalog.PermAdministerPlatform)

	rec := fixture.do(http.MethodPost, "/api/v1/admin/actions/execute", 7,
		executeActionRequest{Action: adminops.ActionLogout, UserIDs: []int64{1, 2}, Confirmed: true})
	require.Equal(t, http.StatusMultiStatus, rec.Code)

	var result adminops.BulkResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Succeeded)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, int64(2), result.Errors[0].UserID)
}

func TestExecuteAction_GroupActionNeedsGroupID(t *testing.T) {
	fixture := newFixture(t, Options{Bulk: &fakeBulk{}})
	fixture.resolver.allow(7, 0, catalog.PermAdministerPlatform)

	rec := fixture.do(http.MethodPost, "/api/v1/admin/actions/execute", 7,
		executeActionRequest{Action: adminops.ActionInvite, UserIDs: []int64{1}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActionStates(t *testing.T) {
	fixture := newFixture(t, Options{
		Bulk: &fakeBulk{
			states: map[adminops.Action]adminops.ActionState{
				adminops.ActionActivate: {Disabled: true, Reason: "all selected users are already active"},
			},
		},
	})
	fixture.resolver.allow(7, 0, catalog.PermAdministerPlatform)

	rec := fixture.do(http.MethodPost, "/api/v1/admin/actions/states", 7,
		actionStatesRequest{UserIDs: []int64{1, 2}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "already active")
}

func TestAuditExport_NDJSON(t *testing.T) {
	fixture := newFixture(t, Options{
		AuditSearch: &fakeAudit{events: []*audit.Event{
			{ID: 1, EventType: audit.EventTypeBulkExecute, Status: audit.EventStatusSuccess},
		}},
	})
	fixture.resolver.allow(7, 0, catalog.PermAdministerPlatform)

	rec := fixture.do(http.MethodGet, "/api/v1/admin/audit/export", 7, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "bulk.execute")
}

func TestHiddenMemberList(t *testing.T) {
	fixture := newFixture(t, Options{
		Groups: &fakeGroups{
			get: func(id int64) (*groups.Group, error) {
				return &groups.Group{ID: id, Name: "private circle", ShowMemberList: false}, nil
			},
		},
	})

	rec := fixture.do(http.MethodGet, "/api/v1/groups/10/members", 7, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
