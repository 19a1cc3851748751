package groups

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildhall-io/guildhall/pkg/errdefs"
)

func newTestService(t *testing.T) (*PostgresService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresService(db), mock
}

func groupRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "kind", "visibility", "show_member_list",
		"description", "created_by", "created_at", "updated_at",
	})
}

func TestCreateGroup_ProvisionsMandatoryRoles(t *testing.T) {
	service, mock := newTestService(t)

	now := time.Now()
	creator := int64(7)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO groups").
		WithArgs("Go Study Circle", VisibilityPublic, "weekly readings", creator).
		WillReturnRows(groupRows().AddRow(1, "Go Study Circle", "engagement", "public", true, "weekly readings", creator, now, now))
	mock.ExpectQuery("SELECT id, name, display_name").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "display_name", "description"}).
			AddRow(10, "member", "Member", "Baseline membership").
			AddRow(11, "steward", "Steward", "Full group leadership"))
	// member role
	mock.ExpectQuery("INSERT INTO group_roles").
		WithArgs(int64(1), "member", "Member", "Baseline membership", int64(10), creator).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(100))
	mock.ExpectExec("INSERT INTO group_role_permissions").
		WithArgs(int64(100), int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// steward role
	mock.ExpectQuery("INSERT INTO group_roles").
		WithArgs(int64(1), "steward", "Steward", "Full group leadership", int64(11), creator).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(101))
	mock.ExpectExec("INSERT INTO group_role_permissions").
		WithArgs(int64(101), int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 8))
	mock.ExpectExec("INSERT INTO group_memberships").
		WithArgs(int64(1), creator).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO user_group_roles").
		WithArgs(int64(1), creator, int64(101)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	group, err := service.CreateGroup(context.Background(), "Go Study Circle", "weekly readings", VisibilityPublic, creator)
	require.NoError(t, err)
	assert.Equal(t, int64(1), group.ID)
	assert.Equal(t, KindEngagement, group.Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateGroup_DuplicateName(t *testing.T) {
	service, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO groups").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	_, err := service.CreateGroup(context.Background(), "Taken", "", VisibilityPublic, 1)
	assert.True(t, errdefs.IsConflict(err))
}

func TestCreateGroup_RequiresSeededCatalog(t *testing.T) {
	service, mock := newTestService(t)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO groups").
		WillReturnRows(groupRows().AddRow(1, "g", "engagement", "public", true, "", int64(1), now, now))
	mock.ExpectQuery("SELECT id, name, display_name").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "display_name", "description"}))
	mock.ExpectRollback()

	_, err := service.CreateGroup(context.Background(), "g", "", VisibilityPublic, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed the catalog")
}

func TestGetGroup_NotFound(t *testing.T) {
	service, mock := newTestService(t)

	mock.ExpectQuery("SELECT id, name, kind").
		WithArgs(int64(99)).
		WillReturnRows(groupRows())

	_, err := service.GetGroup(context.Background(), 99)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestListGroups_KindFilter(t *testing.T) {
	service, mock := newTestService(t)

	now := time.Now()
	mock.ExpectQuery("SELECT id, name, kind .* WHERE kind").
		WithArgs(KindSystem).
		WillReturnRows(groupRows().
			AddRow(1, SystemGroupAllMembers, "system", "private", false, "", nil, now, now).
			AddRow(2, SystemGroupAdministrators, "system", "private", false, "", nil, now, now))

	result, err := service.ListGroups(context.Background(), KindSystem)
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, KindSystem, result[0].Kind)
}

func TestUpdateGroup_PartialFields(t *testing.T) {
	service, mock := newTestService(t)

	now := time.Now()
	visibility := VisibilityPrivate
	mock.ExpectQuery("UPDATE groups SET visibility").
		WithArgs(visibility, int64(1)).
		WillReturnRows(groupRows().AddRow(1, "g", "engagement", "private", true, "", int64(1), now, now))

	group, err := service.UpdateGroup(context.Background(), 1, UpdateGroupRequest{Visibility: &visibility})
	require.NoError(t, err)
	assert.Equal(t, VisibilityPrivate, group.Visibility)
}

func TestDeleteGroup_SystemGroupForbidden(t *testing.T) {
	service, mock := newTestService(t)

	now := time.Now()
	mock.ExpectQuery("SELECT id, name, kind").
		WithArgs(int64(1)).
		WillReturnRows(groupRows().AddRow(1, SystemGroupAllMembers, "system", "private", false, "", nil, now, now))

	err := service.DeleteGroup(context.Background(), 1, 7)
	assert.True(t, errdefs.IsForbidden(err))
}

func TestDeleteGroup(t *testing.T) {
	service, mock := newTestService(t)

	now := time.Now()
	mock.ExpectQuery("SELECT id, name, kind").
		WithArgs(int64(1)).
		WillReturnRows(groupRows().AddRow(1, "g", "engagement", "public", true, "", int64(1), now, now))
	mock.ExpectExec("DELETE FROM groups").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, service.DeleteGroup(context.Background(), 1, 7))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBootstrapSystemGroups_CreatesMissing(t *testing.T) {
	service, mock := newTestService(t)

	// "All Members" does not exist yet
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM groups WHERE name").
		WithArgs(SystemGroupAllMembers).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("INSERT INTO groups").
		WithArgs(SystemGroupAllMembers, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery("SELECT id FROM group_roles").
		WithArgs(int64(1), "baseline").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("INSERT INTO group_roles").
		WithArgs(int64(1), "baseline", "Baseline").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))
	for i := 0; i < 3; i++ {
		mock.ExpectExec("INSERT INTO group_role_permissions").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	// "Platform Administrators" already exists
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM groups WHERE name").
		WithArgs(SystemGroupAdministrators).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	mock.ExpectQuery("SELECT id FROM group_roles").
		WithArgs(int64(2), "administrator").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(20))
	mock.ExpectExec("INSERT INTO group_role_permissions").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, service.BootstrapSystemGroups(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddToSystemGroup(t *testing.T) {
	service, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM groups WHERE name").
		WithArgs(SystemGroupAllMembers).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec("INSERT INTO group_memberships").
		WithArgs(int64(1), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO user_group_roles").
		WithArgs(int64(1), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, service.AddToSystemGroup(context.Background(), SystemGroupAllMembers, 5))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddToSystemGroup_NotBootstrapped(t *testing.T) {
	service, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM groups WHERE name").
		WithArgs(SystemGroupAllMembers).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := service.AddToSystemGroup(context.Background(), SystemGroupAllMembers, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not bootstrapped")
}
