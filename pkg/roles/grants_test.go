package roles

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildhall-io/guildhall/pkg/errdefs"
)

func expectGetRole(mock sqlmock.Sqlmock, roleID, groupID int64, grants ...int64) {
	now := time.Now()
	mock.ExpectQuery("SELECT id, group_id").
		WithArgs(roleID).
		WillReturnRows(roleRows().AddRow(roleID, groupID, "archivist", "archivist", "", nil, true, nil, now, now))
	grantRows := sqlmock.NewRows([]string{"permission_id"})
	for _, g := range grants {
		grantRows.AddRow(g)
	}
	mock.ExpectQuery("SELECT permission_id").
		WithArgs(roleID).
		WillReturnRows(grantRows)
}

func TestSetRoleGrants_AntiEscalation(t *testing.T) {
	// editor holds only moderate_content; tries to add manage_roles
	service, mock := newTestService(t, stubPerms{perms: []string{"moderate_content"}}, allowGuard{})

	expectGetRole(mock, 5, 10)
	mock.ExpectQuery("SELECT id, name, display_name, is_critical FROM permissions").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "display_name", "is_critical"}).
			AddRow(8, "manage_roles", "Manage roles", true))

	_, err := service.SetRoleGrants(context.Background(), 5, []int64{8}, 1, false)
	require.Error(t, err)
	assert.True(t, errdefs.IsForbidden(err))
	assert.Contains(t, err.Error(), "manage_roles")
}

func TestSetRoleGrants_SelfLockoutWarning(t *testing.T) {
	// editor holds manage_roles through this role only; removing it warns
	service, mock := newTestService(t, stubPerms{perms: []string{"manage_roles"}}, allowGuard{})

	expectGetRole(mock, 5, 10, 8)
	mock.ExpectQuery("SELECT id, name, display_name, is_critical FROM permissions").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "display_name", "is_critical"}).
			AddRow(8, "manage_roles", "Manage roles", true))
	// editor is assigned to this role
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(1), int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	// not retained through any other role
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(1), int64(10), int64(5), int64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	result, err := service.SetRoleGrants(context.Background(), 5, []int64{}, 1, false)
	require.NoError(t, err)
	assert.True(t, result.LockoutWarning)
	assert.Equal(t, []string{"manage_roles"}, result.LockoutPermissions)
	// nothing persisted
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetRoleGrants_SelfLockoutConfirmed(t *testing.T) {
	service, mock := newTestService(t, stubPerms{perms: []string{"manage_roles"}}, allowGuard{})

	expectGetRole(mock, 5, 10, 8)
	mock.ExpectQuery("SELECT id, name, display_name, is_critical FROM permissions").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "display_name", "is_critical"}).
			AddRow(8, "manage_roles", "Manage roles", true))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(1), int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(1), int64(10), int64(5), int64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM group_role_permissions").
		WithArgs(int64(5), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT user_id FROM user_group_roles").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(1))

	result, err := service.SetRoleGrants(context.Background(), 5, []int64{}, 1, true)
	require.NoError(t, err)
	assert.False(t, result.LockoutWarning)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetRoleGrants_RetainedViaOtherRole_NoWarning(t *testing.T) {
	service, mock := newTestService(t, stubPerms{perms: []string{"manage_roles"}}, allowGuard{})

	expectGetRole(mock, 5, 10, 8)
	mock.ExpectQuery("SELECT id, name, display_name, is_critical FROM permissions").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "display_name", "is_critical"}).
			AddRow(8, "manage_roles", "Manage roles", true))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(1), int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	// retained: another role also grants manage_roles
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(1), int64(10), int64(5), int64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM group_role_permissions").
		WithArgs(int64(5), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT user_id FROM user_group_roles").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	result, err := service.SetRoleGrants(context.Background(), 5, []int64{}, 1, false)
	require.NoError(t, err)
	assert.False(t, result.LockoutWarning)
}

func TestSetRoleGrants_NoChange(t *testing.T) {
	service, mock := newTestService(t, stubPerms{perms: nil}, allowGuard{})

	expectGetRole(mock, 5, 10, 8)

	result, err := service.SetRoleGrants(context.Background(), 5, []int64{8}, 1, false)
	require.NoError(t, err)
	assert.False(t, result.LockoutWarning)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestComposableGrants_DisablesUnheld(t *testing.T) {
	service, mock := newTestService(t, stubPerms{perms: []string{"moderate_content"}}, allowGuard{})

	expectGetRole(mock, 5, 10, 7)
	mock.ExpectQuery("SELECT p.id, p.name, p.display_name, p.is_critical").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "display_name", "is_critical"}).
			AddRow(7, "moderate_content", "Moderate content", false).
			AddRow(8, "manage_roles", "Manage roles", true))

	options, err := service.ComposableGrants(context.Background(), 5, 1)
	require.NoError(t, err)
	require.Len(t, options, 2)

	assert.True(t, options[0].Granted)
	assert.False(t, options[0].Disabled)

	assert.False(t, options[1].Granted)
	assert.True(t, options[1].Disabled)
	assert.NotEmpty(t, options[1].Reason)
}
