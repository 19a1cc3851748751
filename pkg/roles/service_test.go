package roles

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildhall-io/guildhall/pkg/errdefs"
)

// stubPerms returns a fixed permission set for every lookup
type stubPerms struct {
	perms []string
}

func (s stubPerms) EffectivePermissions(context.Context, int64, int64) ([]string, error) {
	return s.perms, nil
}

// allowGuard approves everything
type allowGuard struct{}

func (allowGuard) CheckUnassign(context.Context, *sql.Tx, int64, int64, int64) error { return nil }
func (allowGuard) CheckRoleDeletion(context.Context, *sql.Tx, int64) error           { return nil }

// denyGuard rejects everything as a last-holder violation
type denyGuard struct{}

func (denyGuard) CheckUnassign(context.Context, *sql.Tx, int64, int64, int64) error {
	return errdefs.InvariantViolation("last_privileged_holder", "promote another steward first")
}
func (denyGuard) CheckRoleDeletion(context.Context, *sql.Tx, int64) error {
	return errdefs.InvariantViolation("last_privileged_holder", "role is the only source of a critical permission")
}

func newTestService(t *testing.T, perms PermissionSource, guard AssignmentGuard) (*PostgresService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresService(db, perms, guard), mock
}

func roleRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "group_id", "name", "display_name", "description",
		"template_id", "is_custom", "created_by", "created_at", "updated_at",
	})
}

func TestCreateRole_Custom(t *testing.T) {
	service, mock := newTestService(t, stubPerms{}, allowGuard{})
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO group_roles").
		WithArgs(int64(10), "archivist", "archivist", "keeps the library", nil, true, int64(1)).
		WillReturnRows(roleRows().AddRow(5, 10, "archivist", "archivist", "keeps the library", nil, true, int64(1), now, now))
	mock.ExpectCommit()

	role, err := service.CreateRole(context.Background(), 10, "archivist", "keeps the library", nil, 1)
	require.NoError(t, err)
	assert.True(t, role.IsCustom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRole_FromTemplate(t *testing.T) {
	service, mock := newTestService(t, stubPerms{}, allowGuard{})
	now := time.Now()
	templateID := int64(3)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT display_name FROM role_templates").
		WithArgs(templateID).
		WillReturnRows(sqlmock.NewRows([]string{"display_name"}).AddRow("Observer"))
	mock.ExpectQuery("INSERT INTO group_roles").
		WithArgs(int64(10), "observer", "Observer", "", &templateID, false, int64(1)).
		WillReturnRows(roleRows().AddRow(5, 10, "observer", "Observer", "", &templateID, false, int64(1), now, now))
	mock.ExpectExec("INSERT INTO group_role_permissions").
		WithArgs(int64(5), templateID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	role, err := service.CreateRole(context.Background(), 10, "observer", "", &templateID, 1)
	require.NoError(t, err)
	assert.False(t, role.IsCustom)
}

func TestCreateRole_DuplicateName(t *testing.T) {
	service, mock := newTestService(t, stubPerms{}, allowGuard{})

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO group_roles").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	_, err := service.CreateRole(context.Background(), 10, "steward", "", nil, 1)
	assert.True(t, errdefs.IsConflict(err))
}

func TestDeleteRole_TemplateDerivedForbidden(t *testing.T) {
	service, mock := newTestService(t, stubPerms{}, allowGuard{})
	now := time.Now()
	templateID := int64(3)

	mock.ExpectQuery("SELECT id, group_id").
		WithArgs(int64(5)).
		WillReturnRows(roleRows().AddRow(5, 10, "member", "Member", "", &templateID, false, nil, now, now))
	mock.ExpectQuery("SELECT permission_id").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"permission_id"}))

	err := service.DeleteRole(context.Background(), 5, 1)
	assert.True(t, errdefs.IsForbidden(err))
}

func TestDeleteRole_GuardRejects(t *testing.T) {
	service, mock := newTestService(t, stubPerms{}, denyGuard{})
	now := time.Now()

	mock.ExpectQuery("SELECT id, group_id").
		WithArgs(int64(5)).
		WillReturnRows(roleRows().AddRow(5, 10, "archivist", "archivist", "", nil, true, nil, now, now))
	mock.ExpectQuery("SELECT permission_id").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"permission_id"}).AddRow(8))
	mock.ExpectQuery("SELECT user_id FROM user_group_roles").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(2))
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := service.DeleteRole(context.Background(), 5, 1)
	assert.True(t, errdefs.IsInvariantViolation(err))
}

func TestDeleteRole_Custom(t *testing.T) {
	service, mock := newTestService(t, stubPerms{}, allowGuard{})
	now := time.Now()

	mock.ExpectQuery("SELECT id, group_id").
		WithArgs(int64(5)).
		WillReturnRows(roleRows().AddRow(5, 10, "archivist", "archivist", "", nil, true, nil, now, now))
	mock.ExpectQuery("SELECT permission_id").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"permission_id"}))
	mock.ExpectQuery("SELECT user_id FROM user_group_roles").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(2).AddRow(3))
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM group_roles").
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, service.DeleteRole(context.Background(), 5, 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignRole(t *testing.T) {
	service, mock := newTestService(t, stubPerms{}, allowGuard{})
	now := time.Now()
	granter := int64(1)

	mock.ExpectQuery("SELECT status FROM group_memberships").
		WithArgs(int64(10), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("active"))
	mock.ExpectQuery("INSERT INTO user_group_roles").
		WithArgs(int64(10), int64(2), int64(5), granter).
		WillReturnRows(sqlmock.NewRows([]string{"id", "group_id", "user_id", "role_id", "granted_by", "granted_at"}).
			AddRow(1, 10, 2, 5, &granter, now))

	a, err := service.AssignRole(context.Background(), 10, 2, 5, granter)
	require.NoError(t, err)
	assert.Equal(t, int64(5), a.RoleID)
}

func TestAssignRole_MembershipNotActive(t *testing.T) {
	service, mock := newTestService(t, stubPerms{}, allowGuard{})

	mock.ExpectQuery("SELECT status FROM group_memberships").
		WithArgs(int64(10), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("paused"))

	_, err := service.AssignRole(context.Background(), 10, 2, 5, 1)
	assert.True(t, errdefs.IsConflict(err))
}

func TestAssignRole_Duplicate(t *testing.T) {
	service, mock := newTestService(t, stubPerms{}, allowGuard{})

	mock.ExpectQuery("SELECT status FROM group_memberships").
		WithArgs(int64(10), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("active"))
	mock.ExpectQuery("INSERT INTO user_group_roles").
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := service.AssignRole(context.Background(), 10, 2, 5, 1)
	assert.True(t, errdefs.IsConflict(err))
}

func TestUnassignRole_GuardRejects(t *testing.T) {
	service, mock := newTestService(t, stubPerms{}, denyGuard{})

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := service.UnassignRole(context.Background(), 10, 2, 5, 1)
	assert.True(t, errdefs.IsInvariantViolation(err))
}

func TestUnassignRole(t *testing.T) {
	service, mock := newTestService(t, stubPerms{}, allowGuard{})

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM user_group_roles").
		WithArgs(int64(10), int64(2), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, service.UnassignRole(context.Background(), 10, 2, 5, 1))
}

func TestUnassignRole_NotAssigned(t *testing.T) {
	service, mock := newTestService(t, stubPerms{}, allowGuard{})

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM user_group_roles").
		WithArgs(int64(10), int64(2), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := service.UnassignRole(context.Background(), 10, 2, 5, 1)
	assert.True(t, errdefs.IsNotFound(err))
}
