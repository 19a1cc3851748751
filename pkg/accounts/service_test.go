package accounts

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

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "email", "display_name", "status",
		"created_at", "updated_at", "deactivated_at", "decommissioned_at",
	})
}

func TestCreateUser(t *testing.T) {
	service, mock := newTestService(t)

	now := time.Now()
	mock.ExpectQuery("INSERT INTO users").
		WithArgs("ada@example.com", "Ada").
		WillReturnRows(userRows().AddRow(1, "ada@example.com", "Ada", "active", now, now, nil, nil))

	user, err := service.CreateUser(context.Background(), "  Ada@Example.com ", "Ada")
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)
	assert.Equal(t, StatusActive, user.Status)
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	service, mock := newTestService(t)

	mock.ExpectQuery("INSERT INTO users").
		WithArgs("ada@example.com", "Ada").
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := service.CreateUser(context.Background(), "ada@example.com", "Ada")
	assert.True(t, errdefs.IsConflict(err))
}

func TestGetUser_NotFound(t *testing.T) {
	service, mock := newTestService(t)

	mock.ExpectQuery("SELECT id, email").
		WithArgs(int64(42)).
		WillReturnRows(userRows())

	_, err := service.GetUser(context.Background(), 42)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestListUsers_StatusFilterAndPagination(t *testing.T) {
	service, mock := newTestService(t)

	now := time.Now()
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM users WHERE status").
		WithArgs("active").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectQuery("SELECT id, email .* WHERE status .* LIMIT").
		WithArgs("active", 2, 2).
		WillReturnRows(userRows().
			AddRow(3, "c@example.com", "Cy", "active", now, now, nil, nil).
			AddRow(4, "d@example.com", "Dee", "active", now, now, nil, nil))

	users, total, err := service.ListUsers(context.Background(), ListFilter{
		Status: StatusActive, Page: 2, PageSize: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, users, 2)
	assert.Equal(t, int64(3), users[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListMatchingIDs_IgnoresPagination(t *testing.T) {
	service, mock := newTestService(t)

	mock.ExpectQuery("SELECT id FROM users WHERE .*ILIKE").
		WithArgs("%ada%").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(7).AddRow(9))

	ids, err := service.ListMatchingIDs(context.Background(), ListFilter{
		Search: "ada", Page: 3, PageSize: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 7, 9}, ids)
}

func TestDeactivate_RevokesSessions(t *testing.T) {
	service, mock := newTestService(t)

	mock.ExpectExec("UPDATE users").
		WithArgs(int64(1), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE user_sessions").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	changed, err := service.Deactivate(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivate_AlreadyInactive_NoOp(t *testing.T) {
	service, mock := newTestService(t)

	now := time.Now()
	mock.ExpectExec("UPDATE users").
		WithArgs(int64(1), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT id, email").
		WithArgs(int64(1)).
		WillReturnRows(userRows().AddRow(1, "a@example.com", "A", "inactive", now, now, &now, nil))

	changed, err := service.Deactivate(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestActivate_DecommissionedRejected(t *testing.T) {
	service, mock := newTestService(t)

	now := time.Now()
	mock.ExpectExec("UPDATE users").
		WithArgs(int64(1), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT id, email").
		WithArgs(int64(1)).
		WillReturnRows(userRows().AddRow(1, "a@example.com", "A", "decommissioned", now, now, nil, &now))

	_, err := service.Activate(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, errdefs.IsInvariantViolation(err))
}

func TestRestore_FromDecommissioned(t *testing.T) {
	service, mock := newTestService(t)

	mock.ExpectExec("UPDATE users").
		WithArgs(int64(1), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	changed, err := service.Restore(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestHardDelete(t *testing.T) {
	service, mock := newTestService(t)

	mock.ExpectExec("DELETE FROM users").
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, service.HardDelete(context.Background(), 9))
}

func TestHardDelete_NotFound(t *testing.T) {
	service, mock := newTestService(t)

	mock.ExpectExec("DELETE FROM users").
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := service.HardDelete(context.Background(), 9)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestGetUserBySessionToken(t *testing.T) {
	service, mock := newTestService(t)

	now := time.Now()
	mock.ExpectQuery("SELECT u.id, u.email").
		WithArgs("tok-123").
		WillReturnRows(userRows().AddRow(1, "a@example.com", "A", "active", now, now, nil, nil))

	user, err := service.GetUserBySessionToken(context.Background(), "tok-123")
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)
}

func TestGetUserBySessionToken_ExpiredOrRevoked(t *testing.T) {
	service, mock := newTestService(t)

	mock.ExpectQuery("SELECT u.id, u.email").
		WithArgs("tok-dead").
		WillReturnRows(userRows())

	_, err := service.GetUserBySessionToken(context.Background(), "tok-dead")
	assert.True(t, errdefs.IsNotFound(err))
}

func TestRevokeSessions(t *testing.T) {
	service, mock := newTestService(t)

	mock.ExpectExec("UPDATE user_sessions").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	revoked, err := service.RevokeSessions(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), revoked)
}

func TestCommonGroupCount(t *testing.T) {
	service, mock := newTestService(t)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM").
		WithArgs(sqlmock.AnyArg(), 3).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := service.CommonGroupCount(context.Background(), []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCommonGroupCount_EmptySelection(t *testing.T) {
	service, _ := newTestService(t)

	count, err := service.CommonGroupCount(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, count)
}
