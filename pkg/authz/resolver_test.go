package authz

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T, cache *Cache) (*Resolver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewResolver(db, cache, nil), mock
}

func nameRows(names ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"name"})
	for _, n := range names {
		rows.AddRow(n)
	}
	return rows
}

func TestEffectivePermissions_UnionOfTiers(t *testing.T) {
	resolver, mock := newTestResolver(t, nil)

	mock.ExpectQuery("g.kind = 'system'").
		WithArgs(int64(1)).
		WillReturnRows(nameRows("create_group", "browse_catalog"))
	mock.ExpectQuery("gm.group_id = \\$2").
		WithArgs(int64(1), int64(10)).
		WillReturnRows(nameRows("manage_roles", "browse_catalog"))

	perms, err := resolver.EffectivePermissions(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"browse_catalog", "create_group", "manage_roles"}, perms)
}

func TestEffectivePermissions_Tier1OnlyWithoutContextGroup(t *testing.T) {
	resolver, mock := newTestResolver(t, nil)

	mock.ExpectQuery("g.kind = 'system'").
		WithArgs(int64(1)).
		WillReturnRows(nameRows("create_group"))

	perms, err := resolver.EffectivePermissions(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"create_group"}, perms)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEffectivePermissions_UnknownUserEmpty(t *testing.T) {
	resolver, mock := newTestResolver(t, nil)

	mock.ExpectQuery("g.kind = 'system'").
		WithArgs(int64(999)).
		WillReturnRows(nameRows())
	mock.ExpectQuery("gm.group_id = \\$2").
		WithArgs(int64(999), int64(10)).
		WillReturnRows(nameRows())

	perms, err := resolver.EffectivePermissions(context.Background(), 999, 10)
	require.NoError(t, err)
	assert.Empty(t, perms)
}

func TestHasPermission(t *testing.T) {
	resolver, mock := newTestResolver(t, nil)

	mock.ExpectQuery("g.kind = 'system'").
		WithArgs(int64(1)).
		WillReturnRows(nameRows())
	mock.ExpectQuery("gm.group_id = \\$2").
		WithArgs(int64(1), int64(10)).
		WillReturnRows(nameRows("manage_roles"))

	assert.True(t, resolver.HasPermission(context.Background(), 1, 10, "manage_roles"))
}

func TestHasPermission_UnknownPermissionFalse(t *testing.T) {
	resolver, mock := newTestResolver(t, nil)

	mock.ExpectQuery("g.kind = 'system'").
		WithArgs(int64(1)).
		WillReturnRows(nameRows("create_group"))
	mock.ExpectQuery("gm.group_id = \\$2").
		WithArgs(int64(1), int64(10)).
		WillReturnRows(nameRows())

	assert.False(t, resolver.HasPermission(context.Background(), 1, 10, "no_such_permission"))
}

func TestHasPermission_AbsentArgumentsFalse(t *testing.T) {
	resolver, _ := newTestResolver(t, nil)

	assert.False(t, resolver.HasPermission(context.Background(), 0, 10, "manage_roles"))
	assert.False(t, resolver.HasPermission(context.Background(), -1, 10, "manage_roles"))
	assert.False(t, resolver.HasPermission(context.Background(), 1, 10, ""))
}

func TestHasPermission_ResolutionErrorFalse(t *testing.T) {
	resolver, mock := newTestResolver(t, nil)

	mock.ExpectQuery("g.kind = 'system'").
		WithArgs(int64(1)).
		WillReturnError(assert.AnError)

	assert.False(t, resolver.HasPermission(context.Background(), 1, 10, "manage_roles"))
}

func TestEffectivePermissions_CacheHitSkipsQueries(t *testing.T) {
	cache := NewCache(16, time.Minute, nil)
	resolver, mock := newTestResolver(t, cache)

	mock.ExpectQuery("g.kind = 'system'").
		WithArgs(int64(1)).
		WillReturnRows(nameRows("create_group"))
	mock.ExpectQuery("gm.group_id = \\$2").
		WithArgs(int64(1), int64(10)).
		WillReturnRows(nameRows("manage_roles"))

	first, err := resolver.EffectivePermissions(context.Background(), 1, 10)
	require.NoError(t, err)

	// second call is served from cache; no further expectations
	second, err := resolver.EffectivePermissions(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEffectivePermissions_InvalidationForcesResolve(t *testing.T) {
	cache := NewCache(16, time.Minute, nil)
	resolver, mock := newTestResolver(t, cache)

	mock.ExpectQuery("g.kind = 'system'").
		WithArgs(int64(1)).
		WillReturnRows(nameRows())
	mock.ExpectQuery("gm.group_id = \\$2").
		WithArgs(int64(1), int64(10)).
		WillReturnRows(nameRows("manage_roles"))

	_, err := resolver.EffectivePermissions(context.Background(), 1, 10)
	require.NoError(t, err)

	resolver.InvalidateUser(context.Background(), 1)

	// role was revoked meanwhile
	mock.ExpectQuery("g.kind = 'system'").
		WithArgs(int64(1)).
		WillReturnRows(nameRows())
	mock.ExpectQuery("gm.group_id = \\$2").
		WithArgs(int64(1), int64(10)).
		WillReturnRows(nameRows())

	perms, err := resolver.EffectivePermissions(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Empty(t, perms)
	assert.NoError(t, mock.ExpectationsWereMet())
}
