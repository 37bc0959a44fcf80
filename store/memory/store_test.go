package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/clients"
)

func seed(t *testing.T) *Store {
	t.Helper()
	s := New()
	require.NoError(t, s.PutTenant(tenantauth.Tenant{ID: "t1", Code: "ACME", Name: "Acme", Status: tenantauth.TenantActive}))
	require.NoError(t, s.PutTenant(tenantauth.Tenant{ID: "t2", Code: "OTHER", Name: "Other", Status: tenantauth.TenantActive}))
	s.PutRole(tenantauth.Role{ID: "r-sys", Code: "DOCTOR", System: true, Permissions: []string{"patient:read"}})
	s.PutRole(tenantauth.Role{ID: "r-t1", TenantID: "t1", Code: "NURSE", Permissions: []string{"patient:read", "vitals:write"}})
	require.NoError(t, s.PutUser(tenantauth.User{
		ID: "u1", TenantID: "t1", Username: "drjane", Email: "jane@acme.test",
		PasswordHash: "h0", Status: tenantauth.UserActive,
	}, "r-sys"))
	return s
}

func TestFindUserByIdentifierIsTenantScoped(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	u, err := s.FindUserByTenantAndIdentifier(ctx, "t1", "drjane")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	u, err = s.FindUserByTenantAndIdentifier(ctx, "t1", "JANE@acme.test")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	_, err = s.FindUserByTenantAndIdentifier(ctx, "t2", "drjane")
	assert.ErrorIs(t, err, tenantauth.ErrNotFound)
}

func TestSaveUserVersioning(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	u, err := s.FindUserByID(ctx, "u1")
	require.NoError(t, err)
	u.FailedLoginAttempts = 2
	require.NoError(t, s.SaveUser(ctx, u, 0))
	assert.Equal(t, int64(1), u.Version)

	stale, err := s.FindUserByID(ctx, "u1")
	require.NoError(t, err)
	stale.Version = 0
	assert.ErrorIs(t, s.SaveUser(ctx, stale, 0), tenantauth.ErrVersionConflict)

	got, err := s.FindUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.FailedLoginAttempts)
}

func TestUsernameUniquePerTenant(t *testing.T) {
	s := seed(t)
	err := s.PutUser(tenantauth.User{ID: "u2", TenantID: "t1", Username: "DrJane"})
	assert.ErrorIs(t, err, tenantauth.ErrConflict)

	require.NoError(t, s.PutUser(tenantauth.User{ID: "u3", TenantID: "t2", Username: "drjane"}))
}

func TestRolesResolvedOnRead(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	require.NoError(t, s.SetRolePermissions(ctx, "r-sys", []string{"patient:read", "patient:write"}))
	u, err := s.FindUserByID(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, u.Roles, 1)
	assert.Equal(t, []string{"patient:read", "patient:write"}, u.PermissionCodes())
}

func TestHistoryNewestFirstAndTrimmed(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	for _, h := range []string{"h1", "h2", "h3", "h4"} {
		require.NoError(t, s.AppendAndTrimHistory(ctx, "u1", h, 3))
	}
	got, err := s.RecentPasswordHistory(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"h4", "h3", "h2"}, got)

	got, err = s.RecentPasswordHistory(ctx, "u1", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"h4"}, got)
}

func TestChangePasswordIsAtomic(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	u, err := s.FindUserByID(ctx, "u1")
	require.NoError(t, err)
	u.PasswordHash = "h-new"

	assert.ErrorIs(t, s.ChangePassword(ctx, u, 7, "h0", 5), tenantauth.ErrVersionConflict)
	assert.Equal(t, 0, s.HistoryLen("u1"))

	require.NoError(t, s.ChangePassword(ctx, u, 0, "h0", 5))
	got, err := s.RecentPasswordHistory(ctx, "u1", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"h0"}, got)
}

func TestRoleCatalog(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	roles, err := s.ListRoles(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.True(t, roles[0].System)

	roles, err = s.ListRoles(ctx, "t2")
	require.NoError(t, err)
	assert.Len(t, roles, 1)

	err = s.CreateRole(ctx, &tenantauth.Role{ID: "dup", TenantID: "t1", Code: "NURSE"})
	assert.ErrorIs(t, err, tenantauth.ErrConflict)

	assert.ErrorIs(t, s.DeleteRole(ctx, "r-sys"), tenantauth.ErrRoleInUse)
	require.NoError(t, s.DeleteRole(ctx, "r-t1"))
	_, err = s.FindRole(ctx, "r-t1")
	assert.ErrorIs(t, err, tenantauth.ErrNotFound)
}

func TestClients(t *testing.T) {
	cs := NewClients()
	ctx := context.Background()

	c := &clients.Client{ID: "c1", ClientID: "acme-web-client", TenantID: "t1", Scopes: []string{"openid"}}
	require.NoError(t, cs.Save(ctx, c))
	assert.ErrorIs(t, cs.Save(ctx, &clients.Client{ID: "c2", ClientID: "acme-web-client"}), clients.ErrDuplicate)

	got, err := cs.FindByClientID(ctx, "acme-web-client")
	require.NoError(t, err)
	got.Scopes[0] = "mutated"

	again, err := cs.FindByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "openid", again.Scopes[0])

	list, err := cs.ListByTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, cs.Delete(ctx, "c1"))
	_, err = cs.FindByID(ctx, "c1")
	assert.ErrorIs(t, err, clients.ErrNotFound)
}
