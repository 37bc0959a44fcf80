package tenantauth

import (
	"github.com/MrEthical07/tenantauth/permission"
	"github.com/MrEthical07/tenantauth/token"
)

// Capabilities checked by administrative operations.
const (
	PermClientCreate = "client:create"
	PermClientRead   = "client:read"
	PermClientUpdate = "client:update"
	PermClientDelete = "client:delete"
	PermRoleRead     = "role:read"
	PermRoleManage   = "role:manage"
	PermTenantManage = "tenant:manage"
	PermUserManage   = "user:manage"
	PermSystemAdmin  = "system:admin"
)

// Caller is the authenticated principal invoking an administrative operation.
// A caller holding system:admin passes every capability check and may act across tenants.
type Caller struct {
	UserID      string
	TenantID    string
	Username    string
	Permissions permission.Set
}

// CallerFromClaims builds a Caller from validated access token claims.
func CallerFromClaims(c *token.Claims) Caller {
	return Caller{
		UserID:      c.UserID(),
		TenantID:    c.TenantID(),
		Username:    c.Username(),
		Permissions: permission.NewSet(c.Permissions()...),
	}
}

func (c Caller) isSystemAdmin() bool {
	return c.Permissions.Has(PermSystemAdmin)
}

// require returns Forbidden unless the caller holds perm.
func (c Caller) require(perm string) error {
	if c.isSystemAdmin() || c.Permissions.Has(perm) {
		return nil
	}
	return forbidden(CodeForbidden, "Missing permission "+perm)
}

// requireInTenant additionally confines non-admin callers to their own tenant.
func (c Caller) requireInTenant(perm, tenantID string) error {
	if err := c.require(perm); err != nil {
		return err
	}
	if c.isSystemAdmin() || c.TenantID == tenantID {
		return nil
	}
	return forbidden(CodeForbidden, "Operation not permitted for another tenant")
}
