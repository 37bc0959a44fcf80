package tenantauth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MrEthical07/tenantauth/internal/logger"
	"github.com/MrEthical07/tenantauth/permission"
)

var errRoleStoreMissing = errors.New("role store not configured")

// RoleInput describes a tenant role to create.
type RoleInput struct {
	Code        string
	Name        string
	Description string
	Permissions []string
}

// ListRoles returns the catalog visible to tenantID: system roles plus the tenant's own.
func (e *Engine) ListRoles(ctx context.Context, caller Caller, tenantID string) ([]Role, error) {
	if err := caller.requireInTenant(PermRoleRead, tenantID); err != nil {
		return nil, err
	}
	store, err := e.roleStore(ctx)
	if err != nil {
		return nil, err
	}

	sctx, cancel := e.storeContext(ctx)
	defer cancel()
	roles, err := store.ListRoles(sctx, tenantID)
	if err != nil {
		return nil, e.storeError(ctx, "list_roles", "Role", err)
	}
	return roles, nil
}

// CreateRole adds a tenant role. A code already used in the tenant is DuplicateResource.
func (e *Engine) CreateRole(ctx context.Context, caller Caller, tenantID string, in RoleInput) (*Role, error) {
	if err := caller.requireInTenant(PermRoleManage, tenantID); err != nil {
		return nil, err
	}
	store, err := e.roleStore(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := e.findTenantByID(ctx, tenantID); err != nil {
		return nil, err
	}
	perms, err := e.checkPermissionCodes(in.Permissions)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	role := &Role{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Code:        strings.TrimSpace(in.Code),
		Name:        in.Name,
		Description: in.Description,
		Permissions: perms,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	sctx, cancel := e.storeContext(ctx)
	err = store.CreateRole(sctx, role)
	cancel()
	if err != nil {
		return nil, e.storeError(ctx, "create_role", "Role "+role.Code, err)
	}

	e.emitAudit(ctx, AuditRoleCreated, true, callerSubject(caller, tenantID), nil, "", roleDetails(role))
	e.logger(ctx).Info("role created", logger.TenantID(tenantID), zap.String("role", role.Code))
	return role, nil
}

// UpdateRole changes the name and description of a tenant role.
func (e *Engine) UpdateRole(ctx context.Context, caller Caller, roleID, name, description string) (*Role, error) {
	store, role, err := e.loadMutableRole(ctx, caller, roleID, "System roles cannot be modified")
	if err != nil {
		return nil, err
	}
	role.Name = name
	role.Description = description
	role.UpdatedAt = e.now().UTC()

	sctx, cancel := e.storeContext(ctx)
	err = store.UpdateRole(sctx, role)
	cancel()
	if err != nil {
		return nil, e.storeError(ctx, "update_role", "Role", err)
	}

	e.emitAudit(ctx, AuditRoleUpdated, true, callerSubject(caller, role.TenantID), nil, "", roleDetails(role))
	return role, nil
}

// DeleteRole removes a tenant role. A role still assigned to users is Forbidden with
// code ROLE_IN_USE.
func (e *Engine) DeleteRole(ctx context.Context, caller Caller, roleID string) error {
	store, role, err := e.loadMutableRole(ctx, caller, roleID, "System roles cannot be deleted")
	if err != nil {
		return err
	}

	sctx, cancel := e.storeContext(ctx)
	err = store.DeleteRole(sctx, roleID)
	cancel()
	if errors.Is(err, ErrRoleInUse) {
		return forbidden(CodeRoleInUse, "Cannot delete role that is assigned to users")
	}
	if err != nil {
		return e.storeError(ctx, "delete_role", "Role", err)
	}

	e.emitAudit(ctx, AuditRoleDeleted, true, callerSubject(caller, role.TenantID), nil, "", roleDetails(role))
	e.logger(ctx).Info("role deleted", logger.TenantID(role.TenantID), zap.String("role", role.Code))
	return nil
}

// AssignPermissions replaces the permission set of a tenant role. Users holding the role see
// the change in tokens issued afterwards.
func (e *Engine) AssignPermissions(ctx context.Context, caller Caller, roleID string, codes []string) (*Role, error) {
	store, role, err := e.loadMutableRole(ctx, caller, roleID, "System role permissions cannot be modified")
	if err != nil {
		return nil, err
	}
	perms, err := e.checkPermissionCodes(codes)
	if err != nil {
		return nil, err
	}

	sctx, cancel := e.storeContext(ctx)
	err = store.SetRolePermissions(sctx, roleID, perms)
	cancel()
	if err != nil {
		return nil, e.storeError(ctx, "assign_permissions", "Role", err)
	}
	role.Permissions = perms
	role.UpdatedAt = e.now().UTC()

	e.emitAudit(ctx, AuditRolePermissionsChanged, true, callerSubject(caller, role.TenantID), nil, "", func() map[string]string {
		return map[string]string{"role": role.Code, "permissions": strings.Join(perms, ",")}
	})
	return role, nil
}

func (e *Engine) roleStore(ctx context.Context) (RoleStore, error) {
	if e.roles == nil {
		return nil, e.internal(ctx, "role_store", errRoleStoreMissing)
	}
	return e.roles, nil
}

// loadMutableRole resolves roleID for a write. System roles are refused with
// SYSTEM_ROLE_IMMUTABLE and immutableMsg.
func (e *Engine) loadMutableRole(ctx context.Context, caller Caller, roleID, immutableMsg string) (RoleStore, *Role, error) {
	if err := caller.require(PermRoleManage); err != nil {
		return nil, nil, err
	}
	store, err := e.roleStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	sctx, cancel := e.storeContext(ctx)
	role, err := store.FindRole(sctx, roleID)
	cancel()
	if err != nil {
		return nil, nil, e.storeError(ctx, "find_role", "Role", err)
	}
	if role.System {
		return nil, nil, forbidden(CodeSystemRoleImmutable, immutableMsg)
	}
	if err := caller.requireInTenant(PermRoleManage, role.TenantID); err != nil {
		return nil, nil, err
	}
	return store, role, nil
}

// checkPermissionCodes validates and deduplicates codes, preserving order. With a
// registered catalog, unknown codes are ResourceNotFound.
func (e *Engine) checkPermissionCodes(codes []string) ([]string, error) {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if _, dup := seen[c]; dup {
			continue
		}
		if !permission.Valid(c) || (e.catalog != nil && !e.catalog.Known(c)) {
			return nil, notFound("Permission " + c)
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

func roleDetails(r *Role) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"role": r.Code, "role_id": r.ID}
	}
}
