package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MrEthical07/tenantauth"
)

const roleColumns = `r.id, coalesce(r.tenant_id, ''), r.code, r.name, r.description, r.system_role,
	r.permissions, r.created_at, r.updated_at`

// ListRoles returns system roles first, then the roles of tenantID, each group by code.
func (s *Store) ListRoles(ctx context.Context, tenantID string) ([]tenantauth.Role, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles r
		WHERE r.system_role OR r.tenant_id = $1
		ORDER BY r.system_role DESC, r.code`, tenantID)
	if err != nil {
		return nil, err
	}
	return collectRoles(rows)
}

func (s *Store) FindRole(ctx context.Context, id string) (*tenantauth.Role, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles r WHERE r.id = $1`, id)
	if err != nil {
		return nil, err
	}
	roles, err := collectRoles(rows)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, tenantauth.ErrNotFound
	}
	return &roles[0], nil
}

// CreateRole returns ErrConflict when the tenant already has a role with the same code.
func (s *Store) CreateRole(ctx context.Context, role *tenantauth.Role) error {
	now := time.Now().UTC()
	if role.CreatedAt.IsZero() {
		role.CreatedAt = now
	}
	if role.UpdatedAt.IsZero() {
		role.UpdatedAt = role.CreatedAt
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO roles (id, tenant_id, code, name, description, system_role, permissions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		role.ID, nullText(role.TenantID), role.Code, role.Name, role.Description, role.System,
		nonNil(role.Permissions), role.CreatedAt, role.UpdatedAt)
	return mapError(err)
}

func (s *Store) UpdateRole(ctx context.Context, role *tenantauth.Role) error {
	updatedAt := role.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE roles SET name = $2, description = $3, updated_at = $4 WHERE id = $1`,
		role.ID, role.Name, role.Description, updatedAt)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return tenantauth.ErrNotFound
	}
	return nil
}

// DeleteRole returns ErrRoleInUse while user_roles still references the role.
func (s *Store) DeleteRole(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if isForeignKeyViolation(err) {
		return tenantauth.ErrRoleInUse
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return tenantauth.ErrNotFound
	}
	return nil
}

func (s *Store) SetRolePermissions(ctx context.Context, roleID string, permissions []string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE roles SET permissions = $2, updated_at = now() WHERE id = $1`, roleID, nonNil(permissions))
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return tenantauth.ErrNotFound
	}
	return nil
}

func collectRoles(rows pgx.Rows) ([]tenantauth.Role, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (tenantauth.Role, error) {
		var r tenantauth.Role
		err := row.Scan(&r.ID, &r.TenantID, &r.Code, &r.Name, &r.Description, &r.System,
			&r.Permissions, &r.CreatedAt, &r.UpdatedAt)
		return r, err
	})
}
