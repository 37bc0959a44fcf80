package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MrEthical07/tenantauth"
)

const tenantColumns = `id, code, name, subdomain, status, created_at, updated_at`

const userColumns = `id, tenant_id, username, email, first_name, last_name, password_hash, status,
	failed_login_attempts, last_failed_login_at, locked_until, password_changed_at,
	must_change_password, last_login_at, last_login_ip, version, created_at, updated_at`

/* ==== Tenants ==== */

func (s *Store) FindTenantByCode(ctx context.Context, code string) (*tenantauth.Tenant, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE upper(code) = upper($1)`, code)
	return scanTenant(row)
}

func (s *Store) FindTenantByID(ctx context.Context, id string) (*tenantauth.Tenant, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	return scanTenant(row)
}

// PutTenant inserts or replaces t. A code held by another tenant is ErrConflict.
func (s *Store) PutTenant(ctx context.Context, t tenantauth.Tenant) error {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tenants (id, code, name, subdomain, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code, name = EXCLUDED.name, subdomain = EXCLUDED.subdomain,
			status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`,
		t.ID, t.Code, t.Name, t.Subdomain, string(t.Status), t.CreatedAt, now)
	return mapError(err)
}

func (s *Store) UpdateTenantStatus(ctx context.Context, tenantID string, status tenantauth.TenantStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tenants SET status = $2, updated_at = now() WHERE id = $1`, tenantID, string(status))
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return tenantauth.ErrNotFound
	}
	return nil
}

func scanTenant(row pgx.Row) (*tenantauth.Tenant, error) {
	var (
		t      tenantauth.Tenant
		status string
	)
	if err := row.Scan(&t.ID, &t.Code, &t.Name, &t.Subdomain, &status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, mapError(err)
	}
	t.Status = tenantauth.TenantStatus(status)
	return &t, nil
}

/* ==== Users ==== */

// FindUserByTenantAndIdentifier matches username or email case-insensitively.
func (s *Store) FindUserByTenantAndIdentifier(ctx context.Context, tenantID, identifier string) (*tenantauth.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users
		WHERE tenant_id = $1 AND (lower(username) = lower($2) OR (email <> '' AND lower(email) = lower($2)))
		ORDER BY lower(username) = lower($2) DESC
		LIMIT 1`, tenantID, identifier)
	u, err := scanUser(row)
	if err != nil {
		return nil, err
	}
	return u, s.loadRoles(ctx, s.pool, u)
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*tenantauth.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	return u, s.loadRoles(ctx, s.pool, u)
}

// SaveUser writes every column except roles when the stored version equals
// expectedVersion. Roles are managed with AssignRoles.
func (s *Store) SaveUser(ctx context.Context, u *tenantauth.User, expectedVersion int64) error {
	return saveUser(ctx, s.pool, u, expectedVersion)
}

// PutUser inserts u with version 0 and assigns roleIDs.
func (s *Store) PutUser(ctx context.Context, u tenantauth.User, roleIDs ...string) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, tenant_id, username, email, first_name, last_name, password_hash, status,
				failed_login_attempts, last_failed_login_at, locked_until, password_changed_at,
				must_change_password, last_login_at, last_login_ip, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 0, $16, $17)`,
			u.ID, u.TenantID, u.Username, u.Email, u.FirstName, u.LastName, u.PasswordHash, string(u.Status),
			u.FailedLoginAttempts, nullTime(u.LastFailedLoginAt), nullTime(u.LockedUntil), nullTime(u.PasswordChangedAt),
			u.MustChangePassword, nullTime(u.LastLoginAt), u.LastLoginIP, u.CreatedAt, now)
		if err != nil {
			return mapError(err)
		}
		return assignRoles(ctx, tx, u.ID, roleIDs)
	})
}

// AssignRoles replaces the roles held by userID.
func (s *Store) AssignRoles(ctx context.Context, userID string, roleIDs ...string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
			return err
		}
		return assignRoles(ctx, tx, userID, roleIDs)
	})
}

func assignRoles(ctx context.Context, q querier, userID string, roleIDs []string) error {
	if len(roleIDs) == 0 {
		return nil
	}
	_, err := q.Exec(ctx,
		`INSERT INTO user_roles (user_id, role_id) SELECT $1, unnest($2::text[]) ON CONFLICT DO NOTHING`,
		userID, roleIDs)
	return mapError(err)
}

func saveUser(ctx context.Context, q querier, u *tenantauth.User, expectedVersion int64) error {
	var version int64
	err := q.QueryRow(ctx, `
		UPDATE users SET
			username = $3, email = $4, first_name = $5, last_name = $6, password_hash = $7, status = $8,
			failed_login_attempts = $9, last_failed_login_at = $10, locked_until = $11,
			password_changed_at = $12, must_change_password = $13, last_login_at = $14,
			last_login_ip = $15, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING version`,
		u.ID, expectedVersion, u.Username, u.Email, u.FirstName, u.LastName, u.PasswordHash, string(u.Status),
		u.FailedLoginAttempts, nullTime(u.LastFailedLoginAt), nullTime(u.LockedUntil),
		nullTime(u.PasswordChangedAt), u.MustChangePassword, nullTime(u.LastLoginAt), u.LastLoginIP,
	).Scan(&version)
	switch {
	case err == nil:
		u.Version = version
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, u.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return tenantauth.ErrNotFound
		}
		return tenantauth.ErrVersionConflict
	default:
		return mapError(err)
	}
}

func (s *Store) loadRoles(ctx context.Context, q querier, u *tenantauth.User) error {
	rows, err := q.Query(ctx, `SELECT `+roleColumns+` FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.code`, u.ID)
	if err != nil {
		return fmt.Errorf("load roles: %w", err)
	}
	roles, err := collectRoles(rows)
	if err != nil {
		return fmt.Errorf("load roles: %w", err)
	}
	u.Roles = roles
	return nil
}

func scanUser(row pgx.Row) (*tenantauth.User, error) {
	var (
		u                                             tenantauth.User
		status                                        string
		lastFailed, lockedUntil, pwChanged, lastLogin *time.Time
	)
	err := row.Scan(&u.ID, &u.TenantID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &status,
		&u.FailedLoginAttempts, &lastFailed, &lockedUntil, &pwChanged,
		&u.MustChangePassword, &lastLogin, &u.LastLoginIP, &u.Version, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	u.Status = tenantauth.UserStatus(status)
	u.LastFailedLoginAt = derefTime(lastFailed)
	u.LockedUntil = derefTime(lockedUntil)
	u.PasswordChangedAt = derefTime(pwChanged)
	u.LastLoginAt = derefTime(lastLogin)
	return &u, nil
}

/* ==== Password history ==== */

// RecentPasswordHistory returns up to limit hashes, newest first.
func (s *Store) RecentPasswordHistory(ctx context.Context, userID string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT password_hash FROM user_password_history
		WHERE user_id = $1 ORDER BY id DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *Store) AppendAndTrimHistory(ctx context.Context, userID, hash string, keep int) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return appendHistory(ctx, tx, userID, hash, keep)
	})
}

// ChangePassword saves u, appends oldHash and trims the history in one transaction.
func (s *Store) ChangePassword(ctx context.Context, u *tenantauth.User, expectedVersion int64, oldHash string, keep int) error {
	saved := *u
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := saveUser(ctx, tx, &saved, expectedVersion); err != nil {
			return err
		}
		if oldHash == "" {
			return nil
		}
		return appendHistory(ctx, tx, u.ID, oldHash, keep)
	})
	if err != nil {
		return err
	}
	u.Version = saved.Version
	return nil
}

func appendHistory(ctx context.Context, q querier, userID, hash string, keep int) error {
	if keep < 0 {
		keep = 0
	}
	if _, err := q.Exec(ctx,
		`INSERT INTO user_password_history (user_id, password_hash) VALUES ($1, $2)`, userID, hash); err != nil {
		return mapError(err)
	}
	_, err := q.Exec(ctx, `DELETE FROM user_password_history
		WHERE user_id = $1 AND id NOT IN (
			SELECT id FROM user_password_history WHERE user_id = $1 ORDER BY id DESC LIMIT $2
		)`, userID, keep)
	return err
}
