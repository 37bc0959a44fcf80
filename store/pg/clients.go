package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrEthical07/tenantauth/clients"
)

const clientColumns = `id, client_id, secret_hash, coalesce(tenant_id, ''), name, auth_methods, grant_types,
	redirect_uris, post_logout_redirect_uris, scopes, access_token_ttl_minutes, refresh_token_ttl_days,
	require_proof_key, require_consent, reuse_refresh_tokens, status, created_by, created_at, updated_at`

// Clients is the PostgreSQL clients.Store.
type Clients struct {
	pool *pgxpool.Pool
}

var _ clients.Store = (*Clients)(nil)

func NewClients(pool *pgxpool.Pool) *Clients { return &Clients{pool: pool} }

func (s *Clients) FindByID(ctx context.Context, id string) (*clients.Client, error) {
	return s.findOne(ctx, `SELECT `+clientColumns+` FROM oauth2_clients WHERE id = $1`, id)
}

func (s *Clients) FindByClientID(ctx context.Context, clientID string) (*clients.Client, error) {
	return s.findOne(ctx, `SELECT `+clientColumns+` FROM oauth2_clients WHERE client_id = $1`, clientID)
}

// Save upserts by ID. A client id held by another registration is clients.ErrDuplicate.
func (s *Clients) Save(ctx context.Context, c *clients.Client) error {
	now := time.Now().UTC()
	createdAt, updatedAt := c.CreatedAt, c.UpdatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	if updatedAt.IsZero() {
		updatedAt = now
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO oauth2_clients (id, client_id, secret_hash, tenant_id, name, auth_methods, grant_types,
			redirect_uris, post_logout_redirect_uris, scopes, access_token_ttl_minutes, refresh_token_ttl_days,
			require_proof_key, require_consent, reuse_refresh_tokens, status, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO UPDATE SET
			client_id = EXCLUDED.client_id, secret_hash = EXCLUDED.secret_hash, tenant_id = EXCLUDED.tenant_id,
			name = EXCLUDED.name, auth_methods = EXCLUDED.auth_methods, grant_types = EXCLUDED.grant_types,
			redirect_uris = EXCLUDED.redirect_uris, post_logout_redirect_uris = EXCLUDED.post_logout_redirect_uris,
			scopes = EXCLUDED.scopes, access_token_ttl_minutes = EXCLUDED.access_token_ttl_minutes,
			refresh_token_ttl_days = EXCLUDED.refresh_token_ttl_days, require_proof_key = EXCLUDED.require_proof_key,
			require_consent = EXCLUDED.require_consent, reuse_refresh_tokens = EXCLUDED.reuse_refresh_tokens,
			status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`,
		c.ID, c.ClientID, c.SecretHash, nullText(c.TenantID), c.Name, nonNil(c.AuthMethods), nonNil(c.GrantTypes),
		nonNil(c.RedirectURIs), nonNil(c.PostLogoutRedirectURIs), nonNil(c.Scopes), c.AccessTokenTTLMinutes,
		c.RefreshTokenTTLDays, c.RequireProofKey, c.RequireConsent, c.ReuseRefreshTokens, string(c.Status),
		c.CreatedBy, createdAt, updatedAt)
	if isUniqueViolation(err) {
		return clients.ErrDuplicate
	}
	return err
}

func (s *Clients) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM oauth2_clients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return clients.ErrNotFound
	}
	return nil
}

// ListByTenant returns the clients of tenantID ordered by client id.
func (s *Clients) ListByTenant(ctx context.Context, tenantID string) ([]*clients.Client, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+clientColumns+` FROM oauth2_clients
		WHERE coalesce(tenant_id, '') = $1 ORDER BY client_id`, tenantID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanClient)
}

func (s *Clients) findOne(ctx context.Context, sql string, arg string) (*clients.Client, error) {
	rows, err := s.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, err
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanClient)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, clients.ErrNotFound
	}
	return c, err
}

func scanClient(row pgx.CollectableRow) (*clients.Client, error) {
	var (
		c      clients.Client
		status string
	)
	err := row.Scan(&c.ID, &c.ClientID, &c.SecretHash, &c.TenantID, &c.Name, &c.AuthMethods, &c.GrantTypes,
		&c.RedirectURIs, &c.PostLogoutRedirectURIs, &c.Scopes, &c.AccessTokenTTLMinutes, &c.RefreshTokenTTLDays,
		&c.RequireProofKey, &c.RequireConsent, &c.ReuseRefreshTokens, &status, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Status = clients.Status(status)
	return &c, nil
}
