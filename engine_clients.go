package tenantauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/tenantauth/clients"
	"github.com/MrEthical07/tenantauth/internal"
	"github.com/MrEthical07/tenantauth/internal/logger"
)

const secretNotice = "Store the client secret securely. It will not be shown again."

var errClientStoreMissing = errors.New("client store not configured")

// CreateClientForTenant registers the default web client of tenantID. The client id is
// derived from the tenant code, so a tenant has at most one default client; a second call
// returns DuplicateResource.
func (e *Engine) CreateClientForTenant(ctx context.Context, caller Caller, tenantID string) (*ClientCredentials, error) {
	if err := caller.requireInTenant(PermClientCreate, tenantID); err != nil {
		return nil, err
	}
	store, err := e.clientStore(ctx)
	if err != nil {
		return nil, err
	}
	t, err := e.findTenantByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	clientID := clients.TenantClientID(t.Code)
	if err := e.ensureClientIDFree(ctx, store, clientID); err != nil {
		return nil, err
	}

	secret := internal.NewClientSecret()
	hash, err := e.hasher.Hash(secret)
	if err != nil {
		return nil, e.internal(ctx, "client_secret_hash", err)
	}
	c := clients.NewTenantClient(tenantInfo(t), hash, e.config.Clients, e.now().UTC())
	c.CreatedBy = caller.Username

	return e.registerClient(ctx, caller, store, c, secret)
}

// CreateClient registers a client from req. An empty ClientID falls back to the tenant's
// default client id and an empty ClientSecret is generated.
func (e *Engine) CreateClient(ctx context.Context, caller Caller, req CreateClientRequest) (*ClientCredentials, error) {
	if err := caller.requireInTenant(PermClientCreate, req.TenantID); err != nil {
		return nil, err
	}
	store, err := e.clientStore(ctx)
	if err != nil {
		return nil, err
	}
	t, err := e.findTenantByID(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	clientID := req.ClientID
	if clientID == "" {
		clientID = clients.TenantClientID(t.Code)
	}
	if err := e.ensureClientIDFree(ctx, store, clientID); err != nil {
		return nil, err
	}

	secret := req.ClientSecret
	if secret == "" {
		secret = internal.NewClientSecret()
	}
	hash, err := e.hasher.Hash(secret)
	if err != nil {
		return nil, e.internal(ctx, "client_secret_hash", err)
	}
	if req.CreatedBy == "" {
		req.CreatedBy = caller.Username
	}
	c := clients.NewCustomClient(tenantInfo(t), req, clientID, hash, e.config.Clients, e.now().UTC())

	return e.registerClient(ctx, caller, store, c, secret)
}

// RotateClientSecret replaces the secret of clientID and returns the new plaintext once.
func (e *Engine) RotateClientSecret(ctx context.Context, caller Caller, clientID string) (*ClientCredentials, error) {
	store, c, err := e.loadClientFor(ctx, caller, PermClientUpdate, clientID)
	if err != nil {
		return nil, err
	}

	secret := internal.NewClientSecret()
	hash, err := e.hasher.Hash(secret)
	if err != nil {
		return nil, e.internal(ctx, "client_secret_hash", err)
	}
	c.SecretHash = hash
	c.UpdatedAt = e.now().UTC()
	if err := e.saveClient(ctx, store, c); err != nil {
		return nil, err
	}

	e.metricInc(MetricClientSecretRotated)
	e.emitAudit(ctx, AuditClientSecretRotated, true, callerSubject(caller, c.TenantID), nil, "", clientDetails(c))
	e.logger(ctx).Info("client secret rotated", logger.ClientID(c.ClientID))
	return &ClientCredentials{
		ClientID:     c.ClientID,
		ClientSecret: secret,
		ClientName:   c.Name,
		TenantID:     c.TenantID,
		Message:      secretNotice,
	}, nil
}

func (e *Engine) SuspendClient(ctx context.Context, caller Caller, clientID string) error {
	return e.setClientStatus(ctx, caller, clientID, clients.StatusSuspended)
}

func (e *Engine) ActivateClient(ctx context.Context, caller Caller, clientID string) error {
	return e.setClientStatus(ctx, caller, clientID, clients.StatusActive)
}

// RevokeClient permanently disables clientID. The registration is kept for audit.
func (e *Engine) RevokeClient(ctx context.Context, caller Caller, clientID string) error {
	return e.setClientStatus(ctx, caller, clientID, clients.StatusRevoked)
}

// DeleteClient removes the registration of clientID.
func (e *Engine) DeleteClient(ctx context.Context, caller Caller, clientID string) error {
	store, c, err := e.loadClientFor(ctx, caller, PermClientDelete, clientID)
	if err != nil {
		return err
	}

	sctx, cancel := e.storeContext(ctx)
	err = store.Delete(sctx, c.ID)
	cancel()
	if err != nil {
		return e.storeError(ctx, "delete_client", "Client", err)
	}

	e.emitAudit(ctx, AuditClientDeleted, true, callerSubject(caller, c.TenantID), nil, "", clientDetails(c))
	e.logger(ctx).Info("client deleted", logger.ClientID(c.ClientID))
	return nil
}

// ListTenantClients returns every registration owned by tenantID.
func (e *Engine) ListTenantClients(ctx context.Context, caller Caller, tenantID string) ([]*clients.Client, error) {
	if err := caller.requireInTenant(PermClientRead, tenantID); err != nil {
		return nil, err
	}
	store, err := e.clientStore(ctx)
	if err != nil {
		return nil, err
	}

	sctx, cancel := e.storeContext(ctx)
	defer cancel()
	list, err := store.ListByTenant(sctx, tenantID)
	if err != nil {
		return nil, e.storeError(ctx, "list_clients", "Client", err)
	}
	return list, nil
}

// GetClient returns the registration of clientID.
func (e *Engine) GetClient(ctx context.Context, caller Caller, clientID string) (*clients.Client, error) {
	_, c, err := e.loadClientFor(ctx, caller, PermClientRead, clientID)
	return c, err
}

func (e *Engine) clientStore(ctx context.Context) (clients.Store, error) {
	if e.clients == nil {
		return nil, e.internal(ctx, "client_store", errClientStoreMissing)
	}
	return e.clients, nil
}

// loadClientFor resolves clientID and checks perm in the client's tenant. Platform clients
// are visible to platform administrators only.
func (e *Engine) loadClientFor(ctx context.Context, caller Caller, perm, clientID string) (clients.Store, *clients.Client, error) {
	if err := caller.require(perm); err != nil {
		return nil, nil, err
	}
	store, err := e.clientStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	sctx, cancel := e.storeContext(ctx)
	c, err := store.FindByClientID(sctx, clientID)
	cancel()
	if err != nil {
		return nil, nil, e.storeError(ctx, "find_client", "Client", err)
	}

	if c.IsPlatform() {
		if !caller.isSystemAdmin() {
			return nil, nil, forbidden(CodeForbidden, "Platform clients require "+PermSystemAdmin)
		}
		return store, c, nil
	}
	if err := caller.requireInTenant(perm, c.TenantID); err != nil {
		return nil, nil, err
	}
	return store, c, nil
}

func (e *Engine) ensureClientIDFree(ctx context.Context, store clients.Store, clientID string) error {
	sctx, cancel := e.storeContext(ctx)
	defer cancel()
	_, err := store.FindByClientID(sctx, clientID)
	switch {
	case err == nil:
		return duplicate("Client " + clientID)
	case errors.Is(err, clients.ErrNotFound):
		return nil
	default:
		return e.storeError(ctx, "find_client", "Client", err)
	}
}

func (e *Engine) registerClient(ctx context.Context, caller Caller, store clients.Store, c *clients.Client, secret string) (*ClientCredentials, error) {
	if err := e.saveClient(ctx, store, c); err != nil {
		return nil, err
	}

	e.metricInc(MetricClientCreated)
	e.emitAudit(ctx, AuditClientCreated, true, callerSubject(caller, c.TenantID), nil, "", clientDetails(c))
	e.logger(ctx).Info("client registered", logger.ClientID(c.ClientID), logger.TenantID(c.TenantID))
	return &ClientCredentials{
		ClientID:     c.ClientID,
		ClientSecret: secret,
		ClientName:   c.Name,
		TenantID:     c.TenantID,
		Message:      secretNotice,
	}, nil
}

func (e *Engine) saveClient(ctx context.Context, store clients.Store, c *clients.Client) error {
	sctx, cancel := e.storeContext(ctx)
	defer cancel()
	if err := store.Save(sctx, c); err != nil {
		return e.storeError(ctx, "save_client", "Client "+c.ClientID, err)
	}
	return nil
}

func (e *Engine) setClientStatus(ctx context.Context, caller Caller, clientID string, status clients.Status) error {
	store, c, err := e.loadClientFor(ctx, caller, PermClientUpdate, clientID)
	if err != nil {
		return err
	}
	previous := c.Status
	c.Status = status
	c.UpdatedAt = e.now().UTC()
	if err := e.saveClient(ctx, store, c); err != nil {
		return err
	}

	e.metricInc(MetricClientStatusChanged)
	e.emitAudit(ctx, AuditClientStatusChanged, true, callerSubject(caller, c.TenantID), nil, "", func() map[string]string {
		return map[string]string{"client_id": c.ClientID, "from": string(previous), "to": string(status)}
	})
	return nil
}

func tenantInfo(t *Tenant) clients.TenantInfo {
	return clients.TenantInfo{ID: t.ID, Code: t.Code, Name: t.Name}
}

func callerSubject(c Caller, tenantID string) auditSubject {
	return auditSubject{TenantID: tenantID, UserID: c.UserID, Username: c.Username}
}

func clientDetails(c *clients.Client) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"client_id": c.ClientID, "client_name": c.Name}
	}
}
