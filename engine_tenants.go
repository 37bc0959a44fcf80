package tenantauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/tenantauth/internal/logger"
)

var errTenantStoreMissing = errors.New("tenant store not configured")

// ActivateTenant moves tenantID to ACTIVE. Requires tenant:manage; only platform
// administrators may act on a tenant other than their own.
func (e *Engine) ActivateTenant(ctx context.Context, caller Caller, tenantID, notes string) error {
	return e.setTenantStatus(ctx, caller, tenantID, TenantActive, notes)
}

// SuspendTenant moves tenantID to SUSPENDED. Logins and refreshes in the tenant are refused
// from then on; access tokens already issued stay valid until they expire.
func (e *Engine) SuspendTenant(ctx context.Context, caller Caller, tenantID, reason string) error {
	return e.setTenantStatus(ctx, caller, tenantID, TenantSuspended, reason)
}

func (e *Engine) setTenantStatus(ctx context.Context, caller Caller, tenantID string, status TenantStatus, note string) error {
	if err := caller.requireInTenant(PermTenantManage, tenantID); err != nil {
		return err
	}
	if e.tenants == nil {
		return e.internal(ctx, "tenant_status", errTenantStoreMissing)
	}
	t, err := e.findTenantByID(ctx, tenantID)
	if err != nil {
		return err
	}
	previous := t.Status

	sctx, cancel := e.storeContext(ctx)
	err = e.tenants.UpdateTenantStatus(sctx, tenantID, status)
	cancel()
	if err != nil {
		return e.storeError(ctx, "tenant_status", "Tenant", err)
	}

	e.emitAudit(ctx, AuditTenantStatusChanged, true, auditSubject{TenantID: tenantID, UserID: caller.UserID, Username: caller.Username}, nil, "", func() map[string]string {
		return map[string]string{"from": string(previous), "to": string(status), "note": note}
	})
	e.logger(ctx).Info("tenant status changed", logger.TenantID(tenantID), logger.Reason(note))
	return nil
}
