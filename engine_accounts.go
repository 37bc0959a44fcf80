package tenantauth

import (
	"context"

	"github.com/MrEthical07/tenantauth/internal/limiters"
	"github.com/MrEthical07/tenantauth/internal/logger"
)

// UnlockAccount clears the lock status, lock expiry and failure counter of userID.
// Requires user:manage in the user's tenant.
func (e *Engine) UnlockAccount(ctx context.Context, caller Caller, userID string) error {
	if err := caller.require(PermUserManage); err != nil {
		return err
	}
	u, err := e.findUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := caller.requireInTenant(PermUserManage, u.TenantID); err != nil {
		return err
	}

	saved, err := e.updateUser(ctx, "unlock_account", u, func(x *User) bool {
		s := lockStateOf(x)
		limiters.Unlock(&s)
		applyLockState(x, s)
		return true
	})
	if err != nil {
		return err
	}

	e.metricInc(MetricAccountUnlocked)
	e.emitAudit(ctx, AuditAccountUnlocked, true, userSubject(saved), nil, "", func() map[string]string {
		return map[string]string{"trigger": "manual", "unlocked_by": caller.UserID}
	})
	e.logger(ctx).Info("account unlocked", logger.UserID(saved.ID), logger.TenantID(saved.TenantID))
	return nil
}

// GenerateTemporaryPassword returns a random password that satisfies the configured policy.
func (e *Engine) GenerateTemporaryPassword() (string, error) {
	pw, err := e.policy.GenerateTemporary()
	if err != nil {
		return "", e.internal(context.Background(), "generate_temporary_password", err)
	}
	return pw, nil
}

// ResetPasswordToTemporary replaces the password of userID with a generated one and sets
// MustChangePassword, so the next login fails with PasswordExpired until the user changes
// it. The lock state is cleared. The temporary password is returned once.
func (e *Engine) ResetPasswordToTemporary(ctx context.Context, caller Caller, userID string) (string, error) {
	if err := caller.require(PermUserManage); err != nil {
		return "", err
	}
	u, err := e.findUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if err := caller.requireInTenant(PermUserManage, u.TenantID); err != nil {
		return "", err
	}

	temp, err := e.GenerateTemporaryPassword()
	if err != nil {
		return "", err
	}
	saved, err := e.setPassword(ctx, "reset_password", u, temp, true)
	if err != nil {
		return "", err
	}
	e.metricInc(MetricPasswordResetTemporary)
	e.emitAudit(ctx, AuditPasswordReset, true, userSubject(saved), nil, "", func() map[string]string {
		return map[string]string{"reset_by": caller.UserID}
	})
	return temp, nil
}
