package tenantauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/tenantauth/jwt"
	"github.com/MrEthical07/tenantauth/token"
)

// Refresh exchanges a refresh token for a new pair. The user and tenant are reloaded, so
// the new access token carries current roles and permissions, and a user that was locked,
// deactivated or moved to a suspended tenant since login is refused.
//
// The presented refresh token stays valid unless Token.RotateRefreshTokens is set.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := e.validateToken(ctx, refreshToken, jwt.TypeRefresh)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, AuditTokenRefreshFailure, false, auditSubject{}, err, "Invalid refresh token", nil)
		return nil, err
	}

	pair, who, err := e.refresh(ctx, claims, refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, AuditTokenRefreshFailure, false, who, err, "", nil)
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, AuditTokenRefresh, true, who, nil, "", nil)
	return pair, nil
}

func (e *Engine) refresh(ctx context.Context, claims *token.Claims, refreshToken string) (*TokenPair, auditSubject, error) {
	who := auditSubject{TenantID: claims.TenantID(), UserID: claims.UserID()}

	u, err := e.findUserByID(ctx, claims.UserID())
	if errors.Is(err, ErrResourceNotFound) {
		return nil, who, invalidToken(err)
	}
	if err != nil {
		return nil, who, err
	}
	if u.TenantID != claims.TenantID() {
		return nil, who, invalidToken(errors.New("tenant mismatch"))
	}
	who = userSubject(u)

	if e.guard.IsLocked(lockStateOf(u), e.now()) {
		return nil, who, accountLocked()
	}
	if u.Status != UserActive {
		return nil, who, accountInactive()
	}

	t, err := e.findTenantByID(ctx, u.TenantID)
	if errors.Is(err, ErrResourceNotFound) {
		return nil, who, invalidToken(err)
	}
	if err != nil {
		return nil, who, err
	}
	if t.Status != TenantActive {
		return nil, who, tenantInactive()
	}

	if e.config.Token.RotateRefreshTokens {
		if err := e.RevokeToken(ctx, refreshToken); err != nil {
			return nil, who, err
		}
	}

	pair, err := e.issuePair(ctx, t, u, false)
	return pair, who, err
}
