package tenantauth

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/MrEthical07/tenantauth/internal/logger"
)

// Logout records a LOGOUT event for userID and revokes refreshToken. Both steps are best
// effort: failures are logged and never reported to the caller.
func (e *Engine) Logout(ctx context.Context, userID, refreshToken string) {
	e.metricInc(MetricLogout)

	if userID != "" {
		u, err := e.findUserByID(ctx, userID)
		switch {
		case err == nil:
			e.emitAudit(ctx, AuditLogout, true, userSubject(u), nil, "", nil)
		case !errors.Is(err, ErrResourceNotFound):
			e.logger(ctx).Warn("logout user lookup failed", logger.UserID(userID), zap.Error(err))
		}
	}

	if refreshToken == "" {
		return
	}
	if err := e.RevokeToken(ctx, refreshToken); err != nil {
		e.logger(ctx).Warn("logout revoke failed", logger.UserID(userID), zap.Error(err))
	}
}
