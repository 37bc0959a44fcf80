package tenantauth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/tenantauth/internal/logger"
	"github.com/MrEthical07/tenantauth/jwt"
	"github.com/MrEthical07/tenantauth/token"
)

// ValidateAccessToken checks the denylist, signature, expiry and token type of an access
// token. Every rejection is InvalidToken; the underlying *token.ValidationError is kept as
// the wrapped cause.
func (e *Engine) ValidateAccessToken(ctx context.Context, tok string) (*token.Claims, error) {
	start := time.Now()
	defer e.observe(MetricValidateLatency, start)
	return e.validateToken(ctx, tok, jwt.TypeAccess)
}

// RevokeToken denylists tok until it would have expired. An expired token is a no-op.
func (e *Engine) RevokeToken(ctx context.Context, tok string) error {
	cctx, cancel := e.cacheContext(ctx)
	defer cancel()

	err := e.tokens.Revoke(cctx, tok)
	var ve *token.ValidationError
	switch {
	case err == nil:
		e.metricInc(MetricTokenRevoked)
		return nil
	case errors.As(err, &ve):
		return invalidToken(err)
	default:
		return e.storeError(ctx, "revoke_token", "Token", err)
	}
}

func (e *Engine) validateToken(ctx context.Context, tok, want string) (*token.Claims, error) {
	cctx, cancel := e.cacheContext(ctx)
	defer cancel()

	var (
		claims *token.Claims
		err    error
	)
	if want == jwt.TypeRefresh {
		claims, err = e.tokens.ValidateRefresh(cctx, tok)
	} else {
		claims, err = e.tokens.ValidateAccess(cctx, tok)
	}
	if err != nil {
		e.metricInc(MetricTokenRejected)
		reason := "unknown"
		var ve *token.ValidationError
		if errors.As(err, &ve) {
			reason = string(ve.Reason)
		}
		e.logger(ctx).Debug("token rejected", logger.Reason(reason))
		return nil, invalidToken(err)
	}
	return claims, nil
}
