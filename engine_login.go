package tenantauth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/tenantauth/internal/limiters"
	"github.com/MrEthical07/tenantauth/internal/logger"
)

// Returned by recordLoginSuccess when the record reloaded after a version conflict no
// longer admits the login.
var (
	errLockedDuringLogin   = errors.New("account locked during login")
	errInactiveDuringLogin = errors.New("account deactivated during login")
)

// Login authenticates identifier (username or email) with pw inside the tenant identified
// by tenantCode and returns a token pair.
//
// Checks run in a fixed order: tenant, user, lockout, password, account status, password
// expiry. Unknown users and wrong passwords both return InvalidCredentials. A wrong password
// counts towards lockout; the attempt that reaches the threshold locks the account and
// returns AccountLocked.
// The caller IP from WithClientIP is recorded as the last login IP.
func (e *Engine) Login(ctx context.Context, tenantCode, identifier, pw string) (*TokenPair, error) {
	start := time.Now()
	defer e.observe(MetricLoginLatency, start)

	tenantCode = strings.TrimSpace(tenantCode)
	if tenantCode == "" {
		return nil, tenantRequired()
	}
	identifier = strings.TrimSpace(identifier)

	t, err := e.findTenantByCode(ctx, tenantCode)
	if err != nil {
		return nil, err
	}
	if t.Status != TenantActive {
		e.metricInc(MetricLoginFailure)
		err := tenantInactive()
		e.emitAudit(ctx, AuditLoginFailure, false, auditSubject{TenantID: t.ID, Username: identifier}, err, "Tenant not active", nil)
		return nil, err
	}

	sctx, cancel := e.storeContext(ctx)
	u, err := e.credentials.FindUserByTenantAndIdentifier(sctx, t.ID, identifier)
	cancel()
	if err == nil && u.TenantID != t.ID {
		err = ErrNotFound
	}
	if errors.Is(err, ErrNotFound) {
		e.dummyVerify(pw)
		e.metricInc(MetricLoginUnknownUser)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditLoginFailure, false, auditSubject{TenantID: t.ID, Username: identifier}, errUserNotFound, "User not found", nil)
		return nil, invalidCredentials()
	}
	if err != nil {
		return nil, e.storeError(ctx, "login_find_user", "User", err)
	}

	now := e.now()

	u, err = e.releaseExpiredLock(ctx, u, now)
	if err != nil {
		return nil, err
	}
	if e.guard.IsLocked(lockStateOf(u), now) {
		e.metricInc(MetricLoginLockedRejected)
		err := accountLocked()
		e.emitAudit(ctx, AuditLoginFailure, false, userSubject(u), err, "Account locked", nil)
		return nil, err
	}

	ok, verr := e.hasher.Verify(pw, u.PasswordHash)
	if verr != nil {
		e.logger(ctx).Warn("stored password hash not verifiable",
			logger.UserID(u.ID), zap.Error(verr))
	}
	if !ok {
		return nil, e.recordLoginFailure(ctx, u, now)
	}

	if u.Status != UserActive {
		e.metricInc(MetricLoginFailure)
		err := accountInactive()
		e.emitAudit(ctx, AuditLoginFailure, false, userSubject(u), err, "Account not active", nil)
		return nil, err
	}
	if e.policy.IsExpired(u.MustChangePassword, u.PasswordChangedAt, now) {
		e.metricInc(MetricLoginFailure)
		err := passwordExpired()
		e.emitAudit(ctx, AuditLoginFailure, false, userSubject(u), err, "Password expired", nil)
		return nil, err
	}

	saved, err := e.recordLoginSuccess(ctx, u, pw, now)
	switch {
	case errors.Is(err, errLockedDuringLogin):
		e.metricInc(MetricLoginLockedRejected)
		err := accountLocked()
		e.emitAudit(ctx, AuditLoginFailure, false, userSubject(saved), err, "Account locked", nil)
		return nil, err
	case errors.Is(err, errInactiveDuringLogin):
		e.metricInc(MetricLoginFailure)
		err := accountInactive()
		e.emitAudit(ctx, AuditLoginFailure, false, userSubject(saved), err, "Account not active", nil)
		return nil, err
	case err != nil:
		return nil, err
	}
	u = saved

	pair, err := e.issuePair(ctx, t, u, true)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditLoginSuccess, true, userSubject(u), nil, "", nil)
	e.logger(ctx).Info("login succeeded", logger.TenantCode(t.Code), logger.UserID(u.ID))
	return pair, nil
}

func (e *Engine) findTenantByCode(ctx context.Context, code string) (*Tenant, error) {
	sctx, cancel := e.storeContext(ctx)
	defer cancel()
	t, err := e.credentials.FindTenantByCode(sctx, code)
	if err != nil {
		return nil, e.storeError(ctx, "find_tenant_by_code", "Tenant", err)
	}
	return t, nil
}

// releaseExpiredLock persists the release of a lock whose expiry has passed. It only acts
// when Lockout.AutoUnlock is set.
func (e *Engine) releaseExpiredLock(ctx context.Context, u *User, now time.Time) (*User, error) {
	state := lockStateOf(u)
	if !e.guard.ReleaseExpired(&state, now) {
		return u, nil
	}

	saved, err := e.updateUser(ctx, "login_release_lock", u, func(x *User) bool {
		s := lockStateOf(x)
		if !e.guard.ReleaseExpired(&s, now) {
			return false
		}
		applyLockState(x, s)
		return true
	})
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricAccountUnlocked)
	e.emitAudit(ctx, AuditAccountUnlocked, true, userSubject(saved), nil, "", func() map[string]string {
		return map[string]string{"trigger": "lock_expired"}
	})
	return saved, nil
}

// recordLoginFailure counts a wrong password and returns the error for the caller:
// AccountLocked when this attempt locked the account, InvalidCredentials otherwise. A failed
// write is returned instead, so a lost update never lets an attacker skip the counter.
func (e *Engine) recordLoginFailure(ctx context.Context, u *User, now time.Time) error {
	var action limiters.LockAction
	saved, err := e.updateUser(ctx, "login_failure", u, func(x *User) bool {
		if !e.guard.Config().Enabled {
			action = limiters.LockActionFailure
			return false
		}
		s := lockStateOf(x)
		action = e.guard.RecordFailure(&s, now)
		applyLockState(x, s)
		return true
	})
	if err != nil {
		return err
	}

	e.metricInc(MetricLoginFailure)
	who := userSubject(saved)
	if action == limiters.LockActionLocked {
		e.metricInc(MetricAccountLocked)
		threshold := e.guard.Config().Threshold
		e.emitAudit(ctx, AuditAccountLocked, false, who, accountLocked(),
			fmt.Sprintf("Locked after %d failed attempts", threshold), func() map[string]string {
				return map[string]string{"locked_until": saved.LockedUntil.UTC().Format(time.RFC3339)}
			})
		e.logger(ctx).Warn("account locked", logger.UserID(saved.ID), logger.TenantID(saved.TenantID))
	}
	e.emitAudit(ctx, AuditLoginFailure, false, who, invalidCredentials(), "Invalid password", func() map[string]string {
		return map[string]string{"failed_attempts": strconv.Itoa(saved.FailedLoginAttempts)}
	})
	if action == limiters.LockActionLocked {
		return accountLocked()
	}
	return invalidCredentials()
}

// recordLoginSuccess resets lockout state and stores last-login bookkeeping in one write.
// A hash in a legacy format is upgraded in the same write when UpgradeOnLogin is set.
func (e *Engine) recordLoginSuccess(ctx context.Context, u *User, pw string, now time.Time) (*User, error) {
	ip := RequestInfoFromContext(ctx).ClientIP

	loadedHash := u.PasswordHash
	var upgraded string
	if e.config.PasswordHash.UpgradeOnLogin && e.hasher.NeedsRehash(loadedHash) {
		h, err := e.hasher.Hash(pw)
		if err != nil {
			e.logger(ctx).Warn("password rehash failed", logger.UserID(u.ID), zap.Error(err))
		} else {
			upgraded = h
		}
	}

	// On a version conflict x is a reloaded record; a concurrent failure may have locked it
	// since the checks in Login ran.
	var rejected error
	saved, err := e.updateUser(ctx, "login_success", u, func(x *User) bool {
		rejected = nil
		s := lockStateOf(x)
		switch {
		case e.guard.IsLocked(s, now):
			rejected = errLockedDuringLogin
			return false
		case x.Status != UserActive:
			rejected = errInactiveDuringLogin
			return false
		}
		e.guard.RecordSuccess(&s)
		applyLockState(x, s)
		x.LastLoginAt = now.UTC()
		x.LastLoginIP = ip
		if upgraded != "" && x.PasswordHash == loadedHash {
			x.PasswordHash = upgraded
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if rejected != nil {
		return saved, rejected
	}
	return saved, nil
}
