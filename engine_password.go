package tenantauth

import (
	"context"
	"fmt"

	"github.com/MrEthical07/tenantauth/internal/limiters"
	"github.com/MrEthical07/tenantauth/internal/logger"
)

// ChangePassword replaces the password of userID after verifying current.
//
// The new password must satisfy the policy and differ from the current password and the
// last PasswordPolicy.HistoryCount passwords. The old hash joins the history, which is then
// trimmed to HistoryCount entries. MustChangePassword is cleared.
func (e *Engine) ChangePassword(ctx context.Context, userID, current, newPassword string) error {
	u, err := e.findUserByID(ctx, userID)
	if err != nil {
		return err
	}
	who := userSubject(u)

	ok, verr := e.hasher.Verify(current, u.PasswordHash)
	if verr != nil || !ok {
		e.metricInc(MetricPasswordChangeInvalidOld)
		err := invalidCredentials()
		e.emitAudit(ctx, AuditPasswordChangeFailure, false, who, err, "Current password is incorrect", nil)
		return err
	}

	if err := e.checkNewPassword(ctx, u, current, newPassword); err != nil {
		e.emitAudit(ctx, AuditPasswordChangeFailure, false, who, err, "", nil)
		return err
	}

	if _, err := e.setPassword(ctx, "change_password", u, newPassword, false); err != nil {
		return err
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, AuditPasswordChange, true, who, nil, "", nil)
	e.logger(ctx).Info("password changed", logger.UserID(u.ID))
	return nil
}

// checkNewPassword applies the policy and the reuse rules. current is the verified
// plaintext, so reuse of the current password needs no hash comparison.
func (e *Engine) checkNewPassword(ctx context.Context, u *User, current, candidate string) error {
	if v := e.policy.Validate(candidate); len(v) > 0 {
		e.metricInc(MetricPasswordPolicyRejected)
		return policyViolation(v)
	}
	if candidate == current {
		e.metricInc(MetricPasswordChangeReuseRejected)
		return passwordReuse("Cannot reuse your current password")
	}

	depth := e.policy.Config().HistoryCount
	if depth <= 0 {
		return nil
	}
	history, err := e.recentHistory(ctx, u.ID, depth)
	if err != nil {
		return err
	}
	reused, err := e.policy.RejectsReuse(e.hasher, "", history, candidate)
	if err != nil {
		return e.internal(ctx, "password_history_verify", err)
	}
	if reused {
		e.metricInc(MetricPasswordChangeReuseRejected)
		return passwordReuse(fmt.Sprintf("Cannot reuse any of your last %d passwords", depth))
	}
	return nil
}

func (e *Engine) recentHistory(ctx context.Context, userID string, limit int) ([]string, error) {
	sctx, cancel := e.storeContext(ctx)
	defer cancel()
	h, err := e.credentials.RecentPasswordHistory(sctx, userID, limit)
	if err != nil {
		return nil, e.storeError(ctx, "password_history", "Password history", err)
	}
	return h, nil
}

// setPassword hashes plain and stores it as the password of u, moving the old hash into
// the history. The PasswordChanger path does both in one transaction; otherwise history
// is written first and the user save follows. A temporary password also clears the lock
// state.
func (e *Engine) setPassword(ctx context.Context, op string, u *User, plain string, temporary bool) (*User, error) {
	newHash, err := e.hasher.Hash(plain)
	if err != nil {
		return nil, e.internal(ctx, op+"_hash", err)
	}
	oldHash := u.PasswordHash
	keep := e.policy.Config().HistoryCount
	now := e.now().UTC()

	apply := func(x *User) {
		x.PasswordHash = newHash
		x.PasswordChangedAt = now
		x.MustChangePassword = temporary
		x.UpdatedAt = now
		if temporary {
			s := lockStateOf(x)
			limiters.Unlock(&s)
			applyLockState(x, s)
		}
	}

	if e.changer != nil {
		next := u.Clone()
		apply(next)
		sctx, cancel := e.storeContext(ctx)
		err := e.changer.ChangePassword(sctx, next, u.Version, oldHash, keep)
		cancel()
		if err != nil {
			return nil, e.storeError(ctx, op, "User", err)
		}
		return next, nil
	}

	if keep > 0 && oldHash != "" {
		sctx, cancel := e.storeContext(ctx)
		err := e.credentials.AppendAndTrimHistory(sctx, u.ID, oldHash, keep)
		cancel()
		if err != nil {
			return nil, e.storeError(ctx, op, "Password history", err)
		}
	}

	stale := false
	saved, err := e.updateUser(ctx, op, u, func(x *User) bool {
		if x.PasswordHash != oldHash {
			stale = true
			return false
		}
		apply(x)
		return true
	})
	if err != nil {
		return nil, err
	}
	if stale {
		e.metricInc(MetricBackendUnavailable)
		return nil, unavailable(ErrVersionConflict)
	}
	return saved, nil
}
