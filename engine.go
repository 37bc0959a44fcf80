package tenantauth

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/tenantauth/clients"
	internalaudit "github.com/MrEthical07/tenantauth/internal/audit"
	"github.com/MrEthical07/tenantauth/internal/kv"
	"github.com/MrEthical07/tenantauth/internal/limiters"
	"github.com/MrEthical07/tenantauth/internal/logger"
	"github.com/MrEthical07/tenantauth/password"
	"github.com/MrEthical07/tenantauth/permission"
	"github.com/MrEthical07/tenantauth/token"
)

// Engine is the authentication core. It is safe for concurrent use once built.
type Engine struct {
	config Config
	log    *zap.Logger
	now    func() time.Time

	credentials CredentialStore
	changer     PasswordChanger
	roles       RoleStore
	tenants     TenantStore
	clients     clients.Store
	catalog     *permission.Registry

	tokens *token.Provider
	kv     kv.Store
	ownsKV bool

	hasher *password.Multi
	policy *password.Policy
	guard  *limiters.LockoutGuard

	audit   *internalaudit.Dispatcher
	metrics *Metrics

	dummyOnce sync.Once
	dummyHash string
}

// Close drains pending audit events and releases the kv store when the Engine created it.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	if e.ownsKV && e.kv != nil {
		if err := e.kv.Close(); err != nil {
			e.log.Warn("close kv store", zap.Error(err))
		}
	}
}

// AuditDropped returns the number of audit events dropped because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the in-process counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Ping checks the kv backing service.
func (e *Engine) Ping(ctx context.Context) error {
	ctx, cancel := e.cacheContext(ctx)
	defer cancel()
	if err := e.kv.Ping(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observe(id MetricID, start time.Time) {
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(id, time.Since(start))
	}
}

func (e *Engine) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.config.Timeouts.Store <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.config.Timeouts.Store)
}

func (e *Engine) cacheContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.config.Timeouts.Cache <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.config.Timeouts.Cache)
}

func (e *Engine) logger(ctx context.Context) *zap.Logger {
	l := logger.From(ctx, e.log)
	if id := RequestInfoFromContext(ctx).RequestID; id != "" {
		l = l.With(logger.RequestID(id))
	}
	return l
}

// storeError translates a collaborator failure into an *Error. what names the resource
// for not-found and duplicate messages.
func (e *Engine) storeError(ctx context.Context, op, what string, err error) error {
	var ae *Error
	switch {
	case errors.As(err, &ae):
		return ae
	case errors.Is(err, ErrNotFound), errors.Is(err, clients.ErrNotFound):
		return notFound(what)
	case errors.Is(err, ErrConflict), errors.Is(err, clients.ErrDuplicate):
		return duplicate(what)
	case errors.Is(err, ErrRoleInUse):
		return forbidden(CodeRoleInUse, "Role is assigned to users")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrVersionConflict):
		e.metricInc(MetricBackendUnavailable)
		e.logger(ctx).Warn("backend unavailable", logger.Op(op), zap.Error(err))
		return unavailable(err)
	case errors.Is(err, context.Canceled):
		return unavailable(err)
	default:
		return e.internal(ctx, op, err)
	}
}

func (e *Engine) internal(ctx context.Context, op string, err error) *Error {
	ie := internalError(err)
	e.logger(ctx).Error("unexpected failure",
		logger.Op(op),
		logger.CorrelationID(ie.CorrelationID),
		zap.Error(err),
	)
	return ie
}

// dummyVerify spends one hash verification so unknown identifiers take as long as wrong
// passwords.
func (e *Engine) dummyVerify(pw string) {
	e.dummyOnce.Do(func() {
		h, err := e.hasher.Hash("tenantauth-timing-equaliser")
		if err == nil {
			e.dummyHash = h
		}
	})
	if e.dummyHash != "" {
		_, _ = e.hasher.Verify(pw, e.dummyHash)
	}
}

func lockStateOf(u *User) limiters.LockState {
	return limiters.LockState{
		StatusLocked:   u.Status == UserLocked,
		FailedAttempts: u.FailedLoginAttempts,
		LockedUntil:    u.LockedUntil,
		LastFailureAt:  u.LastFailedLoginAt,
	}
}

func applyLockState(u *User, s limiters.LockState) {
	u.FailedLoginAttempts = s.FailedAttempts
	u.LockedUntil = s.LockedUntil
	u.LastFailedLoginAt = s.LastFailureAt
	switch {
	case s.StatusLocked:
		u.Status = UserLocked
	case u.Status == UserLocked:
		u.Status = UserActive
	}
}

// updateUser applies mutate and saves with the loaded version. On a version conflict the
// user is reloaded and mutate applied once more; a second conflict is Unavailable.
// mutate may return false to skip the write.
func (e *Engine) updateUser(ctx context.Context, op string, u *User, mutate func(*User) bool) (*User, error) {
	current := u
	for attempt := 0; attempt < 2; attempt++ {
		next := current.Clone()
		if !mutate(next) {
			return current, nil
		}
		next.UpdatedAt = e.now().UTC()

		sctx, cancel := e.storeContext(ctx)
		err := e.credentials.SaveUser(sctx, next, current.Version)
		cancel()
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, ErrVersionConflict) || attempt == 1 {
			return nil, e.storeError(ctx, op, "User", err)
		}

		e.metricInc(MetricVersionConflictRetry)
		reloaded, err := e.findUserByID(ctx, current.ID)
		if err != nil {
			return nil, err
		}
		current = reloaded
	}
	return nil, unavailable(ErrVersionConflict)
}

func (e *Engine) findUserByID(ctx context.Context, id string) (*User, error) {
	sctx, cancel := e.storeContext(ctx)
	defer cancel()
	u, err := e.credentials.FindUserByID(sctx, id)
	if err != nil {
		return nil, e.storeError(ctx, "find_user", "User", err)
	}
	return u, nil
}

func (e *Engine) findTenantByID(ctx context.Context, id string) (*Tenant, error) {
	sctx, cancel := e.storeContext(ctx)
	defer cancel()
	t, err := e.credentials.FindTenantByID(sctx, id)
	if err != nil {
		return nil, e.storeError(ctx, "find_tenant", "Tenant", err)
	}
	return t, nil
}

func (e *Engine) subjectFor(t *Tenant, u *User) token.Subject {
	return token.Subject{
		UserID:      u.ID,
		TenantID:    u.TenantID,
		TenantCode:  t.Code,
		Username:    u.Username,
		Email:       u.Email,
		Roles:       u.RoleCodes(),
		Permissions: u.PermissionCodes(),
	}
}

// issuePair mints an access and refresh token for u.
func (e *Engine) issuePair(ctx context.Context, t *Tenant, u *User, withSummary bool) (*TokenPair, error) {
	subject := e.subjectFor(t, u)
	access, err := e.tokens.IssueAccessToken(ctx, subject)
	if err != nil {
		return nil, e.internal(ctx, "issue_access_token", err)
	}
	refresh, err := e.tokens.IssueRefreshToken(ctx, subject)
	if err != nil {
		return nil, e.internal(ctx, "issue_refresh_token", err)
	}

	pair := &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(e.tokens.AccessTTL() / time.Second),
	}
	if withSummary {
		pair.User = &UserSummary{
			ID:                 u.ID,
			TenantID:           u.TenantID,
			TenantCode:         t.Code,
			Username:           u.Username,
			Email:              u.Email,
			FirstName:          u.FirstName,
			LastName:           u.LastName,
			Roles:              subject.Roles,
			Permissions:        subject.Permissions,
			MustChangePassword: u.MustChangePassword,
		}
	}
	return pair, nil
}
