package tenantauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/tenantauth/internal/ids"
)

// Audit event types.
const (
	AuditLoginSuccess           = "LOGIN_SUCCESS"
	AuditLoginFailure           = "LOGIN_FAILURE"
	AuditAccountLocked          = "ACCOUNT_LOCKED"
	AuditAccountUnlocked        = "ACCOUNT_UNLOCKED"
	AuditLogout                 = "LOGOUT"
	AuditTokenRefresh           = "TOKEN_REFRESH"
	AuditTokenRefreshFailure    = "TOKEN_REFRESH_FAILURE"
	AuditPasswordChange         = "PASSWORD_CHANGE"
	AuditPasswordChangeFailure  = "PASSWORD_CHANGE_FAILURE"
	AuditPasswordReset          = "PASSWORD_RESET"
	AuditClientCreated          = "CLIENT_CREATED"
	AuditClientSecretRotated    = "CLIENT_SECRET_ROTATED"
	AuditClientStatusChanged    = "CLIENT_STATUS_CHANGED"
	AuditClientDeleted          = "CLIENT_DELETED"
	AuditRoleCreated            = "ROLE_CREATED"
	AuditRoleUpdated            = "ROLE_UPDATED"
	AuditRoleDeleted            = "ROLE_DELETED"
	AuditRolePermissionsChanged = "ROLE_PERMISSIONS_CHANGED"
	AuditTenantStatusChanged    = "TENANT_STATUS_CHANGED"
)

// AuditErrorCode is the stable machine code stored in AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrTenantInactive     AuditErrorCode = "tenant_inactive"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrAccountInactive    AuditErrorCode = "account_inactive"
	auditErrPasswordExpired    AuditErrorCode = "password_expired"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrPasswordReuse      AuditErrorCode = "password_reuse"
	auditErrForbidden          AuditErrorCode = "forbidden"
	auditErrNotFound           AuditErrorCode = "not_found"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

// errUserNotFound only travels to the audit trail; callers see InvalidCredentials.
var errUserNotFound = errors.New("user not found")

// auditSubject identifies who an event is about.
type auditSubject struct {
	TenantID string
	UserID   string
	Username string
}

func userSubject(u *User) auditSubject {
	return auditSubject{TenantID: u.TenantID, UserID: u.ID, Username: u.Username}
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	who auditSubject,
	err error,
	reason string,
	detailsBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var details map[string]string
	if detailsBuilder != nil {
		details = detailsBuilder()
	}

	req := RequestInfoFromContext(ctx)
	event := AuditEvent{
		ID:            ids.New(),
		Timestamp:     e.now().UTC(),
		EventType:     eventType,
		TenantID:      who.TenantID,
		UserID:        who.UserID,
		Username:      who.Username,
		IP:            req.ClientIP,
		UserAgent:     req.UserAgent,
		RequestID:     req.RequestID,
		Success:       success,
		FailureReason: reason,
		Details:       details,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, errUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrTenantInactive):
		return auditErrTenantInactive
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountInactive):
		return auditErrAccountInactive
	case errors.Is(err, ErrPasswordExpired):
		return auditErrPasswordExpired
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrForbidden):
		return auditErrForbidden
	case errors.Is(err, ErrResourceNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrDuplicateResource):
		return auditErrDuplicate
	case errors.Is(err, ErrUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
