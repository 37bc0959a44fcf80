package tenantauth

import (
	"errors"
	"strings"

	"github.com/MrEthical07/tenantauth/internal/ids"
	"github.com/MrEthical07/tenantauth/password"
)

// Kind sentinels. Every *Error matches exactly one of them through errors.Is.
var (
	// ErrTenantRequired is returned when no tenant code was supplied.
	ErrTenantRequired = errors.New("tenant required")
	// ErrTenantInactive is returned when the tenant is not ACTIVE.
	ErrTenantInactive = errors.New("tenant inactive")
	// ErrInvalidCredentials covers unknown users and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while the lockout guard holds the account.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountInactive is returned for users that are not ACTIVE.
	ErrAccountInactive = errors.New("account inactive")
	// ErrPasswordExpired is returned when the password must be changed before login.
	ErrPasswordExpired = errors.New("password expired")
	// ErrInvalidToken covers every token rejection reason.
	ErrInvalidToken = errors.New("invalid token")
	// ErrPasswordPolicy is returned when a new password violates the policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is returned when a new password matches the current or a recent one.
	ErrPasswordReuse = errors.New("password reuse")
	// ErrDuplicateResource is returned when a unique key is already taken.
	ErrDuplicateResource = errors.New("duplicate resource")
	// ErrResourceNotFound is returned for unknown tenants, users, clients or roles.
	ErrResourceNotFound = errors.New("resource not found")
	// ErrForbidden is returned when the caller lacks a capability or the target is immutable.
	ErrForbidden = errors.New("forbidden")
	// ErrUnavailable is returned when a backing service timed out or kept conflicting.
	ErrUnavailable = errors.New("service unavailable")
	// ErrInternal wraps unexpected failures.
	ErrInternal = errors.New("internal error")
)

// Store-level sentinels that implementations of the consumed interfaces return.
var (
	// ErrNotFound is returned by stores for missing rows.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned by stores for unique-key violations.
	ErrConflict = errors.New("conflict")
	// ErrVersionConflict is returned by SaveUser when expectedVersion is stale.
	ErrVersionConflict = errors.New("version conflict")
	// ErrRoleInUse is returned by DeleteRole while users still hold the role.
	ErrRoleInUse = errors.New("role in use")
)

// Codes carried on *Error.
const (
	CodeTenantRequired      = "TENANT_REQUIRED"
	CodeTenantInactive      = "TENANT_INACTIVE"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeAccountLocked       = "ACCOUNT_LOCKED"
	CodeAccountInactive     = "ACCOUNT_INACTIVE"
	CodePasswordExpired     = "PASSWORD_EXPIRED"
	CodeInvalidToken        = "INVALID_TOKEN"
	CodeInvalidPassword     = "INVALID_PASSWORD"
	CodePasswordReuse       = "PASSWORD_REUSE"
	CodeDuplicateResource   = "DUPLICATE_RESOURCE"
	CodeResourceNotFound    = "RESOURCE_NOT_FOUND"
	CodeForbidden           = "FORBIDDEN"
	CodeSystemRoleImmutable = "SYSTEM_ROLE_IMMUTABLE"
	CodeRoleInUse           = "ROLE_IN_USE"
	CodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
	CodeInternal            = "INTERNAL_ERROR"
)

// Error is the single error type returned by Engine operations.
type Error struct {
	Kind          error
	Code          string
	Message       string
	Violations    []password.Violation
	CorrelationID string
	Err           error
}

func (e *Error) Error() string {
	if e.CorrelationID != "" {
		return e.Code + ": " + e.Message + " (correlation id " + e.CorrelationID + ")"
	}
	return e.Code + ": " + e.Message
}

// Is matches the kind sentinel.
func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind sentinel of err, or nil if err is not an *Error.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}

// CodeOf returns the code of err, or "" if err is not an *Error.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func newError(kind error, code, msg string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Err: cause}
}

func tenantRequired() *Error {
	return newError(ErrTenantRequired, CodeTenantRequired, "Tenant code is required", nil)
}

func tenantInactive() *Error {
	return newError(ErrTenantInactive, CodeTenantInactive, "Tenant is not active", nil)
}

func invalidCredentials() *Error {
	return newError(ErrInvalidCredentials, CodeInvalidCredentials, "Invalid username or password", nil)
}

func accountLocked() *Error {
	return newError(ErrAccountLocked, CodeAccountLocked, "Account is locked", nil)
}

func accountInactive() *Error {
	return newError(ErrAccountInactive, CodeAccountInactive, "Account is not active", nil)
}

func passwordExpired() *Error {
	return newError(ErrPasswordExpired, CodePasswordExpired, "Password has expired and must be changed", nil)
}

func invalidToken(cause error) *Error {
	return newError(ErrInvalidToken, CodeInvalidToken, "Invalid or expired token", cause)
}

func policyViolation(v []password.Violation) *Error {
	msgs := make([]string, 0, len(v))
	for _, x := range v {
		msgs = append(msgs, x.Message)
	}
	e := newError(ErrPasswordPolicy, CodeInvalidPassword, strings.Join(msgs, "; "), nil)
	e.Violations = v
	return e
}

func passwordReuse(msg string) *Error {
	return newError(ErrPasswordReuse, CodePasswordReuse, msg, nil)
}

func duplicate(what string) *Error {
	return newError(ErrDuplicateResource, CodeDuplicateResource, what+" already exists", nil)
}

func notFound(what string) *Error {
	return newError(ErrResourceNotFound, CodeResourceNotFound, what+" not found", nil)
}

func forbidden(code, msg string) *Error {
	return newError(ErrForbidden, code, msg, nil)
}

func unavailable(cause error) *Error {
	return newError(ErrUnavailable, CodeServiceUnavailable, "Service temporarily unavailable", cause)
}

// internalError wraps cause with a fresh correlation id. The message never carries cause.
func internalError(cause error) *Error {
	e := newError(ErrInternal, CodeInternal, "An unexpected error occurred", cause)
	e.CorrelationID = ids.New()
	return e
}
