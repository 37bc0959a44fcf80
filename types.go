package tenantauth

import (
	"context"
	"time"

	"github.com/MrEthical07/tenantauth/clients"
)

// TenantStatus is the lifecycle state of a tenant. Only ACTIVE tenants authenticate.
type TenantStatus string

const (
	TenantPendingVerification TenantStatus = "PENDING_VERIFICATION"
	TenantActive              TenantStatus = "ACTIVE"
	TenantSuspended           TenantStatus = "SUSPENDED"
)

// UserStatus is the lifecycle state of a user account.
type UserStatus string

const (
	UserPendingVerification UserStatus = "PENDING_VERIFICATION"
	UserActive              UserStatus = "ACTIVE"
	UserLocked              UserStatus = "LOCKED"
	UserInactive            UserStatus = "INACTIVE"
)

// Tenant is an isolated customer organisation. Tenants are never physically deleted.
type Tenant struct {
	ID        string
	Code      string
	Name      string
	Subdomain string
	Status    TenantStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Role groups permission codes. System roles have no tenant and are immutable.
type Role struct {
	ID          string
	TenantID    string
	Code        string
	Name        string
	Description string
	System      bool
	Permissions []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// User is a tenant-scoped account. Zero time values mean "not set".
type User struct {
	ID                  string
	TenantID            string
	Username            string
	Email               string
	FirstName           string
	LastName            string
	PasswordHash        string
	Status              UserStatus
	FailedLoginAttempts int
	LastFailedLoginAt   time.Time
	LockedUntil         time.Time
	PasswordChangedAt   time.Time
	MustChangePassword  bool
	Roles               []Role
	LastLoginAt         time.Time
	LastLoginIP         string
	// Version is incremented by every successful SaveUser.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RoleCodes returns the codes of the user's roles.
func (u *User) RoleCodes() []string {
	out := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		out = append(out, r.Code)
	}
	return out
}

// PermissionCodes returns the deduplicated union of permission codes across roles, in
// first-seen order.
func (u *User) PermissionCodes() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range u.Roles {
		for _, p := range r.Permissions {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// HasRole reports whether the user holds role code.
func (u *User) HasRole(code string) bool {
	for _, r := range u.Roles {
		if r.Code == code {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	out.Roles = make([]Role, len(u.Roles))
	for i, r := range u.Roles {
		r.Permissions = append([]string(nil), r.Permissions...)
		out.Roles[i] = r
	}
	return &out
}

// UserSummary is the profile returned alongside a token pair.
type UserSummary struct {
	ID                 string
	TenantID           string
	TenantCode         string
	Username           string
	Email              string
	FirstName          string
	LastName           string
	Roles              []string
	Permissions        []string
	MustChangePassword bool
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64
	User      *UserSummary
}

// ClientCredentials is returned once when a client is created or its secret rotated.
// The plaintext secret is never stored.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
	ClientName   string
	TenantID     string
	Message      string
}

// CreateClientRequest is the input for Engine.CreateClient.
type CreateClientRequest = clients.CustomRequest

// CredentialStore is the persistence boundary for tenants, users and password history.
//
// Find methods return ErrNotFound for missing rows. SaveUser compares expectedVersion with
// the stored version and returns ErrVersionConflict on mismatch; on success the stored
// version becomes expectedVersion+1 and user.Version is updated.
type CredentialStore interface {
	FindTenantByCode(ctx context.Context, code string) (*Tenant, error)
	FindTenantByID(ctx context.Context, id string) (*Tenant, error)
	// FindUserByTenantAndIdentifier matches identifier against username or email within tenantID.
	FindUserByTenantAndIdentifier(ctx context.Context, tenantID, identifier string) (*User, error)
	FindUserByID(ctx context.Context, id string) (*User, error)
	SaveUser(ctx context.Context, user *User, expectedVersion int64) error
	// RecentPasswordHistory returns up to limit previous hashes, newest first.
	RecentPasswordHistory(ctx context.Context, userID string, limit int) ([]string, error)
	// AppendAndTrimHistory records hash and keeps only the newest keep entries.
	AppendAndTrimHistory(ctx context.Context, userID, hash string, keep int) error
}

// PasswordChanger is an optional CredentialStore extension that applies a password change
// (history append, trim and user save) in one transaction.
type PasswordChanger interface {
	ChangePassword(ctx context.Context, user *User, expectedVersion int64, oldHash string, keep int) error
}

// TenantStore persists tenant status changes.
type TenantStore interface {
	UpdateTenantStatus(ctx context.Context, tenantID string, status TenantStatus) error
}

// RoleStore manages the role catalog.
type RoleStore interface {
	// ListRoles returns system roles plus roles owned by tenantID.
	ListRoles(ctx context.Context, tenantID string) ([]Role, error)
	FindRole(ctx context.Context, id string) (*Role, error)
	// CreateRole returns ErrConflict when (tenant, code) is taken.
	CreateRole(ctx context.Context, role *Role) error
	UpdateRole(ctx context.Context, role *Role) error
	// DeleteRole returns ErrRoleInUse while users hold the role.
	DeleteRole(ctx context.Context, id string) error
	SetRolePermissions(ctx context.Context, roleID string, permissions []string) error
}
