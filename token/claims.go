package token

import (
	"time"

	"github.com/MrEthical07/tenantauth/jwt"
)

// Claims is a validated token's claim set.
type Claims struct {
	raw *jwt.Claims
}

func (c *Claims) TenantID() string   { return c.raw.TenantID }
func (c *Claims) TenantCode() string { return c.raw.TenantCode }
func (c *Claims) Username() string   { return c.raw.Username }
func (c *Claims) Email() string      { return c.raw.Email }
func (c *Claims) TokenType() string  { return c.raw.TokenType }
func (c *Claims) ID() string         { return c.raw.ID }

// UserID returns the user_id claim, falling back to sub.
func (c *Claims) UserID() string {
	if c.raw.UserID != "" {
		return c.raw.UserID
	}
	return c.raw.Subject
}

// Roles returns a copy of the role codes.
func (c *Claims) Roles() []string { return cloneStrings(c.raw.Roles) }

// Permissions returns a copy of the permission codes.
func (c *Claims) Permissions() []string { return cloneStrings(c.raw.Permissions) }

// HasPermission reports whether code was granted at issuance.
func (c *Claims) HasPermission(code string) bool {
	for _, p := range c.raw.Permissions {
		if p == code {
			return true
		}
	}
	return false
}

// ExpiresAt returns the exp claim, or the zero time when absent.
func (c *Claims) ExpiresAt() time.Time {
	if c.raw.ExpiresAt == nil {
		return time.Time{}
	}
	return c.raw.ExpiresAt.Time
}

// IssuedAt returns the iat claim, or the zero time when absent.
func (c *Claims) IssuedAt() time.Time {
	if c.raw.IssuedAt == nil {
		return time.Time{}
	}
	return c.raw.IssuedAt.Time
}
