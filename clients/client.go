package clients

import (
	"errors"
	"strings"
	"time"
)

// Status is the lifecycle state of a registered client.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
	StatusRevoked   Status = "REVOKED"
)

// Authentication methods and grant types understood by the registry.
const (
	AuthClientSecretBasic = "client_secret_basic"
	AuthClientSecretPost  = "client_secret_post"

	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
	GrantClientCredentials = "client_credentials"
)

// SystemClientID is the platform client registered at startup.
const SystemClientID = "hms-system-client"

var (
	ErrNotFound  = errors.New("clients: client not found")
	ErrDuplicate = errors.New("clients: client id already registered")
)

// Client is an OAuth2 client registration. SecretHash never holds plaintext.
type Client struct {
	ID                     string    `json:"id"`
	ClientID               string    `json:"client_id"`
	SecretHash             string    `json:"secret_hash"`
	TenantID               string    `json:"tenant_id,omitempty"`
	Name                   string    `json:"name"`
	AuthMethods            []string  `json:"auth_methods"`
	GrantTypes             []string  `json:"grant_types"`
	RedirectURIs           []string  `json:"redirect_uris"`
	PostLogoutRedirectURIs []string  `json:"post_logout_redirect_uris,omitempty"`
	Scopes                 []string  `json:"scopes"`
	AccessTokenTTLMinutes  int       `json:"access_token_ttl_minutes"`
	RefreshTokenTTLDays    int       `json:"refresh_token_ttl_days"`
	RequireProofKey        bool      `json:"require_proof_key"`
	RequireConsent         bool      `json:"require_consent"`
	ReuseRefreshTokens     bool      `json:"reuse_refresh_tokens"`
	Status                 Status    `json:"status"`
	CreatedBy              string    `json:"created_by,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// IsPlatform reports whether the client belongs to no tenant.
func (c *Client) IsPlatform() bool { return c.TenantID == "" }

// Active reports whether the client may authenticate.
func (c *Client) Active() bool { return c.Status == StatusActive }

// HasScope reports whether scope is registered on the client.
func (c *Client) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (c *Client) Clone() *Client {
	if c == nil {
		return nil
	}
	out := *c
	out.AuthMethods = append([]string(nil), c.AuthMethods...)
	out.GrantTypes = append([]string(nil), c.GrantTypes...)
	out.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	out.PostLogoutRedirectURIs = append([]string(nil), c.PostLogoutRedirectURIs...)
	out.Scopes = append([]string(nil), c.Scopes...)
	return &out
}

// TenantClientID derives the default client id for a tenant code, e.g. HOSPITAL_A →
// hospital-a-web-client.
func TenantClientID(tenantCode string) string {
	return tenantSlug(tenantCode) + "-web-client"
}

func tenantSlug(code string) string {
	return strings.ReplaceAll(strings.ToLower(code), "_", "-")
}
