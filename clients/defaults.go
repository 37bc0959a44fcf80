package clients

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Defaults carries the deployment values baked into generated registrations.
type Defaults struct {
	BaseDomain            string `yaml:"base_domain"`
	AccessTokenTTLMinutes int    `yaml:"access_token_ttl_minutes"`
	RefreshTokenTTLDays   int    `yaml:"refresh_token_ttl_days"`
}

// DefaultDefaults mirrors the platform's production settings.
func DefaultDefaults() Defaults {
	return Defaults{
		BaseDomain:            "hms.com",
		AccessTokenTTLMinutes: 15,
		RefreshTokenTTLDays:   7,
	}
}

// TenantInfo is the subset of a tenant needed to build its registration.
type TenantInfo struct {
	ID   string
	Code string
	Name string
}

var tenantScopes = []string{
	"openid", "profile", "email",
	"patient:read", "patient:write",
	"prescription:read", "prescription:write",
	"billing:read", "billing:write",
}

// NewTenantClient builds the standard web client registration for a tenant.
func NewTenantClient(t TenantInfo, secretHash string, d Defaults, now time.Time) *Client {
	host := fmt.Sprintf("https://%s.%s", tenantSlug(t.Code), d.BaseDomain)
	return &Client{
		ID:          uuid.NewString(),
		ClientID:    TenantClientID(t.Code),
		SecretHash:  secretHash,
		TenantID:    t.ID,
		Name:        t.Name + " - Web Client",
		AuthMethods: []string{AuthClientSecretBasic, AuthClientSecretPost},
		GrantTypes:  []string{GrantAuthorizationCode, GrantRefreshToken, GrantClientCredentials},
		RedirectURIs: []string{
			host + "/callback",
			host + "/login/oauth2/code/hms",
			"http://localhost:4200/callback",
			"http://localhost:3000/callback",
		},
		PostLogoutRedirectURIs: []string{
			host + "/",
			"http://localhost:4200/",
			"http://localhost:3000/",
		},
		Scopes:                append([]string(nil), tenantScopes...),
		AccessTokenTTLMinutes: d.AccessTokenTTLMinutes,
		RefreshTokenTTLDays:   d.RefreshTokenTTLDays,
		RequireProofKey:       true,
		Status:                StatusActive,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

// CustomRequest describes an administrator-defined registration. Empty fields fall back
// to tenant defaults.
type CustomRequest struct {
	TenantID               string
	ClientID               string
	ClientSecret           string
	Name                   string
	RedirectURIs           []string
	PostLogoutRedirectURIs []string
	Scopes                 []string
	AccessTokenTTLMinutes  int
	RefreshTokenTTLDays    int
	RequireProofKey        *bool
	RequireConsent         bool
	CreatedBy              string
}

// NewCustomClient builds a registration from req for tenant t.
func NewCustomClient(t TenantInfo, req CustomRequest, clientID, secretHash string, d Defaults, now time.Time) *Client {
	c := &Client{
		ID:                     uuid.NewString(),
		ClientID:               clientID,
		SecretHash:             secretHash,
		TenantID:               t.ID,
		Name:                   req.Name,
		AuthMethods:            []string{AuthClientSecretBasic, AuthClientSecretPost},
		GrantTypes:             []string{GrantAuthorizationCode, GrantRefreshToken, GrantClientCredentials},
		RedirectURIs:           append([]string(nil), req.RedirectURIs...),
		PostLogoutRedirectURIs: append([]string(nil), req.PostLogoutRedirectURIs...),
		Scopes:                 append([]string(nil), req.Scopes...),
		AccessTokenTTLMinutes:  req.AccessTokenTTLMinutes,
		RefreshTokenTTLDays:    req.RefreshTokenTTLDays,
		RequireProofKey:        true,
		RequireConsent:         req.RequireConsent,
		Status:                 StatusActive,
		CreatedBy:              req.CreatedBy,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if c.Name == "" {
		c.Name = t.Name + " - Custom Client"
	}
	if len(c.RedirectURIs) == 0 {
		c.RedirectURIs = []string{fmt.Sprintf("https://%s.%s/callback", tenantSlug(t.Code), d.BaseDomain)}
	}
	if len(c.Scopes) == 0 {
		c.Scopes = []string{"openid", "profile", "email"}
	}
	if c.AccessTokenTTLMinutes <= 0 {
		c.AccessTokenTTLMinutes = d.AccessTokenTTLMinutes
	}
	if c.RefreshTokenTTLDays <= 0 {
		c.RefreshTokenTTLDays = d.RefreshTokenTTLDays
	}
	if req.RequireProofKey != nil {
		c.RequireProofKey = *req.RequireProofKey
	}
	return c
}

// NewSystemClient builds the platform client used for cross-tenant administration.
func NewSystemClient(secretHash string, d Defaults, now time.Time) *Client {
	return &Client{
		ID:          uuid.NewString(),
		ClientID:    SystemClientID,
		SecretHash:  secretHash,
		Name:        "HMS System Client",
		AuthMethods: []string{AuthClientSecretBasic, AuthClientSecretPost},
		GrantTypes:  []string{GrantAuthorizationCode, GrantRefreshToken, GrantClientCredentials},
		RedirectURIs: []string{
			"http://localhost:3000/callback",
			"http://localhost:4200/callback",
			"https://admin.hms-platform.com/callback",
		},
		Scopes:                []string{"openid", "profile", "email", "system:admin", "tenant:manage"},
		AccessTokenTTLMinutes: d.AccessTokenTTLMinutes,
		RefreshTokenTTLDays:   d.RefreshTokenTTLDays,
		RequireProofKey:       true,
		Status:                StatusActive,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}
