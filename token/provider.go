package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MrEthical07/tenantauth/internal/kv"
	"github.com/MrEthical07/tenantauth/internal/logger"
	"github.com/MrEthical07/tenantauth/jwt"
)

const (
	// DenylistPrefix namespaces revoked token ids in the kv store.
	DenylistPrefix = "token:blacklist:"

	revokedMarker = "invalidated"

	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Config controls token lifetimes.
type Config struct {
	AccessTTL  time.Duration `yaml:"access_ttl"`
	RefreshTTL time.Duration `yaml:"refresh_ttl"`
}

// Validate checks lifetimes.
func (c Config) Validate() error {
	if c.AccessTTL <= 0 {
		return errors.New("AccessTTL must be > 0")
	}
	if c.RefreshTTL <= 0 {
		return errors.New("RefreshTTL must be > 0")
	}
	if c.RefreshTTL < c.AccessTTL {
		return errors.New("RefreshTTL must be >= AccessTTL")
	}
	return nil
}

// Subject is the identity a token pair is minted for. Roles and permissions are frozen
// into the access token at issuance.
type Subject struct {
	UserID      string
	TenantID    string
	TenantCode  string
	Username    string
	Email       string
	Roles       []string
	Permissions []string
}

// Provider mints, validates and revokes tokens. Revoked ids live in a kv denylist until
// their natural expiry.
type Provider struct {
	signer   *jwt.Manager
	denylist kv.Store
	cfg      Config
	log      *zap.Logger
	now      func() time.Time
}

// Option customises a Provider.
type Option func(*Provider)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.log = l
		}
	}
}

// NewProvider builds a Provider. Zero lifetimes take the defaults.
func NewProvider(signer *jwt.Manager, denylist kv.Store, cfg Config, opts ...Option) (*Provider, error) {
	if signer == nil {
		return nil, errors.New("token: signer is required")
	}
	if denylist == nil {
		return nil, errors.New("token: denylist store is required")
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Provider{
		signer:   signer,
		denylist: denylist,
		cfg:      cfg,
		log:      logger.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// AccessTTL returns the access token lifetime.
func (p *Provider) AccessTTL() time.Duration { return p.cfg.AccessTTL }

// RefreshTTL returns the refresh token lifetime.
func (p *Provider) RefreshTTL() time.Duration { return p.cfg.RefreshTTL }

// IssueAccessToken mints a signed access token for s.
func (p *Provider) IssueAccessToken(_ context.Context, s Subject) (string, error) {
	now := p.now()
	claims := &jwt.Claims{
		TenantID:    s.TenantID,
		TenantCode:  s.TenantCode,
		UserID:      s.UserID,
		Username:    s.Username,
		Email:       s.Email,
		Roles:       cloneStrings(s.Roles),
		Permissions: cloneStrings(s.Permissions),
		TokenType:   jwt.TypeAccess,
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   s.UserID,
			ID:        uuid.NewString(),
			IssuedAt:  gjwt.NewNumericDate(now),
			ExpiresAt: gjwt.NewNumericDate(now.Add(p.cfg.AccessTTL)),
		},
	}
	tok, err := p.signer.Sign(claims)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return tok, nil
}

// IssueRefreshToken mints a signed refresh token for s. It carries no roles or permissions.
func (p *Provider) IssueRefreshToken(_ context.Context, s Subject) (string, error) {
	now := p.now()
	claims := &jwt.Claims{
		TenantID:  s.TenantID,
		UserID:    s.UserID,
		TokenType: jwt.TypeRefresh,
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   s.UserID,
			ID:        uuid.NewString(),
			IssuedAt:  gjwt.NewNumericDate(now),
			ExpiresAt: gjwt.NewNumericDate(now.Add(p.cfg.RefreshTTL)),
		},
	}
	tok, err := p.signer.Sign(claims)
	if err != nil {
		return "", fmt.Errorf("sign refresh token: %w", err)
	}
	return tok, nil
}

// Validate checks the denylist, then signature and expiry. Any failure is a
// *ValidationError. A denylist that cannot be reached rejects the token.
func (p *Provider) Validate(ctx context.Context, tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, &ValidationError{Reason: ReasonMalformed, Err: errors.New("empty token")}
	}
	jti, err := jwt.PeekID(tokenStr)
	if err != nil {
		return nil, &ValidationError{Reason: ReasonMalformed, Err: err}
	}

	revoked, err := p.denylist.Exists(ctx, DenylistPrefix+jti)
	if err != nil {
		p.log.Warn("denylist lookup failed", logger.TokenID(jti), zap.Error(err))
		return nil, &ValidationError{Reason: ReasonRevoked, Err: fmt.Errorf("denylist lookup: %w", err)}
	}
	if revoked {
		return nil, &ValidationError{Reason: ReasonRevoked}
	}

	raw, err := p.signer.Parse(tokenStr)
	if err != nil {
		return nil, &ValidationError{Reason: classify(err), Err: err}
	}
	if raw.ID != jti {
		return nil, &ValidationError{Reason: ReasonMalformed, Err: errors.New("jti mismatch")}
	}
	return &Claims{raw: raw}, nil
}

// ValidateAccess validates tokenStr and requires token_type=access.
func (p *Provider) ValidateAccess(ctx context.Context, tokenStr string) (*Claims, error) {
	return p.validateType(ctx, tokenStr, jwt.TypeAccess)
}

// ValidateRefresh validates tokenStr and requires token_type=refresh.
func (p *Provider) ValidateRefresh(ctx context.Context, tokenStr string) (*Claims, error) {
	return p.validateType(ctx, tokenStr, jwt.TypeRefresh)
}

func (p *Provider) validateType(ctx context.Context, tokenStr, want string) (*Claims, error) {
	c, err := p.Validate(ctx, tokenStr)
	if err != nil {
		return nil, err
	}
	if c.TokenType() != want {
		return nil, &ValidationError{Reason: ReasonWrongType, Err: fmt.Errorf("want %s, got %q", want, c.TokenType())}
	}
	return c, nil
}

// Revoke denylists the token id for the rest of the token's lifetime. Expired tokens are a
// no-op. The signature must still verify.
func (p *Provider) Revoke(ctx context.Context, tokenStr string) error {
	raw, err := p.signer.Parse(tokenStr, jwt.WithoutTimeValidation())
	if err != nil {
		return &ValidationError{Reason: classify(err), Err: err}
	}
	if raw.ID == "" || raw.ExpiresAt == nil {
		return &ValidationError{Reason: ReasonMalformed, Err: errors.New("missing jti or exp")}
	}
	ttl := raw.ExpiresAt.Time.Sub(p.now())
	if ttl <= 0 {
		return nil
	}
	if err := p.denylist.Set(ctx, DenylistPrefix+raw.ID, revokedMarker, ttl); err != nil {
		return fmt.Errorf("denylist write: %w", err)
	}
	p.log.Debug("token revoked", logger.TokenID(raw.ID), logger.UserID(raw.UserID))
	return nil
}

// IsRevoked reports whether jti is on the denylist.
func (p *Provider) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return p.denylist.Exists(ctx, DenylistPrefix+jti)
}

func classify(err error) Reason {
	switch {
	case errors.Is(err, gjwt.ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, gjwt.ErrTokenMalformed):
		return ReasonMalformed
	default:
		return ReasonSignature
	}
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
