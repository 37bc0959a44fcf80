package tenantauth

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/tenantauth/clients"
	internalaudit "github.com/MrEthical07/tenantauth/internal/audit"
	"github.com/MrEthical07/tenantauth/internal/kv"
	"github.com/MrEthical07/tenantauth/internal/limiters"
	"github.com/MrEthical07/tenantauth/internal/logger"
	"github.com/MrEthical07/tenantauth/password"
)

// Config is the full engine configuration. Build works on a private copy; mutating a
// Config after Build has no effect.
type Config struct {
	JWT            JWTConfig             `yaml:"jwt"`
	Token          TokenConfig           `yaml:"token"`
	Lockout        LockoutConfig         `yaml:"lockout"`
	PasswordPolicy password.PolicyConfig `yaml:"password_policy"`
	PasswordHash   PasswordHashConfig    `yaml:"password_hash"`
	ClientCache    ClientCacheConfig     `yaml:"client_cache"`
	Clients        clients.Defaults      `yaml:"clients"`
	Audit          AuditConfig           `yaml:"audit"`
	Metrics        MetricsConfig         `yaml:"metrics"`
	Timeouts       TimeoutConfig         `yaml:"timeouts"`
	Redis          kv.Config             `yaml:"redis"`
	Database       DatabaseConfig        `yaml:"database"`
	Log            logger.Config         `yaml:"log"`
	Security       SecurityConfig        `yaml:"security"`
}

/*
====================================
JWT / TOKEN CONFIG
====================================
*/

// JWTConfig holds signing keys. For hs256, Secret is used when PrivateKey is empty.
// Key files hold PEM-encoded Ed25519 keys.
type JWTConfig struct {
	SigningMethod  string        `yaml:"signing_method"` // "hs256" (default) or "ed25519"
	Secret         string        `yaml:"secret"`
	PrivateKeyFile string        `yaml:"private_key_file"`
	PublicKeyFile  string        `yaml:"public_key_file"`
	KeyID          string        `yaml:"key_id"`
	Issuer         string        `yaml:"issuer"`
	Audience       string        `yaml:"audience"`
	Leeway         time.Duration `yaml:"leeway"`
	PrivateKey     []byte        `yaml:"-"`
	PublicKey      []byte        `yaml:"-"`
}

// TokenConfig controls token lifetimes and refresh behaviour.
type TokenConfig struct {
	AccessTTL  time.Duration `yaml:"access_ttl"`
	RefreshTTL time.Duration `yaml:"refresh_ttl"`
	// RotateRefreshTokens revokes the presented refresh token on every successful refresh.
	RotateRefreshTokens bool `yaml:"rotate_refresh_tokens"`
}

/*
====================================
CREDENTIAL CONFIG
====================================
*/

// LockoutConfig controls the failed-login lockout guard.
type LockoutConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxAttempts int           `yaml:"max_attempts"`
	Duration    time.Duration `yaml:"duration"`
	// ResetAfter opts into a rolling failure window. Zero counts consecutive failures
	// until a successful login.
	ResetAfter time.Duration `yaml:"reset_after"`
	AutoUnlock bool          `yaml:"auto_unlock"`
}

func (c LockoutConfig) guardConfig() limiters.LockoutConfig {
	return limiters.LockoutConfig{
		Enabled:    c.Enabled,
		Threshold:  c.MaxAttempts,
		Duration:   c.Duration,
		ResetAfter: c.ResetAfter,
		AutoUnlock: c.AutoUnlock,
	}
}

// PasswordHashConfig selects the hashing algorithm for new hashes. Hashes of the other
// algorithm still verify when AcceptLegacy is set.
type PasswordHashConfig struct {
	Algorithm      string                `yaml:"algorithm"` // "argon2id" (default) or "bcrypt"
	Argon2         password.Argon2Config `yaml:"argon2"`
	BcryptCost     int                   `yaml:"bcrypt_cost"`
	AcceptLegacy   bool                  `yaml:"accept_legacy"`
	UpgradeOnLogin bool                  `yaml:"upgrade_on_login"`
}

/*
====================================
INFRASTRUCTURE CONFIG
====================================
*/

// ClientCacheConfig controls the client registry cache.
type ClientCacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
	// BootstrapSystemClient registers the platform client during Build.
	BootstrapSystemClient bool `yaml:"bootstrap_system_client"`
	// SystemClientSecret is hashed on registration. Empty generates a random secret.
	SystemClientSecret string `yaml:"system_client_secret"`
}

// AuditConfig controls asynchronous audit dispatch.
type AuditConfig = internalaudit.Config

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

// TimeoutConfig bounds every call to an external collaborator.
type TimeoutConfig struct {
	Store time.Duration `yaml:"store"`
	Cache time.Duration `yaml:"cache"`
}

// DatabaseConfig is used by the pg store and the CLI.
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

// SecurityConfig tightens validation for production deployments.
type SecurityConfig struct {
	ProductionMode bool `yaml:"production_mode"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a configuration suitable for development. A JWT secret must still
// be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SigningMethod: "hs256",
			Issuer:        "tenantauth",
		},
		Token: TokenConfig{
			AccessTTL:           15 * time.Minute,
			RefreshTTL:          7 * 24 * time.Hour,
			RotateRefreshTokens: false,
		},
		Lockout: LockoutConfig{
			Enabled:     true,
			MaxAttempts: 5,
			Duration:    30 * time.Minute,
			AutoUnlock:  false,
		},
		PasswordPolicy: password.DefaultPolicyConfig(),
		PasswordHash: PasswordHashConfig{
			Algorithm: "argon2id",
			Argon2: password.Argon2Config{
				Memory:      65536,
				Time:        3,
				Parallelism: 2,
				SaltLength:  16,
				KeyLength:   32,
			},
			BcryptCost:     12,
			AcceptLegacy:   true,
			UpgradeOnLogin: true,
		},
		ClientCache: ClientCacheConfig{
			Enabled:               true,
			TTL:                   30 * time.Minute,
			BootstrapSystemClient: true,
		},
		Clients: clients.DefaultDefaults(),
		Audit: AuditConfig{
			Enabled:     true,
			BufferSize:  1024,
			DropIfFull:  true,
			SinkTimeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Timeouts: TimeoutConfig{
			Store: 2 * time.Second,
			Cache: 250 * time.Millisecond,
		},
		Redis: kv.Config{
			Driver: "memory",
			Prefix: "tenantauth",
		},
		Database: DatabaseConfig{
			MaxConns: 10,
		},
		Log: logger.Config{
			Env:         "dev",
			Level:       "info",
			ServiceName: "tenantauth",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	switch strings.ToLower(c.JWT.SigningMethod) {
	case "hs256":
		if len(c.JWT.PrivateKey) == 0 && c.JWT.Secret == "" {
			return errors.New("hs256 requires Secret or PrivateKey")
		}
	case "ed25519":
		if len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	if c.Token.AccessTTL <= 0 {
		return errors.New("Token AccessTTL must be > 0")
	}
	if c.Token.RefreshTTL <= 0 {
		return errors.New("Token RefreshTTL must be > 0")
	}
	if c.Token.RefreshTTL < c.Token.AccessTTL {
		return errors.New("Token RefreshTTL must be >= AccessTTL")
	}

	if err := c.Lockout.guardConfig().Validate(); err != nil {
		return err
	}
	if err := c.PasswordPolicy.Validate(); err != nil {
		return err
	}

	switch c.PasswordHash.Algorithm {
	case "argon2id", "":
		if c.PasswordHash.Argon2.Memory < 8192 {
			return errors.New("Argon2 Memory must be >= 8192 KB")
		}
		if c.PasswordHash.Argon2.Time < 1 {
			return errors.New("Argon2 Time must be >= 1")
		}
		if c.PasswordHash.Argon2.Parallelism < 1 {
			return errors.New("Argon2 Parallelism must be >= 1")
		}
	case "bcrypt":
		if c.PasswordHash.BcryptCost < 4 || c.PasswordHash.BcryptCost > 31 {
			return errors.New("BcryptCost must be between 4 and 31")
		}
	default:
		return errors.New("unsupported password hash algorithm")
	}

	if c.ClientCache.Enabled && c.ClientCache.TTL <= 0 {
		return errors.New("ClientCache TTL must be > 0 when the cache is enabled")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Timeouts.Store < 0 || c.Timeouts.Cache < 0 {
		return errors.New("Timeouts must be >= 0")
	}
	if c.Redis.Driver != "" && c.Redis.Driver != "memory" && c.Redis.Driver != "redis" {
		return errors.New("Redis Driver must be 'memory' or 'redis'")
	}
	if c.Redis.Driver == "redis" && c.Redis.Addr == "" {
		return errors.New("Redis Addr is required for the redis driver")
	}

	if c.Security.ProductionMode {
		if c.Token.AccessTTL > 15*time.Minute {
			return errors.New("ProductionMode requires Token AccessTTL <= 15m")
		}
		if c.Token.RefreshTTL > 30*24*time.Hour {
			return errors.New("ProductionMode requires Token RefreshTTL <= 30d")
		}
		if strings.EqualFold(c.JWT.SigningMethod, "hs256") && len(c.hmacSecret()) < 32 {
			return errors.New("ProductionMode requires hs256 secret length >= 256 bits")
		}
		if !c.Lockout.Enabled {
			return errors.New("ProductionMode requires Lockout Enabled")
		}
		if c.Redis.Driver != "redis" {
			return errors.New("ProductionMode requires the redis driver")
		}
	}
	return nil
}

func (c *Config) hmacSecret() []byte {
	if len(c.JWT.PrivateKey) > 0 {
		return c.JWT.PrivateKey
	}
	return []byte(c.JWT.Secret)
}

/*
====================================
LOADING
====================================
*/

const envPrefix = "TENANTAUTH_"

// LoadConfig reads a YAML file over DefaultConfig, applies TENANTAUTH_* environment
// overrides and loads key files. An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := loadKeyFiles(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}
	str("JWT_SIGNING_METHOD", &cfg.JWT.SigningMethod)
	str("JWT_SECRET", &cfg.JWT.Secret)
	str("JWT_PRIVATE_KEY_FILE", &cfg.JWT.PrivateKeyFile)
	str("JWT_PUBLIC_KEY_FILE", &cfg.JWT.PublicKeyFile)
	str("JWT_ISSUER", &cfg.JWT.Issuer)
	str("REDIS_DRIVER", &cfg.Redis.Driver)
	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	str("DATABASE_URL", &cfg.Database.URL)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("ENV", &cfg.Log.Env)
	str("SYSTEM_CLIENT_SECRET", &cfg.ClientCache.SystemClientSecret)
	str("PASSWORD_HASH_ALGORITHM", &cfg.PasswordHash.Algorithm)

	durations := map[string]*time.Duration{
		"ACCESS_TTL":         &cfg.Token.AccessTTL,
		"REFRESH_TTL":        &cfg.Token.RefreshTTL,
		"LOCKOUT_DURATION":   &cfg.Lockout.Duration,
		"AUDIT_SINK_TIMEOUT": &cfg.Audit.SinkTimeout,
	}
	for name, dst := range durations {
		if v, ok := lookup(envPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			*dst = d
		}
	}

	ints := map[string]*int{
		"REDIS_DB":             &cfg.Redis.DB,
		"LOCKOUT_MAX_ATTEMPTS": &cfg.Lockout.MaxAttempts,
		"BCRYPT_COST":          &cfg.PasswordHash.BcryptCost,
	}
	for name, dst := range ints {
		if v, ok := lookup(envPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			*dst = n
		}
	}

	if v, ok := lookup(envPrefix + "PRODUCTION_MODE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sPRODUCTION_MODE: %w", envPrefix, err)
		}
		cfg.Security.ProductionMode = b
	}
	return nil
}

func loadKeyFiles(cfg *Config) error {
	if cfg.JWT.PrivateKeyFile != "" {
		b, err := os.ReadFile(cfg.JWT.PrivateKeyFile)
		if err != nil {
			return fmt.Errorf("read private key: %w", err)
		}
		cfg.JWT.PrivateKey = b
	}
	if cfg.JWT.PublicKeyFile != "" {
		b, err := os.ReadFile(cfg.JWT.PublicKeyFile)
		if err != nil {
			return fmt.Errorf("read public key: %w", err)
		}
		cfg.JWT.PublicKey = b
	}
	return nil
}
