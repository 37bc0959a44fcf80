package tenantauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/tenantauth/clients"
	"github.com/MrEthical07/tenantauth/internal"
	internalaudit "github.com/MrEthical07/tenantauth/internal/audit"
	"github.com/MrEthical07/tenantauth/internal/kv"
	"github.com/MrEthical07/tenantauth/internal/limiters"
	"github.com/MrEthical07/tenantauth/internal/logger"
	"github.com/MrEthical07/tenantauth/jwt"
	"github.com/MrEthical07/tenantauth/password"
	"github.com/MrEthical07/tenantauth/permission"
	"github.com/MrEthical07/tenantauth/token"
)

// Builder assembles an Engine. A Builder is single-use: the second Build call fails.
type Builder struct {
	config Config

	redis redis.UniversalClient
	kv    kv.Store

	credentials CredentialStore
	roles       RoleStore
	tenants     TenantStore
	clientStore clients.Store

	permissions []string
	auditSink   AuditSink
	log         *zap.Logger
	now         func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration. The Builder keeps its own copy.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithCredentialStore sets the tenant, user and password history store. Required.
// When store also implements PasswordChanger, password changes run in one transaction.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.credentials = store
	return b
}

// WithRoleStore enables the role catalog operations.
func (b *Builder) WithRoleStore(store RoleStore) *Builder {
	b.roles = store
	return b
}

// WithTenantStore enables tenant activation and suspension.
func (b *Builder) WithTenantStore(store TenantStore) *Builder {
	b.tenants = store
	return b
}

// WithClientStore enables client administration. Lookups go through the kv cache when
// Config.ClientCache.Enabled is set.
func (b *Builder) WithClientStore(store clients.Store) *Builder {
	b.clientStore = store
	return b
}

// WithRedis backs the denylist and client cache with client. It takes precedence over
// Config.Redis and the Engine does not close it.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithKV sets the denylist and cache store directly. The Engine does not close it.
func (b *Builder) WithKV(store kv.Store) *Builder {
	b.kv = store
	return b
}

// WithAuditSink sets the destination of audit events. Without a sink no events are
// dispatched.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.log = l
	return b
}

// WithClock overrides the time source used for lockout, expiry and token issuance.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithPermissions registers the permission catalog. When set, AssignPermissions and
// CreateRole reject codes outside it.
func (b *Builder) WithPermissions(perms []string) *Builder {
	b.permissions = append([]string(nil), perms...)
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build is BuildContext with a background context.
func (b *Builder) Build() (*Engine, error) {
	return b.BuildContext(context.Background())
}

// BuildContext validates the configuration, wires every component and, when a client
// store is configured, registers the platform client. ctx bounds the startup calls.
func (b *Builder) BuildContext(ctx context.Context) (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	b.built = true

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.credentials == nil {
		return nil, errors.New("credential store required")
	}

	log := b.log
	if log == nil {
		log = logger.Nop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- PERMISSION CATALOG --------
	var catalog *permission.Registry
	if len(b.permissions) > 0 {
		catalog = permission.NewRegistry()
		for _, p := range b.permissions {
			if err := catalog.Register(p); err != nil {
				return nil, fmt.Errorf("permission %q: %w", p, err)
			}
		}
		catalog.Freeze()
	}

	// -------- CREDENTIAL PRIMITIVES --------
	hasher, err := buildHasher(cfg.PasswordHash)
	if err != nil {
		return nil, err
	}
	policy, err := password.NewPolicy(cfg.PasswordPolicy)
	if err != nil {
		return nil, err
	}
	guard := limiters.NewLockoutGuard(cfg.Lockout.guardConfig())

	// -------- SIGNER --------
	method := jwt.SigningMethod(strings.ToLower(cfg.JWT.SigningMethod))
	privateKey := cloneBytes(cfg.JWT.PrivateKey)
	if method == jwt.MethodHS256 {
		privateKey = cloneBytes(cfg.hmacSecret())
	}
	signer, err := jwt.NewManager(jwt.Config{
		SigningMethod: method,
		PrivateKey:    privateKey,
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		RequireIAT:    true,
		KeyID:         cfg.JWT.KeyID,
	})
	if err != nil {
		return nil, err
	}

	// -------- KV STORE --------
	store, ownsKV := b.kv, false
	switch {
	case store != nil:
	case b.redis != nil:
		store = kv.NewRedis(b.redis, cfg.Redis.Prefix)
	default:
		store, err = kv.New(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("kv store: %w", err)
		}
		ownsKV = true
	}

	tokens, err := token.NewProvider(signer, store, token.Config{
		AccessTTL:  cfg.Token.AccessTTL,
		RefreshTTL: cfg.Token.RefreshTTL,
	}, token.WithClock(now), token.WithLogger(log.Named("token")))
	if err != nil {
		if ownsKV {
			_ = store.Close()
		}
		return nil, err
	}

	engine := &Engine{
		config:      cfg,
		log:         log,
		now:         now,
		credentials: b.credentials,
		roles:       b.roles,
		tenants:     b.tenants,
		catalog:     catalog,
		tokens:      tokens,
		kv:          store,
		ownsKV:      ownsKV,
		hasher:      hasher,
		policy:      policy,
		guard:       guard,
		metrics:     NewMetrics(cfg.Metrics),
	}
	if changer, ok := b.credentials.(PasswordChanger); ok {
		engine.changer = changer
	}
	if b.auditSink != nil {
		engine.audit = internalaudit.NewDispatcher(cfg.Audit, b.auditSink, internalaudit.WithLogger(log.Named("audit")))
	}

	// -------- CLIENT REGISTRY --------
	if b.clientStore != nil {
		engine.clients = b.clientStore
		if cfg.ClientCache.Enabled {
			engine.clients = clients.NewCachedRegistry(store, b.clientStore, clients.RegistryConfig{
				TTL:          cfg.ClientCache.TTL,
				ReadTimeout:  cfg.Timeouts.Cache,
				WriteTimeout: cfg.Timeouts.Cache,
			}, log.Named("clients"))
		}
		if cfg.ClientCache.BootstrapSystemClient {
			if err := engine.bootstrapSystemClient(ctx); err != nil {
				engine.Close()
				return nil, fmt.Errorf("bootstrap system client: %w", err)
			}
		}
	}

	return engine, nil
}

func buildHasher(cfg PasswordHashConfig) (*password.Multi, error) {
	argon, err := password.NewArgon2(cfg.Argon2)
	if err != nil {
		return nil, err
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = 12
	}
	bc, err := password.NewBcrypt(cost)
	if err != nil {
		return nil, err
	}

	if cfg.Algorithm == "bcrypt" {
		if cfg.AcceptLegacy {
			return password.NewMulti(bc, argon), nil
		}
		return password.NewMulti(bc), nil
	}
	if cfg.AcceptLegacy {
		return password.NewMulti(argon, bc), nil
	}
	return password.NewMulti(argon), nil
}

func (e *Engine) bootstrapSystemClient(ctx context.Context) error {
	secret := e.config.ClientCache.SystemClientSecret
	generated := secret == ""
	if generated {
		secret = internal.NewClientSecret()
	}

	factory := func() (*clients.Client, error) {
		hash, err := e.hasher.Hash(secret)
		if err != nil {
			return nil, err
		}
		return clients.NewSystemClient(hash, e.config.Clients, e.now().UTC()), nil
	}

	sctx, cancel := e.storeContext(ctx)
	defer cancel()

	var (
		created bool
		err     error
	)
	if reg, ok := e.clients.(*clients.CachedRegistry); ok {
		_, created, err = reg.EnsureSystemClient(sctx, factory)
	} else {
		_, created, err = clients.EnsureSystemClient(sctx, e.clients, factory)
	}
	if err != nil {
		return err
	}
	if created && generated {
		e.log.Warn("system client registered with a generated secret; rotate it before use",
			logger.ClientID(clients.SystemClientID))
	}
	return nil
}
