package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/MrEthical07/tenantauth/internal/kv"
	"github.com/MrEthical07/tenantauth/internal/logger"
)

const (
	keyNamespace  = "oauth2_clients"
	generationKey = keyNamespace + ":gen"

	DefaultCacheTTL = 30 * time.Minute
	// DefaultWriteTimeout bounds invalidation and fills when RegistryConfig sets none.
	DefaultWriteTimeout = 2 * time.Second
)

// RegistryConfig tunes the cache layer.
type RegistryConfig struct {
	TTL time.Duration `yaml:"ttl"`
	// ReadTimeout bounds each cache round trip; on expiry the lookup goes to the store.
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// WriteTimeout bounds generation bumps and cache fills. Zero means DefaultWriteTimeout.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// CachedRegistry is a cache-through view over a Store.
type CachedRegistry struct {
	cache   kv.Store
	backing Store
	cfg     RegistryConfig
	log     *zap.Logger
	sf      singleflight.Group
}

// NewCachedRegistry composes cache over backing.
func NewCachedRegistry(cache kv.Store, backing Store, cfg RegistryConfig, log *zap.Logger) *CachedRegistry {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCacheTTL
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CachedRegistry{cache: cache, backing: backing, cfg: cfg, log: log}
}

// FindByID resolves by internal id.
func (r *CachedRegistry) FindByID(ctx context.Context, id string) (*Client, error) {
	return r.find(ctx, "id", id, r.backing.FindByID)
}

// FindByClientID resolves by public client id.
func (r *CachedRegistry) FindByClientID(ctx context.Context, clientID string) (*Client, error) {
	return r.find(ctx, "client", clientID, r.backing.FindByClientID)
}

func (r *CachedRegistry) find(ctx context.Context, space, value string, load func(context.Context, string) (*Client, error)) (*Client, error) {
	if value == "" {
		return nil, ErrNotFound
	}

	// The generation is read before the store so a fill racing a Save lands in the old
	// namespace.
	gen, err := r.generation(ctx)
	if err != nil {
		r.log.Warn("client cache unavailable, reading store", zap.Error(err), logger.ClientID(value))
		return load(ctx, value)
	}
	key := cacheKey(gen, space, value)

	if c, ok := r.readCache(ctx, key); ok {
		return c, nil
	}

	v, err, _ := r.sf.Do(key, func() (interface{}, error) {
		c, err := load(ctx, value)
		if err != nil {
			return nil, err
		}
		r.fill(ctx, gen, c)
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Client).Clone(), nil
}

// Save writes through to the store, then invalidates every cached entry. An error after a
// successful write means the cache may serve the previous version until TTL expiry.
func (r *CachedRegistry) Save(ctx context.Context, c *Client) error {
	if err := r.backing.Save(ctx, c); err != nil {
		return err
	}
	return r.Invalidate(ctx)
}

// Delete removes a registration and invalidates the cache.
func (r *CachedRegistry) Delete(ctx context.Context, id string) error {
	if err := r.backing.Delete(ctx, id); err != nil {
		return err
	}
	return r.Invalidate(ctx)
}

// ListByTenant always reads the store.
func (r *CachedRegistry) ListByTenant(ctx context.Context, tenantID string) ([]*Client, error) {
	return r.backing.ListByTenant(ctx, tenantID)
}

// Invalidate bumps the generation counter.
func (r *CachedRegistry) Invalidate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()
	if _, err := r.cache.Incr(ctx, generationKey); err != nil {
		return fmt.Errorf("invalidate client cache: %w", err)
	}
	return nil
}

// EnsureSystemClient registers the platform client through the registry, so the cache is
// invalidated when a registration is created.
func (r *CachedRegistry) EnsureSystemClient(ctx context.Context, factory func() (*Client, error)) (*Client, bool, error) {
	c, created, err := EnsureSystemClient(ctx, r, factory)
	if created {
		r.log.Warn("system client missing, registered default", logger.ClientID(c.ClientID))
	}
	return c, created, err
}

func (r *CachedRegistry) generation(ctx context.Context) (string, error) {
	ctx, cancel := r.readContext(ctx)
	defer cancel()
	gen, err := r.cache.Get(ctx, generationKey)
	if kv.IsNotFound(err) {
		return "0", nil
	}
	return gen, err
}

func (r *CachedRegistry) readCache(ctx context.Context, key string) (*Client, bool) {
	ctx, cancel := r.readContext(ctx)
	defer cancel()
	raw, err := r.cache.Get(ctx, key)
	if err != nil {
		if !kv.IsNotFound(err) {
			r.log.Warn("client cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var c Client
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		r.log.Warn("client cache entry corrupt", zap.Error(err))
		return nil, false
	}
	return &c, true
}

func (r *CachedRegistry) fill(ctx context.Context, gen string, c *Client) {
	raw, err := json.Marshal(c)
	if err != nil {
		r.log.Warn("client cache encode failed", zap.Error(err), logger.ClientID(c.ClientID))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()
	entries := map[string]string{
		cacheKey(gen, "id", c.ID):           string(raw),
		cacheKey(gen, "client", c.ClientID): string(raw),
	}
	if err := r.cache.SetMany(ctx, entries, r.cfg.TTL); err != nil {
		r.log.Warn("client cache fill failed", zap.Error(err), logger.ClientID(c.ClientID))
	}
}

func (r *CachedRegistry) readContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.ReadTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.cfg.ReadTimeout)
}

func cacheKey(gen, space, value string) string {
	return keyNamespace + ":" + gen + ":" + space + ":" + value
}
