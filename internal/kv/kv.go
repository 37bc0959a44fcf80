// Package kv provides the key-value backing service used for the token denylist and the
// client registry cache.
//
// Two backends exist: Redis (shared across processes, production) and an in-process
// go-cache store (single process, development and tests). Both honour per-key TTLs.
package kv

import (
	"context"
	"errors"
	"time"
)

// Store is a string key-value store with per-key TTL.
type Store interface {
	// Get returns ErrNotFound when key does not exist or has expired.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value. A zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetMany stores all entries with one ttl in a single round trip where the backend allows.
	SetMany(ctx context.Context, entries map[string]string, ttl time.Duration) error

	Exists(ctx context.Context, key string) (bool, error)

	Delete(ctx context.Context, keys ...string) error

	// Incr atomically increments an integer counter, creating it at 1.
	Incr(ctx context.Context, key string) (int64, error)

	Ping(ctx context.Context) error

	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Driver   string `yaml:"driver"` // "redis" | "memory"
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// ErrNotFound is returned by Get for missing keys.
var ErrNotFound = errors.New("kv: key not found")

// IsNotFound reports whether err is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// New builds a Store for cfg. Unknown drivers fall back to memory.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "redis":
		return DialRedis(ctx, cfg)
	default:
		return NewMemory(cfg.Prefix), nil
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + ":" + key
}
