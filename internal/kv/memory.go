package kv

import (
	"context"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory implements Store in process on go-cache.
type Memory struct {
	c      *gocache.Cache
	prefix string
	mu     sync.Mutex // serialises Incr create-or-increment
}

// NewMemory returns an in-process store whose janitor sweeps expired keys every minute.
func NewMemory(prefix string) *Memory {
	return &Memory{
		c:      gocache.New(gocache.NoExpiration, time.Minute),
		prefix: prefix,
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	v, ok := m.c.Get(join(m.prefix, key))
	if !ok {
		return "", ErrNotFound
	}
	switch val := v.(type) {
	case string:
		return val, nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	default:
		return "", ErrNotFound
	}
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.c.Set(join(m.prefix, key), value, expiry(ttl))
	return nil
}

func (m *Memory) SetMany(ctx context.Context, entries map[string]string, ttl time.Duration) error {
	for k, v := range entries {
		m.c.Set(join(m.prefix, k), v, expiry(ttl))
	}
	return nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.c.Get(join(m.prefix, key))
	return ok, nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.c.Delete(join(m.prefix, k))
	}
	return nil
}

func (m *Memory) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	full := join(m.prefix, key)
	if v, err := m.c.IncrementInt64(full, 1); err == nil {
		return v, nil
	}
	m.c.Set(full, int64(1), gocache.NoExpiration)
	return 1, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error {
	m.c.Flush()
	return nil
}

func expiry(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}
