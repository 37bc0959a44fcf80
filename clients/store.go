package clients

import (
	"context"
	"errors"
	"fmt"
)

// Lookup resolves registrations. Both the backing store and the cached registry satisfy it.
type Lookup interface {
	// FindByID returns ErrNotFound for unknown ids.
	FindByID(ctx context.Context, id string) (*Client, error)
	// FindByClientID returns ErrNotFound for unknown client ids.
	FindByClientID(ctx context.Context, clientID string) (*Client, error)
}

// Store is the durable registration store.
type Store interface {
	Lookup
	// Save inserts or replaces by ID. A ClientID held by a different ID returns ErrDuplicate.
	Save(ctx context.Context, c *Client) error
	Delete(ctx context.Context, id string) error
	ListByTenant(ctx context.Context, tenantID string) ([]*Client, error)
}

// EnsureSystemClient looks up SystemClientID and, only when it is absent, saves the client
// built by factory. factory usually hashes a secret, so it is not called for an existing
// registration. It reports whether a registration was created.
func EnsureSystemClient(ctx context.Context, store Store, factory func() (*Client, error)) (*Client, bool, error) {
	existing, err := store.FindByClientID(ctx, SystemClientID)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, ErrNotFound):
		return nil, false, err
	}

	c, err := factory()
	if err != nil {
		return nil, false, err
	}
	if c.ClientID != SystemClientID {
		return nil, false, fmt.Errorf("system client factory returned client id %q", c.ClientID)
	}
	if err := store.Save(ctx, c); err != nil {
		return nil, false, err
	}
	return c, true, nil
}
