package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/clients"
	"github.com/MrEthical07/tenantauth/store/pg"
)

// backend is what the commands need from a store.
type backend interface {
	EnsureSchema(ctx context.Context) error
	Clients() clients.Store
	Engine(cfg tenantauth.Config, log *zap.Logger) (*tenantauth.Engine, error)
	Close()
}

type backendOpener func(ctx context.Context, cfg tenantauth.Config, log *zap.Logger) (backend, error)

type pgBackend struct {
	store *pg.Store
	log   *zap.Logger
}

func openPostgres(ctx context.Context, cfg tenantauth.Config, log *zap.Logger) (backend, error) {
	s, err := pg.New(ctx, cfg.Database, pg.WithLogger(log.Named("pg")))
	if err != nil {
		return nil, err
	}
	return &pgBackend{store: s, log: log}, nil
}

func (b *pgBackend) EnsureSchema(ctx context.Context) error { return b.store.EnsureSchema(ctx) }

func (b *pgBackend) Clients() clients.Store { return b.store.Clients() }

func (b *pgBackend) Engine(cfg tenantauth.Config, log *zap.Logger) (*tenantauth.Engine, error) {
	return tenantauth.New().
		WithConfig(cfg).
		WithLogger(log).
		WithCredentialStore(b.store).
		WithRoleStore(b.store).
		WithTenantStore(b.store).
		WithClientStore(b.store.Clients()).
		WithAuditSink(b.store.AuditSink()).
		Build()
}

func (b *pgBackend) Close() { b.store.Close() }
