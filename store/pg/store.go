package pg

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/MrEthical07/tenantauth"
)

//go:embed schema.sql
var schemaSQL string

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Store is the PostgreSQL credential, tenant and role store.
type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

var (
	_ tenantauth.CredentialStore = (*Store)(nil)
	_ tenantauth.PasswordChanger = (*Store)(nil)
	_ tenantauth.TenantStore     = (*Store)(nil)
	_ tenantauth.RoleStore       = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for pool lifecycle and audit write failures.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// New opens a pool for cfg.URL. The pool is pinged once; a failed ping is logged and
// not returned so a process can start while the database is still coming up.
func New(ctx context.Context, cfg tenantauth.DatabaseConfig, opts ...Option) (*Store, error) {
	if cfg.URL == "" {
		return nil, errors.New("pg: database url is required")
	}
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("pg: parse url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pg: open pool: %w", err)
	}
	s := NewFromPool(pool, opts...)

	if err := pool.Ping(ctx); err != nil {
		s.log.Warn("pg pool startup ping failed", zap.Error(err))
	} else {
		s.log.Info("pg pool ready", zap.Int32("max_conns", pcfg.MaxConns))
	}
	return s, nil
}

// NewFromPool wraps an existing pool. Close will close it.
func NewFromPool(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pool exposes the pool for the client store, the audit sink and migrations.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close closes the pool. It is safe to call more than once.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema applies the embedded schema.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("pg: apply schema: %w", err)
	}
	return nil
}

// Clients returns a client store sharing this pool.
func (s *Store) Clients() *Clients { return &Clients{pool: s.pool} }

// AuditSink returns an audit sink sharing this pool.
func (s *Store) AuditSink() *AuditSink { return &AuditSink{pool: s.pool, log: s.log} }

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// mapError translates driver errors into the store sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return tenantauth.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", tenantauth.ErrConflict, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", tenantauth.ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func nullText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefText(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
