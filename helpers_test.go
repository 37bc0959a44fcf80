package tenantauth_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/password"
	"github.com/MrEthical07/tenantauth/permission"
	"github.com/MrEthical07/tenantauth/store/memory"
)

const (
	acmeID   = "t-acme"
	otherID  = "t-other"
	newcoID  = "t-newco"
	janeID   = "u-jane"
	adminID  = "u-admin"
	bobID    = "u-bob"
	janePass = "Secret123!"
)

var catalog = []string{
	"patient:read", "patient:write", "prescription:write", "billing:read",
	tenantauth.PermClientCreate, tenantauth.PermClientRead, tenantauth.PermClientUpdate, tenantauth.PermClientDelete,
	tenantauth.PermRoleRead, tenantauth.PermRoleManage,
	tenantauth.PermTenantManage, tenantauth.PermUserManage, tenantauth.PermSystemAdmin,
}

var adminPerms = []string{
	tenantauth.PermClientCreate, tenantauth.PermClientRead, tenantauth.PermClientUpdate, tenantauth.PermClientDelete,
	tenantauth.PermRoleRead, tenantauth.PermRoleManage,
	tenantauth.PermTenantManage, tenantauth.PermUserManage,
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// conflictStore fails the next n SaveUser calls with a version conflict.
type conflictStore struct {
	*memory.Store
	conflicts atomic.Int32
}

func (s *conflictStore) SaveUser(ctx context.Context, u *tenantauth.User, expectedVersion int64) error {
	if s.conflicts.Add(-1) >= 0 {
		return tenantauth.ErrVersionConflict
	}
	return s.Store.SaveUser(ctx, u, expectedVersion)
}

// lockRaceStore simulates failed logins on another node: the first login-success save
// of userID finds the account freshly locked and fails with a version conflict.
type lockRaceStore struct {
	*memory.Store
	userID      string
	lockedUntil time.Time
	status      tenantauth.UserStatus
	fired       atomic.Bool
}

func (s *lockRaceStore) SaveUser(ctx context.Context, u *tenantauth.User, expectedVersion int64) error {
	if u.ID == s.userID && !u.LastLoginAt.IsZero() && s.fired.CompareAndSwap(false, true) {
		cur, err := s.Store.FindUserByID(ctx, u.ID)
		if err != nil {
			return err
		}
		cur.Status = s.status
		if s.status == tenantauth.UserLocked {
			cur.FailedLoginAttempts = 5
			cur.LastFailedLoginAt = s.lockedUntil.Add(-30 * time.Minute)
			cur.LockedUntil = s.lockedUntil
		}
		if err := s.Store.SaveUser(ctx, cur, cur.Version); err != nil {
			return err
		}
		return tenantauth.ErrVersionConflict
	}
	return s.Store.SaveUser(ctx, u, expectedVersion)
}

type fixture struct {
	engine  *tenantauth.Engine
	store   *memory.Store
	clients *memory.Clients
	sink    *tenantauth.ChannelSink
	clock   *testClock
	redis   *miniredis.Miniredis
	hasher  password.Hasher
}

func testConfig() tenantauth.Config {
	cfg := tenantauth.DefaultConfig()
	cfg.JWT.Secret = "0123456789abcdef0123456789abcdef"
	cfg.PasswordHash.Algorithm = "bcrypt"
	cfg.PasswordHash.BcryptCost = 4
	cfg.ClientCache.BootstrapSystemClient = false
	cfg.Audit.BufferSize = 256
	cfg.Audit.DropIfFull = false
	cfg.Redis.Prefix = "test"
	return cfg
}

type fixtureOption func(*fixtureOptions)

type fixtureOptions struct {
	mutate      func(*tenantauth.Config)
	credentials func(*memory.Store) tenantauth.CredentialStore
}

func withConfig(fn func(*tenantauth.Config)) fixtureOption {
	return func(o *fixtureOptions) { o.mutate = fn }
}

func withCredentials(fn func(*memory.Store) tenantauth.CredentialStore) fixtureOption {
	return func(o *fixtureOptions) { o.credentials = fn }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	var o fixtureOptions
	for _, opt := range opts {
		opt(&o)
	}

	cfg := testConfig()
	if o.mutate != nil {
		o.mutate(&cfg)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := &testClock{now: time.Now().Truncate(time.Second)}
	hasher, err := password.NewBcrypt(4)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	store := memory.New()
	seedStore(t, store, hasher, clock.Now())

	var creds tenantauth.CredentialStore = store
	if o.credentials != nil {
		creds = o.credentials(store)
	}

	clientStore := memory.NewClients()
	sink := tenantauth.NewChannelSink(512)

	engine, err := tenantauth.New().
		WithConfig(cfg).
		WithCredentialStore(creds).
		WithRoleStore(store).
		WithTenantStore(store).
		WithClientStore(clientStore).
		WithRedis(rdb).
		WithAuditSink(sink).
		WithClock(clock.Now).
		WithPermissions(catalog).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &fixture{
		engine:  engine,
		store:   store,
		clients: clientStore,
		sink:    sink,
		clock:   clock,
		redis:   mr,
		hasher:  hasher,
	}
}

func seedStore(t *testing.T, s *memory.Store, h password.Hasher, now time.Time) {
	t.Helper()

	mustHash := func(pw string) string {
		out, err := h.Hash(pw)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		return out
	}

	for _, tn := range []tenantauth.Tenant{
		{ID: acmeID, Code: "ACME", Name: "Acme Hospital", Status: tenantauth.TenantActive},
		{ID: otherID, Code: "OTHER", Name: "Other Clinic", Status: tenantauth.TenantActive},
		{ID: newcoID, Code: "NEWCO", Name: "New Co", Status: tenantauth.TenantPendingVerification},
	} {
		if err := s.PutTenant(tn); err != nil {
			t.Fatalf("PutTenant: %v", err)
		}
	}

	s.PutRole(tenantauth.Role{ID: "r-doctor", Code: "DOCTOR", System: true, Permissions: []string{"patient:read", "prescription:write"}})
	s.PutRole(tenantauth.Role{ID: "r-admin", TenantID: acmeID, Code: "ACME_ADMIN", Permissions: adminPerms})
	s.PutRole(tenantauth.Role{ID: "r-billing", TenantID: acmeID, Code: "BILLING", Permissions: []string{"billing:read"}})

	users := []struct {
		u     tenantauth.User
		roles []string
	}{
		{tenantauth.User{ID: janeID, TenantID: acmeID, Username: "drjane", Email: "jane@acme.test", FirstName: "Jane", LastName: "Doe"}, []string{"r-doctor"}},
		{tenantauth.User{ID: adminID, TenantID: acmeID, Username: "admin", Email: "admin@acme.test"}, []string{"r-admin"}},
		{tenantauth.User{ID: bobID, TenantID: otherID, Username: "bob", Email: "bob@other.test"}, []string{"r-doctor"}},
	}
	for _, x := range users {
		x.u.PasswordHash = mustHash(janePass)
		x.u.Status = tenantauth.UserActive
		x.u.PasswordChangedAt = now
		if err := s.PutUser(x.u, x.roles...); err != nil {
			t.Fatalf("PutUser %s: %v", x.u.ID, err)
		}
	}
}

func acmeAdmin() tenantauth.Caller {
	return tenantauth.Caller{UserID: adminID, TenantID: acmeID, Username: "admin", Permissions: permission.NewSet(adminPerms...)}
}

func platformAdmin() tenantauth.Caller {
	return tenantauth.Caller{UserID: "u-root", Username: "root", Permissions: permission.NewSet(tenantauth.PermSystemAdmin)}
}

func otherAdmin() tenantauth.Caller {
	return tenantauth.Caller{UserID: "u-other-admin", TenantID: otherID, Username: "oadmin", Permissions: permission.NewSet(adminPerms...)}
}

// waitEvent reads audit events until one of eventType arrives.
func waitEvent(t *testing.T, sink *tenantauth.ChannelSink, eventType string) tenantauth.AuditEvent {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sink.Events():
			if ev.EventType == eventType {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", eventType)
			return tenantauth.AuditEvent{}
		}
	}
}

func (f *fixture) user(t *testing.T, id string) *tenantauth.User {
	t.Helper()
	u, err := f.store.FindUserByID(context.Background(), id)
	if err != nil {
		t.Fatalf("FindUserByID %s: %v", id, err)
	}
	return u
}

func (f *fixture) login(t *testing.T, tenantCode, identifier, pw string) *tenantauth.TokenPair {
	t.Helper()
	pair, err := f.engine.Login(context.Background(), tenantCode, identifier, pw)
	if err != nil {
		t.Fatalf("Login %s/%s: %v", tenantCode, identifier, err)
	}
	return pair
}
