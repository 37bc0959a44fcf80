package tenantauth_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/password"
	"github.com/MrEthical07/tenantauth/store/memory"
)

func TestLoginIssuesPairWithUserSummary(t *testing.T) {
	f := newFixture(t)
	ctx := tenantauth.WithClientIP(context.Background(), "10.1.2.3")

	pair, err := f.engine.Login(ctx, "ACME", "drjane", janePass)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if pair.TokenType != "Bearer" {
		t.Fatalf("expected Bearer token type, got %q", pair.TokenType)
	}
	if pair.ExpiresIn != 900 {
		t.Fatalf("expected ExpiresIn 900, got %d", pair.ExpiresIn)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if pair.User == nil || pair.User.TenantCode != "ACME" || pair.User.ID != janeID {
		t.Fatalf("unexpected summary %+v", pair.User)
	}
	if len(pair.User.Roles) != 1 || pair.User.Roles[0] != "DOCTOR" {
		t.Fatalf("unexpected roles %v", pair.User.Roles)
	}

	claims, err := f.engine.ValidateAccessToken(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if claims.TenantCode() != "ACME" || claims.UserID() != janeID || claims.Username() != "drjane" {
		t.Fatalf("unexpected claims tenant=%s user=%s", claims.TenantCode(), claims.UserID())
	}
	if !claims.HasPermission("prescription:write") {
		t.Fatal("expected prescription:write in access token")
	}

	u := f.user(t, janeID)
	if u.LastLoginIP != "10.1.2.3" || u.LastLoginAt.IsZero() {
		t.Fatalf("last login not recorded: ip=%q at=%v", u.LastLoginIP, u.LastLoginAt)
	}

	ev := waitEvent(t, f.sink, tenantauth.AuditLoginSuccess)
	if !ev.Success || ev.UserID != janeID || ev.IP != "10.1.2.3" {
		t.Fatalf("unexpected audit event %+v", ev)
	}
}

func TestLoginMatchesEmailCaseInsensitively(t *testing.T) {
	f := newFixture(t)
	pair := f.login(t, "acme", "JANE@ACME.TEST", janePass)
	if pair.User.Username != "drjane" {
		t.Fatalf("expected drjane, got %s", pair.User.Username)
	}
}

func TestLoginTenantChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		tenant string
		want   error
	}{
		{"missing", "  ", tenantauth.ErrTenantRequired},
		{"unknown", "NOPE", tenantauth.ErrResourceNotFound},
		{"pending", "NEWCO", tenantauth.ErrTenantInactive},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.Login(ctx, tc.tenant, "drjane", janePass)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestLoginUserOfAnotherTenantIsInvalidCredentials(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Login(context.Background(), "ACME", "bob", janePass)
	if !errors.Is(err, tenantauth.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginUnknownUserAuditsUserNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Login(context.Background(), "ACME", "ghost", "whatever")
	if !errors.Is(err, tenantauth.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if tenantauth.CodeOf(err) != tenantauth.CodeInvalidCredentials {
		t.Fatalf("unexpected code %q", tenantauth.CodeOf(err))
	}

	ev := waitEvent(t, f.sink, tenantauth.AuditLoginFailure)
	if ev.Error != "user_not_found" || ev.Username != "ghost" || ev.TenantID != acmeID {
		t.Fatalf("unexpected audit event %+v", ev)
	}
	if got := f.engine.MetricsSnapshot().Counters[tenantauth.MetricLoginUnknownUser]; got != 1 {
		t.Fatalf("expected unknown user metric 1, got %d", got)
	}
}

func TestLoginWrongPasswordCountsFailure(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Login(context.Background(), "ACME", "drjane", "Wrong123!")
	if !errors.Is(err, tenantauth.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	u := f.user(t, janeID)
	if u.FailedLoginAttempts != 1 || u.LastFailedLoginAt.IsZero() {
		t.Fatalf("failure not recorded: %+v", u)
	}

	ev := waitEvent(t, f.sink, tenantauth.AuditLoginFailure)
	if ev.Error != "invalid_credentials" || ev.Details["failed_attempts"] != "1" {
		t.Fatalf("unexpected audit event %+v", ev)
	}
}

func TestLoginLocksAtThresholdAndStaysLocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		_, err := f.engine.Login(ctx, "ACME", "drjane", "Wrong123!")
		if !errors.Is(err, tenantauth.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}

	_, err := f.engine.Login(ctx, "ACME", "drjane", "Wrong123!")
	if !errors.Is(err, tenantauth.ErrAccountLocked) {
		t.Fatalf("threshold attempt: expected ErrAccountLocked, got %v", err)
	}

	// Correct password inside the lock window.
	_, err = f.engine.Login(ctx, "ACME", "drjane", janePass)
	if !errors.Is(err, tenantauth.ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}

	u := f.user(t, janeID)
	if u.Status != tenantauth.UserLocked || u.LockedUntil.IsZero() {
		t.Fatalf("expected locked user, got status=%s until=%v", u.Status, u.LockedUntil)
	}
	ev := waitEvent(t, f.sink, tenantauth.AuditAccountLocked)
	if ev.FailureReason != "Locked after 5 failed attempts" {
		t.Fatalf("unexpected reason %q", ev.FailureReason)
	}
}

func TestLoginLockPersistsPastExpiryWithoutAutoUnlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = f.engine.Login(ctx, "ACME", "drjane", "Wrong123!")
	}
	f.clock.Advance(31 * time.Minute)

	_, err := f.engine.Login(ctx, "ACME", "drjane", janePass)
	if !errors.Is(err, tenantauth.ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
}

func TestLoginAutoUnlockReleasesExpiredLock(t *testing.T) {
	f := newFixture(t, withConfig(func(c *tenantauth.Config) {
		c.Lockout.AutoUnlock = true
		c.Lockout.Duration = time.Minute
	}))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = f.engine.Login(ctx, "ACME", "drjane", "Wrong123!")
	}
	f.clock.Advance(2 * time.Minute)

	if _, err := f.engine.Login(ctx, "ACME", "drjane", janePass); err != nil {
		t.Fatalf("expected login after lock expiry, got %v", err)
	}
	ev := waitEvent(t, f.sink, tenantauth.AuditAccountUnlocked)
	if ev.Details["trigger"] != "lock_expired" {
		t.Fatalf("unexpected unlock trigger %q", ev.Details["trigger"])
	}
	if u := f.user(t, janeID); u.Status != tenantauth.UserActive || u.FailedLoginAttempts != 0 {
		t.Fatalf("lock state not cleared: %+v", u)
	}
}

func TestLoginSuccessResetsFailureCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = f.engine.Login(ctx, "ACME", "drjane", "Wrong123!")
	}
	f.login(t, "ACME", "drjane", janePass)

	if u := f.user(t, janeID); u.FailedLoginAttempts != 0 {
		t.Fatalf("expected counter reset, got %d", u.FailedLoginAttempts)
	}

	// A fresh run of four failures must not lock.
	for i := 0; i < 4; i++ {
		_, err := f.engine.Login(ctx, "ACME", "drjane", "Wrong123!")
		if !errors.Is(err, tenantauth.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}
}

func TestLoginLockoutDisabledNeverLocks(t *testing.T) {
	f := newFixture(t, withConfig(func(c *tenantauth.Config) {
		c.Lockout.Enabled = false
	}))
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		_, err := f.engine.Login(ctx, "ACME", "drjane", "Wrong123!")
		if !errors.Is(err, tenantauth.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}
	if u := f.user(t, janeID); u.FailedLoginAttempts != 0 {
		t.Fatalf("expected no counter writes, got %d", u.FailedLoginAttempts)
	}
	f.login(t, "ACME", "drjane", janePass)
}

func TestLoginInactiveAccount(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, janeID)
	u.Status = tenantauth.UserInactive
	if err := f.store.SaveUser(context.Background(), u, u.Version); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}

	_, err := f.engine.Login(context.Background(), "ACME", "drjane", janePass)
	if !errors.Is(err, tenantauth.ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
}

func TestLoginPasswordExpiry(t *testing.T) {
	t.Run("must change", func(t *testing.T) {
		f := newFixture(t)
		u := f.user(t, janeID)
		u.MustChangePassword = true
		if err := f.store.SaveUser(context.Background(), u, u.Version); err != nil {
			t.Fatalf("SaveUser: %v", err)
		}
		_, err := f.engine.Login(context.Background(), "ACME", "drjane", janePass)
		if !errors.Is(err, tenantauth.ErrPasswordExpired) {
			t.Fatalf("expected ErrPasswordExpired, got %v", err)
		}
	})

	t.Run("max age", func(t *testing.T) {
		f := newFixture(t)
		u := f.user(t, janeID)
		u.PasswordChangedAt = f.clock.Now().AddDate(0, 0, -91)
		if err := f.store.SaveUser(context.Background(), u, u.Version); err != nil {
			t.Fatalf("SaveUser: %v", err)
		}
		_, err := f.engine.Login(context.Background(), "ACME", "drjane", janePass)
		if !errors.Is(err, tenantauth.ErrPasswordExpired) {
			t.Fatalf("expected ErrPasswordExpired, got %v", err)
		}
	})
}

func TestLoginUpgradesLegacyHash(t *testing.T) {
	f := newFixture(t)

	argon, err := password.NewArgon2(password.Argon2Config{Memory: 8192, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	legacy, err := argon.Hash(janePass)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	u := f.user(t, janeID)
	u.PasswordHash = legacy
	if err := f.store.SaveUser(context.Background(), u, u.Version); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}

	f.login(t, "ACME", "drjane", janePass)

	got := f.user(t, janeID).PasswordHash
	if got == legacy || !strings.HasPrefix(got, "$2") {
		t.Fatalf("expected bcrypt rehash, got %q", got)
	}
	f.login(t, "ACME", "drjane", janePass)
}

func TestLoginRetriesOnceOnVersionConflict(t *testing.T) {
	var cs *conflictStore
	f := newFixture(t, withCredentials(func(s *memory.Store) tenantauth.CredentialStore {
		cs = &conflictStore{Store: s}
		return cs
	}))
	ctx := context.Background()

	cs.conflicts.Store(1)
	_, err := f.engine.Login(ctx, "ACME", "drjane", "Wrong123!")
	if !errors.Is(err, tenantauth.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials after retry, got %v", err)
	}
	if u := f.user(t, janeID); u.FailedLoginAttempts != 1 {
		t.Fatalf("expected one recorded failure, got %d", u.FailedLoginAttempts)
	}
	if got := f.engine.MetricsSnapshot().Counters[tenantauth.MetricVersionConflictRetry]; got != 1 {
		t.Fatalf("expected one retry, got %d", got)
	}

	cs.conflicts.Store(2)
	_, err = f.engine.Login(ctx, "ACME", "drjane", "Wrong123!")
	if !errors.Is(err, tenantauth.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable on repeated conflict, got %v", err)
	}
}

func TestLoginRechecksLockAfterVersionConflict(t *testing.T) {
	until := time.Now().Add(30 * time.Minute)
	var rs *lockRaceStore
	f := newFixture(t,
		withConfig(func(c *tenantauth.Config) { c.Lockout.AutoUnlock = true }),
		withCredentials(func(s *memory.Store) tenantauth.CredentialStore {
			rs = &lockRaceStore{Store: s, userID: janeID, lockedUntil: until, status: tenantauth.UserLocked}
			return rs
		}))
	ctx := context.Background()

	pair, err := f.engine.Login(ctx, "ACME", "drjane", janePass)
	if !errors.Is(err, tenantauth.ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
	if pair != nil {
		t.Fatal("no tokens may be issued to an account locked mid-login")
	}

	u := f.user(t, janeID)
	if u.Status != tenantauth.UserLocked || u.FailedLoginAttempts != 5 || !u.LockedUntil.Equal(until) {
		t.Fatalf("concurrent lock overwritten: status=%s failed=%d until=%v", u.Status, u.FailedLoginAttempts, u.LockedUntil)
	}
	if got := f.engine.MetricsSnapshot().Counters[tenantauth.MetricLoginLockedRejected]; got != 1 {
		t.Fatalf("expected one locked rejection, got %d", got)
	}

	// The lock keeps its expiry, so AutoUnlock still releases it.
	f.clock.Advance(2 * time.Hour)
	f.login(t, "ACME", "drjane", janePass)
}

func TestLoginRechecksStatusAfterVersionConflict(t *testing.T) {
	f := newFixture(t, withCredentials(func(s *memory.Store) tenantauth.CredentialStore {
		return &lockRaceStore{Store: s, userID: janeID, status: tenantauth.UserInactive}
	}))

	_, err := f.engine.Login(context.Background(), "ACME", "drjane", janePass)
	if !errors.Is(err, tenantauth.ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
	if u := f.user(t, janeID); !u.LastLoginAt.IsZero() {
		t.Fatalf("login bookkeeping written for a deactivated account: %v", u.LastLoginAt)
	}
}

func TestLoginCountsSpacedFailuresWithDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var err error
	for i := 1; i <= 5; i++ {
		_, err = f.engine.Login(ctx, "ACME", "drjane", "Wrong123!")
		f.clock.Advance(16 * time.Minute)
	}
	if !errors.Is(err, tenantauth.ErrAccountLocked) {
		t.Fatalf("expected fifth spaced failure to lock, got %v", err)
	}
	if u := f.user(t, janeID); u.Status != tenantauth.UserLocked || u.FailedLoginAttempts != 5 {
		t.Fatalf("expected locked after 5 failures, got status=%s failed=%d", u.Status, u.FailedLoginAttempts)
	}
}

func TestLoginResetAfterWindowIsOptIn(t *testing.T) {
	f := newFixture(t, withConfig(func(c *tenantauth.Config) {
		c.Lockout.ResetAfter = 15 * time.Minute
	}))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := f.engine.Login(ctx, "ACME", "drjane", "Wrong123!")
		if !errors.Is(err, tenantauth.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials inside a rolling window, got %v", i+1, err)
		}
		f.clock.Advance(16 * time.Minute)
	}
	if u := f.user(t, janeID); u.FailedLoginAttempts != 1 {
		t.Fatalf("expected counter restarted by the window, got %d", u.FailedLoginAttempts)
	}
}

func TestDefaultLockoutHasNoResetWindow(t *testing.T) {
	if got := tenantauth.DefaultConfig().Lockout.ResetAfter; got != 0 {
		t.Fatalf("expected ResetAfter disabled by default, got %v", got)
	}
}
