package tenantauth_test

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/tenantauth"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, tenantauth.AuditEvent) {
	s.count.Add(1)
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	f := newFixture(t, withConfig(func(c *tenantauth.Config) {
		c.Audit.Enabled = false
	}))
	f.login(t, "ACME", "drjane", janePass)

	select {
	case ev := <-f.sink.Events():
		t.Fatalf("unexpected audit event %s", ev.EventType)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAuditEventCarriesRequestContext(t *testing.T) {
	f := newFixture(t)
	ctx := tenantauth.WithRequestID(context.Background(), "req-42")
	ctx = tenantauth.WithUserAgent(ctx, "curl/8.0")
	ctx = tenantauth.WithClientIP(ctx, "192.0.2.7")

	_, _ = f.engine.Login(ctx, "ACME", "drjane", "Wrong123!")

	ev := waitEvent(t, f.sink, tenantauth.AuditLoginFailure)
	if ev.RequestID != "req-42" || ev.UserAgent != "curl/8.0" || ev.IP != "192.0.2.7" {
		t.Fatalf("request context missing from %+v", ev)
	}
	if ev.ID == "" || ev.Timestamp.IsZero() || ev.TenantID != acmeID {
		t.Fatalf("incomplete event %+v", ev)
	}
	if ev.Success || ev.FailureReason != "Invalid password" {
		t.Fatalf("unexpected outcome %+v", ev)
	}
}

func TestRequestInfoHelpersCompose(t *testing.T) {
	ctx := tenantauth.WithRequestInfo(context.Background(), tenantauth.RequestInfo{ClientIP: "10.0.0.1", RequestID: "r1"})
	ctx = tenantauth.WithUserAgent(ctx, "probe/1")
	ctx = tenantauth.WithClientIP(ctx, "10.0.0.2")

	got := tenantauth.RequestInfoFromContext(ctx)
	want := tenantauth.RequestInfo{ClientIP: "10.0.0.2", UserAgent: "probe/1", RequestID: "r1"}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if (tenantauth.RequestInfoFromContext(context.Background()) != tenantauth.RequestInfo{}) {
		t.Fatal("empty context must yield zero RequestInfo")
	}
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair := f.login(t, "ACME", "drjane", janePass)
	if _, err := f.engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	creds, err := f.engine.CreateClientForTenant(ctx, acmeAdmin(), acmeID)
	if err != nil {
		t.Fatalf("CreateClientForTenant: %v", err)
	}
	temp, err := f.engine.ResetPasswordToTemporary(ctx, acmeAdmin(), janeID)
	if err != nil {
		t.Fatalf("ResetPasswordToTemporary: %v", err)
	}

	needles := []string{
		janePass,
		temp,
		pair.AccessToken,
		pair.RefreshToken,
		creds.ClientSecret,
		f.user(t, janeID).PasswordHash,
	}

	events := make([]tenantauth.AuditEvent, 0, 8)
	timeout := time.After(2 * time.Second)
collect:
	for len(events) < 4 {
		select {
		case ev := <-f.sink.Events():
			events = append(events, ev)
		case <-timeout:
			break collect
		}
	}
	if len(events) < 4 {
		t.Fatalf("expected 4 audit events, got %d", len(events))
	}

	for _, ev := range events {
		fields := []string{ev.Error, ev.FailureReason, ev.Username}
		for k, v := range ev.Details {
			fields = append(fields, k, v)
		}
		for _, needle := range needles {
			for _, field := range fields {
				if needle != "" && strings.Contains(field, needle) {
					t.Fatalf("%s leaked a secret", ev.EventType)
				}
			}
		}
	}
}

func TestAuditDropIfFullDoesNotBlockLogin(t *testing.T) {
	sink := &countingSink{}
	cfg := testConfig()
	cfg.Audit.BufferSize = 1
	cfg.Audit.DropIfFull = true

	f := newFixture(t)
	engine, err := tenantauth.New().
		WithConfig(cfg).
		WithCredentialStore(f.store).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			_, _ = engine.Login(context.Background(), "ACME", "ghost", "x")
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("login blocked on a full audit buffer")
	}

	engine.Close()
	if got := sink.count.Load() + int64(engine.AuditDropped()); got != 20 {
		t.Fatalf("expected delivered+dropped=20, got %d", got)
	}
}
