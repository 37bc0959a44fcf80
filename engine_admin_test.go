package tenantauth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/clients"
	"github.com/MrEthical07/tenantauth/permission"
)

func TestCreateClientForTenant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	creds, err := f.engine.CreateClientForTenant(ctx, acmeAdmin(), acmeID)
	if err != nil {
		t.Fatalf("CreateClientForTenant: %v", err)
	}
	if creds.ClientID != "acme-web-client" || creds.ClientSecret == "" || creds.TenantID != acmeID {
		t.Fatalf("unexpected credentials %+v", creds)
	}
	if creds.Message == "" {
		t.Fatal("expected one-time secret notice")
	}

	stored, err := f.clients.FindByClientID(ctx, creds.ClientID)
	if err != nil {
		t.Fatalf("FindByClientID: %v", err)
	}
	if stored.SecretHash == creds.ClientSecret {
		t.Fatal("secret stored in plaintext")
	}
	if ok, err := f.hasher.Verify(creds.ClientSecret, stored.SecretHash); err != nil || !ok {
		t.Fatalf("stored hash does not verify: ok=%v err=%v", ok, err)
	}
	if stored.CreatedBy != "admin" || stored.Status != clients.StatusActive {
		t.Fatalf("unexpected registration %+v", stored)
	}

	_, err = f.engine.CreateClientForTenant(ctx, acmeAdmin(), acmeID)
	if !errors.Is(err, tenantauth.ErrDuplicateResource) {
		t.Fatalf("expected ErrDuplicateResource, got %v", err)
	}
	ev := waitEvent(t, f.sink, tenantauth.AuditClientCreated)
	if ev.Details["client_id"] != "acme-web-client" {
		t.Fatalf("unexpected audit details %+v", ev.Details)
	}
}

func TestCreateClientCapabilityChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reader := tenantauth.Caller{UserID: "r", TenantID: acmeID, Permissions: permission.NewSet(tenantauth.PermClientRead)}
	if _, err := f.engine.CreateClientForTenant(ctx, reader, acmeID); !errors.Is(err, tenantauth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden without client:create, got %v", err)
	}
	if _, err := f.engine.CreateClientForTenant(ctx, otherAdmin(), acmeID); !errors.Is(err, tenantauth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden across tenants, got %v", err)
	}
	if _, err := f.engine.CreateClientForTenant(ctx, platformAdmin(), "t-missing"); !errors.Is(err, tenantauth.ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound, got %v", err)
	}
}

func TestCreateCustomClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	creds, err := f.engine.CreateClient(ctx, acmeAdmin(), tenantauth.CreateClientRequest{
		TenantID:     acmeID,
		ClientID:     "acme-mobile",
		ClientSecret: "mobile-secret-value",
		Name:         "Acme Mobile",
		Scopes:       []string{"openid"},
	})
	if err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	if creds.ClientSecret != "mobile-secret-value" || creds.ClientName != "Acme Mobile" {
		t.Fatalf("unexpected credentials %+v", creds)
	}

	list, err := f.engine.ListTenantClients(ctx, acmeAdmin(), acmeID)
	if err != nil {
		t.Fatalf("ListTenantClients: %v", err)
	}
	if len(list) != 1 || list[0].ClientID != "acme-mobile" {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestClientLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	creds, err := f.engine.CreateClientForTenant(ctx, acmeAdmin(), acmeID)
	if err != nil {
		t.Fatalf("CreateClientForTenant: %v", err)
	}

	rotated, err := f.engine.RotateClientSecret(ctx, acmeAdmin(), creds.ClientID)
	if err != nil {
		t.Fatalf("RotateClientSecret: %v", err)
	}
	if rotated.ClientSecret == creds.ClientSecret {
		t.Fatal("expected a new secret")
	}
	c, err := f.engine.GetClient(ctx, acmeAdmin(), creds.ClientID)
	if err != nil {
		t.Fatalf("GetClient: %v", err)
	}
	if ok, _ := f.hasher.Verify(rotated.ClientSecret, c.SecretHash); !ok {
		t.Fatal("rotated secret does not verify")
	}

	if err := f.engine.SuspendClient(ctx, acmeAdmin(), creds.ClientID); err != nil {
		t.Fatalf("SuspendClient: %v", err)
	}
	if c, _ := f.engine.GetClient(ctx, acmeAdmin(), creds.ClientID); c.Status != clients.StatusSuspended {
		t.Fatalf("expected SUSPENDED, got %s", c.Status)
	}
	if err := f.engine.ActivateClient(ctx, acmeAdmin(), creds.ClientID); err != nil {
		t.Fatalf("ActivateClient: %v", err)
	}
	if err := f.engine.RevokeClient(ctx, acmeAdmin(), creds.ClientID); err != nil {
		t.Fatalf("RevokeClient: %v", err)
	}
	if c, _ := f.engine.GetClient(ctx, acmeAdmin(), creds.ClientID); c.Status != clients.StatusRevoked {
		t.Fatalf("expected REVOKED, got %s", c.Status)
	}

	if _, err := f.engine.GetClient(ctx, otherAdmin(), creds.ClientID); !errors.Is(err, tenantauth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for another tenant, got %v", err)
	}

	if err := f.engine.DeleteClient(ctx, acmeAdmin(), creds.ClientID); err != nil {
		t.Fatalf("DeleteClient: %v", err)
	}
	if _, err := f.engine.GetClient(ctx, acmeAdmin(), creds.ClientID); !errors.Is(err, tenantauth.ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound after delete, got %v", err)
	}
}

func TestSystemClientBootstrap(t *testing.T) {
	f := newFixture(t, withConfig(func(c *tenantauth.Config) {
		c.ClientCache.BootstrapSystemClient = true
		c.ClientCache.SystemClientSecret = "platform-secret"
	}))
	ctx := context.Background()

	c, err := f.clients.FindByClientID(ctx, clients.SystemClientID)
	if err != nil {
		t.Fatalf("system client not registered: %v", err)
	}
	if !c.IsPlatform() {
		t.Fatal("system client must not belong to a tenant")
	}
	if ok, _ := f.hasher.Verify("platform-secret", c.SecretHash); !ok {
		t.Fatal("configured secret does not verify")
	}

	if _, err := f.engine.GetClient(ctx, acmeAdmin(), clients.SystemClientID); !errors.Is(err, tenantauth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for tenant admin, got %v", err)
	}
	if _, err := f.engine.GetClient(ctx, platformAdmin(), clients.SystemClientID); err != nil {
		t.Fatalf("platform admin GetClient: %v", err)
	}
}

func TestRoleCatalog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	role, err := f.engine.CreateRole(ctx, acmeAdmin(), acmeID, tenantauth.RoleInput{
		Code:        "PHARMACIST",
		Name:        "Pharmacist",
		Permissions: []string{"patient:read", "patient:read", "prescription:write"},
	})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if len(role.Permissions) != 2 || role.System {
		t.Fatalf("unexpected role %+v", role)
	}

	_, err = f.engine.CreateRole(ctx, acmeAdmin(), acmeID, tenantauth.RoleInput{Code: "PHARMACIST"})
	if !errors.Is(err, tenantauth.ErrDuplicateResource) {
		t.Fatalf("expected ErrDuplicateResource, got %v", err)
	}

	_, err = f.engine.CreateRole(ctx, acmeAdmin(), acmeID, tenantauth.RoleInput{Code: "X", Permissions: []string{"lab:run"}})
	if !errors.Is(err, tenantauth.ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound for unknown permission, got %v", err)
	}

	updated, err := f.engine.UpdateRole(ctx, acmeAdmin(), role.ID, "Senior Pharmacist", "dispensing")
	if err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}
	if updated.Name != "Senior Pharmacist" {
		t.Fatalf("unexpected name %q", updated.Name)
	}

	roles, err := f.engine.ListRoles(ctx, acmeAdmin(), acmeID)
	if err != nil {
		t.Fatalf("ListRoles: %v", err)
	}
	if len(roles) != 4 || !roles[0].System {
		t.Fatalf("expected system role first among 4, got %+v", roles)
	}

	if err := f.engine.DeleteRole(ctx, acmeAdmin(), role.ID); err != nil {
		t.Fatalf("DeleteRole: %v", err)
	}
}

func TestSystemRolesAreImmutable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	checks := map[string]error{
		"update": func() error {
			_, err := f.engine.UpdateRole(ctx, platformAdmin(), "r-doctor", "x", "")
			return err
		}(),
		"assign": func() error {
			_, err := f.engine.AssignPermissions(ctx, platformAdmin(), "r-doctor", []string{"patient:read"})
			return err
		}(),
		"delete": f.engine.DeleteRole(ctx, platformAdmin(), "r-doctor"),
	}
	for name, err := range checks {
		if !errors.Is(err, tenantauth.ErrForbidden) || tenantauth.CodeOf(err) != tenantauth.CodeSystemRoleImmutable {
			t.Fatalf("%s: expected SYSTEM_ROLE_IMMUTABLE, got %v", name, err)
		}
	}
}

func TestDeleteRoleInUse(t *testing.T) {
	f := newFixture(t)

	err := f.engine.DeleteRole(context.Background(), acmeAdmin(), "r-admin")
	if !errors.Is(err, tenantauth.ErrForbidden) || tenantauth.CodeOf(err) != tenantauth.CodeRoleInUse {
		t.Fatalf("expected ROLE_IN_USE, got %v", err)
	}
}

func TestRoleOperationsOutsideTenantAreForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.engine.AssignPermissions(ctx, otherAdmin(), "r-billing", []string{"billing:read"}); !errors.Is(err, tenantauth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := f.engine.ListRoles(ctx, otherAdmin(), acmeID); !errors.Is(err, tenantauth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := f.engine.AssignPermissions(ctx, acmeAdmin(), "r-missing", nil); !errors.Is(err, tenantauth.ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound, got %v", err)
	}
}

func TestTenantStatusChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.engine.SuspendTenant(ctx, otherAdmin(), acmeID, "no"); !errors.Is(err, tenantauth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := f.engine.SuspendTenant(ctx, platformAdmin(), acmeID, "contract ended"); err != nil {
		t.Fatalf("SuspendTenant: %v", err)
	}
	if _, err := f.engine.Login(ctx, "ACME", "drjane", janePass); !errors.Is(err, tenantauth.ErrTenantInactive) {
		t.Fatalf("expected ErrTenantInactive, got %v", err)
	}
	ev := waitEvent(t, f.sink, tenantauth.AuditTenantStatusChanged)
	if ev.Details["from"] != "ACTIVE" || ev.Details["to"] != "SUSPENDED" {
		t.Fatalf("unexpected details %+v", ev.Details)
	}

	if err := f.engine.ActivateTenant(ctx, platformAdmin(), acmeID, "renewed"); err != nil {
		t.Fatalf("ActivateTenant: %v", err)
	}
	f.login(t, "ACME", "drjane", janePass)

	if err := f.engine.ActivateTenant(ctx, platformAdmin(), "t-missing", ""); !errors.Is(err, tenantauth.ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound, got %v", err)
	}
}
