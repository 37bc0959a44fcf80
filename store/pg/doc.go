// Package pg persists tenants, users, roles, password history, OAuth2 clients and audit
// events in PostgreSQL through a pgx connection pool.
//
// [Store] satisfies tenantauth.CredentialStore, PasswordChanger, TenantStore and RoleStore;
// [Clients] satisfies clients.Store and [AuditSink] satisfies tenantauth.AuditSink. The
// schema is embedded and applied with [Store.EnsureSchema].
//
// Integration tests need Docker and run with -tags integration.
package pg
