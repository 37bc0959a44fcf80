// Package tenantauth is a multi-tenant authentication and token-issuance core.
//
// Each tenant owns its users, roles and OAuth2 client registrations. [Engine.Login] turns a
// tenant code, an identifier (username or email) and a password into a signed access and
// refresh token pair while enforcing account lockout, password aging and password history.
// Tokens are revocable through a denylist held in Redis (or an in-process store in
// development), and client registrations are served through a cache-through registry.
//
// Engine methods are safe to call from multiple goroutines after [Builder.Build].
//
// # Architecture boundaries
//
// tenantauth is the public surface: [Engine], [Builder], [Config], the entity types and the
// store interfaces ([CredentialStore], [RoleStore], [TenantStore]). Persistence lives behind
// those interfaces; store/memory and store/pg implement them. Token signing (jwt), token
// issuance (token), password hashing (password) and the client registry (clients) are
// separate packages that do not import the root.
//
// # Errors
//
// Every Engine operation returns nil or an [*Error]. Match the kind with errors.Is against
// the Err* sentinels, or read Code for a stable machine value. Internal errors carry a
// correlation id that also appears in the error log.
//
// # What this package must NOT do
//
//   - Hold an ambient tenant. The tenant is always an explicit parameter.
//   - Block a login on audit delivery.
//   - Return stored hashes or plaintext secrets anywhere except the one-time
//     ClientCredentials and temporary password results.
package tenantauth
