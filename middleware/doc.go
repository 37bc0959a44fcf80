// Package middleware adapts tenantauth access token validation to net/http.
//
// # Guards
//
//   - [Guard] reads the bearer token, validates it through the Engine and stores the
//     claims in the request context.
//   - [RequirePermission] rejects requests whose claims lack every listed permission.
//
// Handlers read the principal back with [ClaimsFromContext] or [CallerFromContext].
//
// # What this package must NOT do
//
//   - Parse or sign JWTs directly. Validation is delegated to the Engine.
//   - Touch Redis. The denylist check happens inside ValidateAccessToken.
package middleware
