// Package jwt signs and verifies the access and refresh token claim sets.
//
// HS256 and Ed25519 are supported. Verification pins the algorithm, checks issuer and
// audience when configured, and resolves verification keys by kid when a key set is given.
package jwt
