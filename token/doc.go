// Package token issues access and refresh tokens for an authenticated subject, validates
// presented tokens and revokes them through a TTL-bounded denylist.
package token
