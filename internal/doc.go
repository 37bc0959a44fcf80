// Package internal holds crypto/rand backed helpers for temporary passwords and client
// secrets.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - ids: monotonic ULIDs for correlation and audit event ids
//   - kv: key-value store with TTL (Redis and in-process backends)
//   - limiters: the account lockout guard
//   - logger: zap construction and context propagation
package internal
