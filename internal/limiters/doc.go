// Package limiters holds the account lockout guard.
//
// [LockoutGuard] is pure decision logic over a [LockState]: it never performs I/O.
// The Engine loads the user, lets the guard mutate the state and persists it as one
// versioned write, retrying once on a version conflict.
//
// # What this package must NOT do
//
//   - Import tenantauth or any sibling internal package.
//   - Persist anything; callers own the unit of work.
package limiters
