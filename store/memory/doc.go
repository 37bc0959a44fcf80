// Package memory provides in-process implementations of the tenantauth store interfaces
// and of clients.Store. They back tests, examples and single-process development setups.
//
// All records are copied on the way in and out, so callers never share memory with the
// store. Role assignments are kept by id and resolved on read, so a change to a role's
// permissions is visible on the next user lookup.
package memory
