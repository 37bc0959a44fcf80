// Package permission validates resource:action permission codes and provides the set
// operations used to compute a user's effective permissions from their roles.
//
// This package is pure in-memory data with no I/O.
package permission
