// Package clients models OAuth2 client registrations and serves them through a
// cache-through registry.
//
// The registry keeps two key spaces (internal id and public client id) under a generation
// counter. Any write bumps the generation, which orphans every cached entry at once;
// orphans age out by TTL.
package clients
