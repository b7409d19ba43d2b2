// Package store provides the client-local key-value stores that hold
// serialized calendar snapshots.
//
// Backends:
//   - memory: in-process map, optionally spilled to files in a directory
//   - sqlite: embedded database file (default)
//   - postgres: shared PostgreSQL table
//   - redis: plain keys under a prefix
//
// Every backend stores opaque byte values. Keys are per-feature cache keys
// such as "calendar:ipo", so features never contend for the same entry.
package store
