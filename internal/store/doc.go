// Package store provides a SQLite-backed cache of organization metadata.
//
// Fetching every entity definition is the slowest call a client makes, so
// the decoded definitions are kept per service root and reused until they
// are older than the caller's maximum age.
//
// # Layout
//
//   - org_snapshots: one row per service root with the metadata fingerprint
//     and fetch time (unix seconds)
//   - entity_metadata: one JSON payload per entity definition, ordered by
//     position within its snapshot
//
// Saving a snapshot replaces the previous one for the same service root in
// a single transaction.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce snapshot cascade deletes
package store
