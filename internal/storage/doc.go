// Package storage implements the authoritative in-memory hint store held by
// the leader process, together with its TTL sweeper and the export/import
// codec.
//
// # Overview
//
// The store maps component → key → entry. It is deliberately ephemeral:
// nothing is written to disk and the whole store disappears with the leader.
// Exactly one Store exists per leader; followers never construct one and
// reach it through the loopback endpoint instead.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│     rpc.Local / router (leader)     │
//	└─────────────────────────────────────┘
//	                 │
//	                 ▼
//	┌─────────────────────────────────────┐
//	│               Store                 │
//	│  Upsert Lookup Search Remove        │
//	│  Reinforce Enumerate Export Import  │
//	└─────────────────────────────────────┘
//	       │            │            │
//	       ▼            ▼            ▼
//	┌──────────┐  ┌──────────┐  ┌──────────┐
//	│  guard   │  │  match   │  │   ttl    │
//	│ secrets, │  │  rank    │  │  expiry  │
//	│  paths   │  │ scoring  │  │  sweep   │
//	└──────────┘  └──────────┘  └──────────┘
//
// # Upsert order of checks
//
// Stateless checks run before the lock is taken, in this order:
//
//  1. shape: component and key present, value and meta well formed, TTL parses (INVALID)
//  2. secret detector, unless overridden (SECRET_REJECTED)
//  3. path values absolute and without "..", cwd globs well formed (SCOPE_INVALID)
//
// Under the lock:
//
//  4. expected version, where 0 means "must not exist" (VERSION_CONFLICT)
//  5. quotas, consulted only when a new component or key would be created
//     (QUOTA_EXCEEDED with cause component, key or total)
//
// A failed upsert never changes state.
//
// # Expiry
//
// An entry expires once now ≥ updated_at + ttl. Expired entries are invisible
// to every read and to Reinforce immediately, and are physically removed by
// the sweeper that Run drives on a fixed interval. Entries with the
// "session" TTL, or none, are never swept.
//
// # Concurrency and Thread Safety
//
// Locking Strategy:
//   - Reads (Lookup, Search, Enumerate, Export) share a read lock
//   - Mutations (Upsert, Remove, Reinforce, Import, sweep) take the write lock
//   - Scoring runs on cloned entries after the lock is released
//   - Every entry handed to a caller is a deep copy
//
// The only concurrency control visible to callers is the optimistic version
// check. There is no blocking lock API; a writer that loses a race receives
// VERSION_CONFLICT and decides for itself whether to retry.
//
// # Import and Export
//
// Export produces
//
//	{"schema_version":"1.0","created_at":...,"session_id":...,
//	 "components":{"<name>":{"hints":{"<key>":<entry>}}}}
//
// Import validates the payload structure and each entry against embedded
// JSON schemas. A bad top-level structure or a schema version other than 1.x
// aborts the import; bad entries, and entries that would exceed a quota, are
// skipped and counted. Replace mode first clears the target component, or the
// whole store, and the clear plus every upsert happen under one lock.
//
// # Testing
//
// NewManualClock drives expiry deterministically. Export output is pinned by
// golden files under testdata/golden; regenerate them with
//
//	go test ./internal/storage -update
package storage
