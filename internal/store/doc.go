// Package store implements the Region Store Client (spec §4.A): a typed
// wrapper over one region's document store offering ride CRUD plus the
// compare-and-set lock that every handoff transaction serializes through.
//
// # Overview
//
// Every region process owns exactly one Store. The coordinator never
// touches a Store directly; it always goes through internal/participant's
// prepare/commit/abort operations, which are the only callers of Lock
// and Unlock. This package's entire API surface exists to give
// those operations an atomic compare-and-swap primitive, plus the plain
// CRUD and search operations the region's own HTTP handlers expose.
//
// # Architecture
//
// Two backends are provided behind the same Store interface:
//
//	┌───────────────────────────────────────┐
//	│              Store interface           │
//	│  GetRide / InsertRide / DeleteRide     │
//	│  Lock / Unlock / Finalize              │
//	│  Search / Stats / Health               │
//	└───────────────┬────────────┬───────────┘
//	                │            │
//	      ┌─────────▼───┐   ┌────▼────────────┐
//	      │ MemoryStore  │   │   RedisStore     │
//	      │ map + RWMutex│   │ Lua EVAL scripts │
//	      └──────────────┘   └──────────────────┘
//
// MemoryStore is an in-process map guarded by a sync.RWMutex, used by
// tests, the demo wiring, and as the stand-in global replica. RedisStore
// delegates the CAS operations (Lock, Unlock, Finalize, DeleteRide) to
// small Lua scripts so that the check-then-set is atomic from Redis's
// point of view, without a client-side transaction or optimistic-retry
// loop racing another region client.
//
// # Core Operations
//
// Lock(id, txId): the CAS primitive. Succeeds only if the document is
// currently unlocked, or already locked by the same txId (idempotent
// retry). Fails with ErrAlreadyLocked on contention from a different txId.
//
// Unlock(id, txId): the inverse CAS, used on abort. Fails with
// ErrWrongTransaction if txId doesn't match the current lock holder,
// preventing one transaction from unlocking a document another
// transaction has since locked.
//
// Finalize(id, txId): clears the lock and marks the handoff COMPLETED,
// guarded by the same txId check as Unlock. No participant operation
// calls it: the target-side commit inserts the ride already unlocked and
// marked COMPLETED.
//
// DeleteRide(id, txId): like Finalize but removes the document entirely,
// used at the source region once the target has durably committed the
// ride.
//
// # Concurrency and Thread-safety
//
// MemoryStore serializes all access behind a single sync.RWMutex;
// GetRide/Search take the read lock, every mutating call takes the write
// lock. Every method returning a *cluster.Ride returns a defensive Clone
// rather than a pointer into the map, so a caller mutating the returned
// value never corrupts store state. RedisStore has no client-side lock:
// atomicity comes from Redis executing each Lua script as a single
// command, so two RedisStore instances in two different region processes
// (impossible in this system, each region owns its own store, but true in
// general) would still serialize correctly against the same Redis key.
//
// # Retries
//
// Store implementations do not retry internally beyond what the backend
// client already does (go-redis's own connection retry policy); the
// bounded-retry-on-transient-error requirement in spec §4.A is the
// caller's responsibility (internal/regionclient), since only the caller
// knows whether a retry should carry the same txId.
//
// # Performance Characteristics
//
// MemoryStore operations are O(1) for single-document access and O(n) for
// Search, where n is the number of stored rides (no secondary index).
// RedisStore's CAS operations are a single round trip each; Search scans
// the region's key namespace with Redis's cursor-based SCAN rather than
// KEYS, so it does not block the server on a large keyspace.
//
// # See Also
//
// Related packages:
//   - internal/participant: the only caller of Lock/Unlock.
//   - internal/cluster: the Ride type this package persists.
package store
