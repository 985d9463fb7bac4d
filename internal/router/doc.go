// Package router implements the Query Router (spec §4.F): the three read
// scopes a search request can target, local (one region), global-fast (a
// designated read replica), and global-live (scatter-gather across every
// configured region).
//
// # Overview
//
// A ride search is not always answerable from a single region: an
// operator asking "where is ride R" during an active handoff may need a
// live view across every region, while a dashboard tolerant of staleness
// is better served by one cheap read against a replica. This package
// exposes all three as one Query entry point keyed by Filter.Scope, so
// callers (cmd/coordinator's HTTP handler) don't need three separate code
// paths.
//
// # Architecture
//
//	┌─────────────────────────────────────────────┐
//	│                    Router                     │
//	├─────────────────────────────────────────────┤
//	│  local:        one region, direct call        │
//	│  global-fast:  one call to the read replica   │
//	│  global-live:  fan out to every region,        │
//	│                merge, dedup, sort             │
//	└─────────────────────────────────────────────┘
//
// # Scatter-Gather (global-live)
//
// The fan-out in globalLive is grounded on torua's cmd/coordinator
// handleBroadcast: snapshot the target set, release any lock before doing
// I/O, fan out concurrently, and tolerate individual failures without
// failing the whole call, generalized here from fire-and-forget POST to
// collect-and-merge POST /rides/search calls.
//
//  1. Every configured region is queried concurrently with a shared
//     per-call timeout.
//  2. Results are merged; when the same rideId appears from more than one
//     region (possible mid-handoff), the copy with the newer timestamp
//     wins.
//  3. The merged set is sorted by timestamp descending, then rideId
//     ascending as a deterministic tie-break, per spec §8.7.
//  4. A minority of regions failing does not fail the call; only when
//     every region fails does Query return an error.
//
// # Core Operations
//
// Validate(filter): enforces Filter's struct-tag constraints
// (go-playground/validator) plus the scope-specific rule that Scope=local
// requires Region to be set.
//
// Query(ctx, filter): dispatches to local, globalFast, or globalLive
// based on filter.Scope.
//
// # Concurrency and Thread-safety
//
// Router holds no mutable state beyond its region client map and replica
// client, both set once at construction and never mutated afterward, so
// Router is safe for concurrent Query calls without any locking of its
// own. Each globalLive call allocates its own result slice and
// error-tracking state local to that call, so concurrent searches never
// share mutable state.
//
// # Performance Characteristics
//
// local and global-fast are a single HTTP round trip. global-live's
// latency is bounded by the slowest responding region up to the shared
// timeout, not the sum of per-region latencies, since every region is
// queried concurrently. The merged results are ordered with an insertion
// sort, O(n²) in the number of distinct rides returned across all regions.
//
// # See Also
//
// Related packages:
//   - internal/regionclient: the HTTP client this package fans out
//     through.
//   - internal/cluster: the Ride type being searched for.
package router
