// Package cluster provides the shared domain types and inter-process HTTP
// plumbing used across the ride-handoff system: the Ride document, region
// descriptors, and the PostJSON/GetJSON/DeleteJSON helpers every
// participant and coordinator call goes through.
//
// # Overview
//
// Every HTTP call in this system, coordinator to region, router to region,
// region to itself in tests, carries the same handful of JSON shapes. This
// package is where those shapes live, alongside the small set of HTTP
// helpers that encode/decode them and map non-2xx responses to typed
// errors. Nothing here is domain logic; it is the wire-format and
// transport layer every other package builds on.
//
// # Architecture
//
// Unlike torua's hub-and-spoke node registration, this system's regions
// are statically configured: there is no "join the cluster" handshake. A
// region is simply a name and a base URL (RegionInfo); the coordinator is
// handed the full set at startup (internal/config) and never discovers or
// forgets one at runtime.
//
//	                 ┌──────────────┐
//	                 │  Coordinator │
//	                 │              │
//	                 │ - TxLog      │
//	                 │ - Buffer     │
//	                 │ - Health Mon │
//	                 └──────┬───────┘
//	                        │ PostJSON/GetJSON
//	         ┌──────────────┼──────────────┐
//	         │              │              │
//	   ┌─────▼─────┐  ┌─────▼─────┐  ┌─────▼─────┐
//	   │  Phoenix   │  │    LA     │  │  Replica  │
//	   │ (region)   │  │ (region)  │  │ (read-only)│
//	   └────────────┘  └───────────┘  └───────────┘
//
// # Core Types
//
// Ride: the document migrated between regions.
//   - RideID is the document's natural key across every store backend.
//   - TransactionID and Locked carry the compare-and-swap state a region
//     participant uses to serialize concurrent handoff attempts.
//   - Clone returns a deep copy so a caller holding a *Ride never shares
//     mutable state with a store's internal map.
//
// RegionInfo: a region's name and base URL. internal/config's regions map
// and internal/regionclient.New carry the same pair as plain strings and
// do not use this type.
//
// # Communication Protocol
//
// The package exposes three helpers, all JSON over HTTP, bounded by the
// shared client's 5-second timeout and by whatever deadline the caller's
// context carries:
//
// PostJSON(ctx, url, body, out): encodes body, POSTs it, decodes the
// response into out if out is non-nil. Used for 2PC prepare/commit/abort
// and for ride searches, including the query router's fan-out calls.
//
// GetJSON(ctx, url, out): GETs url and decodes the response into out.
// Used for health probes and 2PC status probes.
//
// DeleteJSON(ctx, url, out): DELETEs url; maps a 404 response to
// ErrNotFound so callers can distinguish "already gone" from a transport
// failure without string-matching response bodies.
//
// # Concurrency
//
// Ride is a plain value type; Clone returns a deep copy so that callers
// never share mutable state across a package boundary. The package-level
// httpClient is safe for concurrent use and is shared by every caller in
// the process for connection reuse.
//
// # Failure Handling
//
// Non-2xx responses are turned into errors carrying the request URL and
// the status code; the response body is not included. ErrNotFound is the
// one sentinel callers are expected to check with errors.Is; every other
// non-2xx status becomes an opaque error since the caller's recovery
// action for "400" versus "500" is the same at this layer (the retry
// policy lives one layer up, in internal/regionclient).
//
// # Performance Characteristics
//
// Each helper does exactly one HTTP round trip; none retries. Ride.Clone
// is O(1) since Ride carries no nested slices or maps beyond its scalar
// fields.
//
// # See Also
//
// Related packages:
//   - internal/regionclient: wraps these helpers with retry, circuit
//     breaking, and the participant-specific request/response shapes.
//   - internal/store: the document store these wire types are persisted
//     into, region-side.
package cluster
