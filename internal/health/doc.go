// Package health is the single-writer health store spec §9 describes: the
// Monitor is the only mutator of Record; the coordinator's buffer drainer
// and internal/router read it via GetRegionHealth/GetAllRegionHealth or
// subscribe to transitions via Subscribe, never holding a back-reference
// into this package's internals.
//
// # Overview
//
// Monitor periodically probes every configured region's /health endpoint
// and classifies each region as AVAILABLE, UNAVAILABLE, or UNKNOWN (the
// initial state before the first probe completes). UNKNOWN is treated the
// same as AVAILABLE by internal/coordinator's health gate: only a
// positively-observed UNAVAILABLE blocks a handoff or triggers buffering,
// so a freshly started coordinator does not refuse traffic to a region it
// simply hasn't probed yet.
//
// # Architecture
//
//	┌────────────────────────────────────────┐
//	│                 Monitor                 │
//	├────────────────────────────────────────┤
//	│  ticker loop (per-region probe)         │
//	│    checkFunc(ctx, region) -> ProbeResult│
//	│    consecutive-failure counter          │
//	│    classify -> Record{State, ...}       │
//	├────────────────────────────────────────┤
//	│  records map[region]Record (RWMutex)    │
//	│  subscribers []chan Event (buffered)    │
//	└────────────────────────────────────────┘
//
// # Core Operations
//
// Start/Stop: launches and halts the probe ticker goroutine.
//
// GetRegionHealth(region): returns the current Record and whether region
// is configured at all.
//
// GetAllRegionHealth(): a snapshot copy of every configured region's
// Record, safe for a caller to range over without holding any lock.
//
// Subscribe(): returns a buffered channel of Event values, one per state
// transition (not one per probe); a region that stays AVAILABLE across a
// hundred consecutive probes publishes nothing.
//
// SetCheckFunction/SetTimeout/SetFailureThreshold: test and
// production-wiring hooks; cmd/coordinator's main wires SetCheckFunction
// to a closure that also reports the region client's circuit-breaker
// state via SetBreakerState.
//
// # Classification
//
// A region transitions to UNAVAILABLE only after FailureThreshold
// consecutive failed probes (default per internal/config), not on the
// first failure, to avoid flapping on a single dropped packet. It
// transitions back to AVAILABLE on the very next successful probe: no
// threshold is required to recover, since recovering early is safe
// (worst case, one handoff attempt using a still-unhealthy region, which
// the circuit breaker and retry policy in internal/regionclient absorb).
//
// # Concurrency and Thread-safety
//
// Monitor's records map is guarded by a sync.RWMutex; GetRegionHealth and
// GetAllRegionHealth take the read lock and return copies, never a
// pointer into the map. The probe ticker runs on its own goroutine started
// by Start; publish() to subscriber channels is non-blocking (a full
// buffered channel drops the event rather than blocking the probe loop),
// since a slow subscriber must never stall health classification for
// every other region.
//
// # Performance Characteristics
//
// One HTTP probe per configured region per IntervalMs tick; the probes of
// a tick run concurrently, one goroutine per region, and the tick waits
// for all of them to finish. GetRegionHealth and GetAllRegionHealth are O(1) and
// O(n) respectively, n being the number of configured regions.
//
// # See Also
//
// Related packages:
//   - internal/coordinator: the health gate and drainer, the two
//     consumers of this package's state.
//   - internal/regionclient: the circuit-breaker state SetBreakerState
//     folds into RegionHealthSnapshot.
package health
