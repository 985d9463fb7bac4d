// Package coordinator implements the Handoff Coordinator (spec §4.E): the
// two-phase-commit driver that migrates a ride from its source region to
// its target region, buffers the request when the target is unhealthy, and
// drains the buffer on recovery. It is the sole writer of the transaction
// log and the buffer (spec §3's ownership rule): no other package appends
// to internal/txlog or mutates internal/buffer.
//
// # Overview
//
// A handoff moves one ride document from one region's store to another's
// without ever having two regions agree the ride is theirs at the same
// time, and without losing the ride if either region, or the coordinator
// itself, crashes mid-transaction. The coordinator achieves this with a
// textbook two-phase-commit over HTTP: allocate a transaction id, PREPARE
// both participants, and only then COMMIT both, writing a transaction log
// record before each phase that a recovery pass could observe after a
// crash.
//
// # Architecture
//
//	┌─────────────────────────────────────────────┐
//	│                 Coordinator                  │
//	├─────────────────────────────────────────────┤
//	│                                               │
//	│  ┌─────────────────────────────────────┐    │
//	│  │  Handoff (2PC driver)                │    │
//	│  │  - allocate txId                     │    │
//	│  │  - PREPARE source, PREPARE target     │    │
//	│  │  - COMMIT target, COMMIT source       │    │
//	│  └─────────────────────────────────────┘    │
//	│                                               │
//	│  ┌─────────────────────────────────────┐    │
//	│  │  Recover (startup + periodic)        │    │
//	│  │  - scan txlog for non-terminal       │    │
//	│  │  - resolve STARTED, PREPARED records  │    │
//	│  └─────────────────────────────────────┘    │
//	│                                               │
//	│  ┌─────────────────────────────────────┐    │
//	│  │  Drainer (health-triggered)           │    │
//	│  │  - subscribes to health transitions   │    │
//	│  │  - replays a target's buffer FIFO      │    │
//	│  └─────────────────────────────────────┘    │
//	│                                               │
//	└───────┬──────────────┬──────────────┬───────┘
//	        │              │              │
//	   internal/       internal/      internal/
//	    txlog           buffer          health
//
// Each of the three subsystems above is driven from a single Coordinator
// value; none of them is reachable except through it, which is what keeps
// the ownership rule enforceable by construction rather than by convention.
//
// # Core Components
//
// Handoff: the synchronous entry point used by cmd/coordinator's HTTP
// handler and by the drainer when replaying a buffered entry.
//   - Validates source != target and both are configured regions.
//   - Consults internal/health before touching the network.
//   - Drives prepare/commit against internal/regionclient, which owns
//     retry and circuit-breaking.
//   - Returns exactly one of SUCCESS, ABORTED, BUFFERED, or PARTIAL.
//
// Recover: the crash-recovery scan described by spec §4.C.
//   - Runs synchronously once at Start, then on recoveryInterval.
//   - STARTED records are resolved by probing both participants' status
//     endpoints; PREPARED records are resumed forward using the ride
//     snapshot captured at prepare time.
//
// drainTarget: replays one target region's FIFO buffer.
//   - Only one drain per target runs at a time (buffer.TryBeginDrain).
//   - Stops the moment a replayed entry itself comes back BUFFERED, since
//     that means the target went back down mid-drain.
//
// # Health Gate and Buffering
//
// Before starting a transaction the coordinator consults internal/health.
// An UNAVAILABLE target enqueues the request in internal/buffer and
// returns BUFFERED rather than running 2PC against a region known to be
// down. An UNAVAILABLE source fails fast rather than buffering: buffering
// a source-unavailable handoff would leave the ride marooned with no
// region actively serving it, which spec §4.E step 2 rules out.
//
// # Concurrency and Thread-safety
//
// A single Coordinator value is shared across every HTTP request goroutine
// and the two background goroutines Start launches (the health-event
// subscriber and the periodic recovery ticker). Coordinator itself holds
// no mutable state beyond its two goroutines' lifecycle (cancel, wg); all
// actual mutable state lives in internal/txlog, internal/buffer, and
// internal/health, each of which is independently safe for concurrent use.
// Handoff may be called concurrently for different rideIds without
// additional synchronization; concurrent Handoff calls for the same
// rideId are serialized by the participants' compare-and-swap lock, not by
// the coordinator.
//
// # Failure Scenarios and Recovery
//
// Coordinator crash between PREPARE and COMMIT:
//   - Detection: startup Recover scan finds a PREPARED, non-terminal
//     record.
//   - Recovery: resume forward to COMMIT using the stored ride snapshot,
//     since both participants already voted COMMIT.
//
// Coordinator crash between allocate and PREPARE:
//   - Detection: startup Recover scan finds a STARTED record.
//   - Recovery: probe both participants. If the source holds this
//     transaction's lock and the target has no document, abort both; if
//     the source no longer has the ride, abort the target. A failed probe
//     or any other combination leaves the record STARTED for the next
//     recovery pass.
//
// Target region down at handoff time:
//   - Detection: internal/health classifies the target UNAVAILABLE.
//   - Recovery: buffer the request; the drainer replays it once health
//     observes a transition back to AVAILABLE.
//
// Partial commit (target committed, source commit fails):
//   - Detection: dstClient.Commit succeeds, srcClient.Commit errors.
//   - Recovery: returned as PARTIAL with the record left PREPARED; the
//     ride exists at both regions until the next periodic Recover pass
//     re-issues both commits (a replayed target commit succeeds) and
//     writes COMMITTED.
//
// # Performance Characteristics
//
// Handoff issues at most 4 sequential HTTP round trips to participants
// (prepare source, prepare target, commit target, commit source) plus 3
// synchronous txlog writes; with MemoryLog these writes are sub-microsecond,
// so observed latency is dominated by the two regions' response times.
// Transactions(limit) is O(n) in the number of non-terminal plus terminal
// records currently in the log; it is intended for operator/debug use, not
// a hot path.
//
// # Usage Example
//
//	coord := coordinator.New(regionClients, txLog, buf, monitor, mx, coordinator.Options{
//	    PrepareTimeout: 5 * time.Second,
//	    CommitTimeout:  5 * time.Second,
//	})
//	if err := coord.Start(ctx); err != nil {
//	    log.Fatalf("startup recovery failed: %v", err)
//	}
//	defer coord.Stop()
//
//	result, err := coord.Handoff(ctx, "R-1", "Phoenix", "LA")
//
// # See Also
//
// Related packages:
//   - internal/participant: the region-side protocol this package drives.
//   - internal/regionclient: retry and circuit-breaking over the wire.
//   - internal/txlog: the durable log Recover replays.
//   - internal/buffer, internal/health: the buffering and health-gate
//     subsystems described above.
package coordinator
