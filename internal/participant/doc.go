// Package participant implements the Region Participant Protocol (spec
// §4.B): the prepare/commit/abort/status operations a region exposes to
// the coordinator over HTTP, built on top of internal/store's
// compare-and-swap lock. internal/regionclient is its client-side
// counterpart, used by the coordinator and the query router.
//
// # Overview
//
// A Participant is the region-side half of two-phase commit. It never
// initiates a transaction and never talks to another region; it only
// responds to the four calls a coordinator makes against it (Prepare,
// Commit, Abort, Status), each scoped by a role (source or target) since
// the document-level effect of each call differs depending on which side
// of the handoff this region plays.
//
// # Core Operations
//
// Prepare(txId, rideId, role): votes COMMIT or ABORT.
//   - As source: votes COMMIT if the ride exists and can be locked
//     (or is already locked by this txId, an idempotent retry); votes
//     ABORT if the ride is missing or locked by a different txId.
//   - As target: votes COMMIT if no ride with this id exists yet; votes
//     ABORT on a duplicate, since a ride already present at the target
//     means either a stale retry landed twice or a genuine conflicting
//     handoff is in flight.
//
// Commit(txId, rideId, role, ride): makes the transaction's effect
// durable.
//   - As source: deletes the ride (Store.DeleteRide), the document now
//     lives only at the target.
//   - As target: inserts the ride from the snapshot captured at prepare
//     time (Store.InsertRide), since the target never had the document
//     before.
//
// Abort(txId, rideId, role): unwinds a vote.
//   - As source: unlocks the ride (Store.Unlock) so it remains usable.
//   - As target: deletes the ride only if its TransactionID equals txId;
//     an absent ride is a no-op success. Critically, Abort never
//     deletes a ride at the target that belongs to a different,
//     unrelated transaction.
//
// Status(txId, rideId): a read-only probe the coordinator's recovery pass
// uses to determine whether a STARTED transaction ever progressed,
// without mutating any state.
//
// # Idempotence
//
// Every operation above is idempotent under duplicate delivery by txId:
// retrying Prepare, Commit, or Abort with the same txId and rideId after
// a timeout or a coordinator restart reproduces the same outcome rather
// than erroring or double-applying the effect. This is a contract the
// coordinator depends on when retrying after partial failure, and is
// enforced partly by internal/store's Lock accepting a re-lock with a
// matching txId and partly by this package treating the store's
// not-found, wrong-transaction and already-exists answers on a replay as
// success where they mean the effect is already in place.
//
// # Concurrency and Thread-safety
//
// Participant itself holds no mutable state; all serialization happens in
// the Store it wraps. Two Prepare calls for the same rideId but different
// txIds are serialized by Store.Lock's compare-and-swap, which is what
// makes spec §8's contested-handoff scenario resolve deterministically
// regardless of which HTTP request the region's server happens to
// schedule first.
//
// # Performance Characteristics
//
// Every operation here does exactly one or two Store calls and no network
// I/O; latency is dominated by the Store backend (MemoryStore is
// effectively free, RedisStore is one round trip per Store call).
//
// # See Also
//
// Related packages:
//   - internal/regionclient: the client-side counterpart, adding retry
//     and circuit breaking around calls into this package's HTTP surface.
//   - internal/store: the CAS lock this package's protocol is built on.
package participant
