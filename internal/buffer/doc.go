// Package buffer implements the handoff buffer described in spec §4.E: an
// in-memory FIFO queue per target region, used to defer a
// handoff request when internal/health classifies its target as
// UNAVAILABLE, and replayed in order once the target recovers.
//
// # Overview
//
// A handoff whose target is down should not be retried in a tight loop
// against a region known to be unreachable, nor should it be dropped. This
// package gives internal/coordinator a place to park such requests, one
// FIFO per target region, bounded in size so a target that never recovers
// cannot grow the buffer without limit.
//
// # Architecture
//
// The map+mutex+defensive-copy shape is carried over from torua's
// ShardRegistry, repurposed from a shard-assignment table to a
// FIFO-per-target-region queue:
//
//	┌─────────────────────────────────────────┐
//	│                  Buffer                   │
//	├─────────────────────────────────────────┤
//	│  queues map[target][]Entry (Mutex)       │
//	│  draining map[target]bool                │
//	│  maxPer int                              │
//	└─────────────────────────────────────────┘
//
// # Core Operations
//
// Enqueue(rideId, source, target): appends an Entry to target's queue,
// failing with an error once that queue reaches maxPer.
//
// Peek(target)/Remove(target, id): the drainer reads the head of the
// queue without removing it, attempts the replay, and only calls Remove
// once the replay resolves to something other than BUFFERED again. Remove
// is a no-op unless id matches the current head, so a stale removal
// racing a fresher Enqueue can never delete the wrong entry.
//
// IncrementAttempts(target, id): bookkeeping the drainer updates before
// each replay attempt, for observability rather than correctness.
//
// TryBeginDrain(target)/EndDrain(target): per-target mutual exclusion so
// at most one drain loop runs against a given target's queue at a time,
// even if two health-transition events for the same target fire close
// together.
//
// # Concurrency and Thread-safety
//
// All state is guarded by a single sync.Mutex; every method that
// returns an Entry returns a copy, never a pointer into the queue slice,
// so a caller cannot mutate buffer-internal state. TryBeginDrain is the
// only operation that depends on atomic test-and-set semantics: it
// acquires the mutex and only flips draining[target] to true if it
// was previously false, returning whether the caller won the race.
//
// # Performance Characteristics
//
// Enqueue, Peek, and Remove are O(1) amortized (append and a slice
// front-trim); Len is O(1). Per-target independence means one target's
// queue filling to capacity never affects another target's headroom.
//
// # See Also
//
// Related packages:
//   - internal/coordinator: the only caller of every method above, from
//     its health gate (Enqueue) and drainer (Peek/Remove/TryBeginDrain).
//   - internal/health: publishes the transition events that trigger a
//     drain.
package buffer
