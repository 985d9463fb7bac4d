// Package txlog implements spec §4.C: an append-only durable record of
// handoff state transitions keyed by txId, with a Scan operation the
// coordinator's startup and periodic recovery passes use to find
// transactions that never reached a terminal state.
//
// # Overview
//
// Every handoff's progress is recorded here before the protocol step it
// gates: a STARTED record before the first PREPARE call, a PREPARED
// record before either COMMIT call, and a terminal COMMITTED or ABORTED
// record as the last write of a transaction. internal/coordinator enforces
// this write-before-act ordering by sequencing its calls; this package
// only enforces that the transitions it is given are monotone (see
// validTransition below), not that they happen in the right order
// relative to the network calls around them.
//
// # Architecture
//
//	STARTED ──► PREPARED ──► COMMITTED
//	   │            │
//	   └────────────┴──────► ABORTED
//
// Two implementations share this state machine:
//
//	┌─────────────────────────────────┐
//	│          Log interface           │
//	│  Append(Record) / Get / Scan     │
//	└─────────┬─────────────┬─────────┘
//	          │             │
//	   ┌──────▼─────┐ ┌─────▼──────┐
//	   │ MemoryLog   │ │  EtcdLog    │
//	   │ map+mutex   │ │ etcd v3 KV  │
//	   └─────────────┘ └─────────────┘
//
// MemoryLog is used for tests and the in-process demo. EtcdLog persists
// each record as an etcd key so a coordinator restart (or a fresh
// coordinator process taking over) can recover in-flight transactions
// from durable storage; see SPEC_FULL.md §6 for why etcd was chosen over
// a quorum-replicated log built from scratch for this system.
//
// # Core Operations
//
// Append(rec): merges rec into any existing record for the same TxID,
// validating the state transition is monotone (validTransition). The
// stored record becomes rec with the existing StartedAt kept; every other
// field is last-write-wins, so a field rec leaves unset (RideSnapshot on
// a COMMITTED write, for example) is cleared.
//
// Get(txId): returns the current merged record for a transaction.
//
// Scan(state): returns every record in the given state, or every
// non-terminal record when state is the empty string, the shape recovery
// needs to find work to do.
//
// # Idempotence and Monotonicity
//
// Append is idempotent: re-appending the same state is a no-op merge, so
// a coordinator retrying a log write after an uncertain response (timeout
// on the write itself) never corrupts the record. validTransition rejects
// any transition that would move a record backward (PREPARED to STARTED)
// or out of a terminal state (COMMITTED to ABORTED), since both would
// indicate a bug in the caller rather than a legitimate retry.
//
// # Concurrency and Thread-safety
//
// MemoryLog guards its map with a sync.RWMutex; Append takes the write
// lock and Get and Scan the read lock, so Scan never observes a
// partially-written record. EtcdLog
// relies on etcd's own linearizable reads and writes per key; concurrent
// Append calls for different TxIDs touch different keys and do not
// contend.
//
// # Performance Characteristics
//
// MemoryLog's Append/Get are O(1); Scan is O(n) in the number of records.
// EtcdLog's Append is one etcd transaction (read-modify-write to enforce
// the monotonicity check); Scan uses a prefix range read.
//
// # See Also
//
// Related packages:
//   - internal/coordinator: the sole writer (Append) and sole reader
//     (Scan) of this log.
package txlog
