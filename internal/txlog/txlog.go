// Package txlog implements the Transaction Log (spec §4.C): the durable,
// append-only record of handoff state transitions the coordinator writes
// before every protocol step and replays on startup.
package txlog

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dreamware/ridefleet/internal/cluster"
)

// Transaction states, per §3. Transitions are monotone: STARTED→PREPARED→
// COMMITTED, STARTED→ABORTED, or PREPARED→ABORTED. COMMITTED and ABORTED are
// terminal and immutable.
const (
	StateStarted   = "STARTED"
	StatePrepared  = "PREPARED"
	StateCommitted = "COMMITTED"
	StateAborted   = "ABORTED"
)

// Vote values exchanged during prepare.
const (
	VoteCommit = "COMMIT"
	VoteAbort  = "ABORT"
)

// ErrInvalidTransition is returned by Append when a record would move a
// transaction out of a terminal state, or skip over PREPARED on its way to
// COMMITTED.
var ErrInvalidTransition = errors.New("txlog: invalid state transition")

// Record is one transaction's log entry, keyed uniquely by TxID.
type Record struct {
	TxID   string `json:"txId"`
	RideID string `json:"rideId"`
	Source string `json:"source"`
	Target string `json:"target"`
	State  string `json:"state"`

	Votes [2]string `json:"votes"` // [0]=source, [1]=target

	StartedAt   time.Time `json:"startedAt"`
	PreparedAt  time.Time `json:"preparedAt,omitempty"`
	CommittedAt time.Time `json:"committedAt,omitempty"`
	AbortedAt   time.Time `json:"abortedAt,omitempty"`

	Error        string        `json:"error,omitempty"`
	RideSnapshot *cluster.Ride `json:"rideSnapshot,omitempty"`
}

func (r Record) clone() Record {
	cp := r
	if r.RideSnapshot != nil {
		cp.RideSnapshot = r.RideSnapshot.Clone()
	}
	return cp
}

// rank orders states for monotonicity checks: terminal states have the
// highest rank and reject any further transition.
func rank(state string) int {
	switch state {
	case StateStarted:
		return 0
	case StatePrepared:
		return 1
	case StateCommitted, StateAborted:
		return 2
	default:
		return -1
	}
}

// validTransition reports whether moving from `from` to `to` is legal.
// Appending the same state onto itself is always legal (idempotent retry of
// the same log write).
func validTransition(from, to string) bool {
	if from == to {
		return true
	}
	fr, tr := rank(from), rank(to)
	if fr < 0 || tr < 0 {
		return false
	}
	if fr == 2 {
		// Terminal states never move.
		return false
	}
	// PREPARED can only be reached from STARTED; COMMITTED only from
	// PREPARED (ABORTED is reachable from either STARTED or PREPARED).
	if to == StatePrepared && from != StateStarted {
		return false
	}
	if to == StateCommitted && from != StatePrepared {
		return false
	}
	return tr >= fr
}

// Log is the durable append-only transaction record store.
type Log interface {
	// Append writes rec, idempotent on TxID. If a record for TxID already
	// exists, the state transition from the existing state to rec.State
	// must be valid (see validTransition); non-TxID/StartedAt fields are
	// last-write-wins on top of that check.
	Append(rec Record) error

	// Get returns the record for txID, or ok=false if none exists.
	Get(txID string) (Record, bool, error)

	// Scan returns every record currently in the given state. Pass "" to
	// scan all non-terminal records (used by recovery on startup).
	Scan(state string) ([]Record, error)
}

// MemoryLog is an in-process Log. It is the default for tests and the
// single-process demo; it does not survive a process crash, which is the
// accepted tradeoff documented in SPEC_FULL.md's Open Question resolution.
type MemoryLog struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryLog returns an empty log.
//
// Returns:
//   - *MemoryLog: ready for concurrent use, holding no records.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{records: make(map[string]Record)}
}

// Append writes rec, merging it onto any existing record for rec.TxID.
//
// Parameters:
//   - rec: the record to write; rec.State must be a valid transition from
//     the existing record's state, if one exists (validTransition).
//
// Returns:
//   - error: ErrInvalidTransition if the transition is illegal; nil
//     otherwise, including on an idempotent re-append of the same state.
//
// Thread-safety: safe for concurrent use; serialized behind a single
// mutex, so Scan never observes a partially merged record.
func (l *MemoryLog) Append(rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, ok := l.records[rec.TxID]
	if !ok {
		l.records[rec.TxID] = rec.clone()
		return nil
	}
	if !validTransition(existing.State, rec.State) {
		return fmt.Errorf("%w: tx %s %s -> %s", ErrInvalidTransition, rec.TxID, existing.State, rec.State)
	}
	merged := rec.clone()
	merged.StartedAt = existing.StartedAt
	l.records[rec.TxID] = merged
	return nil
}

func (l *MemoryLog) Get(txID string) (Record, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.records[txID]
	if !ok {
		return Record{}, false, nil
	}
	return rec.clone(), true, nil
}

func (l *MemoryLog) Scan(state string) ([]Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Record
	for _, rec := range l.records {
		if state == "" {
			if rec.State != StateCommitted && rec.State != StateAborted {
				out = append(out, rec.clone())
			}
			continue
		}
		if rec.State == state {
			out = append(out, rec.clone())
		}
	}
	return out, nil
}
