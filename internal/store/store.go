// Package store implements the Region Store Client: a small, total interface
// to one region's ride documents, with the compare-and-set lock discipline
// that serializes concurrent handoff attempts against the same ride.
package store

import (
	"errors"
	"sync"
	"time"

	"github.com/dreamware/ridefleet/internal/cluster"
)

// Sentinel errors returned by every Store implementation. Callers compare
// with errors.Is; the coordinator and participant map these onto the §7
// error taxonomy at their own boundary, never before.
var (
	ErrNotFound         = errors.New("store: ride not found")
	ErrAlreadyExists    = errors.New("store: ride already exists")
	ErrAlreadyLocked    = errors.New("store: ride already locked")
	ErrWrongTransaction = errors.New("store: transaction id does not match lock holder")
	ErrUnavailable      = errors.New("store: backend unavailable")
)

// HealthInfo is returned by Store.Health and mirrors the health record this
// region's store can speak to about itself (distinct from the cross-region
// health.Monitor classification, which is about reachability of the whole
// participant process, not the backing store).
type HealthInfo struct {
	PrimaryID        string    `json:"primaryId"`
	ReplicationLagMs int64     `json:"replicationLagMs"`
	LastWriteAt      time.Time `json:"lastWriteAt"`
}

// Stats summarizes the rides currently held by a store, per §6's
// `GET /stats` response shape.
type Stats struct {
	Total            int            `json:"total"`
	ByStatus         map[string]int `json:"byStatus"`
	AvgFare          float64        `json:"avgFare"`
	ReplicationLagMs int64          `json:"replicationLagMs"`
}

// SearchFilter is the minimal, fixed filter surface a Store must support for
// local and live-global reads. Router-level validation (unknown fields,
// range sanity) happens in internal/router; Store.Search treats a nil
// pointer field as "unconstrained".
type SearchFilter struct {
	Status  []string
	MinFare *float64
	MaxFare *float64
	Since   *time.Time
	Until   *time.Time
	Limit   int
}

// Store is the typed interface every region's backing document store
// implements. Every method is logically atomic at the document level; no
// method blocks holding a lock that some other method also needs, so
// implementations are free to use whatever internal concurrency control
// fits the backend (an in-process mutex for MemoryStore, a Lua script for
// RedisStore).
type Store interface {
	// GetRide returns the current document for id, or ErrNotFound.
	GetRide(id string) (*cluster.Ride, error)

	// InsertRide creates ride, keyed uniquely by RideID. Returns
	// ErrAlreadyExists if a document with that id is already present.
	InsertRide(ride *cluster.Ride) error

	// DeleteRide removes the document for id iff its TransactionID equals
	// txId. Returns ErrNotFound or ErrWrongTransaction otherwise.
	DeleteRide(id, txID string) error

	// Lock performs the CAS that is the linchpin of the ride invariants: it
	// succeeds only when the document's Locked field is false, atomically
	// setting Locked=true, TransactionID=txID, HandoffStatus=PREPARING.
	// Returns ErrAlreadyLocked when another transaction already holds it.
	Lock(id, txID string) (*cluster.Ride, error)

	// Unlock is the inverse CAS: it succeeds only when the document's
	// TransactionID equals txID, clearing Locked/TransactionID and resetting
	// HandoffStatus to empty.
	Unlock(id, txID string) error

	// Finalize clears the lock fields and sets HandoffStatus=COMPLETED when
	// the document's TransactionID equals txID. No participant operation
	// calls it; the target-side commit inserts the ride with these fields
	// already set.
	Finalize(id, txID string) error

	// Search returns documents matching filter, most recent Timestamp first.
	Search(filter SearchFilter) ([]*cluster.Ride, error)

	// Stats summarizes the rides currently held.
	Stats() (Stats, error)

	// Health reports this store's view of its own backend.
	Health() (HealthInfo, error)
}

// MemoryStore is an in-process, mutex-guarded Store. It is the default
// backend for tests and the single-process demo wiring, and doubles as the
// stand-in "global replica" read model per SPEC_FULL.md §5.
type MemoryStore struct {
	mu      sync.RWMutex
	rides   map[string]*cluster.Ride
	primary string
}

// NewMemoryStore creates an empty store.
//
// Parameters:
//   - primaryID: reported verbatim by Health; pass the region's own name
//     for a region store, or "replica" for the demo global-replica
//     stand-in.
//
// Returns:
//   - *MemoryStore: empty, ready for concurrent use.
func NewMemoryStore(primaryID string) *MemoryStore {
	return &MemoryStore{
		rides:   make(map[string]*cluster.Ride),
		primary: primaryID,
	}
}

// GetRide returns a clone of the stored document for id.
//
// Returns:
//   - *cluster.Ride: a clone; mutating it never affects store state.
//   - error: ErrNotFound if id is not present.
func (s *MemoryStore) GetRide(id string) (*cluster.Ride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ride, ok := s.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ride.Clone(), nil
}

// InsertRide stores a clone of ride, keyed by ride.RideID.
//
// Returns:
//   - error: ErrAlreadyExists if RideID is already present; "store: ride id
//     required" if RideID is empty.
func (s *MemoryStore) InsertRide(ride *cluster.Ride) error {
	if ride == nil || ride.RideID == "" {
		return errors.New("store: ride id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rides[ride.RideID]; ok {
		return ErrAlreadyExists
	}
	s.rides[ride.RideID] = ride.Clone()
	return nil
}

// DeleteRide removes id's document iff its TransactionID equals txID.
//
// Returns:
//   - error: ErrNotFound, or ErrWrongTransaction if a different transaction
//     holds the document.
//
// Thread-safety: serialized behind the store's write lock, the same CAS
// guard that makes Lock safe under concurrent handoff attempts.
func (s *MemoryStore) DeleteRide(id, txID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ride, ok := s.rides[id]
	if !ok {
		return ErrNotFound
	}
	if ride.TransactionID != txID {
		return ErrWrongTransaction
	}
	delete(s.rides, id)
	return nil
}

// Lock performs the CAS described on the Store interface.
//
// Parameters:
//   - id: the ride to lock.
//   - txID: the transaction attempting to hold the lock.
//
// Returns:
//   - *cluster.Ride: a clone of the now-locked document.
//   - error: ErrNotFound, or ErrAlreadyLocked if a different txID already
//     holds the lock; re-locking with the same txID is a no-op success.
//
// Thread-safety: serialized behind the store's write lock, which is what
// makes this the primitive two concurrent handoff attempts for the same
// ride resolve through deterministically.
func (s *MemoryStore) Lock(id, txID string) (*cluster.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ride, ok := s.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	if ride.Locked {
		if ride.TransactionID == txID {
			// Retry of a lock this same transaction already holds.
			return ride.Clone(), nil
		}
		return nil, ErrAlreadyLocked
	}
	ride.Locked = true
	ride.TransactionID = txID
	ride.HandoffStatus = cluster.HandoffPreparing
	return ride.Clone(), nil
}

// Unlock is the inverse of Lock: it clears the lock fields iff txID matches
// the current holder.
//
// Returns:
//   - error: ErrNotFound, or ErrWrongTransaction if txID does not hold the
//     lock.
func (s *MemoryStore) Unlock(id, txID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ride, ok := s.rides[id]
	if !ok {
		return ErrNotFound
	}
	if ride.TransactionID != txID {
		return ErrWrongTransaction
	}
	ride.Locked = false
	ride.TransactionID = ""
	ride.HandoffStatus = cluster.HandoffNone
	return nil
}

// Finalize clears the lock fields and marks id HandoffCompleted.
//
// Returns:
//   - error: ErrNotFound, or ErrWrongTransaction if txID does not hold the
//     lock.
func (s *MemoryStore) Finalize(id, txID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ride, ok := s.rides[id]
	if !ok {
		return ErrNotFound
	}
	if ride.TransactionID != txID {
		return ErrWrongTransaction
	}
	ride.Locked = false
	ride.TransactionID = ""
	ride.HandoffStatus = cluster.HandoffCompleted
	return nil
}

// Search returns documents matching filter, most recent Timestamp first,
// RideID ascending on ties.
//
// Returns:
//   - []*cluster.Ride: clones, truncated to filter.Limit if positive.
//   - error: always nil; present to satisfy the Store interface and leave
//     room for a backend that can fail (RedisStore).
func (s *MemoryStore) Search(filter SearchFilter) ([]*cluster.Ride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*cluster.Ride, 0, len(s.rides))
	for _, ride := range s.rides {
		if !matches(ride, filter) {
			continue
		}
		out = append(out, ride.Clone())
	}
	sortByTimestampDesc(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func matches(r *cluster.Ride, f SearchFilter) bool {
	if len(f.Status) > 0 {
		found := false
		for _, s := range f.Status {
			if r.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.MinFare != nil && r.Fare < *f.MinFare {
		return false
	}
	if f.MaxFare != nil && r.Fare > *f.MaxFare {
		return false
	}
	if f.Since != nil && r.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && r.Timestamp.After(*f.Until) {
		return false
	}
	return true
}

func sortByTimestampDesc(rides []*cluster.Ride) {
	// Insertion sort: result sets from a single region are small and this
	// keeps the tie-break (RideID ascending) stable and explicit, matching
	// the determinism invariant in spec §8.7.
	for i := 1; i < len(rides); i++ {
		j := i
		for j > 0 && less(rides[j-1], rides[j]) {
			rides[j-1], rides[j] = rides[j], rides[j-1]
			j--
		}
	}
}

// less reports whether a should sort after b (i.e. b belongs before a):
// newer Timestamp first, RideID ascending on ties.
func less(a, b *cluster.Ride) bool {
	if a.Timestamp.Equal(b.Timestamp) {
		return a.RideID > b.RideID
	}
	return a.Timestamp.Before(b.Timestamp)
}

// Stats summarizes the rides currently held: total count, count by status,
// and average fare.
func (s *MemoryStore) Stats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{ByStatus: make(map[string]int)}
	var fareSum float64
	for _, ride := range s.rides {
		stats.Total++
		stats.ByStatus[ride.Status]++
		fareSum += ride.Fare
	}
	if stats.Total > 0 {
		stats.AvgFare = fareSum / float64(stats.Total)
	}
	return stats, nil
}

// Health reports this store's primary id and a zero replication lag, since
// MemoryStore has no replica of its own.
func (s *MemoryStore) Health() (HealthInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return HealthInfo{
		PrimaryID:        s.primary,
		ReplicationLagMs: 0,
		LastWriteAt:      time.Now(),
	}, nil
}
