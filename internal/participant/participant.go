// Package participant implements the Region Participant Protocol (spec
// §4.B): the prepare/commit/abort/status operations a region exposes to the
// coordinator, built on top of internal/store's CAS lock. Every operation is
// idempotent under duplicate delivery by txId, a contract the coordinator
// depends on when retrying after partial failure.
package participant

import (
	"errors"

	"github.com/dreamware/ridefleet/internal/cluster"
	"github.com/dreamware/ridefleet/internal/store"
)

// Roles a participant call can be made under.
const (
	RoleSource = "SOURCE"
	RoleTarget = "TARGET"
)

// PrepareResult is the outcome of a prepare call.
type PrepareResult struct {
	Vote   string        `json:"vote"`
	Reason string        `json:"reason,omitempty"`
	Ride   *cluster.Ride `json:"ride,omitempty"`
}

// StatusResult is the outcome of a status probe, used by the coordinator's
// recovery scan to determine how far a STARTED transaction progressed.
type StatusResult struct {
	Present bool   `json:"present"`
	Locked  bool   `json:"locked"`
	Role    string `json:"role,omitempty"`
}

// Participant wraps one region's Store with the 2PC protocol. Region is the
// name this participant reports on documents it owns (used when inserting a
// ride on the target side of a handoff).
type Participant struct {
	Region string
	Store  store.Store
}

// New returns a Participant backed by s, identifying itself as region.
//
// Parameters:
//   - region: the name reported on documents inserted by this participant's
//     target-side Commit.
//   - s: the backing Store; MemoryStore or RedisStore.
func New(region string, s store.Store) *Participant {
	return &Participant{Region: region, Store: s}
}

// Prepare implements spec §4.B's prepare operation.
//
// Parameters:
//   - txID: the transaction id; a repeated call with the same txID and
//     rideID must reproduce the same vote.
//   - rideID: the ride being handed off.
//   - role: RoleSource or RoleTarget, determining which half of the
//     protocol runs.
//
// Returns:
//   - PrepareResult: Vote is COMMIT or ABORT; Ride is populated only on a
//     source COMMIT vote, the snapshot the coordinator carries into
//     Commit at the target.
//   - error: non-nil only for an invalid role or a store-level failure,
//     never for a legitimate ABORT vote.
func (p *Participant) Prepare(txID, rideID, role string) (PrepareResult, error) {
	switch role {
	case RoleSource:
		return p.prepareSource(txID, rideID)
	case RoleTarget:
		return p.prepareTarget(txID, rideID)
	default:
		return PrepareResult{}, errors.New("participant: invalid role")
	}
}

func (p *Participant) prepareSource(txID, rideID string) (PrepareResult, error) {
	ride, err := p.Store.Lock(rideID, txID)
	switch {
	case err == nil:
		return PrepareResult{Vote: "COMMIT", Ride: ride}, nil
	case errors.Is(err, store.ErrNotFound):
		return PrepareResult{Vote: "ABORT", Reason: "not_found"}, nil
	case errors.Is(err, store.ErrAlreadyLocked):
		return PrepareResult{Vote: "ABORT", Reason: "contested"}, nil
	default:
		return PrepareResult{}, err
	}
}

func (p *Participant) prepareTarget(txID, rideID string) (PrepareResult, error) {
	existing, err := p.Store.GetRide(rideID)
	if errors.Is(err, store.ErrNotFound) {
		return PrepareResult{Vote: "COMMIT"}, nil
	}
	if err != nil {
		return PrepareResult{}, err
	}
	if existing.TransactionID == txID {
		// Replay of a prior successful insert.
		return PrepareResult{Vote: "COMMIT"}, nil
	}
	return PrepareResult{Vote: "ABORT", Reason: "duplicate"}, nil
}

// Commit implements spec §4.B's commit operation. snapshot is required for
// TARGET and ignored for SOURCE.
//
// Parameters:
//   - txID, rideID: must match the Prepare call this commit finalizes.
//   - role: RoleSource deletes the local document; RoleTarget inserts
//     snapshot.
//   - snapshot: the ride to insert on the target side; nil is only valid
//     for RoleSource.
//
// Returns:
//   - error: non-nil only on a genuine store failure; a replayed commit of
//     an already-committed transaction returns nil.
func (p *Participant) Commit(txID, rideID, role string, snapshot *cluster.Ride) error {
	switch role {
	case RoleSource:
		err := p.Store.DeleteRide(rideID, txID)
		if err == nil || errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	case RoleTarget:
		return p.commitTarget(txID, rideID, snapshot)
	default:
		return errors.New("participant: invalid role")
	}
}

func (p *Participant) commitTarget(txID, rideID string, snapshot *cluster.Ride) error {
	if snapshot == nil {
		return errors.New("participant: commit target requires ride snapshot")
	}

	ride := snapshot.Clone()
	ride.Region = p.Region
	ride.HandoffStatus = cluster.HandoffCompleted
	ride.Locked = false
	ride.TransactionID = ""

	err := p.Store.InsertRide(ride)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrAlreadyExists) {
		return err
	}

	existing, getErr := p.Store.GetRide(rideID)
	if getErr != nil {
		return getErr
	}
	if existing.RideID == rideID && existing.Region == p.Region {
		return nil
	}
	return err
}

// Abort implements spec §4.B's abort operation.
//
// Parameters:
//   - txID, rideID: must match the Prepare call being aborted.
//   - role: RoleSource unlocks the local document; RoleTarget deletes any
//     document the target-side Commit may have inserted.
//
// Returns:
//   - error: non-nil only on a genuine store failure; aborting an already
//     unlocked or absent document is a no-op success.
func (p *Participant) Abort(txID, rideID, role string) error {
	switch role {
	case RoleSource:
		err := p.Store.Unlock(rideID, txID)
		if err == nil || errors.Is(err, store.ErrWrongTransaction) || errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	case RoleTarget:
		return p.abortTarget(rideID, txID)
	default:
		return errors.New("participant: invalid role")
	}
}

func (p *Participant) abortTarget(rideID, txID string) error {
	existing, err := p.Store.GetRide(rideID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.TransactionID != txID {
		// Never delete a document belonging to a different transaction.
		return nil
	}
	err = p.Store.DeleteRide(rideID, txID)
	if err == nil || errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// Status implements spec §4.B/§4.C's status probe, used by coordinator
// recovery to determine how far a STARTED transaction progressed.
//
// Returns:
//   - StatusResult: Present is false if rideID is absent; Locked is true
//     only when txID is the current lock holder.
//   - error: non-nil only on a genuine store failure.
func (p *Participant) Status(txID, rideID string) (StatusResult, error) {
	ride, err := p.Store.GetRide(rideID)
	if errors.Is(err, store.ErrNotFound) {
		return StatusResult{Present: false}, nil
	}
	if err != nil {
		return StatusResult{}, err
	}
	if ride.TransactionID != txID {
		return StatusResult{Present: true, Locked: false}, nil
	}
	return StatusResult{Present: true, Locked: ride.Locked}, nil
}

// Health reports this participant's store health, per spec §6's
// `GET /health` response shape (status/region added by the HTTP handler).
func (p *Participant) Health() (store.HealthInfo, error) {
	return p.Store.Health()
}

// Stats reports this participant's ride statistics, per spec §4.A / §6's
// supplemented `/stats` endpoint (SPEC_FULL.md §4).
func (p *Participant) Stats() (store.Stats, error) {
	return p.Store.Stats()
}

// Search forwards a filter to the backing store, used by the coordinator's
// query router for the local and global-live scopes.
func (p *Participant) Search(filter store.SearchFilter) ([]*cluster.Ride, error) {
	return p.Store.Search(filter)
}
