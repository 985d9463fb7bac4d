package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/ridefleet/internal/cluster"
)

func newRide(id string, ts time.Time) *cluster.Ride {
	return &cluster.Ride{
		RideID:    id,
		Status:    cluster.RideInProgress,
		Fare:      10,
		Region:    "Phoenix",
		Timestamp: ts,
	}
}

func TestMemoryStoreInsertAndGet(t *testing.T) {
	s := NewMemoryStore("Phoenix")
	ride := newRide("R-1", time.Now())

	require.NoError(t, s.InsertRide(ride))

	got, err := s.GetRide("R-1")
	require.NoError(t, err)
	assert.Equal(t, "R-1", got.RideID)

	err = s.InsertRide(newRide("R-1", time.Now()))
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = s.GetRide("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreGetReturnsDefensiveCopy(t *testing.T) {
	s := NewMemoryStore("Phoenix")
	require.NoError(t, s.InsertRide(newRide("R-1", time.Now())))

	got, err := s.GetRide("R-1")
	require.NoError(t, err)
	got.Fare = 999

	got2, err := s.GetRide("R-1")
	require.NoError(t, err)
	assert.Equal(t, float64(10), got2.Fare, "mutating a returned clone must not affect the stored document")
}

func TestMemoryStoreLockUnlock(t *testing.T) {
	s := NewMemoryStore("Phoenix")
	require.NoError(t, s.InsertRide(newRide("R-1", time.Now())))

	ride, err := s.Lock("R-1", "tx-1")
	require.NoError(t, err)
	assert.True(t, ride.Locked)
	assert.Equal(t, "tx-1", ride.TransactionID)
	assert.Equal(t, cluster.HandoffPreparing, ride.HandoffStatus)

	// Retrying the same transaction's lock is idempotent.
	ride2, err := s.Lock("R-1", "tx-1")
	require.NoError(t, err)
	assert.True(t, ride2.Locked)

	// A different transaction is rejected.
	_, err = s.Lock("R-1", "tx-2")
	assert.ErrorIs(t, err, ErrAlreadyLocked)

	// Unlock by the wrong transaction is rejected.
	err = s.Unlock("R-1", "tx-2")
	assert.ErrorIs(t, err, ErrWrongTransaction)

	require.NoError(t, s.Unlock("R-1", "tx-1"))
	ride3, err := s.GetRide("R-1")
	require.NoError(t, err)
	assert.False(t, ride3.Locked)
	assert.Empty(t, ride3.TransactionID)
	assert.Empty(t, ride3.HandoffStatus)
}

func TestMemoryStoreLockNotFound(t *testing.T) {
	s := NewMemoryStore("Phoenix")
	_, err := s.Lock("missing", "tx-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreDeleteRide(t *testing.T) {
	s := NewMemoryStore("Phoenix")
	require.NoError(t, s.InsertRide(newRide("R-1", time.Now())))
	_, err := s.Lock("R-1", "tx-1")
	require.NoError(t, err)

	err = s.DeleteRide("R-1", "tx-2")
	assert.ErrorIs(t, err, ErrWrongTransaction)

	require.NoError(t, s.DeleteRide("R-1", "tx-1"))

	err = s.DeleteRide("R-1", "tx-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreFinalize(t *testing.T) {
	s := NewMemoryStore("Phoenix")
	require.NoError(t, s.InsertRide(newRide("R-1", time.Now())))
	_, err := s.Lock("R-1", "tx-1")
	require.NoError(t, err)

	require.NoError(t, s.Finalize("R-1", "tx-1"))

	ride, err := s.GetRide("R-1")
	require.NoError(t, err)
	assert.False(t, ride.Locked)
	assert.Equal(t, cluster.HandoffCompleted, ride.HandoffStatus)
}

func TestMemoryStoreSearchOrderingAndTieBreak(t *testing.T) {
	s := NewMemoryStore("Phoenix")
	base := time.Now()

	// R-B and R-A share a timestamp; R-C is newer.
	require.NoError(t, s.InsertRide(newRide("R-B", base)))
	require.NoError(t, s.InsertRide(newRide("R-A", base)))
	require.NoError(t, s.InsertRide(newRide("R-C", base.Add(time.Second))))

	results, err := s.Search(SearchFilter{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Newest timestamp first, then ascending rideId on ties.
	assert.Equal(t, "R-C", results[0].RideID)
	assert.Equal(t, "R-A", results[1].RideID)
	assert.Equal(t, "R-B", results[2].RideID)
}

func TestMemoryStoreSearchFilters(t *testing.T) {
	s := NewMemoryStore("Phoenix")
	now := time.Now()

	cheap := newRide("R-1", now)
	cheap.Fare = 5
	expensive := newRide("R-2", now)
	expensive.Fare = 50
	expensive.Status = cluster.RideCompleted

	require.NoError(t, s.InsertRide(cheap))
	require.NoError(t, s.InsertRide(expensive))

	minFare := 10.0
	results, err := s.Search(SearchFilter{MinFare: &minFare})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "R-2", results[0].RideID)

	results, err = s.Search(SearchFilter{Status: []string{cluster.RideCompleted}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "R-2", results[0].RideID)
}

func TestMemoryStoreSearchLimit(t *testing.T) {
	s := NewMemoryStore("Phoenix")
	now := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.InsertRide(newRide(string(rune('A'+i)), now.Add(time.Duration(i)*time.Second))))
	}

	results, err := s.Search(SearchFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestMemoryStoreStats(t *testing.T) {
	s := NewMemoryStore("Phoenix")
	now := time.Now()
	r1 := newRide("R-1", now)
	r1.Fare = 10
	r2 := newRide("R-2", now)
	r2.Fare = 20
	r2.Status = cluster.RideCompleted

	require.NoError(t, s.InsertRide(r1))
	require.NoError(t, s.InsertRide(r2))

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[cluster.RideInProgress])
	assert.Equal(t, 1, stats.ByStatus[cluster.RideCompleted])
	assert.Equal(t, 15.0, stats.AvgFare)
}

func TestMemoryStoreHealth(t *testing.T) {
	s := NewMemoryStore("Phoenix")
	info, err := s.Health()
	require.NoError(t, err)
	assert.Equal(t, "Phoenix", info.PrimaryID)
}
