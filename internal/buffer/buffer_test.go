package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueuePeekFIFOOrder(t *testing.T) {
	b := New(0)

	e1, err := b.Enqueue("R-1", "Phoenix", "LA")
	require.NoError(t, err)
	_, err = b.Enqueue("R-2", "Phoenix", "LA")
	require.NoError(t, err)

	head, ok := b.Peek("LA")
	require.True(t, ok)
	assert.Equal(t, e1.ID, head.ID)
	assert.Equal(t, "R-1", head.RideID)
}

func TestEnqueueRespectsCapacity(t *testing.T) {
	b := New(1)
	_, err := b.Enqueue("R-1", "Phoenix", "LA")
	require.NoError(t, err)

	_, err = b.Enqueue("R-2", "Phoenix", "LA")
	assert.ErrorIs(t, err, ErrFull)

	// Capacity is per-target; a different target is unaffected.
	_, err = b.Enqueue("R-3", "Phoenix", "Tokyo")
	assert.NoError(t, err)
}

func TestRemoveOnlyRemovesHead(t *testing.T) {
	b := New(0)
	e1, _ := b.Enqueue("R-1", "Phoenix", "LA")
	e2, _ := b.Enqueue("R-2", "Phoenix", "LA")

	// Removing by a non-head ID is a no-op.
	b.Remove("LA", e2.ID)
	assert.Equal(t, 2, b.Len("LA"))

	b.Remove("LA", e1.ID)
	assert.Equal(t, 1, b.Len("LA"))

	head, ok := b.Peek("LA")
	require.True(t, ok)
	assert.Equal(t, e2.ID, head.ID)
}

func TestIncrementAttempts(t *testing.T) {
	b := New(0)
	e1, _ := b.Enqueue("R-1", "Phoenix", "LA")

	b.IncrementAttempts("LA", e1.ID)
	b.IncrementAttempts("LA", e1.ID)

	head, ok := b.Peek("LA")
	require.True(t, ok)
	assert.Equal(t, 2, head.Attempts)
}

func TestDrainExclusion(t *testing.T) {
	b := New(0)
	assert.True(t, b.TryBeginDrain("LA"))
	assert.False(t, b.TryBeginDrain("LA"), "a second drain on the same target must be rejected")

	// A different target is independent.
	assert.True(t, b.TryBeginDrain("Tokyo"))

	b.EndDrain("LA")
	assert.True(t, b.TryBeginDrain("LA"))
}

func TestLenOnEmptyTarget(t *testing.T) {
	b := New(0)
	assert.Equal(t, 0, b.Len("never-used"))
	_, ok := b.Peek("never-used")
	assert.False(t, ok)
}
