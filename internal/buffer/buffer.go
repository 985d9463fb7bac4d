// Package buffer implements the per-target-region FIFO of deferred handoffs
// described in spec §3/§4.E: handoffs whose target is currently unhealthy
// are enqueued here instead of failed, and drained in FIFO order once the
// target recovers.
package buffer

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrFull is returned by Enqueue when a target's queue is already at
// capacity, per spec §6's `buffer.maxPerRegion` option.
var ErrFull = errors.New("buffer: target queue full")

// Entry is one deferred handoff request, per §3's Buffer entry schema.
type Entry struct {
	ID         string
	RideID     string
	Source     string
	Target     string
	EnqueuedAt time.Time
	Attempts   int
}

// Buffer is a concurrent FIFO-per-target-region queue. Producers are the
// Handoff entrypoint (on a BUFFERED result); the consumer is the
// coordinator's drainer, which holds a per-target exclusion so only one
// drain runs per region at a time (see TryBeginDrain/EndDrain).
type Buffer struct {
	mu       sync.Mutex
	queues   map[string][]Entry
	maxPer   int
	draining map[string]bool
}

// New returns an empty Buffer capping each target's queue at maxPerRegion
// entries (0 means unbounded).
//
// Parameters:
//   - maxPerRegion: per-target capacity; exceeding it fails Enqueue with
//     ErrFull rather than growing the queue without limit.
//
// Returns:
//   - *Buffer: empty, ready for concurrent use.
func New(maxPerRegion int) *Buffer {
	return &Buffer{
		queues:   make(map[string][]Entry),
		maxPer:   maxPerRegion,
		draining: make(map[string]bool),
	}
}

// Enqueue appends a new entry to target's queue.
//
// Parameters:
//   - rideID, source, target: the deferred handoff's identifying fields;
//     target is the queue this entry lands in.
//
// Returns:
//   - Entry: the stored entry, including its generated ID and timestamp.
//   - error: ErrFull if target's queue is already at capacity.
//
// Thread-safety: safe for concurrent use; Enqueue calls for different
// targets never contend beyond the shared mutex's brief critical section.
func (b *Buffer) Enqueue(rideID, source, target string) (Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queues[target]
	if b.maxPer > 0 && len(q) >= b.maxPer {
		return Entry{}, ErrFull
	}

	entry := Entry{
		ID:         uuid.New().String(),
		RideID:     rideID,
		Source:     source,
		Target:     target,
		EnqueuedAt: time.Now(),
	}
	b.queues[target] = append(q, entry)
	return entry, nil
}

// Peek returns the oldest entry for target without removing it.
func (b *Buffer) Peek(target string) (Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queues[target]
	if len(q) == 0 {
		return Entry{}, false
	}
	return q[0], true
}

// Remove deletes the oldest entry for target (matched by ID, which is
// always the head since this is a strict FIFO) after it has been
// successfully drained or permanently rejected.
func (b *Buffer) Remove(target, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queues[target]
	if len(q) == 0 || q[0].ID != id {
		return
	}
	b.queues[target] = q[1:]
}

// IncrementAttempts bumps the attempt counter on the head entry for target.
func (b *Buffer) IncrementAttempts(target, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queues[target]
	if len(q) == 0 || q[0].ID != id {
		return
	}
	q[0].Attempts++
}

// Len returns the current queue depth for target.
func (b *Buffer) Len(target string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[target])
}

// TryBeginDrain reports whether the caller may begin draining target's
// queue, enforcing the "only one drain runs per region at a time" rule from
// spec §5. Callers must call EndDrain when finished.
//
// Returns:
//   - bool: true if the caller won the exclusion and may drain; false if
//     another goroutine is already draining target.
//
// Thread-safety: the check-and-set is atomic; two concurrent callers for
// the same target can never both receive true.
func (b *Buffer) TryBeginDrain(target string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.draining[target] {
		return false
	}
	b.draining[target] = true
	return true
}

// EndDrain releases the per-target drain exclusion.
func (b *Buffer) EndDrain(target string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.draining, target)
}
