// Package coordinator implements the Handoff Coordinator (spec §4.E): the
// 2PC driver that migrates a ride from its source region to its target
// region, buffering the request when the target is unhealthy and draining
// the buffer on recovery. It is the sole writer of the transaction log and
// the buffer (spec §3's ownership rule).
package coordinator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"github.com/dreamware/ridefleet/internal/buffer"
	"github.com/dreamware/ridefleet/internal/health"
	"github.com/dreamware/ridefleet/internal/metrics"
	"github.com/dreamware/ridefleet/internal/participant"
	"github.com/dreamware/ridefleet/internal/regionclient"
	"github.com/dreamware/ridefleet/internal/txlog"
)

// Handoff outcome statuses, per spec §4.E.
const (
	StatusSuccess  = "SUCCESS"
	StatusAborted  = "ABORTED"
	StatusBuffered = "BUFFERED"
	StatusPartial  = "PARTIAL"
)

// Result is the public outcome of a Handoff call.
type Result struct {
	Status    string
	TxID      string
	LatencyMs int64
	Reason    string
}

// Coordinator drives 2PC across two region clients.
type Coordinator struct {
	regions map[string]*regionclient.Client
	names   []string

	log    txlog.Log
	buf    *buffer.Buffer
	health *health.Monitor
	mx     *metrics.Registry

	prepareTimeout time.Duration
	commitTimeout  time.Duration
	overallTimeout time.Duration

	recoveryInterval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Options configures timeouts; zero values fall back to spec §6 defaults.
type Options struct {
	PrepareTimeout   time.Duration
	CommitTimeout    time.Duration
	OverallTimeout   time.Duration
	RecoveryInterval time.Duration
}

// New returns a Coordinator over the given region clients.
//
// Parameters:
//   - regions: every configured region's client, keyed by name; both
//     source and target of a Handoff must be present here.
//   - txLog: the durable log this Coordinator becomes the sole writer of.
//   - buf: the buffer this Coordinator becomes the sole writer of.
//   - monitor: the health monitor consulted by the health gate and
//     subscribed to by the drainer; Start calls monitor.Subscribe.
//   - mx: collectors to record outcomes against, or nil to disable
//     metrics entirely (every call site nil-checks before use).
//   - opts: timeout overrides; zero values fall back to the defaults
//     noted on each field.
//
// Returns:
//   - *Coordinator: not yet running; call Start before serving traffic so
//     the initial recovery pass and background goroutines are live.
func New(regions map[string]*regionclient.Client, txLog txlog.Log, buf *buffer.Buffer, monitor *health.Monitor, mx *metrics.Registry, opts Options) *Coordinator {
	names := make([]string, 0, len(regions))
	for name := range regions {
		names = append(names, name)
	}

	c := &Coordinator{
		regions:          regions,
		names:            names,
		log:              txLog,
		buf:              buf,
		health:           monitor,
		mx:               mx,
		prepareTimeout:   opts.PrepareTimeout,
		commitTimeout:    opts.CommitTimeout,
		overallTimeout:   opts.OverallTimeout,
		recoveryInterval: opts.RecoveryInterval,
	}
	if c.prepareTimeout == 0 {
		c.prepareTimeout = 5 * time.Second
	}
	if c.commitTimeout == 0 {
		c.commitTimeout = 5 * time.Second
	}
	if c.overallTimeout == 0 {
		c.overallTimeout = 30 * time.Second
	}
	if c.recoveryInterval == 0 {
		c.recoveryInterval = 30 * time.Second
	}
	return c
}

// isConfigured reports whether region names a configured participant.
// Mirrors torua's cmd/coordinator use of slices.IndexFunc for index lookups
// over a small slice.
func (c *Coordinator) isConfigured(region string) bool {
	return slices.IndexFunc(c.names, func(n string) bool { return n == region }) >= 0
}

// Handoff implements the algorithm in spec §4.E.
//
// Parameters:
//   - ctx: bounds the overall call; a fresh deadline of OverallTimeout is
//     applied on top once validation and the health gate pass.
//   - rideID: the ride to migrate.
//   - source, target: must both be configured, distinct region names.
//
// Returns:
//   - Result: Status is exactly one of SUCCESS, ABORTED, BUFFERED, or
//     PARTIAL; LatencyMs is always populated.
//   - error: always nil; failures are reported via Result.Status/Reason,
//     not the error return, so callers (and the drainer) have one place
//     to branch on outcome.
//
// Thread-safety: safe to call concurrently for different rideIds; for the
// same rideId, concurrent calls are serialized by the participants'
// compare-and-swap lock, not by this method.
func (c *Coordinator) Handoff(ctx context.Context, rideID, source, target string) (Result, error) {
	start := time.Now()
	result := c.handoff(ctx, rideID, source, target)
	result.LatencyMs = time.Since(start).Milliseconds()

	if c.mx != nil {
		c.mx.HandoffsTotal.WithLabelValues(result.Status).Inc()
		c.mx.HandoffDuration.WithLabelValues(result.Status).Observe(time.Since(start).Seconds())
	}
	return result, nil
}

func (c *Coordinator) handoff(ctx context.Context, rideID, source, target string) Result {
	// Step 1: validate.
	if source == target || rideID == "" || !c.isConfigured(source) || !c.isConfigured(target) {
		return Result{Status: StatusAborted, Reason: "invalid_argument"}
	}

	// Step 2: health gate.
	if rec, ok := c.health.GetRegionHealth(target); ok && rec.State == health.StateUnavailable {
		if _, err := c.buf.Enqueue(rideID, source, target); err != nil {
			return Result{Status: StatusAborted, Reason: "buffer_full"}
		}
		if c.mx != nil {
			c.mx.BufferDepth.WithLabelValues(target).Set(float64(c.buf.Len(target)))
		}
		return Result{Status: StatusBuffered}
	}
	if rec, ok := c.health.GetRegionHealth(source); ok && rec.State == health.StateUnavailable {
		return Result{Status: StatusAborted, Reason: "source_unavailable"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.overallTimeout)
	defer cancel()

	// Step 3.
	txID := uuid.New().String()
	now := time.Now()
	if err := c.log.Append(txlog.Record{
		TxID: txID, RideID: rideID, Source: source, Target: target,
		State: txlog.StateStarted, StartedAt: now,
	}); err != nil {
		return Result{Status: StatusAborted, TxID: txID, Reason: "internal"}
	}

	srcClient := c.regions[source]
	dstClient := c.regions[target]

	// Step 4: prepare source.
	prepareCtx, cancelPrep := context.WithTimeout(ctx, c.prepareTimeout)
	prepareSrc, err := srcClient.Prepare(prepareCtx, txID, rideID, participant.RoleSource)
	cancelPrep()
	if err != nil {
		return c.abort(ctx, txID, rideID, source, target, nil, "unavailable")
	}
	if prepareSrc.Vote != txlog.VoteCommit {
		return c.abort(ctx, txID, rideID, source, target, nil, prepareSrc.Reason)
	}

	// Step 5: prepare target.
	prepareCtx, cancelPrep = context.WithTimeout(ctx, c.prepareTimeout)
	prepareDst, err := dstClient.Prepare(prepareCtx, txID, rideID, participant.RoleTarget)
	cancelPrep()
	engagedSource := []engagement{{region: source, role: participant.RoleSource}}
	if err != nil {
		return c.abort(ctx, txID, rideID, source, target, engagedSource, "unavailable")
	}
	if prepareDst.Vote != txlog.VoteCommit {
		return c.abort(ctx, txID, rideID, source, target, engagedSource, prepareDst.Reason)
	}

	// Step 6.
	if err := c.log.Append(txlog.Record{
		TxID: txID, RideID: rideID, Source: source, Target: target,
		State: txlog.StatePrepared, StartedAt: now,
		Votes:        [2]string{txlog.VoteCommit, txlog.VoteCommit},
		RideSnapshot: prepareSrc.Ride,
		PreparedAt:   time.Now(),
	}); err != nil {
		return Result{Status: StatusAborted, TxID: txID, Reason: "internal"}
	}

	// Step 7: commit target.
	commitCtx, cancelCommit := context.WithTimeout(ctx, c.commitTimeout)
	err = dstClient.Commit(commitCtx, txID, rideID, participant.RoleTarget, prepareSrc.Ride)
	cancelCommit()
	if err != nil {
		return Result{Status: StatusPartial, TxID: txID, Reason: "partial"}
	}

	// Step 8: commit source.
	commitCtx, cancelCommit = context.WithTimeout(ctx, c.commitTimeout)
	err = srcClient.Commit(commitCtx, txID, rideID, participant.RoleSource, nil)
	cancelCommit()
	if err != nil {
		return Result{Status: StatusPartial, TxID: txID, Reason: "partial"}
	}

	// Step 9.
	if err := c.log.Append(txlog.Record{
		TxID: txID, RideID: rideID, Source: source, Target: target,
		State: txlog.StateCommitted, StartedAt: now, CommittedAt: time.Now(),
	}); err != nil {
		log.Printf("coordinator: tx %s committed at participants but log write failed: %v", txID, err)
	}
	return Result{Status: StatusSuccess, TxID: txID}
}

type engagement struct {
	region string
	role   string
}

// abort issues abort to every engaged participant (best-effort, each call
// idempotent) and writes the terminal ABORTED record.
func (c *Coordinator) abort(ctx context.Context, txID, rideID, source, target string, engaged []engagement, reason string) Result {
	for _, e := range engaged {
		client := c.regions[e.region]
		if client == nil {
			continue
		}
		abortCtx, cancel := context.WithTimeout(ctx, c.prepareTimeout)
		if err := client.Abort(abortCtx, txID, rideID, e.role); err != nil {
			log.Printf("coordinator: tx %s abort of %s failed: %v", txID, e.region, err)
		}
		cancel()
	}

	if err := c.log.Append(txlog.Record{
		TxID: txID, RideID: rideID, Source: source, Target: target,
		State: txlog.StateAborted, Error: reason, AbortedAt: time.Now(),
	}); err != nil {
		log.Printf("coordinator: tx %s abort log write failed: %v", txID, err)
	}
	return Result{Status: StatusAborted, TxID: txID, Reason: reason}
}

// Transactions returns up to limit recent records across all states, most
// recently started first, per spec §4.E's observability contract.
//
// Parameters:
//   - limit: maximum records to return; 0 or negative means unbounded.
//
// Returns:
//   - []txlog.Record: sorted by StartedAt descending.
//   - error: propagated from the underlying Log.Scan call.
func (c *Coordinator) Transactions(limit int) ([]txlog.Record, error) {
	var all []txlog.Record
	for _, state := range []string{txlog.StateStarted, txlog.StatePrepared, txlog.StateCommitted, txlog.StateAborted} {
		recs, err := c.log.Scan(state)
		if err != nil {
			return nil, err
		}
		all = append(all, recs...)
	}

	for i := 1; i < len(all); i++ {
		j := i
		for j > 0 && all[j-1].StartedAt.Before(all[j].StartedAt) {
			all[j-1], all[j] = all[j], all[j-1]
			j--
		}
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Start launches the buffer drainer (subscribed to health transitions) and
// a periodic recovery retry loop, after running an initial recovery pass
// synchronously.
//
// Parameters:
//   - ctx: parent context for both background goroutines; cancelling it
//     has the same effect as calling Stop.
//
// Returns:
//   - error: non-nil only if the initial synchronous Recover call fails;
//     the background goroutines are not launched in that case.
//
// Thread-safety: Start must not be called twice on the same Coordinator
// without an intervening Stop.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.Recover(ctx); err != nil {
		return fmt.Errorf("coordinator: initial recovery: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	events := c.health.Subscribe()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case ev := <-events:
				if c.mx != nil {
					c.mx.RegionHealth.WithLabelValues(ev.Region).Set(metrics.HealthValue(ev.Record.State))
				}
				if ev.Record.State == health.StateAvailable {
					c.drainTarget(ctx, ev.Region)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.recoveryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := c.Recover(ctx); err != nil {
					log.Printf("coordinator: periodic recovery failed: %v", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop halts the drainer and recovery loop.
//
// Thread-safety: blocks until both background goroutines launched by Start
// have returned; safe to call even if Start was never called.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// drainTarget processes target's buffer FIFO, per spec §4.E. Only one
// drain runs per target at a time.
func (c *Coordinator) drainTarget(ctx context.Context, target string) {
	if !c.buf.TryBeginDrain(target) {
		return
	}
	defer c.buf.EndDrain(target)

	for {
		entry, ok := c.buf.Peek(target)
		if !ok {
			return
		}

		c.buf.IncrementAttempts(target, entry.ID)
		result, err := c.Handoff(ctx, entry.RideID, entry.Source, entry.Target)
		if err != nil {
			log.Printf("buffer: drain of %s for target %s errored: %v", entry.RideID, target, err)
			return
		}

		if result.Status == StatusBuffered {
			// Target is unhealthy again; stop and wait for the next
			// recovery event.
			return
		}

		if result.Status == StatusAborted && result.Reason == "not_found" {
			log.Printf("buffer: discarding %s for target %s: source reports not_found", entry.RideID, target)
		}
		c.buf.Remove(target, entry.ID)
		if c.mx != nil {
			c.mx.BufferDepth.WithLabelValues(target).Set(float64(c.buf.Len(target)))
		}
	}
}

// Recover implements the startup recovery scan of spec §4.C: resolve every
// transaction not in a terminal state.
//
// Parameters:
//   - ctx: bounds each participant probe/commit issued during recovery.
//
// Returns:
//   - error: propagated from the initial Log.Scan call; individual
//     records that cannot yet be resolved (e.g. a participant probe
//     fails) are left as-is for a later recovery pass, not surfaced here.
//
// Performance: O(n) in the number of non-terminal records, each resolved
// with at most four participant calls (two status probes and two aborts
// for a STARTED record; two commits or two aborts for a PREPARED one).
func (c *Coordinator) Recover(ctx context.Context) error {
	records, err := c.log.Scan("")
	if err != nil {
		return err
	}

	for _, rec := range records {
		switch rec.State {
		case txlog.StateStarted:
			c.recoverStarted(ctx, rec)
		case txlog.StatePrepared:
			c.recoverPrepared(ctx, rec)
		}
	}
	return nil
}

func (c *Coordinator) recoverStarted(ctx context.Context, rec txlog.Record) {
	srcClient, dstClient := c.regions[rec.Source], c.regions[rec.Target]
	if srcClient == nil || dstClient == nil {
		return
	}

	statusCtx, cancel := context.WithTimeout(ctx, c.prepareTimeout)
	srcStatus, srcErr := srcClient.Status(statusCtx, rec.TxID, rec.RideID)
	cancel()

	statusCtx, cancel = context.WithTimeout(ctx, c.prepareTimeout)
	dstStatus, dstErr := dstClient.Status(statusCtx, rec.TxID, rec.RideID)
	cancel()

	if srcErr != nil || dstErr != nil {
		// Probes unavailable; leave STARTED, a later recovery pass retries.
		return
	}

	if srcStatus.Present && srcStatus.Locked && !dstStatus.Present {
		engaged := []engagement{
			{region: rec.Source, role: participant.RoleSource},
			{region: rec.Target, role: participant.RoleTarget},
		}
		c.abort(ctx, rec.TxID, rec.RideID, rec.Source, rec.Target, engaged, "recovered_abort")
		return
	}

	// The only other combination resolved here is a source that no longer
	// has the ride: the target is told to abort and the record is written
	// ABORTED. Every other combination (a target that already has the
	// document, or a source ride that is present but not locked by this
	// txId) is left STARTED for a later pass. No ride snapshot exists
	// before PREPARED, so this path never commits.
	if !srcStatus.Present && !srcStatus.Locked {
		engaged := []engagement{{region: rec.Target, role: participant.RoleTarget}}
		c.abort(ctx, rec.TxID, rec.RideID, rec.Source, rec.Target, engaged, "recovered_abort")
	}
}

func (c *Coordinator) recoverPrepared(ctx context.Context, rec txlog.Record) {
	if rec.Votes[0] != txlog.VoteCommit || rec.Votes[1] != txlog.VoteCommit {
		engaged := []engagement{
			{region: rec.Source, role: participant.RoleSource},
			{region: rec.Target, role: participant.RoleTarget},
		}
		c.abort(ctx, rec.TxID, rec.RideID, rec.Source, rec.Target, engaged, "recovered_abort")
		return
	}

	dstClient, srcClient := c.regions[rec.Target], c.regions[rec.Source]
	if dstClient == nil || srcClient == nil || rec.RideSnapshot == nil {
		return
	}

	commitCtx, cancel := context.WithTimeout(ctx, c.commitTimeout)
	err := dstClient.Commit(commitCtx, rec.TxID, rec.RideID, participant.RoleTarget, rec.RideSnapshot)
	cancel()
	if err != nil {
		return
	}

	commitCtx, cancel = context.WithTimeout(ctx, c.commitTimeout)
	err = srcClient.Commit(commitCtx, rec.TxID, rec.RideID, participant.RoleSource, nil)
	cancel()
	if err != nil {
		return
	}

	if err := c.log.Append(txlog.Record{
		TxID: rec.TxID, RideID: rec.RideID, Source: rec.Source, Target: rec.Target,
		State: txlog.StateCommitted, StartedAt: rec.StartedAt, CommittedAt: time.Now(),
	}); err != nil {
		log.Printf("coordinator: recovery commit log write failed for tx %s: %v", rec.TxID, err)
	}
}

// RegionHealthSnapshot returns every configured region's health record
// merged with its client's circuit breaker state, for GET /health/regions.
//
// Returns:
//   - map[string]health.Record: one entry per configured region; BreakerState
//     reflects the region's client at the moment of the call, not the
//     Monitor's own view (the two are updated on different schedules).
func (c *Coordinator) RegionHealthSnapshot() map[string]health.Record {
	snapshot := c.health.GetAllRegionHealth()
	for name, client := range c.regions {
		if rec, ok := snapshot[name]; ok {
			rec.BreakerState = client.BreakerState()
			snapshot[name] = rec
		}
	}
	return snapshot
}
