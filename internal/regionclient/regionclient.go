// Package regionclient is the coordinator/router-side HTTP client for one
// region's participant surface (spec §6). It wraps every outbound call in a
// gobreaker.CircuitBreaker so a consistently failing region stops being
// hammered between health-monitor ticks, and retries transient failures
// with the bounded exponential backoff spec §5 requires, always carrying
// the same txId so the region's idempotent handling engages.
package regionclient

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sony/gobreaker"

	"github.com/dreamware/ridefleet/internal/cluster"
	"github.com/dreamware/ridefleet/internal/participant"
	"github.com/dreamware/ridefleet/internal/store"
)

// RetryPolicy is the bounded exponential backoff spec §5 mandates for
// transient participant failures: base 100ms, cap 2s, max 3 attempts.
type RetryPolicy struct {
	Base       time.Duration
	Cap        time.Duration
	MaxAttempts int
}

// DefaultRetryPolicy matches spec §5's defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Base: 100 * time.Millisecond, Cap: 2 * time.Second, MaxAttempts: 3}
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := time.Duration(float64(p.Base) * math.Pow(2, float64(attempt)))
	if d > p.Cap {
		d = p.Cap
	}
	return d
}

// Client talks to one region's HTTP surface.
type Client struct {
	Region  string
	BaseURL string

	breaker *gobreaker.CircuitBreaker
	retry   RetryPolicy
}

// New returns a Client for the named region at baseURL.
//
// Parameters:
//   - region: the region name, used as the breaker's label and in error
//     messages.
//   - baseURL: the region process's HTTP base address, no trailing slash.
//
// Returns:
//   - *Client: ready for concurrent use. Its circuit breaker trips after 5
//     consecutive failures and allows a half-open probe after 10s.
func New(region, baseURL string) *Client {
	return &Client{
		Region:  region,
		BaseURL: baseURL,
		retry:   DefaultRetryPolicy(),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "region:" + region,
			MaxRequests: 1,
			Interval:    0,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// BreakerState reports the circuit breaker's current state, surfaced on
// GET /health/regions per SPEC_FULL.md §4.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// call runs fn through the circuit breaker and the bounded retry policy.
// Every attempt is independent work passed the same txId by the caller, so
// retries are safe under the idempotence contract in spec §4.B.
func (c *Client) call(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.retry.backoff(attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		_, err := c.breaker.Execute(func() (any, error) {
			return nil, fn(ctx)
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("regionclient: %s circuit open: %w", c.Region, err)
		}
	}
	return lastErr
}

// Prepare calls POST /2pc/prepare.
//
// Parameters:
//   - txID: the transaction id every retry of this call must reuse.
//   - rideID, role: the ride and this region's role (source or target).
//
// Returns:
//   - participant.PrepareResult: the participant's vote and, for a source
//     vote of COMMIT, the ride snapshot to carry into Commit.
//   - error: a transport or circuit-open error; never the participant's
//     own ABORT vote, which is a successful call with Vote=ABORT.
func (c *Client) Prepare(ctx context.Context, txID, rideID, role string) (participant.PrepareResult, error) {
	var result participant.PrepareResult
	req := prepareRequest{TxID: txID, RideID: rideID, Role: role}
	err := c.call(ctx, func(ctx context.Context) error {
		return cluster.PostJSON(ctx, c.BaseURL+"/2pc/prepare", req, &result)
	})
	return result, err
}

// Commit calls POST /2pc/commit.
//
// Parameters:
//   - txID, rideID, role: identify the transaction exactly as passed to the
//     matching Prepare call.
//   - snapshot: required when role is RoleTarget (the ride to insert),
//     ignored for RoleSource.
//
// Returns:
//   - error: a transport or circuit-open error; the participant's own
//     commit logic is idempotent, so a retried Commit never fails on
//     replay.
func (c *Client) Commit(ctx context.Context, txID, rideID, role string, snapshot *cluster.Ride) error {
	req := commitRequest{TxID: txID, RideID: rideID, Role: role, Ride: snapshot}
	return c.call(ctx, func(ctx context.Context) error {
		var resp commitResponse
		return cluster.PostJSON(ctx, c.BaseURL+"/2pc/commit", req, &resp)
	})
}

// Abort calls POST /2pc/abort.
//
// Returns:
//   - error: a transport or circuit-open error; safe to retry, the
//     participant treats a repeated abort of an already-unlocked ride as a
//     no-op success.
func (c *Client) Abort(ctx context.Context, txID, rideID, role string) error {
	req := abortRequest{TxID: txID, RideID: rideID, Role: role}
	return c.call(ctx, func(ctx context.Context) error {
		var resp abortResponse
		return cluster.PostJSON(ctx, c.BaseURL+"/2pc/abort", req, &resp)
	})
}

// Status calls GET /2pc/status/{txId}?rideId=..., used by coordinator
// recovery to determine how far a STARTED transaction progressed on this
// region.
//
// Returns:
//   - participant.StatusResult: Present/Locked/Role as reported by the
//     region's own store, not inferred from this client's local state.
//   - error: a transport or circuit-open error.
func (c *Client) Status(ctx context.Context, txID, rideID string) (participant.StatusResult, error) {
	var result participant.StatusResult
	url := fmt.Sprintf("%s/2pc/status/%s?rideId=%s", c.BaseURL, txID, rideID)
	err := c.call(ctx, func(ctx context.Context) error {
		return cluster.GetJSON(ctx, url, &result)
	})
	return result, err
}

// Health calls GET /health. Unlike the other calls this bypasses the
// circuit breaker and retry policy: the health monitor is the one caller
// that must observe every raw failure immediately to drive its own
// classification, rather than have failures absorbed by a breaker it
// doesn't control.
func (c *Client) Health(ctx context.Context) (healthResponse, error) {
	var resp healthResponse
	err := cluster.GetJSON(ctx, c.BaseURL+"/health", &resp)
	return resp, err
}

// Search calls POST /rides/search against this region directly (used by
// the local and global-live query scopes).
//
// Returns:
//   - []*cluster.Ride: this region's matches only; merging across regions,
//     if any, is the caller's responsibility (see router.globalLive).
//   - error: a transport or circuit-open error.
func (c *Client) Search(ctx context.Context, filter store.SearchFilter) ([]*cluster.Ride, error) {
	var results []*cluster.Ride
	err := c.call(ctx, func(ctx context.Context) error {
		return cluster.PostJSON(ctx, c.BaseURL+"/rides/search", filter, &results)
	})
	return results, err
}

type prepareRequest struct {
	TxID   string `json:"txId"`
	RideID string `json:"rideId"`
	Role   string `json:"role"`
}

type commitRequest struct {
	TxID   string        `json:"txId"`
	RideID string        `json:"rideId"`
	Role   string        `json:"role"`
	Ride   *cluster.Ride `json:"ride,omitempty"`
}

type commitResponse struct {
	Committed bool `json:"committed"`
}

type abortRequest struct {
	TxID   string `json:"txId"`
	RideID string `json:"rideId"`
	Role   string `json:"role"`
}

type abortResponse struct {
	Aborted bool `json:"aborted"`
}

type healthResponse struct {
	Status           string `json:"status"`
	Region           string `json:"region"`
	Primary          string `json:"primary"`
	ReplicationLagMs int64  `json:"replicationLagMs"`
}
