// Package router implements the Query Router (spec §4.F): local,
// global-fast, and global-live read scopes over the configured regions and
// the read-only global replica.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dreamware/ridefleet/internal/cluster"
	"github.com/dreamware/ridefleet/internal/health"
	"github.com/dreamware/ridefleet/internal/regionclient"
	"github.com/dreamware/ridefleet/internal/store"
)

// Scope values accepted on the `scope` field of a search request.
const (
	ScopeLocal      = "local"
	ScopeGlobalFast = "global-fast"
	ScopeGlobalLive = "global-live"
)

// Filter is the fixed, minimal search surface spec §4.F defines. Fields are
// validated with struct tags; the HTTP handler additionally rejects unknown
// JSON fields at decode time (spec §9's "reject unknown fields at the
// boundary" design note).
type Filter struct {
	Scope   string     `json:"scope" validate:"required,oneof=local global-fast global-live"`
	Region  string     `json:"region,omitempty" validate:"omitempty"`
	Status  []string   `json:"status,omitempty" validate:"omitempty,dive,oneof=IN_PROGRESS COMPLETED CANCELLED"`
	MinFare *float64   `json:"minFare,omitempty" validate:"omitempty,gte=0"`
	MaxFare *float64   `json:"maxFare,omitempty" validate:"omitempty,gte=0"`
	Since   *time.Time `json:"since,omitempty"`
	Until   *time.Time `json:"until,omitempty"`
	Limit   int        `json:"limit" validate:"required,gte=1,lte=1000"`
}

func (f Filter) toStoreFilter() store.SearchFilter {
	return store.SearchFilter{
		Status:  f.Status,
		MinFare: f.MinFare,
		MaxFare: f.MaxFare,
		Since:   f.Since,
		Until:   f.Until,
		Limit:   f.Limit,
	}
}

// Response is the shape returned to the caller, per spec §6's
// `POST /rides/search` response.
type Response struct {
	Results        []*cluster.Ride `json:"results"`
	LatencyMs      int64           `json:"latencyMs"`
	RegionsQueried []string        `json:"regionsQueried"`
	Warnings       []string        `json:"warnings,omitempty"`
}

// Router serves the three query scopes over a fixed set of region clients
// and one replica client.
type Router struct {
	regions map[string]*regionclient.Client
	replica *regionclient.Client
	health  *health.Monitor

	validate *validator.Validate

	perCallTimeout time.Duration
	globalDeadline time.Duration
}

// New returns a Router.
//
// Parameters:
//   - regions: every configured region's client, keyed by name; global-live
//     fans out to all of them.
//   - replica: the global read replica's client, or nil if none is
//     configured, in which case global-fast requests fail with
//     "unavailable".
//   - monitor: reserved for future health-aware routing decisions; not
//     currently consulted by any scope.
//
// Returns:
//   - *Router: ready for concurrent Query calls.
func New(regions map[string]*regionclient.Client, replica *regionclient.Client, monitor *health.Monitor) *Router {
	return &Router{
		regions:        regions,
		replica:        replica,
		health:         monitor,
		validate:       validator.New(),
		perCallTimeout: 3 * time.Second,
		globalDeadline: 8 * time.Second,
	}
}

// Validate checks filter against its struct tags and the scope-specific
// requirement that `region` is set for local.
//
// Parameters:
//   - filter: the decoded search request, prior to any Query call.
//
// Returns:
//   - error: non-nil with an "invalid_argument:" prefix on the first
//     violated constraint; nil if filter is well-formed.
func (r *Router) Validate(filter Filter) error {
	if err := r.validate.Struct(filter); err != nil {
		return fmt.Errorf("invalid_argument: %w", err)
	}
	if filter.Scope == ScopeLocal && filter.Region == "" {
		return errors.New("invalid_argument: region is required for local scope")
	}
	if filter.Scope == ScopeLocal {
		if _, ok := r.regions[filter.Region]; !ok {
			return errors.New("invalid_argument: unknown region")
		}
	}
	return nil
}

// Query dispatches filter to the scope it names.
//
// Parameters:
//   - ctx: bounds the whole call; global-live additionally applies its own
//     tighter globalDeadline on top of whatever ctx provides.
//   - filter: should already have passed Validate.
//
// Returns:
//   - Response: Results sorted per scope's ordering guarantee (see
//     globalLive for global-live's determinism invariant), LatencyMs
//     always populated regardless of error.
//   - error: "unavailable" if the relevant backend(s) could not be
//     reached, "invalid_argument" for an unrecognized scope.
func (r *Router) Query(ctx context.Context, filter Filter) (Response, error) {
	start := time.Now()
	var resp Response
	var err error

	switch filter.Scope {
	case ScopeLocal:
		resp, err = r.local(ctx, filter)
	case ScopeGlobalFast:
		resp, err = r.globalFast(ctx, filter)
	case ScopeGlobalLive:
		resp, err = r.globalLive(ctx, filter)
	default:
		return Response{}, errors.New("invalid_argument: unknown scope")
	}
	resp.LatencyMs = time.Since(start).Milliseconds()
	return resp, err
}

func (r *Router) local(ctx context.Context, filter Filter) (Response, error) {
	client, ok := r.regions[filter.Region]
	if !ok {
		return Response{}, errors.New("invalid_argument: unknown region")
	}

	callCtx, cancel := context.WithTimeout(ctx, r.perCallTimeout)
	defer cancel()

	results, err := client.Search(callCtx, filter.toStoreFilter())
	if err != nil {
		return Response{}, fmt.Errorf("unavailable: %w", err)
	}
	return Response{Results: results, RegionsQueried: []string{filter.Region}}, nil
}

func (r *Router) globalFast(ctx context.Context, filter Filter) (Response, error) {
	if r.replica == nil {
		return Response{}, errors.New("unavailable: no global replica configured")
	}

	callCtx, cancel := context.WithTimeout(ctx, r.perCallTimeout)
	defer cancel()

	results, err := r.replica.Search(callCtx, filter.toStoreFilter())
	if err != nil {
		return Response{}, fmt.Errorf("unavailable: %w", err)
	}
	return Response{Results: results, RegionsQueried: []string{"globalReplica"}}, nil
}

type fanOutResult struct {
	region  string
	results []*cluster.Ride
	err     error
}

// globalLive fans out in parallel to every configured region, merges by
// rideId preferring the higher timestamp, and sorts by timestamp descending
// with rideId-ascending tie-break, per spec §4.F and the determinism
// invariant in §8.7.
func (r *Router) globalLive(ctx context.Context, filter Filter) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, r.globalDeadline)
	defer cancel()

	var wg sync.WaitGroup
	resultsCh := make(chan fanOutResult, len(r.regions))
	queried := make([]string, 0, len(r.regions))

	for name, client := range r.regions {
		queried = append(queried, name)
		wg.Add(1)
		go func(name string, client *regionclient.Client) {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, r.perCallTimeout)
			defer cancel()
			results, err := client.Search(callCtx, filter.toStoreFilter())
			resultsCh <- fanOutResult{region: name, results: results, err: err}
		}(name, client)
	}

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	merged := make(map[string]*cluster.Ride)
	var warnings []string
	failures := 0
	for res := range resultsCh {
		if res.err != nil {
			failures++
			warnings = append(warnings, fmt.Sprintf("region %s: %v", res.region, res.err))
			continue
		}
		for _, ride := range res.results {
			existing, ok := merged[ride.RideID]
			if !ok || ride.Timestamp.After(existing.Timestamp) {
				merged[ride.RideID] = ride
			}
		}
	}

	if failures == len(r.regions) && len(r.regions) > 0 {
		return Response{RegionsQueried: queried, Warnings: warnings}, errors.New("unavailable: all participants failed")
	}

	out := make([]*cluster.Ride, 0, len(merged))
	for _, ride := range merged {
		out = append(out, ride)
	}
	sortDesc(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}

	return Response{Results: out, RegionsQueried: queried, Warnings: warnings}, nil
}

func sortDesc(rides []*cluster.Ride) {
	for i := 1; i < len(rides); i++ {
		j := i
		for j > 0 && lessDesc(rides[j-1], rides[j]) {
			rides[j-1], rides[j] = rides[j], rides[j-1]
			j--
		}
	}
}

func lessDesc(a, b *cluster.Ride) bool {
	if a.Timestamp.Equal(b.Timestamp) {
		return a.RideID > b.RideID
	}
	return a.Timestamp.Before(b.Timestamp)
}
