// Package metrics wires github.com/prometheus/client_golang into the
// handoff coordinator and region participant: counters for handoff
// outcomes, a whole-handoff latency histogram, a buffer-depth gauge per
// target region, and a region-health gauge. This is observability of the
// core described by spec §4.E, not a new engineering concern (SPEC_FULL.md
// §4); neither the Non-goals nor the spec's scope exclude it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry groups the collectors the coordinator process registers; the
// region process uses RegionRegistry. Each process constructs its own so
// the two binaries don't collide on the default registry when run in the
// same test process.
type Registry struct {
	HandoffsTotal   *prometheus.CounterVec
	HandoffDuration *prometheus.HistogramVec
	BufferDepth     *prometheus.GaugeVec
	RegionHealth    *prometheus.GaugeVec
}

// NewCoordinatorRegistry registers the coordinator-side collectors against
// reg (pass prometheus.NewRegistry() for isolation in tests, or
// prometheus.DefaultRegisterer for the real process).
func NewCoordinatorRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		HandoffsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ridefleet_handoffs_total",
			Help: "Count of completed Handoff calls by final status.",
		}, []string{"status"}),
		HandoffDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ridefleet_handoff_duration_seconds",
			Help:    "Latency of Handoff calls from entry to final status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		BufferDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ridefleet_buffer_depth",
			Help: "Current number of buffered handoffs per target region.",
		}, []string{"target"}),
		RegionHealth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ridefleet_region_health",
			Help: "Region health classification: 1=AVAILABLE, 0=UNAVAILABLE, -1=UNKNOWN.",
		}, []string{"region"}),
	}
}

// HealthValue converts a health.StateX string into the gauge value the
// RegionHealth metric expects.
func HealthValue(state string) float64 {
	switch state {
	case "AVAILABLE":
		return 1
	case "UNAVAILABLE":
		return 0
	default:
		return -1
	}
}

// RegionRegistry groups the collectors a region process registers: document
// count and 2PC operation counts, distinct from the coordinator's
// handoff-level view of the same transaction.
type RegionRegistry struct {
	RidesGauge    prometheus.Gauge
	ProtocolTotal *prometheus.CounterVec
}

// NewRegionRegistry registers the region-side collectors against reg.
func NewRegionRegistry(reg prometheus.Registerer) *RegionRegistry {
	factory := promauto.With(reg)
	return &RegionRegistry{
		RidesGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ridefleet_region_rides",
			Help: "Current number of ride documents held by this region.",
		}),
		ProtocolTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ridefleet_region_protocol_total",
			Help: "Count of 2PC operations handled by this region, by op and outcome.",
		}, []string{"op", "outcome"}),
	}
}
