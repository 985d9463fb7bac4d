// Package main implements a region process: the HTTP surface a region
// participant exposes per spec §6 (ride CRUD, stats, health, and the 2PC
// prepare/commit/abort/status endpoints internal/coordinator drives).
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│               Region                     │
//	├─────────────────────────────────────────┤
//	│  HTTP API:                               │
//	│    /rides          - create              │
//	│    /rides/search   - filtered search     │
//	│    /rides/{id}     - get/delete          │
//	│    /stats          - document counts     │
//	│    /health         - liveness + backend  │
//	│    /2pc/prepare    - 2PC vote            │
//	│    /2pc/commit     - 2PC commit          │
//	│    /2pc/abort      - 2PC abort           │
//	│    /2pc/status/{t} - recovery probe      │
//	│    /metrics        - Prometheus          │
//	├─────────────────────────────────────────┤
//	│  Components:                             │
//	│    store.Store        - ride documents   │
//	│    participant.Participant - 2PC logic   │
//	└─────────────────────────────────────────┘
//
// Configuration:
//   - REGION_NAME: this region's name, used as its store's primary id (required)
//   - REGION_LISTEN: listen address (default ":8090")
//   - REGION_BACKEND: "memory" or "redis" (default "memory")
//   - REDIS_ADDR: Redis address when REGION_BACKEND=redis
//
// Example usage:
//
//	REGION_NAME=Phoenix REGION_LISTEN=:8090 ./region
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/dreamware/ridefleet/internal/cluster"
	"github.com/dreamware/ridefleet/internal/config"
	"github.com/dreamware/ridefleet/internal/metrics"
	"github.com/dreamware/ridefleet/internal/participant"
	"github.com/dreamware/ridefleet/internal/store"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

func main() {
	region := config.MustGetenv("REGION_NAME")
	listen := config.Getenv("REGION_LISTEN", ":8090")
	backend := config.Getenv("REGION_BACKEND", "memory")

	var s store.Store
	switch backend {
	case "redis":
		addr := config.MustGetenv("REDIS_ADDR")
		client := redis.NewClient(&redis.Options{Addr: addr})
		s = store.NewRedisStore(client, region)
	default:
		s = store.NewMemoryStore(region)
	}

	p := participant.New(region, s)
	reg := prometheus.NewRegistry()
	mx := metrics.NewRegionRegistry(reg)

	mux := http.NewServeMux()
	registerRoutes(mux, p, mx, reg)

	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("region[%s] listening on %s (backend=%s)", region, listen, backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logFatal("region[%s] listen: %v", region, err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("region[%s] shutdown error: %v", region, err)
	}
	log.Printf("region[%s] stopped", region)
}

func registerRoutes(mux *http.ServeMux, p *participant.Participant, mx *metrics.RegionRegistry, reg *prometheus.Registry) {
	mux.HandleFunc("/rides", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handleCreateRide(p, mx, w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/rides/search", func(w http.ResponseWriter, r *http.Request) {
		handleSearch(p, w, r)
	})
	mux.HandleFunc("/rides/", func(w http.ResponseWriter, r *http.Request) {
		handleRideByID(p, mx, w, r)
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		handleStats(p, w, r)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		handleHealth(p, w, r)
	})
	mux.HandleFunc("/2pc/prepare", func(w http.ResponseWriter, r *http.Request) {
		handlePrepare(p, mx, w, r)
	})
	mux.HandleFunc("/2pc/commit", func(w http.ResponseWriter, r *http.Request) {
		handleCommit(p, mx, w, r)
	})
	mux.HandleFunc("/2pc/abort", func(w http.ResponseWriter, r *http.Request) {
		handleAbort(p, mx, w, r)
	})
	mux.HandleFunc("/2pc/status/", func(w http.ResponseWriter, r *http.Request) {
		handleStatus(p, w, r)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
}

func handleCreateRide(p *participant.Participant, mx *metrics.RegionRegistry, w http.ResponseWriter, r *http.Request) {
	var ride cluster.Ride
	if err := json.NewDecoder(r.Body).Decode(&ride); err != nil {
		http.Error(w, "invalid_argument: "+err.Error(), http.StatusBadRequest)
		return
	}
	if ride.Region == "" {
		ride.Region = p.Region
	}
	if err := p.Store.InsertRide(&ride); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			http.Error(w, "duplicate", http.StatusConflict)
			return
		}
		http.Error(w, "internal: "+err.Error(), http.StatusInternalServerError)
		return
	}
	updateRidesGauge(p, mx)
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(ride)
}

func updateRidesGauge(p *participant.Participant, mx *metrics.RegionRegistry) {
	if stats, err := p.Stats(); err == nil {
		mx.RidesGauge.Set(float64(stats.Total))
	}
}

func handleRideByID(p *participant.Participant, mx *metrics.RegionRegistry, w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/rides/")
	if id == "" {
		http.Error(w, "invalid_argument: missing ride id", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		ride, err := p.Store.GetRide(id)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "not_found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "internal: "+err.Error(), http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(ride)
	case http.MethodDelete:
		txID := r.URL.Query().Get("txId")
		err := p.Store.DeleteRide(id, txID)
		switch {
		case err == nil:
			updateRidesGauge(p, mx)
			w.WriteHeader(http.StatusOK)
		case errors.Is(err, store.ErrNotFound):
			http.Error(w, "not_found", http.StatusNotFound)
		case errors.Is(err, store.ErrWrongTransaction):
			http.Error(w, "contested", http.StatusConflict)
		default:
			http.Error(w, "internal: "+err.Error(), http.StatusInternalServerError)
		}
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func handleSearch(p *participant.Participant, w http.ResponseWriter, r *http.Request) {
	var filter store.SearchFilter
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&filter); err != nil && err.Error() != "EOF" {
			http.Error(w, "invalid_argument: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	results, err := p.Search(filter)
	if err != nil {
		http.Error(w, "internal: "+err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(results)
}

func handleStats(p *participant.Participant, w http.ResponseWriter, r *http.Request) {
	stats, err := p.Stats()
	if err != nil {
		http.Error(w, "internal: "+err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(stats)
}

func handleHealth(p *participant.Participant, w http.ResponseWriter, r *http.Request) {
	info, err := p.Health()
	if err != nil {
		http.Error(w, "unavailable: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"status":           "healthy",
		"region":           p.Region,
		"primary":          info.PrimaryID,
		"replicationLagMs": info.ReplicationLagMs,
		"lastWriteAt":      info.LastWriteAt,
	})
}

type prepareRequest struct {
	TxID   string `json:"txId"`
	RideID string `json:"rideId"`
	Role   string `json:"role"`
}

func handlePrepare(p *participant.Participant, mx *metrics.RegionRegistry, w http.ResponseWriter, r *http.Request) {
	var req prepareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid_argument: "+err.Error(), http.StatusBadRequest)
		return
	}
	result, err := p.Prepare(req.TxID, req.RideID, req.Role)
	if err != nil {
		http.Error(w, "internal: "+err.Error(), http.StatusInternalServerError)
		return
	}
	mx.ProtocolTotal.WithLabelValues("prepare", strings.ToLower(result.Vote)).Inc()
	json.NewEncoder(w).Encode(result)
}

type commitRequest struct {
	TxID   string        `json:"txId"`
	RideID string        `json:"rideId"`
	Role   string        `json:"role"`
	Ride   *cluster.Ride `json:"ride,omitempty"`
}

func handleCommit(p *participant.Participant, mx *metrics.RegionRegistry, w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid_argument: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := p.Commit(req.TxID, req.RideID, req.Role, req.Ride); err != nil {
		http.Error(w, "internal: "+err.Error(), http.StatusInternalServerError)
		return
	}
	mx.ProtocolTotal.WithLabelValues("commit", "ok").Inc()
	updateRidesGauge(p, mx)
	json.NewEncoder(w).Encode(map[string]bool{"committed": true})
}

type abortRequest struct {
	TxID   string `json:"txId"`
	RideID string `json:"rideId"`
	Role   string `json:"role"`
}

func handleAbort(p *participant.Participant, mx *metrics.RegionRegistry, w http.ResponseWriter, r *http.Request) {
	var req abortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid_argument: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := p.Abort(req.TxID, req.RideID, req.Role); err != nil {
		http.Error(w, "internal: "+err.Error(), http.StatusInternalServerError)
		return
	}
	mx.ProtocolTotal.WithLabelValues("abort", "ok").Inc()
	updateRidesGauge(p, mx)
	json.NewEncoder(w).Encode(map[string]bool{"aborted": true})
}

func handleStatus(p *participant.Participant, w http.ResponseWriter, r *http.Request) {
	txID := strings.TrimPrefix(r.URL.Path, "/2pc/status/")
	rideID := r.URL.Query().Get("rideId")
	if txID == "" || rideID == "" {
		http.Error(w, "invalid_argument: txId and rideId required", http.StatusBadRequest)
		return
	}
	result, err := p.Status(txID, rideID)
	if err != nil {
		http.Error(w, "internal: "+err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(result)
}
