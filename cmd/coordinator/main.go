// Package main implements the coordinator process: the HTTP surface over
// internal/coordinator, internal/router, and internal/health described in
// spec §6.
//
// Architecture:
//
//	┌───────────────────────────────────────────┐
//	│               Coordinator                  │
//	├───────────────────────────────────────────┤
//	│  HTTP API:                                 │
//	│    POST /handoff        - run 2PC          │
//	│    GET  /transactions   - recent records   │
//	│    GET  /health/regions - health snapshot  │
//	│    POST /rides/search   - query router     │
//	│    GET  /, /health      - liveness         │
//	│    GET  /metrics        - Prometheus       │
//	├───────────────────────────────────────────┤
//	│  Components:                               │
//	│    coordinator.Coordinator - 2PC driver    │
//	│    health.Monitor          - classification│
//	│    buffer.Buffer           - deferred work │
//	│    router.Router           - read scopes   │
//	│    txlog.Log               - durable log   │
//	└───────────────────────────────────────────┘
//
// Unlike torua's cmd/coordinator, regions are statically configured (spec
// §6 `regions`) rather than self-registered, so there is no /register
// endpoint. Startup instead probes every configured region's /health the
// way torua's node retried its own registration.
//
// Configuration:
//   - COORDINATOR_ADDR: listen address (default ":8080")
//   - COORDINATOR_CONFIG: path to a YAML config file (optional)
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/dreamware/ridefleet/internal/buffer"
	"github.com/dreamware/ridefleet/internal/config"
	"github.com/dreamware/ridefleet/internal/coordinator"
	"github.com/dreamware/ridefleet/internal/health"
	"github.com/dreamware/ridefleet/internal/metrics"
	"github.com/dreamware/ridefleet/internal/regionclient"
	"github.com/dreamware/ridefleet/internal/router"
	"github.com/dreamware/ridefleet/internal/txlog"
)

func main() {
	listen := config.Getenv("COORDINATOR_ADDR", ":8080")
	cfg, err := config.Load(config.Getenv("COORDINATOR_CONFIG", ""))
	if err != nil {
		log.Fatalf("coordinator: %v", err)
	}
	if len(cfg.Regions) == 0 {
		log.Fatalf("coordinator: no regions configured (set regions: in the config file)")
	}

	regionClients := make(map[string]*regionclient.Client, len(cfg.Regions))
	regionNames := make([]string, 0, len(cfg.Regions))
	for name, addr := range cfg.Regions {
		regionClients[name] = regionclient.New(name, addr)
		regionNames = append(regionNames, name)
	}

	var replicaClient *regionclient.Client
	if cfg.GlobalReplica != "" {
		replicaClient = regionclient.New("globalReplica", cfg.GlobalReplica)
	}

	txLog := newTxLog(cfg)
	buf := buffer.New(cfg.Buffer.MaxPerRegion)

	monitor := health.New(regionNames, cfg.MonitorInterval())
	monitor.SetTimeout(cfg.MonitorTimeout())
	monitor.SetFailureThreshold(cfg.Monitor.FailureThreshold)
	monitor.SetCheckFunction(func(ctx context.Context, region string) (health.ProbeResult, error) {
		client := regionClients[region]
		resp, err := client.Health(ctx)
		monitor.SetBreakerState(region, client.BreakerState())
		if err != nil {
			return health.ProbeResult{}, err
		}
		return health.ProbeResult{PrimaryID: resp.Primary, ReplicationLagMs: resp.ReplicationLagMs}, nil
	})

	reg := prometheus.NewRegistry()
	mx := metrics.NewCoordinatorRegistry(reg)

	coord := coordinator.New(regionClients, txLog, buf, monitor, mx, coordinator.Options{
		PrepareTimeout: cfg.PrepareTimeout(),
		CommitTimeout:  cfg.CommitTimeout(),
		OverallTimeout: cfg.OverallTimeout(),
	})

	r := router.New(regionClients, replicaClient, monitor)

	ctx, cancelBg := context.WithCancel(context.Background())
	monitor.Start(ctx)
	if err := coord.Start(ctx); err != nil {
		log.Fatalf("coordinator: startup recovery failed: %v", err)
	}

	mux := http.NewServeMux()
	registerRoutes(mux, coord, r, monitor, reg)

	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("coordinator listening on %s (regions: %v)", listen, regionNames)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("coordinator: listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	// Stop the coordinator (drainer + recovery loop) and the health monitor
	// before the HTTP server, so no in-flight handoff outlives its
	// dependencies.
	coord.Stop()
	monitor.Stop()
	cancelBg()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("coordinator: shutdown error: %v", err)
	}
	log.Println("coordinator stopped")
}

func newTxLog(cfg config.Config) txlog.Log {
	if cfg.Log.Backend != "etcd" {
		return txlog.NewMemoryLog()
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Log.EtcdAddrs,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		log.Fatalf("coordinator: etcd connect: %v", err)
	}
	return txlog.NewEtcdLog(client, "")
}

func registerRoutes(mux *http.ServeMux, coord *coordinator.Coordinator, r *router.Router, monitor *health.Monitor, reg *prometheus.Registry) {
	mux.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/" {
			http.NotFound(w, req)
			return
		}
		w.Write([]byte("ridefleet coordinator\n"))
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/handoff", func(w http.ResponseWriter, req *http.Request) {
		handleHandoff(coord, w, req)
	})
	mux.HandleFunc("/transactions", func(w http.ResponseWriter, req *http.Request) {
		handleTransactions(coord, w, req)
	})
	mux.HandleFunc("/health/regions", func(w http.ResponseWriter, req *http.Request) {
		handleHealthRegions(coord, w, req)
	})
	mux.HandleFunc("/rides/search", func(w http.ResponseWriter, req *http.Request) {
		handleSearch(r, w, req)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
}

type handoffRequest struct {
	RideID string `json:"rideId"`
	Source string `json:"source"`
	Target string `json:"target"`
}

func handleHandoff(coord *coordinator.Coordinator, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	var req handoffRequest
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "invalid_argument: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := coord.Handoff(r.Context(), req.RideID, req.Source, req.Target)
	if err != nil {
		http.Error(w, "internal: "+err.Error(), http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"status":    result.Status,
		"txId":      result.TxID,
		"latencyMs": result.LatencyMs,
		"reason":    result.Reason,
	})
}

func handleTransactions(coord *coordinator.Coordinator, w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := coord.Transactions(limit)
	if err != nil {
		http.Error(w, "internal: "+err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(records)
}

func handleHealthRegions(coord *coordinator.Coordinator, w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(coord.RegionHealthSnapshot())
}

func handleSearch(r *router.Router, w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()
	var filter router.Filter
	if err := dec.Decode(&filter); err != nil {
		http.Error(w, "invalid_argument: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := r.Validate(filter); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := r.Query(req.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	json.NewEncoder(w).Encode(resp)
}
