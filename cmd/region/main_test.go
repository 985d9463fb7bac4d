package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/ridefleet/internal/cluster"
	"github.com/dreamware/ridefleet/internal/metrics"
	"github.com/dreamware/ridefleet/internal/participant"
	"github.com/dreamware/ridefleet/internal/store"
)

func newTestParticipant() (*participant.Participant, *metrics.RegionRegistry) {
	p := participant.New("Phoenix", store.NewMemoryStore("Phoenix"))
	reg := prometheus.NewRegistry()
	return p, metrics.NewRegionRegistry(reg)
}

func postJSON(t *testing.T, handler http.HandlerFunc, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestHandleCreateRide(t *testing.T) {
	tests := []struct {
		name       string
		ride       cluster.Ride
		wantStatus int
	}{
		{
			name:       "new ride",
			ride:       cluster.Ride{RideID: "r1", Status: cluster.RideInProgress, Fare: 12.5},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "duplicate ride",
			ride:       cluster.Ride{RideID: "dup", Status: cluster.RideInProgress},
			wantStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, mx := newTestParticipant()
			if tt.name == "duplicate ride" {
				require.NoError(t, p.Store.InsertRide(&tt.ride))
			}

			handler := func(w http.ResponseWriter, r *http.Request) { handleCreateRide(p, mx, w, r) }
			rec := postJSON(t, handler, http.MethodPost, "/rides", tt.ride)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestHandleRideByID(t *testing.T) {
	p, mx := newTestParticipant()
	require.NoError(t, p.Store.InsertRide(&cluster.Ride{RideID: "r1", Status: cluster.RideInProgress}))

	t.Run("get existing", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/rides/r1", nil)
		rec := httptest.NewRecorder()
		handleRideByID(p, mx, rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)

		var got cluster.Ride
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, "r1", got.RideID)
	})

	t.Run("get missing", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/rides/missing", nil)
		rec := httptest.NewRecorder()
		handleRideByID(p, mx, rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("delete wrong transaction", func(t *testing.T) {
		require.NoError(t, p.Store.InsertRide(&cluster.Ride{RideID: "locked", Status: cluster.RideInProgress}))
		_, err := p.Store.Lock("locked", "tx-a")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodDelete, "/rides/locked?txId=tx-b", nil)
		rec := httptest.NewRecorder()
		handleRideByID(p, mx, rec, req)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/rides/r1", nil)
		rec := httptest.NewRecorder()
		handleRideByID(p, mx, rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestHandleSearch(t *testing.T) {
	p, _ := newTestParticipant()
	require.NoError(t, p.Store.InsertRide(&cluster.Ride{RideID: "r1", Status: cluster.RideInProgress, Fare: 5}))
	require.NoError(t, p.Store.InsertRide(&cluster.Ride{RideID: "r2", Status: cluster.RideCompleted, Fare: 20}))

	handler := func(w http.ResponseWriter, r *http.Request) { handleSearch(p, w, r) }
	rec := postJSON(t, handler, http.MethodPost, "/rides/search", store.SearchFilter{Status: []string{cluster.RideCompleted}})

	require.Equal(t, http.StatusOK, rec.Code)
	var results []*cluster.Ride
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&results))
	require.Len(t, results, 1)
	assert.Equal(t, "r2", results[0].RideID)
}

func TestHandlePrepare(t *testing.T) {
	p, mx := newTestParticipant()
	require.NoError(t, p.Store.InsertRide(&cluster.Ride{RideID: "r1", Status: cluster.RideInProgress}))

	handler := func(w http.ResponseWriter, r *http.Request) { handlePrepare(p, mx, w, r) }
	rec := postJSON(t, handler, http.MethodPost, "/2pc/prepare", prepareRequest{TxID: "tx1", RideID: "r1", Role: participant.RoleSource})

	require.Equal(t, http.StatusOK, rec.Code)
	var result participant.PrepareResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Equal(t, "COMMIT", result.Vote)
}

func TestHandleCommit(t *testing.T) {
	p, mx := newTestParticipant()
	require.NoError(t, p.Store.InsertRide(&cluster.Ride{RideID: "r1", Status: cluster.RideInProgress}))
	_, err := p.Store.Lock("r1", "tx1")
	require.NoError(t, err)

	handler := func(w http.ResponseWriter, r *http.Request) { handleCommit(p, mx, w, r) }
	rec := postJSON(t, handler, http.MethodPost, "/2pc/commit", commitRequest{TxID: "tx1", RideID: "r1", Role: participant.RoleSource})

	assert.Equal(t, http.StatusOK, rec.Code)
	_, err = p.Store.GetRide("r1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHandleAbort(t *testing.T) {
	p, mx := newTestParticipant()
	require.NoError(t, p.Store.InsertRide(&cluster.Ride{RideID: "r1", Status: cluster.RideInProgress}))
	_, err := p.Store.Lock("r1", "tx1")
	require.NoError(t, err)

	handler := func(w http.ResponseWriter, r *http.Request) { handleAbort(p, mx, w, r) }
	rec := postJSON(t, handler, http.MethodPost, "/2pc/abort", abortRequest{TxID: "tx1", RideID: "r1", Role: participant.RoleSource})

	assert.Equal(t, http.StatusOK, rec.Code)
	ride, err := p.Store.GetRide("r1")
	require.NoError(t, err)
	assert.False(t, ride.Locked)
}

func TestHandleStatus(t *testing.T) {
	p, _ := newTestParticipant()
	require.NoError(t, p.Store.InsertRide(&cluster.Ride{RideID: "r1", Status: cluster.RideInProgress}))
	_, err := p.Store.Lock("r1", "tx1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/2pc/status/tx1?rideId=r1", nil)
	rec := httptest.NewRecorder()
	handleStatus(p, rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result participant.StatusResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.True(t, result.Present)
	assert.True(t, result.Locked)
}

func TestRegisterRoutes(t *testing.T) {
	p, mx := newTestParticipant()
	reg := prometheus.NewRegistry()
	mux := http.NewServeMux()
	registerRoutes(mux, p, mx, reg)

	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}
