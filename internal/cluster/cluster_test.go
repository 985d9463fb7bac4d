package cluster

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRideClone(t *testing.T) {
	r := &Ride{RideID: "R-1", Fare: 10}
	cp := r.Clone()
	cp.Fare = 20

	assert.Equal(t, float64(10), r.Fare)
	assert.Equal(t, float64(20), cp.Fare)

	var nilRide *Ride
	assert.Nil(t, nilRide.Clone())
}

func TestPostJSONRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(map[string]string{"echo": body["name"]})
	}))
	defer srv.Close()

	var out map[string]string
	err := PostJSON(context.Background(), srv.URL, map[string]string{"name": "phoenix"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "phoenix", out["echo"])
}

func TestPostJSONErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := PostJSON(context.Background(), srv.URL, map[string]string{}, nil)
	assert.Error(t, err)
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer srv.Close()

	var out map[string]string
	err := GetJSON(context.Background(), srv.URL, &out)
	require.NoError(t, err)
	assert.Equal(t, "ok", out["status"])
}

func TestDeleteJSONMapsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	err := DeleteJSON(context.Background(), srv.URL, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteJSONSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]bool{"deleted": true})
	}))
	defer srv.Close()

	var out map[string]bool
	err := DeleteJSON(context.Background(), srv.URL, &out)
	require.NoError(t, err)
	assert.True(t, out["deleted"])
}
