package regionclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/ridefleet/internal/participant"
)

func TestPrepareSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(participant.PrepareResult{Vote: "COMMIT"})
	}))
	defer srv.Close()

	c := New("Phoenix", srv.URL)
	result, err := c.Prepare(context.Background(), "tx-1", "R-1", participant.RoleSource)
	require.NoError(t, err)
	assert.Equal(t, "COMMIT", result.Vote)
}

func TestCallRetriesTransientFailures(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 2 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(participant.PrepareResult{Vote: "COMMIT"})
	}))
	defer srv.Close()

	c := New("Phoenix", srv.URL)
	c.retry = RetryPolicy{Base: time.Millisecond, Cap: 10 * time.Millisecond, MaxAttempts: 3}

	result, err := c.Prepare(context.Background(), "tx-1", "R-1", participant.RoleSource)
	require.NoError(t, err)
	assert.Equal(t, "COMMIT", result.Vote)
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestCallExhaustsRetriesAndReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New("Phoenix", srv.URL)
	c.retry = RetryPolicy{Base: time.Millisecond, Cap: time.Millisecond, MaxAttempts: 2}

	_, err := c.Prepare(context.Background(), "tx-1", "R-1", participant.RoleSource)
	assert.Error(t, err)
}

func TestHealthBypassesRetryAndBreaker(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New("Phoenix", srv.URL)
	_, err := c.Health(context.Background())
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "Health must not retry")
}

func TestBackoffCapsAtCeiling(t *testing.T) {
	p := RetryPolicy{Base: 100 * time.Millisecond, Cap: 2 * time.Second, MaxAttempts: 5}
	assert.Equal(t, 100*time.Millisecond, p.backoff(0))
	assert.Equal(t, 200*time.Millisecond, p.backoff(1))
	assert.Equal(t, 400*time.Millisecond, p.backoff(2))
	assert.Equal(t, 2*time.Second, p.backoff(10))
}

func TestBreakerStateReported(t *testing.T) {
	c := New("Phoenix", "http://example.invalid")
	assert.Equal(t, "closed", c.BreakerState())
}
