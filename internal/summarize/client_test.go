package summarize

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozanyurt/caseflow/internal/config"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		AIServiceURL:     baseURL,
		SummarizeTimeout: 2 * time.Second,
		BreakerCooldown:  time.Minute,
		BreakerMinCalls:  3,
		BreakerFailRate:  0.5,
	}
}

func TestSummarizeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/summarize", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "long text", body["text"])
		json.NewEncoder(w).Encode(apiResponse{Status: StatusSuccess, Summary: "short", ProcessingTime: 1.2})
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), slog.Default())
	res := c.Summarize(context.Background(), "long text")
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "short", res.Summary)
	assert.Equal(t, 1.2, res.ProcessingTime)
}

func TestSummarizeDegradesOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), slog.Default())
	res := c.Summarize(context.Background(), "text")
	assert.Equal(t, StatusUnavailable, res.Status)
	assert.Empty(t, res.Summary)
}

func TestSummarizeDegradesOnNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(apiResponse{Status: "error"})
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), slog.Default())
	res := c.Summarize(context.Background(), "text")
	assert.Equal(t, StatusUnavailable, res.Status)
}

func TestBreakerOpensAndShortCircuits(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), slog.Default())
	ctx := context.Background()

	// Three failures reach the minimum sample size at a 100% failure rate,
	// which trips the breaker.
	for i := 0; i < 3; i++ {
		res := c.Summarize(ctx, "text")
		assert.Equal(t, StatusUnavailable, res.Status)
	}
	tripped := hits.Load()
	require.Equal(t, int64(3), tripped)

	// With the circuit open, further calls must not reach the backend.
	for i := 0; i < 5; i++ {
		res := c.Summarize(ctx, "text")
		assert.Equal(t, StatusUnavailable, res.Status)
	}
	assert.Equal(t, tripped, hits.Load(), "open circuit must short-circuit requests")
}

func TestBreakerRecoversAfterCooldown(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(apiResponse{Status: StatusSuccess, Summary: "short", ProcessingTime: 0.1})
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.BreakerCooldown = 50 * time.Millisecond
	c := New(cfg, slog.Default())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c.Summarize(ctx, "text")
	}

	failing.Store(false)
	time.Sleep(100 * time.Millisecond)

	res := c.Summarize(ctx, "text")
	assert.Equal(t, StatusSuccess, res.Status, "half-open probe should succeed after cooldown")
}
