package httpclient

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBreaker(t *testing.T, handler http.HandlerFunc) (*CircuitBreakerClient, string, *int32) {
	t.Helper()
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	cfg := DefaultCircuitBreakerConfig(t.Name())
	cfg.MinRequests = 2
	cfg.Timeout = time.Hour

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cb := NewCircuitBreakerClient(New(fastConfig(0)), cfg, logger)
	return cb, server.URL, &hits
}

func TestCircuitBreaker_PassesThroughSuccess(t *testing.T) {
	cb, url, _ := testBreaker(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"rate":"1.5"}`))
	})

	resp, err := cb.Get(context.Background(), url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb, url, hits := testBreaker(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	for i := 0; i < 2; i++ {
		_, err := cb.Get(context.Background(), url)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server error 500")
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := cb.Get(context.Background(), url)
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}

func TestCircuitBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	cb, url, _ := testBreaker(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for i := 0; i < 5; i++ {
		resp, err := cb.Get(context.Background(), url)
		require.NoError(t, err)
		resp.Body.Close()
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}
