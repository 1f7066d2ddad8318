package ratesource

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoaquinSabater/EcommerceCPF-sub000/internal/pricing"
	apperrors "github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/errors"
	"github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/httpclient"
)

func testClient() *httpclient.Client {
	cfg := httpclient.DefaultConfig()
	cfg.MaxRetries = 0
	cfg.Timeout = 2 * time.Second
	return httpclient.New(cfg)
}

func TestHTTPProvider_Rate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rates/special", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rate":"1250.5"}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(testClient(), srv.URL+"/")
	rate, err := p.Rate(context.Background(), pricing.RateSpecial)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1250.5").Equal(rate))
}

func TestHTTPProvider_NumericRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"rate":1000}`))
	}))
	defer srv.Close()

	rate, err := NewHTTPProvider(testClient(), srv.URL).Rate(context.Background(), pricing.RateGeneral)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1000).Equal(rate))
}

func TestHTTPProvider_MissingRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewHTTPProvider(testClient(), srv.URL).Rate(context.Background(), pricing.RateGeneral)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no rate")
}

func TestHTTPProvider_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"unknown context"}}`))
	}))
	defer srv.Close()

	_, err := NewHTTPProvider(testClient(), srv.URL).Rate(context.Background(), pricing.RateGeneral)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestHTTPProvider_BreakerOpensAndRateBookFailsOpen(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cbCfg := httpclient.DefaultCircuitBreakerConfig("rate-service-test")
	cbCfg.MinRequests = 2
	cb := httpclient.NewCircuitBreakerClient(testClient(), cbCfg, logger)
	p := NewHTTPProvider(cb, srv.URL)

	for range 2 {
		_, err := p.Rate(context.Background(), pricing.RateGeneral)
		require.Error(t, err)
	}
	_, err := p.Rate(context.Background(), pricing.RateGeneral)
	assert.ErrorIs(t, err, httpclient.ErrCircuitOpen)
	assert.Equal(t, int32(2), hits.Load())

	book := pricing.NewRateBook(p, time.Minute, logger)
	assert.True(t, pricing.FallbackRate.Equal(book.Rate(context.Background(), pricing.RateGeneral)))
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider(decimal.NewFromInt(1000), decimal.Zero)

	rate, err := p.Rate(context.Background(), pricing.RateGeneral)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1000).Equal(rate))

	_, err = p.Rate(context.Background(), pricing.RateSpecial)
	assert.Error(t, err)
}

type stubProvider struct {
	rate decimal.Decimal
	err  error
}

func (s stubProvider) Rate(context.Context, pricing.RateContext) (decimal.Decimal, error) {
	return s.rate, s.err
}

func TestChain(t *testing.T) {
	down := stubProvider{err: errors.New("down")}
	static := stubProvider{rate: decimal.NewFromInt(900)}

	rate, err := Chain{down, static}.Rate(context.Background(), pricing.RateGeneral)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(900).Equal(rate))

	_, err = Chain{down, stubProvider{err: errors.New("also down")}}.Rate(context.Background(), pricing.RateGeneral)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
	assert.Contains(t, err.Error(), "also down")

	_, err = Chain{}.Rate(context.Background(), pricing.RateGeneral)
	assert.Error(t, err)
}
