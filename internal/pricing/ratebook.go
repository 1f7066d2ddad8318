package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// FallbackRate is used whenever a rate cannot be fetched, so a quote shows
// the base-currency amount instead of blocking checkout.
var FallbackRate = decimal.NewFromInt(1)

const (
	fetchTimeout     = 3 * time.Second
	maxFallbackRetry = 30 * time.Second
)

var rateFallbacks = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_rate_fallbacks_total",
		Help: "Exchange rate lookups that fell back to a rate of 1",
	},
	[]string{"context"},
)

// RateProvider fetches the current exchange rate of a context.
type RateProvider interface {
	Rate(ctx context.Context, rc RateContext) (decimal.Decimal, error)
}

type rateEntry struct {
	rate      decimal.Decimal
	expiresAt time.Time
	fallback  bool
}

// RateBook caches one exchange rate per context. Each context is fetched at
// most once per TTL no matter how many quotes are computed; concurrent misses
// share a single fetch. A failed fetch yields FallbackRate, which is retried
// sooner than a real rate expires.
type RateBook struct {
	provider RateProvider
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time

	group   singleflight.Group
	mu      sync.RWMutex
	entries map[RateContext]rateEntry
}

// NewRateBook creates a RateBook caching rates for ttl.
func NewRateBook(provider RateProvider, ttl time.Duration, logger *slog.Logger) *RateBook {
	return &RateBook{
		provider: provider,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
		entries:  make(map[RateContext]rateEntry),
	}
}

func (b *RateBook) cached(rc RateContext) (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[rc]
	if !ok || !b.now().Before(e.expiresAt) {
		return decimal.Decimal{}, false
	}
	return e.rate, true
}

// Rate returns the rate of rc. It never fails.
func (b *RateBook) Rate(ctx context.Context, rc RateContext) decimal.Decimal {
	if rate, ok := b.cached(rc); ok {
		return rate
	}

	v, _, _ := b.group.Do(string(rc), func() (any, error) {
		if rate, ok := b.cached(rc); ok {
			return rate, nil
		}
		return b.fetch(ctx, rc), nil
	})
	return v.(decimal.Decimal)
}

func (b *RateBook) fetch(ctx context.Context, rc RateContext) decimal.Decimal {
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
	defer cancel()

	rate, err := b.provider.Rate(fetchCtx, rc)
	if err == nil && !rate.IsPositive() {
		err = fmt.Errorf("non-positive rate %s", rate)
	}

	entry := rateEntry{rate: rate, expiresAt: b.now().Add(b.ttl)}
	if err != nil {
		rateFallbacks.WithLabelValues(string(rc)).Inc()
		b.logger.WarnContext(ctx, "exchange rate unavailable, using fallback rate",
			slog.String("rate_context", string(rc)),
			slog.String("fallback_rate", FallbackRate.String()),
			slog.String("error", err.Error()),
		)
		entry = rateEntry{rate: FallbackRate, expiresAt: b.now().Add(min(b.ttl, maxFallbackRetry)), fallback: true}
	}

	b.mu.Lock()
	b.entries[rc] = entry
	b.mu.Unlock()
	return entry.rate
}

// Invalidate drops every cached rate.
func (b *RateBook) Invalidate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.entries)
}
