// Package ratesource provides the exchange rates the price pipeline converts
// base prices with.
package ratesource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/JoaquinSabater/EcommerceCPF-sub000/internal/pricing"
	"github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/httpclient"
)

// HTTPGetter is satisfied by httpclient.Client and
// httpclient.CircuitBreakerClient.
type HTTPGetter interface {
	Get(ctx context.Context, url string) (*http.Response, error)
}

type rateResponse struct {
	Rate *decimal.Decimal `json:"rate"`
}

// HTTPProvider reads rates from GET {base}/rates/{context}, which answers
// {"rate": "<decimal>"}.
type HTTPProvider struct {
	client  HTTPGetter
	baseURL string
}

// NewHTTPProvider creates a provider for the rate service at baseURL.
func NewHTTPProvider(client HTTPGetter, baseURL string) *HTTPProvider {
	return &HTTPProvider{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// Rate fetches the current rate of rc.
func (p *HTTPProvider) Rate(ctx context.Context, rc pricing.RateContext) (decimal.Decimal, error) {
	endpoint := p.baseURL + "/rates/" + url.PathEscape(string(rc))

	resp, err := p.client.Get(ctx, endpoint)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("call rate service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, httpclient.ParseResponseError(resp, "rate service")
	}

	var body rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode rate response: %w", err)
	}
	if body.Rate == nil {
		return decimal.Decimal{}, fmt.Errorf("rate service returned no rate for %s", rc)
	}
	return *body.Rate, nil
}

// StaticProvider serves configured rates.
type StaticProvider struct {
	rates map[pricing.RateContext]decimal.Decimal
}

// NewStaticProvider creates a provider from fixed rates. Zero rates count as
// not configured.
func NewStaticProvider(general, special decimal.Decimal) *StaticProvider {
	rates := make(map[pricing.RateContext]decimal.Decimal, 2)
	if !general.IsZero() {
		rates[pricing.RateGeneral] = general
	}
	if !special.IsZero() {
		rates[pricing.RateSpecial] = special
	}
	return &StaticProvider{rates: rates}
}

// Rate returns the configured rate of rc.
func (p *StaticProvider) Rate(_ context.Context, rc pricing.RateContext) (decimal.Decimal, error) {
	r, ok := p.rates[rc]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("no static rate configured for %s", rc)
	}
	return r, nil
}

// Chain asks each provider in turn and returns the first rate obtained.
type Chain []pricing.RateProvider

// Rate returns the first successful answer, or every provider's error joined.
func (c Chain) Rate(ctx context.Context, rc pricing.RateContext) (decimal.Decimal, error) {
	if len(c) == 0 {
		return decimal.Decimal{}, errors.New("no rate providers configured")
	}
	var errs []error
	for _, p := range c {
		r, err := p.Rate(ctx, rc)
		if err == nil {
			return r, nil
		}
		errs = append(errs, err)
	}
	return decimal.Decimal{}, errors.Join(errs...)
}
