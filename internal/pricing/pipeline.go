// Package pricing turns a product's stored price into the amounts shown and
// charged to a customer.
package pricing

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/JoaquinSabater/EcommerceCPF-sub000/internal/domain"
)

// DiscountRate is the standing distributor discount.
var DiscountRate = decimal.RequireFromString("0.20")

var discountFactor = decimal.NewFromInt(1).Sub(DiscountRate)

// RateContext selects which exchange rate applies to a product. Rates of
// different contexts are independent.
type RateContext string

const (
	RateGeneral RateContext = "general"
	RateSpecial RateContext = "special"
)

// Valid reports whether c is a known context.
func (c RateContext) Valid() bool {
	return c == RateGeneral || c == RateSpecial
}

// Input holds everything a quote depends on.
type Input struct {
	BasePrice             decimal.Decimal
	HasFixedOverridePrice bool
	OverridePrice         decimal.Decimal
	Category              string
	IsDistributor         bool
	ExchangeRate          decimal.Decimal
}

// Quote is a computed price. It is derived on demand and never stored.
type Quote struct {
	UnitAmountBase  decimal.Decimal `json:"unit_amount_base"`
	UnitAmountLocal decimal.Decimal `json:"unit_amount_local"`
	DiscountApplied bool            `json:"discount_applied"`
	IsOverridePrice bool            `json:"is_override_price"`
}

// LineTotal is the local amount for qty units.
func (q Quote) LineTotal(qty int) decimal.Decimal {
	return q.UnitAmountLocal.Mul(decimal.NewFromInt(int64(qty)))
}

// Pipeline computes quotes against a deployment's category configuration.
type Pipeline struct {
	excluded map[string]struct{}
	special  map[string]struct{}
}

// NewPipeline creates a Pipeline. Categories in excluded never get the
// distributor discount; categories in special are converted with the special
// exchange rate. Category names match case-insensitively.
func NewPipeline(excluded, special []string) *Pipeline {
	return &Pipeline{excluded: categorySet(excluded), special: categorySet(special)}
}

func categorySet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n = normalizeCategory(n); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

func normalizeCategory(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}

// RateContextFor returns the exchange-rate context of a category.
func (p *Pipeline) RateContextFor(category string) RateContext {
	if _, ok := p.special[normalizeCategory(category)]; ok {
		return RateSpecial
	}
	return RateGeneral
}

// DiscountEligible reports whether a customer gets the discount on category.
func (p *Pipeline) DiscountEligible(isDistributor bool, category string) bool {
	if !isDistributor {
		return false
	}
	_, excluded := p.excluded[normalizeCategory(category)]
	return !excluded
}

// InputFor assembles the Input for a catalog product.
func (p *Pipeline) InputFor(prod domain.Product, isDistributor bool, rate decimal.Decimal) Input {
	return Input{
		BasePrice:             prod.BasePrice,
		HasFixedOverridePrice: prod.HasFixedOverridePrice,
		OverridePrice:         prod.OverridePrice,
		Category:              prod.Category,
		IsDistributor:         isDistributor,
		ExchangeRate:          rate,
	}
}

// Quote prices one unit.
//
// A fixed override price is already local currency: the discount applies to
// it directly and the exchange rate is ignored. Otherwise the discounted base
// price is converted. The two branches must stay separate; deriving the
// override discount from the base-price factor changes historical totals.
func (p *Pipeline) Quote(in Input) Quote {
	eligible := p.DiscountEligible(in.IsDistributor, in.Category)

	base := in.BasePrice
	if eligible {
		base = base.Mul(discountFactor)
	}

	var local decimal.Decimal
	if in.HasFixedOverridePrice {
		local = in.OverridePrice
		if eligible {
			local = local.Mul(discountFactor)
		}
	} else {
		local = base.Mul(in.ExchangeRate)
	}

	return Quote{
		UnitAmountBase:  base,
		UnitAmountLocal: local.Round(0),
		DiscountApplied: eligible,
		IsOverridePrice: in.HasFixedOverridePrice,
	}
}
