package domain

import "github.com/shopspring/decimal"

// Product is a catalog entry as the storefront sees it.
type Product struct {
	Code          string          `json:"code"`
	DisplayName   string          `json:"display_name"`
	ModelLabel    string          `json:"model_label"`
	BasePrice     decimal.Decimal `json:"base_price"`
	StockQuantity int             `json:"stock_quantity"`
	// HasFixedOverridePrice marks a product whose OverridePrice, already in
	// local currency, replaces currency conversion.
	HasFixedOverridePrice bool            `json:"has_fixed_override_price"`
	OverridePrice         decimal.Decimal `json:"override_price"`
	Category              string          `json:"category"`
}

// Customer resolves to the seller responsible for their orders.
type Customer struct {
	ID            string `json:"id"`
	SellerID      string `json:"seller_id"`
	IsDistributor bool   `json:"is_distributor"`
}
