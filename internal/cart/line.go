package cart

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Line is one product in a cart. ProductCode is unique within a cart.
type Line struct {
	ProductCode   string          `json:"product_code"`
	DisplayName   string          `json:"display_name"`
	ModelLabel    string          `json:"model_label"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price_base"`
	StockSnapshot int             `json:"stock_snapshot"`
	Note          string          `json:"note,omitempty"`
}

// Snapshot is the persisted form of a cart.
type Snapshot struct {
	Lines []Line `json:"lines"`
}

// StockWarning reports a line whose quantity exceeds the last known stock.
type StockWarning struct {
	ProductCode string `json:"product_code"`
	DisplayName string `json:"display_name"`
	Quantity    int    `json:"quantity"`
	Available   int    `json:"available"`
	Message     string `json:"message"`
}

func newStockWarning(l Line) StockWarning {
	name := l.DisplayName
	if name == "" {
		name = l.ProductCode
	}
	return StockWarning{
		ProductCode: l.ProductCode,
		DisplayName: l.DisplayName,
		Quantity:    l.Quantity,
		Available:   l.StockSnapshot,
		Message:     fmt.Sprintf("%s: %d in cart but only %d available", name, l.Quantity, l.StockSnapshot),
	}
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	return max(lo, min(v, hi))
}

// normalize drops lines that could not have been produced by a Manager
// (empty code, non-positive quantity, duplicate code) from a loaded snapshot.
func normalize(lines []Line) []Line {
	out := make([]Line, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		if l.ProductCode == "" || l.Quantity <= 0 {
			continue
		}
		if _, dup := seen[l.ProductCode]; dup {
			continue
		}
		seen[l.ProductCode] = struct{}{}
		if l.StockSnapshot < 0 {
			l.StockSnapshot = 0
		}
		out = append(out, l)
	}
	return out
}
