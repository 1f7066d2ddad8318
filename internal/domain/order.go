package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SubmissionLine is one finalized line handed to order submission. UnitPrice
// is taken as given and never recomputed.
type SubmissionLine struct {
	ProductCode string          `json:"product_code" validate:"required,max=64"`
	Quantity    int             `json:"quantity" validate:"gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Note        string          `json:"note,omitempty" validate:"max=1000"`
}

// Submission is the input of the order submission transaction.
type Submission struct {
	CustomerID string           `json:"customer_id" validate:"required,max=64"`
	Note       string           `json:"note,omitempty" validate:"max=2000"`
	Lines      []SubmissionLine `json:"lines" validate:"required,min=1,dive"`
}

// PreliminaryOrder is a reservation-style order awaiting manual follow-up.
// It never affects live stock and is immutable once created.
type PreliminaryOrder struct {
	ID         int64       `json:"id"`
	CustomerID string      `json:"customer_id"`
	SellerID   string      `json:"seller_id"`
	Note       string      `json:"note,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	Items      []OrderItem `json:"items"`
}

// OrderItem is a persisted line of a PreliminaryOrder.
type OrderItem struct {
	ID                int64           `json:"id"`
	OrderID           int64           `json:"order_id"`
	ProductCode       string          `json:"product_code"`
	QuantityRequested int             `json:"quantity_requested"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	Annotation        *Annotation     `json:"annotation,omitempty"`
}

// Annotation is the free-text note carried over from a cart line.
type Annotation struct {
	ID         int64  `json:"id"`
	LineItemID int64  `json:"line_item_id"`
	Text       string `json:"text"`
}

// Total sums quantity times unit price over all items.
func (o *PreliminaryOrder) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.QuantityRequested))))
	}
	return total
}
