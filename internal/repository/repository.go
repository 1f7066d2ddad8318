package repository

import (
	"context"

	"github.com/JoaquinSabater/EcommerceCPF-sub000/internal/domain"
)

// CatalogRepository is the read-only product catalog.
type CatalogRepository interface {
	// LookupProduct returns the product with the given code or a NotFound error.
	LookupProduct(ctx context.Context, code string) (*domain.Product, error)

	// StockLevels returns the current stock of every known code in codes.
	// Unknown codes are absent from the result.
	StockLevels(ctx context.Context, codes []string) (map[string]int, error)
}

// CustomerRepository is the customer directory.
type CustomerRepository interface {
	// GetCustomer returns the customer or a NotFound error.
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)

	// ResolveSeller returns the id of the seller responsible for a customer,
	// or a Referential error when the customer is unknown.
	ResolveSeller(ctx context.Context, customerID string) (string, error)
}

// OrderRepository persists preliminary orders.
type OrderRepository interface {
	// Submit atomically writes the order header, its items and their
	// annotations, returning the new order id. Any failure leaves no rows.
	Submit(ctx context.Context, sub domain.Submission) (int64, error)

	// GetByID returns an order with its items and annotations.
	GetByID(ctx context.Context, id int64) (*domain.PreliminaryOrder, error)
}
