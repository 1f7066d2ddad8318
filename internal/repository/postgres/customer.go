package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JoaquinSabater/EcommerceCPF-sub000/internal/domain"
	"github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/database"
	apperrors "github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/errors"
)

// CustomerRepository implements repository.CustomerRepository.
type CustomerRepository struct {
	pool database.DBTX
}

// NewCustomerRepository creates a PostgreSQL-backed customer directory.
func NewCustomerRepository(pool database.DBTX) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

const getCustomerQuery = `SELECT id, seller_id, is_distributor FROM customers WHERE id = $1`

// GetCustomer returns a customer by id.
func (r *CustomerRepository) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := r.pool.QueryRow(ctx, getCustomerQuery, id).Scan(&c.ID, &c.SellerID, &c.IsDistributor)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("customer", id)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("get customer %s: %w", id, err), "customer directory")
	}
	return &c, nil
}

// ResolveSeller returns the seller responsible for customerID.
func (r *CustomerRepository) ResolveSeller(ctx context.Context, customerID string) (string, error) {
	sellerID, err := resolveSeller(ctx, r.pool, customerID)
	return sellerID, classify(err, "customer directory")
}
