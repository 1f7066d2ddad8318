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

// CatalogRepository implements repository.CatalogRepository.
type CatalogRepository struct {
	pool database.DBTX
}

// NewCatalogRepository creates a PostgreSQL-backed catalog.
func NewCatalogRepository(pool database.DBTX) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

const lookupProductQuery = `
	SELECT code, display_name, model_label, base_price::text, stock_quantity,
		has_fixed_override_price, COALESCE(override_price, 0)::text, category
	FROM products
	WHERE code = $1`

// LookupProduct returns one product by code.
func (r *CatalogRepository) LookupProduct(ctx context.Context, code string) (*domain.Product, error) {
	var (
		p                   domain.Product
		basePrice, override string
	)
	err := r.pool.QueryRow(ctx, lookupProductQuery, code).Scan(
		&p.Code, &p.DisplayName, &p.ModelLabel, &basePrice, &p.StockQuantity,
		&p.HasFixedOverridePrice, &override, &p.Category,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("product", code)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("lookup product %s: %w", code, err), "catalog")
	}

	if p.BasePrice, err = parseNumeric("base_price", basePrice); err != nil {
		return nil, err
	}
	if p.OverridePrice, err = parseNumeric("override_price", override); err != nil {
		return nil, err
	}
	return &p, nil
}

const stockLevelsQuery = `SELECT code, stock_quantity FROM products WHERE code = ANY($1)`

// StockLevels returns current stock for the known codes among codes.
func (r *CatalogRepository) StockLevels(ctx context.Context, codes []string) (map[string]int, error) {
	levels := make(map[string]int, len(codes))
	if len(codes) == 0 {
		return levels, nil
	}

	rows, err := r.pool.Query(ctx, stockLevelsQuery, codes)
	if err != nil {
		return nil, classify(fmt.Errorf("query stock levels: %w", err), "catalog")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			code  string
			stock int
		)
		if err := rows.Scan(&code, &stock); err != nil {
			return nil, fmt.Errorf("scan stock level: %w", err)
		}
		levels[code] = stock
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock levels: %w", err)
	}
	return levels, nil
}
