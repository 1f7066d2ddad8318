package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/database"
	apperrors "github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/errors"
)

// Lookups shared by the directory repositories and the submission
// transaction. They run on whatever Querier they are given, so inside a
// transaction they see the transaction's snapshot.

const resolveSellerQuery = `SELECT seller_id FROM customers WHERE id = $1`

func resolveSeller(ctx context.Context, q database.Querier, customerID string) (string, error) {
	var sellerID string
	err := q.QueryRow(ctx, resolveSellerQuery, customerID).Scan(&sellerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apperrors.Referential("customer", customerID)
	}
	if err != nil {
		return "", fmt.Errorf("resolve seller for customer %s: %w", customerID, err)
	}
	return sellerID, nil
}

const productExistsQuery = `SELECT EXISTS(SELECT 1 FROM products WHERE code = $1)`

func productExists(ctx context.Context, q database.Querier, code string) (bool, error) {
	var exists bool
	if err := q.QueryRow(ctx, productExistsQuery, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("check product %s: %w", code, err)
	}
	return exists, nil
}

// parseNumeric reads a NUMERIC column selected as text.
func parseNumeric(column, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse %s %q: %w", column, raw, err)
	}
	return d, nil
}

// classify marks errors that did not come back from the server (pool
// exhaustion, refused or dropped connections) as a transient 503. Business
// errors and server-side SQL errors pass through unchanged.
func classify(err error, what string) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", apperrors.ServiceUnavailable(what+" unavailable"), err)
}
