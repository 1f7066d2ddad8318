package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/JoaquinSabater/EcommerceCPF-sub000/internal/domain"
	"github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/database"
	apperrors "github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/errors"
	"github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/logger"
)

// OrderRepository implements repository.OrderRepository.
type OrderRepository struct {
	pool database.DBTX
}

// NewOrderRepository creates a PostgreSQL-backed order repository.
func NewOrderRepository(pool database.DBTX) *OrderRepository {
	return &OrderRepository{pool: pool}
}

const (
	insertOrderQuery = `
		INSERT INTO preliminary_orders (customer_id, seller_id, note)
		VALUES ($1, $2, NULLIF($3, ''))
		RETURNING id`

	insertItemQuery = `
		INSERT INTO preliminary_order_items (order_id, product_code, quantity_requested, unit_price)
		VALUES ($1, $2, $3, $4::numeric)
		RETURNING id`

	insertNoteQuery = `
		INSERT INTO preliminary_order_item_notes (line_item_id, text)
		VALUES ($1, $2)`
)

// Submit writes a preliminary order in one transaction. The seller is
// resolved from the customer inside the transaction, and every product code
// is checked in input order; an unknown customer or product aborts the whole
// submission with a Referential error. Live stock is not touched.
func (r *OrderRepository) Submit(ctx context.Context, sub domain.Submission) (orderID int64, err error) {
	ctx, end := database.TraceQuery(ctx, "SubmitPreliminaryOrder", "tx: preliminary_orders, preliminary_order_items, preliminary_order_item_notes")
	defer func() { end(err) }()

	var id int64
	err = database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		sellerID, err := resolveSeller(ctx, tx, sub.CustomerID)
		if err != nil {
			return err
		}

		if err := tx.QueryRow(ctx, insertOrderQuery, sub.CustomerID, sellerID, sub.Note).Scan(&id); err != nil {
			return fmt.Errorf("insert order header: %w", err)
		}

		for i, line := range sub.Lines {
			exists, err := productExists(ctx, tx, line.ProductCode)
			if err != nil {
				return err
			}
			if !exists {
				return apperrors.Referential("product", line.ProductCode)
			}

			var itemID int64
			err = tx.QueryRow(ctx, insertItemQuery, id, line.ProductCode, line.Quantity, line.UnitPrice.String()).Scan(&itemID)
			if err != nil {
				return fmt.Errorf("insert order item %d (%s): %w", i, line.ProductCode, err)
			}

			if line.Note == "" {
				continue
			}
			if _, err := tx.Exec(ctx, insertNoteQuery, itemID, line.Note); err != nil {
				return fmt.Errorf("insert note for order item %d: %w", itemID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, classify(err, "order store")
	}

	logger.FromContext(ctx).DebugContext(ctx, "preliminary order persisted",
		slog.Int64("order_id", id),
		slog.Int("lines", len(sub.Lines)),
	)
	return id, nil
}

const (
	getOrderQuery = `
		SELECT id, customer_id, seller_id, COALESCE(note, ''), created_at
		FROM preliminary_orders
		WHERE id = $1`

	getOrderItemsQuery = `
		SELECT i.id, i.product_code, i.quantity_requested, i.unit_price::text, n.id, n.text
		FROM preliminary_order_items i
		LEFT JOIN preliminary_order_item_notes n ON n.line_item_id = i.id
		WHERE i.order_id = $1
		ORDER BY i.id`
)

// GetByID reads an order back with its items in submission order.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*domain.PreliminaryOrder, error) {
	var o domain.PreliminaryOrder
	err := r.pool.QueryRow(ctx, getOrderQuery, id).Scan(&o.ID, &o.CustomerID, &o.SellerID, &o.Note, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("preliminary order", fmt.Sprint(id))
	}
	if err != nil {
		return nil, classify(fmt.Errorf("get order %d: %w", id, err), "order store")
	}

	rows, err := r.pool.Query(ctx, getOrderItemsQuery, id)
	if err != nil {
		return nil, classify(fmt.Errorf("query items of order %d: %w", id, err), "order store")
	}
	defer rows.Close()

	o.Items = []domain.OrderItem{}
	for rows.Next() {
		var (
			item     domain.OrderItem
			price    string
			noteID   *int64
			noteText *string
		)
		if err := rows.Scan(&item.ID, &item.ProductCode, &item.QuantityRequested, &price, &noteID, &noteText); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if item.UnitPrice, err = parseNumeric("unit_price", price); err != nil {
			return nil, err
		}
		item.OrderID = o.ID
		if noteID != nil && noteText != nil {
			item.Annotation = &domain.Annotation{ID: *noteID, LineItemID: item.ID, Text: *noteText}
		}
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return &o, nil
}
