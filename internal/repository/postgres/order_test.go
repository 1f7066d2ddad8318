package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoaquinSabater/EcommerceCPF-sub000/internal/domain"
	"github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/database"
	apperrors "github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/errors"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func setupOrderRepo(t *testing.T) (*OrderRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewOrderRepository(mock), mock
}

func sampleSubmission() domain.Submission {
	return domain.Submission{
		CustomerID: "C-100",
		Note:       "deliver before friday",
		Lines: []domain.SubmissionLine{
			{ProductCode: "P-1", Quantity: 2, UnitPrice: decimal.NewFromInt(80000), Note: "black"},
			{ProductCode: "P-2", Quantity: 1, UnitPrice: decimal.NewFromInt(40000)},
		},
	}
}

func expectSeller(mock pgxmock.PgxPoolIface, customerID, sellerID string) {
	mock.ExpectQuery("SELECT seller_id FROM customers").
		WithArgs(customerID).
		WillReturnRows(pgxmock.NewRows([]string{"seller_id"}).AddRow(sellerID))
}

func expectProduct(mock pgxmock.PgxPoolIface, code string, exists bool) {
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(code).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(exists))
}

func expectItem(mock pgxmock.PgxPoolIface, orderID int64, line domain.SubmissionLine, itemID int64) {
	mock.ExpectQuery("INSERT INTO preliminary_order_items").
		WithArgs(orderID, line.ProductCode, line.Quantity, line.UnitPrice.String()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(itemID))
}

// ---------------------------------------------------------------------------
// Submit
// ---------------------------------------------------------------------------

func TestOrderRepository_Submit_Success(t *testing.T) {
	repo, mock := setupOrderRepo(t)
	sub := sampleSubmission()

	mock.ExpectBegin()
	expectSeller(mock, "C-100", "S-7")
	mock.ExpectQuery("INSERT INTO preliminary_orders").
		WithArgs("C-100", "S-7", "deliver before friday").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))
	expectProduct(mock, "P-1", true)
	expectItem(mock, 42, sub.Lines[0], 501)
	mock.ExpectExec("INSERT INTO preliminary_order_item_notes").
		WithArgs(int64(501), "black").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	expectProduct(mock, "P-2", true)
	expectItem(mock, 42, sub.Lines[1], 502)
	mock.ExpectCommit()

	id, err := repo.Submit(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_Submit_UnknownProductRollsBack(t *testing.T) {
	repo, mock := setupOrderRepo(t)
	sub := domain.Submission{
		CustomerID: "C-100",
		Lines: []domain.SubmissionLine{
			{ProductCode: "P-1", Quantity: 1, UnitPrice: decimal.NewFromInt(10)},
			{ProductCode: "P-2", Quantity: 1, UnitPrice: decimal.NewFromInt(20)},
			{ProductCode: "P-3", Quantity: 1, UnitPrice: decimal.NewFromInt(30)},
			{ProductCode: "GHOST", Quantity: 1, UnitPrice: decimal.NewFromInt(40)},
		},
	}

	mock.ExpectBegin()
	expectSeller(mock, "C-100", "S-7")
	mock.ExpectQuery("INSERT INTO preliminary_orders").
		WithArgs("C-100", "S-7", "").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(9)))
	for i, line := range sub.Lines[:3] {
		expectProduct(mock, line.ProductCode, true)
		expectItem(mock, 9, line, int64(100+i))
	}
	expectProduct(mock, "GHOST", false)
	mock.ExpectRollback()

	id, err := repo.Submit(context.Background(), sub)
	require.Error(t, err)
	assert.Zero(t, id)
	assert.True(t, apperrors.IsReferential(err))
	assert.Contains(t, err.Error(), "GHOST")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_Submit_UnknownCustomerWritesNothing(t *testing.T) {
	repo, mock := setupOrderRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT seller_id FROM customers").
		WithArgs("C-100").
		WillReturnRows(pgxmock.NewRows([]string{"seller_id"}))
	mock.ExpectRollback()

	id, err := repo.Submit(context.Background(), sampleSubmission())
	require.Error(t, err)
	assert.Zero(t, id)
	assert.True(t, apperrors.IsReferential(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_Submit_BeginFailureIsTransient(t *testing.T) {
	repo, mock := setupOrderRepo(t)

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	_, err := repo.Submit(context.Background(), sampleSubmission())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_Submit_ItemInsertFailureRollsBack(t *testing.T) {
	repo, mock := setupOrderRepo(t)
	sub := sampleSubmission()

	mock.ExpectBegin()
	expectSeller(mock, "C-100", "S-7")
	mock.ExpectQuery("INSERT INTO preliminary_orders").
		WithArgs("C-100", "S-7", "deliver before friday").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))
	expectProduct(mock, "P-1", true)
	mock.ExpectQuery("INSERT INTO preliminary_order_items").
		WithArgs(int64(42), "P-1", 2, "80000").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	id, err := repo.Submit(context.Background(), sub)
	require.Error(t, err)
	assert.Zero(t, id)
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_Submit_CommitFailure(t *testing.T) {
	repo, mock := setupOrderRepo(t)
	sub := sampleSubmission()
	sub.Lines = sub.Lines[1:]

	mock.ExpectBegin()
	expectSeller(mock, "C-100", "S-7")
	mock.ExpectQuery("INSERT INTO preliminary_orders").
		WithArgs("C-100", "S-7", "deliver before friday").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))
	expectProduct(mock, "P-2", true)
	expectItem(mock, 42, sub.Lines[0], 77)
	mock.ExpectCommit().WillReturnError(errors.New("connection lost"))

	id, err := repo.Submit(context.Background(), sub)
	require.Error(t, err)
	assert.Zero(t, id)
	assert.Contains(t, err.Error(), "commit transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// GetByID
// ---------------------------------------------------------------------------

func TestOrderRepository_GetByID(t *testing.T) {
	repo, mock := setupOrderRepo(t)
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	noteID := int64(900)
	noteText := "black"

	mock.ExpectQuery("FROM preliminary_orders").
		WithArgs(int64(42)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "customer_id", "seller_id", "note", "created_at"}).
			AddRow(int64(42), "C-100", "S-7", "urgent", created))
	mock.ExpectQuery("FROM preliminary_order_items").
		WithArgs(int64(42)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "product_code", "quantity_requested", "unit_price", "note_id", "note_text"}).
			AddRow(int64(501), "P-1", 2, "80000", &noteID, &noteText).
			AddRow(int64(502), "P-2", 1, "40000.50", (*int64)(nil), (*string)(nil)))

	order, err := repo.GetByID(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, "S-7", order.SellerID)
	assert.Equal(t, "urgent", order.Note)
	assert.Equal(t, created, order.CreatedAt)
	require.Len(t, order.Items, 2)

	assert.Equal(t, int64(42), order.Items[0].OrderID)
	require.NotNil(t, order.Items[0].Annotation)
	assert.Equal(t, "black", order.Items[0].Annotation.Text)
	assert.Equal(t, int64(501), order.Items[0].Annotation.LineItemID)

	assert.Nil(t, order.Items[1].Annotation)
	assert.True(t, decimal.RequireFromString("40000.50").Equal(order.Items[1].UnitPrice))
	assert.True(t, decimal.RequireFromString("200000.50").Equal(order.Total()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := setupOrderRepo(t)

	mock.ExpectQuery("FROM preliminary_orders").
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "customer_id", "seller_id", "note", "created_at"}))

	_, err := repo.GetByID(context.Background(), 7)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
