package postgres

import (
	"context"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/database"
	apperrors "github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/errors"
)

func setupCustomerRepo(t *testing.T) (*CustomerRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewCustomerRepository(mock), mock
}

func TestCustomerRepository_GetCustomer(t *testing.T) {
	repo, mock := setupCustomerRepo(t)

	mock.ExpectQuery("FROM customers").
		WithArgs("C-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "seller_id", "is_distributor"}).
			AddRow("C-1", "S-1", true))

	c, err := repo.GetCustomer(context.Background(), "C-1")
	require.NoError(t, err)
	assert.Equal(t, "S-1", c.SellerID)
	assert.True(t, c.IsDistributor)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCustomerRepository_GetCustomer_NotFound(t *testing.T) {
	repo, mock := setupCustomerRepo(t)

	mock.ExpectQuery("FROM customers").
		WithArgs("C-9").
		WillReturnRows(pgxmock.NewRows([]string{"id", "seller_id", "is_distributor"}))

	_, err := repo.GetCustomer(context.Background(), "C-9")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCustomerRepository_ResolveSeller(t *testing.T) {
	repo, mock := setupCustomerRepo(t)

	expectSeller(mock, "C-1", "S-3")

	seller, err := repo.ResolveSeller(context.Background(), "C-1")
	require.NoError(t, err)
	assert.Equal(t, "S-3", seller)
}

func TestCustomerRepository_ResolveSeller_Unknown(t *testing.T) {
	repo, mock := setupCustomerRepo(t)

	mock.ExpectQuery("SELECT seller_id FROM customers").
		WithArgs("C-9").
		WillReturnRows(pgxmock.NewRows([]string{"seller_id"}))

	_, err := repo.ResolveSeller(context.Background(), "C-9")
	assert.True(t, apperrors.IsReferential(err))
}
