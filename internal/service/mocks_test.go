package service

import (
	"context"
	"io"
	"log/slog"

	"github.com/stretchr/testify/mock"

	"github.com/JoaquinSabater/EcommerceCPF-sub000/internal/domain"
)

// --- Mock Repositories ---

type mockOrderRepository struct {
	mock.Mock
}

func (m *mockOrderRepository) Submit(ctx context.Context, sub domain.Submission) (int64, error) {
	args := m.Called(ctx, sub)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockOrderRepository) GetByID(ctx context.Context, id int64) (*domain.PreliminaryOrder, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PreliminaryOrder), args.Error(1)
}

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) LookupProduct(ctx context.Context, code string) (*domain.Product, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *mockCatalog) StockLevels(ctx context.Context, codes []string) (map[string]int, error) {
	args := m.Called(ctx, codes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int), args.Error(1)
}

type mockCustomers struct {
	mock.Mock
}

func (m *mockCustomers) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Customer), args.Error(1)
}

func (m *mockCustomers) ResolveSeller(ctx context.Context, customerID string) (string, error) {
	args := m.Called(ctx, customerID)
	return args.String(0), args.Error(1)
}

// --- Mock Events ---

type mockOrderEvents struct {
	mock.Mock
}

func (m *mockOrderEvents) PublishOrderSubmitted(ctx context.Context, orderID int64, sub domain.Submission) error {
	args := m.Called(ctx, orderID, sub)
	return args.Error(0)
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
