package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/JoaquinSabater/EcommerceCPF-sub000/internal/domain"
	"github.com/JoaquinSabater/EcommerceCPF-sub000/internal/repository"
	apperrors "github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/errors"
	"github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/validator"
)

var orderSubmissions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_order_submissions_total",
		Help: "Preliminary order submissions by result",
	},
	[]string{"result"},
)

// OrderEvents announces committed orders. *event.Producer satisfies it.
type OrderEvents interface {
	PublishOrderSubmitted(ctx context.Context, orderID int64, sub domain.Submission) error
}

// OrderService implements order submission and lookup.
type OrderService struct {
	repo   repository.OrderRepository
	events OrderEvents
	logger *slog.Logger
}

// NewOrderService creates a new order service.
func NewOrderService(repo repository.OrderRepository, events OrderEvents, logger *slog.Logger) *OrderService {
	return &OrderService{
		repo:   repo,
		events: events,
		logger: logger,
	}
}

// SubmitOrder validates sub and persists it as a preliminary order. Unit
// prices are stored exactly as given.
func (s *OrderService) SubmitOrder(ctx context.Context, sub domain.Submission) (int64, error) {
	if err := validator.Validate(sub); err != nil {
		orderSubmissions.WithLabelValues("invalid").Inc()
		return 0, err
	}
	for i, l := range sub.Lines {
		if l.UnitPrice.IsNegative() {
			orderSubmissions.WithLabelValues("invalid").Inc()
			return 0, apperrors.InvalidInput(fmt.Sprintf("lines[%d].unit_price must not be negative", i))
		}
	}

	id, err := s.repo.Submit(ctx, sub)
	if err != nil {
		orderSubmissions.WithLabelValues(submissionResult(err)).Inc()
		return 0, fmt.Errorf("submit order: %w", err)
	}
	orderSubmissions.WithLabelValues("submitted").Inc()

	if err := s.events.PublishOrderSubmitted(ctx, id, sub); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order submitted event",
			slog.Int64("order_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "preliminary order submitted",
		slog.Int64("order_id", id),
		slog.String("customer_id", sub.CustomerID),
		slog.Int("lines", len(sub.Lines)),
	)
	return id, nil
}

func submissionResult(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrReferential):
		return "unknown_reference"
	case errors.Is(err, apperrors.ErrServiceUnavail):
		return "unavailable"
	default:
		return "failed"
	}
}

// GetOrder reads back a submitted order.
func (s *OrderService) GetOrder(ctx context.Context, id int64) (*domain.PreliminaryOrder, error) {
	if id <= 0 {
		return nil, apperrors.InvalidInput("order id must be positive")
	}
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order by id: %w", err)
	}
	return order, nil
}
