package event

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/JoaquinSabater/EcommerceCPF-sub000/internal/domain"
	pkgkafka "github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/kafka"
	"github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/logger"
)

// TopicOrderSubmitted carries every preliminary order accepted by the store.
const TopicOrderSubmitted = "storefront.preliminary_order.submitted"

// AggregateTypeOrder is the aggregate type of order events.
const AggregateTypeOrder = "preliminary_order"

// SourceStorefront identifies events originating from this service.
const SourceStorefront = "storefront-service"

// OrderSubmittedData is the payload of a preliminary_order.submitted event.
type OrderSubmittedData struct {
	OrderID    int64           `json:"order_id"`
	CustomerID string          `json:"customer_id"`
	Note       string          `json:"note,omitempty"`
	Lines      []OrderLineData `json:"lines"`
	Total      decimal.Decimal `json:"total"`
}

// OrderLineData is one line of an OrderSubmittedData payload.
type OrderLineData struct {
	ProductCode string          `json:"product_code"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Note        string          `json:"note,omitempty"`
}

// Publisher is satisfied by *pkgkafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes storefront domain events.
type Producer struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(publisher Publisher, logger *slog.Logger) *Producer {
	return &Producer{publisher: publisher, logger: logger}
}

// PublishOrderSubmitted announces a committed preliminary order.
func (p *Producer) PublishOrderSubmitted(ctx context.Context, orderID int64, sub domain.Submission) error {
	data := OrderSubmittedData{
		OrderID:    orderID,
		CustomerID: sub.CustomerID,
		Note:       sub.Note,
		Lines:      make([]OrderLineData, len(sub.Lines)),
		Total:      decimal.Zero,
	}
	for i, l := range sub.Lines {
		data.Lines[i] = OrderLineData{
			ProductCode: l.ProductCode,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Note:        l.Note,
		}
		data.Total = data.Total.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}

	aggregateID := strconv.FormatInt(orderID, 10)
	evt, err := pkgkafka.NewEvent(TopicOrderSubmitted, aggregateID, AggregateTypeOrder, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create order submitted event: %w", err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		evt.WithCorrelationID(id)
	}

	if err := p.publisher.Publish(ctx, TopicOrderSubmitted, evt); err != nil {
		return fmt.Errorf("publish order submitted event: %w", err)
	}

	p.logger.DebugContext(ctx, "published order submitted event",
		slog.Int64("order_id", orderID),
		slog.String("customer_id", sub.CustomerID),
	)
	return nil
}
