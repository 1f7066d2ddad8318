package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/JoaquinSabater/EcommerceCPF-sub000/internal/cart"
	"github.com/JoaquinSabater/EcommerceCPF-sub000/internal/domain"
	"github.com/JoaquinSabater/EcommerceCPF-sub000/internal/pricing"
	"github.com/JoaquinSabater/EcommerceCPF-sub000/internal/repository"
	apperrors "github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/errors"
)

// RateSource returns the exchange rate of a context. *pricing.RateBook
// satisfies it.
type RateSource interface {
	Rate(ctx context.Context, rc pricing.RateContext) decimal.Decimal
	Invalidate()
}

// StorefrontService ties carts, the catalog, pricing and order submission
// together for the HTTP layer.
type StorefrontService struct {
	carts     *cart.Registry
	catalog   repository.CatalogRepository
	customers repository.CustomerRepository
	pipeline  *pricing.Pipeline
	rates     RateSource
	orders    *OrderService
	logger    *slog.Logger
}

// NewStorefrontService creates a new storefront service.
func NewStorefrontService(
	carts *cart.Registry,
	catalog repository.CatalogRepository,
	customers repository.CustomerRepository,
	pipeline *pricing.Pipeline,
	rates RateSource,
	orders *OrderService,
	logger *slog.Logger,
) *StorefrontService {
	return &StorefrontService{
		carts:     carts,
		catalog:   catalog,
		customers: customers,
		pipeline:  pipeline,
		rates:     rates,
		orders:    orders,
		logger:    logger,
	}
}

// LineView is a cart line with its current price. Quote is nil when the
// product is no longer in the catalog.
type LineView struct {
	cart.Line
	Quote     *pricing.Quote   `json:"quote,omitempty"`
	LineTotal *decimal.Decimal `json:"line_total,omitempty"`
}

// CartView is a priced cart.
type CartView struct {
	Session  string              `json:"session"`
	Lines    []LineView          `json:"lines"`
	Warnings []cart.StockWarning `json:"warnings"`
	Total    decimal.Decimal     `json:"total"`
	Units    int                 `json:"units"`
}

// ProductQuote is the price of one product for one customer.
type ProductQuote struct {
	ProductCode string              `json:"product_code"`
	CustomerID  string              `json:"customer_id,omitempty"`
	RateContext pricing.RateContext `json:"rate_context"`
	Quote       pricing.Quote       `json:"quote"`
}

// CheckoutResult is the outcome of a successful checkout.
type CheckoutResult struct {
	OrderID  int64               `json:"order_id"`
	Total    decimal.Decimal     `json:"total"`
	Lines    int                 `json:"lines"`
	Warnings []cart.StockWarning `json:"warnings"`
}

func (s *StorefrontService) quote(ctx context.Context, p domain.Product, isDistributor bool) (pricing.RateContext, pricing.Quote) {
	rc := s.pipeline.RateContextFor(p.Category)
	rate := s.rates.Rate(ctx, rc)
	return rc, s.pipeline.Quote(s.pipeline.InputFor(p, isDistributor, rate))
}

// isDistributor resolves the pricing tier of customerID. An empty id prices
// at the retail tier.
func (s *StorefrontService) isDistributor(ctx context.Context, customerID string) (bool, error) {
	if customerID == "" {
		return false, nil
	}
	c, err := s.customers.GetCustomer(ctx, customerID)
	if err != nil {
		return false, fmt.Errorf("get customer: %w", err)
	}
	return c.IsDistributor, nil
}

// View returns the cart of session priced for customerID.
func (s *StorefrontService) View(ctx context.Context, session, customerID string) (*CartView, error) {
	m, err := s.carts.Get(ctx, session)
	if err != nil {
		return nil, err
	}
	distributor, err := s.isDistributor(ctx, customerID)
	if err != nil {
		return nil, err
	}

	lines, err := m.Lines(ctx)
	if err != nil {
		return nil, err
	}
	warnings, err := m.StockWarnings(ctx)
	if err != nil {
		return nil, err
	}

	view := &CartView{
		Session:  session,
		Lines:    make([]LineView, 0, len(lines)),
		Warnings: nonNil(warnings),
		Total:    decimal.Zero,
	}
	for _, l := range lines {
		lv := LineView{Line: l}
		view.Units += l.Quantity

		p, err := s.catalog.LookupProduct(ctx, l.ProductCode)
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			s.logger.WarnContext(ctx, "cart line references a product missing from the catalog",
				slog.String("product_code", l.ProductCode),
			)
		case err != nil:
			return nil, fmt.Errorf("lookup product %s: %w", l.ProductCode, err)
		default:
			_, q := s.quote(ctx, *p, distributor)
			total := q.LineTotal(l.Quantity)
			lv.Quote = &q
			lv.LineTotal = &total
			view.Total = view.Total.Add(total)
		}
		view.Lines = append(view.Lines, lv)
	}
	return view, nil
}

func nonNil(w []cart.StockWarning) []cart.StockWarning {
	if w == nil {
		return []cart.StockWarning{}
	}
	return w
}

// AddLine adds qty units of the catalog product code to the cart.
func (s *StorefrontService) AddLine(ctx context.Context, session, code string, qty int, note string) ([]cart.Line, error) {
	m, err := s.carts.Get(ctx, session)
	if err != nil {
		return nil, err
	}
	p, err := s.catalog.LookupProduct(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("lookup product: %w", err)
	}
	return m.AddLine(ctx, *p, qty, note)
}

// RemoveOneUnit takes one unit of code out of the cart.
func (s *StorefrontService) RemoveOneUnit(ctx context.Context, session, code string) ([]cart.Line, error) {
	m, err := s.carts.Get(ctx, session)
	if err != nil {
		return nil, err
	}
	return m.RemoveOneUnit(ctx, code)
}

// AdjustQuantity moves the quantity of code by delta.
func (s *StorefrontService) AdjustQuantity(ctx context.Context, session, code string, delta int) ([]cart.Line, error) {
	m, err := s.carts.Get(ctx, session)
	if err != nil {
		return nil, err
	}
	return m.AdjustQuantity(ctx, code, delta)
}

// SetQuantity sets the quantity of code. A product not yet in the cart is
// looked up and inserted when qty is positive.
func (s *StorefrontService) SetQuantity(ctx context.Context, session, code string, qty int) ([]cart.Line, error) {
	m, err := s.carts.Get(ctx, session)
	if err != nil {
		return nil, err
	}
	lines, err := m.Lines(ctx)
	if err != nil {
		return nil, err
	}

	var insert *domain.Product
	if qty > 0 && !hasLine(lines, code) {
		if insert, err = s.catalog.LookupProduct(ctx, code); err != nil {
			return nil, fmt.Errorf("lookup product: %w", err)
		}
	}
	return m.SetQuantity(ctx, code, qty, insert)
}

func hasLine(lines []cart.Line, code string) bool {
	for _, l := range lines {
		if l.ProductCode == code {
			return true
		}
	}
	return false
}

// UpdateNote replaces the note of code.
func (s *StorefrontService) UpdateNote(ctx context.Context, session, code, text string) ([]cart.Line, error) {
	m, err := s.carts.Get(ctx, session)
	if err != nil {
		return nil, err
	}
	return m.UpdateNote(ctx, code, text)
}

// RefreshStock re-reads the stock of every line from the catalog. Products
// that have left the catalog are recorded with no stock.
func (s *StorefrontService) RefreshStock(ctx context.Context, session string) ([]cart.StockWarning, error) {
	m, err := s.carts.Get(ctx, session)
	if err != nil {
		return nil, err
	}
	lines, err := m.Lines(ctx)
	if err != nil {
		return nil, err
	}

	codes := make([]string, len(lines))
	for i, l := range lines {
		codes[i] = l.ProductCode
	}
	levels, err := s.catalog.StockLevels(ctx, codes)
	if err != nil {
		return nil, fmt.Errorf("read stock levels: %w", err)
	}
	for _, c := range codes {
		if _, ok := levels[c]; !ok {
			levels[c] = 0
		}
	}

	if _, err := m.RefreshStock(ctx, levels); err != nil {
		return nil, err
	}
	warnings, err := m.StockWarnings(ctx)
	if err != nil {
		return nil, err
	}
	return nonNil(warnings), nil
}

// Clear empties the cart.
func (s *StorefrontService) Clear(ctx context.Context, session string) error {
	m, err := s.carts.Get(ctx, session)
	if err != nil {
		return err
	}
	return m.Clear(ctx)
}

// Quote prices one product for customerID.
func (s *StorefrontService) Quote(ctx context.Context, code, customerID string) (*ProductQuote, error) {
	p, err := s.catalog.LookupProduct(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("lookup product: %w", err)
	}
	distributor, err := s.isDistributor(ctx, customerID)
	if err != nil {
		return nil, err
	}
	rc, q := s.quote(ctx, *p, distributor)
	return &ProductQuote{ProductCode: p.Code, CustomerID: customerID, RateContext: rc, Quote: q}, nil
}

// RefreshRates drops the cached exchange rates; the next quote of each
// context fetches again.
func (s *StorefrontService) RefreshRates(ctx context.Context) {
	s.rates.Invalidate()
	s.logger.InfoContext(ctx, "exchange rates invalidated")
}

// Checkout prices every cart line in local currency, submits the result as a
// preliminary order and takes the submitted units out of the cart. Units added
// while the order was being submitted stay. Stock warnings do not block it.
func (s *StorefrontService) Checkout(ctx context.Context, session, customerID, note string) (*CheckoutResult, error) {
	if customerID == "" {
		return nil, apperrors.InvalidInput("customer_id is required")
	}
	m, err := s.carts.Get(ctx, session)
	if err != nil {
		return nil, err
	}
	lines, err := m.Lines(ctx)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, apperrors.InvalidInput("cart is empty")
	}
	warnings, err := m.StockWarnings(ctx)
	if err != nil {
		return nil, err
	}

	c, err := s.customers.GetCustomer(ctx, customerID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.Referential("customer", customerID)
	}
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}

	sub := domain.Submission{
		CustomerID: customerID,
		Note:       note,
		Lines:      make([]domain.SubmissionLine, 0, len(lines)),
	}
	total := decimal.Zero
	for _, l := range lines {
		p, err := s.catalog.LookupProduct(ctx, l.ProductCode)
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Referential("product", l.ProductCode)
		}
		if err != nil {
			return nil, fmt.Errorf("lookup product %s: %w", l.ProductCode, err)
		}
		_, q := s.quote(ctx, *p, c.IsDistributor)
		sub.Lines = append(sub.Lines, domain.SubmissionLine{
			ProductCode: l.ProductCode,
			Quantity:    l.Quantity,
			UnitPrice:   q.UnitAmountLocal,
			Note:        l.Note,
		})
		total = total.Add(q.LineTotal(l.Quantity))
	}

	id, err := s.orders.SubmitOrder(ctx, sub)
	if err != nil {
		return nil, err
	}

	submitted := make(map[string]int, len(sub.Lines))
	for _, l := range sub.Lines {
		submitted[l.ProductCode] = l.Quantity
	}
	if _, err := m.Deduct(ctx, submitted); err != nil {
		s.logger.ErrorContext(ctx, "failed to deduct checked out lines from cart",
			slog.Int64("order_id", id),
			slog.String("error", err.Error()),
		)
	}

	return &CheckoutResult{OrderID: id, Total: total, Lines: len(sub.Lines), Warnings: nonNil(warnings)}, nil
}
