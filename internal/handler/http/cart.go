package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JoaquinSabater/EcommerceCPF-sub000/internal/cart"
	"github.com/JoaquinSabater/EcommerceCPF-sub000/internal/service"
	"github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/httputil"
	"github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/logger"
	"github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/validator"
)

const maxBodyBytes = 1 << 20

// CartHandler handles HTTP requests for cart and quote endpoints.
type CartHandler struct {
	service *service.StorefrontService
	logger  *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(svc *service.StorefrontService, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// AddLineRequest is the JSON request body for adding a product to a cart.
type AddLineRequest struct {
	ProductCode string `json:"product_code" validate:"required,max=64"`
	Quantity    int    `json:"quantity" validate:"gte=0"`
	Note        string `json:"note" validate:"max=1000"`
}

// AdjustQuantityRequest is the JSON request body for a relative quantity change.
type AdjustQuantityRequest struct {
	Delta int `json:"delta"`
}

// SetQuantityRequest is the JSON request body for an absolute quantity.
type SetQuantityRequest struct {
	Quantity int `json:"quantity" validate:"gte=0"`
}

// UpdateNoteRequest is the JSON request body for a line note.
type UpdateNoteRequest struct {
	Note string `json:"note" validate:"max=1000"`
}

// CheckoutRequest is the JSON request body for checking out a cart.
type CheckoutRequest struct {
	CustomerID string `json:"customer_id" validate:"required,max=64"`
	Note       string `json:"note" validate:"max=2000"`
}

type linesResponse struct {
	Lines []cart.Line `json:"lines"`
}

type warningsResponse struct {
	Warnings []cart.StockWarning `json:"warnings"`
}

// decode reads and validates a JSON body, writing the error response itself.
func (h *CartHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	return decodeBody(w, r, dst, h.logger)
}

// decodeBody answers 400 VALIDATION_ERROR for failed field rules and a plain
// 400 for bodies that are not valid JSON for dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, l *slog.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := validator.DecodeAndValidate(r, dst)
	if err == nil {
		return true
	}
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		httputil.WriteError(w, r, err, l)
	} else {
		httputil.WriteBadRequest(w, r, err)
	}
	return false
}

// customerID reads the pricing customer from ?customer_id= or the
// X-Customer-ID header.
func customerID(r *http.Request) string {
	if id := r.URL.Query().Get("customer_id"); id != "" {
		return id
	}
	return logger.CustomerIDFromContext(r.Context())
}

func (h *CartHandler) writeLines(w http.ResponseWriter, r *http.Request, lines []cart.Line, err error) {
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if lines == nil {
		lines = []cart.Line{}
	}
	httputil.WriteData(w, http.StatusOK, linesResponse{Lines: lines})
}

// --- Handlers ---

// GetCart handles GET /api/v1/carts/{session}
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.View(r.Context(), chi.URLParam(r, "session"), customerID(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, view)
}

// AddLine handles POST /api/v1/carts/{session}/lines
func (h *CartHandler) AddLine(w http.ResponseWriter, r *http.Request) {
	var req AddLineRequest
	if !h.decode(w, r, &req) {
		return
	}
	lines, err := h.service.AddLine(r.Context(), chi.URLParam(r, "session"), req.ProductCode, req.Quantity, req.Note)
	h.writeLines(w, r, lines, err)
}

// RemoveOneUnit handles POST /api/v1/carts/{session}/lines/{code}/decrement
func (h *CartHandler) RemoveOneUnit(w http.ResponseWriter, r *http.Request) {
	lines, err := h.service.RemoveOneUnit(r.Context(), chi.URLParam(r, "session"), chi.URLParam(r, "code"))
	h.writeLines(w, r, lines, err)
}

// AdjustQuantity handles PATCH /api/v1/carts/{session}/lines/{code}
func (h *CartHandler) AdjustQuantity(w http.ResponseWriter, r *http.Request) {
	var req AdjustQuantityRequest
	if !h.decode(w, r, &req) {
		return
	}
	lines, err := h.service.AdjustQuantity(r.Context(), chi.URLParam(r, "session"), chi.URLParam(r, "code"), req.Delta)
	h.writeLines(w, r, lines, err)
}

// SetQuantity handles PUT /api/v1/carts/{session}/lines/{code}
func (h *CartHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	var req SetQuantityRequest
	if !h.decode(w, r, &req) {
		return
	}
	lines, err := h.service.SetQuantity(r.Context(), chi.URLParam(r, "session"), chi.URLParam(r, "code"), req.Quantity)
	h.writeLines(w, r, lines, err)
}

// UpdateNote handles PUT /api/v1/carts/{session}/lines/{code}/note
func (h *CartHandler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var req UpdateNoteRequest
	if !h.decode(w, r, &req) {
		return
	}
	lines, err := h.service.UpdateNote(r.Context(), chi.URLParam(r, "session"), chi.URLParam(r, "code"), req.Note)
	h.writeLines(w, r, lines, err)
}

// ClearCart handles DELETE /api/v1/carts/{session}
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Clear(r.Context(), chi.URLParam(r, "session")); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RefreshStock handles POST /api/v1/carts/{session}/refresh-stock
func (h *CartHandler) RefreshStock(w http.ResponseWriter, r *http.Request) {
	warnings, err := h.service.RefreshStock(r.Context(), chi.URLParam(r, "session"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, warningsResponse{Warnings: warnings})
}

// Checkout handles POST /api/v1/carts/{session}/checkout
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.Checkout(r.Context(), chi.URLParam(r, "session"), req.CustomerID, req.Note)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, res)
}

// RefreshRates handles POST /api/v1/rates/refresh
func (h *CartHandler) RefreshRates(w http.ResponseWriter, r *http.Request) {
	h.service.RefreshRates(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// GetQuote handles GET /api/v1/quotes/{code}
func (h *CartHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	q, err := h.service.Quote(r.Context(), chi.URLParam(r, "code"), customerID(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, q)
}
