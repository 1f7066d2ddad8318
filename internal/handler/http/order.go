package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JoaquinSabater/EcommerceCPF-sub000/internal/domain"
	"github.com/JoaquinSabater/EcommerceCPF-sub000/internal/service"
	"github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/httputil"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	service *service.OrderService
	logger  *slog.Logger
}

// NewOrderHandler creates a new order HTTP handler.
func NewOrderHandler(svc *service.OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		service: svc,
		logger:  logger,
	}
}

type submitOrderResponse struct {
	OrderID int64 `json:"order_id"`
}

// SubmitOrder handles POST /api/v1/orders
func (h *OrderHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var sub domain.Submission
	if !decodeBody(w, r, &sub, h.logger) {
		return
	}

	id, err := h.service.SubmitOrder(r.Context(), sub)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, submitOrderResponse{OrderID: id})
}

// GetOrder handles GET /api/v1/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, order)
}
