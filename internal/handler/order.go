package handler

import (
	"context"
	"net/http"

	"github.com/gamemart/ledger/internal/domain"
	"github.com/gamemart/ledger/internal/repository"
	"github.com/gamemart/ledger/internal/service"
	"github.com/google/uuid"
)

// OrderService is the order surface used by OrderHandler.
type OrderService interface {
	CreateOrder(ctx context.Context, in service.CheckoutInput) (*domain.Order, error)
	GetOrder(ctx context.Context, userID uuid.UUID, role domain.Role, orderID uuid.UUID) (*domain.Order, error)
	ListCustomerOrders(ctx context.Context, customerID uuid.UUID, page repository.Page) ([]domain.Order, error)
	ListResellerOrders(ctx context.Context, resellerID uuid.UUID, rawStatus string, page repository.Page) ([]domain.Order, error)
	ProcessOrder(ctx context.Context, resellerID, orderID uuid.UUID) (*domain.Order, error)
	BulkProcess(ctx context.Context, resellerID uuid.UUID, orderIDs []uuid.UUID, rawAction string) (*domain.BulkResult, error)
}

// OrderHandler handles customer checkout and reseller fulfilment.
type OrderHandler struct {
	orders OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orders OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// CreateOrder handles POST /orders.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, err := UserIDFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var in service.CheckoutInput
	if err := decodeBody(r, &in); err != nil {
		RespondError(w, err)
		return
	}
	in.CustomerID = userID

	order, err := h.orders.CreateOrder(r.Context(), in)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, order)
}

// ListOrders handles GET /orders.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, err := UserIDFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	orders, err := h.orders.ListCustomerOrders(r.Context(), userID, PageFromQuery(r))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, orders)
}

// GetOrder handles GET /orders/{id}.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, role, err := callerFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	orderID, err := URLUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}

	order, err := h.orders.GetOrder(r.Context(), userID, role, orderID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, order)
}

// ListResellerOrders handles GET /reseller/orders?status=.
func (h *OrderHandler) ListResellerOrders(w http.ResponseWriter, r *http.Request) {
	resellerID, err := UserIDFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	orders, err := h.orders.ListResellerOrders(r.Context(), resellerID, r.URL.Query().Get("status"), PageFromQuery(r))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, orders)
}

// ProcessOrder handles POST /reseller/orders/{id}/process.
func (h *OrderHandler) ProcessOrder(w http.ResponseWriter, r *http.Request) {
	resellerID, err := UserIDFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	orderID, err := URLUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}

	order, err := h.orders.ProcessOrder(r.Context(), resellerID, orderID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, order)
}

type bulkRequest struct {
	OrderIDs []uuid.UUID `json:"order_ids"`
	Action   string      `json:"action"`
}

// BulkProcess handles POST /reseller/orders/bulk.
func (h *OrderHandler) BulkProcess(w http.ResponseWriter, r *http.Request) {
	resellerID, err := UserIDFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var req bulkRequest
	if err := decodeBody(r, &req); err != nil {
		RespondError(w, err)
		return
	}

	result, err := h.orders.BulkProcess(r.Context(), resellerID, req.OrderIDs, req.Action)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, result)
}
