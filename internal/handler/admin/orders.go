package admin

import (
	"context"
	"net/http"

	"github.com/gamemart/ledger/internal/domain"
	"github.com/gamemart/ledger/internal/handler"
	"github.com/google/uuid"
)

// OrderAdmin is the admin order surface.
type OrderAdmin interface {
	UpdateStatus(ctx context.Context, adminID, orderID uuid.UUID, rawStatus string) (*domain.Order, error)
	Refund(ctx context.Context, adminID, orderID uuid.UUID, reason string) (*domain.Order, error)
}

// OrderAdminHandler handles admin order status overrides and refunds.
type OrderAdminHandler struct {
	orders OrderAdmin
}

// NewOrderAdminHandler creates a new OrderAdminHandler.
func NewOrderAdminHandler(orders OrderAdmin) *OrderAdminHandler {
	return &OrderAdminHandler{orders: orders}
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus handles PATCH /admin/orders/{id}/status.
func (h *OrderAdminHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	adminID, orderID, ok := adminAndTarget(w, r)
	if !ok {
		return
	}

	var req statusRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), adminID, orderID, req.Status)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, order)
}

type refundRequest struct {
	Reason string `json:"reason"`
}

// Refund handles POST /admin/orders/{id}/refund.
func (h *OrderAdminHandler) Refund(w http.ResponseWriter, r *http.Request) {
	adminID, orderID, ok := adminAndTarget(w, r)
	if !ok {
		return
	}

	var req refundRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}

	order, err := h.orders.Refund(r.Context(), adminID, orderID, req.Reason)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, order)
}

// adminAndTarget resolves the acting admin and the {id} URL parameter,
// writing the error response itself when either is missing.
func adminAndTarget(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	adminID, err := handler.UserIDFromRequest(r)
	if err != nil {
		handler.RespondError(w, err)
		return uuid.Nil, uuid.Nil, false
	}
	id, err := handler.URLUUID(r, "id")
	if err != nil {
		handler.RespondError(w, err)
		return uuid.Nil, uuid.Nil, false
	}
	return adminID, id, true
}
