package admin

import (
	"context"
	"net/http"

	"github.com/gamemart/ledger/internal/handler"
	"github.com/gamemart/ledger/internal/service"
	"github.com/go-chi/chi/v5"
)

// PaymentReader loads a payment with its audit trail.
type PaymentReader interface {
	GetPayment(ctx context.Context, paymentID string) (*service.PaymentDetail, error)
}

// PaymentAdminHandler exposes payment audit trails to admins.
type PaymentAdminHandler struct {
	payments PaymentReader
}

// NewPaymentAdminHandler creates a new PaymentAdminHandler.
func NewPaymentAdminHandler(payments PaymentReader) *PaymentAdminHandler {
	return &PaymentAdminHandler{payments: payments}
}

// GetPayment handles GET /admin/payments/{paymentId}.
func (h *PaymentAdminHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	detail, err := h.payments.GetPayment(r.Context(), chi.URLParam(r, "paymentId"))
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, detail)
}
