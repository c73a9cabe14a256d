package handler

import (
	"context"
	"net/http"

	"github.com/gamemart/ledger/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MarkupSetter writes reseller markups.
type MarkupSetter interface {
	SetMarkup(ctx context.Context, resellerID, productID uuid.UUID, markup decimal.Decimal) (*domain.ResellerProduct, error)
}

// ResellerHandler handles reseller store settings.
type ResellerHandler struct {
	resellers MarkupSetter
}

// NewResellerHandler creates a new ResellerHandler.
func NewResellerHandler(resellers MarkupSetter) *ResellerHandler {
	return &ResellerHandler{resellers: resellers}
}

type markupRequest struct {
	Markup decimal.Decimal `json:"markup"`
}

// SetMarkup handles PUT /reseller/products/{productId}/markup.
func (h *ResellerHandler) SetMarkup(w http.ResponseWriter, r *http.Request) {
	resellerID, err := UserIDFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	productID, err := URLUUID(r, "productId")
	if err != nil {
		RespondError(w, err)
		return
	}

	var req markupRequest
	if err := decodeBody(r, &req); err != nil {
		RespondError(w, err)
		return
	}

	rp, err := h.resellers.SetMarkup(r.Context(), resellerID, productID, req.Markup)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, rp)
}
