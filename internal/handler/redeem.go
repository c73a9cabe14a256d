package handler

import (
	"context"
	"net/http"

	"github.com/gamemart/ledger/internal/domain"
	"github.com/gamemart/ledger/internal/service"
	"github.com/google/uuid"
)

// Redeemer is the customer-facing redemption surface.
type Redeemer interface {
	Redeem(ctx context.Context, userID uuid.UUID, rawCode string) (*service.RedeemResult, error)
	ListActiveCards(ctx context.Context) ([]domain.RedeemCard, error)
}

// RedeemHandler handles code redemption and the card catalog.
type RedeemHandler struct {
	redeem Redeemer
}

// NewRedeemHandler creates a new RedeemHandler.
func NewRedeemHandler(redeem Redeemer) *RedeemHandler {
	return &RedeemHandler{redeem: redeem}
}

type redeemRequest struct {
	Code string `json:"code"`
}

// Redeem handles POST /redeem.
func (h *RedeemHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	userID, err := UserIDFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var req redeemRequest
	if err := decodeBody(r, &req); err != nil {
		RespondError(w, err)
		return
	}

	result, err := h.redeem.Redeem(r.Context(), userID, req.Code)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, result)
}

// ListCards handles GET /redeem-cards.
func (h *RedeemHandler) ListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := h.redeem.ListActiveCards(r.Context())
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, cards)
}
