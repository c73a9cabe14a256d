package admin

import (
	"context"
	"net/http"

	"github.com/gamemart/ledger/internal/domain"
	"github.com/gamemart/ledger/internal/handler"
	"github.com/gamemart/ledger/internal/repository"
	"github.com/gamemart/ledger/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RedeemAdmin is the admin redeem code and card surface.
type RedeemAdmin interface {
	GenerateCodes(ctx context.Context, adminID uuid.UUID, in service.GenerateCodesInput) ([]domain.RedeemCode, error)
	ListCodes(ctx context.Context, status *domain.RedeemCodeStatus, page repository.Page) ([]domain.RedeemCode, error)
	UpdateCodeStatus(ctx context.Context, id uuid.UUID, status domain.RedeemCodeStatus) (*domain.RedeemCode, error)
	DeleteCode(ctx context.Context, id uuid.UUID) error

	CreateCard(ctx context.Context, adminID uuid.UUID, amount decimal.Decimal, description string) (*domain.RedeemCard, error)
	ListCards(ctx context.Context, status *domain.RedeemCodeStatus) ([]domain.RedeemCard, error)
	UpdateCardStatus(ctx context.Context, id uuid.UUID, status domain.RedeemCodeStatus) (*domain.RedeemCard, error)
	DeleteCard(ctx context.Context, id uuid.UUID) error
}

// RedeemAdminHandler manages redeem codes and cards.
type RedeemAdminHandler struct {
	redeem RedeemAdmin
}

// NewRedeemAdminHandler creates a new RedeemAdminHandler.
func NewRedeemAdminHandler(redeem RedeemAdmin) *RedeemAdminHandler {
	return &RedeemAdminHandler{redeem: redeem}
}

// GenerateCodes handles POST /admin/redeem-codes.
func (h *RedeemAdminHandler) GenerateCodes(w http.ResponseWriter, r *http.Request) {
	adminID, err := handler.UserIDFromRequest(r)
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	var in service.GenerateCodesInput
	if err := handler.DecodeJSON(r, &in); err != nil {
		handler.RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}

	codes, err := h.redeem.GenerateCodes(r.Context(), adminID, in)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusCreated, codes)
}

// ListCodes handles GET /admin/redeem-codes?status=.
func (h *RedeemAdminHandler) ListCodes(w http.ResponseWriter, r *http.Request) {
	status, err := statusFilter(r)
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	codes, err := h.redeem.ListCodes(r.Context(), status, handler.PageFromQuery(r))
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, codes)
}

// UpdateCodeStatus handles PATCH /admin/redeem-codes/{id}.
func (h *RedeemAdminHandler) UpdateCodeStatus(w http.ResponseWriter, r *http.Request) {
	id, status, ok := targetAndStatus(w, r)
	if !ok {
		return
	}

	code, err := h.redeem.UpdateCodeStatus(r.Context(), id, status)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, code)
}

// DeleteCode handles DELETE /admin/redeem-codes/{id}.
func (h *RedeemAdminHandler) DeleteCode(w http.ResponseWriter, r *http.Request) {
	id, err := handler.URLUUID(r, "id")
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	if err := h.redeem.DeleteCode(r.Context(), id); err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusNoContent, nil)
}

type createCardRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// CreateCard handles POST /admin/redeem-cards.
func (h *RedeemAdminHandler) CreateCard(w http.ResponseWriter, r *http.Request) {
	adminID, err := handler.UserIDFromRequest(r)
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	var req createCardRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}

	card, err := h.redeem.CreateCard(r.Context(), adminID, req.Amount, req.Description)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusCreated, card)
}

// ListCards handles GET /admin/redeem-cards?status=.
func (h *RedeemAdminHandler) ListCards(w http.ResponseWriter, r *http.Request) {
	status, err := statusFilter(r)
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	cards, err := h.redeem.ListCards(r.Context(), status)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, cards)
}

// UpdateCardStatus handles PATCH /admin/redeem-cards/{id}.
func (h *RedeemAdminHandler) UpdateCardStatus(w http.ResponseWriter, r *http.Request) {
	id, status, ok := targetAndStatus(w, r)
	if !ok {
		return
	}

	card, err := h.redeem.UpdateCardStatus(r.Context(), id, status)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, card)
}

// DeleteCard handles DELETE /admin/redeem-cards/{id}.
func (h *RedeemAdminHandler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	id, err := handler.URLUUID(r, "id")
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	if err := h.redeem.DeleteCard(r.Context(), id); err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusNoContent, nil)
}

func statusFilter(r *http.Request) (*domain.RedeemCodeStatus, error) {
	raw := r.URL.Query().Get("status")
	if raw == "" {
		return nil, nil
	}
	status := domain.RedeemCodeStatus(raw)
	if !status.Valid() {
		return nil, domain.ErrValidation("invalid status: " + raw)
	}
	return &status, nil
}

func targetAndStatus(w http.ResponseWriter, r *http.Request) (uuid.UUID, domain.RedeemCodeStatus, bool) {
	id, err := handler.URLUUID(r, "id")
	if err != nil {
		handler.RespondError(w, err)
		return uuid.Nil, "", false
	}
	var req struct {
		Status domain.RedeemCodeStatus `json:"status"`
	}
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.RespondError(w, domain.ErrValidation("invalid request body"))
		return uuid.Nil, "", false
	}
	return id, req.Status, true
}
