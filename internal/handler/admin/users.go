package admin

import (
	"context"
	"net/http"

	"github.com/gamemart/ledger/internal/domain"
	"github.com/gamemart/ledger/internal/handler"
	"github.com/gamemart/ledger/internal/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WalletAdmin is the admin wallet and account surface.
type WalletAdmin interface {
	AdminCredit(ctx context.Context, adminID, userID uuid.UUID, amount decimal.Decimal, description string) (*domain.LedgerResult, error)
	UpdateUserStatus(ctx context.Context, adminID, userID uuid.UUID, status domain.UserStatus) (*domain.User, error)
	Audit(ctx context.Context, userID uuid.UUID) (*ledger.AuditResult, error)
}

// UserAdminHandler handles wallet grants, account status and wallet audits.
type UserAdminHandler struct {
	wallets WalletAdmin
}

// NewUserAdminHandler creates a new UserAdminHandler.
func NewUserAdminHandler(wallets WalletAdmin) *UserAdminHandler {
	return &UserAdminHandler{wallets: wallets}
}

type creditRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

type creditResponse struct {
	Transaction *domain.WalletTransaction `json:"transaction"`
	Balance     decimal.Decimal           `json:"balance"`
}

// CreditWallet handles POST /admin/users/{id}/wallet/credit.
func (h *UserAdminHandler) CreditWallet(w http.ResponseWriter, r *http.Request) {
	adminID, userID, ok := adminAndTarget(w, r)
	if !ok {
		return
	}

	var req creditRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}

	res, err := h.wallets.AdminCredit(r.Context(), adminID, userID, req.Amount, req.Description)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, creditResponse{
		Transaction: res.Transaction,
		Balance:     res.User.Wallet.Balance,
	})
}

// UpdateStatus handles PATCH /admin/users/{id}/status.
func (h *UserAdminHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	adminID, userID, ok := adminAndTarget(w, r)
	if !ok {
		return
	}

	var req struct {
		Status domain.UserStatus `json:"status"`
	}
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}

	user, err := h.wallets.UpdateUserStatus(r.Context(), adminID, userID, req.Status)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, user)
}

// AuditWallet handles GET /admin/users/{id}/wallet/audit.
func (h *UserAdminHandler) AuditWallet(w http.ResponseWriter, r *http.Request) {
	userID, err := handler.URLUUID(r, "id")
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	result, err := h.wallets.Audit(r.Context(), userID)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, result)
}
