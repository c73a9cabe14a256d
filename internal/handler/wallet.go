package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gamemart/ledger/internal/auth"
	"github.com/gamemart/ledger/internal/domain"
	"github.com/google/uuid"
)

// WalletReader is the wallet read side used by WalletHandler.
type WalletReader interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, cursor *uuid.UUID, limit int) ([]domain.WalletTransaction, error)
}

// WalletHandler handles wallet balance and transaction endpoints.
type WalletHandler struct {
	wallets WalletReader
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(wallets WalletReader) *WalletHandler {
	return &WalletHandler{wallets: wallets}
}

// GetBalance handles GET /wallet.
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := UserIDFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	wallet, err := h.wallets.GetBalance(r.Context(), userID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, wallet)
}

// txListResponse wraps a list of transactions with cursor.
type txListResponse struct {
	Transactions []domain.WalletTransaction `json:"transactions"`
	NextCursor   *string                    `json:"next_cursor,omitempty"`
}

// GetTransactions handles GET /wallet/transactions with cursor-based pagination.
func (h *WalletHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := UserIDFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	limit := 20
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 && n <= 100 {
		limit = n
	}

	var cursor *uuid.UUID
	if c := r.URL.Query().Get("cursor"); c != "" {
		id, err := uuid.Parse(c)
		if err != nil {
			RespondError(w, domain.ErrValidation("invalid cursor"))
			return
		}
		cursor = &id
	}

	txs, err := h.wallets.ListTransactions(r.Context(), userID, cursor, limit)
	if err != nil {
		RespondError(w, err)
		return
	}

	resp := txListResponse{Transactions: txs}
	if len(txs) == limit {
		next := txs[limit-1].ID.String()
		resp.NextCursor = &next
	}
	RespondJSON(w, http.StatusOK, resp)
}

// UserIDFromRequest returns the authenticated caller's id.
func UserIDFromRequest(r *http.Request) (uuid.UUID, error) {
	id := auth.UserIDFromContext(r.Context())
	if id == uuid.Nil {
		return uuid.Nil, domain.ErrUnauthorized("no subject in context")
	}
	return id, nil
}

// callerFromRequest returns the authenticated caller's id and role.
func callerFromRequest(r *http.Request) (uuid.UUID, domain.Role, error) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		return uuid.Nil, "", domain.ErrUnauthorized("no auth context")
	}
	id, err := claims.UserID()
	if err != nil {
		return uuid.Nil, "", domain.ErrUnauthorized("invalid subject")
	}
	return id, claims.Role, nil
}
