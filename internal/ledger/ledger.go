package ledger

import (
	"context"
	"fmt"

	"github.com/gamemart/ledger/internal/domain"
	"github.com/gamemart/ledger/internal/infra"
	"github.com/gamemart/ledger/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Engine provides the wallet ledger primitive and its building blocks:
//  1. LockUserForUpdate: row-level pessimistic lock
//  2. PostLedgerEntry: atomic balance update + append-only insert + outbox event
//  3. ApplyWalletDelta: lock, check, post
//
// Every method runs inside the caller's transaction; the engine never
// commits.
type Engine struct {
	users     repository.UserRepository
	walletTxs repository.WalletTransactionRepository
	outbox    repository.OutboxRepository
}

// NewEngine creates a ledger engine with the given repositories.
func NewEngine(
	users repository.UserRepository,
	walletTxs repository.WalletTransactionRepository,
	outbox repository.OutboxRepository,
) *Engine {
	return &Engine{
		users:     users,
		walletTxs: walletTxs,
		outbox:    outbox,
	}
}

// LockUserForUpdate acquires a row-level lock and returns the user.
func (e *Engine) LockUserForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.User, error) {
	user, err := e.users.LockForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("lock user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound("user", userID.String())
	}
	return user, nil
}

// PostLedgerEntry updates the balance with server-side arithmetic, appends
// the wallet transaction carrying the post-update balance and writes the
// outbox event. The caller must already hold the user row lock.
func (e *Engine) PostLedgerEntry(ctx context.Context, tx pgx.Tx, params domain.WalletDeltaParams) (*domain.LedgerResult, error) {
	updated, err := e.users.AdjustBalance(ctx, tx, params.UserID, params.Delta)
	if err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}

	entry := &domain.WalletTransaction{
		ID:           uuid.New(),
		UserID:       params.UserID,
		Type:         params.TxType(),
		Amount:       params.Delta.Abs(),
		BalanceAfter: updated.Wallet.Balance,
		Description:  params.Description,
		RelatedType:  params.RelatedType,
		RelatedID:    params.RelatedID,
		Status:       domain.WalletTxStatusCompleted,
	}
	if err := e.walletTxs.Insert(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("insert wallet transaction: %w", err)
	}

	if err := e.outbox.Insert(ctx, tx, domain.NewWalletTxPostedEvent(entry)); err != nil {
		return nil, fmt.Errorf("insert outbox event: %w", err)
	}

	infra.WalletMovementsTotal.WithLabelValues(string(entry.Type), string(entry.RelatedType)).Inc()
	return &domain.LedgerResult{Transaction: entry, User: updated}, nil
}

// ApplyWalletDelta is the single balance mutation primitive. A positive delta
// credits, a negative delta debits; a debit that would drive the balance
// below zero fails with InsufficientFunds and changes nothing.
func (e *Engine) ApplyWalletDelta(ctx context.Context, tx pgx.Tx, params domain.WalletDeltaParams) (*domain.LedgerResult, error) {
	if params.Delta.IsZero() {
		return nil, domain.ErrValidation("wallet delta must be non-zero")
	}
	if err := domain.ValidatePositiveAmount(params.Delta.Abs()); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	user, err := e.LockUserForUpdate(ctx, tx, params.UserID)
	if err != nil {
		return nil, err
	}

	if !domain.CanApply(user.Wallet.Balance, params.Delta) {
		infra.InsufficientFundsTotal.Inc()
		return nil, domain.ErrInsufficientFunds()
	}

	return e.PostLedgerEntry(ctx, tx, params)
}

// Credit adds amount to the user's wallet.
func (e *Engine) Credit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal, description string, relatedType domain.RelatedType, relatedID *uuid.UUID) (*domain.LedgerResult, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrValidation("credit amount must be positive")
	}
	return e.ApplyWalletDelta(ctx, tx, domain.WalletDeltaParams{
		UserID:      userID,
		Delta:       amount,
		Description: description,
		RelatedType: relatedType,
		RelatedID:   relatedID,
	})
}

// Debit removes amount from the user's wallet.
func (e *Engine) Debit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal, description string, relatedType domain.RelatedType, relatedID *uuid.UUID) (*domain.LedgerResult, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrValidation("debit amount must be positive")
	}
	return e.ApplyWalletDelta(ctx, tx, domain.WalletDeltaParams{
		UserID:      userID,
		Delta:       amount.Neg(),
		Description: description,
		RelatedType: relatedType,
		RelatedID:   relatedID,
	})
}
