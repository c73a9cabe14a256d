package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gamemart/ledger/internal/domain"
	"github.com/gamemart/ledger/internal/ledger"
	"github.com/gamemart/ledger/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// WalletService exposes wallet reads and admin wallet/account actions.
type WalletService struct {
	pool      *pgxpool.Pool
	users     repository.UserRepository
	walletTxs repository.WalletTransactionRepository
	engine    *ledger.Engine
	notifier  Notifier
	logger    *slog.Logger
}

// NewWalletService creates a WalletService.
func NewWalletService(
	pool *pgxpool.Pool,
	users repository.UserRepository,
	walletTxs repository.WalletTransactionRepository,
	engine *ledger.Engine,
	notifier Notifier,
	logger *slog.Logger,
) *WalletService {
	return &WalletService{
		pool:      pool,
		users:     users,
		walletTxs: walletTxs,
		engine:    engine,
		notifier:  notifier,
		logger:    logger,
	}
}

// GetBalance returns the user's wallet.
func (s *WalletService) GetBalance(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	user, err := s.users.FindByID(ctx, s.pool, userID)
	if err != nil {
		return nil, domain.ErrInternal("find user", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound("user", userID.String())
	}
	return &user.Wallet, nil
}

// ListTransactions returns wallet history newest first. cursor is the id of
// the last transaction of the previous page.
func (s *WalletService) ListTransactions(ctx context.Context, userID uuid.UUID, cursor *uuid.UUID, limit int) ([]domain.WalletTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	txs, err := s.walletTxs.ListByUser(ctx, s.pool, userID, cursor, limit)
	if err != nil {
		return nil, domain.ErrInternal("list wallet transactions", err)
	}
	if txs == nil {
		txs = []domain.WalletTransaction{}
	}
	return txs, nil
}

// AdminCredit grants amount to a user's wallet.
func (s *WalletService) AdminCredit(ctx context.Context, adminID, userID uuid.UUID, amount decimal.Decimal, description string) (*domain.LedgerResult, error) {
	if err := domain.ValidatePositiveAmount(amount); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	description = strings.TrimSpace(description)
	if description == "" {
		description = "Admin credit"
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx)

	res, err := s.engine.Credit(ctx, tx, userID, amount, description, domain.RelatedAdminCredit, &adminID)
	if err != nil {
		return nil, internalErr("credit wallet", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.ErrInternal("commit tx", err)
	}

	s.logger.Info("admin wallet credit", "admin_id", adminID, "user_id", userID, "amount", amount)
	s.notifier.Notify(ctx, domain.Notification{
		UserID:  userID,
		Kind:    domain.NotifyWallet,
		Title:   "Wallet credited",
		Message: fmt.Sprintf("%s was added to your wallet", amount.StringFixed(2)),
	})
	return res, nil
}

// UpdateUserStatus moves a user between account statuses, e.g. approving
// a pending reseller.
func (s *WalletService) UpdateUserStatus(ctx context.Context, adminID, userID uuid.UUID, status domain.UserStatus) (*domain.User, error) {
	if !status.Valid() {
		return nil, domain.ErrValidation(fmt.Sprintf("invalid user status: %q", status))
	}
	if adminID == userID {
		return nil, domain.ErrConflict("admins cannot change their own status")
	}

	user, err := s.users.UpdateStatus(ctx, s.pool, userID, status)
	if err != nil {
		return nil, domain.ErrInternal("update user status", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound("user", userID.String())
	}

	s.logger.Info("user status changed", "admin_id", adminID, "user_id", userID, "status", status)
	s.notifier.Notify(ctx, domain.Notification{
		UserID:  userID,
		Kind:    domain.NotifyAccount,
		Title:   "Account updated",
		Message: fmt.Sprintf("Your account is now %s", status),
	})
	return user, nil
}

// Audit checks the user's balance against their ledger.
func (s *WalletService) Audit(ctx context.Context, userID uuid.UUID) (*ledger.AuditResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx)

	res, err := s.engine.Audit(ctx, tx, userID)
	if err != nil {
		return nil, internalErr("audit wallet", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, domain.ErrInternal("commit tx", err)
	}
	if !res.AllPassed {
		s.logger.Error("wallet audit failed", "user_id", userID, "balance", res.Balance, "ledger_sum", res.LedgerSum)
	}
	return res, nil
}
