package repository

import (
	"context"
	"fmt"

	"github.com/gamemart/ledger/internal/domain"
	"github.com/gamemart/ledger/internal/infra"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type walletTxRepo struct{}

// NewWalletTransactionRepository returns a pgx-backed WalletTransactionRepository.
func NewWalletTransactionRepository() WalletTransactionRepository {
	return &walletTxRepo{}
}

func (r *walletTxRepo) Insert(ctx context.Context, db DBTX, tx *domain.WalletTransaction) error {
	row := db.QueryRow(ctx, `
		INSERT INTO wallet_transactions
		  (id, user_id, type, amount, balance_after, description, related_type, related_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		tx.ID, tx.UserID, string(tx.Type),
		infra.DecimalToNumeric(tx.Amount),
		infra.DecimalToNumeric(tx.BalanceAfter),
		tx.Description, string(tx.RelatedType), tx.RelatedID, tx.Status,
	)
	if err := row.Scan(&tx.CreatedAt); err != nil {
		return fmt.Errorf("insert wallet transaction: %w", err)
	}
	return nil
}

func (r *walletTxRepo) ListByUser(ctx context.Context, db DBTX, userID uuid.UUID, cursor *uuid.UUID, limit int) ([]domain.WalletTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var rows pgx.Rows
	var err error
	if cursor != nil {
		rows, err = db.Query(ctx, `
			SELECT id, user_id, type, amount, balance_after, description, related_type, related_id, status, created_at
			FROM wallet_transactions
			WHERE user_id = $1
			  AND (created_at, id) < ((SELECT created_at, id FROM wallet_transactions WHERE id = $2))
			ORDER BY created_at DESC, id DESC
			LIMIT $3`, userID, *cursor, limit)
	} else {
		rows, err = db.Query(ctx, `
			SELECT id, user_id, type, amount, balance_after, description, related_type, related_id, status, created_at
			FROM wallet_transactions
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2`, userID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query wallet transactions: %w", err)
	}
	defer rows.Close()

	var txs []domain.WalletTransaction
	for rows.Next() {
		tx, err := scanWalletTx(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

func scanWalletTx(row scanner) (*domain.WalletTransaction, error) {
	var tx domain.WalletTransaction
	var amountNum, balNum pgtype.Numeric
	err := row.Scan(&tx.ID, &tx.UserID, &tx.Type, &amountNum, &balNum,
		&tx.Description, &tx.RelatedType, &tx.RelatedID, &tx.Status, &tx.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan wallet transaction: %w", err)
	}

	tx.Amount, err = infra.NumericToDecimal(amountNum)
	if err != nil {
		return nil, fmt.Errorf("convert amount: %w", err)
	}
	tx.BalanceAfter, err = infra.NumericToDecimal(balNum)
	if err != nil {
		return nil, fmt.Errorf("convert balance_after: %w", err)
	}
	return &tx, nil
}
