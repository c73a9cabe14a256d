package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WalletTxType is the direction of a wallet movement.
type WalletTxType string

const (
	WalletCredit WalletTxType = "credit"
	WalletDebit  WalletTxType = "debit"
)

// WalletTxStatusCompleted is the only status a ledger row is written with.
const WalletTxStatusCompleted = "completed"

// RelatedType tags what caused a wallet movement.
type RelatedType string

const (
	RelatedOrder       RelatedType = "order"
	RelatedBulkOrders  RelatedType = "bulk_orders"
	RelatedRedeemCode  RelatedType = "redeem_code"
	RelatedWalletTopup RelatedType = "wallet_topup"
	RelatedAdminCredit RelatedType = "admin_credit"
)

// WalletTransaction represents a wallet_transactions row (append-only).
type WalletTransaction struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	Type         WalletTxType    `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Description  string          `json:"description"`
	RelatedType  RelatedType     `json:"related_type,omitempty"`
	RelatedID    *uuid.UUID      `json:"related_id,omitempty"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
}

// WalletDeltaParams is the input to the ledger's ApplyWalletDelta primitive.
// A positive Delta credits the wallet, a negative one debits it.
type WalletDeltaParams struct {
	UserID      uuid.UUID
	Delta       decimal.Decimal
	Description string
	RelatedType RelatedType
	RelatedID   *uuid.UUID
}

// TxType derives the wallet transaction type from the sign of the delta.
func (p WalletDeltaParams) TxType() WalletTxType {
	if p.Delta.IsNegative() {
		return WalletDebit
	}
	return WalletCredit
}

// CanApply reports whether the delta can be applied to balance without
// driving it below zero.
func CanApply(balance, delta decimal.Decimal) bool {
	if !delta.IsNegative() {
		return true
	}
	return !balance.Add(delta).IsNegative()
}

// LedgerResult is returned by every ledger primitive.
type LedgerResult struct {
	Transaction *WalletTransaction
	User        *User
}
