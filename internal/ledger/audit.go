package ledger

import (
	"context"
	"fmt"

	"github.com/gamemart/ledger/internal/infra"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// AuditResult holds the outcome of a wallet audit.
type AuditResult struct {
	UserID           uuid.UUID        `json:"user_id"`
	Balance          decimal.Decimal  `json:"balance"`
	LedgerSum        decimal.Decimal  `json:"ledger_sum"`
	TransactionCount int              `json:"transaction_count"`
	Invariants       []InvariantCheck `json:"invariants"`
	AllPassed        bool             `json:"all_passed"`
}

// InvariantCheck records a single invariant validation.
type InvariantCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// Audit checks a user's wallet against its ledger under the row lock:
//  1. Balance non-negativity
//  2. Ledger parity: the newest row's balance_after equals the wallet balance
//  3. Conservation: sum(credits) - sum(debits) equals the wallet balance
//
// Conservation assumes every wallet started at zero, which holds because
// balances are only ever written through PostLedgerEntry.
func (e *Engine) Audit(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*AuditResult, error) {
	user, err := e.LockUserForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	var sumNum pgtype.Numeric
	var count int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(CASE WHEN type = 'credit' THEN amount ELSE -amount END), 0), COUNT(*)
		FROM wallet_transactions WHERE user_id = $1`, userID).Scan(&sumNum, &count)
	if err != nil {
		return nil, fmt.Errorf("sum ledger: %w", err)
	}
	sum, err := infra.NumericToDecimal(sumNum)
	if err != nil {
		return nil, fmt.Errorf("convert ledger sum: %w", err)
	}

	latest, err := e.walletTxs.ListByUser(ctx, tx, userID, nil, 1)
	if err != nil {
		return nil, fmt.Errorf("latest wallet transaction: %w", err)
	}

	balance := user.Wallet.Balance
	checks := []InvariantCheck{{
		Name:   "balance_non_negative",
		Passed: !balance.IsNegative(),
		Detail: "balance=" + balance.StringFixed(2),
	}}

	if len(latest) > 0 {
		checks = append(checks, InvariantCheck{
			Name:   "ledger_parity",
			Passed: latest[0].BalanceAfter.Equal(balance),
			Detail: fmt.Sprintf("wallet=%s last_balance_after=%s", balance.StringFixed(2), latest[0].BalanceAfter.StringFixed(2)),
		})
	} else {
		checks = append(checks, InvariantCheck{
			Name:   "ledger_parity",
			Passed: balance.IsZero(),
			Detail: "no transactions (empty ledger)",
		})
	}

	checks = append(checks, InvariantCheck{
		Name:   "conservation",
		Passed: sum.Equal(balance),
		Detail: fmt.Sprintf("wallet=%s ledger_sum=%s", balance.StringFixed(2), sum.StringFixed(2)),
	})

	allPassed := true
	for _, c := range checks {
		if !c.Passed {
			allPassed = false
		}
	}

	return &AuditResult{
		UserID:           userID,
		Balance:          balance,
		LedgerSum:        sum,
		TransactionCount: count,
		Invariants:       checks,
		AllPassed:        allPassed,
	}, nil
}
