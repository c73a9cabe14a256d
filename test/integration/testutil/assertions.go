//go:build integration

package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DecodeJSON reads and decodes a JSON response body into dst.
func DecodeJSON(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
}

// AssertStatus checks that the response has the expected HTTP status code.
func AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// AssertErrorCode checks that the response body contains the expected error code.
func AssertErrorCode(t *testing.T, resp *http.Response, expectedCode string) {
	t.Helper()
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	DecodeJSON(t, resp, &errResp)
	if errResp.Code != expectedCode {
		t.Errorf("expected error code %q, got %q (message: %s)", expectedCode, errResp.Code, errResp.Message)
	}
}

func queryCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// Balance reads a user's stored wallet balance.
func (env *TestEnv) Balance(userID uuid.UUID) decimal.Decimal {
	env.t.Helper()
	ctx, cancel := queryCtx()
	defer cancel()

	var raw string
	err := env.Pool.QueryRow(ctx,
		"SELECT wallet_balance::text FROM users WHERE id = $1", userID).Scan(&raw)
	if err != nil {
		env.t.Fatalf("Balance: %v", err)
	}
	return decimal.RequireFromString(raw)
}

// AssertBalance asserts the user's stored wallet balance.
func AssertBalance(t *testing.T, env *TestEnv, userID uuid.UUID, expected string) {
	t.Helper()
	got := env.Balance(userID)
	if !got.Equal(decimal.RequireFromString(expected)) {
		t.Errorf("balance: expected %s, got %s", expected, got)
	}
}

// AssertLedgerConsistent checks that the balance equals the sum of the
// user's signed wallet transactions.
func AssertLedgerConsistent(t *testing.T, env *TestEnv, userID uuid.UUID, opening string) {
	t.Helper()
	ctx, cancel := queryCtx()
	defer cancel()

	var net string
	err := env.Pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(CASE WHEN type = 'credit' THEN amount ELSE -amount END), 0)::text
		FROM wallet_transactions WHERE user_id = $1`, userID).Scan(&net)
	if err != nil {
		t.Fatalf("AssertLedgerConsistent: %v", err)
	}
	want := decimal.RequireFromString(opening).Add(decimal.RequireFromString(net))
	if got := env.Balance(userID); !got.Equal(want) {
		t.Errorf("ledger drift: balance %s, opening plus transactions %s", got, want)
	}
}

// CountWalletTransactions returns the number of ledger rows for a user.
func CountWalletTransactions(t *testing.T, env *TestEnv, userID uuid.UUID) int {
	t.Helper()
	ctx, cancel := queryCtx()
	defer cancel()

	var count int
	err := env.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM wallet_transactions WHERE user_id = $1", userID).Scan(&count)
	if err != nil {
		t.Fatalf("CountWalletTransactions: %v", err)
	}
	return count
}

// CountOutboxEvents returns the number of outbox events of eventType for an aggregate.
func CountOutboxEvents(t *testing.T, env *TestEnv, aggregateID, eventType string) int {
	t.Helper()
	ctx, cancel := queryCtx()
	defer cancel()

	var count int
	err := env.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM event_outbox WHERE "aggregateId" = $1 AND "eventType" = $2`,
		aggregateID, eventType).Scan(&count)
	if err != nil {
		t.Fatalf("CountOutboxEvents: %v", err)
	}
	return count
}

// OrderStatus reads an order's status pair.
func (env *TestEnv) OrderStatus(orderID uuid.UUID) (status, paymentStatus string) {
	env.t.Helper()
	ctx, cancel := queryCtx()
	defer cancel()

	err := env.Pool.QueryRow(ctx,
		"SELECT status, payment_status FROM orders WHERE id = $1", orderID).Scan(&status, &paymentStatus)
	if err != nil {
		env.t.Fatalf("OrderStatus: %v", err)
	}
	return status, paymentStatus
}

// PaymentStatus reads a payment's status by gateway payment id.
func (env *TestEnv) PaymentStatus(paymentID string) string {
	env.t.Helper()
	ctx, cancel := queryCtx()
	defer cancel()

	var status string
	err := env.Pool.QueryRow(ctx,
		"SELECT status FROM payments WHERE payment_id = $1", paymentID).Scan(&status)
	if err != nil {
		env.t.Fatalf("PaymentStatus: %v", err)
	}
	return status
}

// PaymentMetadata reads a payment's metadata document.
func (env *TestEnv) PaymentMetadata(paymentID string) map[string]interface{} {
	env.t.Helper()
	ctx, cancel := queryCtx()
	defer cancel()

	var raw []byte
	err := env.Pool.QueryRow(ctx,
		"SELECT metadata FROM payments WHERE payment_id = $1", paymentID).Scan(&raw)
	if err != nil {
		env.t.Fatalf("PaymentMetadata: %v", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(raw, &meta); err != nil {
		env.t.Fatalf("PaymentMetadata: decode: %v", err)
	}
	return meta
}

// CodeStatus reads a redeem code's status.
func (env *TestEnv) CodeStatus(code string) string {
	env.t.Helper()
	ctx, cancel := queryCtx()
	defer cancel()

	var status string
	err := env.Pool.QueryRow(ctx,
		"SELECT status FROM redeem_codes WHERE code = $1", code).Scan(&status)
	if err != nil {
		env.t.Fatalf("CodeStatus: %v", err)
	}
	return status
}

// CountRows returns COUNT(*) of query with args.
func (env *TestEnv) CountRows(query string, args ...interface{}) int {
	env.t.Helper()
	ctx, cancel := queryCtx()
	defer cancel()

	var n int
	if err := env.Pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		env.t.Fatalf("CountRows: %v", err)
	}
	return n
}
