package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Validator Tests ---

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
		errMsg  string
	}{
		{"valid email", "user@example.com", false, ""},
		{"valid email with plus", "user+tag@example.com", false, ""},
		{"empty string", "", true, "email is required"},
		{"no at sign", "userexample.com", true, "invalid email format"},
		{"no tld", "user@example", true, "invalid email format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidatePositiveAmount(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		wantErr bool
	}{
		{"whole", "100", false},
		{"cents", "12.34", false},
		{"zero", "0", true},
		{"negative", "-5", true},
		{"sub-cent", "1.005", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePositiveAmount(decimal.RequireFromString(tt.amount))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateCodeInputs(t *testing.T) {
	assert.NoError(t, ValidateCodePrefix("GMP"))
	assert.Error(t, ValidateCodePrefix("gmp"))
	assert.Error(t, ValidateCodePrefix("G"))
	assert.NoError(t, ValidateCodeCount(1))
	assert.NoError(t, ValidateCodeCount(MaxCodesPerBatch))
	assert.Error(t, ValidateCodeCount(0))
	assert.Error(t, ValidateCodeCount(MaxCodesPerBatch+1))
	assert.NoError(t, ValidateSubdomain("best-games"))
	assert.Error(t, ValidateSubdomain("Best Games"))
	assert.NoError(t, ValidateQuantity(1))
	assert.Error(t, ValidateQuantity(0))
}

// --- Error Tests ---

func TestAppError(t *testing.T) {
	t.Run("status codes", func(t *testing.T) {
		assert.Equal(t, 404, ErrNotFound("order", "x").Status)
		assert.Equal(t, 409, ErrConflict("c").Status)
		assert.Equal(t, 400, ErrValidation("v").Status)
		assert.Equal(t, 401, ErrUnauthorized("u").Status)
		assert.Equal(t, 403, ErrForbidden("f").Status)
		assert.Equal(t, 400, ErrInsufficientFunds().Status)
		assert.Equal(t, 410, ErrExpired("e").Status)
		assert.Equal(t, 502, ErrExternalService("g", nil).Status)
		assert.Equal(t, 500, ErrInternal("i", nil).Status)
	})

	t.Run("unwrap and HasCode", func(t *testing.T) {
		cause := errors.New("boom")
		err := fmt.Errorf("settle: %w", ErrInternal("begin tx", cause))
		assert.True(t, HasCode(err, CodeInternal))
		assert.False(t, HasCode(err, CodeConflict))
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "begin tx")
	})

	t.Run("plain error has no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("x"), CodeNotFound))
	})
}

// --- Wallet Tests ---

func TestCanApply(t *testing.T) {
	d := decimal.RequireFromString
	tests := []struct {
		name    string
		balance string
		delta   string
		want    bool
	}{
		{"credit", "0", "10", true},
		{"exact debit", "10", "-10", true},
		{"overdraft", "10", "-10.01", false},
		{"debit from zero", "0", "-0.01", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanApply(d(tt.balance), d(tt.delta)))
		})
	}
}

func TestWalletDeltaTxType(t *testing.T) {
	assert.Equal(t, WalletDebit, WalletDeltaParams{Delta: decimal.NewFromInt(-1)}.TxType())
	assert.Equal(t, WalletCredit, WalletDeltaParams{Delta: decimal.NewFromInt(1)}.TxType())
}

// --- Order State Machine Tests ---

func TestOrderTransitions(t *testing.T) {
	all := []OrderStatus{OrderPending, OrderProcessing, OrderCompleted, OrderFailed, OrderRefunded, OrderCancelled}
	allowed := map[[2]OrderStatus]bool{
		{OrderPending, OrderProcessing}:   true,
		{OrderPending, OrderFailed}:       true,
		{OrderPending, OrderCancelled}:    true,
		{OrderProcessing, OrderCompleted}: true,
		{OrderProcessing, OrderFailed}:    true,
		{OrderProcessing, OrderCancelled}: true,
		{OrderCompleted, OrderRefunded}:   true,
	}

	for _, from := range all {
		for _, to := range all {
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				assert.Equal(t, allowed[[2]OrderStatus{from, to}], from.CanTransitionTo(to))
			})
		}
	}
}

func TestOrderTerminal(t *testing.T) {
	assert.False(t, OrderPending.IsTerminal())
	assert.False(t, OrderProcessing.IsTerminal())
	for _, s := range []OrderStatus{OrderFailed, OrderCancelled, OrderRefunded} {
		assert.True(t, s.IsTerminal())
		for _, next := range []OrderStatus{OrderPending, OrderProcessing, OrderCompleted} {
			assert.False(t, s.CanTransitionTo(next))
		}
	}
}

func TestParseAdminOrderStatus(t *testing.T) {
	for _, s := range []string{"pending", "processing", "completed", "failed"} {
		st, err := ParseAdminOrderStatus(s)
		require.NoError(t, err)
		assert.Equal(t, OrderStatus(s), st)
	}
	for _, s := range []string{"refunded", "cancelled", "", "PENDING"} {
		_, err := ParseAdminOrderStatus(s)
		assert.Error(t, err, s)
	}
}

func TestParseBulkAction(t *testing.T) {
	a, err := ParseBulkAction("approve")
	require.NoError(t, err)
	assert.Equal(t, BulkApprove, a)
	_, err = ParseBulkAction("delete")
	assert.Error(t, err)
}

func TestNewOrderNumber(t *testing.T) {
	now := time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "ORD-20260309-A1B2C3", NewOrderNumber(now, "A1B2C3"))
}

func TestBelongsToReseller(t *testing.T) {
	r := uuid.New()
	o := &Order{ResellerID: &r}
	assert.True(t, o.BelongsToReseller(r))
	assert.False(t, o.BelongsToReseller(uuid.New()))
	assert.False(t, (&Order{}).BelongsToReseller(r))
}

// --- Payment Tests ---

func TestPaymentTransitions(t *testing.T) {
	assert.True(t, PaymentStatusPending.CanTransitionTo(PaymentStatusCompleted))
	assert.True(t, PaymentStatusPending.CanTransitionTo(PaymentStatusFailed))
	assert.True(t, PaymentStatusCompleted.CanTransitionTo(PaymentStatusRefunded))
	assert.False(t, PaymentStatusCompleted.CanTransitionTo(PaymentStatusFailed))
	assert.False(t, PaymentStatusFailed.CanTransitionTo(PaymentStatusCompleted))
	assert.False(t, PaymentStatusRefunded.CanTransitionTo(PaymentStatusCompleted))
}

func TestOutcomeEffects(t *testing.T) {
	tests := []struct {
		outcome     Outcome
		payment     PaymentStatus
		order       OrderStatus
		orderPaySts OrderPaymentStatus
	}{
		{OutcomeSuccess, PaymentStatusCompleted, OrderProcessing, OrderPaid},
		{OutcomeFailed, PaymentStatusFailed, OrderFailed, OrderPaymentFailed},
		{OutcomeCancelled, PaymentStatusFailed, OrderCancelled, OrderPaymentCancelled},
	}
	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			assert.Equal(t, tt.payment, tt.outcome.ResultingStatus())
			st, ps := tt.outcome.OrderEffect()
			assert.Equal(t, tt.order, st)
			assert.Equal(t, tt.orderPaySts, ps)
		})
	}
}

func TestClientOutcome(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, (&Payment{Status: PaymentStatusCompleted}).ClientOutcome())
	assert.Equal(t, OutcomeFailed, (&Payment{Status: PaymentStatusFailed}).ClientOutcome())
	assert.Equal(t, OutcomeCancelled, (&Payment{
		Status:   PaymentStatusFailed,
		Metadata: PaymentMetadata{Cancelled: true},
	}).ClientOutcome())
}

func TestRedirectURL(t *testing.T) {
	id := uuid.MustParse("7f1c2a9e-8a55-4b1d-9d0f-3f3b1e0a2c11")
	assert.Equal(t,
		"https://shop.example.com/payment/success?type=order&orderId=7f1c2a9e-8a55-4b1d-9d0f-3f3b1e0a2c11",
		RedirectURL("https://shop.example.com", PaymentForOrder, OutcomeSuccess, &id))
	assert.Equal(t,
		"https://shop.example.com/payment/failed?type=wallet_topup",
		RedirectURL("https://shop.example.com", PaymentForWalletTopup, OutcomeFailed, nil))
}

func TestPaymentMetadataJSON(t *testing.T) {
	card := uuid.New()
	raw, err := json.Marshal(PaymentMetadata{Type: PaymentForRedeemCard, CardID: &card})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"redeem_card","cardId":"`+card.String()+`"}`, string(raw))
}

// --- Redeem Tests ---

func TestCheckRedeemable(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		code RedeemCode
		want string
	}{
		{"active", RedeemCode{Status: CodeActive, ExpiresAt: now.Add(time.Hour)}, ""},
		{"used", RedeemCode{Status: CodeUsed, ExpiresAt: now.Add(time.Hour)}, CodeConflict},
		{"expired status", RedeemCode{Status: CodeExpiredStatus, ExpiresAt: now.Add(time.Hour)}, CodeExpired},
		{"past expiry", RedeemCode{Status: CodeActive, ExpiresAt: now.Add(-time.Second)}, CodeExpired},
		{"expiry equals now", RedeemCode{Status: CodeActive, ExpiresAt: now}, CodeExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.code.CheckRedeemable(now)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, HasCode(err, tt.want), "got %v", err)
		})
	}
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "GMP-ABCD1234", NormalizeCode("  gmp-abcd1234 "))
}

// --- Reseller Tests ---

func TestStoreValidateMarkup(t *testing.T) {
	s := &Store{MinimumMarkup: decimal.NewFromInt(5), MaximumMarkup: decimal.NewFromInt(30)}
	assert.NoError(t, s.ValidateMarkup(decimal.NewFromInt(5)))
	assert.NoError(t, s.ValidateMarkup(decimal.NewFromInt(30)))
	assert.Error(t, s.ValidateMarkup(decimal.RequireFromString("4.99")))
	assert.Error(t, s.ValidateMarkup(decimal.NewFromInt(31)))
}

func TestPriceWithMarkup(t *testing.T) {
	d := decimal.RequireFromString
	assert.True(t, d("110").Equal(PriceWithMarkup(d("100"), d("10"))))
	assert.True(t, d("10.37").Equal(PriceWithMarkup(d("9.99"), d("3.8"))))
	assert.True(t, d("9.99").Equal(PriceWithMarkup(d("9.99"), d("0"))))
}

// --- Event Tests ---

func TestNewWalletTxPostedEvent(t *testing.T) {
	tx := &WalletTransaction{ID: uuid.New(), UserID: uuid.New(), Type: WalletDebit, Amount: decimal.NewFromInt(5)}
	evt := NewWalletTxPostedEvent(tx)
	assert.Equal(t, AggregateWallet, evt.AggregateType)
	assert.Equal(t, EventWalletTxPosted, evt.EventType)
	assert.Equal(t, tx.UserID.String(), evt.PartitionKey)
	assert.NotEqual(t, uuid.Nil, evt.EventID)
	assert.JSONEq(t, `{}`, string(evt.Headers))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(evt.Payload, &payload))
	assert.Equal(t, "debit", payload["type"])
}

func TestNewOrderEventPartitionsByCustomer(t *testing.T) {
	o := &Order{ID: uuid.New(), CustomerID: uuid.New(), Status: OrderProcessing}
	evt := NewOrderEvent(EventOrderProcessing, o)
	assert.Equal(t, o.ID.String(), evt.AggregateID)
	assert.Equal(t, o.CustomerID.String(), evt.PartitionKey)
}
