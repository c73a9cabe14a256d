package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentType discriminates the purchase flow a payment settles.
type PaymentType string

const (
	PaymentForOrder                PaymentType = "order"
	PaymentForWalletTopup          PaymentType = "wallet_topup"
	PaymentForRedeemCard           PaymentType = "redeem_card"
	PaymentForRedeemCode           PaymentType = "redeem_code"
	PaymentForResellerRegistration PaymentType = "reseller_registration"
)

// Valid reports whether t is a known payment flow.
func (t PaymentType) Valid() bool {
	switch t {
	case PaymentForOrder, PaymentForWalletTopup, PaymentForRedeemCard, PaymentForRedeemCode, PaymentForResellerRegistration:
		return true
	}
	return false
}

// PaymentStatus tracks the payment lifecycle.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// CanTransitionTo enforces monotonic payment transitions:
// pending -> {completed, failed, cancelled} and completed -> refunded.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		return next == PaymentStatusCompleted || next == PaymentStatusFailed || next == PaymentStatusCancelled
	case PaymentStatusCompleted:
		return next == PaymentStatusRefunded
	}
	return false
}

// RegistrationPayload is the reseller sign-up data carried by a
// reseller_registration payment until it settles.
type RegistrationPayload struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone,omitempty"`
	PasswordHash string `json:"password_hash,omitempty"`
	StoreName    string `json:"store_name"`
	Subdomain    string `json:"subdomain"`
}

// PaymentMetadata is the jsonb metadata of a payment, discriminated by Type.
type PaymentMetadata struct {
	Type         PaymentType          `json:"type"`
	UserID       *uuid.UUID           `json:"userId,omitempty"`
	CardID       *uuid.UUID           `json:"cardId,omitempty"`
	Registration *RegistrationPayload `json:"registration,omitempty"`
	Description  string               `json:"description,omitempty"`

	// Written at settlement time.
	Cancelled       bool   `json:"cancelled,omitempty"`
	CancelledAt     string `json:"cancelledAt,omitempty"`
	IssuedCode      string `json:"issuedCode,omitempty"`
	SettlementError string `json:"settlementError,omitempty"`
}

// Payment represents a payments row.
type Payment struct {
	ID            uuid.UUID       `json:"id"`
	PaymentID     string          `json:"payment_id"`
	OrderID       *uuid.UUID      `json:"order_id,omitempty"`
	UserID        *uuid.UUID      `json:"user_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Status        PaymentStatus   `json:"status"`
	TransactionID *string         `json:"transaction_id,omitempty"`
	CheckoutURL   string          `json:"checkout_url,omitempty"`
	Metadata      PaymentMetadata `json:"metadata"`
	RefundReason  *string         `json:"refund_reason,omitempty"`
	RefundedAt    *time.Time      `json:"refunded_at,omitempty"`
	RefundedBy    *uuid.UUID      `json:"refunded_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// PaymentEvent tracks status changes for audit trail.
type PaymentEvent struct {
	ID        uuid.UUID       `json:"id"`
	PaymentID uuid.UUID       `json:"payment_id"`
	Status    PaymentStatus   `json:"status"`
	Message   *string         `json:"message,omitempty"`
	ActorID   *uuid.UUID      `json:"actor_id,omitempty"`
	RawData   json.RawMessage `json:"raw_data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Outcome is the final result the gateway reports for a payment.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// ResultingStatus maps a gateway outcome onto the stored payment status.
// A cancellation is stored as failed with cancellation metadata.
func (o Outcome) ResultingStatus() PaymentStatus {
	if o == OutcomeSuccess {
		return PaymentStatusCompleted
	}
	return PaymentStatusFailed
}

// OrderEffect maps a gateway outcome onto the linked order's status pair.
func (o Outcome) OrderEffect() (OrderStatus, OrderPaymentStatus) {
	switch o {
	case OutcomeSuccess:
		return OrderProcessing, OrderPaid
	case OutcomeCancelled:
		return OrderCancelled, OrderPaymentCancelled
	default:
		return OrderFailed, OrderPaymentFailed
	}
}

// ClientOutcome is the outcome a client should be redirected for, derived
// from the stored payment.
func (p *Payment) ClientOutcome() Outcome {
	switch p.Status {
	case PaymentStatusCompleted, PaymentStatusRefunded:
		return OutcomeSuccess
	case PaymentStatusCancelled:
		return OutcomeCancelled
	}
	if p.Metadata.Cancelled {
		return OutcomeCancelled
	}
	return OutcomeFailed
}

// RedirectURL derives the client redirect for a finished payment from
// (flow type, outcome, order id).
func RedirectURL(base string, t PaymentType, outcome Outcome, orderID *uuid.UUID) string {
	u := fmt.Sprintf("%s/payment/%s?type=%s", base, outcome, t)
	if orderID != nil {
		u += "&orderId=" + orderID.String()
	}
	return u
}
