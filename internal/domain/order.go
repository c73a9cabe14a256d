package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderCompleted  OrderStatus = "completed"
	OrderFailed     OrderStatus = "failed"
	OrderRefunded   OrderStatus = "refunded"
	OrderCancelled  OrderStatus = "cancelled"
)

// orderTransitions lists the edges of the order state machine.
// completed only leaves through a refund; failed, cancelled and refunded
// have no outgoing edges.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderProcessing, OrderFailed, OrderCancelled},
	OrderProcessing: {OrderCompleted, OrderFailed, OrderCancelled},
	OrderCompleted:  {OrderRefunded},
}

// CanTransitionTo reports whether the state machine allows s -> next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further edge leaves s except a refund.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderCompleted, OrderFailed, OrderRefunded, OrderCancelled:
		return true
	}
	return false
}

// AdminSettableStatuses is the value set accepted by the admin status update.
var AdminSettableStatuses = []OrderStatus{OrderPending, OrderProcessing, OrderCompleted, OrderFailed}

// ParseAdminOrderStatus validates a status value sent to the admin update.
func ParseAdminOrderStatus(s string) (OrderStatus, error) {
	for _, st := range AdminSettableStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("invalid order status: %q", s)
}

// OrderPaymentStatus mirrors the payment outcome on the order row.
type OrderPaymentStatus string

const (
	OrderUnpaid           OrderPaymentStatus = "unpaid"
	OrderPaid             OrderPaymentStatus = "paid"
	OrderPaymentFailed    OrderPaymentStatus = "failed"
	OrderPaymentCancelled OrderPaymentStatus = "cancelled"
	OrderPaymentRefunded  OrderPaymentStatus = "refunded"
)

// RedeemStatus tracks whether the code sold by a redeem-code purchase was used.
type RedeemStatus string

const (
	RedeemPending RedeemStatus = "pending"
	RedeemUsed    RedeemStatus = "used"
)

// OrderItem is one line of an order. ProductID is nil for synthetic lines
// such as a purchased redeem code.
type OrderItem struct {
	ID             uuid.UUID       `json:"id"`
	ProductID      *uuid.UUID      `json:"product_id,omitempty"`
	SubProductName string          `json:"sub_product_name"`
	Quantity       int             `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

// Order represents an orders row with its items.
type Order struct {
	ID            uuid.UUID          `json:"id"`
	OrderNumber   string             `json:"order_number"`
	CustomerID    uuid.UUID          `json:"customer_id"`
	ResellerID    *uuid.UUID         `json:"reseller_id,omitempty"`
	Items         []OrderItem        `json:"items"`
	Total         decimal.Decimal    `json:"total"`
	Cost          decimal.Decimal    `json:"cost"`
	Status        OrderStatus        `json:"status"`
	PaymentStatus OrderPaymentStatus `json:"payment_status"`
	RedeemCode    *string            `json:"redeem_code,omitempty"`
	RedeemStatus  *RedeemStatus      `json:"redeem_status,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// BelongsToReseller reports whether the order is assigned to resellerID.
func (o *Order) BelongsToReseller(resellerID uuid.UUID) bool {
	return o.ResellerID != nil && *o.ResellerID == resellerID
}

// NewOrderNumber builds a human-facing order number: ORD-YYYYMMDD-XXXXXX.
func NewOrderNumber(now time.Time, suffix string) string {
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix)
}

// BulkAction is the action requested by a reseller bulk operation.
type BulkAction string

const (
	BulkProcess BulkAction = "process"
	BulkApprove BulkAction = "approve"
)

// ParseBulkAction validates a bulk action. approve and process both move
// pending orders to processing.
func ParseBulkAction(s string) (BulkAction, error) {
	switch BulkAction(s) {
	case BulkProcess, BulkApprove:
		return BulkAction(s), nil
	}
	return "", fmt.Errorf("invalid bulk action: %q", s)
}

// BulkResult reports which orders a bulk operation advanced.
type BulkResult struct {
	Processed []uuid.UUID     `json:"processed"`
	Skipped   []uuid.UUID     `json:"skipped"`
	TotalCost decimal.Decimal `json:"total_cost"`
}
