package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

func newDraft(agg AggregateType, aggID string, evt EventType, partition string, payload any) OutboxDraft {
	data, _ := json.Marshal(payload)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: agg,
		AggregateID:   aggID,
		EventType:     evt,
		PartitionKey:  partition,
		Headers:       json.RawMessage(`{}`),
		Payload:       data,
		OccurredAt:    time.Now(),
	}
}

// NewWalletTxPostedEvent creates the standard wallet event for a ledger row.
func NewWalletTxPostedEvent(tx *WalletTransaction) OutboxDraft {
	return newDraft(AggregateWallet, tx.UserID.String(), EventWalletTxPosted, tx.UserID.String(), tx)
}

// NewOrderEvent records an order lifecycle change. Orders partition by
// customer so a customer's events stay ordered.
func NewOrderEvent(evt EventType, o *Order) OutboxDraft {
	return newDraft(AggregateOrder, o.ID.String(), evt, o.CustomerID.String(), map[string]any{
		"order_id":       o.ID,
		"order_number":   o.OrderNumber,
		"customer_id":    o.CustomerID,
		"reseller_id":    o.ResellerID,
		"status":         o.Status,
		"payment_status": o.PaymentStatus,
		"total":          o.Total,
		"cost":           o.Cost,
	})
}

// NewBulkProcessedEvent records one aggregate debit covering several orders.
func NewBulkProcessedEvent(resellerID uuid.UUID, orderIDs []uuid.UUID, total string) OutboxDraft {
	return newDraft(AggregateOrder, resellerID.String(), EventOrdersBulkDebited, resellerID.String(), map[string]any{
		"reseller_id": resellerID,
		"order_ids":   orderIDs,
		"total_cost":  total,
	})
}

// NewPaymentEvent records a payment initialization or settlement.
func NewPaymentEvent(evt EventType, p *Payment) OutboxDraft {
	return newDraft(AggregatePayment, p.PaymentID, evt, p.PaymentID, map[string]any{
		"payment_id":     p.PaymentID,
		"type":           p.Metadata.Type,
		"status":         p.Status,
		"amount":         p.Amount,
		"currency":       p.Currency,
		"order_id":       p.OrderID,
		"user_id":        p.UserID,
		"transaction_id": p.TransactionID,
	})
}

// NewRedeemEvent records a code or card being consumed.
func NewRedeemEvent(evt EventType, id, userID uuid.UUID, amount string) OutboxDraft {
	return newDraft(AggregateRedeem, id.String(), evt, userID.String(), map[string]any{
		"id":      id,
		"user_id": userID,
		"amount":  amount,
	})
}

// NewResellerRegisteredEvent records a reseller account created by a paid registration.
func NewResellerRegisteredEvent(u *User, storeID uuid.UUID) OutboxDraft {
	return newDraft(AggregateUser, u.ID.String(), EventResellerRegistered, u.ID.String(), map[string]any{
		"user_id":  u.ID,
		"email":    u.Email,
		"store_id": storeID,
		"status":   u.Status,
	})
}
