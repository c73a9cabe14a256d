package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates all domain event types.
type EventType string

const (
	EventWalletTxPosted     EventType = "ledger.wallet.transaction.posted"
	EventOrderCreated       EventType = "ledger.order.created"
	EventOrderProcessing    EventType = "ledger.order.processing"
	EventOrderStatusChanged EventType = "ledger.order.status.changed"
	EventOrderRefunded      EventType = "ledger.order.refunded"
	EventOrdersBulkDebited  EventType = "ledger.order.bulk.processed"
	EventPaymentInitialized EventType = "ledger.payment.initialized"
	EventPaymentSettled     EventType = "ledger.payment.settled"
	EventRedeemCodeUsed     EventType = "ledger.redeem.code.used"
	EventRedeemCodeRevoked  EventType = "ledger.redeem.code.revoked"
	EventRedeemCardUsed     EventType = "ledger.redeem.card.used"
	EventResellerRegistered EventType = "ledger.reseller.registered"
)

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const (
	AggregateWallet  AggregateType = "wallet"
	AggregateOrder   AggregateType = "order"
	AggregatePayment AggregateType = "payment"
	AggregateRedeem  AggregateType = "redeem"
	AggregateUser    AggregateType = "user"
)

// OutboxDraft is the payload written to the event_outbox table.
// SeqID is only populated when a row is read back by the poller.
type OutboxDraft struct {
	SeqID         int64           `json:"-"`
	EventID       uuid.UUID       `json:"eventId"`
	AggregateType AggregateType   `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     EventType       `json:"eventType"`
	PartitionKey  string          `json:"partitionKey"`
	Headers       json.RawMessage `json:"headers"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
}
