package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NotificationKind groups notifications for clients.
type NotificationKind string

const (
	NotifyOrder    NotificationKind = "order"
	NotifyPayment  NotificationKind = "payment"
	NotifyWallet   NotificationKind = "wallet"
	NotifyRedeem   NotificationKind = "redeem"
	NotifyAccount  NotificationKind = "account"
	NotifySettling NotificationKind = "settlement"
)

// Notification is a user-facing message persisted and pushed best-effort.
type Notification struct {
	ID        uuid.UUID        `json:"id"`
	UserID    uuid.UUID        `json:"user_id"`
	Kind      NotificationKind `json:"kind"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Data      json.RawMessage  `json:"data,omitempty"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"created_at"`
}
