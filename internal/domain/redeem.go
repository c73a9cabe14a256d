package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RedeemCodeStatus is the lifecycle status of a redeem code or card.
type RedeemCodeStatus string

const (
	CodeActive  RedeemCodeStatus = "active"
	CodeUsed    RedeemCodeStatus = "used"
	CodeExpiredStatus RedeemCodeStatus = "expired"
)

// Valid reports whether s is a known status.
func (s RedeemCodeStatus) Valid() bool {
	return s == CodeActive || s == CodeUsed || s == CodeExpiredStatus
}

// DefaultCodePrefix is used when an admin does not supply one.
const DefaultCodePrefix = "GMP"

// RedeemCode is a single-use prepaid code redeemable into a wallet.
type RedeemCode struct {
	ID        uuid.UUID        `json:"id"`
	Code      string           `json:"code"`
	Amount    decimal.Decimal  `json:"amount"`
	Status    RedeemCodeStatus `json:"status"`
	CreatedBy *uuid.UUID       `json:"created_by,omitempty"`
	UsedBy    *uuid.UUID       `json:"used_by,omitempty"`
	UsedAt    *time.Time       `json:"used_at,omitempty"`
	ExpiresAt time.Time        `json:"expires_at"`
	CreatedAt time.Time        `json:"created_at"`
}

// CheckRedeemable returns the error a redemption attempt of c at now must
// fail with, or nil.
func (c *RedeemCode) CheckRedeemable(now time.Time) error {
	switch {
	case c.Status == CodeUsed:
		return ErrConflict("redeem code already used")
	case c.Status == CodeExpiredStatus || !c.ExpiresAt.After(now):
		return ErrExpired("redeem code expired")
	case c.Status != CodeActive:
		return ErrConflict("redeem code is not active")
	}
	return nil
}

// NormalizeCode uppercases and trims a code typed by a user.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// RedeemCard is a catalogued prepaid card; buying one yields a fresh
// RedeemCode of the same amount.
type RedeemCard struct {
	ID          uuid.UUID        `json:"id"`
	Amount      decimal.Decimal  `json:"amount"`
	Description string           `json:"description"`
	Status      RedeemCodeStatus `json:"status"`
	CreatedBy   *uuid.UUID       `json:"created_by,omitempty"`
	UsedBy      *uuid.UUID       `json:"used_by,omitempty"`
	UsedAt      *time.Time       `json:"used_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}
