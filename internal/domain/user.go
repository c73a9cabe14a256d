package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Role is the marketplace role of a user.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleReseller Role = "reseller"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleReseller, RoleAdmin:
		return true
	}
	return false
}

// UserStatus is the account status of a user. Users are never deleted,
// only moved between statuses.
type UserStatus string

const (
	UserActive    UserStatus = "active"
	UserPending   UserStatus = "pending"
	UserSuspended UserStatus = "suspended"
	UserRejected  UserStatus = "rejected"
)

// Valid reports whether s is a known user status.
func (s UserStatus) Valid() bool {
	switch s {
	case UserActive, UserPending, UserSuspended, UserRejected:
		return true
	}
	return false
}

// Wallet is the balance embedded in every user row.
type Wallet struct {
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
}

// User represents a users row: customer, reseller or admin.
type User struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	Phone        string     `json:"phone,omitempty"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	Status       UserStatus `json:"status"`
	Wallet       Wallet     `json:"wallet"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
