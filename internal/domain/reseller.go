package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Store is a reseller's storefront and the markup bounds it allows.
type Store struct {
	ID            uuid.UUID       `json:"id"`
	OwnerID       uuid.UUID       `json:"owner_id"`
	Name          string          `json:"name"`
	Subdomain     string          `json:"subdomain"`
	MinimumMarkup decimal.Decimal `json:"minimum_markup"`
	MaximumMarkup decimal.Decimal `json:"maximum_markup"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ValidateMarkup checks a markup percentage against the store bounds.
func (s *Store) ValidateMarkup(markup decimal.Decimal) error {
	if markup.LessThan(s.MinimumMarkup) || markup.GreaterThan(s.MaximumMarkup) {
		return fmt.Errorf("markup must be between %s and %s", s.MinimumMarkup.String(), s.MaximumMarkup.String())
	}
	return nil
}

// ResellerProduct is a reseller's markup on a catalog product.
type ResellerProduct struct {
	ResellerID uuid.UUID       `json:"reseller_id"`
	ProductID  uuid.UUID       `json:"product_id"`
	Markup     decimal.Decimal `json:"markup"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Product is a read-only catalog entry.
type Product struct {
	ID        uuid.UUID        `json:"id"`
	Name      string           `json:"name"`
	Active    bool             `json:"active"`
	Variants  []ProductVariant `json:"variants"`
	CreatedAt time.Time        `json:"created_at"`
}

// ProductVariant is a purchasable sub-product with its wholesale price.
type ProductVariant struct {
	ID          uuid.UUID       `json:"id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
}

// PriceWithMarkup applies a percentage markup to a wholesale price, rounded
// to cents.
func PriceWithMarkup(cost, markupPercent decimal.Decimal) decimal.Decimal {
	return cost.Add(cost.Mul(markupPercent).Div(hundred)).Round(2)
}
