package domain

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

var (
	emailRegex     = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	currencyRegex  = regexp.MustCompile(`^[A-Z]{3}$`)
	subdomainRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9\-]{1,61}[a-z0-9])?$`)
	prefixRegex    = regexp.MustCompile(`^[A-Z0-9]{2,8}$`)
)

// MaxCodesPerBatch caps a single redeem code generation request.
const MaxCodesPerBatch = 1000

// ValidateEmail checks if an email address is valid.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// ValidateCurrency checks if a currency code is ISO 4217.
func ValidateCurrency(currency string) error {
	if !currencyRegex.MatchString(currency) {
		return fmt.Errorf("invalid currency code: %s", currency)
	}
	return nil
}

// ValidatePositiveAmount checks that a money amount is positive and has at
// most two decimal places.
func ValidatePositiveAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", amount.String())
	}
	if !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("amount must have at most 2 decimal places, got %s", amount.String())
	}
	return nil
}

// ValidateQuantity checks an order line quantity.
func ValidateQuantity(q int) error {
	if q < 1 {
		return fmt.Errorf("quantity must be at least 1, got %d", q)
	}
	return nil
}

// ValidateSubdomain checks a store subdomain label.
func ValidateSubdomain(s string) error {
	if !subdomainRegex.MatchString(s) {
		return fmt.Errorf("invalid subdomain: %q", s)
	}
	return nil
}

// ValidateCodePrefix checks a redeem code prefix.
func ValidateCodePrefix(p string) error {
	if !prefixRegex.MatchString(p) {
		return fmt.Errorf("prefix must be 2-8 uppercase alphanumerics, got %q", p)
	}
	return nil
}

// ValidateCodeCount checks the size of a redeem code batch.
func ValidateCodeCount(n int) error {
	if n < 1 || n > MaxCodesPerBatch {
		return fmt.Errorf("count must be between 1 and %d, got %d", MaxCodesPerBatch, n)
	}
	return nil
}
