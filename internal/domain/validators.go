package domain

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

var (
	currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)
	// Entity keys travel in URLs and broker message keys; keep them to a
	// safe charset.
	entityKeyRegex = regexp.MustCompile(`^[a-zA-Z0-9_.\-]{1,128}$`)
)

// ValidateCurrency checks if a currency code is ISO 4217 shaped.
func ValidateCurrency(currency string) error {
	if !currencyRegex.MatchString(currency) {
		return fmt.Errorf("invalid currency code: %q", currency)
	}
	return nil
}

// ValidateEntityKey checks an entity/aggregate key for routing safety.
func ValidateEntityKey(key string) error {
	if !entityKeyRegex.MatchString(key) {
		return fmt.Errorf("invalid entity key: %q", key)
	}
	return nil
}

// ValidatePositiveAmount checks that a minor-unit amount is positive.
func ValidatePositiveAmount(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive, got %d", amount)
	}
	return nil
}

// ValidateOddsValue checks a decimal odds value: strictly positive and
// at least 1.01 so every price carries a payout.
func ValidateOddsValue(d decimal.Decimal) error {
	if d.LessThan(decimal.NewFromFloat(1.01)) {
		return fmt.Errorf("decimal odds must be >= 1.01, got %s", d)
	}
	return nil
}

// ValidateBetType checks the wager structure discriminant.
func ValidateBetType(t BetType) error {
	switch t {
	case BetSingle, BetAccumulator, BetSystem:
		return nil
	default:
		return fmt.Errorf("invalid bet type: %q", t)
	}
}
