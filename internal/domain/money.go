package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is a fixed-point monetary amount in minor units (cents).
// Amounts are non-negative; negative balances are modelled as failed
// operations, never as negative Money.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// NewMoney builds a Money value, rejecting negative amounts and
// malformed currency codes.
func NewMoney(amount int64, currency string) (Money, error) {
	if amount < 0 {
		return Money{}, ErrValidation(fmt.Sprintf("money amount must be non-negative, got %d", amount))
	}
	if err := ValidateCurrency(currency); err != nil {
		return Money{}, ErrValidation(err.Error())
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// Zero returns a zero amount in the given currency.
func Zero(currency string) Money {
	return Money{Amount: 0, Currency: currency}
}

// MoneyFromDecimal converts a major-unit decimal (e.g. "100.50") into
// minor units, rounding half away from zero at the second place.
func MoneyFromDecimal(major decimal.Decimal, currency string) (Money, error) {
	minor := major.Shift(2).Round(0)
	return NewMoney(minor.IntPart(), currency)
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.NewFromInt(m.Amount).Shift(-2)
}

// Add returns m + o, failing on currency mismatch.
func (m Money) Add(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, ErrCurrencyMismatch(m.Currency, o.Currency)
	}
	return Money{Amount: m.Amount + o.Amount, Currency: m.Currency}, nil
}

// Subtract returns m - o, failing on currency mismatch or a negative result.
func (m Money) Subtract(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, ErrCurrencyMismatch(m.Currency, o.Currency)
	}
	if o.Amount > m.Amount {
		return Money{}, ErrValidation(fmt.Sprintf("subtraction result would be negative: %d - %d", m.Amount, o.Amount))
	}
	return Money{Amount: m.Amount - o.Amount, Currency: m.Currency}, nil
}

// Compare returns -1, 0 or 1, failing on currency mismatch.
func (m Money) Compare(o Money) (int, error) {
	if m.Currency != o.Currency {
		return 0, ErrCurrencyMismatch(m.Currency, o.Currency)
	}
	switch {
	case m.Amount < o.Amount:
		return -1, nil
	case m.Amount > o.Amount:
		return 1, nil
	default:
		return 0, nil
	}
}

// MulRound multiplies by a decimal factor and rounds to the nearest
// minor unit (half away from zero). Used for payout = stake * odds.
func (m Money) MulRound(factor decimal.Decimal) Money {
	minor := decimal.NewFromInt(m.Amount).Mul(factor).Round(0)
	return Money{Amount: minor.IntPart(), Currency: m.Currency}
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.Amount == 0 }

// IsPositive reports whether the amount is strictly positive.
func (m Money) IsPositive() bool { return m.Amount > 0 }

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Decimal().StringFixed(2), m.Currency)
}
