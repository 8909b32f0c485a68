// Package odds holds the price primitives for market selections: decimal
// odds with fractional/American conversions, update history, and the
// volatility scoring that drives automatic market suspension.
package odds

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stakemesh/platform/internal/domain"
)

var (
	one     = decimal.NewFromInt(1)
	two     = decimal.NewFromInt(2)
	hundred = decimal.NewFromInt(100)
)

// Odds is one price quote for a market selection. Decimal is the
// canonical representation, rounded to two places.
type Odds struct {
	Decimal   decimal.Decimal `json:"decimal"`
	MarketID  string          `json:"market_id"`
	Selection string          `json:"selection"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
}

// New validates and rounds a decimal price into an Odds value.
func New(dec decimal.Decimal, marketID, selection, source string, at time.Time) (Odds, error) {
	rounded := dec.Round(2)
	if err := domain.ValidateOddsValue(rounded); err != nil {
		return Odds{}, domain.ErrValidation(err.Error())
	}
	return Odds{
		Decimal:   rounded,
		MarketID:  marketID,
		Selection: selection,
		Source:    source,
		Timestamp: at,
	}, nil
}

// Fractional returns the fractional representation (decimal - 1).
func (o Odds) Fractional() decimal.Decimal {
	return o.Decimal.Sub(one).Round(2)
}

// American returns the US moneyline representation: (d-1)*100 for d >= 2,
// otherwise -100/(d-1).
func (o Odds) American() decimal.Decimal {
	if o.Decimal.GreaterThanOrEqual(two) {
		return o.Decimal.Sub(one).Mul(hundred).Round(2)
	}
	return hundred.Neg().Div(o.Decimal.Sub(one)).Round(2)
}

// ImpliedProbability returns 1/decimal, rounded to four places.
func (o Odds) ImpliedProbability() decimal.Decimal {
	return one.Div(o.Decimal).Round(4)
}

// FromFractional converts a fractional price back to decimal odds.
func FromFractional(frac decimal.Decimal) decimal.Decimal {
	return frac.Add(one).Round(2)
}

// FromAmerican converts a US moneyline back to decimal odds.
func FromAmerican(american decimal.Decimal) decimal.Decimal {
	if american.IsPositive() {
		return american.Div(hundred).Add(one).Round(2)
	}
	return one.Sub(hundred.Div(american)).Round(2)
}

// Quote is the per-selection view embedded in a market snapshot.
type Quote struct {
	Decimal            decimal.Decimal `json:"decimal"`
	Fractional         decimal.Decimal `json:"fractional"`
	American           decimal.Decimal `json:"american"`
	ImpliedProbability decimal.Decimal `json:"implied_probability"`
	Source             string          `json:"source"`
	Timestamp          time.Time       `json:"timestamp"`
}

// QuoteOf expands an Odds value into its selectable representations.
func QuoteOf(o Odds) Quote {
	return Quote{
		Decimal:            o.Decimal,
		Fractional:         o.Fractional(),
		American:           o.American(),
		ImpliedProbability: o.ImpliedProbability(),
		Source:             o.Source,
		Timestamp:          o.Timestamp,
	}
}

// Snapshot is the full market price picture at a point in time.
type Snapshot struct {
	MarketID         string           `json:"market_id"`
	Selections       map[string]Quote `json:"selections"`
	Timestamp        time.Time        `json:"timestamp"`
	Volatility       VolatilityLevel  `json:"volatility"`
	VolatilityScore  float64          `json:"volatility_score"`
	IsSuspended      bool             `json:"is_suspended"`
	SuspensionReason string           `json:"suspension_reason,omitempty"`
	TotalMargin      decimal.Decimal  `json:"total_margin"`
}

// Margin computes the overround: (sum of implied probabilities - 1) * 100.
func Margin(selections map[string]Odds) decimal.Decimal {
	sum := decimal.Zero
	for _, o := range selections {
		sum = sum.Add(o.ImpliedProbability())
	}
	return sum.Sub(one).Mul(hundred).Round(2)
}
