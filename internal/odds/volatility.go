package odds

import (
	"time"

	"github.com/shopspring/decimal"
)

// VolatilityLevel buckets a volatility score for display and alerting.
type VolatilityLevel string

const (
	VolatilityLow     VolatilityLevel = "low"
	VolatilityMedium  VolatilityLevel = "medium"
	VolatilityHigh    VolatilityLevel = "high"
	VolatilityExtreme VolatilityLevel = "extreme"
)

// AutoSuspendThreshold is the volatility score at which a market
// suspends itself during an update.
const AutoSuspendThreshold = 50.0

// LevelForScore maps a volatility score onto its level.
func LevelForScore(score float64) VolatilityLevel {
	switch {
	case score < 10:
		return VolatilityLow
	case score < 25:
		return VolatilityMedium
	case score < 50:
		return VolatilityHigh
	default:
		return VolatilityExtreme
	}
}

// Update records one price movement for a selection.
type Update struct {
	Previous  decimal.Decimal `json:"previous"`
	New       decimal.Decimal `json:"new"`
	Source    string          `json:"source"`
	Reason    string          `json:"reason,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// PercentageChange returns |new - previous| / previous * 100.
func (u Update) PercentageChange() decimal.Decimal {
	if u.Previous.IsZero() {
		return decimal.Zero
	}
	return u.New.Sub(u.Previous).Abs().Div(u.Previous).Mul(hundred)
}

// History is the ordered sequence of updates for one (market, selection).
type History struct {
	MarketID  string   `json:"market_id"`
	Selection string   `json:"selection"`
	Updates   []Update `json:"updates"`
}

// Append records an update. Updates arrive through the single-threaded
// market entity, so they are already in time order.
func (h *History) Append(u Update) {
	h.Updates = append(h.Updates, u)
}

// WithinWindow returns the updates that occurred in (now-window, now].
func (h *History) WithinWindow(now time.Time, window time.Duration) []Update {
	cutoff := now.Add(-window)
	var out []Update
	for _, u := range h.Updates {
		if u.UpdatedAt.After(cutoff) && !u.UpdatedAt.After(now) {
			out = append(out, u)
		}
	}
	return out
}

// VolatilityScore combines movement magnitude and frequency over the
// window: sum of percentage changes scaled by updates-per-window-hour.
func (h *History) VolatilityScore(now time.Time, window time.Duration) float64 {
	recent := h.WithinWindow(now, window)
	if len(recent) == 0 {
		return 0
	}
	totalChange := decimal.Zero
	for _, u := range recent {
		totalChange = totalChange.Add(u.PercentageChange())
	}
	hours := window.Hours()
	if hours <= 0 {
		return 0
	}
	frequency := float64(len(recent)) / hours
	score, _ := totalChange.Float64()
	return score * frequency
}

// MaxScore returns the market-wide volatility: the maximum selection
// score across all histories.
func MaxScore(histories map[string]*History, now time.Time, window time.Duration) float64 {
	var max float64
	for _, h := range histories {
		if s := h.VolatilityScore(now, window); s > max {
			max = s
		}
	}
	return max
}
