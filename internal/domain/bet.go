package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BetStatus is the lifecycle state of a bet.
type BetStatus string

const (
	BetPending   BetStatus = "pending"
	BetAccepted  BetStatus = "accepted"
	BetRejected  BetStatus = "rejected"
	BetWon       BetStatus = "won"
	BetLost      BetStatus = "lost"
	BetVoid      BetStatus = "void"
	BetCashedOut BetStatus = "cash_out"
)

// BetType enumerates supported wager structures.
type BetType string

const (
	BetSingle      BetType = "single"
	BetAccumulator BetType = "accumulator"
	BetSystem      BetType = "system"
)

// betTransitions lists the allowed next states per status. Terminal
// states have no successors; reversals within a settlement saga bypass
// this table deliberately.
var betTransitions = map[BetStatus][]BetStatus{
	BetPending:  {BetAccepted, BetRejected},
	BetAccepted: {BetWon, BetLost, BetVoid, BetCashedOut},
}

// CanTransitionTo reports whether the state machine allows s -> next.
func (s BetStatus) CanTransitionTo(next BetStatus) bool {
	for _, allowed := range betTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no regular transition leaves this status.
func (s BetStatus) IsTerminal() bool {
	return len(betTransitions[s]) == 0 && s != ""
}

// Bet is a single wager against a market selection. Odds holds the
// decimal odds locked at placement.
type Bet struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	EventID         string          `json:"event_id"`
	MarketID        string          `json:"market_id"`
	SelectionID     string          `json:"selection_id"`
	Amount          Money           `json:"amount"`
	Odds            decimal.Decimal `json:"odds"`
	Status          BetStatus       `json:"status"`
	Type            BetType         `json:"type"`
	PlacedAt        time.Time       `json:"placed_at"`
	SettledAt       *time.Time      `json:"settled_at,omitempty"`
	Payout          *Money          `json:"payout,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	VoidReason      string          `json:"void_reason,omitempty"`
}

// PotentialPayout is stake times locked odds, rounded to minor units.
func (b *Bet) PotentialPayout() Money {
	return b.Amount.MulRound(b.Odds)
}

// IsSettled reports whether the bet reached a settlement outcome.
func (b *Bet) IsSettled() bool {
	return b.Status == BetWon || b.Status == BetLost || b.Status == BetVoid
}

// IsActive reports whether the bet still awaits an outcome.
func (b *Bet) IsActive() bool {
	return b.Status == BetPending || b.Status == BetAccepted
}

// CanBeVoided reports whether voiding is allowed in the current state.
func (b *Bet) CanBeVoided() bool {
	return b.Status == BetAccepted || b.Status == BetPending
}

// CanBeCashedOut reports whether an early cash-out is allowed.
func (b *Bet) CanBeCashedOut() bool {
	return b.Status == BetAccepted
}

// CashOutFeeRate is the house fee applied to early cash-outs; the user
// receives stake * currentOdds * (1 - CashOutFeeRate).
var CashOutFeeRate = decimal.NewFromFloat(0.05)

// CashOutValue computes the net early-exit amount at the given market odds.
func (b *Bet) CashOutValue(currentOdds decimal.Decimal) Money {
	factor := currentOdds.Mul(decimal.NewFromInt(1).Sub(CashOutFeeRate))
	return b.Amount.MulRound(factor)
}
