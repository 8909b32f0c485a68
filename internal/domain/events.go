package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- Wallet events ---

type FundsDepositedEvent struct {
	UserID        string    `json:"user_id"`
	Amount        Money     `json:"amount"`
	TransactionID uuid.UUID `json:"transaction_id"`
	ReferenceID   string    `json:"reference_id"`
	BalanceAfter  Money     `json:"balance_after"`
}

func (FundsDepositedEvent) EventName() string              { return "FundsDepositedEvent" }
func (FundsDepositedEvent) AggregateClass() AggregateClass { return AggregateWallet }

type FundsWithdrawnEvent struct {
	UserID        string    `json:"user_id"`
	Amount        Money     `json:"amount"`
	TransactionID uuid.UUID `json:"transaction_id"`
	ReferenceID   string    `json:"reference_id"`
	BalanceAfter  Money     `json:"balance_after"`
}

func (FundsWithdrawnEvent) EventName() string              { return "FundsWithdrawnEvent" }
func (FundsWithdrawnEvent) AggregateClass() AggregateClass { return AggregateWallet }

type FundsReservedEvent struct {
	UserID        string `json:"user_id"`
	BetID         string `json:"bet_id"`
	Amount        Money  `json:"amount"`
	ReservedAfter Money  `json:"reserved_after"`
	BalanceAfter  Money  `json:"balance_after"`
}

func (FundsReservedEvent) EventName() string              { return "FundsReservedEvent" }
func (FundsReservedEvent) AggregateClass() AggregateClass { return AggregateWallet }

type ReservationCommittedEvent struct {
	UserID       string `json:"user_id"`
	BetID        string `json:"bet_id"`
	Amount       Money  `json:"amount"`
	BalanceAfter Money  `json:"balance_after"`
}

func (ReservationCommittedEvent) EventName() string              { return "ReservationCommittedEvent" }
func (ReservationCommittedEvent) AggregateClass() AggregateClass { return AggregateWallet }

type ReservationReleasedEvent struct {
	UserID       string `json:"user_id"`
	BetID        string `json:"bet_id"`
	Amount       Money  `json:"amount"`
	BalanceAfter Money  `json:"balance_after"`
}

func (ReservationReleasedEvent) EventName() string              { return "ReservationReleasedEvent" }
func (ReservationReleasedEvent) AggregateClass() AggregateClass { return AggregateWallet }

type PayoutProcessedEvent struct {
	UserID       string `json:"user_id"`
	BetID        string `json:"bet_id"`
	SagaID       string `json:"saga_id"`
	Amount       Money  `json:"amount"`
	BalanceAfter Money  `json:"balance_after"`
}

func (PayoutProcessedEvent) EventName() string              { return "PayoutProcessedEvent" }
func (PayoutProcessedEvent) AggregateClass() AggregateClass { return AggregateWallet }

type PayoutReversedEvent struct {
	UserID       string `json:"user_id"`
	BetID        string `json:"bet_id"`
	SagaID       string `json:"saga_id"`
	Amount       Money  `json:"amount"`
	Reason       string `json:"reason"`
	BalanceAfter Money  `json:"balance_after"`
}

func (PayoutReversedEvent) EventName() string              { return "PayoutReversedEvent" }
func (PayoutReversedEvent) AggregateClass() AggregateClass { return AggregateWallet }

type TransactionFailedEvent struct {
	UserID      string          `json:"user_id"`
	Type        TransactionType `json:"type"`
	Amount      Money           `json:"amount"`
	ReferenceID string          `json:"reference_id,omitempty"`
	FailureCode string          `json:"failure_code"`
	Reason      string          `json:"reason"`
}

func (TransactionFailedEvent) EventName() string              { return "TransactionFailedEvent" }
func (TransactionFailedEvent) AggregateClass() AggregateClass { return AggregateWallet }

// --- Bet events ---

type BetPlacedEvent struct {
	BetID          string          `json:"bet_id"`
	UserID         string          `json:"user_id"`
	EventID        string          `json:"event_id"`
	MarketID       string          `json:"market_id"`
	SelectionID    string          `json:"selection_id"`
	Amount         Money           `json:"amount"`
	AcceptableOdds decimal.Decimal `json:"acceptable_odds"`
	Type           BetType         `json:"type"`
}

func (BetPlacedEvent) EventName() string              { return "BetPlacedEvent" }
func (BetPlacedEvent) AggregateClass() AggregateClass { return AggregateBet }

type BetAcceptedEvent struct {
	BetID           string          `json:"bet_id"`
	UserID          string          `json:"user_id"`
	LockedOdds      decimal.Decimal `json:"locked_odds"`
	PotentialPayout Money           `json:"potential_payout"`
}

func (BetAcceptedEvent) EventName() string              { return "BetAcceptedEvent" }
func (BetAcceptedEvent) AggregateClass() AggregateClass { return AggregateBet }

type BetRejectedEvent struct {
	BetID  string `json:"bet_id"`
	UserID string `json:"user_id"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

func (BetRejectedEvent) EventName() string              { return "BetRejectedEvent" }
func (BetRejectedEvent) AggregateClass() AggregateClass { return AggregateBet }

type BetSettledEvent struct {
	BetID  string    `json:"bet_id"`
	UserID string    `json:"user_id"`
	Status BetStatus `json:"status"`
	Payout *Money    `json:"payout,omitempty"`
	SagaID string    `json:"saga_id,omitempty"`
}

func (BetSettledEvent) EventName() string              { return "BetSettledEvent" }
func (BetSettledEvent) AggregateClass() AggregateClass { return AggregateBet }

type BetCashedOutEvent struct {
	BetID         string          `json:"bet_id"`
	UserID        string          `json:"user_id"`
	Payout        Money           `json:"payout"`
	Fee           Money           `json:"fee"`
	OddsAtCashOut decimal.Decimal `json:"odds_at_cash_out"`
}

func (BetCashedOutEvent) EventName() string              { return "BetCashedOutEvent" }
func (BetCashedOutEvent) AggregateClass() AggregateClass { return AggregateBet }

type BetSettlementReversedEvent struct {
	BetID          string    `json:"bet_id"`
	UserID         string    `json:"user_id"`
	SagaID         string    `json:"saga_id"`
	PreviousStatus BetStatus `json:"previous_status"`
	RestoredStatus BetStatus `json:"restored_status"`
	Reason         string    `json:"reason"`
}

func (BetSettlementReversedEvent) EventName() string              { return "BetSettlementReversedEvent" }
func (BetSettlementReversedEvent) AggregateClass() AggregateClass { return AggregateBet }

// --- Odds events ---

type MarketInitializedEvent struct {
	MarketID   string                     `json:"market_id"`
	Selections map[string]decimal.Decimal `json:"selections"`
	Source     string                     `json:"source"`
}

func (MarketInitializedEvent) EventName() string              { return "MarketInitializedEvent" }
func (MarketInitializedEvent) AggregateClass() AggregateClass { return AggregateOdds }

type OddsUpdatedEvent struct {
	MarketID        string                     `json:"market_id"`
	Selections      map[string]decimal.Decimal `json:"selections"`
	Source          string                     `json:"source"`
	Reason          string                     `json:"reason,omitempty"`
	UpdatedBy       string                     `json:"updated_by,omitempty"`
	VolatilityScore float64                    `json:"volatility_score"`
}

func (OddsUpdatedEvent) EventName() string              { return "OddsUpdatedEvent" }
func (OddsUpdatedEvent) AggregateClass() AggregateClass { return AggregateOdds }

type OddsSuspendedEvent struct {
	MarketID    string `json:"market_id"`
	Reason      string `json:"reason"`
	Automatic   bool   `json:"automatic"`
	SuspendedBy string `json:"suspended_by,omitempty"`
}

func (OddsSuspendedEvent) EventName() string              { return "OddsSuspendedEvent" }
func (OddsSuspendedEvent) AggregateClass() AggregateClass { return AggregateOdds }

type OddsResumedEvent struct {
	MarketID  string `json:"market_id"`
	Reason    string `json:"reason"`
	ResumedBy string `json:"resumed_by,omitempty"`
}

func (OddsResumedEvent) EventName() string              { return "OddsResumedEvent" }
func (OddsResumedEvent) AggregateClass() AggregateClass { return AggregateOdds }

type OddsVolatilityChangedEvent struct {
	MarketID      string  `json:"market_id"`
	PreviousLevel string  `json:"previous_level"`
	NewLevel      string  `json:"new_level"`
	Score         float64 `json:"score"`
}

func (OddsVolatilityChangedEvent) EventName() string              { return "OddsVolatilityChangedEvent" }
func (OddsVolatilityChangedEvent) AggregateClass() AggregateClass { return AggregateOdds }

type OddsLockedEvent struct {
	MarketID    string          `json:"market_id"`
	BetID       string          `json:"bet_id"`
	SelectionID string          `json:"selection_id"`
	LockedOdds  decimal.Decimal `json:"locked_odds"`
}

func (OddsLockedEvent) EventName() string              { return "OddsLockedEvent" }
func (OddsLockedEvent) AggregateClass() AggregateClass { return AggregateOdds }

type OddsUnlockedEvent struct {
	MarketID   string   `json:"market_id"`
	BetID      string   `json:"bet_id"`
	Selections []string `json:"selections"`
}

func (OddsUnlockedEvent) EventName() string              { return "OddsUnlockedEvent" }
func (OddsUnlockedEvent) AggregateClass() AggregateClass { return AggregateOdds }

// --- Sport event and market events ---

type SportEventCreatedEvent struct {
	EventID      string    `json:"event_id"`
	Name         string    `json:"name"`
	Sport        string    `json:"sport"`
	Competition  string    `json:"competition"`
	StartTime    time.Time `json:"start_time"`
	Participants []string  `json:"participants"`
}

func (SportEventCreatedEvent) EventName() string              { return "SportEventCreatedEvent" }
func (SportEventCreatedEvent) AggregateClass() AggregateClass { return AggregateEvent }

type EventStatusChangedEvent struct {
	EventID  string      `json:"event_id"`
	Previous EventStatus `json:"previous"`
	New      EventStatus `json:"new"`
	Reason   string      `json:"reason,omitempty"`
}

func (EventStatusChangedEvent) EventName() string              { return "EventStatusChangedEvent" }
func (EventStatusChangedEvent) AggregateClass() AggregateClass { return AggregateEvent }

type MarketAddedEvent struct {
	EventID  string                     `json:"event_id"`
	MarketID string                     `json:"market_id"`
	Name     string                     `json:"name"`
	Outcomes map[string]decimal.Decimal `json:"outcomes"`
}

func (MarketAddedEvent) EventName() string              { return "MarketAddedEvent" }
func (MarketAddedEvent) AggregateClass() AggregateClass { return AggregateMarket }

type MarketStatusChangedEvent struct {
	EventID  string       `json:"event_id"`
	MarketID string       `json:"market_id"`
	Previous MarketStatus `json:"previous"`
	New      MarketStatus `json:"new"`
	Reason   string       `json:"reason,omitempty"`
}

func (MarketStatusChangedEvent) EventName() string              { return "MarketStatusChangedEvent" }
func (MarketStatusChangedEvent) AggregateClass() AggregateClass { return AggregateMarket }

// MarketSettledEvent is the settlement saga's trigger; the broker
// forwarder publishes it on the market topic family.
type MarketSettledEvent struct {
	EventID        string    `json:"event_id"`
	MarketID       string    `json:"market_id"`
	WinningOutcome string    `json:"winning_outcome"`
	Voided         bool      `json:"voided"`
	SettledAt      time.Time `json:"settled_at"`
}

func (MarketSettledEvent) EventName() string              { return "MarketSettledEvent" }
func (MarketSettledEvent) AggregateClass() AggregateClass { return AggregateMarket }

// --- Settlement saga events ---

type SettlementStartedEvent struct {
	SagaID             string `json:"saga_id"`
	EventID            string `json:"event_id"`
	MarketID           string `json:"market_id"`
	WinningSelectionID string `json:"winning_selection_id"`
	AffectedBets       int    `json:"affected_bets"`
}

func (SettlementStartedEvent) EventName() string              { return "SettlementStartedEvent" }
func (SettlementStartedEvent) AggregateClass() AggregateClass { return AggregateGeneral }

type SettlementCompletedEvent struct {
	SagaID       string `json:"saga_id"`
	MarketID     string `json:"market_id"`
	SettledBets  int    `json:"settled_bets"`
	TotalPayouts Money  `json:"total_payouts"`
	DurationMS   int64  `json:"duration_ms"`
}

func (SettlementCompletedEvent) EventName() string              { return "SettlementCompletedEvent" }
func (SettlementCompletedEvent) AggregateClass() AggregateClass { return AggregateGeneral }

type SettlementFailedEvent struct {
	SagaID       string   `json:"saga_id"`
	MarketID     string   `json:"market_id"`
	Error        string   `json:"error"`
	IsRetryable  bool     `json:"is_retryable"`
	FailedBetIDs []string `json:"failed_bet_ids"`
}

func (SettlementFailedEvent) EventName() string              { return "SettlementFailedEvent" }
func (SettlementFailedEvent) AggregateClass() AggregateClass { return AggregateGeneral }

type SettlementCompensatedEvent struct {
	SagaID            string   `json:"saga_id"`
	MarketID          string   `json:"market_id"`
	CompensatedBetIDs []string `json:"compensated_bet_ids"`
	ReversedPayouts   Money    `json:"reversed_payouts"`
}

func (SettlementCompensatedEvent) EventName() string              { return "SettlementCompensatedEvent" }
func (SettlementCompensatedEvent) AggregateClass() AggregateClass { return AggregateGeneral }

// --- Payload decoding ---

var eventFactories = map[string]func() DomainEvent{
	"FundsDepositedEvent":        func() DomainEvent { return &FundsDepositedEvent{} },
	"FundsWithdrawnEvent":        func() DomainEvent { return &FundsWithdrawnEvent{} },
	"FundsReservedEvent":         func() DomainEvent { return &FundsReservedEvent{} },
	"ReservationCommittedEvent":  func() DomainEvent { return &ReservationCommittedEvent{} },
	"ReservationReleasedEvent":   func() DomainEvent { return &ReservationReleasedEvent{} },
	"PayoutProcessedEvent":       func() DomainEvent { return &PayoutProcessedEvent{} },
	"PayoutReversedEvent":        func() DomainEvent { return &PayoutReversedEvent{} },
	"TransactionFailedEvent":     func() DomainEvent { return &TransactionFailedEvent{} },
	"BetPlacedEvent":             func() DomainEvent { return &BetPlacedEvent{} },
	"BetAcceptedEvent":           func() DomainEvent { return &BetAcceptedEvent{} },
	"BetRejectedEvent":           func() DomainEvent { return &BetRejectedEvent{} },
	"BetSettledEvent":            func() DomainEvent { return &BetSettledEvent{} },
	"BetCashedOutEvent":          func() DomainEvent { return &BetCashedOutEvent{} },
	"BetSettlementReversedEvent": func() DomainEvent { return &BetSettlementReversedEvent{} },
	"MarketInitializedEvent":     func() DomainEvent { return &MarketInitializedEvent{} },
	"OddsUpdatedEvent":           func() DomainEvent { return &OddsUpdatedEvent{} },
	"OddsSuspendedEvent":         func() DomainEvent { return &OddsSuspendedEvent{} },
	"OddsResumedEvent":           func() DomainEvent { return &OddsResumedEvent{} },
	"OddsVolatilityChangedEvent": func() DomainEvent { return &OddsVolatilityChangedEvent{} },
	"OddsLockedEvent":            func() DomainEvent { return &OddsLockedEvent{} },
	"OddsUnlockedEvent":          func() DomainEvent { return &OddsUnlockedEvent{} },
	"SportEventCreatedEvent":     func() DomainEvent { return &SportEventCreatedEvent{} },
	"EventStatusChangedEvent":    func() DomainEvent { return &EventStatusChangedEvent{} },
	"MarketAddedEvent":           func() DomainEvent { return &MarketAddedEvent{} },
	"MarketStatusChangedEvent":   func() DomainEvent { return &MarketStatusChangedEvent{} },
	"MarketSettledEvent":         func() DomainEvent { return &MarketSettledEvent{} },
	"SettlementStartedEvent":     func() DomainEvent { return &SettlementStartedEvent{} },
	"SettlementCompletedEvent":   func() DomainEvent { return &SettlementCompletedEvent{} },
	"SettlementFailedEvent":      func() DomainEvent { return &SettlementFailedEvent{} },
	"SettlementCompensatedEvent": func() DomainEvent { return &SettlementCompensatedEvent{} },
}

// DecodeEvent reconstructs a typed payload from a stream record or broker
// message. Unknown types return an error so consumers can dead-letter them.
func DecodeEvent(eventType string, payload json.RawMessage) (DomainEvent, error) {
	factory, ok := eventFactories[eventType]
	if !ok {
		return nil, ErrValidation("unknown event type " + eventType)
	}
	ev := factory()
	if err := json.Unmarshal(payload, ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", eventType, err)
	}
	return ev, nil
}
