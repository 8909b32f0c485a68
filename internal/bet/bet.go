// Package bet is the per-bet state machine entity, plus the per-user
// and per-market bet indexes. Placement coordinates the wallet
// reservation and the odds lock; settlement is driven by the saga and
// is idempotent per saga.
package bet

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stakemesh/platform/internal/actor"
	"github.com/stakemesh/platform/internal/domain"
	"github.com/stakemesh/platform/internal/eventlog"
	"github.com/stakemesh/platform/internal/market"
	"github.com/stakemesh/platform/internal/wallet"
)

// KindBet is the entity kind; the key is the bet ID.
const KindBet actor.Kind = "bet"

// AggregateID returns the event-stream aggregate for a bet.
func AggregateID(betID string) string { return "bet-" + betID }

// cashOutSaga scopes the wallet references of a cash-out, which runs
// outside any settlement saga.
const cashOutSaga = "cashout"

// voidSaga scopes the wallet references of a caller-initiated void.
const voidSaga = "void"

// settleOutcome remembers one saga's settlement so replays and
// reversals see the original result.
type settleOutcome struct {
	Status   domain.BetStatus `json:"status"`
	Payout   *domain.Money    `json:"payout,omitempty"`
	Reversed bool             `json:"reversed"`
}

type state struct {
	Exists         bool            `json:"exists"`
	Bet            domain.Bet      `json:"bet"`
	AcceptableOdds decimal.Decimal `json:"acceptable_odds"`

	// ReservationHeld and StakeCommitted track where the stake sits so
	// void, cash-out and compensation pick the right wallet operation.
	ReservationHeld bool `json:"reservation_held"`
	StakeCommitted  bool `json:"stake_committed"`

	RejectionCode string                   `json:"rejection_code,omitempty"`
	SagaResults   map[string]settleOutcome `json:"saga_results,omitempty"`
}

// Entity is one activated bet.
type Entity struct {
	env     *actor.Env
	log     *eventlog.Log
	wallets *wallet.Client
	markets *market.Client
	indexes *MarketIndexClient
	state   state
	now     func() time.Time
}

// NewFactory returns the bet entity factory for runtime registration.
func NewFactory(log *eventlog.Log) actor.Factory {
	return func(env *actor.Env) actor.Entity {
		return &Entity{
			env:     env,
			log:     log,
			wallets: wallet.NewClient(env.Caller),
			markets: market.NewClient(env.Caller),
			indexes: NewMarketIndexClient(env.Caller),
			now:     func() time.Time { return time.Now().UTC() },
		}
	}
}

func (e *Entity) OnActivate(ctx context.Context) error {
	found, err := e.env.State.Load(ctx, &e.state)
	if err != nil {
		return err
	}
	if found && e.state.SagaResults == nil {
		e.state.SagaResults = make(map[string]settleOutcome)
	}
	return nil
}

func (e *Entity) OnDeactivate(ctx context.Context, _ actor.DeactivateReason) error {
	if !e.state.Exists {
		return nil
	}
	return e.env.State.Save(ctx, &e.state)
}

// --- Requests and results ---

type PlaceRequest struct {
	BetID          string          `json:"bet_id"`
	UserID         string          `json:"user_id"`
	EventID        string          `json:"event_id"`
	MarketID       string          `json:"market_id"`
	SelectionID    string          `json:"selection_id"`
	Amount         domain.Money    `json:"amount"`
	AcceptableOdds decimal.Decimal `json:"acceptable_odds"`
	Type           domain.BetType  `json:"type"`
}

func (r PlaceRequest) equal(o PlaceRequest) bool {
	return r.BetID == o.BetID && r.UserID == o.UserID && r.EventID == o.EventID &&
		r.MarketID == o.MarketID && r.SelectionID == o.SelectionID &&
		r.Amount == o.Amount && r.AcceptableOdds.Equal(o.AcceptableOdds) && r.Type == o.Type
}

type VoidRequest struct {
	Reason string `json:"reason"`
}

type SettleRequest struct {
	FinalStatus domain.BetStatus `json:"final_status"`
	Payout      *domain.Money    `json:"payout,omitempty"`
	SagaID      string           `json:"saga_id"`
}

type ReverseRequest struct {
	SagaID string `json:"saga_id"`
	Reason string `json:"reason"`
}

type CashOutResult struct {
	Bet           domain.Bet      `json:"bet"`
	PayoutAmount  domain.Money    `json:"payout_amount"`
	Fee           domain.Money    `json:"fee"`
	OddsAtCashOut decimal.Decimal `json:"odds_at_cash_out"`
	CashedOutAt   time.Time       `json:"cashed_out_at"`
}

// HistoryEntry is one reconstructed point of the bet's lifecycle,
// derived from its event stream.
type HistoryEntry struct {
	Version   int64            `json:"version"`
	EventType string           `json:"event_type"`
	Status    domain.BetStatus `json:"status"`
	Payout    *domain.Money    `json:"payout,omitempty"`
	At        time.Time        `json:"at"`
}

func (e *Entity) Handlers() map[string]actor.Handler {
	return map[string]actor.Handler{
		"PlaceBet":          actor.Typed(e.placeBet),
		"GetBet":            actor.Typed(e.getBet),
		"VoidBet":           actor.Typed(e.voidBet),
		"CashOut":           actor.Typed(e.cashOut),
		"SettleBet":         actor.Typed(e.settleBet),
		"ReverseSettlement": actor.Typed(e.reverseSettlement),
		"GetBetHistory":     actor.Typed(e.getBetHistory),
	}
}

// --- Placement ---

func (e *Entity) placeBet(ctx context.Context, req PlaceRequest) (domain.Bet, error) {
	if e.state.Exists {
		// Idempotent re-invocation with the identical request returns the
		// stored outcome; anything else is a conflict.
		stored := PlaceRequest{
			BetID:          e.state.Bet.ID,
			UserID:         e.state.Bet.UserID,
			EventID:        e.state.Bet.EventID,
			MarketID:       e.state.Bet.MarketID,
			SelectionID:    e.state.Bet.SelectionID,
			Amount:         e.state.Bet.Amount,
			AcceptableOdds: e.state.AcceptableOdds,
			Type:           e.state.Bet.Type,
		}
		if !req.equal(stored) {
			return domain.Bet{}, domain.ErrConflict("bet " + e.env.Key + " already exists with a different request")
		}
		if e.state.Bet.Status == domain.BetRejected {
			return e.state.Bet, e.rejectionError()
		}
		return e.state.Bet, nil
	}

	if err := e.validatePlace(req); err != nil {
		return domain.Bet{}, err
	}

	now := e.now()
	e.state = state{
		Exists:         true,
		AcceptableOdds: req.AcceptableOdds,
		SagaResults:    make(map[string]settleOutcome),
		Bet: domain.Bet{
			ID:          req.BetID,
			UserID:      req.UserID,
			EventID:     req.EventID,
			MarketID:    req.MarketID,
			SelectionID: req.SelectionID,
			Amount:      req.Amount,
			Status:      domain.BetPending,
			Type:        req.Type,
			PlacedAt:    now,
		},
	}

	// Odds-change protection: acceptableOdds is the minimum the user
	// will take.
	snapshot, err := e.markets.GetCurrentOdds(ctx, req.MarketID)
	if err != nil {
		return domain.Bet{}, e.rejectPlace(ctx, req, err)
	}
	quote, known := snapshot.Selections[req.SelectionID]
	if !known {
		return domain.Bet{}, e.rejectPlace(ctx, req, domain.ErrNotFound("selection", req.SelectionID))
	}
	if quote.Decimal.LessThan(req.AcceptableOdds) {
		return domain.Bet{}, e.rejectPlace(ctx, req, domain.ErrOddsChanged(
			req.SelectionID, req.AcceptableOdds.StringFixed(2), quote.Decimal.StringFixed(2)))
	}

	// Reserve funds before locking odds; each step is atomic on its
	// entity, so any later failure compensates by releasing.
	if _, err := e.wallets.Reserve(ctx, req.UserID, req.Amount, req.BetID); err != nil {
		return domain.Bet{}, e.rejectPlace(ctx, req, err)
	}
	e.state.ReservationHeld = true

	lock, err := e.markets.LockOddsForBet(ctx, req.MarketID, req.BetID, req.SelectionID)
	if err != nil {
		if _, relErr := e.wallets.ReleaseReservation(ctx, req.UserID, req.BetID); relErr != nil {
			e.env.Logger.Error("failed to release reservation after lock failure",
				"bet_id", req.BetID, "error", relErr)
		} else {
			e.state.ReservationHeld = false
		}
		return domain.Bet{}, e.rejectPlace(ctx, req, err)
	}

	e.state.Bet.Odds = lock.LockedOdds
	e.state.Bet.Status = domain.BetAccepted

	if _, err := e.log.Append(ctx, AggregateID(req.BetID),
		domain.BetPlacedEvent{
			BetID:          req.BetID,
			UserID:         req.UserID,
			EventID:        req.EventID,
			MarketID:       req.MarketID,
			SelectionID:    req.SelectionID,
			Amount:         req.Amount,
			AcceptableOdds: req.AcceptableOdds,
			Type:           req.Type,
		},
		domain.BetAcceptedEvent{
			BetID:           req.BetID,
			UserID:          req.UserID,
			LockedOdds:      lock.LockedOdds,
			PotentialPayout: e.state.Bet.PotentialPayout(),
		},
	); err != nil {
		return domain.Bet{}, domain.ErrUnavailable("append bet events", err)
	}
	if err := e.env.State.Save(ctx, &e.state); err != nil {
		return domain.Bet{}, err
	}

	// The saga sources affected bets from the market index; written
	// synchronously so settlement reads its own writes.
	if err := e.indexes.AddBet(ctx, req.MarketID, BetRef{
		BetID:       req.BetID,
		UserID:      req.UserID,
		SelectionID: req.SelectionID,
	}); err != nil {
		e.env.Logger.Error("failed to index bet on market", "bet_id", req.BetID, "error", err)
	}

	return e.state.Bet, nil
}

func (e *Entity) validatePlace(req PlaceRequest) error {
	if req.BetID != e.env.Key {
		return domain.ErrValidation("bet_id does not match entity key")
	}
	if req.UserID == "" || req.EventID == "" || req.MarketID == "" || req.SelectionID == "" {
		return domain.ErrValidation("placeBet requires user_id, event_id, market_id and selection_id")
	}
	if !req.Amount.IsPositive() {
		return domain.ErrValidation("stake must be positive")
	}
	if err := domain.ValidateOddsValue(req.AcceptableOdds); err != nil {
		return domain.ErrValidation(err.Error())
	}
	if err := domain.ValidateBetType(req.Type); err != nil {
		return domain.ErrValidation(err.Error())
	}
	return nil
}

// rejectPlace stores the rejected bet for idempotent replay and
// returns the causing error. A transient failure is not a verdict on
// the bet: the entity resets instead, so a retry with the same bet ID
// re-runs placement rather than replaying a rejection forever.
func (e *Entity) rejectPlace(ctx context.Context, req PlaceRequest, cause error) error {
	if domain.Retryable(cause) {
		e.state = state{}
		return cause
	}
	code := domain.CodeOf(cause)
	e.state.Bet.Status = domain.BetRejected
	e.state.Bet.RejectionReason = cause.Error()
	e.state.RejectionCode = code

	if _, err := e.log.Append(ctx, AggregateID(req.BetID),
		domain.BetPlacedEvent{
			BetID:          req.BetID,
			UserID:         req.UserID,
			EventID:        req.EventID,
			MarketID:       req.MarketID,
			SelectionID:    req.SelectionID,
			Amount:         req.Amount,
			AcceptableOdds: req.AcceptableOdds,
			Type:           req.Type,
		},
		domain.BetRejectedEvent{
			BetID:  req.BetID,
			UserID: req.UserID,
			Code:   code,
			Reason: e.state.Bet.RejectionReason,
		},
	); err != nil {
		e.env.Logger.Warn("failed to append rejection events", "bet_id", req.BetID, "error", err)
	}
	if err := e.env.State.Save(ctx, &e.state); err != nil {
		return err
	}
	return cause
}

func (e *Entity) rejectionError() error {
	return &domain.AppError{
		Code:    e.state.RejectionCode,
		Message: e.state.Bet.RejectionReason,
		Status:  409,
	}
}

// --- Queries ---

func (e *Entity) getBet(_ context.Context, _ struct{}) (domain.Bet, error) {
	if !e.state.Exists {
		return domain.Bet{}, domain.ErrNotFound("bet", e.env.Key)
	}
	return e.state.Bet, nil
}

func (e *Entity) getBetHistory(ctx context.Context, _ struct{}) ([]HistoryEntry, error) {
	if !e.state.Exists {
		return nil, domain.ErrNotFound("bet", e.env.Key)
	}
	records, err := e.log.Read(ctx, AggregateID(e.env.Key), 0)
	if err != nil {
		return nil, domain.ErrUnavailable("read bet stream", err)
	}

	out := make([]HistoryEntry, 0, len(records))
	status := domain.BetPending
	for _, rec := range records {
		ev, err := domain.DecodeEvent(rec.Type, rec.Payload)
		if err != nil {
			return nil, err
		}
		entry := HistoryEntry{Version: rec.Version, EventType: rec.Type, At: rec.OccurredAt}
		switch ev := ev.(type) {
		case *domain.BetPlacedEvent:
			status = domain.BetPending
		case *domain.BetAcceptedEvent:
			status = domain.BetAccepted
		case *domain.BetRejectedEvent:
			status = domain.BetRejected
		case *domain.BetSettledEvent:
			status = ev.Status
			entry.Payout = ev.Payout
		case *domain.BetCashedOutEvent:
			status = domain.BetCashedOut
			payout := ev.Payout
			entry.Payout = &payout
		case *domain.BetSettlementReversedEvent:
			status = ev.RestoredStatus
		}
		entry.Status = status
		out = append(out, entry)
	}
	return out, nil
}

// --- Void ---

func (e *Entity) voidBet(ctx context.Context, req VoidRequest) (domain.Bet, error) {
	if !e.state.Exists {
		return domain.Bet{}, domain.ErrNotFound("bet", e.env.Key)
	}
	if e.state.Bet.Status == domain.BetVoid {
		return e.state.Bet, nil
	}
	if !e.state.Bet.CanBeVoided() {
		return domain.Bet{}, domain.ErrInvalidTransition(string(e.state.Bet.Status), string(domain.BetVoid))
	}

	switch {
	case e.state.ReservationHeld:
		if _, err := e.wallets.ReleaseReservation(ctx, e.state.Bet.UserID, e.state.Bet.ID); err != nil {
			return domain.Bet{}, err
		}
		e.state.ReservationHeld = false
	case e.state.StakeCommitted:
		if _, err := e.wallets.ProcessPayout(ctx, e.state.Bet.UserID, e.state.Bet.Amount, e.state.Bet.ID, voidSaga); err != nil {
			return domain.Bet{}, err
		}
		e.state.StakeCommitted = false
	}

	now := e.now()
	e.state.Bet.Status = domain.BetVoid
	e.state.Bet.VoidReason = req.Reason
	e.state.Bet.SettledAt = &now

	e.unlockOddsBestEffort(ctx)
	if _, err := e.log.Append(ctx, AggregateID(e.state.Bet.ID), domain.BetSettledEvent{
		BetID:  e.state.Bet.ID,
		UserID: e.state.Bet.UserID,
		Status: domain.BetVoid,
	}); err != nil {
		return domain.Bet{}, domain.ErrUnavailable("append bet event", err)
	}
	if err := e.env.State.Save(ctx, &e.state); err != nil {
		return domain.Bet{}, err
	}
	return e.state.Bet, nil
}

// --- Cash-out ---

func (e *Entity) cashOut(ctx context.Context, _ struct{}) (CashOutResult, error) {
	if !e.state.Exists {
		return CashOutResult{}, domain.ErrNotFound("bet", e.env.Key)
	}
	if !e.state.Bet.CanBeCashedOut() {
		return CashOutResult{}, domain.ErrInvalidTransition(string(e.state.Bet.Status), string(domain.BetCashedOut))
	}

	snapshot, err := e.markets.GetCurrentOdds(ctx, e.state.Bet.MarketID)
	if err != nil {
		return CashOutResult{}, err
	}
	quote, known := snapshot.Selections[e.state.Bet.SelectionID]
	if !known {
		return CashOutResult{}, domain.ErrNotFound("selection", e.state.Bet.SelectionID)
	}

	net := e.state.Bet.CashOutValue(quote.Decimal)
	gross := e.state.Bet.Amount.MulRound(quote.Decimal)
	fee, err := gross.Subtract(net)
	if err != nil {
		return CashOutResult{}, err
	}

	// Commit the stake, then credit the net value. If the credit fails
	// the commit is compensated and the bet stays accepted.
	if e.state.ReservationHeld {
		if _, err := e.wallets.CommitReservation(ctx, e.state.Bet.UserID, e.state.Bet.ID); err != nil {
			return CashOutResult{}, err
		}
		e.state.ReservationHeld = false
		e.state.StakeCommitted = true
	}
	if _, err := e.wallets.ProcessPayout(ctx, e.state.Bet.UserID, net, e.state.Bet.ID, cashOutSaga); err != nil {
		if _, restoreErr := e.wallets.RestoreReservation(ctx, e.state.Bet.UserID, e.state.Bet.Amount,
			e.state.Bet.ID, cashOutSaga, "cash-out payout failed"); restoreErr != nil {
			e.env.Logger.Error("failed to restore reservation after cash-out failure",
				"bet_id", e.state.Bet.ID, "error", restoreErr)
		} else {
			e.state.ReservationHeld = true
			e.state.StakeCommitted = false
		}
		if saveErr := e.env.State.Save(ctx, &e.state); saveErr != nil {
			return CashOutResult{}, saveErr
		}
		return CashOutResult{}, err
	}

	now := e.now()
	e.state.Bet.Status = domain.BetCashedOut
	e.state.Bet.SettledAt = &now
	e.state.Bet.Payout = &net

	e.unlockOddsBestEffort(ctx)
	if _, err := e.log.Append(ctx, AggregateID(e.state.Bet.ID), domain.BetCashedOutEvent{
		BetID:         e.state.Bet.ID,
		UserID:        e.state.Bet.UserID,
		Payout:        net,
		Fee:           fee,
		OddsAtCashOut: quote.Decimal,
	}); err != nil {
		return CashOutResult{}, domain.ErrUnavailable("append bet event", err)
	}
	if err := e.env.State.Save(ctx, &e.state); err != nil {
		return CashOutResult{}, err
	}
	return CashOutResult{
		Bet:           e.state.Bet,
		PayoutAmount:  net,
		Fee:           fee,
		OddsAtCashOut: quote.Decimal,
		CashedOutAt:   now,
	}, nil
}

// --- Settlement ---

func (e *Entity) settleBet(ctx context.Context, req SettleRequest) (domain.Bet, error) {
	if !e.state.Exists {
		return domain.Bet{}, domain.ErrNotFound("bet", e.env.Key)
	}
	if req.SagaID == "" {
		return domain.Bet{}, domain.ErrValidation("settleBet requires a saga_id")
	}
	if outcome, done := e.state.SagaResults[req.SagaID]; done && !outcome.Reversed {
		return e.state.Bet, nil
	}
	switch req.FinalStatus {
	case domain.BetWon, domain.BetLost, domain.BetVoid:
	default:
		return domain.Bet{}, domain.ErrValidation("settleBet final status must be won, lost or void")
	}
	if !e.state.Bet.Status.CanTransitionTo(req.FinalStatus) {
		return domain.Bet{}, domain.ErrInvalidTransition(string(e.state.Bet.Status), string(req.FinalStatus))
	}

	var payout *domain.Money
	switch req.FinalStatus {
	case domain.BetWon:
		amount := e.state.Bet.PotentialPayout()
		if req.Payout != nil {
			amount = *req.Payout
		}
		if e.state.ReservationHeld {
			if _, err := e.wallets.CommitReservation(ctx, e.state.Bet.UserID, e.state.Bet.ID); err != nil {
				return domain.Bet{}, err
			}
			e.state.ReservationHeld = false
			e.state.StakeCommitted = true
		}
		if _, err := e.wallets.ProcessPayout(ctx, e.state.Bet.UserID, amount, e.state.Bet.ID, req.SagaID); err != nil {
			if saveErr := e.env.State.Save(ctx, &e.state); saveErr != nil {
				return domain.Bet{}, saveErr
			}
			return domain.Bet{}, err
		}
		payout = &amount

	case domain.BetLost:
		if e.state.ReservationHeld {
			if _, err := e.wallets.CommitReservation(ctx, e.state.Bet.UserID, e.state.Bet.ID); err != nil {
				return domain.Bet{}, err
			}
			e.state.ReservationHeld = false
			e.state.StakeCommitted = true
		}

	case domain.BetVoid:
		switch {
		case e.state.ReservationHeld:
			if _, err := e.wallets.ReleaseReservation(ctx, e.state.Bet.UserID, e.state.Bet.ID); err != nil {
				return domain.Bet{}, err
			}
			e.state.ReservationHeld = false
		case e.state.StakeCommitted:
			refund := e.state.Bet.Amount
			if _, err := e.wallets.ProcessPayout(ctx, e.state.Bet.UserID, refund, e.state.Bet.ID, req.SagaID); err != nil {
				return domain.Bet{}, err
			}
			e.state.StakeCommitted = false
			payout = &refund
		}
	}

	now := e.now()
	e.state.Bet.Status = req.FinalStatus
	e.state.Bet.SettledAt = &now
	e.state.Bet.Payout = payout
	e.state.SagaResults[req.SagaID] = settleOutcome{Status: req.FinalStatus, Payout: payout}

	e.unlockOddsBestEffort(ctx)
	if _, err := e.log.Append(ctx, AggregateID(e.state.Bet.ID), domain.BetSettledEvent{
		BetID:  e.state.Bet.ID,
		UserID: e.state.Bet.UserID,
		Status: req.FinalStatus,
		Payout: payout,
		SagaID: req.SagaID,
	}); err != nil {
		return domain.Bet{}, domain.ErrUnavailable("append bet event", err)
	}
	if err := e.env.State.Save(ctx, &e.state); err != nil {
		return domain.Bet{}, err
	}
	return e.state.Bet, nil
}

// reverseSettlement is the saga's compensation path: it unwinds the
// wallet effects of this saga's settlement and restores the bet to
// accepted, bypassing the regular transition table deliberately.
func (e *Entity) reverseSettlement(ctx context.Context, req ReverseRequest) (domain.Bet, error) {
	if !e.state.Exists {
		return domain.Bet{}, domain.ErrNotFound("bet", e.env.Key)
	}
	outcome, done := e.state.SagaResults[req.SagaID]
	if !done {
		return domain.Bet{}, domain.ErrNotFound("settlement for saga", req.SagaID)
	}
	if outcome.Reversed {
		return e.state.Bet, nil
	}

	switch outcome.Status {
	case domain.BetWon:
		if _, err := e.wallets.ReversePayout(ctx, e.state.Bet.UserID, *outcome.Payout,
			e.state.Bet.ID, req.SagaID, req.Reason); err != nil {
			return domain.Bet{}, err
		}
		if _, err := e.wallets.RestoreReservation(ctx, e.state.Bet.UserID, e.state.Bet.Amount,
			e.state.Bet.ID, req.SagaID, req.Reason); err != nil {
			return domain.Bet{}, err
		}
		e.state.StakeCommitted = false
		e.state.ReservationHeld = true

	case domain.BetLost:
		if _, err := e.wallets.RestoreReservation(ctx, e.state.Bet.UserID, e.state.Bet.Amount,
			e.state.Bet.ID, req.SagaID, req.Reason); err != nil {
			return domain.Bet{}, err
		}
		e.state.StakeCommitted = false
		e.state.ReservationHeld = true

	case domain.BetVoid:
		if outcome.Payout != nil {
			// The void refunded a committed stake; claw it back into a
			// reservation.
			if _, err := e.wallets.ReversePayout(ctx, e.state.Bet.UserID, *outcome.Payout,
				e.state.Bet.ID, req.SagaID, req.Reason); err != nil {
				return domain.Bet{}, err
			}
		}
		if _, err := e.wallets.ReReserve(ctx, e.state.Bet.UserID, e.state.Bet.Amount,
			e.state.Bet.ID, req.SagaID); err != nil {
			return domain.Bet{}, err
		}
		e.state.ReservationHeld = true
	}

	previous := e.state.Bet.Status
	e.state.Bet.Status = domain.BetAccepted
	e.state.Bet.SettledAt = nil
	e.state.Bet.Payout = nil
	outcome.Reversed = true
	e.state.SagaResults[req.SagaID] = outcome

	if _, err := e.log.Append(ctx, AggregateID(e.state.Bet.ID), domain.BetSettlementReversedEvent{
		BetID:          e.state.Bet.ID,
		UserID:         e.state.Bet.UserID,
		SagaID:         req.SagaID,
		PreviousStatus: previous,
		RestoredStatus: domain.BetAccepted,
		Reason:         req.Reason,
	}); err != nil {
		return domain.Bet{}, domain.ErrUnavailable("append bet event", err)
	}
	if err := e.env.State.Save(ctx, &e.state); err != nil {
		return domain.Bet{}, err
	}
	return e.state.Bet, nil
}

// unlockOddsBestEffort drops the odds lock when the bet leaves play.
// The lock is bookkeeping, not a correctness dependency, so a failure
// only logs.
func (e *Entity) unlockOddsBestEffort(ctx context.Context) {
	if _, err := e.markets.UnlockOdds(ctx, e.state.Bet.MarketID, e.state.Bet.ID); err != nil {
		e.env.Logger.Warn("failed to unlock odds", "bet_id", e.state.Bet.ID, "error", err)
	}
}
