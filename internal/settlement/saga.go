// Package settlement runs market settlement as a saga: every bet on a
// settled market is resolved in parallel, transient failures retry,
// and a persistent failure compensates the bets already settled so no
// money is left half-moved.
package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stakemesh/platform/internal/actor"
	"github.com/stakemesh/platform/internal/bet"
	"github.com/stakemesh/platform/internal/domain"
	"github.com/stakemesh/platform/internal/eventlog"
	"github.com/stakemesh/platform/internal/wallet"
)

// KindSaga is the entity kind; the key is the saga ID.
const KindSaga actor.Kind = "settlement-saga"

// AggregateID returns the event-stream aggregate for a saga.
func AggregateID(sagaID string) string { return "saga-" + sagaID }

// MaxAttempts bounds settlement retries per bet; only transient
// failures retry.
const MaxAttempts = 3

// RetryBackoff is the base delay before a settlement retry; attempt n
// waits n times this, so a flapping wallet shard gets room to recover.
const RetryBackoff = 25 * time.Millisecond

// SagaStatus is the saga lifecycle state.
type SagaStatus string

const (
	SagaPending   SagaStatus = "pending"
	SagaCompleted SagaStatus = "completed"
	SagaFailed    SagaStatus = "failed"
)

// ExecuteRequest starts or replays a settlement. BetIDs overrides the
// market index as the source of affected bets when set.
type ExecuteRequest struct {
	EventID            string   `json:"event_id"`
	MarketID           string   `json:"market_id"`
	WinningSelectionID string   `json:"winning_selection_id"`
	Voided             bool     `json:"voided"`
	BetIDs             []string `json:"bet_ids,omitempty"`
}

// Result is the saga outcome, returned to the caller and stored for
// idempotent replay.
type Result struct {
	SagaID       string       `json:"saga_id"`
	Status       SagaStatus   `json:"status"`
	SettledBets  int          `json:"settled_bets"`
	FailedBets   []string     `json:"failed_bets,omitempty"`
	Compensated  []string     `json:"compensated,omitempty"`
	TotalPayouts domain.Money `json:"total_payouts"`
	DurationMS   int64        `json:"duration_ms"`
	Error        string       `json:"error,omitempty"`
}

type sagaState struct {
	Exists  bool           `json:"exists"`
	Request ExecuteRequest `json:"request"`
	Result  Result         `json:"result"`
}

// Entity is one activated settlement saga.
type Entity struct {
	env     *actor.Env
	log     *eventlog.Log
	bets    *bet.Client
	indexes *bet.MarketIndexClient
	state   sagaState
	now     func() time.Time
}

// NewFactory returns the saga factory for runtime registration.
func NewFactory(log *eventlog.Log) actor.Factory {
	return func(env *actor.Env) actor.Entity {
		return &Entity{
			env:     env,
			log:     log,
			bets:    bet.NewClient(env.Caller),
			indexes: bet.NewMarketIndexClient(env.Caller),
			now:     func() time.Time { return time.Now().UTC() },
		}
	}
}

func (e *Entity) OnActivate(ctx context.Context) error {
	_, err := e.env.State.Load(ctx, &e.state)
	return err
}

func (e *Entity) OnDeactivate(ctx context.Context, _ actor.DeactivateReason) error {
	if !e.state.Exists {
		return nil
	}
	return e.env.State.Save(ctx, &e.state)
}

func (e *Entity) Handlers() map[string]actor.Handler {
	return map[string]actor.Handler{
		"Execute":   actor.Typed(e.execute),
		"GetResult": actor.Typed(e.getResult),
	}
}

func (e *Entity) getResult(_ context.Context, _ struct{}) (Result, error) {
	if !e.state.Exists {
		return Result{}, domain.ErrNotFound("settlement saga", e.env.Key)
	}
	return e.state.Result, nil
}

// execute runs the saga to a terminal state. A re-invocation after
// completion returns the stored result: combined with settleBet's
// per-saga idempotency this makes redelivered triggers harmless.
func (e *Entity) execute(ctx context.Context, req ExecuteRequest) (Result, error) {
	if e.state.Exists {
		if e.state.Request.MarketID != req.MarketID {
			return Result{}, domain.ErrConflict("saga " + e.env.Key + " already ran for market " + e.state.Request.MarketID)
		}
		return e.state.Result, nil
	}
	if req.MarketID == "" {
		return Result{}, domain.ErrValidation("execute requires a market_id")
	}
	if !req.Voided && req.WinningSelectionID == "" {
		return Result{}, domain.ErrValidation("execute requires a winning_selection_id unless the market is voided")
	}

	started := e.now()
	e.state = sagaState{Exists: true, Request: req, Result: Result{SagaID: e.env.Key, Status: SagaPending}}

	refs, err := e.resolveBets(ctx, req)
	if err != nil {
		return Result{}, err
	}

	if _, err := e.log.Append(ctx, AggregateID(e.env.Key), domain.SettlementStartedEvent{
		SagaID:             e.env.Key,
		EventID:            req.EventID,
		MarketID:           req.MarketID,
		WinningSelectionID: req.WinningSelectionID,
		AffectedBets:       len(refs),
	}); err != nil {
		return Result{}, domain.ErrUnavailable("append saga event", err)
	}

	settled, failed, total := e.settleAll(ctx, req, refs)

	result := Result{
		SagaID:       e.env.Key,
		SettledBets:  len(settled),
		TotalPayouts: total,
		DurationMS:   e.now().Sub(started).Milliseconds(),
	}

	if len(failed) == 0 {
		result.Status = SagaCompleted
		if _, err := e.log.Append(ctx, AggregateID(e.env.Key), domain.SettlementCompletedEvent{
			SagaID:       e.env.Key,
			MarketID:     req.MarketID,
			SettledBets:  len(settled),
			TotalPayouts: total,
			DurationMS:   result.DurationMS,
		}); err != nil {
			return Result{}, domain.ErrUnavailable("append saga event", err)
		}
		e.state.Result = result
		return result, e.env.State.Save(ctx, &e.state)
	}

	// Some bets would not settle. Undo the ones that did so the market
	// can be re-settled cleanly once the cause is fixed.
	failedIDs := make([]string, 0, len(failed))
	var firstErr error
	for id, ferr := range failed {
		failedIDs = append(failedIDs, id)
		if firstErr == nil {
			firstErr = ferr
		}
	}
	compensated, reversed := e.compensate(ctx, settled)

	result.Status = SagaFailed
	result.FailedBets = failedIDs
	result.Compensated = compensated
	result.Error = firstErr.Error()
	result.TotalPayouts = domain.Zero(total.Currency)

	if _, err := e.log.Append(ctx, AggregateID(e.env.Key),
		domain.SettlementFailedEvent{
			SagaID:       e.env.Key,
			MarketID:     req.MarketID,
			Error:        firstErr.Error(),
			IsRetryable:  false,
			FailedBetIDs: failedIDs,
		},
		domain.SettlementCompensatedEvent{
			SagaID:            e.env.Key,
			MarketID:          req.MarketID,
			CompensatedBetIDs: compensated,
			ReversedPayouts:   reversed,
		},
	); err != nil {
		return Result{}, domain.ErrUnavailable("append saga event", err)
	}
	e.state.Result = result
	if err := e.env.State.Save(ctx, &e.state); err != nil {
		return Result{}, err
	}
	return result, nil
}

// resolveBets sources the workload from the market index, or from the
// request when the caller names the bets explicitly.
func (e *Entity) resolveBets(ctx context.Context, req ExecuteRequest) ([]bet.BetRef, error) {
	if len(req.BetIDs) > 0 {
		refs := make([]bet.BetRef, 0, len(req.BetIDs))
		for _, id := range req.BetIDs {
			refs = append(refs, bet.BetRef{BetID: id})
		}
		return refs, nil
	}
	refs, err := e.indexes.ListBets(ctx, req.MarketID)
	if err != nil {
		return nil, domain.ErrUnavailable("list market bets", err)
	}
	return refs, nil
}

// outcomeFor maps a bet's selection to its settlement status. Refs
// without a selection (explicit bet ID lists) are resolved against the
// bet snapshot at settle time.
func (e *Entity) outcomeFor(req ExecuteRequest, selectionID string) domain.BetStatus {
	switch {
	case req.Voided:
		return domain.BetVoid
	case selectionID == req.WinningSelectionID:
		return domain.BetWon
	default:
		return domain.BetLost
	}
}

// settleAll fans the settle calls out across distinct bet entities.
// Each bet retries independently up to MaxAttempts on transient
// failures; business rejections fail immediately.
func (e *Entity) settleAll(ctx context.Context, req ExecuteRequest, refs []bet.BetRef) (settled []string, failed map[string]error, total domain.Money) {
	var mu sync.Mutex
	failed = make(map[string]error)
	total = domain.Zero(wallet.DefaultCurrency)

	g, gctx := errgroup.WithContext(ctx)
	for _, ref := range refs {
		g.Go(func() error {
			b, err := e.settleOne(gctx, req, ref)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[ref.BetID] = err
				return nil
			}
			settled = append(settled, ref.BetID)
			if b.Payout != nil {
				total.Currency = b.Payout.Currency
				total.Amount += b.Payout.Amount
			}
			return nil
		})
	}
	// Errors are collected per bet; the group never aborts the fan-out.
	_ = g.Wait()
	return settled, failed, total
}

func (e *Entity) settleOne(ctx context.Context, req ExecuteRequest, ref bet.BetRef) (domain.Bet, error) {
	selection := ref.SelectionID
	if selection == "" && !req.Voided {
		b, err := e.bets.GetBet(ctx, ref.BetID)
		if err != nil {
			return domain.Bet{}, err
		}
		selection = b.SelectionID
	}
	status := e.outcomeFor(req, selection)

	var lastErr error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		b, err := e.bets.SettleBet(ctx, ref.BetID, status, nil, e.env.Key)
		if err == nil {
			return b, nil
		}
		lastErr = err
		if !domain.Retryable(err) || ctx.Err() != nil {
			break
		}
		e.env.Logger.Warn("settle attempt failed, retrying",
			"bet_id", ref.BetID, "attempt", attempt, "error", err)
		if attempt < MaxAttempts {
			select {
			case <-ctx.Done():
			case <-time.After(time.Duration(attempt) * RetryBackoff):
			}
		}
	}
	return domain.Bet{}, fmt.Errorf("settle bet %s: %w", ref.BetID, lastErr)
}

// compensate reverses every successfully settled bet. A reversal that
// itself fails is logged and skipped; settleBet's saga idempotency
// lets an operator replay the reversal later.
func (e *Entity) compensate(ctx context.Context, settled []string) (compensated []string, reversed domain.Money) {
	reversed = domain.Zero(wallet.DefaultCurrency)
	for _, betID := range settled {
		b, err := e.bets.GetBet(ctx, betID)
		if err == nil && b.Payout != nil {
			reversed.Currency = b.Payout.Currency
			reversed.Amount += b.Payout.Amount
		}
		if _, err := e.bets.ReverseSettlement(ctx, betID, e.env.Key, "settlement saga compensation"); err != nil {
			e.env.Logger.Error("compensation failed", "bet_id", betID, "saga_id", e.env.Key, "error", err)
			continue
		}
		compensated = append(compensated, betID)
	}
	return compensated, reversed
}
