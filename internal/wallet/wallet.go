// Package wallet is the per-user funds entity: balance, reservations
// earmarked for bets, and the double-entry ledger behind every
// movement. All money-moving operations are idempotent on a
// caller-supplied reference.
package wallet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stakemesh/platform/internal/actor"
	"github.com/stakemesh/platform/internal/domain"
	"github.com/stakemesh/platform/internal/eventlog"
)

// KindWallet is the entity kind; the key is the user ID.
const KindWallet actor.Kind = "wallet"

// DefaultCurrency is assumed until the first movement fixes the
// wallet's currency.
const DefaultCurrency = "USD"

// ReferenceRetention bounds the processed-reference table: entries
// older than this are dropped at activation, and duplicates arriving
// after eviction fail with CodeUnknownReference.
const ReferenceRetention = 30 * 24 * time.Hour

// AggregateID returns the event-stream aggregate for a user's wallet.
func AggregateID(userID string) string { return "wallet-" + userID }

// processedRef remembers an applied reference so a replay returns the
// original transaction instead of mutating again.
type processedRef struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	ProcessedAt   time.Time `json:"processed_at"`
}

// state is the wallet's persisted state. Amounts are minor units in
// the wallet's single currency.
type state struct {
	UserID        string                   `json:"user_id"`
	Currency      string                   `json:"currency"`
	Balance       int64                    `json:"balance"`
	Reserved      int64                    `json:"reserved"`
	Reservations  map[string]int64         `json:"reservations"`
	Transactions  []domain.WalletTransaction `json:"transactions"`
	Ledger        []domain.LedgerEntry     `json:"ledger"`
	ProcessedRefs map[string]processedRef  `json:"processed_refs"`
}

func (s *state) available() int64 { return s.Balance - s.Reserved }

func (s *state) money(amount int64) domain.Money {
	return domain.Money{Amount: amount, Currency: s.Currency}
}

// checkInvariants guards the wallet's core properties after every
// mutation. A violation is fatal, never auto-recovered.
func (s *state) checkInvariants() error {
	if s.Balance < 0 {
		return domain.ErrInvariant(fmt.Sprintf("wallet %s balance is negative: %d", s.UserID, s.Balance))
	}
	var sum int64
	for _, amt := range s.Reservations {
		sum += amt
	}
	if sum != s.Reserved {
		return domain.ErrInvariant(fmt.Sprintf("wallet %s reserved %d does not match reservations sum %d", s.UserID, s.Reserved, sum))
	}
	if s.Reserved > s.Balance {
		return domain.ErrInvariant(fmt.Sprintf("wallet %s reserved %d exceeds balance %d", s.UserID, s.Reserved, s.Balance))
	}
	return nil
}

// Entity is one activated wallet.
type Entity struct {
	env   *actor.Env
	log   *eventlog.Log
	state state
	now   func() time.Time
}

// NewFactory returns the wallet entity factory for runtime registration.
func NewFactory(log *eventlog.Log) actor.Factory {
	return func(env *actor.Env) actor.Entity {
		return &Entity{env: env, log: log, now: func() time.Time { return time.Now().UTC() }}
	}
}

func (e *Entity) OnActivate(ctx context.Context) error {
	found, err := e.env.State.Load(ctx, &e.state)
	if err != nil {
		return err
	}
	if !found {
		e.state = state{
			UserID:        e.env.Key,
			Currency:      DefaultCurrency,
			Reservations:  make(map[string]int64),
			ProcessedRefs: make(map[string]processedRef),
		}
		return nil
	}
	if e.state.Reservations == nil {
		e.state.Reservations = make(map[string]int64)
	}
	if e.state.ProcessedRefs == nil {
		e.state.ProcessedRefs = make(map[string]processedRef)
	}
	e.sweepReferences()
	return nil
}

func (e *Entity) OnDeactivate(ctx context.Context, _ actor.DeactivateReason) error {
	return e.env.State.Save(ctx, &e.state)
}

// sweepReferences evicts processed references past retention. The
// transactions themselves stay for audit.
func (e *Entity) sweepReferences() {
	cutoff := e.now().Add(-ReferenceRetention)
	for ref, p := range e.state.ProcessedRefs {
		if p.ProcessedAt.Before(cutoff) {
			delete(e.state.ProcessedRefs, ref)
		}
	}
}

// --- Requests and results ---

type BalanceResult struct {
	Balance   domain.Money `json:"balance"`
	Reserved  domain.Money `json:"reserved"`
	Available domain.Money `json:"available"`
}

type DepositRequest struct {
	Amount        domain.Money `json:"amount"`
	TransactionID string       `json:"transaction_id"`
}

type WithdrawRequest struct {
	Amount        domain.Money `json:"amount"`
	TransactionID string       `json:"transaction_id"`
}

type ReserveRequest struct {
	Amount domain.Money `json:"amount"`
	BetID  string       `json:"bet_id"`
}

type ReservationRequest struct {
	BetID string `json:"bet_id"`
}

type PayoutRequest struct {
	Amount domain.Money `json:"amount"`
	BetID  string       `json:"bet_id"`
	SagaID string       `json:"saga_id"`
}

type ReversalRequest struct {
	Amount domain.Money `json:"amount"`
	BetID  string       `json:"bet_id"`
	SagaID string       `json:"saga_id"`
	Reason string       `json:"reason"`
}

// RestoreRequest re-creates a committed-then-settled stake as a
// reservation during saga compensation: balance += amount and the
// reservation returns, exactly undoing commitReservation.
type RestoreRequest struct {
	Amount domain.Money `json:"amount"`
	BetID  string       `json:"bet_id"`
	SagaID string       `json:"saga_id"`
	Reason string       `json:"reason"`
}

// ReReserveRequest re-earmarks a previously released reservation during
// saga compensation. Unlike Restore, the balance is unchanged, exactly
// undoing releaseReservation.
type ReReserveRequest struct {
	Amount domain.Money `json:"amount"`
	BetID  string       `json:"bet_id"`
	SagaID string       `json:"saga_id"`
}

type HistoryRequest struct {
	Limit int `json:"limit"`
}

// TransactionResult is the outcome of every money movement.
type TransactionResult struct {
	Transaction domain.WalletTransaction `json:"transaction"`
	Balance     domain.Money             `json:"balance"`
	Available   domain.Money             `json:"available"`
	Replayed    bool                     `json:"replayed"`
}

// Idempotency references for saga-driven operations are derived, not
// caller-chosen, so retries across processes collide correctly.
func payoutRef(betID, sagaID string) string   { return "payout:" + betID + ":" + sagaID }
func reversalRef(betID, sagaID string) string { return "reversal:" + betID + ":" + sagaID }
func restoreRef(betID, sagaID string) string  { return "restore:" + betID + ":" + sagaID }
func reReserveRef(betID, sagaID string) string { return "rereserve:" + betID + ":" + sagaID }
func reserveRef(betID string) string          { return "reserve:" + betID }
func commitRef(betID string) string           { return "commit:" + betID }
func releaseRef(betID string) string          { return "release:" + betID }

func (e *Entity) Handlers() map[string]actor.Handler {
	return map[string]actor.Handler{
		"GetBalance":            actor.Typed(e.getBalance),
		"GetAvailableBalance":   actor.Typed(e.getAvailableBalance),
		"Deposit":               actor.Typed(e.deposit),
		"Withdraw":              actor.Typed(e.withdraw),
		"Reserve":               actor.Typed(e.reserve),
		"CommitReservation":     actor.Typed(e.commitReservation),
		"ReleaseReservation":    actor.Typed(e.releaseReservation),
		"ProcessPayout":         actor.Typed(e.processPayout),
		"ReversePayout":         actor.Typed(e.reversePayout),
		"RestoreReservation":    actor.Typed(e.restoreReservation),
		"ReReserve":             actor.Typed(e.reReserve),
		"GetTransactionHistory": actor.Typed(e.getTransactionHistory),
		"GetLedgerEntries":      actor.Typed(e.getLedgerEntries),
	}
}

func (e *Entity) getBalance(_ context.Context, _ struct{}) (BalanceResult, error) {
	return e.balanceResult(), nil
}

func (e *Entity) getAvailableBalance(_ context.Context, _ struct{}) (domain.Money, error) {
	return e.state.money(e.state.available()), nil
}

func (e *Entity) balanceResult() BalanceResult {
	return BalanceResult{
		Balance:   e.state.money(e.state.Balance),
		Reserved:  e.state.money(e.state.Reserved),
		Available: e.state.money(e.state.available()),
	}
}

// --- Money movements ---

func (e *Entity) deposit(ctx context.Context, req DepositRequest) (TransactionResult, error) {
	if req.TransactionID == "" {
		return TransactionResult{}, domain.ErrValidation("deposit requires a transaction_id")
	}
	if replay, ok, err := e.replayed(req.TransactionID); ok || err != nil {
		return replay, err
	}
	if err := e.validAmount(ctx, domain.TxDeposit, req.Amount, req.TransactionID); err != nil {
		return TransactionResult{}, err
	}

	e.state.Balance += req.Amount.Amount
	tx := e.record(domain.TxDeposit, req.Amount, req.TransactionID,
		"external funding source", "wallet "+e.state.UserID)
	e.remember(req.TransactionID, tx.ID)

	return e.finish(ctx, tx, domain.FundsDepositedEvent{
		UserID:        e.state.UserID,
		Amount:        req.Amount,
		TransactionID: tx.ID,
		ReferenceID:   req.TransactionID,
		BalanceAfter:  e.state.money(e.state.Balance),
	})
}

func (e *Entity) withdraw(ctx context.Context, req WithdrawRequest) (TransactionResult, error) {
	if req.TransactionID == "" {
		return TransactionResult{}, domain.ErrValidation("withdraw requires a transaction_id")
	}
	if replay, ok, err := e.replayed(req.TransactionID); ok || err != nil {
		return replay, err
	}
	if err := e.validAmount(ctx, domain.TxWithdrawal, req.Amount, req.TransactionID); err != nil {
		return TransactionResult{}, err
	}
	if e.state.available() < req.Amount.Amount {
		return TransactionResult{}, e.reject(ctx, domain.TxWithdrawal, req.Amount, req.TransactionID,
			domain.ErrInsufficientFunds(req.Amount, e.state.money(e.state.available())))
	}

	e.state.Balance -= req.Amount.Amount
	tx := e.record(domain.TxWithdrawal, req.Amount, req.TransactionID,
		"wallet "+e.state.UserID, "external payout destination")
	e.remember(req.TransactionID, tx.ID)

	return e.finish(ctx, tx, domain.FundsWithdrawnEvent{
		UserID:        e.state.UserID,
		Amount:        req.Amount,
		TransactionID: tx.ID,
		ReferenceID:   req.TransactionID,
		BalanceAfter:  e.state.money(e.state.Balance),
	})
}

func (e *Entity) reserve(ctx context.Context, req ReserveRequest) (TransactionResult, error) {
	if req.BetID == "" {
		return TransactionResult{}, domain.ErrValidation("reserve requires a bet_id")
	}
	ref := reserveRef(req.BetID)
	if replay, ok, err := e.replayed(ref); ok || err != nil {
		return replay, err
	}
	if err := e.validAmount(ctx, domain.TxReservation, req.Amount, ref); err != nil {
		return TransactionResult{}, err
	}
	if _, exists := e.state.Reservations[req.BetID]; exists {
		return TransactionResult{}, e.reject(ctx, domain.TxReservation, req.Amount, ref,
			domain.ErrConflict("bet "+req.BetID+" already holds a reservation"))
	}
	if e.state.available() < req.Amount.Amount {
		return TransactionResult{}, e.reject(ctx, domain.TxReservation, req.Amount, ref,
			domain.ErrInsufficientFunds(req.Amount, e.state.money(e.state.available())))
	}

	e.state.Reservations[req.BetID] = req.Amount.Amount
	e.state.Reserved += req.Amount.Amount
	tx := e.record(domain.TxReservation, req.Amount, ref,
		"available funds", "reserved for bet "+req.BetID)
	e.remember(ref, tx.ID)

	return e.finish(ctx, tx, domain.FundsReservedEvent{
		UserID:        e.state.UserID,
		BetID:         req.BetID,
		Amount:        req.Amount,
		ReservedAfter: e.state.money(e.state.Reserved),
		BalanceAfter:  e.state.money(e.state.Balance),
	})
}

func (e *Entity) commitReservation(ctx context.Context, req ReservationRequest) (TransactionResult, error) {
	ref := commitRef(req.BetID)
	if replay, ok, err := e.replayed(ref); ok || err != nil {
		return replay, err
	}
	amount, exists := e.state.Reservations[req.BetID]
	if !exists {
		return TransactionResult{}, e.reject(ctx, domain.TxReservationCommit, e.state.money(0), ref,
			domain.ErrNotFound("reservation for bet", req.BetID))
	}

	delete(e.state.Reservations, req.BetID)
	e.state.Reserved -= amount
	e.state.Balance -= amount
	money := e.state.money(amount)
	tx := e.record(domain.TxReservationCommit, money, ref,
		"wallet "+e.state.UserID, "stake committed for bet "+req.BetID)
	e.remember(ref, tx.ID)
	e.forgetCompensationRefs(req.BetID)

	return e.finish(ctx, tx, domain.ReservationCommittedEvent{
		UserID:       e.state.UserID,
		BetID:        req.BetID,
		Amount:       money,
		BalanceAfter: e.state.money(e.state.Balance),
	})
}

func (e *Entity) releaseReservation(ctx context.Context, req ReservationRequest) (TransactionResult, error) {
	ref := releaseRef(req.BetID)
	if replay, ok, err := e.replayed(ref); ok || err != nil {
		return replay, err
	}
	amount, exists := e.state.Reservations[req.BetID]
	if !exists {
		return TransactionResult{}, e.reject(ctx, domain.TxReservationRelease, e.state.money(0), ref,
			domain.ErrNotFound("reservation for bet", req.BetID))
	}

	delete(e.state.Reservations, req.BetID)
	e.state.Reserved -= amount
	money := e.state.money(amount)
	tx := e.record(domain.TxReservationRelease, money, ref,
		"reserved for bet "+req.BetID, "available funds")
	e.remember(ref, tx.ID)
	e.forgetCompensationRefs(req.BetID)

	return e.finish(ctx, tx, domain.ReservationReleasedEvent{
		UserID:       e.state.UserID,
		BetID:        req.BetID,
		Amount:       money,
		BalanceAfter: e.state.money(e.state.Balance),
	})
}

func (e *Entity) processPayout(ctx context.Context, req PayoutRequest) (TransactionResult, error) {
	ref := payoutRef(req.BetID, req.SagaID)
	if replay, ok, err := e.replayed(ref); ok || err != nil {
		return replay, err
	}
	if err := e.validAmount(ctx, domain.TxBetPayout, req.Amount, ref); err != nil {
		return TransactionResult{}, err
	}

	e.state.Balance += req.Amount.Amount
	tx := e.record(domain.TxBetPayout, req.Amount, ref,
		"house liability", "payout for bet "+req.BetID)
	e.remember(ref, tx.ID)

	return e.finish(ctx, tx, domain.PayoutProcessedEvent{
		UserID:       e.state.UserID,
		BetID:        req.BetID,
		SagaID:       req.SagaID,
		Amount:       req.Amount,
		BalanceAfter: e.state.money(e.state.Balance),
	})
}

func (e *Entity) reversePayout(ctx context.Context, req ReversalRequest) (TransactionResult, error) {
	ref := reversalRef(req.BetID, req.SagaID)
	if replay, ok, err := e.replayed(ref); ok || err != nil {
		return replay, err
	}
	if err := e.validAmount(ctx, domain.TxPayoutReversal, req.Amount, ref); err != nil {
		return TransactionResult{}, err
	}
	if e.state.available() < req.Amount.Amount {
		return TransactionResult{}, e.reject(ctx, domain.TxPayoutReversal, req.Amount, ref,
			domain.ErrInsufficientFunds(req.Amount, e.state.money(e.state.available())))
	}

	e.state.Balance -= req.Amount.Amount
	tx := e.record(domain.TxPayoutReversal, req.Amount, ref,
		"payout reversal for bet "+req.BetID, "house liability")
	e.remember(ref, tx.ID)

	return e.finish(ctx, tx, domain.PayoutReversedEvent{
		UserID:       e.state.UserID,
		BetID:        req.BetID,
		SagaID:       req.SagaID,
		Amount:       req.Amount,
		Reason:       req.Reason,
		BalanceAfter: e.state.money(e.state.Balance),
	})
}

func (e *Entity) restoreReservation(ctx context.Context, req RestoreRequest) (TransactionResult, error) {
	ref := restoreRef(req.BetID, req.SagaID)
	if replay, ok, err := e.replayed(ref); ok || err != nil {
		return replay, err
	}
	if err := e.validAmount(ctx, domain.TxBetRefund, req.Amount, ref); err != nil {
		return TransactionResult{}, err
	}
	if _, exists := e.state.Reservations[req.BetID]; exists {
		return TransactionResult{}, e.reject(ctx, domain.TxBetRefund, req.Amount, ref,
			domain.ErrConflict("bet "+req.BetID+" already holds a reservation"))
	}

	e.state.Balance += req.Amount.Amount
	e.state.Reservations[req.BetID] = req.Amount.Amount
	e.state.Reserved += req.Amount.Amount
	tx := e.record(domain.TxBetRefund, req.Amount, ref,
		"stake committed for bet "+req.BetID, "reserved for bet "+req.BetID)
	e.remember(ref, tx.ID)
	e.forgetSettlementRefs(req.BetID)

	return e.finish(ctx, tx, domain.FundsReservedEvent{
		UserID:        e.state.UserID,
		BetID:         req.BetID,
		Amount:        req.Amount,
		ReservedAfter: e.state.money(e.state.Reserved),
		BalanceAfter:  e.state.money(e.state.Balance),
	})
}

func (e *Entity) reReserve(ctx context.Context, req ReReserveRequest) (TransactionResult, error) {
	ref := reReserveRef(req.BetID, req.SagaID)
	if replay, ok, err := e.replayed(ref); ok || err != nil {
		return replay, err
	}
	if err := e.validAmount(ctx, domain.TxReservation, req.Amount, ref); err != nil {
		return TransactionResult{}, err
	}
	if _, exists := e.state.Reservations[req.BetID]; exists {
		return TransactionResult{}, e.reject(ctx, domain.TxReservation, req.Amount, ref,
			domain.ErrConflict("bet "+req.BetID+" already holds a reservation"))
	}
	if e.state.available() < req.Amount.Amount {
		return TransactionResult{}, e.reject(ctx, domain.TxReservation, req.Amount, ref,
			domain.ErrInsufficientFunds(req.Amount, e.state.money(e.state.available())))
	}

	e.state.Reservations[req.BetID] = req.Amount.Amount
	e.state.Reserved += req.Amount.Amount
	tx := e.record(domain.TxReservation, req.Amount, ref,
		"available funds", "reserved for bet "+req.BetID)
	e.remember(ref, tx.ID)
	e.forgetSettlementRefs(req.BetID)

	return e.finish(ctx, tx, domain.FundsReservedEvent{
		UserID:        e.state.UserID,
		BetID:         req.BetID,
		Amount:        req.Amount,
		ReservedAfter: e.state.money(e.state.Reserved),
		BalanceAfter:  e.state.money(e.state.Balance),
	})
}

// --- Queries ---

func (e *Entity) getTransactionHistory(_ context.Context, req HistoryRequest) ([]domain.WalletTransaction, error) {
	return lastN(e.state.Transactions, req.Limit), nil
}

func (e *Entity) getLedgerEntries(_ context.Context, req HistoryRequest) ([]domain.LedgerEntry, error) {
	return lastN(e.state.Ledger, req.Limit), nil
}

// lastN returns up to n items most-recent-first.
func lastN[T any](items []T, n int) []T {
	if n <= 0 || n > len(items) {
		n = len(items)
	}
	out := make([]T, 0, n)
	for i := len(items) - 1; i >= len(items)-n; i-- {
		out = append(out, items[i])
	}
	return out
}

// --- Mechanics ---

// replayed returns the original result when the reference was already
// applied. An unknown-but-evicted reference cannot be told apart from a
// fresh one here; eviction is why duplicates past retention surface as
// UNKNOWN_REFERENCE at the bet layer instead.
func (e *Entity) replayed(ref string) (TransactionResult, bool, error) {
	p, ok := e.state.ProcessedRefs[ref]
	if !ok {
		return TransactionResult{}, false, nil
	}
	for i := len(e.state.Transactions) - 1; i >= 0; i-- {
		if e.state.Transactions[i].ID == p.TransactionID {
			return TransactionResult{
				Transaction: e.state.Transactions[i],
				Balance:     e.state.money(e.state.Balance),
				Available:   e.state.money(e.state.available()),
				Replayed:    true,
			}, true, nil
		}
	}
	// The reference survived but its transaction was truncated: refuse
	// rather than re-apply.
	return TransactionResult{}, true, domain.ErrUnknownReference(ref)
}

func (e *Entity) validAmount(ctx context.Context, txType domain.TransactionType, amount domain.Money, ref string) error {
	if !amount.IsPositive() {
		return e.reject(ctx, txType, amount, ref,
			domain.ErrValidation(fmt.Sprintf("%s amount must be positive, got %s", txType, amount)))
	}
	if amount.Currency != e.state.Currency {
		return e.reject(ctx, txType, amount, ref,
			domain.ErrCurrencyMismatch(e.state.Currency, amount.Currency))
	}
	return nil
}

// record appends the completed transaction and its balanced posting.
func (e *Entity) record(txType domain.TransactionType, amount domain.Money, ref, debitDesc, creditDesc string) domain.WalletTransaction {
	now := e.now()
	tx := domain.WalletTransaction{
		ID:           uuid.New(),
		UserID:       e.state.UserID,
		Type:         txType,
		Amount:       amount,
		Status:       domain.TxCompleted,
		ReferenceID:  ref,
		BalanceAfter: e.state.money(e.state.Balance),
		Timestamp:    now,
	}
	debit, credit := domain.NewPosting(tx.ID, amount, debitDesc, creditDesc, now)
	e.state.Transactions = append(e.state.Transactions, tx)
	e.state.Ledger = append(e.state.Ledger, debit, credit)
	return tx
}

func (e *Entity) remember(ref string, txID uuid.UUID) {
	e.state.ProcessedRefs[ref] = processedRef{TransactionID: txID, ProcessedAt: e.now()}
}

// A reservation can cycle: committed, restored by compensation, then
// committed again under a new saga. Each half of the cycle must forget
// the other half's references, or the renewed operation replays the
// original as a no-op and the money never moves.

// forgetSettlementRefs clears the commit and release references for a
// bet whose reservation was just re-created.
func (e *Entity) forgetSettlementRefs(betID string) {
	delete(e.state.ProcessedRefs, commitRef(betID))
	delete(e.state.ProcessedRefs, releaseRef(betID))
}

// forgetCompensationRefs clears the restore and re-reserve references
// for a bet whose reservation was just consumed. A cash-out retry
// reuses its saga scope, so these are not unique per round.
func (e *Entity) forgetCompensationRefs(betID string) {
	for ref := range e.state.ProcessedRefs {
		if strings.HasPrefix(ref, "restore:"+betID+":") || strings.HasPrefix(ref, "rereserve:"+betID+":") {
			delete(e.state.ProcessedRefs, ref)
		}
	}
}

// finish verifies invariants, appends the domain event and persists.
func (e *Entity) finish(ctx context.Context, tx domain.WalletTransaction, ev domain.DomainEvent) (TransactionResult, error) {
	if err := e.state.checkInvariants(); err != nil {
		return TransactionResult{}, err
	}
	if _, err := e.log.Append(ctx, AggregateID(e.state.UserID), ev); err != nil {
		return TransactionResult{}, domain.ErrUnavailable("append wallet event", err)
	}
	if err := e.env.State.Save(ctx, &e.state); err != nil {
		return TransactionResult{}, err
	}
	return TransactionResult{
		Transaction: tx,
		Balance:     e.state.money(e.state.Balance),
		Available:   e.state.money(e.state.available()),
	}, nil
}

// reject records the failed attempt for audit, emits the failure event
// and returns the business error. Balance and reservations are untouched.
func (e *Entity) reject(ctx context.Context, txType domain.TransactionType, amount domain.Money, ref string, cause *domain.AppError) error {
	tx := domain.WalletTransaction{
		ID:           uuid.New(),
		UserID:       e.state.UserID,
		Type:         txType,
		Amount:       amount,
		Status:       domain.TxFailed,
		ReferenceID:  ref,
		BalanceAfter: e.state.money(e.state.Balance),
		FailureCode:  cause.Code,
		Timestamp:    e.now(),
	}
	e.state.Transactions = append(e.state.Transactions, tx)

	if _, err := e.log.Append(ctx, AggregateID(e.state.UserID), domain.TransactionFailedEvent{
		UserID:      e.state.UserID,
		Type:        txType,
		Amount:      amount,
		ReferenceID: ref,
		FailureCode: cause.Code,
		Reason:      cause.Message,
	}); err != nil {
		e.env.Logger.Warn("failed to append rejection event", "error", err)
	}
	if err := e.env.State.Save(ctx, &e.state); err != nil {
		return err
	}
	return cause
}
