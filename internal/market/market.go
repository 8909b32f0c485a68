// Package market is the per-market odds entity: the current price
// snapshot, per-selection update history, volatility-driven automatic
// suspension, and the lock set recording which bets captured which
// prices.
package market

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stakemesh/platform/internal/actor"
	"github.com/stakemesh/platform/internal/domain"
	"github.com/stakemesh/platform/internal/eventlog"
	"github.com/stakemesh/platform/internal/odds"
)

// KindOdds is the entity kind; the key is the market ID.
const KindOdds actor.Kind = "odds"

// AutoSuspendReason is the reason recorded when volatility suspends a
// market without operator involvement.
const AutoSuspendReason = "automatic suspension due to extreme volatility"

// DefaultVolatilityWindow is the scoring window when none is configured.
const DefaultVolatilityWindow = time.Hour

// AggregateID returns the event-stream aggregate for a market's odds.
func AggregateID(marketID string) string { return "odds-" + marketID }

type state struct {
	MarketID         string                    `json:"market_id"`
	Initialized      bool                      `json:"initialized"`
	CurrentOdds      map[string]odds.Odds      `json:"current_odds"`
	Histories        map[string]*odds.History  `json:"histories"`
	IsSuspended      bool                      `json:"is_suspended"`
	SuspensionReason string                    `json:"suspension_reason,omitempty"`
	SuspensionTime   *time.Time                `json:"suspension_time,omitempty"`
	CurrentLevel     odds.VolatilityLevel      `json:"current_level"`
	CurrentScore     float64                   `json:"current_score"`
	Locked           map[string][]string       `json:"locked"` // selection -> bet IDs, set semantics
	WindowSeconds    int64                     `json:"window_seconds"`
}

func (s *state) window() time.Duration {
	if s.WindowSeconds <= 0 {
		return DefaultVolatilityWindow
	}
	return time.Duration(s.WindowSeconds) * time.Second
}

// Entity is one activated odds market.
type Entity struct {
	env   *actor.Env
	log   *eventlog.Log
	state state
	now   func() time.Time
}

// NewFactory returns the odds entity factory for runtime registration.
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
			MarketID:     e.env.Key,
			CurrentOdds:  make(map[string]odds.Odds),
			Histories:    make(map[string]*odds.History),
			Locked:       make(map[string][]string),
			CurrentLevel: odds.VolatilityLow,
		}
	}
	return nil
}

func (e *Entity) OnDeactivate(ctx context.Context, _ actor.DeactivateReason) error {
	return e.env.State.Save(ctx, &e.state)
}

// --- Requests and results ---

type InitializeRequest struct {
	SelectionOdds map[string]decimal.Decimal `json:"selection_odds"`
	Source        string                     `json:"source"`
}

type UpdateRequest struct {
	SelectionOdds map[string]decimal.Decimal `json:"selection_odds"`
	Source        string                     `json:"source"`
	Reason        string                     `json:"reason,omitempty"`
	UpdatedBy     string                     `json:"updated_by,omitempty"`
}

type SuspendRequest struct {
	Reason string `json:"reason"`
	By     string `json:"by,omitempty"`
}

type LockRequest struct {
	BetID       string `json:"bet_id"`
	SelectionID string `json:"selection_id"`
}

// LockResult reports the price the bet captured.
type LockResult struct {
	BetID       string          `json:"bet_id"`
	SelectionID string          `json:"selection_id"`
	LockedOdds  decimal.Decimal `json:"locked_odds"`
}

type UnlockRequest struct {
	BetID string `json:"bet_id"`
}

type UnlockResult struct {
	BetID      string   `json:"bet_id"`
	Selections []string `json:"selections"`
}

type VolatilityRequest struct {
	WindowSeconds int64 `json:"window_seconds,omitempty"`
}

type VolatilityResult struct {
	Score float64              `json:"score"`
	Level odds.VolatilityLevel `json:"level"`
}

func (e *Entity) Handlers() map[string]actor.Handler {
	return map[string]actor.Handler{
		"InitializeMarket":   actor.Typed(e.initializeMarket),
		"GetCurrentOdds":     actor.Typed(e.getCurrentOdds),
		"UpdateOdds":         actor.Typed(e.updateOdds),
		"SuspendOdds":        actor.Typed(e.suspendOdds),
		"ResumeOdds":         actor.Typed(e.resumeOdds),
		"LockOddsForBet":     actor.Typed(e.lockOddsForBet),
		"UnlockOdds":         actor.Typed(e.unlockOdds),
		"GetVolatilityScore": actor.Typed(e.getVolatilityScore),
	}
}

func (e *Entity) initializeMarket(ctx context.Context, req InitializeRequest) (odds.Snapshot, error) {
	if e.state.Initialized {
		return odds.Snapshot{}, domain.ErrConflict("market " + e.state.MarketID + " is already initialized")
	}
	if len(req.SelectionOdds) == 0 {
		return odds.Snapshot{}, domain.ErrValidation("initializeMarket requires at least one selection")
	}

	now := e.now()
	for selection, dec := range req.SelectionOdds {
		o, err := odds.New(dec, e.state.MarketID, selection, req.Source, now)
		if err != nil {
			return odds.Snapshot{}, err
		}
		e.state.CurrentOdds[selection] = o
		e.state.Histories[selection] = &odds.History{MarketID: e.state.MarketID, Selection: selection}
	}
	e.state.Initialized = true

	if _, err := e.log.Append(ctx, AggregateID(e.state.MarketID), domain.MarketInitializedEvent{
		MarketID:   e.state.MarketID,
		Selections: req.SelectionOdds,
		Source:     req.Source,
	}); err != nil {
		return odds.Snapshot{}, domain.ErrUnavailable("append odds event", err)
	}
	if err := e.env.State.Save(ctx, &e.state); err != nil {
		return odds.Snapshot{}, err
	}
	return e.snapshot(), nil
}

func (e *Entity) getCurrentOdds(_ context.Context, _ struct{}) (odds.Snapshot, error) {
	if err := e.requireInitialized(); err != nil {
		return odds.Snapshot{}, err
	}
	return e.snapshot(), nil
}

func (e *Entity) updateOdds(ctx context.Context, req UpdateRequest) (odds.Snapshot, error) {
	if err := e.requireInitialized(); err != nil {
		return odds.Snapshot{}, err
	}
	if e.state.IsSuspended {
		return odds.Snapshot{}, domain.ErrMarketSuspended(e.state.MarketID, e.state.SuspensionReason)
	}
	if len(req.SelectionOdds) == 0 {
		return odds.Snapshot{}, domain.ErrValidation("updateOdds requires at least one selection")
	}

	now := e.now()
	// Validate the whole request before touching state: an entity method
	// that fails must not have half-applied.
	incoming := make(map[string]odds.Odds, len(req.SelectionOdds))
	for selection, dec := range req.SelectionOdds {
		if _, known := e.state.CurrentOdds[selection]; !known {
			return odds.Snapshot{}, domain.ErrNotFound("selection", selection)
		}
		o, err := odds.New(dec, e.state.MarketID, selection, req.Source, now)
		if err != nil {
			return odds.Snapshot{}, err
		}
		incoming[selection] = o
	}

	for selection, next := range incoming {
		prev := e.state.CurrentOdds[selection]
		if prev.Decimal.Equal(next.Decimal) {
			continue
		}
		e.state.Histories[selection].Append(odds.Update{
			Previous:  prev.Decimal,
			New:       next.Decimal,
			Source:    req.Source,
			Reason:    req.Reason,
			UpdatedAt: now,
		})
		e.state.CurrentOdds[selection] = next
	}

	prevLevel := e.state.CurrentLevel
	score := odds.MaxScore(e.state.Histories, now, e.state.window())
	level := odds.LevelForScore(score)
	e.state.CurrentScore = score
	e.state.CurrentLevel = level

	events := []domain.DomainEvent{domain.OddsUpdatedEvent{
		MarketID:        e.state.MarketID,
		Selections:      req.SelectionOdds,
		Source:          req.Source,
		Reason:          req.Reason,
		UpdatedBy:       req.UpdatedBy,
		VolatilityScore: score,
	}}
	if level != prevLevel {
		events = append(events, domain.OddsVolatilityChangedEvent{
			MarketID:      e.state.MarketID,
			PreviousLevel: string(prevLevel),
			NewLevel:      string(level),
			Score:         score,
		})
	}
	if score >= odds.AutoSuspendThreshold && !e.state.IsSuspended {
		e.state.IsSuspended = true
		e.state.SuspensionReason = AutoSuspendReason
		e.state.SuspensionTime = &now
		events = append(events, domain.OddsSuspendedEvent{
			MarketID:  e.state.MarketID,
			Reason:    AutoSuspendReason,
			Automatic: true,
		})
	}

	if _, err := e.log.Append(ctx, AggregateID(e.state.MarketID), events...); err != nil {
		return odds.Snapshot{}, domain.ErrUnavailable("append odds events", err)
	}
	if err := e.env.State.Save(ctx, &e.state); err != nil {
		return odds.Snapshot{}, err
	}
	return e.snapshot(), nil
}

// suspendOdds is idempotent: re-suspending returns the current snapshot.
func (e *Entity) suspendOdds(ctx context.Context, req SuspendRequest) (odds.Snapshot, error) {
	if err := e.requireInitialized(); err != nil {
		return odds.Snapshot{}, err
	}
	if e.state.IsSuspended {
		return e.snapshot(), nil
	}
	now := e.now()
	e.state.IsSuspended = true
	e.state.SuspensionReason = req.Reason
	e.state.SuspensionTime = &now

	if _, err := e.log.Append(ctx, AggregateID(e.state.MarketID), domain.OddsSuspendedEvent{
		MarketID:    e.state.MarketID,
		Reason:      req.Reason,
		Automatic:   false,
		SuspendedBy: req.By,
	}); err != nil {
		return odds.Snapshot{}, domain.ErrUnavailable("append odds event", err)
	}
	if err := e.env.State.Save(ctx, &e.state); err != nil {
		return odds.Snapshot{}, err
	}
	return e.snapshot(), nil
}

func (e *Entity) resumeOdds(ctx context.Context, req SuspendRequest) (odds.Snapshot, error) {
	if err := e.requireInitialized(); err != nil {
		return odds.Snapshot{}, err
	}
	if !e.state.IsSuspended {
		return e.snapshot(), nil
	}
	e.state.IsSuspended = false
	e.state.SuspensionReason = ""
	e.state.SuspensionTime = nil

	if _, err := e.log.Append(ctx, AggregateID(e.state.MarketID), domain.OddsResumedEvent{
		MarketID:  e.state.MarketID,
		Reason:    req.Reason,
		ResumedBy: req.By,
	}); err != nil {
		return odds.Snapshot{}, domain.ErrUnavailable("append odds event", err)
	}
	if err := e.env.State.Save(ctx, &e.state); err != nil {
		return odds.Snapshot{}, err
	}
	return e.snapshot(), nil
}

// lockOddsForBet records that the bet committed at the price current
// now. The lock does not freeze later updates.
func (e *Entity) lockOddsForBet(ctx context.Context, req LockRequest) (LockResult, error) {
	if err := e.requireInitialized(); err != nil {
		return LockResult{}, err
	}
	if e.state.IsSuspended {
		return LockResult{}, domain.ErrMarketSuspended(e.state.MarketID, e.state.SuspensionReason)
	}
	current, known := e.state.CurrentOdds[req.SelectionID]
	if !known {
		return LockResult{}, domain.ErrNotFound("selection", req.SelectionID)
	}

	holders := e.state.Locked[req.SelectionID]
	alreadyHeld := false
	for _, id := range holders {
		if id == req.BetID {
			alreadyHeld = true
			break
		}
	}
	if !alreadyHeld {
		e.state.Locked[req.SelectionID] = append(holders, req.BetID)
	}

	if _, err := e.log.Append(ctx, AggregateID(e.state.MarketID), domain.OddsLockedEvent{
		MarketID:    e.state.MarketID,
		BetID:       req.BetID,
		SelectionID: req.SelectionID,
		LockedOdds:  current.Decimal,
	}); err != nil {
		return LockResult{}, domain.ErrUnavailable("append odds event", err)
	}
	if err := e.env.State.Save(ctx, &e.state); err != nil {
		return LockResult{}, err
	}
	return LockResult{BetID: req.BetID, SelectionID: req.SelectionID, LockedOdds: current.Decimal}, nil
}

// unlockOdds removes the bet from every selection it locks.
func (e *Entity) unlockOdds(ctx context.Context, req UnlockRequest) (UnlockResult, error) {
	if err := e.requireInitialized(); err != nil {
		return UnlockResult{}, err
	}
	var released []string
	for selection, holders := range e.state.Locked {
		kept := holders[:0]
		for _, id := range holders {
			if id == req.BetID {
				released = append(released, selection)
				continue
			}
			kept = append(kept, id)
		}
		if len(kept) == 0 {
			delete(e.state.Locked, selection)
		} else {
			e.state.Locked[selection] = kept
		}
	}
	if len(released) == 0 {
		return UnlockResult{BetID: req.BetID}, nil
	}
	sort.Strings(released)

	if _, err := e.log.Append(ctx, AggregateID(e.state.MarketID), domain.OddsUnlockedEvent{
		MarketID:   e.state.MarketID,
		BetID:      req.BetID,
		Selections: released,
	}); err != nil {
		return UnlockResult{}, domain.ErrUnavailable("append odds event", err)
	}
	if err := e.env.State.Save(ctx, &e.state); err != nil {
		return UnlockResult{}, err
	}
	return UnlockResult{BetID: req.BetID, Selections: released}, nil
}

// getVolatilityScore is a pure query over history.
func (e *Entity) getVolatilityScore(_ context.Context, req VolatilityRequest) (VolatilityResult, error) {
	if err := e.requireInitialized(); err != nil {
		return VolatilityResult{}, err
	}
	window := e.state.window()
	if req.WindowSeconds > 0 {
		window = time.Duration(req.WindowSeconds) * time.Second
	}
	score := odds.MaxScore(e.state.Histories, e.now(), window)
	return VolatilityResult{Score: score, Level: odds.LevelForScore(score)}, nil
}

func (e *Entity) requireInitialized() error {
	if !e.state.Initialized {
		return domain.ErrNotFound("market", e.state.MarketID)
	}
	return nil
}

func (e *Entity) snapshot() odds.Snapshot {
	selections := make(map[string]odds.Quote, len(e.state.CurrentOdds))
	for id, o := range e.state.CurrentOdds {
		selections[id] = odds.QuoteOf(o)
	}
	return odds.Snapshot{
		MarketID:         e.state.MarketID,
		Selections:       selections,
		Timestamp:        e.now(),
		Volatility:       e.state.CurrentLevel,
		VolatilityScore:  e.state.CurrentScore,
		IsSuspended:      e.state.IsSuspended,
		SuspensionReason: e.state.SuspensionReason,
		TotalMargin:      odds.Margin(e.state.CurrentOdds),
	}
}
