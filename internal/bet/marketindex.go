package bet

import (
	"context"

	"github.com/stakemesh/platform/internal/actor"
	"github.com/stakemesh/platform/internal/domain"
)

// KindMarketIndex tracks which bets ride on a market; the settlement
// saga resolves its workload from here. Keyed by market ID.
const KindMarketIndex actor.Kind = "market-bets"

// BetRef is the index entry: enough to settle without loading the bet.
type BetRef struct {
	BetID       string `json:"bet_id"`
	UserID      string `json:"user_id"`
	SelectionID string `json:"selection_id"`
}

type marketIndexState struct {
	MarketID string   `json:"market_id"`
	Bets     []BetRef `json:"bets"`
}

// MarketIndexEntity is the per-market bet index.
type MarketIndexEntity struct {
	env   *actor.Env
	state marketIndexState
}

// NewMarketIndexFactory returns the market-bets index factory.
func NewMarketIndexFactory() actor.Factory {
	return func(env *actor.Env) actor.Entity {
		return &MarketIndexEntity{env: env}
	}
}

func (e *MarketIndexEntity) OnActivate(ctx context.Context) error {
	if _, err := e.env.State.Load(ctx, &e.state); err != nil {
		return err
	}
	e.state.MarketID = e.env.Key
	return nil
}

func (e *MarketIndexEntity) OnDeactivate(ctx context.Context, _ actor.DeactivateReason) error {
	if len(e.state.Bets) == 0 {
		return nil
	}
	return e.env.State.Save(ctx, &e.state)
}

func (e *MarketIndexEntity) Handlers() map[string]actor.Handler {
	return map[string]actor.Handler{
		"AddBet":   actor.Typed(e.addBet),
		"ListBets": actor.Typed(e.listBets),
	}
}

func (e *MarketIndexEntity) addBet(ctx context.Context, ref BetRef) (struct{}, error) {
	if ref.BetID == "" {
		return struct{}{}, domain.ErrValidation("addBet requires a bet_id")
	}
	for _, existing := range e.state.Bets {
		if existing.BetID == ref.BetID {
			return struct{}{}, nil
		}
	}
	e.state.Bets = append(e.state.Bets, ref)
	return struct{}{}, e.env.State.Save(ctx, &e.state)
}

func (e *MarketIndexEntity) listBets(_ context.Context, _ struct{}) ([]BetRef, error) {
	out := make([]BetRef, len(e.state.Bets))
	copy(out, e.state.Bets)
	return out, nil
}
