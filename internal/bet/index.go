package bet

import (
	"context"
	"sort"
	"time"

	"github.com/stakemesh/platform/internal/actor"
	"github.com/stakemesh/platform/internal/domain"
)

// KindUserIndex tracks the bets a user has placed, keyed by user ID.
// The placement path registers the bet here after acceptance, so a
// lookup can momentarily trail a just-placed bet.
const KindUserIndex actor.Kind = "bet-index"

type indexEntry struct {
	BetID    string    `json:"bet_id"`
	PlacedAt time.Time `json:"placed_at"`
}

type userIndexState struct {
	UserID  string       `json:"user_id"`
	Entries []indexEntry `json:"entries"`
}

// UserIndexEntity is the per-user bet index.
type UserIndexEntity struct {
	env   *actor.Env
	bets  *Client
	state userIndexState
}

// NewUserIndexFactory returns the user index factory.
func NewUserIndexFactory() actor.Factory {
	return func(env *actor.Env) actor.Entity {
		return &UserIndexEntity{env: env, bets: NewClient(env.Caller)}
	}
}

func (e *UserIndexEntity) OnActivate(ctx context.Context) error {
	if _, err := e.env.State.Load(ctx, &e.state); err != nil {
		return err
	}
	e.state.UserID = e.env.Key
	return nil
}

func (e *UserIndexEntity) OnDeactivate(ctx context.Context, _ actor.DeactivateReason) error {
	if len(e.state.Entries) == 0 {
		return nil
	}
	return e.env.State.Save(ctx, &e.state)
}

// --- Requests ---

type AddEntryRequest struct {
	BetID    string    `json:"bet_id"`
	PlacedAt time.Time `json:"placed_at"`
}

type HasBetRequest struct {
	BetID string `json:"bet_id"`
}

type ListRequest struct {
	Limit int `json:"limit"`
}

func (e *UserIndexEntity) Handlers() map[string]actor.Handler {
	return map[string]actor.Handler{
		"AddBet":        actor.Typed(e.addBet),
		"HasBet":        actor.Typed(e.hasBet),
		"GetUserBets":   actor.Typed(e.getUserBets),
		"GetActiveBets": actor.Typed(e.getActiveBets),
		"GetBetHistory": actor.Typed(e.getBetHistory),
	}
}

func (e *UserIndexEntity) addBet(ctx context.Context, req AddEntryRequest) (struct{}, error) {
	if req.BetID == "" {
		return struct{}{}, domain.ErrValidation("addBet requires a bet_id")
	}
	for _, entry := range e.state.Entries {
		if entry.BetID == req.BetID {
			return struct{}{}, nil
		}
	}
	e.state.Entries = append(e.state.Entries, indexEntry{BetID: req.BetID, PlacedAt: req.PlacedAt})
	return struct{}{}, e.env.State.Save(ctx, &e.state)
}

func (e *UserIndexEntity) hasBet(_ context.Context, req HasBetRequest) (bool, error) {
	for _, entry := range e.state.Entries {
		if entry.BetID == req.BetID {
			return true, nil
		}
	}
	return false, nil
}

func (e *UserIndexEntity) getUserBets(ctx context.Context, req ListRequest) ([]domain.Bet, error) {
	return e.resolve(ctx, req.Limit, func(domain.Bet) bool { return true })
}

func (e *UserIndexEntity) getActiveBets(ctx context.Context, req ListRequest) ([]domain.Bet, error) {
	return e.resolve(ctx, req.Limit, func(b domain.Bet) bool { return b.IsActive() })
}

func (e *UserIndexEntity) getBetHistory(ctx context.Context, req ListRequest) ([]domain.Bet, error) {
	return e.resolve(ctx, req.Limit, func(b domain.Bet) bool { return !b.IsActive() })
}

// resolve loads bet snapshots newest-first and keeps those the filter
// admits. Bets the index knows but whose entity is gone are skipped.
func (e *UserIndexEntity) resolve(ctx context.Context, limit int, keep func(domain.Bet) bool) ([]domain.Bet, error) {
	entries := make([]indexEntry, len(e.state.Entries))
	copy(entries, e.state.Entries)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].PlacedAt.After(entries[j].PlacedAt)
	})

	out := make([]domain.Bet, 0, len(entries))
	for _, entry := range entries {
		if limit > 0 && len(out) >= limit {
			break
		}
		b, err := e.bets.GetBet(ctx, entry.BetID)
		if err != nil {
			if domain.CodeOf(err) == domain.CodeNotFound {
				continue
			}
			return nil, err
		}
		if keep(b) {
			out = append(out, b)
		}
	}
	return out, nil
}
