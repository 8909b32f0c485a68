package market

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/stakemesh/platform/internal/actor"
	"github.com/stakemesh/platform/internal/odds"
)

// Client is the typed odds-market interface used by bets, handlers and
// the settlement path.
type Client struct {
	caller actor.Caller
}

// NewClient wraps a runtime caller.
func NewClient(caller actor.Caller) *Client {
	return &Client{caller: caller}
}

func (c *Client) invoke(ctx context.Context, marketID, method string, args, result any) error {
	return c.caller.Invoke(ctx, KindOdds, marketID, method, args, result)
}

func (c *Client) InitializeMarket(ctx context.Context, marketID string, selectionOdds map[string]decimal.Decimal, source string) (odds.Snapshot, error) {
	var out odds.Snapshot
	err := c.invoke(ctx, marketID, "InitializeMarket", InitializeRequest{SelectionOdds: selectionOdds, Source: source}, &out)
	return out, err
}

func (c *Client) GetCurrentOdds(ctx context.Context, marketID string) (odds.Snapshot, error) {
	var out odds.Snapshot
	err := c.invoke(ctx, marketID, "GetCurrentOdds", nil, &out)
	return out, err
}

func (c *Client) UpdateOdds(ctx context.Context, marketID string, req UpdateRequest) (odds.Snapshot, error) {
	var out odds.Snapshot
	err := c.invoke(ctx, marketID, "UpdateOdds", req, &out)
	return out, err
}

func (c *Client) SuspendOdds(ctx context.Context, marketID, reason, by string) (odds.Snapshot, error) {
	var out odds.Snapshot
	err := c.invoke(ctx, marketID, "SuspendOdds", SuspendRequest{Reason: reason, By: by}, &out)
	return out, err
}

func (c *Client) ResumeOdds(ctx context.Context, marketID, reason, by string) (odds.Snapshot, error) {
	var out odds.Snapshot
	err := c.invoke(ctx, marketID, "ResumeOdds", SuspendRequest{Reason: reason, By: by}, &out)
	return out, err
}

func (c *Client) LockOddsForBet(ctx context.Context, marketID, betID, selectionID string) (LockResult, error) {
	var out LockResult
	err := c.invoke(ctx, marketID, "LockOddsForBet", LockRequest{BetID: betID, SelectionID: selectionID}, &out)
	return out, err
}

func (c *Client) UnlockOdds(ctx context.Context, marketID, betID string) (UnlockResult, error) {
	var out UnlockResult
	err := c.invoke(ctx, marketID, "UnlockOdds", UnlockRequest{BetID: betID}, &out)
	return out, err
}

func (c *Client) GetVolatilityScore(ctx context.Context, marketID string, windowSeconds int64) (VolatilityResult, error) {
	var out VolatilityResult
	err := c.invoke(ctx, marketID, "GetVolatilityScore", VolatilityRequest{WindowSeconds: windowSeconds}, &out)
	return out, err
}
