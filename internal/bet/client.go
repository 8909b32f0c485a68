package bet

import (
	"context"
	"time"

	"github.com/stakemesh/platform/internal/actor"
	"github.com/stakemesh/platform/internal/domain"
)

// Client is the typed bet interface used by handlers, the indexes and
// the settlement saga.
type Client struct {
	caller actor.Caller
}

// NewClient wraps a runtime caller.
func NewClient(caller actor.Caller) *Client {
	return &Client{caller: caller}
}

func (c *Client) invoke(ctx context.Context, betID, method string, args, result any) error {
	return c.caller.Invoke(ctx, KindBet, betID, method, args, result)
}

func (c *Client) PlaceBet(ctx context.Context, req PlaceRequest) (domain.Bet, error) {
	var out domain.Bet
	err := c.invoke(ctx, req.BetID, "PlaceBet", req, &out)
	return out, err
}

func (c *Client) GetBet(ctx context.Context, betID string) (domain.Bet, error) {
	var out domain.Bet
	err := c.invoke(ctx, betID, "GetBet", nil, &out)
	return out, err
}

func (c *Client) VoidBet(ctx context.Context, betID, reason string) (domain.Bet, error) {
	var out domain.Bet
	err := c.invoke(ctx, betID, "VoidBet", VoidRequest{Reason: reason}, &out)
	return out, err
}

func (c *Client) CashOut(ctx context.Context, betID string) (CashOutResult, error) {
	var out CashOutResult
	err := c.invoke(ctx, betID, "CashOut", nil, &out)
	return out, err
}

func (c *Client) SettleBet(ctx context.Context, betID string, status domain.BetStatus, payout *domain.Money, sagaID string) (domain.Bet, error) {
	var out domain.Bet
	err := c.invoke(ctx, betID, "SettleBet", SettleRequest{FinalStatus: status, Payout: payout, SagaID: sagaID}, &out)
	return out, err
}

func (c *Client) ReverseSettlement(ctx context.Context, betID, sagaID, reason string) (domain.Bet, error) {
	var out domain.Bet
	err := c.invoke(ctx, betID, "ReverseSettlement", ReverseRequest{SagaID: sagaID, Reason: reason}, &out)
	return out, err
}

func (c *Client) GetBetHistory(ctx context.Context, betID string) ([]HistoryEntry, error) {
	var out []HistoryEntry
	err := c.invoke(ctx, betID, "GetBetHistory", nil, &out)
	return out, err
}

// UserIndexClient reads and maintains a user's bet index.
type UserIndexClient struct {
	caller actor.Caller
}

func NewUserIndexClient(caller actor.Caller) *UserIndexClient {
	return &UserIndexClient{caller: caller}
}

func (c *UserIndexClient) invoke(ctx context.Context, userID, method string, args, result any) error {
	return c.caller.Invoke(ctx, KindUserIndex, userID, method, args, result)
}

func (c *UserIndexClient) AddBet(ctx context.Context, userID, betID string, placedAt time.Time) error {
	var out struct{}
	return c.invoke(ctx, userID, "AddBet", AddEntryRequest{BetID: betID, PlacedAt: placedAt}, &out)
}

func (c *UserIndexClient) HasBet(ctx context.Context, userID, betID string) (bool, error) {
	var out bool
	err := c.invoke(ctx, userID, "HasBet", HasBetRequest{BetID: betID}, &out)
	return out, err
}

func (c *UserIndexClient) GetUserBets(ctx context.Context, userID string, limit int) ([]domain.Bet, error) {
	var out []domain.Bet
	err := c.invoke(ctx, userID, "GetUserBets", ListRequest{Limit: limit}, &out)
	return out, err
}

func (c *UserIndexClient) GetActiveBets(ctx context.Context, userID string, limit int) ([]domain.Bet, error) {
	var out []domain.Bet
	err := c.invoke(ctx, userID, "GetActiveBets", ListRequest{Limit: limit}, &out)
	return out, err
}

func (c *UserIndexClient) GetBetHistory(ctx context.Context, userID string, limit int) ([]domain.Bet, error) {
	var out []domain.Bet
	err := c.invoke(ctx, userID, "GetBetHistory", ListRequest{Limit: limit}, &out)
	return out, err
}

// MarketIndexClient reads and maintains a market's bet index.
type MarketIndexClient struct {
	caller actor.Caller
}

func NewMarketIndexClient(caller actor.Caller) *MarketIndexClient {
	return &MarketIndexClient{caller: caller}
}

func (c *MarketIndexClient) AddBet(ctx context.Context, marketID string, ref BetRef) error {
	var out struct{}
	return c.caller.Invoke(ctx, KindMarketIndex, marketID, "AddBet", ref, &out)
}

func (c *MarketIndexClient) ListBets(ctx context.Context, marketID string) ([]BetRef, error) {
	var out []BetRef
	err := c.caller.Invoke(ctx, KindMarketIndex, marketID, "ListBets", nil, &out)
	return out, err
}
