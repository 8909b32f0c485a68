package wallet

import (
	"context"

	"github.com/stakemesh/platform/internal/actor"
	"github.com/stakemesh/platform/internal/domain"
)

// Client is the typed wallet interface other entities and handlers
// call through the runtime. Holding a user ID is holding the wallet.
type Client struct {
	caller actor.Caller
}

// NewClient wraps a runtime caller.
func NewClient(caller actor.Caller) *Client {
	return &Client{caller: caller}
}

func (c *Client) invoke(ctx context.Context, userID, method string, args, result any) error {
	return c.caller.Invoke(ctx, KindWallet, userID, method, args, result)
}

func (c *Client) GetBalance(ctx context.Context, userID string) (BalanceResult, error) {
	var out BalanceResult
	err := c.invoke(ctx, userID, "GetBalance", nil, &out)
	return out, err
}

func (c *Client) GetAvailableBalance(ctx context.Context, userID string) (domain.Money, error) {
	var out domain.Money
	err := c.invoke(ctx, userID, "GetAvailableBalance", nil, &out)
	return out, err
}

func (c *Client) Deposit(ctx context.Context, userID string, amount domain.Money, transactionID string) (TransactionResult, error) {
	var out TransactionResult
	err := c.invoke(ctx, userID, "Deposit", DepositRequest{Amount: amount, TransactionID: transactionID}, &out)
	return out, err
}

func (c *Client) Withdraw(ctx context.Context, userID string, amount domain.Money, transactionID string) (TransactionResult, error) {
	var out TransactionResult
	err := c.invoke(ctx, userID, "Withdraw", WithdrawRequest{Amount: amount, TransactionID: transactionID}, &out)
	return out, err
}

func (c *Client) Reserve(ctx context.Context, userID string, amount domain.Money, betID string) (TransactionResult, error) {
	var out TransactionResult
	err := c.invoke(ctx, userID, "Reserve", ReserveRequest{Amount: amount, BetID: betID}, &out)
	return out, err
}

func (c *Client) CommitReservation(ctx context.Context, userID, betID string) (TransactionResult, error) {
	var out TransactionResult
	err := c.invoke(ctx, userID, "CommitReservation", ReservationRequest{BetID: betID}, &out)
	return out, err
}

func (c *Client) ReleaseReservation(ctx context.Context, userID, betID string) (TransactionResult, error) {
	var out TransactionResult
	err := c.invoke(ctx, userID, "ReleaseReservation", ReservationRequest{BetID: betID}, &out)
	return out, err
}

func (c *Client) ProcessPayout(ctx context.Context, userID string, amount domain.Money, betID, sagaID string) (TransactionResult, error) {
	var out TransactionResult
	err := c.invoke(ctx, userID, "ProcessPayout", PayoutRequest{Amount: amount, BetID: betID, SagaID: sagaID}, &out)
	return out, err
}

func (c *Client) ReversePayout(ctx context.Context, userID string, amount domain.Money, betID, sagaID, reason string) (TransactionResult, error) {
	var out TransactionResult
	err := c.invoke(ctx, userID, "ReversePayout", ReversalRequest{Amount: amount, BetID: betID, SagaID: sagaID, Reason: reason}, &out)
	return out, err
}

func (c *Client) RestoreReservation(ctx context.Context, userID string, amount domain.Money, betID, sagaID, reason string) (TransactionResult, error) {
	var out TransactionResult
	err := c.invoke(ctx, userID, "RestoreReservation", RestoreRequest{Amount: amount, BetID: betID, SagaID: sagaID, Reason: reason}, &out)
	return out, err
}

func (c *Client) ReReserve(ctx context.Context, userID string, amount domain.Money, betID, sagaID string) (TransactionResult, error) {
	var out TransactionResult
	err := c.invoke(ctx, userID, "ReReserve", ReReserveRequest{Amount: amount, BetID: betID, SagaID: sagaID}, &out)
	return out, err
}

func (c *Client) GetTransactionHistory(ctx context.Context, userID string, limit int) ([]domain.WalletTransaction, error) {
	var out []domain.WalletTransaction
	err := c.invoke(ctx, userID, "GetTransactionHistory", HistoryRequest{Limit: limit}, &out)
	return out, err
}

func (c *Client) GetLedgerEntries(ctx context.Context, userID string, limit int) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	err := c.invoke(ctx, userID, "GetLedgerEntries", HistoryRequest{Limit: limit}, &out)
	return out, err
}
