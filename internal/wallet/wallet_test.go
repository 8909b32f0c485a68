package wallet_test

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakemesh/platform/internal/actor"
	"github.com/stakemesh/platform/internal/domain"
	"github.com/stakemesh/platform/internal/eventlog"
	"github.com/stakemesh/platform/internal/repository"
	"github.com/stakemesh/platform/internal/wallet"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func usd(amount int64) domain.Money {
	return domain.Money{Amount: amount, Currency: "USD"}
}

func newWalletSystem(t *testing.T) (*wallet.Client, *eventlog.Log) {
	t.Helper()
	log := eventlog.New(repository.NewMemoryEventStore(), testLogger())
	sys, err := actor.NewSystem(actor.Config{
		Store:  repository.NewMemoryStateStore(),
		Logger: testLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, sys.Register(actor.KindSpec{Kind: wallet.KindWallet, New: wallet.NewFactory(log)}))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sys.Drain(ctx)
	})
	return wallet.NewClient(sys), log
}

// --- Deposit and Withdraw Tests ---

func TestDepositAndWithdraw(t *testing.T) {
	wallets, log := newWalletSystem(t)
	ctx := context.Background()

	res, err := wallets.Deposit(ctx, "u1", usd(100_00), "dep-1")
	require.NoError(t, err)
	assert.Equal(t, usd(100_00), res.Balance)
	assert.Equal(t, usd(100_00), res.Available)
	assert.Equal(t, domain.TxDeposit, res.Transaction.Type)
	assert.False(t, res.Replayed)

	res, err = wallets.Withdraw(ctx, "u1", usd(40_00), "wd-1")
	require.NoError(t, err)
	assert.Equal(t, usd(60_00), res.Balance)

	bal, err := wallets.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, usd(60_00), bal.Balance)
	assert.Equal(t, usd(0), bal.Reserved)
	assert.Equal(t, usd(60_00), bal.Available)

	stream, err := log.Read(ctx, wallet.AggregateID("u1"), 0)
	require.NoError(t, err)
	require.Len(t, stream, 2)
	assert.Equal(t, "FundsDepositedEvent", stream[0].Type)
	assert.Equal(t, "FundsWithdrawnEvent", stream[1].Type)
}

func TestDepositReplaysOnDuplicateReference(t *testing.T) {
	wallets, _ := newWalletSystem(t)
	ctx := context.Background()

	first, err := wallets.Deposit(ctx, "u1", usd(50_00), "dep-1")
	require.NoError(t, err)

	second, err := wallets.Deposit(ctx, "u1", usd(50_00), "dep-1")
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Transaction.ID, second.Transaction.ID)
	assert.Equal(t, usd(50_00), second.Balance, "replay must not move money")
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	wallets, _ := newWalletSystem(t)
	ctx := context.Background()

	_, err := wallets.Deposit(ctx, "u1", usd(30_00), "dep-1")
	require.NoError(t, err)

	_, err = wallets.Withdraw(ctx, "u1", usd(31_00), "wd-1")
	require.Error(t, err)
	assert.Equal(t, domain.CodeInsufficientFunds, domain.CodeOf(err))

	// The rejection is recorded for audit; the balance is untouched.
	txs, err := wallets.GetTransactionHistory(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, domain.TxFailed, txs[0].Status)
	assert.Equal(t, domain.CodeInsufficientFunds, txs[0].FailureCode)

	bal, err := wallets.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, usd(30_00), bal.Balance)
}

func TestMoveValidation(t *testing.T) {
	wallets, _ := newWalletSystem(t)
	ctx := context.Background()

	_, err := wallets.Deposit(ctx, "u1", usd(10_00), "")
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))

	_, err = wallets.Deposit(ctx, "u1", usd(0), "dep-1")
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))

	_, err = wallets.Deposit(ctx, "u1", domain.Money{Amount: 10_00, Currency: "EUR"}, "dep-2")
	require.Error(t, err)
	assert.Equal(t, domain.CodeCurrencyMismatch, domain.CodeOf(err))
}

// --- Reservation Tests ---

func TestReservationLifecycle(t *testing.T) {
	wallets, _ := newWalletSystem(t)
	ctx := context.Background()

	_, err := wallets.Deposit(ctx, "u1", usd(100_00), "dep-1")
	require.NoError(t, err)

	// Reserve earmarks without moving the balance.
	_, err = wallets.Reserve(ctx, "u1", usd(25_00), "bet-1")
	require.NoError(t, err)
	bal, err := wallets.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, usd(100_00), bal.Balance)
	assert.Equal(t, usd(25_00), bal.Reserved)
	assert.Equal(t, usd(75_00), bal.Available)

	// A second reserve for the same bet replays, not doubles.
	res, err := wallets.Reserve(ctx, "u1", usd(25_00), "bet-1")
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	bal, err = wallets.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, usd(25_00), bal.Reserved)

	// Commit removes both the reservation and the balance.
	_, err = wallets.CommitReservation(ctx, "u1", "bet-1")
	require.NoError(t, err)
	bal, err = wallets.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, usd(75_00), bal.Balance)
	assert.Equal(t, usd(0), bal.Reserved)

	// Release of an absent reservation is NOT_FOUND.
	_, err = wallets.ReleaseReservation(ctx, "u1", "bet-1")
	require.Error(t, err)
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
}

func TestReleaseReturnsFundsToAvailable(t *testing.T) {
	wallets, _ := newWalletSystem(t)
	ctx := context.Background()

	_, err := wallets.Deposit(ctx, "u1", usd(100_00), "dep-1")
	require.NoError(t, err)
	_, err = wallets.Reserve(ctx, "u1", usd(60_00), "bet-1")
	require.NoError(t, err)
	_, err = wallets.ReleaseReservation(ctx, "u1", "bet-1")
	require.NoError(t, err)

	bal, err := wallets.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, usd(100_00), bal.Balance)
	assert.Equal(t, usd(100_00), bal.Available)
}

func TestConcurrentReservationsNeverOvercommit(t *testing.T) {
	wallets, _ := newWalletSystem(t)
	ctx := context.Background()

	_, err := wallets.Deposit(ctx, "u1", usd(300_00), "dep-1")
	require.NoError(t, err)

	// Five racers want 100 each against 300 available: exactly three can
	// win, regardless of interleaving.
	const racers = 5
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = wallets.Reserve(ctx, "u1", usd(100_00), fmt.Sprintf("bet-%d", i))
		}(i)
	}
	wg.Wait()

	granted := 0
	for _, err := range errs {
		if err == nil {
			granted++
		} else {
			assert.Equal(t, domain.CodeInsufficientFunds, domain.CodeOf(err))
		}
	}
	assert.Equal(t, 3, granted)

	bal, err := wallets.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, usd(300_00), bal.Reserved)
	assert.Equal(t, usd(0), bal.Available)
}

// --- Payout and Compensation Tests ---

func TestPayoutAndReversal(t *testing.T) {
	wallets, _ := newWalletSystem(t)
	ctx := context.Background()

	_, err := wallets.Deposit(ctx, "u1", usd(100_00), "dep-1")
	require.NoError(t, err)

	_, err = wallets.ProcessPayout(ctx, "u1", usd(210_00), "bet-1", "saga-1")
	require.NoError(t, err)
	bal, err := wallets.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, usd(310_00), bal.Balance)

	// A redelivered payout replays.
	res, err := wallets.ProcessPayout(ctx, "u1", usd(210_00), "bet-1", "saga-1")
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	bal, err = wallets.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, usd(310_00), bal.Balance)

	_, err = wallets.ReversePayout(ctx, "u1", usd(210_00), "bet-1", "saga-1", "compensation")
	require.NoError(t, err)
	bal, err = wallets.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, usd(100_00), bal.Balance)
}

func TestRestoreReservationUndoesCommit(t *testing.T) {
	wallets, _ := newWalletSystem(t)
	ctx := context.Background()

	_, err := wallets.Deposit(ctx, "u1", usd(100_00), "dep-1")
	require.NoError(t, err)
	_, err = wallets.Reserve(ctx, "u1", usd(40_00), "bet-1")
	require.NoError(t, err)
	_, err = wallets.CommitReservation(ctx, "u1", "bet-1")
	require.NoError(t, err)

	// Restore is the exact inverse: the money comes back and sits
	// reserved again.
	_, err = wallets.RestoreReservation(ctx, "u1", usd(40_00), "bet-1", "saga-1", "compensation")
	require.NoError(t, err)

	bal, err := wallets.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, usd(100_00), bal.Balance)
	assert.Equal(t, usd(40_00), bal.Reserved)
	assert.Equal(t, usd(60_00), bal.Available)
}

func TestCommitAppliesAfreshAfterRestore(t *testing.T) {
	wallets, _ := newWalletSystem(t)
	ctx := context.Background()

	// First settlement round: stake committed, payout credited.
	_, err := wallets.Deposit(ctx, "u1", usd(500_00), "dep-1")
	require.NoError(t, err)
	_, err = wallets.Reserve(ctx, "u1", usd(100_00), "bet-1")
	require.NoError(t, err)
	_, err = wallets.CommitReservation(ctx, "u1", "bet-1")
	require.NoError(t, err)
	_, err = wallets.ProcessPayout(ctx, "u1", usd(200_00), "bet-1", "saga-1")
	require.NoError(t, err)

	// Compensation unwinds the round: payout clawed back, stake on
	// reserve again.
	_, err = wallets.ReversePayout(ctx, "u1", usd(200_00), "bet-1", "saga-1", "mis-settled")
	require.NoError(t, err)
	_, err = wallets.RestoreReservation(ctx, "u1", usd(100_00), "bet-1", "saga-1", "mis-settled")
	require.NoError(t, err)

	// The renewed settlement must debit the stake again, not replay the
	// first commit as a no-op and leave the reservation stuck.
	res, err := wallets.CommitReservation(ctx, "u1", "bet-1")
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	_, err = wallets.ProcessPayout(ctx, "u1", usd(200_00), "bet-1", "saga-2")
	require.NoError(t, err)

	bal, err := wallets.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, usd(600_00), bal.Balance)
	assert.Equal(t, usd(0), bal.Reserved)

	entries, err := wallets.GetLedgerEntries(ctx, "u1", 0)
	require.NoError(t, err)
	require.NoError(t, domain.CheckPostingBalance(entries))
}

func TestReleaseAppliesAfreshAfterReReserve(t *testing.T) {
	wallets, _ := newWalletSystem(t)
	ctx := context.Background()

	_, err := wallets.Deposit(ctx, "u1", usd(100_00), "dep-1")
	require.NoError(t, err)
	_, err = wallets.Reserve(ctx, "u1", usd(40_00), "bet-1")
	require.NoError(t, err)
	_, err = wallets.ReleaseReservation(ctx, "u1", "bet-1")
	require.NoError(t, err)
	_, err = wallets.ReReserve(ctx, "u1", usd(40_00), "bet-1", "saga-1")
	require.NoError(t, err)

	// Releasing the re-created reservation moves it back to available
	// instead of replaying the earlier release.
	res, err := wallets.ReleaseReservation(ctx, "u1", "bet-1")
	require.NoError(t, err)
	assert.False(t, res.Replayed)

	bal, err := wallets.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, usd(100_00), bal.Balance)
	assert.Equal(t, usd(0), bal.Reserved)
}

func TestReReserveUndoesRelease(t *testing.T) {
	wallets, _ := newWalletSystem(t)
	ctx := context.Background()

	_, err := wallets.Deposit(ctx, "u1", usd(100_00), "dep-1")
	require.NoError(t, err)
	_, err = wallets.Reserve(ctx, "u1", usd(40_00), "bet-1")
	require.NoError(t, err)
	_, err = wallets.ReleaseReservation(ctx, "u1", "bet-1")
	require.NoError(t, err)

	// Re-reserve earmarks again without touching the balance.
	_, err = wallets.ReReserve(ctx, "u1", usd(40_00), "bet-1", "saga-1")
	require.NoError(t, err)

	bal, err := wallets.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, usd(100_00), bal.Balance)
	assert.Equal(t, usd(40_00), bal.Reserved)
}

// --- Ledger Tests ---

func TestLedgerStaysBalanced(t *testing.T) {
	wallets, _ := newWalletSystem(t)
	ctx := context.Background()

	_, err := wallets.Deposit(ctx, "u1", usd(100_00), "dep-1")
	require.NoError(t, err)
	_, err = wallets.Reserve(ctx, "u1", usd(30_00), "bet-1")
	require.NoError(t, err)
	_, err = wallets.CommitReservation(ctx, "u1", "bet-1")
	require.NoError(t, err)
	_, err = wallets.ProcessPayout(ctx, "u1", usd(63_00), "bet-1", "saga-1")
	require.NoError(t, err)

	entries, err := wallets.GetLedgerEntries(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 8, "every movement posts a debit/credit pair")
	require.NoError(t, domain.CheckPostingBalance(entries))
}

func TestHistoryIsMostRecentFirstAndLimited(t *testing.T) {
	wallets, _ := newWalletSystem(t)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		_, err := wallets.Deposit(ctx, "u1", usd(int64(i)*10_00), fmt.Sprintf("dep-%d", i))
		require.NoError(t, err)
	}

	txs, err := wallets.GetTransactionHistory(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, usd(40_00), txs[0].Amount)
	assert.Equal(t, usd(30_00), txs[1].Amount)
}

// --- Invariant Property Test ---

// TestRandomOperationSequenceKeepsInvariants drives a seeded random mix
// of operations against a model and checks that balance, reserved and
// available never drift and the ledger stays balanced.
func TestRandomOperationSequenceKeepsInvariants(t *testing.T) {
	wallets, _ := newWalletSystem(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	var balance, reserved int64
	held := make(map[string]int64)
	nextBet := 0

	deposit := func(i int) {
		amount := int64(rng.Intn(200)+1) * 100
		if _, err := wallets.Deposit(ctx, "u1", usd(amount), fmt.Sprintf("dep-%d", i)); err == nil {
			balance += amount
		}
	}
	withdraw := func(i int) {
		amount := int64(rng.Intn(200)+1) * 100
		if _, err := wallets.Withdraw(ctx, "u1", usd(amount), fmt.Sprintf("wd-%d", i)); err == nil {
			balance -= amount
		}
	}
	reserve := func() {
		amount := int64(rng.Intn(100)+1) * 100
		betID := fmt.Sprintf("bet-%d", nextBet)
		nextBet++
		if _, err := wallets.Reserve(ctx, "u1", usd(amount), betID); err == nil {
			held[betID] = amount
			reserved += amount
		}
	}
	settleOne := func(commit bool) {
		for betID, amount := range held {
			var err error
			if commit {
				_, err = wallets.CommitReservation(ctx, "u1", betID)
			} else {
				_, err = wallets.ReleaseReservation(ctx, "u1", betID)
			}
			if err == nil {
				delete(held, betID)
				reserved -= amount
				if commit {
					balance -= amount
				}
			}
			return
		}
	}

	for i := 0; i < 200; i++ {
		switch rng.Intn(5) {
		case 0, 1:
			deposit(i)
		case 2:
			withdraw(i)
		case 3:
			reserve()
		case 4:
			settleOne(rng.Intn(2) == 0)
		}
	}

	bal, err := wallets.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, balance, bal.Balance.Amount)
	assert.Equal(t, reserved, bal.Reserved.Amount)
	assert.Equal(t, balance-reserved, bal.Available.Amount)
	assert.GreaterOrEqual(t, bal.Available.Amount, int64(0))

	entries, err := wallets.GetLedgerEntries(ctx, "u1", 0)
	require.NoError(t, err)
	require.NoError(t, domain.CheckPostingBalance(entries))
}
